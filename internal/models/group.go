package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultIntervalMinutes is used when a group is registered without an explicit cadence
	DefaultIntervalMinutes = 60
	// DefaultPriority is the neutral dispatch priority
	DefaultPriority = 0
)

// MonitoredGroup is a tracked upstream group and its monitoring metadata.
// Monitoring fields (NextRunAt, LastRunAt, LastSuccessAt, LastError, RunCount)
// are written only by the scheduler after a run completes.
type MonitoredGroup struct {
	// Identity
	ID         string `json:"id"`          // grp_{external_id}
	ExternalID string `json:"external_id"` // Upstream group id (positive integer as string)
	Name       string `json:"name"`
	ScreenName string `json:"screen_name,omitempty"`

	// Cadence
	Enabled         bool `json:"enabled" badgerhold:"index"`
	IntervalMinutes int  `json:"interval_minutes"`
	Priority        int  `json:"priority"` // Higher = sooner

	// Monitoring state
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     *RunError  `json:"last_error,omitempty"`
	RunCount      int        `json:"run_count"`

	// Last run summary
	LastStatus        RunStatus `json:"last_status,omitempty"`
	LastPostCount     int       `json:"last_post_count"`
	LastCommentCount  int       `json:"last_comment_count"`
	LastRunTruncated  bool      `json:"last_run_truncated"`
	LastRunDurationMs int64     `json:"last_run_duration_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunError is the structured error recorded on a group after a failed or partial run
type RunError struct {
	Kind       ErrorKind `json:"kind"`
	Operation  string    `json:"operation,omitempty"`
	Code       int       `json:"code,omitempty"`
	Message    string    `json:"message"`
	PostID     string    `json:"post_id,omitempty"` // Set when a single post's comments failed
	OccurredAt time.Time `json:"occurred_at"`
}

// GroupIDFromExternal builds the internal id for an upstream group id
func GroupIDFromExternal(externalID string) string {
	return "grp_" + strings.TrimSpace(externalID)
}

// NewMonitoredGroup creates a group with default cadence, disabled until monitoring is enabled
func NewMonitoredGroup(externalID, name string) *MonitoredGroup {
	now := time.Now()
	return &MonitoredGroup{
		ID:              GroupIDFromExternal(externalID),
		ExternalID:      strings.TrimSpace(externalID),
		Name:            name,
		IntervalMinutes: DefaultIntervalMinutes,
		Priority:        DefaultPriority,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate checks the fields required for scheduling
func (g *MonitoredGroup) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("group id is required")
	}
	if g.ExternalID == "" {
		return fmt.Errorf("group external_id is required")
	}
	if g.IntervalMinutes <= 0 {
		return fmt.Errorf("interval_minutes must be positive, got %d", g.IntervalMinutes)
	}
	return nil
}

// Interval returns the cadence as a duration
func (g *MonitoredGroup) Interval() time.Duration {
	minutes := g.IntervalMinutes
	if minutes <= 0 {
		minutes = DefaultIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// IsDue reports whether the group should be selected on a tick at now:
// enabled and either never scheduled or scheduled at or before now.
func (g *MonitoredGroup) IsDue(now time.Time) bool {
	if !g.Enabled {
		return false
	}
	return g.NextRunAt == nil || !g.NextRunAt.After(now)
}

// ApplyOutcome folds a completed run into the monitoring metadata.
// Success and partial runs advance LastSuccessAt; partial and failed runs record LastError.
// NextRunAt is always set one interval after completion, failures included.
func (g *MonitoredGroup) ApplyOutcome(outcome *RunOutcome) {
	finished := outcome.FinishedAt
	next := finished.Add(g.Interval())

	g.RunCount++
	g.LastRunAt = &finished
	g.NextRunAt = &next
	g.LastStatus = outcome.Status
	g.LastPostCount = outcome.PostCount
	g.LastCommentCount = outcome.CommentCount
	g.LastRunTruncated = outcome.Truncated
	g.LastRunDurationMs = outcome.Duration().Milliseconds()

	switch outcome.Status {
	case RunStatusSuccess:
		g.LastSuccessAt = &finished
		g.LastError = nil
	case RunStatusPartial:
		g.LastSuccessAt = &finished
		g.LastError = outcome.Error
	default:
		g.LastError = outcome.Error
	}

	g.UpdatedAt = time.Now()
}

// RescheduleFromLastRun recomputes NextRunAt after the cadence changed.
// Groups that have never run stay immediately due.
func (g *MonitoredGroup) RescheduleFromLastRun() {
	if g.LastRunAt == nil {
		g.NextRunAt = nil
		return
	}
	next := g.LastRunAt.Add(g.Interval())
	g.NextRunAt = &next
}

// DispatchBefore orders due groups for dispatch: higher priority first, then the
// longest-overdue (never-scheduled groups count as most overdue), then id for stability.
func DispatchBefore(a, b *MonitoredGroup) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.NextRunAt == nil && b.NextRunAt != nil:
		return true
	case a.NextRunAt != nil && b.NextRunAt == nil:
		return false
	case a.NextRunAt != nil && b.NextRunAt != nil && !a.NextRunAt.Equal(*b.NextRunAt):
		return a.NextRunAt.Before(*b.NextRunAt)
	}
	return a.ID < b.ID
}
