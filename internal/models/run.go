package models

import (
	"time"
)

// RunStatus is the final state of one dispatched group run
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// RunTrigger records why a run was dispatched
type RunTrigger string

const (
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerManual   RunTrigger = "manual"
	RunTriggerCycle    RunTrigger = "cycle"
)

// HarvestResult is the transient product of one pipeline run. It is consumed by the
// store upserts and the run outcome, then discarded.
type HarvestResult struct {
	GroupID           string       `json:"group_id"`
	Posts             []*Post      `json:"-"`
	Comments          []*Comment   `json:"-"`
	PostCount         int          `json:"post_count"`
	CommentCount      int          `json:"comment_count"`
	PostsTruncated    bool         `json:"posts_truncated"`
	TruncatedPostKeys []string     `json:"truncated_post_keys,omitempty"` // Posts whose comment harvest hit the page cap
	PostErrors        []*PostError `json:"-"`
	PagesFetched      int          `json:"pages_fetched"`
	CompletedAt       time.Time    `json:"completed_at"`
}

// Truncated reports whether any harvest in the run stopped at the page cap
func (r *HarvestResult) Truncated() bool {
	return r.PostsTruncated || len(r.TruncatedPostKeys) > 0
}

// RunOutcome is the ephemeral record of one scheduler-dispatched run
type RunOutcome struct {
	RunID        string     `json:"run_id"`
	GroupID      string     `json:"group_id"`
	Trigger      RunTrigger `json:"trigger"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	Status       RunStatus  `json:"status"`
	Error        *RunError  `json:"error,omitempty"`
	PostCount    int        `json:"post_count"`
	CommentCount int        `json:"comment_count"`
	FailedPosts  int        `json:"failed_posts"`
	Truncated    bool       `json:"truncated"`
}

// Duration returns the wall time of the run
func (o *RunOutcome) Duration() time.Duration {
	if o.FinishedAt.Before(o.StartedAt) {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Succeeded reports whether the run counts as a success for LastSuccessAt purposes
func (o *RunOutcome) Succeeded() bool {
	return o.Status == RunStatusSuccess || o.Status == RunStatusPartial
}

// EngineStats is the operator-visible snapshot of the monitoring engine
type EngineStats struct {
	TotalGroups      int        `json:"total_groups"`
	EnabledGroups    int        `json:"enabled_groups"`
	DueNow           int        `json:"due_now"`
	Running          int        `json:"running"`
	Queued           int        `json:"queued"`
	RunningGroupIDs  []string   `json:"running_group_ids,omitempty"`
	NextTickAt       *time.Time `json:"next_tick_at,omitempty"`
	LastTickAt       *time.Time `json:"last_tick_at,omitempty"`
	SchedulerRunning bool       `json:"scheduler_running"`
}
