package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
)

var _ interfaces.MonitoringService = (*Scheduler)(nil)

// RegisterGroup adds a group to the registry, disabled, with the configured default cadence.
// Registering an existing group returns it unchanged.
func (s *Scheduler) RegisterGroup(ctx context.Context, externalID, name string) (*models.MonitoredGroup, error) {
	externalID = strings.TrimSpace(externalID)
	if _, err := strconv.ParseUint(externalID, 10, 64); err != nil || externalID == "0" {
		return nil, fmt.Errorf("external_id must be a positive integer, got %q", externalID)
	}

	existing, err := s.groups.GetGroup(ctx, models.GroupIDFromExternal(externalID))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrGroupNotFound) {
		return nil, err
	}

	group := models.NewMonitoredGroup(externalID, strings.TrimSpace(name))
	group.IntervalMinutes = s.cfg.DefaultIntervalMinutes
	group.Priority = s.cfg.DefaultPriority
	if err := s.groups.SaveGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to register group: %w", err)
	}

	s.logger.Info().
		Str("group_id", group.ID).
		Str("name", group.Name).
		Msg("Group registered")
	return group, nil
}

// ListGroups returns every registered group
func (s *Scheduler) ListGroups(ctx context.Context) ([]*models.MonitoredGroup, error) {
	return s.groups.ListGroups(ctx)
}

// GetGroup returns one group by id
func (s *Scheduler) GetGroup(ctx context.Context, id string) (*models.MonitoredGroup, error) {
	return s.groups.GetGroup(ctx, id)
}

// DeleteGroup removes a group and its harvested content. A group with a run in flight
// cannot be deleted.
func (s *Scheduler) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.running[id]; ok {
		s.mu.Unlock()
		return ErrGroupAlreadyRunning
	}
	s.removePendingLocked(id)
	s.mu.Unlock()

	if err := s.groups.DeleteGroup(ctx, id); err != nil {
		return err
	}
	if s.content != nil {
		if err := s.content.DeleteGroupContent(ctx, id); err != nil {
			return fmt.Errorf("group deleted but content cleanup failed: %w", err)
		}
	}

	s.logger.Info().Str("group_id", id).Msg("Group deleted")
	return nil
}

// EnableMonitoring turns scheduling on. intervalMinutes <= 0 keeps the current cadence,
// or the default when none is set. Changing the cadence reschedules from the last run.
func (s *Scheduler) EnableMonitoring(ctx context.Context, groupID string, intervalMinutes, priority int) (*models.MonitoredGroup, error) {
	group, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.MonitoredGroup) error {
		interval := intervalMinutes
		if interval <= 0 {
			interval = g.IntervalMinutes
		}
		if interval <= 0 {
			interval = s.cfg.DefaultIntervalMinutes
		}

		changed := interval != g.IntervalMinutes
		g.Enabled = true
		g.IntervalMinutes = interval
		g.Priority = priority
		if changed {
			g.RescheduleFromLastRun()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.updateQueuedSnapshot(group)

	s.logger.Info().
		Str("group_id", group.ID).
		Int("interval_minutes", group.IntervalMinutes).
		Int("priority", group.Priority).
		Msg("Monitoring enabled")
	return group, nil
}

// DisableMonitoring turns scheduling off. A run already in flight completes normally;
// a queued scheduled run is dropped.
func (s *Scheduler) DisableMonitoring(ctx context.Context, groupID string) (*models.MonitoredGroup, error) {
	group, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.MonitoredGroup) error {
		g.Enabled = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if p, ok := s.queued[groupID]; ok && !p.manual() {
		s.removePendingLocked(groupID)
	}
	s.mu.Unlock()

	s.logger.Info().Str("group_id", group.ID).Msg("Monitoring disabled")
	return group, nil
}

// UpdateMonitoringSettings applies a partial cadence update
func (s *Scheduler) UpdateMonitoringSettings(ctx context.Context, groupID string, settings interfaces.MonitoringSettings) (*models.MonitoredGroup, error) {
	if err := s.validate.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid monitoring settings: %w", err)
	}

	group, err := s.groups.UpdateGroup(ctx, groupID, func(g *models.MonitoredGroup) error {
		if settings.IntervalMinutes != nil && *settings.IntervalMinutes != g.IntervalMinutes {
			g.IntervalMinutes = *settings.IntervalMinutes
			g.RescheduleFromLastRun()
		}
		if settings.Priority != nil {
			g.Priority = *settings.Priority
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.updateQueuedSnapshot(group)
	return group, nil
}

// updateQueuedSnapshot refreshes the queued copy of a group so a priority change
// reorders the queue
func (s *Scheduler) updateQueuedSnapshot(group *models.MonitoredGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.queued[group.ID]; ok {
		p.group = group
		s.sortPendingLocked()
	}
}

// RunGroupNow queues an immediate run ahead of scheduled work. It bypasses NextRunAt
// and works for disabled groups; the run still updates monitoring state.
func (s *Scheduler) RunGroupNow(ctx context.Context, groupID string) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := s.running[groupID]; ok {
		return ErrGroupAlreadyRunning
	}

	if p, ok := s.queued[groupID]; ok {
		if p.manual() {
			return ErrGroupAlreadyQueued
		}
		p.group = group
		p.trigger = models.RunTriggerManual
		// Move to the back of the manual section to keep requests in arrival order
		s.removePendingLocked(groupID)
		s.queued[groupID] = p
		s.pending = append(s.pending, p)
	} else {
		p := &pendingRun{group: group, trigger: models.RunTriggerManual}
		s.queued[groupID] = p
		s.pending = append(s.pending, p)
	}
	s.sortPendingLocked()
	s.signal()

	s.logger.Info().Str("group_id", groupID).Msg("Manual run queued")
	return nil
}

// RunCycleNow queues every enabled group regardless of NextRunAt
func (s *Scheduler) RunCycleNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return 0, ErrSchedulerStopped
	}

	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return 0, err
	}

	enabled := make([]*models.MonitoredGroup, 0, len(groups))
	for _, g := range groups {
		if g.Enabled {
			enabled = append(enabled, g)
		}
	}

	added := s.enqueue(enabled, models.RunTriggerCycle)
	s.logger.Info().
		Int("enabled", len(enabled)).
		Int("queued", added).
		Msg("Monitoring cycle queued")
	return added, nil
}

// GetEngineStats returns a snapshot of registry and dispatcher state
func (s *Scheduler) GetEngineStats(ctx context.Context) (*models.EngineStats, error) {
	total, enabled, err := s.groups.CountGroups(ctx)
	if err != nil {
		return nil, err
	}
	due, err := s.groups.ListDueGroups(ctx, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	stats := &models.EngineStats{
		TotalGroups:      total,
		EnabledGroups:    enabled,
		DueNow:           len(due),
		Running:          len(s.running),
		Queued:           len(s.pending),
		LastTickAt:       s.lastTickAt,
		SchedulerRunning: s.started && !s.stopped,
	}
	for id := range s.running {
		stats.RunningGroupIDs = append(stats.RunningGroupIDs, id)
	}
	started := s.started && !s.stopped
	s.mu.Unlock()

	sort.Strings(stats.RunningGroupIDs)

	if started {
		if next := s.cron.Entry(s.tickEntry).Next; !next.IsZero() {
			stats.NextTickAt = &next
		}
	}
	return stats, nil
}
