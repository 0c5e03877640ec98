// Package monitoring implements the MonitoringScheduler: a cron-driven tick selects due
// groups, a single dispatcher hands them to a bounded set of workers in priority order,
// and every finished run is folded back into the group's monitoring state.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/metrics"
	"github.com/ternarybob/harvestd/internal/models"
)

var (
	// ErrGroupAlreadyRunning is returned when a group already has a run in flight
	ErrGroupAlreadyRunning = errors.New("group already has a run in flight")
	// ErrGroupAlreadyQueued is returned when a manual run is requested twice before dispatch
	ErrGroupAlreadyQueued = errors.New("group already queued for a manual run")
	// ErrSchedulerStopped is returned by triggers after Stop
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// Runner executes one crawl of a group. The ingestion pipeline implements it.
type Runner interface {
	Run(ctx context.Context, group *models.MonitoredGroup) (*models.HarvestResult, error)
}

// pendingRun is a group waiting for a worker slot
type pendingRun struct {
	group   *models.MonitoredGroup
	trigger models.RunTrigger
}

func (p *pendingRun) manual() bool {
	return p.trigger == models.RunTriggerManual
}

// activeRun is a dispatched group run
type activeRun struct {
	runID     string
	trigger   models.RunTrigger
	startedAt time.Time
	cancel    context.CancelFunc
}

// Scheduler is the MonitoringScheduler and its control surface
type Scheduler struct {
	cfg      Config
	groups   interfaces.GroupStorage
	content  interfaces.ContentStorage
	runner   Runner
	logger   arbor.ILogger
	events   interfaces.EventService
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time

	cron      *cron.Cron
	tickEntry cron.EntryID
	pacer     *rate.Limiter

	mu         sync.Mutex
	pending    []*pendingRun
	queued     map[string]*pendingRun
	running    map[string]*activeRun
	lastTickAt *time.Time
	started    bool
	stopped    bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithEventService publishes group_run_started and group_run_completed events
func WithEventService(events interfaces.EventService) Option {
	return func(s *Scheduler) {
		s.events = events
	}
}

// WithMetrics records runs and queue gauges
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithContentStorage lets DeleteGroup remove a group's harvested content
func WithContentStorage(content interfaces.ContentStorage) Option {
	return func(s *Scheduler) {
		s.content = content
	}
}

// NewScheduler creates a stopped scheduler
func NewScheduler(cfg Config, groups interfaces.GroupStorage, runner Runner, opts ...Option) *Scheduler {
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cfg:      cfg,
		groups:   groups,
		runner:   runner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		queued:   make(map[string]*pendingRun),
		running:  make(map[string]*activeRun),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = arbor.NewNoOpLogger()
	}

	pace := rate.Inf
	if cfg.GroupDelay > 0 {
		pace = rate.Every(cfg.GroupDelay)
	}
	s.pacer = rate.NewLimiter(pace, 1)

	clog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	return s
}

// Start schedules the tick, starts the dispatcher and runs a first tick immediately
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return fmt.Errorf("scheduler already running")
	}

	spec := fmt.Sprintf("@every %s", s.cfg.TickInterval)
	entryID, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Tick(s.ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Scheduler tick failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add scheduler tick: %w", err)
	}
	s.tickEntry = entryID

	s.wg.Add(1)
	common.SafeGo(s.logger, "monitoring-dispatcher", s.dispatchLoop)

	s.cron.Start()
	s.started = true

	common.SafeGo(s.logger, "monitoring-initial-tick", func() {
		if _, err := s.Tick(s.ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Initial scheduler tick failed")
		}
	})

	s.logger.Info().
		Str("tick", s.cfg.TickInterval.String()).
		Int("max_concurrent_groups", s.cfg.MaxConcurrentGroups).
		Str("group_delay", s.cfg.GroupDelay.String()).
		Msg("Monitoring scheduler started")

	return nil
}

// Stop stops scheduling new work, cancels in-flight runs at their next suspension point
// and waits for workers to return. A run cancelled this way leaves its group's state
// untouched, so the group is still due after restart.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wasStarted := s.started
	s.pending = nil
	s.queued = make(map[string]*pendingRun)
	s.mu.Unlock()

	if wasStarted {
		<-s.cron.Stop().Done()
	}
	s.cancel()
	s.wg.Wait()

	s.metrics.SetQueued(0)
	s.logger.Info().Msg("Monitoring scheduler stopped")
	return nil
}

// Tick selects the groups due now and queues them for dispatch. It never waits on a run.
// Returns the number of groups newly queued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrSchedulerStopped
	}
	s.lastTickAt = &now
	s.mu.Unlock()

	due, err := s.groups.ListDueGroups(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due groups: %w", err)
	}

	added := s.enqueue(due, models.RunTriggerSchedule)

	if len(due) > 0 {
		s.logger.Debug().
			Int("due", len(due)).
			Int("queued", added).
			Msg("Scheduler tick")
	}
	return added, nil
}

// enqueue adds groups that are neither running nor already queued, keeping the queue
// ordered, and wakes the dispatcher
func (s *Scheduler) enqueue(groups []*models.MonitoredGroup, trigger models.RunTrigger) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}

	added := 0
	for _, g := range groups {
		if _, ok := s.running[g.ID]; ok {
			continue
		}
		if _, ok := s.queued[g.ID]; ok {
			continue
		}
		p := &pendingRun{group: g, trigger: trigger}
		s.pending = append(s.pending, p)
		s.queued[g.ID] = p
		added++
	}

	if added > 0 {
		s.sortPendingLocked()
		s.signal()
	}
	return added
}

// sortPendingLocked keeps manual requests at the head in arrival order, then the rest by
// priority and staleness
func (s *Scheduler) sortPendingLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if a.manual() != b.manual() {
			return a.manual()
		}
		if a.manual() {
			return false
		}
		return models.DispatchBefore(a.group, b.group)
	})
	s.metrics.SetQueued(len(s.pending))
}

func (s *Scheduler) removePendingLocked(groupID string) bool {
	if _, ok := s.queued[groupID]; !ok {
		return false
	}
	delete(s.queued, groupID)
	for i, p := range s.pending {
		if p.group.ID == groupID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.metrics.SetQueued(len(s.pending))
	return true
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop is the single goroutine that starts runs. A run is started only when a
// worker slot is free, and successive starts are spaced by the group delay.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		for s.canDispatch() {
			if err := s.pacer.Wait(s.ctx); err != nil {
				return
			}
			next := s.reserveNext()
			if next == nil {
				break
			}
			s.dispatch(next)
		}
	}
}

func (s *Scheduler) canDispatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && len(s.pending) > 0 && len(s.running) < s.cfg.MaxConcurrentGroups
}

// reserveNext pops the head of the queue and marks its group running, so the group is
// never both queued and running nor running twice
func (s *Scheduler) reserveNext() *pendingRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || len(s.pending) == 0 || len(s.running) >= s.cfg.MaxConcurrentGroups {
		return nil
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	delete(s.queued, next.group.ID)
	s.running[next.group.ID] = &activeRun{trigger: next.trigger}

	s.metrics.SetQueued(len(s.pending))
	s.metrics.SetRunning(len(s.running))
	return next
}

func (s *Scheduler) release(groupID string) {
	s.mu.Lock()
	delete(s.running, groupID)
	running := len(s.running)
	s.mu.Unlock()

	s.metrics.SetRunning(running)
	s.signal()
}

// dispatch re-reads the group so a queued snapshot that went stale (disabled, already run
// manually, deleted) is dropped, then starts its worker
func (s *Scheduler) dispatch(p *pendingRun) {
	now := s.now()
	group, err := s.groups.GetGroup(s.ctx, p.group.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("group_id", p.group.ID).Msg("Dropping queued run, group unavailable")
		s.release(p.group.ID)
		return
	}

	switch p.trigger {
	case models.RunTriggerSchedule:
		if !group.IsDue(now) {
			s.logger.Debug().Str("group_id", group.ID).Msg("Dropping queued run, group no longer due")
			s.release(group.ID)
			return
		}
	case models.RunTriggerCycle:
		if !group.Enabled {
			s.release(group.ID)
			return
		}
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, s.cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}

	run := &activeRun{
		runID:     uuid.New().String(),
		trigger:   p.trigger,
		startedAt: now,
		cancel:    cancel,
	}
	s.mu.Lock()
	s.running[group.ID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	common.SafeGo(s.logger, "group-run:"+group.ID, func() {
		defer s.wg.Done()
		defer s.release(group.ID)
		defer cancel()
		s.execute(runCtx, group, run)
	})
}

// execute runs one group and records the outcome. Panics inside the run become a failed
// outcome; they never reach the dispatcher.
func (s *Scheduler) execute(ctx context.Context, group *models.MonitoredGroup, run *activeRun) {
	logger := s.logger.WithCorrelationId(run.runID)

	logger.Info().
		Str("group_id", group.ID).
		Str("trigger", string(run.trigger)).
		Int("priority", group.Priority).
		Msg("Group run started")

	s.publish(interfaces.EventGroupRunStarted, interfaces.RunPayload{
		RunID:   run.runID,
		GroupID: group.ID,
		Trigger: string(run.trigger),
	})

	var result *models.HarvestResult
	err := common.Recover(logger, "group-run:"+group.ID, func() error {
		var runErr error
		result, runErr = s.runner.Run(ctx, group)
		return runErr
	})

	if s.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Warn().
			Str("group_id", group.ID).
			Msg("Group run cancelled by shutdown, state not updated")
		return
	}

	outcome := buildOutcome(run, group.ID, result, err, s.now())

	// State is written even when shutdown begins now; the run itself has finished
	if _, updateErr := s.groups.UpdateMonitoringState(context.WithoutCancel(ctx), group.ID, outcome); updateErr != nil {
		logger.Error().
			Err(updateErr).
			Str("group_id", group.ID).
			Msg("Failed to record run outcome")
	}

	s.metrics.ObserveRun(string(outcome.Status), outcome.Duration())

	logEvent := logger.Info()
	if outcome.Status == models.RunStatusFailed {
		logEvent = logger.Warn().Err(err)
	}
	logEvent.
		Str("group_id", group.ID).
		Str("status", string(outcome.Status)).
		Int("posts", outcome.PostCount).
		Int("comments", outcome.CommentCount).
		Int("failed_posts", outcome.FailedPosts).
		Bool("truncated", outcome.Truncated).
		Dur("duration", outcome.Duration()).
		Msg("Group run completed")

	payload := interfaces.RunPayload{
		RunID:        run.runID,
		GroupID:      group.ID,
		Trigger:      string(run.trigger),
		Status:       string(outcome.Status),
		PostCount:    outcome.PostCount,
		CommentCount: outcome.CommentCount,
		FailedPosts:  outcome.FailedPosts,
		Truncated:    outcome.Truncated,
		DurationMs:   outcome.Duration().Milliseconds(),
	}
	if outcome.Error != nil {
		payload.Error = outcome.Error.Message
	}
	s.publish(interfaces.EventGroupRunCompleted, payload)
}

// buildOutcome classifies a finished run: no error is success, a partial_group error with
// a result is partial, anything else is failed
func buildOutcome(run *activeRun, groupID string, result *models.HarvestResult, err error, finished time.Time) *models.RunOutcome {
	outcome := &models.RunOutcome{
		RunID:      run.runID,
		GroupID:    groupID,
		Trigger:    run.trigger,
		StartedAt:  run.startedAt,
		FinishedAt: finished,
	}
	if result != nil {
		outcome.PostCount = result.PostCount
		outcome.CommentCount = result.CommentCount
		outcome.FailedPosts = len(result.PostErrors)
		outcome.Truncated = result.Truncated()
	}

	switch {
	case err == nil:
		outcome.Status = models.RunStatusSuccess
	case result != nil && models.KindOf(err) == models.ErrorKindPartialGroup:
		outcome.Status = models.RunStatusPartial
		outcome.Error = models.ToRunError(err, finished)
	default:
		outcome.Status = models.RunStatusFailed
		outcome.Error = models.ToRunError(err, finished)
		if outcome.Error.Kind == models.ErrorKindPartialGroup {
			outcome.Error.Kind = models.ErrorKindGroupRun
		}
	}
	return outcome
}

func (s *Scheduler) publish(eventType interfaces.EventType, payload interfaces.RunPayload) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(s.ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish run event")
	}
}
