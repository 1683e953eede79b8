package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spese-report/internal/amqp"
	"spese-report/internal/core"
	"spese-report/internal/log"
	"spese-report/internal/period"
)

// Publisher hands a delivery request to the worker side.
type Publisher interface {
	Publish(ctx context.Context, msg *amqp.ReportReadyMessage) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg *amqp.ReportReadyMessage) error

func (f PublisherFunc) Publish(ctx context.Context, msg *amqp.ReportReadyMessage) error {
	return f(ctx, msg)
}

// Store is what the scheduler reads and writes: the user list, an entry
// probe and the run log that guards against double runs.
type Store interface {
	ListUsers(ctx context.Context) ([]core.User, error)
	HasEntries(ctx context.Context, userID string, b period.Boundary) (bool, error)
	LastRun(ctx context.Context, job string) (core.RunRecord, bool, error)
	RecordRun(ctx context.Context, rec core.RunRecord) error
}

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	// Tick is how often triggers are evaluated (default: 1m)
	Tick time.Duration

	// Location is the wall clock the triggers fire in (default: UTC)
	Location *time.Location

	// CatchUp bounds how late a missed firing may still run. Older firings
	// are recorded as skipped. Zero disables the bound. (default: 24h)
	CatchUp time.Duration

	// Granularities lists the active batches (default: all four)
	Granularities []period.Granularity
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Tick:          time.Minute,
		Location:      time.UTC,
		CatchUp:       24 * time.Hour,
		Granularities: []period.Granularity{period.Week, period.Month, period.Quarter, period.Yearly},
	}
}

// BatchResult summarises one batch run.
type BatchResult struct {
	Granularity period.Granularity `json:"granularity"`
	Period      string             `json:"period"`
	Users       int                `json:"users"`
	Published   int                `json:"published"`
	Skipped     int                `json:"skipped"`
	Failed      int                `json:"failed"`
}

// Scheduler fires report batches for the previous full period on each
// granularity's trigger and publishes one delivery request per user.
type Scheduler struct {
	store     Store
	publisher Publisher
	resolver  period.Resolver
	triggers  map[period.Granularity]Trigger
	config    SchedulerConfig
	logger    *log.Logger
	now       func() time.Time
	reminder  *dailyReminder

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler with the default triggers.
func NewScheduler(store Store, publisher Publisher, resolver period.Resolver, config SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Tick <= 0 {
		config.Tick = time.Minute
	}
	if len(config.Granularities) == 0 {
		config.Granularities = DefaultSchedulerConfig().Granularities
	}
	return &Scheduler{
		store:     store,
		publisher: publisher,
		resolver:  resolver,
		triggers:  DefaultTriggers(),
		config:    config,
		logger:    logger.WithComponent(log.ComponentScheduler),
		now:       time.Now,
	}
}

// JobName is the run log key of the batch for g.
func JobName(g period.Granularity) string {
	return "report:" + string(g)
}

// Start begins the trigger loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Scheduler started",
		"tick", s.config.Tick,
		"location", s.config.Location.String())
	return nil
}

// Stop signals the loop and waits for the current tick to finish. Only the
// first of concurrent callers closes the stop channel; the others return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	// Evaluate immediately so a restart right after a firing is not missed
	s.Tick(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every active trigger once and runs the batches that are
// due. A batch is due when its target period differs from the one in the
// run log. The daily reminder, when enabled, is evaluated last.
func (s *Scheduler) Tick(ctx context.Context) []BatchResult {
	now := s.now().In(s.config.Location)
	var results []BatchResult

	for _, g := range s.config.Granularities {
		if ctx.Err() != nil {
			return results
		}
		trigger, err := GetTrigger(s.triggers, g)
		if err != nil {
			s.logger.ErrorContext(ctx, "Skipping granularity", log.FieldGranularity, g, log.FieldError, err)
			continue
		}

		firing := trigger.LastFiring(now)
		target := TargetPeriod(s.resolver, g, firing)
		value := period.Value(g, target)
		job := JobName(g)

		last, ok, err := s.store.LastRun(ctx, job)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to read run log", "job", job, log.FieldError, err)
			continue
		}
		if ok && last.PeriodValue == value {
			continue
		}

		if s.config.CatchUp > 0 && now.Sub(firing) > s.config.CatchUp {
			s.logger.WarnContext(ctx, "Missed batch is past the catch-up window, skipping",
				log.FieldGranularity, g,
				log.FieldPeriod, value,
				"fired_at", firing.Format(time.RFC3339))
			s.record(ctx, job, value, now)
			continue
		}

		res, err := s.RunBatch(ctx, g, target, amqp.TriggerScheduled)
		if err != nil {
			s.logger.ErrorContext(ctx, "Batch failed", log.FieldGranularity, g, log.FieldPeriod, value, log.FieldError, err)
			continue
		}
		results = append(results, res)

		// A batch where nothing went out but something failed is retried on
		// the next tick.
		if res.Published == 0 && res.Failed > 0 {
			continue
		}
		s.record(ctx, job, value, now)
	}
	if ctx.Err() == nil {
		s.tickReminder(ctx, now)
	}
	return results
}

func (s *Scheduler) record(ctx context.Context, job, value string, now time.Time) {
	if err := s.store.RecordRun(ctx, core.RunRecord{Job: job, PeriodValue: value, RanAt: now.UTC()}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record run", "job", job, log.FieldPeriod, value, log.FieldError, err)
	}
}

// RunBatch publishes one delivery request per user with entries in target.
// Failures for one user never stop the batch; only a failed user listing
// is returned as an error.
func (s *Scheduler) RunBatch(ctx context.Context, g period.Granularity, target period.Boundary, trigger string) (BatchResult, error) {
	value := period.Value(g, target)
	res := BatchResult{Granularity: g, Period: value}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	res.Users = len(users)
	now := s.now()

	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		ulog := s.logger.With(log.FieldUserID, u.ID, log.FieldGranularity, g, log.FieldPeriod, value)

		has, err := s.store.HasEntries(ctx, u.ID, target)
		if err != nil {
			ulog.ErrorContext(ctx, "Failed to check entries", log.FieldError, err)
			res.Failed++
			continue
		}
		if !has {
			res.Skipped++
			continue
		}

		msg := amqp.NewReportReadyMessage(u.ID, g, value, trigger, now)
		if err := s.publisher.Publish(ctx, msg); err != nil {
			ulog.ErrorContext(ctx, "Failed to publish report request", log.FieldError, err)
			res.Failed++
			continue
		}
		res.Published++
	}

	s.logger.InfoContext(ctx, "Batch completed",
		log.FieldOperation, log.OpBatch,
		log.FieldGranularity, g,
		log.FieldPeriod, value,
		log.FieldTrigger, trigger,
		"users", res.Users,
		"published", res.Published,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}

// RunFor resolves token for g and runs the batch for that period. It does
// not touch the run log.
func (s *Scheduler) RunFor(ctx context.Context, g period.Granularity, token string) (BatchResult, error) {
	res, err := s.resolver.Resolve(token, g)
	if err != nil {
		return BatchResult{}, err
	}
	return s.RunBatch(ctx, g, res.Current, amqp.TriggerManual)
}
