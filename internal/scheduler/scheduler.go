// Package scheduler pushes pending local records to the server. Each run
// walks TRIGGERED -> RUNNING -> SUCCESS | RETRY | FAILURE, retrying failed
// pushes with exponential backoff up to a fixed number of times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/errkind"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/metrics"
	"github.com/tildaslashalef/nutrinest/internal/outbox"
)

var (
	// ErrRunInProgress is returned when a run is triggered while another is in flight
	ErrRunInProgress = errors.New("sync run already in progress")
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Pusher sends a batch of pending records to the server. A nil error means
// the server accepted every record in the batch.
type Pusher interface {
	Push(ctx context.Context, batch outbox.Batch) error
}

// RunRecorder persists the outcome of finished runs
type RunRecorder interface {
	RecordLastRun(ctx context.Context, run config.LastRun) error
}

// Status is a snapshot of the scheduler
type Status struct {
	Running bool     `json:"running"`
	Current *SyncRun `json:"current,omitempty"`
	Last    *SyncRun `json:"last,omitempty"`
}

// Scheduler runs sync runs on demand and periodically
type Scheduler struct {
	queue       outbox.Queue
	pusher      Pusher
	cfg         config.SyncConfig
	constraints []Constraint
	recorder    RunRecorder
	logger      *loggy.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running atomic.Bool

	mu      sync.Mutex
	current *SyncRun
	last    *SyncRun
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithConstraints sets the preconditions checked before every run
func WithConstraints(constraints ...Constraint) Option {
	return func(s *Scheduler) { s.constraints = append(s.constraints, constraints...) }
}

// WithRecorder persists run outcomes through r
func WithRecorder(r RunRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithClock replaces the clock and the backoff sleep
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// New creates a scheduler
func New(queue outbox.Queue, pusher Pusher, cfg config.SyncConfig, logger *loggy.Logger, opts ...Option) *Scheduler {
	if cfg.ConstraintPoll <= 0 {
		cfg.ConstraintPoll = 30 * time.Second
	}

	s := &Scheduler{
		queue:  queue,
		pusher: pusher,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger runs one sync run to completion and returns it. A trigger while a
// run is in flight starts nothing and returns ErrRunInProgress. When ctx is
// cancelled the run stops where it is and ctx's error is returned.
func (s *Scheduler) Trigger(ctx context.Context) (*SyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("Trigger dropped, run in progress")
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	run := newSyncRun(s.now())
	logger := s.logger.With("run_id", run.ID)
	ctx = loggy.WithLogger(ctx, logger)
	s.publish(run)

	logger.Info("Sync triggered")

	if err := s.awaitConstraints(ctx, run); err != nil {
		return s.abandon(ctx, run, err)
	}

	b := newBackOff(s.cfg.BaseDelay, s.cfg.MinDelay)

	for {
		if err := s.advance(run, StateRunning, ""); err != nil {
			return run, err
		}
		metrics.SyncAttempts.Inc()

		err := s.attempt(ctx, run)
		if err == nil {
			if err := s.advance(run, StateSuccess, ""); err != nil {
				return run, err
			}
			break
		}
		if ctx.Err() != nil {
			return s.abandon(ctx, run, ctx.Err())
		}

		class := errkind.Classify(err)
		run.LastError = err.Error()
		if err := s.advance(run, StateRetry, class.String()); err != nil {
			return run, err
		}

		if run.Attempt >= s.cfg.MaxRetries {
			logger.Error("Sync failed, retries exhausted",
				"attempt", run.Attempt,
				"kind", class.String(),
				"error", err)
			if err := s.advance(run, StateFailure, "retries exhausted"); err != nil {
				return run, err
			}
			break
		}

		delay := b.NextBackOff()
		run.Delays = append(run.Delays, delay)
		logger.Warn("Sync attempt failed, retrying",
			"attempt", run.Attempt,
			"delay", delay,
			"kind", class.String(),
			"error", err)

		if err := s.sleep(ctx, delay); err != nil {
			return s.abandon(ctx, run, err)
		}
		run.Attempt++
	}

	s.finish(ctx, run)
	return run, nil
}

// awaitConstraints blocks until every constraint is satisfied or ctx is done
func (s *Scheduler) awaitConstraints(ctx context.Context, run *SyncRun) error {
	for {
		unmet := s.unmetConstraint(ctx)
		if unmet == "" {
			return nil
		}

		run.Deferrals++
		s.publish(run)
		loggy.FromContext(ctx).Info("Sync deferred", "constraint", unmet, "recheck_in", s.cfg.ConstraintPoll)

		if err := s.sleep(ctx, s.cfg.ConstraintPoll); err != nil {
			return err
		}
	}
}

func (s *Scheduler) unmetConstraint(ctx context.Context) string {
	for _, c := range s.constraints {
		ok, err := c.Satisfied(ctx)
		if err != nil {
			loggy.FromContext(ctx).Warn("Constraint check failed", "constraint", c.Name(), "error", err)
		}
		if !ok {
			return c.Name()
		}
	}
	return ""
}

// attempt pushes everything pending and acknowledges it. Records are only
// acknowledged after every batch was accepted; a push whose outcome is
// unknown is never acknowledged.
func (s *Scheduler) attempt(ctx context.Context, run *SyncRun) error {
	records, err := s.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("reading pending records: %w", err)
	}
	metrics.PendingRecords.Set(float64(len(records)))

	if len(records) == 0 {
		loggy.FromContext(ctx).Debug("Nothing to push")
		return nil
	}

	for _, batch := range outbox.Chunk(records, s.cfg.BatchSize) {
		if err := s.pusher.Push(ctx, batch); err != nil {
			return fmt.Errorf("pushing batch %s: %w", batch.Key, err)
		}
	}

	// the server has the records; a cancellation now must not lose that
	if err := s.queue.Acknowledge(context.WithoutCancel(ctx), outbox.Acks(records)); err != nil {
		return fmt.Errorf("acknowledging pushed records: %w", err)
	}

	run.Pushed = len(records)
	metrics.RecordsPushed.Add(float64(len(records)))
	metrics.PendingRecords.Set(0)
	return nil
}

func (s *Scheduler) advance(run *SyncRun, to State, reason string) error {
	if err := run.transition(to, reason, s.now()); err != nil {
		return err
	}
	s.publish(run)
	return nil
}

// abandon ends a run interrupted by cancellation. Nothing is recorded.
func (s *Scheduler) abandon(ctx context.Context, run *SyncRun, err error) (*SyncRun, error) {
	loggy.FromContext(ctx).Info("Sync cancelled", "state", run.State, "attempt", run.Attempt)
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return run, err
}

func (s *Scheduler) finish(ctx context.Context, run *SyncRun) {
	logger := loggy.FromContext(ctx)
	duration := run.Duration(s.now())

	metrics.SyncRuns.WithLabelValues(string(run.State)).Inc()
	metrics.SyncRunDuration.Observe(duration.Seconds())

	if run.State == StateSuccess {
		logger.Info("Sync succeeded", "pushed", run.Pushed, "attempts", run.Attempt+1, "duration", duration)
	}

	if s.recorder != nil {
		last := config.LastRun{At: run.FinishedAt, Outcome: string(run.State)}
		if run.State == StateFailure {
			last.Error = run.LastError
		}
		if err := s.recorder.RecordLastRun(context.WithoutCancel(ctx), last); err != nil {
			logger.Warn("Failed to record sync outcome", "error", err)
		}
	}

	s.mu.Lock()
	s.current = nil
	s.last = run.clone()
	s.mu.Unlock()
}

func (s *Scheduler) publish(run *SyncRun) {
	s.mu.Lock()
	s.current = run.clone()
	s.mu.Unlock()
}

// Status returns a snapshot of the in-flight and last finished runs
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running: s.running.Load(),
		Current: s.current,
		Last:    s.last,
	}
}

// Start runs the periodic loop until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.logger.Info("Scheduler started", "interval", s.cfg.Interval, "run_on_start", s.cfg.RunOnStart)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	if s.cfg.RunOnStart {
		s.triggerFromLoop(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.triggerFromLoop(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) triggerFromLoop(ctx context.Context) {
	ctx = loggy.WithRequestID(ctx, loggy.NewRequestID())
	if _, err := s.Trigger(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrRunInProgress) {
		s.logger.Error("Scheduled sync failed", "error", err)
	}
}

// Stop cancels the loop and any in-flight run and waits for them to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
