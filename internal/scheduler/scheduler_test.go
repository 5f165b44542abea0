package scheduler

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/outbox"
)

var errOffline = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

type fakeQueue struct {
	mu         sync.Mutex
	records    []outbox.Record
	pendingErr error
	ackErrs    []error
	acked      map[outbox.Ack]int
	ackCalls   int
}

func newFakeQueue(n int) *fakeQueue {
	q := &fakeQueue{acked: make(map[outbox.Ack]int)}
	for i := 0; i < n; i++ {
		q.records = append(q.records, outbox.Record{
			ID:       string(rune('a' + i)),
			Kind:     "food_entry",
			Revision: 1,
		})
	}
	return q
}

func (q *fakeQueue) Pending(context.Context) ([]outbox.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pendingErr != nil {
		return nil, q.pendingErr
	}
	var out []outbox.Record
	for _, r := range q.records {
		if q.acked[r.Ack()] == 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (q *fakeQueue) Acknowledge(_ context.Context, acks []outbox.Ack) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ackCalls++
	if len(q.ackErrs) > 0 {
		err := q.ackErrs[0]
		q.ackErrs = q.ackErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, a := range acks {
		q.acked[a]++
	}
	return nil
}

func (q *fakeQueue) pendingCount() int {
	recs, _ := q.Pending(context.Background())
	return len(recs)
}

// fakePusher fails with errs in order, then succeeds
type fakePusher struct {
	mu      sync.Mutex
	errs    []error
	batches []outbox.Batch
	block   chan struct{}
}

func (p *fakePusher) Push(ctx context.Context, b outbox.Batch) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	return nil
}

func (p *fakePusher) pushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

type fakeRecorder struct {
	runs []config.LastRun
}

func (r *fakeRecorder) RecordLastRun(_ context.Context, run config.LastRun) error {
	r.runs = append(r.runs, run)
	return nil
}

type fakeConstraint struct {
	name string
	ok   []bool
	i    atomic.Int32
}

func (c *fakeConstraint) Name() string { return c.name }

func (c *fakeConstraint) Satisfied(context.Context) (bool, error) {
	i := int(c.i.Add(1)) - 1
	if i >= len(c.ok) {
		return c.ok[len(c.ok)-1], nil
	}
	return c.ok[i], nil
}

type sleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:       time.Hour,
		BaseDelay:      30 * time.Second,
		MinDelay:       30 * time.Second,
		MaxRetries:     3,
		ConstraintPoll: 30 * time.Second,
	}
}

func newTestScheduler(q outbox.Queue, p Pusher, s *sleeps, opts ...Option) *Scheduler {
	now := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return now }, s.sleep)}, opts...)
	return New(q, p, testConfig(), loggy.NewNoopLogger(), opts...)
}

func states(run *SyncRun) []State {
	var out []State
	for _, t := range run.Transitions {
		out = append(out, t.To)
	}
	return out
}

func TestRunSucceedsFirstTime(t *testing.T) {
	q := newFakeQueue(3)
	p := &fakePusher{}
	rec := &fakeRecorder{}
	s := &sleeps{}

	run, err := newTestScheduler(q, p, s, WithRecorder(rec)).Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, []State{StateRunning, StateSuccess}, states(run))
	assert.Equal(t, 3, run.Pushed)
	assert.Zero(t, q.pendingCount())
	assert.Empty(t, s.delays)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "success", rec.runs[0].Outcome)
}

func TestRetryThenSuccess(t *testing.T) {
	q := newFakeQueue(3)
	p := &fakePusher{errs: []error{errOffline, errOffline}}
	s := &sleeps{}

	run, err := newTestScheduler(q, p, s).Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, s.delays)
	assert.Equal(t, 2, run.Attempt)
	assert.Equal(t, 3, p.pushes())
	assert.Equal(t, []State{
		StateRunning, StateRetry,
		StateRunning, StateRetry,
		StateRunning, StateSuccess,
	}, states(run))

	// acknowledged exactly once
	assert.Equal(t, 1, q.ackCalls)
	for _, r := range q.records {
		assert.Equal(t, 1, q.acked[r.Ack()])
	}
}

func TestRetriesExhausted(t *testing.T) {
	q := newFakeQueue(2)
	p := &fakePusher{errs: []error{errOffline, errOffline, errOffline, errOffline}}
	rec := &fakeRecorder{}
	s := &sleeps{}
	sched := newTestScheduler(q, p, s, WithRecorder(rec))

	run, err := sched.Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFailure, run.State)
	assert.Equal(t, 4, p.pushes(), "one attempt plus three retries")
	assert.Equal(t, 3, run.Attempt)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}, s.delays)
	assert.Equal(t, StateRetry, run.Transitions[len(run.Transitions)-2].To)
	assert.Equal(t, 2, q.pendingCount(), "records stay pending")
	assert.Zero(t, q.ackCalls)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "failure", rec.runs[0].Outcome)
	assert.NotEmpty(t, rec.runs[0].Error)

	// the next trigger starts from attempt zero
	run, err = sched.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Zero(t, run.Attempt)
	assert.Zero(t, q.pendingCount())
}

func TestClientErrorsAlsoRetry(t *testing.T) {
	q := newFakeQueue(1)
	p := &fakePusher{errs: []error{statusErr(400)}}
	s := &sleeps{}

	run, err := newTestScheduler(q, p, s).Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, "client_error(400)", run.Transitions[1].Reason)
}

func TestEmptyQueueSucceedsWithoutPush(t *testing.T) {
	q := newFakeQueue(0)
	p := &fakePusher{}

	run, err := newTestScheduler(q, p, &sleeps{}).Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Zero(t, p.pushes())
	assert.Zero(t, q.ackCalls)
}

func TestAcknowledgeFailureRetriesBatch(t *testing.T) {
	q := newFakeQueue(2)
	q.ackErrs = []error{errors.New("database is locked")}
	p := &fakePusher{}
	s := &sleeps{}

	run, err := newTestScheduler(q, p, s).Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, 2, p.pushes(), "the whole batch is pushed again")
	assert.Equal(t, 2, q.ackCalls)
	assert.Zero(t, q.pendingCount())
}

func TestPendingFailureRetries(t *testing.T) {
	q := newFakeQueue(1)
	q.pendingErr = errors.New("disk I/O error")
	s := &sleeps{}

	run, err := newTestScheduler(q, &fakePusher{}, s).Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailure, run.State)
	assert.Len(t, s.delays, 3)
}

func TestBatchesAreChunked(t *testing.T) {
	q := newFakeQueue(5)
	p := &fakePusher{}
	cfg := testConfig()
	cfg.BatchSize = 2

	sched := New(q, p, cfg, loggy.NewNoopLogger(), WithClock(time.Now, (&sleeps{}).sleep))
	run, err := sched.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, 3, p.pushes())
	assert.Equal(t, 1, q.ackCalls, "acknowledged once after every batch was accepted")
}

func TestPartialBatchFailureAcksNothing(t *testing.T) {
	q := newFakeQueue(4)
	p := &fakePusher{errs: []error{nil, errOffline, nil, nil}}
	cfg := testConfig()
	cfg.BatchSize = 2
	s := &sleeps{}

	sched := New(q, p, cfg, loggy.NewNoopLogger(), WithClock(time.Now, s.sleep))
	run, err := sched.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, 4, p.pushes())
	assert.Equal(t, 1, q.ackCalls)
	assert.Len(t, s.delays, 1)
}

func TestTriggerWhileRunningIsDropped(t *testing.T) {
	q := newFakeQueue(1)
	p := &fakePusher{block: make(chan struct{})}
	sched := newTestScheduler(q, p, &sleeps{})

	done := make(chan *SyncRun)
	go func() {
		run, _ := sched.Trigger(context.Background())
		done <- run
	}()

	require.Eventually(t, func() bool { return sched.Status().Running }, time.Second, time.Millisecond)

	run, err := sched.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, run)

	close(p.block)
	first := <-done
	assert.Equal(t, StateSuccess, first.State)
	assert.Equal(t, 1, p.pushes())
	assert.False(t, sched.Status().Running)
	assert.Equal(t, first.ID, sched.Status().Last.ID)
}

func TestCancelDuringPushDoesNotAcknowledge(t *testing.T) {
	q := newFakeQueue(2)
	p := &fakePusher{block: make(chan struct{})}
	rec := &fakeRecorder{}
	sched := newTestScheduler(q, p, &sleeps{}, WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error)
	go func() {
		_, err := sched.Trigger(ctx)
		result <- err
	}()

	require.Eventually(t, func() bool {
		st := sched.Status()
		return st.Current != nil && st.Current.State == StateRunning
	}, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-result, context.Canceled)
	assert.Zero(t, q.ackCalls)
	assert.Equal(t, 2, q.pendingCount())
	assert.Empty(t, rec.runs, "cancelled runs are not recorded")
}

func TestCancelledAfterPushStillAcknowledges(t *testing.T) {
	q := newFakeQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	p := pushFunc(func(context.Context, outbox.Batch) error {
		cancel()
		return nil
	})

	run, err := newTestScheduler(q, p, &sleeps{}).Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, 1, q.ackCalls)
}

func TestCancelDuringBackoff(t *testing.T) {
	q := newFakeQueue(1)
	p := &fakePusher{errs: []error{errOffline}}
	ctx, cancel := context.WithCancel(context.Background())

	sched := New(q, p, testConfig(), loggy.NewNoopLogger(), WithClock(time.Now, func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	run, err := sched.Trigger(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateRetry, run.State)
	assert.Zero(t, q.ackCalls)
}

func TestUnmetConstraintDefers(t *testing.T) {
	q := newFakeQueue(1)
	p := &fakePusher{}
	s := &sleeps{}
	network := &fakeConstraint{name: "network", ok: []bool{false, false, true}}

	run, err := newTestScheduler(q, p, s, WithConstraints(network)).Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, run.State)
	assert.Equal(t, 2, run.Deferrals)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, s.delays)
	assert.Equal(t, StateRunning, run.Transitions[0].To, "deferral is not a failure")
}

func TestStartRunsOnStartAndStop(t *testing.T) {
	q := newFakeQueue(1)
	p := &fakePusher{}
	cfg := testConfig()
	cfg.RunOnStart = true

	sched := New(q, p, cfg, loggy.NewNoopLogger())
	require.NoError(t, sched.Start(context.Background()))
	assert.ErrorIs(t, sched.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return sched.Status().Last != nil }, time.Second, 5*time.Millisecond)
	sched.Stop()

	assert.Equal(t, StateSuccess, sched.Status().Last.State)
	assert.Equal(t, 1, p.pushes())
}

func TestInvalidTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateTriggered, StateRunning))
	assert.True(t, CanTransition(StateRetry, StateFailure))
	assert.False(t, CanTransition(StateTriggered, StateSuccess))
	assert.False(t, CanTransition(StateSuccess, StateRunning))
	assert.False(t, CanTransition(StateFailure, StateRetry))

	run := newSyncRun(time.Now())
	assert.ErrorIs(t, run.transition(StateSuccess, "", time.Now()), ErrInvalidTransition)
}

type pushFunc func(context.Context, outbox.Batch) error

func (f pushFunc) Push(ctx context.Context, b outbox.Batch) error { return f(ctx, b) }

type statusErr int

func (e statusErr) Error() string   { return "status error" }
func (e statusErr) HTTPStatus() int { return int(e) }
