package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/tildaslashalef/nutrinest/internal/ulid"
)

// State is a sync run state
type State string

// Run states
const (
	StateTriggered State = "triggered"
	StateRunning   State = "running"
	StateSuccess   State = "success"
	StateRetry     State = "retry"
	StateFailure   State = "failure"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StateTriggered: {StateRunning},
	StateRunning:   {StateSuccess, StateRetry, StateFailure},
	StateRetry:     {StateRunning, StateFailure},
}

// CanTransition checks if a transition from one state to another is valid
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a run
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Transition is a recorded state change
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRun is one execution of the scheduler, from trigger to SUCCESS or
// FAILURE. Runs are not persisted; only the outcome of the last one is.
type SyncRun struct {
	ID          string          `json:"id"`
	State       State           `json:"state"`
	Attempt     int             `json:"attempt"`
	Pushed      int             `json:"pushed"`
	Deferrals   int             `json:"deferrals"`
	Transitions []Transition    `json:"transitions"`
	Delays      []time.Duration `json:"delays,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

func newSyncRun(now time.Time) *SyncRun {
	return &SyncRun{
		ID:        ulid.NewWithTime(now, ulid.PrefixSyncRun).String(),
		State:     StateTriggered,
		StartedAt: now,
	}
}

func (r *SyncRun) transition(to State, reason string, now time.Time) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.Transitions = append(r.Transitions, Transition{From: r.State, To: to, Reason: reason, Timestamp: now})
	r.State = to
	if to.IsTerminal() {
		r.FinishedAt = now
	}
	return nil
}

// Duration returns how long the run took, or has taken so far
func (r *SyncRun) Duration(now time.Time) time.Duration {
	if !r.FinishedAt.IsZero() {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

func (r *SyncRun) clone() *SyncRun {
	c := *r
	c.Transitions = append([]Transition(nil), r.Transitions...)
	c.Delays = append([]time.Duration(nil), r.Delays...)
	return &c
}
