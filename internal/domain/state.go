package domain

import (
	"context"

	"github.com/davidbz/cookbook/internal/observability"
)

// CallState is the lifecycle position of one logical call.
type CallState string

const (
	StateIdle           CallState = "idle"
	StateEncoding       CallState = "encoding"
	StateInFlight       CallState = "in_flight"
	StateSucceeded      CallState = "succeeded"
	StateFailedTerminal CallState = "failed_terminal"
)

// Retries stay inside StateInFlight; the transport owns that loop.
//
//nolint:gochecknoglobals // read-only transition table
var callTransitions = map[CallState][]CallState{
	StateIdle:     {StateEncoding},
	StateEncoding: {StateInFlight, StateFailedTerminal},
	StateInFlight: {StateSucceeded, StateFailedTerminal},
}

// CanTransition reports whether next may follow s.
func (s CallState) CanTransition(next CallState) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool {
	return s == StateSucceeded || s == StateFailedTerminal
}

// CallTracker follows one logical call through its states. It is not safe
// for concurrent use; each call owns its tracker.
type CallTracker struct {
	ctx   context.Context
	state CallState
}

// NewCallTracker starts a tracker in StateIdle.
func NewCallTracker(ctx context.Context) *CallTracker {
	return &CallTracker{ctx: ctx, state: StateIdle}
}

// State returns the current state.
func (t *CallTracker) State() CallState {
	return t.state
}

// Advance moves to next. An invalid transition is reported with DPanic and
// leaves the state unchanged.
func (t *CallTracker) Advance(next CallState) bool {
	logger := observability.FromContext(t.ctx)

	if !t.state.CanTransition(next) {
		logger.DPanic("invalid call state transition",
			observability.String("from", string(t.state)),
			observability.String("to", string(next)))
		return false
	}

	logger.Debug("call state changed",
		observability.String("from", string(t.state)),
		observability.String("to", string(next)))
	t.state = next

	return true
}
