package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/observability"
)

func TestCallState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.CallState
		allowed  bool
	}{
		{domain.StateIdle, domain.StateEncoding, true},
		{domain.StateEncoding, domain.StateInFlight, true},
		{domain.StateEncoding, domain.StateFailedTerminal, true},
		{domain.StateInFlight, domain.StateSucceeded, true},
		{domain.StateInFlight, domain.StateFailedTerminal, true},
		{domain.StateIdle, domain.StateInFlight, false},
		{domain.StateEncoding, domain.StateSucceeded, false},
		{domain.StateSucceeded, domain.StateInFlight, false},
		{domain.StateFailedTerminal, domain.StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestCallTracker(t *testing.T) {
	t.Run("should walk a successful call", func(t *testing.T) {
		tracker := domain.NewCallTracker(context.Background())
		require.Equal(t, domain.StateIdle, tracker.State())

		require.True(t, tracker.Advance(domain.StateEncoding))
		require.True(t, tracker.Advance(domain.StateInFlight))
		require.True(t, tracker.Advance(domain.StateSucceeded))
		require.True(t, tracker.State().Terminal())
	})

	t.Run("should report an invalid transition and keep the state", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		observability.SetLogger(zap.New(core))
		t.Cleanup(func() { observability.SetLogger(nil) })

		tracker := domain.NewCallTracker(observability.WithRequestID(context.Background(), "req-1"))
		require.False(t, tracker.Advance(domain.StateSucceeded))
		require.Equal(t, domain.StateIdle, tracker.State())

		entries := logs.FilterMessage("invalid call state transition").All()
		require.Len(t, entries, 1)
		require.Equal(t, zapcore.DPanicLevel, entries[0].Level)
		require.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	})

	t.Run("should panic under a development logger", func(t *testing.T) {
		core, _ := observer.New(zapcore.DebugLevel)
		observability.SetLogger(zap.New(core, zap.Development()))
		t.Cleanup(func() { observability.SetLogger(nil) })

		tracker := domain.NewCallTracker(context.Background())
		require.Panics(t, func() { tracker.Advance(domain.StateFailedTerminal) })
	})
}
