package domain_test

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/cookbook/internal/domain"
)

func TestNewRetryPolicy(t *testing.T) {
	t.Run("should fill defaults", func(t *testing.T) {
		p := domain.NewRetryPolicy(0, 0, 0)
		require.Equal(t, 3, p.MaxAttempts)
		require.Equal(t, time.Second, p.BaseDelay)
		require.Equal(t, 8*time.Second, p.CapDelay)
	})

	t.Run("should clamp base to cap", func(t *testing.T) {
		p := domain.NewRetryPolicy(2, 10*time.Second, 4*time.Second)
		require.Equal(t, 4*time.Second, p.BaseDelay)
	})
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := domain.NewRetryPolicy(10, time.Second, 8*time.Second)

	t.Run("should double up to the cap without jitter", func(t *testing.T) {
		expected := []time.Duration{
			time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second,
		}
		for i, want := range expected {
			require.Equal(t, want, p.Delay(i, 0), "retry %d", i)
		}
	})

	t.Run("should shave at most a fifth below the cap", func(t *testing.T) {
		require.Equal(t, 800*time.Millisecond, p.Delay(0, 1))
		require.Equal(t, 3200*time.Millisecond, p.Delay(2, 1))
		require.Equal(t, 8*time.Second, p.Delay(3, 1))
		require.Equal(t, 800*time.Millisecond, p.Delay(0, 7), "jitter is clamped")
	})

	t.Run("should not overflow on huge retry counts", func(t *testing.T) {
		require.Equal(t, 8*time.Second, p.Delay(1000, 0.5))
	})

	t.Run("should never decrease and never exceed the cap", func(t *testing.T) {
		schedule := p.Schedule(nil)
		prev := time.Duration(0)
		for range 50 {
			d := schedule.NextBackOff()
			require.GreaterOrEqual(t, d, prev)
			require.LessOrEqual(t, d, p.CapDelay)
			require.GreaterOrEqual(t, d, 800*time.Millisecond)
			prev = d
		}
	})
}

func TestRetryPolicy_Schedule(t *testing.T) {
	t.Run("should restart after reset", func(t *testing.T) {
		p := domain.NewRetryPolicy(3, 500*time.Millisecond, 2*time.Second)
		schedule := p.Schedule(func() float64 { return 0 })

		require.Equal(t, 500*time.Millisecond, schedule.NextBackOff())
		require.Equal(t, time.Second, schedule.NextBackOff())
		schedule.Reset()
		require.Equal(t, 500*time.Millisecond, schedule.NextBackOff())
	})

	t.Run("should stop after max attempts minus one when bounded", func(t *testing.T) {
		p := domain.NewRetryPolicy(3, time.Second, 8*time.Second)
		b := backoff.WithMaxRetries(p.Schedule(func() float64 { return 0 }), uint64(p.MaxAttempts-1))

		require.Equal(t, time.Second, b.NextBackOff())
		require.Equal(t, 2*time.Second, b.NextBackOff())
		require.Equal(t, backoff.Stop, b.NextBackOff())
	})
}
