package pace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanDelay(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := HumanDelay(400*time.Millisecond, 800*time.Millisecond)
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
		assert.LessOrEqual(t, d, 800*time.Millisecond)
	}

	// Degenerate window collapses to the minimum.
	assert.Equal(t, 500*time.Millisecond, HumanDelay(500*time.Millisecond, 500*time.Millisecond))
}

func TestHumanSleep(t *testing.T) {
	t.Run("CompletesWithinWindow", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, HumanSleep(context.Background(), 10*time.Millisecond, 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("CancelledContextReturnsEarly", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := HumanSleep(ctx, time.Hour, 2*time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(1000, 1000, 0, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}
