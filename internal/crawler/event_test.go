package crawler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWaitTimesOut(t *testing.T) {
	t.Parallel()

	event := NewEvent()

	start := time.Now()
	assert.False(t, event.Wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEventSetReleasesWaiters(t *testing.T) {
	t.Parallel()

	event := NewEvent()

	var wg sync.WaitGroup

	results := make([]bool, 3)

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = event.Wait(context.Background(), 5*time.Second)
		}()
	}

	event.Set()
	wg.Wait()

	for _, woke := range results {
		assert.True(t, woke)
	}

	// Already-set events do not block at all.
	assert.True(t, event.Wait(context.Background(), 0))
}

func TestEventClearRearms(t *testing.T) {
	t.Parallel()

	event := NewEvent()

	event.Set()
	require.True(t, event.Wait(context.Background(), time.Millisecond))

	event.Clear()
	assert.False(t, event.Wait(context.Background(), time.Millisecond))
}

func TestEventWaitHonoursContext(t *testing.T) {
	t.Parallel()

	event := NewEvent()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, event.Wait(ctx, 5*time.Second))
}

func TestAlignedDelay(t *testing.T) {
	t.Parallel()

	interval := 15 * time.Minute
	delay := alignedDelay(interval)

	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, interval)

	assert.Equal(t, time.Duration(0), alignedDelay(0))
}
