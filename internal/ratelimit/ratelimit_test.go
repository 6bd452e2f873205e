package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_UnderLimit(t *testing.T) {
	l := New(3, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 3, l.Live())
}

func TestAcquire_WaitsForOldestToExpire(t *testing.T) {
	window := 150 * time.Millisecond
	l := New(2, window)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	assert.GreaterOrEqual(t, time.Since(start), window-10*time.Millisecond)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Live())
}

func TestAcquire_NeverExceedsWindow(t *testing.T) {
	window := 200 * time.Millisecond
	l := New(3, window)
	ctx := context.Background()

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, starts, 9)
	for _, s := range starts {
		inWindow := 0
		for _, o := range starts {
			if !o.Before(s) && o.Sub(s) < window-30*time.Millisecond {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, 3)
	}
}

func TestPrune_WithFakeClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.Zero(t, l.tryAcquire())
	assert.Zero(t, l.tryAcquire())

	now = now.Add(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.tryAcquire())

	now = now.Add(41 * time.Second)
	assert.Zero(t, l.tryAcquire())
	assert.Equal(t, 1, l.Live())
}

func TestNew_PanicsOnInvalidArgs(t *testing.T) {
	assert.Panics(t, func() { New(0, time.Second) })
	assert.Panics(t, func() { New(1, 0) })
}
