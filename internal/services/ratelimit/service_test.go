package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/common"
)

func newTestService(t *testing.T, classes map[string]common.RateLimitConfig) *Service {
	t.Helper()
	s, err := NewService(arbor.NewLogger(), classes, 0)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestFixedWindowCeiling(t *testing.T) {
	s := newTestService(t, map[string]common.RateLimitConfig{
		"generation": {WindowSeconds: 60, Ceiling: 3},
	})

	base := time.Now()
	s.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		allowed, _ := s.TryAcquire("generation", "user-1")
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter := s.TryAcquire("generation", "user-1")
	assert.False(t, allowed)
	assert.Equal(t, 60*time.Second, retryAfter)

	// A different key has its own window
	allowed, _ = s.TryAcquire("generation", "user-2")
	assert.True(t, allowed)

	// Partway through the window the retry hint shrinks
	s.now = func() time.Time { return base.Add(45 * time.Second) }
	allowed, retryAfter = s.TryAcquire("generation", "user-1")
	assert.False(t, allowed)
	assert.Equal(t, 15*time.Second, retryAfter)

	// After the window lapses the counter resets
	s.now = func() time.Time { return base.Add(61 * time.Second) }
	allowed, _ = s.TryAcquire("generation", "user-1")
	assert.True(t, allowed)
}

func TestZeroCeilingAlwaysDenies(t *testing.T) {
	s := newTestService(t, map[string]common.RateLimitConfig{
		"frozen": {WindowSeconds: 60, Ceiling: 0},
	})

	for i := 0; i < 5; i++ {
		allowed, retryAfter := s.TryAcquire("frozen", "anyone")
		assert.False(t, allowed)
		assert.Greater(t, retryAfter, time.Duration(0))
	}
}

func TestInvalidWindowRejectedAtConstruction(t *testing.T) {
	_, err := NewService(arbor.NewLogger(), map[string]common.RateLimitConfig{
		"bad": {WindowSeconds: 0, Ceiling: 10},
	}, 0)
	require.Error(t, err)

	_, err = NewService(arbor.NewLogger(), map[string]common.RateLimitConfig{
		"bad": {WindowSeconds: 60, Ceiling: -1},
	}, 0)
	require.Error(t, err)
}

func TestUnknownClassDenied(t *testing.T) {
	s := newTestService(t, map[string]common.RateLimitConfig{
		"api": {WindowSeconds: 60, Ceiling: 10},
	})

	allowed, _ := s.TryAcquire("nonexistent", "user-1")
	assert.False(t, allowed)
}

func TestSweepRemovesLapsedWindows(t *testing.T) {
	s := newTestService(t, map[string]common.RateLimitConfig{
		"api": {WindowSeconds: 1, Ceiling: 10},
	})

	base := time.Now()
	s.now = func() time.Time { return base }

	s.TryAcquire("api", "a")
	s.TryAcquire("api", "b")
	assert.Equal(t, 2, s.tracked())

	s.now = func() time.Time { return base.Add(2 * time.Second) }
	s.sweep()
	assert.Equal(t, 0, s.tracked())
}

func TestConcurrentAcquisition(t *testing.T) {
	s := newTestService(t, map[string]common.RateLimitConfig{
		"api": {WindowSeconds: 60, Ceiling: 50},
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := s.TryAcquire("api", "shared"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowedCount)
}
