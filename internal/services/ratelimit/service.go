// -----------------------------------------------------------------------
// Rate Limiter - Named-class fixed-window request limiting
// -----------------------------------------------------------------------

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/interfaces"
)

// window tracks request counts for one key within the current fixed window
type window struct {
	count    int
	resetsAt time.Time
}

// Service implements a fixed-window rate limiter with named limiter
// classes. Counters live in memory; a background sweep drops lapsed
// windows so idle keys do not accumulate.
type Service struct {
	mu      sync.Mutex
	classes map[string]common.RateLimitConfig
	windows map[string]*window

	logger   arbor.ILogger
	stopOnce sync.Once
	stopCh   chan struct{}

	// now is swapped in tests for deterministic windows
	now func() time.Time
}

// NewService creates the limiter from configured classes. A class with a
// non-positive window is a construction error; a ceiling of zero is valid
// and always denies.
func NewService(logger arbor.ILogger, classes map[string]common.RateLimitConfig, sweepInterval time.Duration) (*Service, error) {
	for name, cfg := range classes {
		if cfg.WindowSeconds <= 0 {
			return nil, fmt.Errorf("rate limiter %q: window must be positive, got %d", name, cfg.WindowSeconds)
		}
		if cfg.Ceiling < 0 {
			return nil, fmt.Errorf("rate limiter %q: ceiling cannot be negative, got %d", name, cfg.Ceiling)
		}
	}

	s := &Service{
		classes: classes,
		windows: make(map[string]*window),
		logger:  logger,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}

	return s, nil
}

// TryAcquire consumes one permit from the named class for the given key.
// When denied, retryAfter is the time remaining until the window resets.
func (s *Service) TryAcquire(name, key string) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.classes[name]
	if !ok {
		s.logger.Warn().Str("limiter", name).Msg("Unknown rate limiter class, denying")
		return false, 0
	}

	windowLen := time.Duration(cfg.WindowSeconds) * time.Second
	now := s.now()
	mapKey := name + "|" + key

	w, ok := s.windows[mapKey]
	if !ok || !now.Before(w.resetsAt) {
		w = &window{resetsAt: now.Add(windowLen)}
		s.windows[mapKey] = w
	}

	if w.count >= cfg.Ceiling {
		return false, w.resetsAt.Sub(now)
	}

	w.count++
	return true, 0
}

// Stop halts the background GC sweep
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Service) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep drops windows whose reset time has passed
func (s *Service) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.resetsAt) {
			delete(s.windows, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Trace().Int("removed", removed).Msg("Rate limiter sweep removed lapsed windows")
	}
}

// tracked returns the number of live windows, for tests and stats
func (s *Service) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

var _ interfaces.RateLimiter = (*Service)(nil)
