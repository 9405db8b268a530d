// -----------------------------------------------------------------------
// Context Cache - Per-subject conversation context caching
// -----------------------------------------------------------------------

package cache

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/models"
)

type entry struct {
	convCtx    *models.ConversationContext
	hits       int
	storedAt   time.Time
	lastAccess time.Time
}

// Service is an in-process TTL cache for assembled conversation contexts.
// Capacity-bounded with hot-entry protection: eviction only considers the
// oldest tenth of the recency queue and picks the candidate with the
// highest age-per-hit score, so frequently used entries survive pressure.
type Service struct {
	mu      sync.Mutex
	entries map[string]*entry
	recency []string // subject IDs, least recently used first

	maxSize         int
	ttl             time.Duration
	warmUpThreshold int
	sweepInterval   time.Duration

	hits      int64
	misses    int64
	evictions int64

	logger   arbor.ILogger
	stopOnce sync.Once
	stopCh   chan struct{}
	started  bool

	// now is swapped in tests for deterministic TTL behavior
	now func() time.Time
}

// NewService creates the cache. Call Start to begin the background TTL
// sweep and Stop to halt it.
func NewService(logger arbor.ILogger, maxSize int, ttl time.Duration, warmUpThreshold int, sweepInterval time.Duration) *Service {
	return &Service{
		entries:         make(map[string]*entry),
		maxSize:         maxSize,
		ttl:             ttl,
		warmUpThreshold: warmUpThreshold,
		sweepInterval:   sweepInterval,
		logger:          logger,
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}
}

// Get returns the cached context for a subject. Expired entries are purged
// and reported absent. A hit counts toward hot status and refreshes the
// entry's recency position.
func (s *Service) Get(subjectID string) (*models.ConversationContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[subjectID]
	if !ok {
		s.misses++
		return nil, false
	}

	now := s.now()
	if now.Sub(e.storedAt) > s.ttl {
		s.removeLocked(subjectID)
		s.misses++
		return nil, false
	}

	e.hits++
	e.lastAccess = now
	s.touchLocked(subjectID)
	s.hits++
	return e.convCtx, true
}

// Put stores a context for a subject, evicting if the cache is full.
func (s *Service) Put(subjectID string, convCtx *models.ConversationContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if existing, ok := s.entries[subjectID]; ok {
		existing.convCtx = convCtx
		existing.storedAt = now
		existing.lastAccess = now
		s.touchLocked(subjectID)
		return
	}

	if len(s.entries) >= s.maxSize {
		s.evictLocked()
	}

	s.entries[subjectID] = &entry{
		convCtx:    convCtx,
		storedAt:   now,
		lastAccess: now,
	}
	s.recency = append(s.recency, subjectID)
}

// Delete removes a subject's cached context
func (s *Service) Delete(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(subjectID)
}

// IsHot returns true when the entry has been hit at least the warm-up
// threshold number of times and has not expired.
func (s *Service) IsHot(subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[subjectID]
	if !ok {
		return false
	}
	if s.now().Sub(e.storedAt) > s.ttl {
		return false
	}
	return e.hits >= s.warmUpThreshold
}

// Stats returns cache occupancy and hit behavior
func (s *Service) Stats() interfaces.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	hotCount := 0
	now := s.now()
	for _, e := range s.entries {
		if now.Sub(e.storedAt) <= s.ttl && e.hits >= s.warmUpThreshold {
			hotCount++
		}
	}

	hitRate := 0.0
	if total := s.hits + s.misses; total > 0 {
		hitRate = float64(s.hits) / float64(total)
	}

	return interfaces.CacheStats{
		Size:      len(s.entries),
		MaxSize:   s.maxSize,
		HotCount:  hotCount,
		Evictions: s.evictions,
		HitRate:   hitRate,
	}
}

// Start begins the background TTL sweep
func (s *Service) Start() {
	s.mu.Lock()
	if s.started || s.sweepInterval <= 0 {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.sweepLoop()
}

// Stop halts the background TTL sweep
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Service) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopCh:
			return
		}
	}
}

// sweepExpired purges entries past their TTL
func (s *Service) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for subjectID, e := range s.entries {
		if now.Sub(e.storedAt) > s.ttl {
			s.removeLocked(subjectID)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Trace().Int("removed", removed).Msg("Cache sweep removed expired contexts")
	}
}

// evictLocked removes one entry to make room. Candidates are the oldest
// tenth of the recency queue; among them the entry with the highest
// age/(hits+1) score goes, keeping hot entries resident.
func (s *Service) evictLocked() {
	if len(s.recency) == 0 {
		return
	}

	candidates := len(s.recency) / 10
	if candidates < 1 {
		candidates = 1
	}

	now := s.now()
	victim := ""
	bestScore := -1.0
	for _, subjectID := range s.recency[:candidates] {
		e, ok := s.entries[subjectID]
		if !ok {
			continue
		}
		score := now.Sub(e.lastAccess).Seconds() / float64(e.hits+1)
		if score > bestScore {
			bestScore = score
			victim = subjectID
		}
	}

	if victim != "" {
		s.removeLocked(victim)
		s.evictions++
		s.logger.Trace().Str("subject_id", victim).Msg("Evicted cached context")
	}
}

// touchLocked moves a subject to the most recent end of the queue
func (s *Service) touchLocked(subjectID string) {
	for i, id := range s.recency {
		if id == subjectID {
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			break
		}
	}
	s.recency = append(s.recency, subjectID)
}

func (s *Service) removeLocked(subjectID string) {
	if _, ok := s.entries[subjectID]; !ok {
		return
	}
	delete(s.entries, subjectID)
	for i, id := range s.recency {
		if id == subjectID {
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			break
		}
	}
}

var _ interfaces.ContextCache = (*Service)(nil)
