// -----------------------------------------------------------------------
// Job Queue - Enqueue and batch dispatch of code-generation jobs
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/models"
)

// Service coordinates job intake and dispatch cycles. A cycle claims a
// batch of pending jobs and runs each through the generation pipeline on
// a bounded worker pool, under a wall-clock budget.
type Service struct {
	storage   interfaces.JobStorage
	limiter   interfaces.RateLimiter
	cache     interfaces.ContextCache
	generator interfaces.Generator
	messenger interfaces.Messenger
	logger    arbor.ILogger

	batchSize    int
	concurrency  int
	maxRetries   int
	cycleBudget  time.Duration
	gracePeriod  time.Duration
	staleAfter   time.Duration
	retention    time.Duration
	maxFrameSize int

	mu      sync.Mutex
	running bool
}

// NewService creates the queue service from configuration
func NewService(
	logger arbor.ILogger,
	storage interfaces.JobStorage,
	limiter interfaces.RateLimiter,
	cache interfaces.ContextCache,
	generator interfaces.Generator,
	messenger interfaces.Messenger,
	config *common.Config,
) *Service {
	return &Service{
		storage:      storage,
		limiter:      limiter,
		cache:        cache,
		generator:    generator,
		messenger:    messenger,
		logger:       logger,
		batchSize:    config.Queue.BatchSize,
		concurrency:  config.Queue.Concurrency,
		maxRetries:   config.Queue.MaxRetries,
		cycleBudget:  common.Duration(config.Queue.CycleBudget, 30*time.Second),
		gracePeriod:  common.Duration(config.Queue.GracePeriod, 10*time.Second),
		staleAfter:   common.Duration(config.Queue.StaleAfter, 5*time.Minute),
		retention:    common.Duration(config.Queue.Retention, 7*24*time.Hour),
		maxFrameSize: config.Line.MaxFrameSize,
	}
}

// Enqueue validates and persists a new pending job, returning its ID.
func (s *Service) Enqueue(ctx context.Context, subjectID, category string, payload models.JobPayload, priority int) (string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", fmt.Errorf("subject ID is required")
	}

	job := models.NewJob(subjectID, category, payload, priority, s.maxRetries)
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("invalid job: %w", err)
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("subject_id", subjectID).
		Str("category", job.Category).
		Int("priority", priority).
		Msg("Job enqueued")

	return job.ID, nil
}

// DispatchCycle claims up to batchSize pending jobs and runs their
// pipelines. At most one cycle is active at a time; an overlapping call
// is a no-op. Claiming stops once the cycle budget lapses; in-flight
// pipelines then get the grace period to reach a terminal state.
func (s *Service) DispatchCycle(ctx context.Context, batchSize int) (*models.DispatchResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("Dispatch cycle already active, skipping")
		return &models.DispatchResult{Skipped: true}, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	start := time.Now()
	budgetEnds := start.Add(s.cycleBudget)

	jobs, err := s.storage.NextPending(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}

	s.logger.Info().
		Int("batch", len(jobs)).
		Int("concurrency", s.concurrency).
		Msg("Dispatch cycle started")

	// In-flight pipelines may run past the budget, but not past the grace
	pipeCtx, cancel := context.WithDeadline(ctx, budgetEnds.Add(s.gracePeriod))
	defer cancel()

	var processed, failed int64
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		if time.Now().After(budgetEnds) {
			s.logger.Warn().
				Dur("elapsed", time.Since(start)).
				Msg("Cycle budget exceeded, leaving remaining jobs pending")
			break
		}

		claimed, err := s.storage.ClaimJob(ctx, job.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to claim job")
			continue
		}
		if claimed == nil {
			// Another claimer won the race
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(job *models.Job) {
			defer wg.Done()
			defer func() { <-sem }()

			switch s.runPipeline(pipeCtx, job) {
			case outcomeCompleted:
				atomic.AddInt64(&processed, 1)
			case outcomeFailed:
				atomic.AddInt64(&failed, 1)
			}
		}(claimed)
	}

	wg.Wait()

	remaining, err := s.storage.CountByStatus(ctx, models.JobStatusPending)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count remaining jobs")
	}

	result := &models.DispatchResult{
		Processed:  int(atomic.LoadInt64(&processed)),
		Failed:     int(atomic.LoadInt64(&failed)),
		Remaining:  remaining,
		DurationMs: time.Since(start).Milliseconds(),
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("remaining", result.Remaining).
		Int64("duration_ms", result.DurationMs).
		Msg("Dispatch cycle finished")

	return result, nil
}

// CancelJob deletes a pending job owned by the given subject
func (s *Service) CancelJob(ctx context.Context, jobID, subjectID string) error {
	job, err := s.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.SubjectID != subjectID {
		return fmt.Errorf("job %s does not belong to subject %s", jobID, subjectID)
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("job %s is %s and can no longer be cancelled", jobID, job.Status)
	}

	if err := s.storage.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	s.logger.Info().Str("job_id", jobID).Str("subject_id", subjectID).Msg("Job cancelled")
	return nil
}

// Stats returns per-status job counts
func (s *Service) Stats(ctx context.Context) (*models.QueueStats, error) {
	return s.storage.Stats(ctx)
}

// RecoverStale returns processing jobs older than the stale threshold to
// pending. Run periodically; a crashed cycle must not strand its claims.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	return s.storage.ResetStale(ctx, s.staleAfter)
}

// CleanupOldJobs deletes terminal jobs past the retention window
func (s *Service) CleanupOldJobs(ctx context.Context) (int, error) {
	count, err := s.storage.DeleteTerminalBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int("count", count).Msg("Deleted old terminal jobs")
	}
	return count, nil
}

var _ interfaces.QueueService = (*Service)(nil)
