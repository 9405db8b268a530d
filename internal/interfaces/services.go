// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/ikemenltd/gasgen/internal/models"
)

// QueueService accepts jobs and runs dispatch cycles over them.
type QueueService interface {
	// Enqueue validates and persists a pending job, returning its ID.
	Enqueue(ctx context.Context, subjectID, category string, payload models.JobPayload, priority int) (string, error)

	// DispatchCycle claims up to batchSize pending jobs and runs them through
	// the generation pipeline. At most one cycle runs at a time; an
	// overlapping call returns a no-op result with Skipped set.
	DispatchCycle(ctx context.Context, batchSize int) (*models.DispatchResult, error)

	// CancelJob deletes a pending job owned by the given subject.
	CancelJob(ctx context.Context, jobID, subjectID string) error

	// Stats returns per-status job counts.
	Stats(ctx context.Context) (*models.QueueStats, error)

	// RecoverStale returns long-running processing jobs to pending.
	RecoverStale(ctx context.Context) (int, error)

	// CleanupOldJobs deletes terminal jobs past the retention window.
	CleanupOldJobs(ctx context.Context) (int, error)
}

// RateLimiter is a named-class fixed-window limiter.
type RateLimiter interface {
	// TryAcquire consumes one permit from the named class for the given key.
	// When denied, retryAfter is the time until the window resets.
	TryAcquire(name, key string) (allowed bool, retryAfter time.Duration)

	// Stop halts the background GC sweep.
	Stop()
}

// ContextCache caches assembled conversation contexts per subject.
type ContextCache interface {
	Get(subjectID string) (*models.ConversationContext, bool)
	Put(subjectID string, convCtx *models.ConversationContext)
	Delete(subjectID string)
	IsHot(subjectID string) bool
	Stats() CacheStats

	// Start begins the background TTL sweep; Stop halts it.
	Start()
	Stop()
}

// CacheStats reports cache occupancy and hit behavior.
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HotCount  int     `json:"hot_count"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// ScheduledJobStatus represents the current status of a scheduled job
type ScheduledJobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	LastError string
}

// SchedulerService manages cron-based background tasks
type SchedulerService interface {
	// Start begins running registered jobs
	Start() error

	// Stop halts the scheduler
	Stop() error

	// RegisterJob registers a new job with the scheduler
	RegisterJob(name string, schedule string, handler func() error) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*ScheduledJobStatus, error)

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*ScheduledJobStatus
}
