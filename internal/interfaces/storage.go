package interfaces

import (
	"context"
	"time"

	"github.com/ikemenltd/gasgen/internal/models"
)

// JobStorage - interface for job persistence
type JobStorage interface {
	// CRUD operations
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	// Dispatch operations
	// NextPending returns up to limit pending jobs ordered by priority then age.
	NextPending(ctx context.Context, limit int) ([]*models.Job, error)
	// ClaimJob atomically transitions a pending job to processing. Returns
	// the claimed job, or nil when another claimer won the race.
	ClaimJob(ctx context.Context, id string) (*models.Job, error)

	// Maintenance operations
	// ResetStale returns processing jobs started before the cutoff to pending
	// and reports how many were reset.
	ResetStale(ctx context.Context, olderThan time.Duration) (int, error)
	// DeleteTerminalBefore removes completed and failed jobs finished before
	// the cutoff and reports how many were deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Stats operations
	CountByStatus(ctx context.Context, status models.JobStatus) (int, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	DB() interface{}
	Close() error
}
