package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/models"
)

// ErrJobNotFound is returned when the requested job does not exist
var ErrJobNotFound = errors.New("job not found")

// errNotClaimable signals a lost claim race inside the claim transaction
var errNotClaimable = errors.New("job not claimable")

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	// Dereference to keep a consistent stored type; badgerhold uses the
	// type name as the key prefix and *Job vs Job would diverge.
	if err := s.db.Store().Upsert(job.ID, *job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("BadgerDB: Failed to upsert job")
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Trace().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Msg("BadgerDB: Job saved")
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	return s.SaveJob(ctx, job)
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStorage) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	var query *badgerhold.Query
	if status != "" {
		query = badgerhold.Where("Status").Eq(status).Index("Status")
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	// Newest first
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// NextPending returns up to limit pending jobs ordered by priority asc
// then creation time asc. Sorting happens in memory; pending volume is
// bounded by the dispatch batch cadence.
func (s *JobStorage) NextPending(ctx context.Context, limit int) ([]*models.Job, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusPending).Index("Status")
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority < jobs[j].Priority
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ClaimJob atomically transitions a pending job to processing inside a
// single Badger transaction. Returns nil when another claimer won the
// race or the job left pending in the meantime.
//
// Badger aborts a transaction when any key it read was committed by
// someone else in the meantime, and status index records are shared
// across jobs, so an unrelated job finishing can conflict this claim.
// A conflict only means the read snapshot went stale; the CAS itself
// stays valid, so the transaction re-runs against the new state.
func (s *JobStorage) ClaimJob(ctx context.Context, id string) (*models.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		claimed, err := s.tryClaim(id)
		if errors.Is(err, badgerdb.ErrConflict) {
			s.logger.Trace().Str("job_id", id).Msg("BadgerDB: Claim transaction conflicted, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, errNotClaimable) {
				s.logger.Trace().Str("job_id", id).Msg("BadgerDB: Claim lost, job no longer pending")
				return nil, nil
			}
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}

		s.logger.Trace().Str("job_id", id).Msg("BadgerDB: Job claimed")
		return claimed, nil
	}
}

func (s *JobStorage) tryClaim(id string) (*models.Job, error) {
	var claimed models.Job

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(tx, id, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return errNotClaimable
			}
			return err
		}

		if job.Status != models.JobStatusPending {
			return errNotClaimable
		}

		job.MarkStarted()
		if err := s.db.Store().TxUpdate(tx, id, job); err != nil {
			return err
		}

		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// ResetStale returns processing jobs started before the cutoff to pending.
// Retry counts are left untouched; a crashed worker is not the job's fault.
func (s *JobStorage) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	threshold := time.Now().Add(-olderThan)

	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusProcessing).Index("Status")
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return 0, fmt.Errorf("failed to find processing jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		job := &jobs[i]
		if job.StartedAt == nil || job.StartedAt.After(threshold) {
			continue
		}

		job.Requeue()
		if err := s.db.Store().Upsert(job.ID, *job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reset stale job")
			continue
		}
		count++
	}

	if count > 0 {
		s.logger.Info().Int("count", count).Msg("Reset stale processing jobs to pending")
	}
	return count, nil
}

// DeleteTerminalBefore removes completed and failed jobs finished before
// the cutoff and reports how many were deleted.
func (s *JobStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	count := 0
	for _, status := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed} {
		var jobs []models.Job
		query := badgerhold.Where("Status").Eq(status).Index("Status")
		if err := s.db.Store().Find(&jobs, query); err != nil {
			return count, fmt.Errorf("failed to find %s jobs: %w", status, err)
		}

		for i := range jobs {
			job := &jobs[i]
			if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
				continue
			}
			if err := s.db.Store().Delete(job.ID, &models.Job{}); err != nil && err != badgerhold.ErrNotFound {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to delete old job")
				continue
			}
			count++
		}
	}

	return count, nil
}

func (s *JobStorage) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(status).Index("Status"))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

func (s *JobStorage) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}

	for _, entry := range []struct {
		status models.JobStatus
		target *int
	}{
		{models.JobStatusPending, &stats.Pending},
		{models.JobStatusProcessing, &stats.Processing},
		{models.JobStatusCompleted, &stats.Completed},
		{models.JobStatusFailed, &stats.Failed},
	} {
		count, err := s.CountByStatus(ctx, entry.status)
		if err != nil {
			return nil, err
		}
		*entry.target = count
	}

	stats.Total = stats.Pending + stats.Processing + stats.Completed + stats.Failed
	return stats, nil
}
