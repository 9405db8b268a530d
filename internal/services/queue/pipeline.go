package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/models"
	"github.com/ikemenltd/gasgen/internal/services/chunker"
	"github.com/ikemenltd/gasgen/internal/services/llm"
)

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeRequeued
)

// User-facing notices pushed over LINE. The service serves Japanese
// subscribers; raw error text never reaches them.
const (
	apologyMessage = "申し訳ありません。コード生成に失敗しました。しばらくしてからもう一度お試しください。"
	warningMessage = "注意: 生成されたコードは自動検証を通過していません。実行前に内容をご確認ください。"
)

// runPipeline drives one claimed job to an outcome: rate-limit permits,
// context assembly, generation, validation, chunked delivery, completion.
func (s *Service) runPipeline(ctx context.Context, job *models.Job) outcome {
	// Backpressure: both the global generation limiter and the per-subject
	// limiter must grant a permit before any expensive work starts.
	if allowed, retryAfter := s.limiter.TryAcquire(common.LimiterGeneration, "global"); !allowed {
		return s.requeueBackpressure(ctx, job, common.LimiterGeneration, retryAfter)
	}
	if allowed, retryAfter := s.limiter.TryAcquire(common.LimiterUser, job.SubjectID); !allowed {
		return s.requeueBackpressure(ctx, job, common.LimiterUser, retryAfter)
	}

	convCtx := s.assembleContext(job)

	artifact, err := s.generator.Generate(ctx, convCtx)
	if err != nil {
		if errors.Is(err, llm.ErrMalformedRequest) {
			// Retrying the same input cannot succeed
			return s.failTerminal(ctx, job, err)
		}
		if ctx.Err() != nil {
			// The cycle budget ran out, not the job's fault
			return s.requeueBackpressure(ctx, job, "cycle-budget", 0)
		}
		return s.retryOrFail(ctx, job, err)
	}

	if err := llm.ValidateArtifact(artifact); err != nil {
		if !job.RetriesExhausted() {
			return s.retryOrFail(ctx, job, fmt.Errorf("artifact validation failed: %w", err))
		}
		// Retry budget is gone: deliver what we have, flagged, rather
		// than silently swallowing the work.
		job.Warning = true
		job.LastError = fmt.Sprintf("artifact validation failed: %v", err)
		s.logger.Warn().
			Str("job_id", job.ID).
			Err(err).
			Msg("Validation kept failing, delivering best-effort with warning")
	}

	frames := chunker.Split(artifact, s.maxFrameSize)
	if job.Warning {
		frames = appendAnnotation(frames, warningMessage)
	}

	for _, frame := range frames {
		if err := s.messenger.Send(ctx, job.SubjectID, frame); err != nil {
			// A partial delivery retries as a whole; frames are ordered
			// and the next attempt resends from the start.
			return s.retryOrFail(ctx, job, fmt.Errorf("delivery failed at frame %d/%d: %w", frame.Index, frame.Total, err))
		}
	}

	job.MarkCompleted()
	if err := s.storage.UpdateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist completed job")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("subject_id", job.SubjectID).
		Int("frames", len(frames)).
		Bool("warning", job.Warning).
		Msg("Job completed")
	return outcomeCompleted
}

// assembleContext returns the subject's conversation context, reusing
// the cached assembly when present and rebuilding it from the job
// payload otherwise. The current job's requirements always override the
// cached snapshot's.
func (s *Service) assembleContext(job *models.Job) *models.ConversationContext {
	if cached, ok := s.cache.Get(job.SubjectID); ok {
		fresh := *cached
		fresh.Category = job.Category
		fresh.Requirements = job.Payload.Requirements
		return &fresh
	}

	convCtx := &models.ConversationContext{
		SubjectID:    job.SubjectID,
		Category:     job.Category,
		Requirements: job.Payload.Requirements,
		Messages:     job.Payload.History,
		BuiltAt:      time.Now(),
	}
	s.cache.Put(job.SubjectID, convCtx)
	return convCtx
}

// requeueBackpressure returns the job to pending without consuming retry
// budget. Deferral is not failure.
func (s *Service) requeueBackpressure(ctx context.Context, job *models.Job, reason string, retryAfter time.Duration) outcome {
	job.Requeue()
	if err := s.storage.UpdateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job")
		return outcomeFailed
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("reason", reason).
		Dur("retry_after", retryAfter).
		Msg("Job deferred under backpressure")
	return outcomeRequeued
}

// retryOrFail consumes one retry, or fails the job terminally when the
// budget is exhausted.
func (s *Service) retryOrFail(ctx context.Context, job *models.Job, cause error) outcome {
	if job.RetriesExhausted() {
		return s.failTerminal(ctx, job, cause)
	}

	job.RequeueForRetry(cause.Error())
	if err := s.storage.UpdateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job for retry")
		return outcomeFailed
	}

	s.logger.Warn().
		Str("job_id", job.ID).
		Int("retry_count", job.RetryCount).
		Int("max_retries", job.MaxRetries).
		Err(cause).
		Msg("Job requeued for retry")
	return outcomeRequeued
}

// failTerminal marks the job failed and notifies the subject with a
// generic apology. Raw error text stays in the job record.
func (s *Service) failTerminal(ctx context.Context, job *models.Job, cause error) outcome {
	job.MarkFailed(cause.Error())
	if err := s.storage.UpdateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist failed job")
	}

	apology := models.MessageFrame{Index: 1, Total: 1, Text: apologyMessage}
	if err := s.messenger.Send(ctx, job.SubjectID, apology); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to deliver apology message")
	}

	s.logger.Error().
		Str("job_id", job.ID).
		Str("subject_id", job.SubjectID).
		Err(cause).
		Msg("Job failed terminally")
	return outcomeFailed
}

// appendAnnotation adds a trailing annotation frame and renumbers totals
func appendAnnotation(frames []models.MessageFrame, text string) []models.MessageFrame {
	frames = append(frames, models.MessageFrame{Text: text})
	total := len(frames)
	for i := range frames {
		frames[i].Index = i + 1
		frames[i].Total = total
	}
	return frames
}
