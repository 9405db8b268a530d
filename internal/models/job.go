// -----------------------------------------------------------------------
// Job - Persisted code-generation job record
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ikemenltd/gasgen/internal/common"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Known generation categories. Unknown categories fall back to
// CategoryGeneric at enqueue time rather than being rejected.
const (
	CategorySpreadsheet = "spreadsheet"
	CategoryGmail       = "gmail"
	CategoryCalendar    = "calendar"
	CategoryAPI         = "api"
	CategoryGeneric     = "generic"
)

// KnownCategories lists the categories with dedicated context templates.
var KnownCategories = map[string]bool{
	CategorySpreadsheet: true,
	CategoryGmail:       true,
	CategoryCalendar:    true,
	CategoryAPI:         true,
	CategoryGeneric:     true,
}

// JobPayload carries the user's generation request.
type JobPayload struct {
	Requirements string        `json:"requirements"`      // Free-text requirement description
	History      []ChatMessage `json:"history,omitempty"` // Prior conversation turns, oldest first
}

// Job represents a code-generation job stored in the database.
// Status transitions: pending -> processing -> completed | failed.
// A processing job may return to pending on backpressure or stale-claim
// recovery; retry counting only advances on real processing failures.
type Job struct {
	ID        string     `json:"id" badgerhold:"key"`
	SubjectID string     `json:"subject_id" badgerhold:"index"`
	Category  string     `json:"category"`
	Payload   JobPayload `json:"payload"`
	Priority  int        `json:"priority"` // Lower value dispatches first

	Status     JobStatus `json:"status" badgerhold:"index"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	LastError  string    `json:"last_error,omitempty"`

	// Warning is set when the artifact was delivered best-effort after
	// validation kept failing through the whole retry budget.
	Warning bool `json:"warning,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for the given subject. Unknown categories
// are normalized to generic so a bad client value cannot strand a request.
func NewJob(subjectID, category string, payload JobPayload, priority, maxRetries int) *Job {
	category = strings.ToLower(strings.TrimSpace(category))
	if !KnownCategories[category] {
		category = CategoryGeneric
	}

	return &Job{
		ID:         common.NewJobID(),
		SubjectID:  subjectID,
		Category:   category,
		Payload:    payload,
		Priority:   priority,
		Status:     JobStatusPending,
		RetryCount: 0,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}
}

// Validate validates the job before it is accepted into the queue
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.SubjectID == "" {
		return fmt.Errorf("subject ID is required")
	}
	if strings.TrimSpace(j.Payload.Requirements) == "" {
		return fmt.Errorf("requirements text is required")
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// MarkStarted marks the job as claimed by a dispatch cycle
func (j *Job) MarkStarted() {
	j.Status = JobStatusProcessing
	now := time.Now()
	j.StartedAt = &now
}

// MarkCompleted marks the job as completed. A clean completion clears
// the error trail; a best-effort completion keeps LastError because the
// Warning flag points at it as the reason.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	now := time.Now()
	j.CompletedAt = &now
	if !j.Warning {
		j.LastError = ""
	}
}

// MarkFailed marks the job as terminally failed with an error message
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.LastError = errorMsg
	now := time.Now()
	j.CompletedAt = &now
}

// Requeue returns the job to pending without consuming retry budget.
// Used for backpressure and stale-claim recovery.
func (j *Job) Requeue() {
	j.Status = JobStatusPending
	j.StartedAt = nil
}

// RequeueForRetry returns the job to pending and consumes one retry.
func (j *Job) RequeueForRetry(errorMsg string) {
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.RetryCount++
	j.LastError = errorMsg
}

// RetriesExhausted returns true when another retry would exceed the budget
func (j *Job) RetriesExhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
