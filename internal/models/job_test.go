package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lifecycleJob() *Job {
	return NewJob("user-1", CategorySpreadsheet, JobPayload{
		Requirements: "sum column B into a totals row",
	}, 1, 3)
}

func TestNewJobNormalizesCategory(t *testing.T) {
	job := NewJob("user-1", "  Spreadsheet ", JobPayload{Requirements: "x"}, 1, 3)
	assert.Equal(t, CategorySpreadsheet, job.Category)

	job = NewJob("user-1", "bogus", JobPayload{Requirements: "x"}, 1, 3)
	assert.Equal(t, CategoryGeneric, job.Category)
}

func TestJobLifecycleTransitions(t *testing.T) {
	job := lifecycleJob()
	require.NoError(t, job.Validate())
	assert.Equal(t, JobStatusPending, job.Status)
	assert.False(t, job.IsTerminal())

	job.MarkStarted()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.StartedAt)

	// Requeue returns to pending without touching the retry budget
	job.Requeue()
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Equal(t, 0, job.RetryCount)

	job.MarkStarted()
	job.RequeueForRetry("generation timed out")
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "generation timed out", job.LastError)
	assert.False(t, job.RetriesExhausted())

	job.MarkStarted()
	job.MarkCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.True(t, job.IsTerminal())
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.LastError, "clean completion clears the error trail")
}

func TestMarkCompletedKeepsErrorForBestEffortDelivery(t *testing.T) {
	job := lifecycleJob()
	job.MarkStarted()
	job.Warning = true
	job.LastError = "artifact validation failed: no function declaration found"

	job.MarkCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.True(t, job.Warning)
	assert.Equal(t, "artifact validation failed: no function declaration found", job.LastError,
		"the warning flag points at LastError, so completion must not erase it")
}

func TestMarkFailedRecordsError(t *testing.T) {
	job := lifecycleJob()
	job.MarkStarted()
	job.MarkFailed("backend rejected request")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "backend rejected request", job.LastError)
	assert.NotNil(t, job.CompletedAt)
	assert.True(t, job.IsTerminal())
}
