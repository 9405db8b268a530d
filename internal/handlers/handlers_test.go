package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/models"
	storagebadger "github.com/ikemenltd/gasgen/internal/storage/badger"
)

// fakeQueueService records calls so tests can assert what ran.
type fakeQueueService struct {
	dispatchCalls int
	enqueueErr    error
	cancelErr     error
	lastEnqueue   struct {
		subjectID string
		category  string
		priority  int
	}
}

func (f *fakeQueueService) Enqueue(ctx context.Context, subjectID, category string, payload models.JobPayload, priority int) (string, error) {
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	f.lastEnqueue.subjectID = subjectID
	f.lastEnqueue.category = category
	f.lastEnqueue.priority = priority
	return "job-abc", nil
}

func (f *fakeQueueService) DispatchCycle(ctx context.Context, batchSize int) (*models.DispatchResult, error) {
	f.dispatchCalls++
	return &models.DispatchResult{Processed: 2, Failed: 1, Remaining: 3, DurationMs: 42}, nil
}

func (f *fakeQueueService) CancelJob(ctx context.Context, jobID, subjectID string) error {
	return f.cancelErr
}

func (f *fakeQueueService) Stats(ctx context.Context) (*models.QueueStats, error) {
	return &models.QueueStats{Pending: 3, Completed: 7, Total: 10}, nil
}

func (f *fakeQueueService) RecoverStale(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeQueueService) CleanupOldJobs(ctx context.Context) (int, error) { return 0, nil }

type fakeJobStorage struct {
	job *models.Job
}

func (f *fakeJobStorage) SaveJob(ctx context.Context, job *models.Job) error   { return nil }
func (f *fakeJobStorage) UpdateJob(ctx context.Context, job *models.Job) error { return nil }
func (f *fakeJobStorage) DeleteJob(ctx context.Context, id string) error       { return nil }
func (f *fakeJobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if f.job == nil || f.job.ID != id {
		return nil, storagebadger.ErrJobNotFound
	}
	return f.job, nil
}
func (f *fakeJobStorage) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStorage) NextPending(ctx context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStorage) ClaimJob(ctx context.Context, id string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobStorage) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeJobStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobStorage) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	return 0, nil
}
func (f *fakeJobStorage) Stats(ctx context.Context) (*models.QueueStats, error) {
	return &models.QueueStats{}, nil
}

func TestDispatchRejectsBadSecret(t *testing.T) {
	queue := &fakeQueueService{}
	h := NewTriggerHandler(queue, "topsecret", common.GetLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/cron/dispatch", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()

	h.DispatchHandler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, queue.dispatchCalls, "a rejected trigger must not run a cycle")
}

func TestDispatchRejectsMissingHeader(t *testing.T) {
	queue := &fakeQueueService{}
	h := NewTriggerHandler(queue, "topsecret", common.GetLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/cron/dispatch", nil)
	rec := httptest.NewRecorder()

	h.DispatchHandler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, queue.dispatchCalls)
}

func TestDispatchDisabledWithoutSecret(t *testing.T) {
	queue := &fakeQueueService{}
	h := NewTriggerHandler(queue, "", common.GetLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/cron/dispatch", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()

	h.DispatchHandler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, queue.dispatchCalls)
}

func TestDispatchRunsCycle(t *testing.T) {
	queue := &fakeQueueService{}
	h := NewTriggerHandler(queue, "topsecret", common.GetLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/cron/dispatch", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()

	h.DispatchHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, queue.dispatchCalls)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["processed"])
	assert.Equal(t, float64(1), body["failed"])
	assert.Equal(t, float64(3), body["remaining"])
}

func TestDispatchRequiresPost(t *testing.T) {
	queue := &fakeQueueService{}
	h := NewTriggerHandler(queue, "topsecret", common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/cron/dispatch", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()

	h.DispatchHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, queue.dispatchCalls)
}

func TestEnqueueAccepted(t *testing.T) {
	queue := &fakeQueueService{}
	h := NewJobHandler(queue, &fakeJobStorage{}, common.GetLogger())

	body, _ := json.Marshal(map[string]interface{}{
		"subject_id": "U123",
		"category":   "spreadsheet",
		"payload":    map[string]string{"requirements": "sum a column"},
		"priority":   1,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.EnqueueHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-abc", resp["job_id"])
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "U123", queue.lastEnqueue.subjectID)
	assert.Equal(t, "spreadsheet", queue.lastEnqueue.category)
}

func TestEnqueueRejectsBadBody(t *testing.T) {
	h := NewJobHandler(&fakeQueueService{}, &fakeJobStorage{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	h.EnqueueHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobByID(t *testing.T) {
	job := models.NewJob("U123", "generic", models.JobPayload{Requirements: "do things"}, 0, 3)
	h := NewJobHandler(&fakeQueueService{}, &fakeJobStorage{job: job}, common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()

	h.JobByIDHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "U123", got.SubjectID)
}

func TestGetJobNotFound(t *testing.T) {
	h := NewJobHandler(&fakeQueueService{}, &fakeJobStorage{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()

	h.JobByIDHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobRequiresSubject(t *testing.T) {
	h := NewJobHandler(&fakeQueueService{}, &fakeJobStorage{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-abc", nil)
	rec := httptest.NewRecorder()

	h.JobByIDHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	h := NewJobHandler(&fakeQueueService{}, &fakeJobStorage{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-abc?subject=U123", nil)
	rec := httptest.NewRecorder()

	h.JobByIDHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueStats(t *testing.T) {
	h := NewJobHandler(&fakeQueueService{}, &fakeJobStorage{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	rec := httptest.NewRecorder()

	h.StatsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 10, stats.Total)
}

func TestStatusEndpoint(t *testing.T) {
	h := NewStatusHandler(&fakeQueueService{}, nil, nil, "development", common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	h.GetStatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gasgen", body["service"])
	assert.Equal(t, "development", body["environment"])
	require.Contains(t, body, "queue")
}
