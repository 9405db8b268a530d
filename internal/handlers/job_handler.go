package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/models"
	storagebadger "github.com/ikemenltd/gasgen/internal/storage/badger"
)

// JobHandler handles HTTP requests for job intake and inspection
type JobHandler struct {
	queueService interfaces.QueueService
	jobStorage   interfaces.JobStorage
	logger       arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(queueService interfaces.QueueService, jobStorage interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queueService: queueService,
		jobStorage:   jobStorage,
		logger:       logger,
	}
}

// enqueueRequest is the POST /api/jobs body
type enqueueRequest struct {
	SubjectID string            `json:"subject_id"`
	Category  string            `json:"category"`
	Payload   models.JobPayload `json:"payload"`
	Priority  int               `json:"priority"`
}

// EnqueueHandler handles POST /api/jobs. The job is accepted for later
// dispatch, not processed inline, so the response is 202.
func (h *JobHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	jobID, err := h.queueService.Enqueue(r.Context(), req.SubjectID, req.Category, req.Payload, req.Priority)
	if err != nil {
		h.logger.Warn().Err(err).Str("subject_id", req.SubjectID).Msg("Enqueue rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(models.JobStatusPending),
	})
}

// JobByIDHandler handles GET and DELETE on /api/jobs/{id}
func (h *JobHandler) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getJob(w, r, jobID)
	case http.MethodDelete:
		h.cancelJob(w, r, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobStorage.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storagebadger.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	subjectID := r.URL.Query().Get("subject")
	if subjectID == "" {
		WriteError(w, http.StatusBadRequest, "subject query parameter is required")
		return
	}

	if err := h.queueService.CancelJob(r.Context(), jobID, subjectID); err != nil {
		if errors.Is(err, storagebadger.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteSuccess(w, "Job cancelled")
}

// StatsHandler handles GET /api/queue/stats
func (h *JobHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.queueService.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load queue stats")
		WriteError(w, http.StatusInternalServerError, "Failed to load queue stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
