package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/interfaces"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	queueService interfaces.QueueService
	cache        interfaces.ContextCache
	scheduler    interfaces.SchedulerService
	environment  string
	startedAt    time.Time
	logger       arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(queueService interfaces.QueueService, cache interfaces.ContextCache, scheduler interfaces.SchedulerService, environment string, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queueService: queueService,
		cache:        cache,
		scheduler:    scheduler,
		environment:  environment,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

type scheduledJobView struct {
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := map[string]interface{}{
		"service":        "gasgen",
		"version":        common.GetVersion(),
		"environment":    h.environment,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if queueStats, err := h.queueService.Stats(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to load queue stats for status")
	} else {
		status["queue"] = queueStats
	}

	if h.cache != nil {
		status["cache"] = h.cache.Stats()
	}

	if h.scheduler != nil {
		jobs := make(map[string]scheduledJobView)
		for name, js := range h.scheduler.GetAllJobStatuses() {
			jobs[name] = scheduledJobView{
				Schedule:  js.Schedule,
				LastRun:   js.LastRun,
				LastError: js.LastError,
			}
		}
		status["scheduled_jobs"] = jobs
	}

	WriteJSON(w, http.StatusOK, status)
}
