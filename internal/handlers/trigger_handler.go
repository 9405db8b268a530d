package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/interfaces"
)

// TriggerHandler handles the external dispatch trigger endpoint
type TriggerHandler struct {
	queueService interfaces.QueueService
	cronSecret   string
	logger       arbor.ILogger
}

// NewTriggerHandler creates a new TriggerHandler
func NewTriggerHandler(queueService interfaces.QueueService, cronSecret string, logger arbor.ILogger) *TriggerHandler {
	return &TriggerHandler{
		queueService: queueService,
		cronSecret:   cronSecret,
		logger:       logger,
	}
}

// DispatchHandler handles POST /api/cron/dispatch. The caller must present
// the pre-shared cron secret as a bearer token; a bad token gets a plain
// 401 and no cycle runs.
func (h *TriggerHandler) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if !h.authorized(r) {
		h.logger.Warn().
			Str("remote", r.RemoteAddr).
			Msg("Dispatch trigger rejected: bad or missing secret")
		WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	batchSize := 0
	if v := r.URL.Query().Get("batch"); v != "" {
		if b, err := strconv.Atoi(v); err == nil && b > 0 {
			batchSize = b
		}
	}

	result, err := h.queueService.DispatchCycle(r.Context(), batchSize)
	if err != nil {
		h.logger.Error().Err(err).Msg("Dispatch cycle failed")
		WriteError(w, http.StatusInternalServerError, "Dispatch cycle failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"processed":   result.Processed,
		"failed":      result.Failed,
		"remaining":   result.Remaining,
		"duration_ms": result.DurationMs,
		"skipped":     result.Skipped,
	})
}

func (h *TriggerHandler) authorized(r *http.Request) bool {
	if h.cronSecret == "" {
		// No secret configured means the trigger is disabled outright
		return false
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
