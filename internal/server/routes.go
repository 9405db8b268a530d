package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// External dispatch trigger (bearer-secret protected)
	mux.HandleFunc("/api/cron/dispatch", s.app.TriggerHandler.DispatchHandler)

	// Job intake and inspection
	mux.HandleFunc("/api/jobs", s.app.JobHandler.EnqueueHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobByIDHandler) // GET/DELETE /{id}

	// Queue introspection
	mux.HandleFunc("/api/queue/stats", s.app.JobHandler.StatsHandler)

	// Application status
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	return mux
}
