package models

// DispatchResult summarizes one dispatch cycle.
type DispatchResult struct {
	Processed  int   `json:"processed"`  // Jobs that reached completed
	Failed     int   `json:"failed"`     // Jobs that reached failed
	Remaining  int   `json:"remaining"`  // Pending jobs left after the cycle
	DurationMs int64 `json:"durationMs"` // Cycle wall-clock duration
	Skipped    bool  `json:"skipped,omitempty"` // True when another cycle was already active
}

// QueueStats holds per-status job counts.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}
