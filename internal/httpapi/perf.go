package httpapi

import "net/http"

// handlePerfLatency reports the rolling per-stage latency window.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStages())
}

// handlePerfReset clears the latency window, e.g. between benchmark runs.
func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetStages()
	w.WriteHeader(http.StatusNoContent)
}
