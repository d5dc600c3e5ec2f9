package httpapi

import (
	"net/http"

	"github.com/antoniostano/callrelay/internal/observability"
)

type perfLatencyResponse struct {
	observability.TurnStageSnapshot
	ActiveCalls int `json:"active_calls"`
}

// handlePerfLatency reports rolling turn latency percentiles.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	out := perfLatencyResponse{ActiveCalls: s.registry.ActiveCount()}
	if s.metrics != nil {
		out.TurnStageSnapshot = s.metrics.SnapshotTurnStages()
	}
	if out.Stages == nil {
		out.Stages = []observability.TurnStageStats{}
	}
	respondJSON(w, http.StatusOK, out)
}
