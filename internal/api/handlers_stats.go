package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleExtractStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":         s.orchestrator.Stats().Snapshot(),
		"queue_depth":   s.orchestrator.QueueDepth(),
		"index_enabled": s.orchestrator.IndexEnabled(),
	})
}
