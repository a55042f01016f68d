package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/splgest/internal/store"
)

// handleImportTable loads a tab-separated body into a named table.
func (s *Server) handleImportTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	n, err := s.labels.ImportTSV(r.Context(), table, r.Body)
	if err != nil {
		s.log.Warn("table import failed", "table", table, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"table": store.Identifier(table), "rows": n})
}
