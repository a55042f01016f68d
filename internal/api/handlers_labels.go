package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/splgest/internal/report"
	"github.com/dgallion1/splgest/internal/store"
)

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	labels, err := s.labels.ListLabels(r.Context(), q.Get("set_id"), limit, offset)
	if err != nil {
		s.log.Error("list labels failed", "error", err)
		jsonError(w, "failed to list labels", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"labels": labels})
}

func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadLabel(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleLabelReport renders a stored label as Markdown or HTML (default).
func (s *Server) handleLabelReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	if format != "html" && format != "markdown" {
		jsonError(w, "format must be html or markdown", http.StatusBadRequest)
		return
	}

	rec, ok := s.loadLabel(w, r)
	if !ok {
		return
	}
	res := rec.Result()

	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(report.Markdown(res)))
		return
	}
	page, err := report.HTML(res)
	if err != nil {
		s.log.Error("render report failed", "label_id", rec.ID, "error", err)
		jsonError(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

// handleDeleteLabel removes a label from the store and, when enabled, the
// search index.
func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	err := s.labels.DeleteLabel(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "label not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("delete label failed", "label_id", id, "error", err)
		jsonError(w, "failed to delete label", http.StatusInternalServerError)
		return
	}

	indexed := false
	if s.index != nil {
		if err := s.index.DeleteDocument(ctx, id); err != nil {
			s.log.Warn("index delete failed", "label_id", id, "error", err)
		} else {
			indexed = true
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"deleted":          id,
		"index_deleted":    indexed,
		"index_configured": s.index != nil,
	})
}

func (s *Server) loadLabel(w http.ResponseWriter, r *http.Request) (*store.Record, bool) {
	id := chi.URLParam(r, "id")
	rec, err := s.labels.GetLabel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "label not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("get label failed", "label_id", id, "error", err)
		jsonError(w, "failed to load label", http.StatusInternalServerError)
		return nil, false
	}
	return rec, true
}
