package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgallion1/splgest/internal/label"
	"github.com/dgallion1/splgest/internal/markup"
)

// handleExtract runs extraction synchronously on a raw XML body.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxEntryBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, fmt.Sprintf("body exceeds max size (%d bytes)", s.cfg.MaxEntryBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		jsonError(w, "empty body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := label.Extract(data, label.WithLogger(s.log))
	s.orchestrator.Stats().Record(time.Since(start), err == nil)

	var perr *markup.ParseError
	var eerr *label.ExtractionError
	switch {
	case errors.As(err, &perr):
		jsonError(w, perr.Error(), http.StatusBadRequest)
		return
	case errors.As(err, &eerr):
		jsonError(w, eerr.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
