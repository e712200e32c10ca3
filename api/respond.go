package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/extract"
	"github.com/poiesic/docket/ingestion"
	"github.com/poiesic/docket/retrieval"
	"github.com/poiesic/docket/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps err to a status code. Internal errors are logged and
// answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, storage.ErrBlobTooLarge), errors.Is(err, extract.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, core.ErrInvalidKnowledgeBase),
		errors.Is(err, core.ErrEmptyTenant),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
