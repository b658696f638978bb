package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medscout/rxsearch/pkg/rxerr"
	"github.com/medscout/rxsearch/pkg/search"
)

// errorBody is the failure response. Metrics carries whatever the
// pipeline measured before failing, when available.
type errorBody struct {
	Error   errorDetail     `json:"error"`
	Metrics *search.Metrics `json:"metrics,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, rxerr.Wrap(rxerr.KindInvalidInput, "malformed request body", err), nil)
		return
	}

	resp, err := s.service.Search(r.Context(), &req)
	if err != nil {
		var metrics *search.Metrics
		if resp != nil {
			metrics = &resp.Metrics
		}
		s.writeError(w, err, metrics)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleDrug(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Drug(r.Context(), chi.URLParam(r, "ndc"))
	if err != nil {
		var metrics *search.Metrics
		if resp != nil {
			metrics = &resp.Metrics
		}
		s.writeError(w, err, metrics)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleAlternatives(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Alternatives(r.Context(), chi.URLParam(r, "ndc"))
	if err != nil {
		var metrics *search.Metrics
		if resp != nil {
			metrics = &resp.Metrics
		}
		s.writeError(w, err, metrics)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps error kinds to stable HTTP statuses. Internal and
// unknown failures surface an opaque error id instead of the message.
func (s *HTTPServer) writeError(w http.ResponseWriter, err error, metrics *search.Metrics) {
	kind := rxerr.KindOf(err)
	body := errorBody{
		Error: errorDetail{
			Code:    kind.String(),
			Message: err.Error(),
		},
		Metrics: metrics,
	}

	var status int
	switch kind {
	case rxerr.KindInvalidInput:
		status = http.StatusBadRequest
	case rxerr.KindNotFound:
		status = http.StatusNotFound
	case rxerr.KindThrottled:
		status = http.StatusTooManyRequests
	case rxerr.KindUpstreamUnavailable:
		status = http.StatusBadGateway
	case rxerr.KindServiceUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
		id := uuid.NewString()
		s.logger.Error("Internal error", "error", err, "error_id", id)
		body.Error = errorDetail{
			Code:    rxerr.KindInternal.String(),
			Message: "internal error",
			ID:      id,
		}
	}

	s.writeJSON(w, status, body)
}
