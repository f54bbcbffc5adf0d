package http

import (
	"encoding/json"
	"net/http"

	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/infrastructure/logger"
)

type Handlers struct {
	jobs JobService
}

func NewHandlers(jobs JobService) *Handlers {
	return &Handlers{jobs: jobs}
}

type stopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Stop cancels the running job for a kind. Stopping when nothing is
// running is a benign outcome, reported with success=false and a 200.
func (h *Handlers) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := domain.ParseJobKind(r.PathValue("kind"))
		if err != nil {
			http.Error(w, "unknown job kind", http.StatusNotFound)
			return
		}

		res := h.jobs.Stop(kind)
		writeJSON(w, http.StatusOK, stopResponse{Success: res.Stopped, Message: res.Message})
	}
}

// Status reports the slot state for a kind without subscribing.
func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := domain.ParseJobKind(r.PathValue("kind"))
		if err != nil {
			http.Error(w, "unknown job kind", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, h.jobs.Snapshot(kind))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("write json response: %v", err)
	}
}
