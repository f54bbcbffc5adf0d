package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/infrastructure/logger"
)

const keepAliveInterval = 15 * time.Second

// SSEHandler adapts the job registry to server-sent events. Every
// start caller becomes a subscriber: history is replayed first, then
// live events stream until the terminal frame.
type SSEHandler struct {
	jobs JobService
}

func NewSSEHandler(jobs JobService) *SSEHandler {
	return &SSEHandler{jobs: jobs}
}

// Start launches the job (or joins the run in flight) and streams its
// events. The client disconnecting only detaches its subscription; the
// job keeps running headless for whoever attaches next.
func (h *SSEHandler) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := domain.ParseJobKind(r.PathValue("kind"))
		if err != nil {
			http.Error(w, "unknown job kind", http.StatusNotFound)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		res, err := h.jobs.Start(kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		defer res.Detach()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		ctx := r.Context()
		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-ctx.Done():
				// Disconnect is not cancellation.
				return
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case ev, open := <-res.Events:
				if !open {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					return
				}
				flusher.Flush()
				if ev.Terminal() {
					return
				}
			}
		}
	}
}

// writeEvent frames one event as an SSE data frame. Events marshal to
// a single JSON line, so no multi-line splitting is needed.
func writeEvent(w http.ResponseWriter, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error.Printf("marshal event: %v", err)
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
