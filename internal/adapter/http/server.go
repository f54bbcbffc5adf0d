package http

import (
	"net/http"

	"github.com/theodorecharles/darkroom/internal/adapter/http/middleware"
	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/service"
)

// JobService is the slice of the registry the HTTP adapter needs.
type JobService interface {
	Start(kind domain.JobKind) (service.StartResult, error)
	Stop(kind domain.JobKind) service.StopResult
	Snapshot(kind domain.JobKind) service.Snapshot
}

type Server struct {
	mux      *http.ServeMux
	handlers *Handlers
	sse      *SSEHandler
}

func NewServer(jobs JobService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		handlers: NewHandlers(jobs),
		sse:      NewSSEHandler(jobs),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/jobs/{kind}/start", s.sse.Start())
	s.mux.HandleFunc("POST /api/jobs/{kind}/stop", s.handlers.Stop())
	s.mux.HandleFunc("GET /api/jobs/{kind}/status", s.handlers.Status())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(s.mux).ServeHTTP(w, r)
}
