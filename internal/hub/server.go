// Package hub contains the HTTP server for the hub API.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"agenthub/internal/hub/handlers"
	"agenthub/internal/hub/middleware"
	"agenthub/internal/hub/supervisor"
	"agenthub/internal/store"
)

// Server is the HTTP server for the hub API.
type Server struct {
	httpServer *http.Server
}

// Options configures optional server features.
type Options struct {
	Supervisor     *supervisor.Supervisor
	AgentCount     int
	MetricsHandler http.Handler
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a hub server with all routes wired.
func New(addr string, storage store.Storage, log *slog.Logger, opts Options) *Server {
	h := handlers.New(storage, opts.Supervisor, opts.AgentCount, log)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /task", h.CreateTask)
	mux.HandleFunc("GET /task/{id}", h.GetTask)
	mux.HandleFunc("GET /tasks", h.ListTasks)
	mux.HandleFunc("GET /chat/agent-responses", h.AgentResponses)
	mux.HandleFunc("GET /agents/live", h.AgentsLive)
	mux.HandleFunc("GET /artifacts/{id}/presigned", h.PresignArtifact)
	mux.HandleFunc("GET /logs", h.GetLogs)
	mux.HandleFunc("GET /health", h.Health)

	// Agent process management and task administration. These stay on the
	// same port; the deployment keeps the hub inside a trusted network.
	mux.HandleFunc("POST /admin/tasks/{id}/cancel", h.CancelTask)
	mux.HandleFunc("GET /agents/status", h.AgentsStatus)
	mux.HandleFunc("POST /agents/{id}/start", h.StartAgent)
	mux.HandleFunc("POST /agents/{id}/stop", h.StopAgent)

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	var handler http.Handler = mux
	handler = middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.RequestLog(log)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
