package api

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/invoker"
)

// Server represents the HTTP server for the runtime sidecar API.
type Server struct {
	store      *RunStore
	httpServer *http.Server
	handlers   *Handlers
}

// ServerOptions configures a Server's tool catalog and run behavior.
type ServerOptions struct {
	Registry contracts.Registry
	Funcs    invoker.FuncResolver
	Approval contracts.ApprovalCallback
	Logger   hclog.Logger
	AuditDir string
}

// NewServer creates a new Server instance, wiring its Handlers to build a
// fresh Orchestrator (via orchestration.Build) for every run against the
// shared tool catalog in opts.
func NewServer(addr string, opts ServerOptions) *Server {
	store := NewRunStore()
	handlers := NewHandlers(store, opts.Registry, opts.Funcs, opts.Approval, opts.Logger, opts.AuditDir)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/runs", handlers.HandleStartRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", handlers.HandleGetStatus)
	mux.HandleFunc("POST /api/v1/runs/{id}/abort", handlers.HandleAbort)
	mux.HandleFunc("POST /api/v1/runs/{id}/tasks", handlers.HandleEnqueueTask)

	return &Server{
		store:    store,
		handlers: handlers,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server.
// Blocks until the server is stopped or an error occurs.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
// Cancels all active runs and waits for them to complete before shutting down HTTP.
func (s *Server) Shutdown(ctx context.Context) error {
	cancelled := s.store.CancelAll()
	if cancelled > 0 {
		deadline, ok := ctx.Deadline()
		if ok {
			waitTimeout := time.Until(deadline) / 2
			if waitTimeout > 0 {
				s.store.WaitAll(waitTimeout)
			}
		}
	}

	return s.httpServer.Shutdown(ctx)
}

// Store returns the RunStore for testing purposes.
func (s *Server) Store() *RunStore {
	return s.store
}

// Handlers returns the Handlers for testing purposes.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}
