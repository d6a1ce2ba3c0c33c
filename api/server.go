// Package api provides the HTTP REST surface of the engine.
//
// Endpoints:
//
//	GET    /health                        liveness check
//	GET    /ready                         readiness check
//	POST   /api/chat/stream               streamed grounded answer (NDJSON)
//	POST   /api/conversations             create conversation
//	GET    /api/conversations             list conversations
//	GET    /api/conversations/latest      most recently active conversation
//	GET    /api/conversations/{id}        fetch conversation
//	GET    /api/conversations/{id}/messages  bounded history
//	PATCH  /api/conversations/{id}        rename
//	PUT    /api/conversations/{id}/pin    pin or unpin
//	DELETE /api/conversations/{id}        delete
//	GET    /api/agents/{id}               resolved agent configuration
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - conversation.go: conversation management endpoints
//   - chat.go: streaming chat endpoint
//   - agent.go: agent configuration endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syntellix/syntellix-go/internal/agent"
	"github.com/syntellix/syntellix-go/internal/chat"
	"github.com/syntellix/syntellix-go/internal/conversation"
	"github.com/syntellix/syntellix-go/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Streamed answers can run long.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the engine's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health       *HealthHandler
	conversation *ConversationHandler
	chat         *ChatHandler
	agent        *AgentHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, store *conversation.Store, agents *agent.Store, orchestrator *chat.Orchestrator, logger log.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:          mux,
		logger:       logger,
		health:       NewHealthHandler(pool, logger),
		conversation: NewConversationHandler(store, logger),
		chat:         NewChatHandler(orchestrator, logger),
		agent:        NewAgentHandler(agents, logger),
	}

	s.health.RegisterRoutes(mux)
	s.conversation.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.agent.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
