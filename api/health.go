package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syntellix/syntellix-go/internal/log"
)

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewHealthHandler creates a new health handler.
// pool is the database connection pool used for readiness checks.
func NewHealthHandler(pool *pgxpool.Pool, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness reports that the process is up. It never touches the database.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness returns 200 only when the database answers a ping, so a load
// balancer stops routing here while the pool is down.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "not_ready", "database pool not configured")
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeError(h.logger, w, http.StatusServiceUnavailable, "not_ready", "database not ready")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}
