// ABOUTME: HTTP server struct, constructor, and handler wiring for prospectq.
// ABOUTME: Mounts the huma OpenAPI sub-router plus /healthz and /metrics.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mhagen/prospectq/internal/batch"
	"github.com/mhagen/prospectq/internal/manager"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	mgr         *manager.Manager
	orch        *batch.Orchestrator
	rateLimiter *ipRateLimiter
}

// NewServer creates a Server over an already-constructed manager and batch
// orchestrator; their lifecycles belong to the caller.
func NewServer(mgr *manager.Manager, orch *batch.Orchestrator) *Server {
	return &Server{
		mgr:         mgr,
		orch:        orch,
		rateLimiter: newIPRateLimiter(clientRateLimit, clientBurst, clientEvictTTL),
	}
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Security headers first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit — job payloads and batch requests are small.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", srv.healthzHandler)
	r.Handle("/metrics", promhttp.Handler())

	// ── API v1 sub-router with huma (OpenAPI 3.1) ────────────────────────────
	apiRouter := chi.NewRouter()
	apiRouter.Use(srv.clientRateLimitMiddleware())
	humaConfig := huma.DefaultConfig("ProspectQ API", "0.1.0")
	humaConfig.Info.Description = "Background job scheduling and batch orchestration API"
	api := humachi.New(apiRouter, humaConfig)
	registerJobRoutes(api, srv)
	registerQueueRoutes(api, srv)
	registerBatchRoutes(api, srv)

	r.Mount("/api/v1", apiRouter)

	return r
}

// healthResponse is the JSON body for /healthz.
type healthResponse struct {
	Status string `json:"status"`
	Jobs   int    `json:"jobs"`
}

// healthzHandler reports ok plus the total number of retained jobs. There is
// no external dependency to probe — the queues live in process.
func (srv *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	total := 0
	for _, c := range srv.mgr.Stats() {
		total += c.Total()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Jobs: total}); err != nil {
		slog.ErrorContext(r.Context(), "healthz: failed to encode response", "error", err)
	}
}
