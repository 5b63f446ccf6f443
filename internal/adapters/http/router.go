package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

// Handler is the HTTP adapter entrypoint for cache and rate-limit use-cases.
// Keeping only application-facing dependencies here preserves clean adapter
// boundaries.
type Handler struct {
	service      *application.Service
	verifier     ports.TokenVerifier
	keys         ports.KeyHasher
	adminKeyHash string
	limiters     map[string]ports.RateLimiter
}

// HandlerDeps wires transport concerns the handler cannot own: token
// verification, the admin key gate, and the per-route limiter scopes.
type HandlerDeps struct {
	Service      *application.Service
	Verifier     ports.TokenVerifier
	KeyHasher    ports.KeyHasher
	AdminKeyHash string
	Limiters     map[string]ports.RateLimiter
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		service:      deps.Service,
		verifier:     deps.Verifier,
		keys:         deps.KeyHasher,
		adminKeyHash: deps.AdminKeyHash,
		limiters:     deps.Limiters,
	}
}

// NewRouter registers the HTTP routes and middleware stack. Centralizing
// routes here ensures consistent auth and error behavior across endpoints.
// metricsHandler serves the Prometheus exposition endpoint when non-nil.
func NewRouter(handler *Handler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/cache/health", handler.cacheHealth)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)

			r.Get("/cache/metrics", handler.cacheMetrics)
			r.Get("/cache/{key}", handler.getCacheEntry)
			r.Put("/cache/{key}", handler.putCacheEntry)
			r.Delete("/cache/{key}", handler.deleteCacheEntry)
			r.Post("/cache/invalidate", handler.invalidateCacheKeys)

			r.Post("/ratelimit/check", handler.checkRateLimit)

			r.Post("/lockout/{identifier}/failure", handler.recordLoginFailure)
			r.Get("/lockout/{identifier}", handler.getLockout)
			r.Delete("/lockout/{identifier}", handler.clearLockout)

			r.With(handler.rateLimitMiddleware("otp_issue_ip")).
				Post("/otp/issue", handler.issueOTP)
			r.Post("/otp/verify", handler.verifyOTP)

			r.Get("/profiles/{user_id}", handler.getProfile)
			r.Put("/profiles/{user_id}", handler.putProfile)
			r.Delete("/profiles/{user_id}", handler.deleteProfile)
		})

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Use(handler.adminMiddleware)

			r.Post("/admin/cache/flush", handler.flushCache)
			r.Post("/admin/metrics/reset", handler.resetCacheMetrics)
		})
	})

	return r
}
