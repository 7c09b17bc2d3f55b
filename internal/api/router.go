/**
 * @description
 * HTTP router setup for the entitlement service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig carries the settings the router needs besides the handlers.
type RouterConfig struct {
	SessionSecret  string
	InternalAPIKey string
	AllowedOrigins []string
	// RateLimiter throttles checkout and verification; nil disables it.
	RateLimiter RateLimiter
	// AIProxy receives gated /ai/{feature}/* requests; nil leaves the routes unregistered.
	AIProxy http.Handler
}

// NewRouter creates a new Chi router and registers the entitlement routes.
func NewRouter(h *Handler, cfg RouterConfig, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(cfg.SessionSecret))

		r.With(RateLimitMiddleware(cfg.RateLimiter, "checkout", logger)).Post("/subscription/order", h.handleCreateOrder)
		r.With(RateLimitMiddleware(cfg.RateLimiter, "verify", logger)).Post("/subscription/verify", h.handleVerifyPayment)
		r.Post("/subscription/free", h.handleActivateFree)
		r.Get("/subscription/status", h.handleGetStatus)
		r.Post("/features/{feature}/consume", h.handleConsumeFeature)

		if cfg.AIProxy != nil {
			r.With(h.RequireEntitlement).Handle("/ai/{feature}/*", cfg.AIProxy)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/subscription/expire-sweep", h.handleExpireSweep)
	})

	return r
}
