package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patetisho1/rabotim-com-sub003/internal/auth"
	"github.com/patetisho1/rabotim-com-sub003/pkg/health"
	"github.com/patetisho1/rabotim-com-sub003/pkg/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	ServiceName    string
	Service        EvaluationService
	Health         *health.Handler
	ValidateToken  middleware.TokenValidator
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	RateLimiter    *middleware.RateLimiter
	CORS           middleware.CORSConfig
	PprofEnabled   bool
	PprofCIDRs     []string
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all reputation service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	r.NotFound(NotFound)

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	h := NewEvaluationHandler(cfg.Service, logger)

	limited := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limited = cfg.RateLimiter.Middleware
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.ValidateToken))
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.NoStore)

		r.With(limited).Post("/ratings", h.SubmitRating)
		r.With(limited).Post("/reviews", h.SubmitReview)
		r.With(limited).Post("/reviews/{reviewId}/helpful", h.MarkHelpful)
		r.With(limited).Post("/reviews/{reviewId}/report", h.ReportReview)

		r.Get("/tasks/{taskId}/eligibility", h.CanEvaluate)
		r.Get("/evaluations/{id}", h.GetEvaluation)

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/evaluations", h.GetEvaluationsForUser)
			r.Get("/reviews", h.ListReviews)
			r.Get("/summary", h.GetSummary)
		})

		r.With(middleware.RequireRole(auth.RoleAdmin)).
			Post("/admin/users/{userId}/summary/refresh", h.RefreshSummary)
	})

	return r
}
