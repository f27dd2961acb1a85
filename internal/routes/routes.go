package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/lockout/internal/handlers"
	"github.com/BradenHooton/lockout/internal/metrics"
	"github.com/BradenHooton/lockout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Options carries everything the router needs
type Options struct {
	AuthHandler    *handlers.AuthHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler http.Handler // nil disables /metrics
	HTTPMetrics    *metrics.HTTPMetrics
	RateLimit      middleware.RateLimitConfig
	CORS           *middleware.CORSConfig
	Env            string
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewRouter builds the application router with the standard middleware stack
func NewRouter(opts Options) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.CORS == nil {
		opts.CORS = middleware.DefaultCORSConfig(nil)
	}

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(middleware.CORS(opts.CORS))
	router.Use(middleware.SecureLogger(opts.Logger, opts.Env))
	router.Use(opts.HTTPMetrics.Middleware)
	router.Use(chiMiddleware.Recoverer)
	router.Use(chiMiddleware.Timeout(opts.RequestTimeout))

	RegisterRoutes(router, opts)

	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, opts Options) {
	limiter := middleware.RateLimitByIP(opts.RateLimit)

	router.With(limiter).Post("/auth/login", opts.AuthHandler.Login)
	router.With(limiter).Post("/auth/register", opts.AuthHandler.Register)

	if opts.HealthHandler != nil {
		router.Get("/health", opts.HealthHandler.Health)
	}
	if opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}
}
