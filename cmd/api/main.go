package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/lockout/internal/auth"
	"github.com/BradenHooton/lockout/internal/background"
	"github.com/BradenHooton/lockout/internal/config"
	"github.com/BradenHooton/lockout/internal/database"
	"github.com/BradenHooton/lockout/internal/handlers"
	"github.com/BradenHooton/lockout/internal/metrics"
	middlewareCustom "github.com/BradenHooton/lockout/internal/middleware"
	"github.com/BradenHooton/lockout/internal/repositories"
	"github.com/BradenHooton/lockout/internal/routes"
	"github.com/BradenHooton/lockout/internal/services"
	pkgauth "github.com/BradenHooton/lockout/pkg/auth"
	pkghttp "github.com/BradenHooton/lockout/pkg/http"
	pkglogger "github.com/BradenHooton/lockout/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("lockout_backend", cfg.Lockout.Backend),
		slog.Int("lockout_threshold", cfg.Lockout.Threshold),
		slog.Duration("lockout_duration", cfg.Lockout.Duration))

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := database.Migrate(migrateCtx, cfg.Database.DSN(), logger)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	healthChecks := map[string]handlers.HealthCheckFunc{"database": db.HealthCheck}

	tracker, purger, closeTracker, err := newAttemptTracker(cfg, db, healthChecks)
	if err != nil {
		logger.Error("failed to initialize attempt tracker", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeTracker()

	userRepo := repositories.NewUserRepository(db.Pool)
	hasher := pkgauth.NewBcryptHasher(pkgauth.BcryptCost)
	auditLogger := pkglogger.NewAuditLogger(logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	var notifier services.LockoutNotifier
	if cfg.Email.NotifyOnLock {
		sesNotifier, err := services.NewSESLockoutNotifier(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	guardMetrics, err := metrics.NewGuardMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to register guard metrics", slog.Any("error", err))
		os.Exit(1)
	}
	httpMetrics, err := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to register http metrics", slog.Any("error", err))
		os.Exit(1)
	}

	guard := services.NewGuard(userRepo, hasher, tracker, cfg.Lockout, logger)
	authService := services.NewAuthService(userRepo, guard, hasher, timingDelay, notifier, guardMetrics, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	router := routes.NewRouter(routes.Options{
		AuthHandler:    handlers.NewAuthHandler(authService, ipConfig),
		HealthHandler:  handlers.NewHealthHandler(healthChecks),
		MetricsHandler: promhttp.Handler(),
		HTTPMetrics:    httpMetrics,
		RateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Auth.LoginRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		CORS:   middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins),
		Env:    cfg.Server.Env,
		Logger: logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	var cleanupManager *background.CleanupManager
	if purger != nil && cfg.Lockout.PurgeInterval > 0 {
		cleanupManager = background.NewCleanupManager(purger, logger, cfg.Lockout.PurgeInterval)
		go cleanupManager.Start(cleanupCtx)
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let in-flight lockout notifications finish
	authService.Wait()

	logger.Info("server stopped gracefully")
}

// newAttemptTracker builds the configured lockout backend. purger is nil when
// the backend expires entries on its own.
func newAttemptTracker(
	cfg *config.Config,
	db *database.DB,
	healthChecks map[string]handlers.HealthCheckFunc,
) (services.AttemptTracker, services.ExpiredLockPurger, func(), error) {
	switch cfg.Lockout.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("unable to reach redis: %w", err)
		}

		healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		repo := repositories.NewRedisLockoutRepository(client, cfg.Redis.KeyPrefix, cfg.Lockout)
		return repo, nil, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		repo := repositories.NewLockoutRepository(db.Pool, cfg.Lockout)
		return repo, repo, func() {}, nil

	default:
		tracker := services.NewMemoryAttemptTracker(cfg.Lockout)
		return tracker, tracker, func() {}, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
