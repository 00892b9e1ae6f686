// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/connectro/connect/internal/api"
	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/config"
	"github.com/connectro/connect/internal/db"
	"github.com/connectro/connect/internal/event"
	"github.com/connectro/connect/internal/health"
	"github.com/connectro/connect/internal/identity"
	"github.com/connectro/connect/internal/middleware"
	"github.com/connectro/connect/internal/profile"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Connect API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	ctx := context.Background()

	// Postgres is optional; without it the API runs on in-memory stores.
	var pool *sql.DB
	var identityRepo identity.Repository
	var profileRepo profile.Repository
	var eventStore event.Store
	var dbChecker api.HealthChecker

	if cfg.DatabaseURL != "" {
		var err error
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		identityRepo = identity.NewPostgresRepository(pool, logger)
		profileRepo = profile.NewPostgresRepository(pool, logger)
		eventStore = event.NewPostgresStore(pool, logger)
		dbChecker = health.NewDBChecker(pool)
		logger.Info("using postgres repositories")
	} else {
		identityRepo = identity.NewInMemoryRepository()
		profileRepo = profile.NewInMemoryRepository()
		eventStore = event.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	// Redis is optional; without it revocations are process-local.
	var revocations auth.RevocationStore
	var redisChecker api.HealthChecker
	var redisClient *redis.Client

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		revocations = auth.NewRedisRevocationStore(redisClient)
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("using redis revocation store")
	} else {
		revocations = auth.NewInMemoryRevocationStore()
		logger.Warn("REDIS_URL not set, revocations are process-local")
	}

	tokens := auth.NewTokenServiceWithTTL(cfg.JWTSecret, revocations,
		time.Duration(cfg.RoleRefreshMinutes)*time.Minute)

	identities, err := identity.NewService(identityRepo, tokens, revocations, cfg.GenericPassword, logger)
	if err != nil {
		logger.Error("failed to initialize identity service", "error", err)
		os.Exit(1)
	}

	profiles := profile.NewService(profileRepo, cfg.AvatarMaxBytes(), logger)
	gateway := event.NewGateway(eventStore)

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := middleware.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Auth endpoints get a tighter rate limit than the rest of the API.
	rateStore := middleware.NewInMemoryRateLimitStore()
	authLimiter := middleware.RateLimiter(rateStore, middleware.DefaultAuthLimit(), middleware.IPKeyFunc(), metrics)

	mux := api.NewRouter(api.RouterConfig{
		Sessions:       api.NewSessionHandlers(identities, tokens, cfg.AnonymousBootstrap),
		Users:          api.NewUserHandlers(identities, tokens),
		Events:         api.NewEventHandlers(gateway),
		Profiles:       api.NewProfileHandlers(profiles, identities),
		Calendar:       api.NewCalendarWebSocketHandlers(eventStore, logger),
		Health:         api.NewHealthHandlers(api.HealthHandlersConfig{DBChecker: dbChecker, RedisChecker: redisChecker}),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthLimiter:    authLimiter,
	})

	// Middleware chain, outermost first:
	// RequestID -> Logging -> CORS -> Authenticate -> HTTPMetrics -> routes
	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(metrics)(handler)
	handler = middleware.Authenticate(tokens)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if pool != nil {
		if err := pool.Close(); err != nil {
			logger.Warn("failed to close database pool", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}

	logger.Info("server stopped")
}
