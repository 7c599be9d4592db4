package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"exam-dashboard/internal/config"
	"exam-dashboard/internal/middleware"
	"exam-dashboard/internal/observability"
	"exam-dashboard/internal/server"
	"exam-dashboard/internal/services"
)

// newHandler wires the services behind the middleware chain.
func newHandler(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (http.Handler, *services.SessionStore) {
	schema := cfg.ModelSchema()
	loader := services.NewLoader(schema, logger, metrics)
	sessions := services.NewSessionStore(loader, services.SessionOptions{
		CacheEntries: cfg.Upload.CacheEntries,
		TTL:          cfg.Upload.SessionTTL,
		MaxSessions:  cfg.Upload.MaxSessions,
	}, logger, metrics)
	views := services.NewViewEngine(schema, metrics)

	srv := server.NewServer(cfg, sessions, views, metrics, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	return middlewareChain(srv), sessions
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	metrics := observability.NewMetrics()
	handler, sessions := newHandler(cfg, logger, metrics)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("dropping dashboard sessions", "sessions", sessions.Len())
		sessions.Clear()
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
