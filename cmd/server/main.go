// flowd - Flow Session Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowlabs/flowd/internal/analyzer"
	"github.com/flowlabs/flowd/internal/api"
	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/config"
	"github.com/flowlabs/flowd/internal/flow"
	"github.com/flowlabs/flowd/internal/identity"
	"github.com/flowlabs/flowd/internal/middleware"
	"github.com/flowlabs/flowd/internal/store"
	"github.com/flowlabs/flowd/internal/summarizer"
	"github.com/flowlabs/flowd/internal/tracker"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	clk := clock.System{}

	// Initialize services.
	svc := flow.NewService(repo, clk)
	trackers := tracker.NewRegistry()

	aiEnabled := cfg.Summarizer.Enabled()
	completer := summarizer.NewClient(summarizer.Config{
		BaseURL: cfg.Summarizer.BaseURL,
		APIKey:  cfg.Summarizer.APIKey,
		Model:   cfg.Summarizer.Model,
		Timeout: cfg.Summarizer.Timeout,
	})
	an := analyzer.New(repo, completer, clk)
	if !aiEnabled {
		slog.Info("Summarizer disabled (SUMMARIZER_API_KEY not set); pattern analysis will store empty aggregates")
	}

	// Initialize handlers.
	trackerCfg := tracker.Config{
		IdleTimeout:  cfg.IdleTimeout,
		TickInterval: cfg.TickInterval,
		DepthPerTick: cfg.DepthPerTick,
	}
	flowHandler := api.NewFlowHandler(repo, svc, an, trackers, aiEnabled)
	wsHandler := tracker.NewWebSocketHandler(repo, trackers, clk, trackerCfg, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// All routes use identity middleware (no auth needed).
	flowHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/focus", wsHandler.ServeHTTP)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout; the focus channel is long-lived
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// Start session sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flow.StartSweeper(ctx, svc, cfg.SessionTTL, trackers.StopSession)
	slog.Info("Session sweeper started", "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
