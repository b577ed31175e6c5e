package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greencredits/internal/api/v1/router"
	"greencredits/internal/config"
	"greencredits/internal/logger"

	"github.com/joho/godotenv"
)

// @title GreenCredits Admin Dashboard API
// @version 1.0
// @description Aggregated trip and carbon credit statistics
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	logger := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect clients and build services
	deps, err := router.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to initialize dependencies: %v", err)
	}
	defer deps.Close()

	r, err := router.New(cfg, deps, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build router: %v", err)
	}

	// 3. Initial load; the server still starts if it fails and reads return 503
	if _, err := deps.Dashboard.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("Initial dashboard load failed")
	}
	go deps.Dashboard.RunRefreshLoop(ctx, cfg.RefreshInterval())

	// 4. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.FetchTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Start server in a goroutine
	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Msgf("Listen: %s", err)
			stop()
		}
	}()

	// 6. Graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Msgf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}
	logger.Info().Msg("Server shut down gracefully")
}
