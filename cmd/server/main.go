// Package main is the entry point for the Ad Analysis Dashboard server.
//
// Usage:
//
//	server                       Run the dashboard
//	server hash-password <pw>    Print a bcrypt hash for DASHBOARD_PASSWORD_HASH
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/handlers"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/logging"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/router"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/analysis"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/llm"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/session"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/worker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if len(os.Args) > 2 && os.Args[1] == "hash-password" {
		hash, err := middleware.HashPassword(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Step 1: Load Configuration
	// A missing .env is normal in production; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)
	log.Info().Str("version", Version).Msg("🚀 Ad Analysis Dashboard starting...")
	log.Info().
		Str("port", cfg.Port).
		Int("workers", cfg.WorkerCount).
		Str("gin_mode", cfg.GinMode).
		Str("input", cfg.AnalysisInput).
		Str("language", cfg.ResponseLanguage).
		Msg("📋 Config loaded")

	if cfg.DashboardPasswordHash != "" {
		log.Info().Msg("✅ Dashboard password gate enabled")
	} else {
		log.Warn().Msg("⚠️  No dashboard password set (set DASHBOARD_PASSWORD_HASH to restrict access)")
	}

	// Step 2: Create Services
	provider, err := llm.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to create LLM provider")
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("✅ LLM provider ready")

	svc, err := analysis.NewFromConfig(cfg, provider)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to load analysis prompts")
	}

	store := session.NewStore(cfg.SessionTTL)
	defer store.Close()

	// Step 3: Create and Start Worker Pool
	wp := worker.NewPool(cfg.WorkerCount, cfg.JobQueueSize, store, svc)
	wp.Start()

	// Step 4: Setup HTTP Router
	h := handlers.NewHandler(cfg, store, wp, provider)
	r, err := router.Setup(h)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to set up router")
	}

	// Step 5: Start the HTTP Server
	// WriteTimeout is left at zero: progress WebSockets stay open for the
	// length of a run.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Msgf("🌐 Dashboard listening on http://localhost:%s", cfg.Port)
		log.Info().Msgf("📖 Health check: http://localhost:%s/api/v1/health", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server failed")
		}
	}()

	// Step 6: Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("🛑 Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Server forced to shutdown")
	}
	wp.Stop(ctx)

	log.Info().Msg("👋 Server stopped. Goodbye!")
}
