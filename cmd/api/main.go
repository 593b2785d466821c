package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-ledger/internal/api"
	"github.com/dvloznov/expense-ledger/internal/app"
	"github.com/dvloznov/expense-ledger/internal/config"
	"github.com/dvloznov/expense-ledger/internal/jobs"
	"github.com/dvloznov/expense-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/expense-ledger/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to ledger.yaml (defaults to ./ledger.yaml)")
		port       = flag.String("port", "", "HTTP server port (overrides api.port)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.API.Port = *port
	}

	log := app.NewLogger(cfg)
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger service")
	}
	defer a.Close()

	if cfg.API.AuthToken == "" {
		log.Warn().Msg("No API auth token configured - the API is open to anyone who can reach it")
	}

	// Sync jobs run one at a time on a single worker
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{Workers: 1}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.SyncHandler(a.Service)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync worker")
	}

	handler := api.NewRouter(api.RouterConfig{
		Service:     a.Service,
		Publisher:   jobQueue,
		JobStore:    jobStore,
		AuthToken:   cfg.API.AuthToken,
		CORSOrigins: cfg.API.CORSOrigins,
		Log:         log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.API.Port).
			Str("ledger", cfg.Local.Path).
			Str("remote", cfg.Remote.Backend).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()

	// Stop job queue and wait for in-flight syncs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
