package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rvbbit/rvbbit/internal/api"
	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/factory"
	"github.com/rvbbit/rvbbit/internal/logger"
)

func main() {
	workers := flag.Int("background-workers", 0, "Override MAX_PARALLEL_WORKERS for the background scheduler pool")
	flag.Parse()

	log := logger.New("rvbbit-server")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *workers > 0 {
		cfg.MaxParallelWorkers = *workers
	}

	log.Info().
		Str("sql_engine", cfg.SQLEngine).
		Str("llm_provider", cfg.LLMProvider).
		Str("vector_store", cfg.VectorStore).
		Int("http_port", cfg.HTTPPort).
		Msg("rvbbit-server starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := factory.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("engine construction failed")
	}
	defer eng.Close()

	go func() {
		if err := eng.Scheduler.Run(ctx, cfg.MaxParallelWorkers); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("background scheduler stopped")
		}
	}()

	sqlHandler := api.NewSQLHandler(eng.Rewriter, eng.SQLEngine, eng.Runtime, eng.Scheduler, log)
	jobsHandler := api.NewJobsHandler(eng.Scheduler)
	healthHandler := api.NewHealthHandler(eng.Health)
	router := api.NewRouter(sqlHandler, jobsHandler, healthHandler, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
