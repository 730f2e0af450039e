package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/embed"
	"github.com/rvbbit/rvbbit/internal/health"
	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/sqlengine"
	"github.com/rvbbit/rvbbit/internal/vector"
)

const healthPollInterval = 15 * time.Second

// buildHealthChecker wraps every pluggable backend in a health.PingChecker
// and aggregates them into one ServiceHealthChecker, reporting healthy
// only when the SQL engine, LLM provider, embedder, and vector backend all
// answered their last probe. It starts every checker (and the aggregate)
// polling against a background context scoped to process lifetime before
// returning, since nothing else in the construction path owns that.
func buildHealthChecker(cfg *config.Config, log zerolog.Logger, sqlEng sqlengine.Engine, llmClient llm.Client, embedder embed.Provider, vectors vector.Backend) *health.ServiceHealthChecker {
	sqlCheck := health.NewPingChecker("sql_engine", func(ctx context.Context) error {
		_, err := sqlEng.Exec(ctx, "SELECT 1")
		return err
	}, log, 0)

	llmCheck := health.NewPingChecker("llm_provider", func(ctx context.Context) error {
		_, err := llmClient.Complete(ctx, llm.Request{Model: cfg.LLMModel, Messages: nil, MaxTurns: 1})
		return err
	}, log, 0)

	embedCheck := health.NewPingChecker("embed_provider", func(ctx context.Context) error {
		_, err := embedder.Embed(ctx, []string{"health-check"})
		return err
	}, log, 0)

	vectorCheck := health.NewPingChecker("vector_store", func(ctx context.Context) error {
		_, err := vectors.VectorSearch(ctx, "health", "health", "health", "", nil, 1, 0)
		return err
	}, log, 0)

	svc := health.NewServiceHealthChecker(log, sqlCheck, llmCheck, embedCheck, vectorCheck)

	ctx := context.Background()
	go sqlCheck.Start(ctx, healthPollInterval)
	go llmCheck.Start(ctx, healthPollInterval)
	go embedCheck.Start(ctx, healthPollInterval)
	go vectorCheck.Start(ctx, healthPollInterval)
	go svc.Start(ctx, healthPollInterval)

	return svc
}
