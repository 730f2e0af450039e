// Package factory wires every RVBBIT component into one running Engine,
// generalizing the teacher's internal/factory dependency-construction
// shape (storage.go/embeddings.go/searchindex.go: config-driven backend
// selection, synchronous connection open, async warmup/bootstrap check
// logged but never blocking startup) to RVBBIT's SQL engine, LLM/embed/
// vector backends, background scheduler, and HTTP front door.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/background"
	"github.com/rvbbit/rvbbit/internal/cascade"
	"github.com/rvbbit/rvbbit/internal/cell"
	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/contextbuilder"
	"github.com/rvbbit/rvbbit/internal/embed"
	"github.com/rvbbit/rvbbit/internal/health"
	"github.com/rvbbit/rvbbit/internal/identity"
	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/logsink"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/sqlengine"
	"github.com/rvbbit/rvbbit/internal/sqlrewriter"
	"github.com/rvbbit/rvbbit/internal/tackle"
	"github.com/rvbbit/rvbbit/internal/udfruntime"
	"github.com/rvbbit/rvbbit/internal/vector"
	"github.com/rvbbit/rvbbit/internal/ward"
)

// Engine bundles every constructed component plus a Close for the
// connection-holding ones (SQL engine, job queue).
type Engine struct {
	Config *config.Config
	Log    zerolog.Logger

	SQLEngine sqlengine.Engine
	LLM       llm.Client
	Embedder  embed.Provider
	Vectors   vector.Backend

	Sessions *sessionstore.Store
	Sink     logsink.Sink
	Tokens   *identity.TokenStore

	Tools    *tackle.Registry
	Wards    *ward.Engine
	Executor *cell.Executor
	Cascades *cascade.Runner
	Runtime  *udfruntime.Runtime
	Rewriter *sqlrewriter.Rewriter

	Scheduler *background.Scheduler
	Health    *health.ServiceHealthChecker

	queue background.JobQueue
}

// New assembles every RVBBIT component per cfg. ctx bounds async
// warmup/bootstrap checks only — it is not retained past New.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	eng := &Engine{Config: cfg, Log: log}

	sqlEng, err := newSQLEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("factory: sql engine: %w", err)
	}
	eng.SQLEngine = sqlEng

	llmClient := newLLMClient(cfg)
	eng.LLM = llmClient

	eng.Embedder = newEmbedProvider(ctx, cfg, log)
	vectors, err := newVectorBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("factory: vector backend: %w", err)
	}
	eng.Vectors = vectors

	sink, err := newLogSink(cfg, llmClient, log)
	if err != nil {
		return nil, fmt.Errorf("factory: log sink: %w", err)
	}
	eng.Sink = sink
	eng.Sessions = sessionstore.New(sink)
	eng.Tokens = identity.NewTokenStore()

	catalog, err := loadCascadeCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("factory: cascade catalog: %w", err)
	}

	// tackle.Registry and ward.Engine are built with a nil cascade
	// collaborator first: cascade.Runner needs a *cell.Executor, which
	// needs these two, so the cycle is broken with SetInvoker/SetCascades
	// once Runner exists.
	tools := tackle.New(nil)
	registerToolCascades(tools, catalog)
	registerBuiltinTools(tools, eng.Sessions)
	wards := ward.New(tools, nil)

	builder := contextbuilder.New(log)
	executor := cell.New(
		llmClient, tools, wards, eng.Sessions, sink, builder, log,
		cfg.LLMModel, cfg.MaxParallelWorkers, 0,
	)
	eng.Tools = tools
	eng.Wards = wards
	eng.Executor = executor

	runner := cascade.New(executor, eng.Sessions, sink, catalog, sqlEng, sqlEng, log, cfg.MaxCascadeDepth)
	tools.SetInvoker(runner)
	wards.SetCascades(runner)
	eng.Cascades = runner

	runtime := udfruntime.New(runner, sqlEng, vectors, eng.Embedder,
		cfg.UDFCacheSize, time.Duration(cfg.UDFCacheTTL)*time.Second, cfg.LLMModel)
	if err := runtime.RegisterAll(sqlEng); err != nil {
		return nil, fmt.Errorf("factory: register udfs: %w", err)
	}
	eng.Runtime = runtime

	eng.Rewriter = sqlrewriter.New(aggregateOperators(catalog), nil)

	queue, err := newJobQueue(cfg)
	if err != nil {
		return nil, fmt.Errorf("factory: job queue: %w", err)
	}
	eng.queue = queue

	handler := func(ctx context.Context, job background.Job) error {
		rewritten, plan, rerr := eng.Rewriter.Rewrite(job.SQL)
		if rerr != nil {
			return rerr
		}
		if plan.Map != nil && plan.Map.Parallelism > 1 {
			resultTable := "map_result_" + plan.Map.CascadePath
			return runtime.RunMapParallel(ctx, plan.Map, resultTable)
		}
		_, rerr = sqlEng.Exec(ctx, rewritten)
		return rerr
	}
	eng.Scheduler = background.NewScheduler(queue, eng.Tokens, handler, log)

	eng.Health = buildHealthChecker(cfg, log, sqlEng, llmClient, eng.Embedder, vectors)

	return eng, nil
}

// Close releases every connection-holding component.
func (e *Engine) Close() error {
	if e.SQLEngine != nil {
		_ = e.SQLEngine.Close()
	}
	if closer, ok := e.queue.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return nil
}

// aggregateOperators scans the loaded catalog for cascades declaring
// themselves as a SQL aggregate operator's backing implementation
// (model.Cascade.AggregateAlias, resolving the Open Question of how
// "cascade-declared aggregate operators" (spec §4.11 phase 7) actually
// surface). The synthesized UDFName embeds the cascade's own id as
// rvbbit_run's first argument, so the rewritten call is a plain
// rvbbit_run(cascade_id, <original args>) invocation through the existing
// catalog re-entry path rather than a new UDF per alias.
func aggregateOperators(catalog map[string]model.Cascade) []sqlrewriter.AggregateOperator {
	var ops []sqlrewriter.AggregateOperator
	for _, c := range catalog {
		if c.AggregateAlias == "" {
			continue
		}
		ops = append(ops, sqlrewriter.AggregateOperator{
			Alias:   c.AggregateAlias,
			UDFName: fmt.Sprintf("rvbbit_run('%s',", c.CascadeID),
			Arity:   c.AggregateArity,
		})
	}
	return ops
}
