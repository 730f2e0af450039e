// Package udfruntime implements the SQL UDF surface the rewritten SQL
// actually calls (spec §4.12): rvbbit/rvbbit_run (§4.12.1, result-cached,
// deterministic "ERROR" string on failure), MAP PARALLEL interception
// (§4.12.2), and embed_batch/vector_search_*/hybrid_search_* (§4.12.3).
package udfruntime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rvbbit/rvbbit/internal/embed"
	"github.com/rvbbit/rvbbit/internal/sqlengine"
	"github.com/rvbbit/rvbbit/internal/tackle"
	"github.com/rvbbit/rvbbit/internal/vector"
)

// CascadeInvoker is the narrow CascadeRunner surface udfruntime needs:
// catalog re-entry (rvbbit_run, RVBBIT MAP's per-row dispatch) and direct
// ad-hoc execution of a synthesized one-cell cascade (rvbbit). Implemented
// by cascade.Runner.
type CascadeInvoker interface {
	RunAsTool(ctx context.Context, cascadeID string, inputs map[string]interface{}, parentSessionID string) (tackle.Result, error)
	RunInstructions(ctx context.Context, instructions string, value interface{}, parentSessionID string) (tackle.Result, error)
}

// Runtime hosts the UDFs registered into a sqlengine.Engine for one
// cascade session's SQL surface.
type Runtime struct {
	invoker   CascadeInvoker
	engine    sqlengine.Engine
	vectors   vector.Backend
	embedder  embed.Provider
	modelName string

	// cache is nil when defaultTTL is 0, which disables the rvbbit/
	// rvbbit_run/dimension_bucket result cache entirely (§8: "Cache TTL
	// of 0 disables caching") rather than falling back to some default
	// duration.
	cache *lru.LRU[string, string]
}

// New constructs a Runtime. maxCacheEntries bounds the rvbbit/rvbbit_run
// result cache (§4.12.1's "LRU with a configured maximum entry count");
// defaultTTL is the TTL of every cached entry, with 0 disabling the cache
// outright. modelName is folded into
// every cache key per §4.12.1's hash(... + model), so switching the
// default model never serves a stale result cached under another model.
func New(invoker CascadeInvoker, engine sqlengine.Engine, vectors vector.Backend, embedder embed.Provider, maxCacheEntries int, defaultTTL time.Duration, modelName string) *Runtime {
	if maxCacheEntries <= 0 {
		maxCacheEntries = 10_000
	}
	rt := &Runtime{
		invoker:   invoker,
		engine:    engine,
		vectors:   vectors,
		embedder:  embedder,
		modelName: modelName,
	}
	if defaultTTL > 0 {
		rt.cache = lru.NewLRU[string, string](maxCacheEntries, nil, defaultTTL)
	}
	return rt
}

// RegisterAll wires every UDF this Runtime implements into engine.
func (rt *Runtime) RegisterAll(engine sqlengine.Engine) error {
	if err := engine.RegisterScalarFunc("rvbbit", 2, rt.rvbbit); err != nil {
		return err
	}
	if err := engine.RegisterScalarFunc("rvbbit_run", 2, rt.rvbbitRun); err != nil {
		return err
	}
	if err := engine.RegisterScalarFunc("rvbbit_dimension_bucket", 2, rt.dimensionBucket); err != nil {
		return err
	}
	for _, argc := range []int{2, 3, 4} {
		if err := engine.RegisterScalarFunc("vector_search_json_"+strconv.Itoa(argc), argc, rt.vectorSearchJSON); err != nil {
			return err
		}
		if err := engine.RegisterScalarFunc("hybrid_search_json_"+strconv.Itoa(argc), argc, rt.hybridSearchJSON); err != nil {
			return err
		}
	}
	if err := engine.RegisterScalarFunc("embed_batch", 4, rt.embedBatch); err != nil {
		return err
	}
	return nil
}

// cacheKey implements §4.12.1: hash(cascade_or_instructions + normalized
// input + model). Callers append rt.modelName as the final part.
func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// cacheGet is a nil-safe lookup: a disabled cache (defaultTTL of 0) always
// misses.
func (rt *Runtime) cacheGet(key string) (string, bool) {
	if rt.cache == nil {
		return "", false
	}
	return rt.cache.Get(key)
}

// cacheAdd is a nil-safe insert, mirroring cacheGet.
func (rt *Runtime) cacheAdd(key, value string) {
	if rt.cache == nil {
		return
	}
	rt.cache.Add(key, value)
}

func normalizeInput(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(b)
}
