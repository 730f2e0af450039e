package udfruntime

import (
	"context"
	"encoding/json"

	"github.com/rvbbit/rvbbit/internal/identity"
)

const (
	defaultTopK     = 10
	defaultMinScore = 0.0
	defaultAlpha    = 0.5
)

// searchArgs normalizes the vector_search_json_N/hybrid_search_json_N
// family's variable arity (§4.12.3): the rewriter emits 2, 3, or 4
// positional arguments depending on how much the RVBBIT SEARCH grammar's
// call specified explicitly, always in (table, [column,] query, [topK]) or
// (table, [column,] query, [alpha]) order with the tail argument typed by
// the caller, not the column position.
type searchArgs struct {
	table   string
	column  string
	query   string
	topK    int
	tail    float64
	hasTail bool
}

func parseSearchArgs(args []interface{}) (searchArgs, bool) {
	sa := searchArgs{topK: defaultTopK}
	switch len(args) {
	case 2:
		table, ok1 := args[0].(string)
		query, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return sa, false
		}
		sa.table, sa.query = table, query
	case 3:
		table, ok1 := args[0].(string)
		column, ok2 := args[1].(string)
		query, ok3 := args[2].(string)
		if !ok1 || !ok2 || !ok3 {
			return sa, false
		}
		sa.table, sa.column, sa.query = table, column, query
	case 4:
		table, ok1 := args[0].(string)
		column, ok2 := args[1].(string)
		query, ok3 := args[2].(string)
		if !ok1 || !ok2 || !ok3 {
			return sa, false
		}
		sa.table, sa.column, sa.query = table, column, query
		if f, ok := toFloat64(args[3]); ok {
			sa.tail, sa.hasTail = f, true
		}
	default:
		return sa, false
	}
	return sa, true
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// vectorSearchJSON implements vector_search_json_N(table, [column,] query,
// [topK]) (§4.12.3): embeds query, searches the vector backend tenant-scoped
// to the calling caller_id, and returns the top-k scored rows as a JSON
// array string so the rewritten SQL's read_json_auto(...) wrapper can
// project it back into relational rows.
func (rt *Runtime) vectorSearchJSON(ctx context.Context, args ...interface{}) (interface{}, error) {
	if rt.vectors == nil || rt.embedder == nil {
		return errorResult, nil
	}
	sa, ok := parseSearchArgs(args)
	if !ok {
		return errorResult, nil
	}
	topK := sa.topK
	if sa.hasTail {
		topK = int(sa.tail)
	}

	vecs, err := rt.embedder.Embed(ctx, []string{sa.query})
	if err != nil || len(vecs) != 1 {
		return errorResult, nil
	}

	tenant := identity.Get(ctx).CallerID
	results, err := rt.vectors.VectorSearch(ctx, tenant, sa.table, sa.column, sa.query, vecs[0], topK, defaultMinScore)
	if err != nil {
		return errorResult, nil
	}
	b, merr := json.Marshal(results)
	if merr != nil {
		return errorResult, nil
	}
	return string(b), nil
}

// hybridSearchJSON implements hybrid_search_json_N(table, [column,] query,
// [alpha]) (§4.12.3): same shape as vectorSearchJSON, but blends the vector
// score with the backend's keyword (BM25) relevance via alpha (0 =
// keyword-only, 1 = vector-only), defaulting to an even blend.
func (rt *Runtime) hybridSearchJSON(ctx context.Context, args ...interface{}) (interface{}, error) {
	if rt.vectors == nil || rt.embedder == nil {
		return errorResult, nil
	}
	sa, ok := parseSearchArgs(args)
	if !ok {
		return errorResult, nil
	}
	alpha := float32(defaultAlpha)
	if sa.hasTail {
		alpha = float32(sa.tail)
	}

	vecs, err := rt.embedder.Embed(ctx, []string{sa.query})
	if err != nil || len(vecs) != 1 {
		return errorResult, nil
	}

	tenant := identity.Get(ctx).CallerID
	results, err := rt.vectors.HybridSearch(ctx, tenant, sa.table, sa.column, sa.query, vecs[0], sa.topK, alpha)
	if err != nil {
		return errorResult, nil
	}
	b, merr := json.Marshal(results)
	if merr != nil {
		return errorResult, nil
	}
	return string(b), nil
}
