package sqlrewriter

import "strings"

// Rewriter runs a SQL statement through the ordered phase pipeline
// (§4.11). The pipeline is idempotent on already-rewritten SQL: every
// phase matches on the original surface keyword/function names, and a
// rewritten call never reuses one of those names, so re-running Rewrite
// on its own output is a no-op pass-through.
type Rewriter struct {
	aggregates     map[string]AggregateOperator
	dimensionFuncs map[string]bool
}

// New constructs a Rewriter. aggregates registers the cascade-declared
// aggregate operators (SUMMARIZE, THEMES-as-aggregate, CONSENSUS, ...)
// this engine instance knows about; dimensionFuncs overrides the default
// GROUP BY dimension-function name set (topics/themes/categories/clusters)
// when nil.
func New(aggregates []AggregateOperator, dimensionFuncs map[string]bool) *Rewriter {
	aggMap := make(map[string]AggregateOperator, len(aggregates))
	for _, a := range aggregates {
		aggMap[strings.ToUpper(a.Alias)] = a
	}
	if dimensionFuncs == nil {
		dimensionFuncs = defaultDimensionFuncs
	}
	return &Rewriter{aggregates: aggMap, dimensionFuncs: dimensionFuncs}
}

// Rewrite runs sql through the full pipeline and returns the rewritten
// SQL text plus the accumulated Plan. When the statement is an
// "RVBBIT MAP/RUN PARALLEL N" (N>1), the returned SQL is empty and
// plan.Map.Parallelism > 1 — the caller must route execution through
// udfruntime's MAP PARALLEL interception (§4.12.2) instead of the
// underlying SQL engine.
func (r *Rewriter) Rewrite(sql string) (string, Plan, error) {
	toks, err := Lex(sql)
	if err != nil {
		return "", Plan{}, err
	}

	var plan Plan
	toks = stripDirectives(toks, &plan)

	toks, err = rewriteVectorSearch(toks)
	if err != nil {
		return "", Plan{}, err
	}

	toks, err = rewriteEmbedBlock(toks)
	if err != nil {
		return "", Plan{}, err
	}

	mapToks, mapPlan, merr := extractMapRun(toks)
	if merr != nil {
		return "", Plan{}, merr
	}
	if mapPlan != nil {
		plan.Map = mapPlan
		if mapPlan.Parallelism > 1 {
			return "", plan, nil
		}
		toks = mapToks
	}

	toks, err = rewriteDimensionFunctions(toks, r.dimensionFuncs)
	if err != nil {
		return "", Plan{}, err
	}

	toks, err = rewriteInfixOperators(toks)
	if err != nil {
		return "", Plan{}, err
	}

	toks, err = rewriteAggregates(toks, r.aggregates)
	if err != nil {
		return "", Plan{}, err
	}

	return render(toks), plan, nil
}
