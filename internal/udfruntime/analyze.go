package udfruntime

import (
	"context"
	"encoding/json"
)

// Analyze implements the ANALYZE '<criterion>' directive (§4.11 phase 1,
// §9's "post-query LLM analysis"): runs criterion against the query's own
// result rows, JSON-encoded as a single value, via the same ad-hoc
// one-cell cascade rvbbit(...) uses. Not cached — unlike rvbbit/rvbbit_run,
// a result set is rarely repeated verbatim across calls.
func (rt *Runtime) Analyze(ctx context.Context, criterion string, rows []map[string]interface{}) (string, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	res, err := rt.invoker.RunInstructions(ctx, criterion, string(b), "")
	if err != nil {
		return "", err
	}
	return res.Content, nil
}
