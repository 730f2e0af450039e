package tackle

import (
	"context"

	"github.com/rvbbit/rvbbit/internal/model"
)

// QuartermasterRunner runs the quartermaster meta-cell: given a synopsis of
// all available tools and the target cell, it selects the subset to
// expose. Implemented by cell.Executor (per spec §9's "evaluator as
// meta-cell" design note, applied identically here) and accepted as an
// interface to avoid an import cycle between tackle and cell.
type QuartermasterRunner interface {
	SelectTools(ctx context.Context, targetCell model.Cell, allSynopses []string) (selected []string, rationale string, err error)
}

// ResolveTraits returns the tool names available to cell: either the
// literal traits list, or — when the cell declares traits: [manifest] —
// the quartermaster's selection over every registered tool.
func (r *Registry) ResolveTraits(ctx context.Context, cell model.Cell, qm QuartermasterRunner) ([]string, string, error) {
	if !cell.IsManifest() {
		return cell.Traits, "", nil
	}
	all := r.Names()
	selected, rationale, err := qm.SelectTools(ctx, cell, r.Synopses(all))
	if err != nil {
		return nil, "", err
	}
	return selected, rationale, nil
}
