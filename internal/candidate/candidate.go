// Package candidate implements the CandidateLoop (spec §4.7): N parallel
// variants of a cell, routed to an evaluator cell that picks a winner.
package candidate

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/rvbbit/rvbbit/internal/model"
)

// RunBranch executes one candidate branch: a full, isolated run of the
// cell against branchSessionID. Implemented by cell.Executor and passed
// in as a closure so this package never imports cell (avoiding the
// cell <-> candidate import cycle, since cell.Executor is what invokes
// candidate.Loop for cells that declare `candidates`).
type RunBranch func(ctx context.Context, branchSessionID string, index int) (model.Candidate, error)

// Evaluate runs the evaluator cell over the completed candidates and
// returns the outcome matching spec's four modes. Implemented by
// cell.Executor (the evaluator is itself a cell).
type Evaluate func(ctx context.Context, candidates []model.Candidate, mode model.CandidateMode) (winnerIndex int, aggregated string, err error)

// Loop runs candidate exploration for one cell invocation.
type Loop struct {
	runBranch RunBranch
	evaluate  Evaluate
}

// New constructs a Loop.
func New(runBranch RunBranch, evaluate Evaluate) *Loop {
	return &Loop{runBranch: runBranch, evaluate: evaluate}
}

// Run spawns factor branches (bounded by maxParallel), waits for all to
// complete, then evaluates. It returns the winner plus every branch
// candidate (including losers) with Winner set, so the caller can log
// exactly one is_winner=true row per cell (spec §8 invariant 3) only once
// the winner is actually known, rather than at each branch's own
// completion time.
func (l *Loop) Run(ctx context.Context, sessionID string, spec model.CandidateSpec, factor, maxParallel int) (model.Candidate, []model.Candidate, error) {
	if factor <= 0 {
		factor = 1
	}
	if maxParallel <= 0 {
		maxParallel = factor
	}

	candidates := make([]model.Candidate, factor)
	branchErrs := make([]error, factor)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i := 0; i < factor; i++ {
		i := i
		g.Go(func() error {
			branchSessionID := sessionID + "_c" + strconv.Itoa(i)
			c, err := l.runBranch(gctx, branchSessionID, i)
			candidates[i] = c
			branchErrs[i] = err
			// Branch failures never abort the group: every branch must be
			// attempted and logged so all_or_nothing can see every failure.
			return nil
		})
	}
	_ = g.Wait()

	allFailed := true
	for _, err := range branchErrs {
		if err == nil {
			allFailed = false
			break
		}
	}
	if allFailed {
		return model.Candidate{}, nil, model.NewCandidateExhaustionError("", factor)
	}

	if spec.Mode == model.CandidateModeAllOrNothing {
		for _, err := range branchErrs {
			if err != nil {
				return model.Candidate{}, nil, model.NewCandidateExhaustionError("", factor)
			}
		}
	}

	// A factor of 1 has nothing to pick between: §8's boundary behavior
	// requires it to execute exactly once and skip the evaluator entirely,
	// rather than running a one-candidate evaluator meta-cell just to
	// rubber-stamp the only branch that ran.
	if factor == 1 {
		candidates[0].Winner = true
		return candidates[0], candidates, nil
	}

	winnerIdx, aggregated, err := l.evaluate(ctx, candidates, spec.Mode)
	if err != nil {
		return model.Candidate{}, nil, err
	}

	if spec.Mode == model.CandidateModeAggregate {
		// Aggregate mode merges every branch rather than picking one, so no
		// single branch is the "winner" — none of the returned candidates
		// carry Winner=true, matching invariant 3's silence on this mode.
		winner := model.Candidate{Index: -1, Content: aggregated, Winner: true, SessionID: sessionID}
		return winner, candidates, nil
	}

	if winnerIdx < 0 || winnerIdx >= len(candidates) {
		return model.Candidate{}, nil, model.NewCandidateExhaustionError("", factor)
	}
	candidates[winnerIdx].Winner = true
	return candidates[winnerIdx], candidates, nil
}
