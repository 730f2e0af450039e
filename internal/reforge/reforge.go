// Package reforge implements the RefinementLoop (spec §4.8): sequential
// (never parallel) refinement of a winning artifact over a fixed number
// of steps, each re-invoking the cell with the prior content as seed.
package reforge

import (
	"context"

	"github.com/rvbbit/rvbbit/internal/contextbuilder/tmpl"
	"github.com/rvbbit/rvbbit/internal/model"
)

// Mutation rewrites a honing prompt before a given step, e.g.
// "tighten_labels" tightening chart label text.
type Mutation func(prompt string) string

// RunStep re-invokes the cell with seed content and a refinement prompt,
// returning the new artifact. Implemented by cell.Executor.
type RunStep func(ctx context.Context, seedContent, refinementPrompt string, step int) (model.Refinement, error)

// Loop runs a cell's reforge steps in strict sequence.
type Loop struct {
	runStep   RunStep
	mutations map[string]Mutation
}

// New constructs a Loop. mutations maps a named mutation (as referenced
// in a cell's reforge.mutations list) to the function that rewrites the
// honing prompt before that step.
func New(runStep RunStep, mutations map[string]Mutation) *Loop {
	return &Loop{runStep: runStep, mutations: mutations}
}

// Run executes spec.Steps sequential refinements starting from seed,
// applying any declared mutation before each step, and returns the final
// artifact.
func (l *Loop) Run(ctx context.Context, spec model.ReforgeSpec, seed model.Candidate) (model.Candidate, []model.Refinement, error) {
	content := seed.Content
	var steps []model.Refinement

	for s := 0; s < spec.Steps; s++ {
		prompt := spec.HoningPrompt
		if s < len(spec.Mutations) {
			if mut, ok := l.mutations[spec.Mutations[s]]; ok {
				prompt = mut(prompt)
			}
		}

		rendered, err := tmpl.Render(prompt, map[string]interface{}{"artifact": content, "step": s})
		if err != nil {
			return seed, steps, model.NewParseError("honing_prompt", err.Error())
		}

		refinement, err := l.runStep(ctx, content, rendered, s)
		if err != nil {
			return seed, steps, err
		}
		refinement.StepIndex = s
		refinement.InputContent = content
		refinement.HoningPrompt = rendered
		steps = append(steps, refinement)
		content = refinement.OutputContent
	}

	final := seed
	final.Content = content
	return final, steps, nil
}
