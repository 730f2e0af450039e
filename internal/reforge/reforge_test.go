package reforge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

func TestLoop_RunsStepsSequentiallyAndChainsContent(t *testing.T) {
	var seenInputs []string
	runStep := func(ctx context.Context, seedContent, refinementPrompt string, step int) (model.Refinement, error) {
		seenInputs = append(seenInputs, seedContent)
		return model.Refinement{OutputContent: seedContent + "+"}, nil
	}

	l := New(runStep, nil)
	final, steps, err := l.Run(context.Background(), model.ReforgeSpec{Steps: 3, HoningPrompt: "tighten"}, model.Candidate{Content: "v0"})

	require.NoError(t, err)
	assert.Equal(t, "v0+++", final.Content)
	assert.Len(t, steps, 3)
	assert.Equal(t, []string{"v0", "v0+", "v0++"}, seenInputs)
}

func TestLoop_AppliesNamedMutationBeforeStep(t *testing.T) {
	var seenPrompts []string
	runStep := func(ctx context.Context, seedContent, refinementPrompt string, step int) (model.Refinement, error) {
		seenPrompts = append(seenPrompts, refinementPrompt)
		return model.Refinement{OutputContent: seedContent}, nil
	}
	mutations := map[string]Mutation{
		"tighten_labels": func(p string) string { return p + " (tightened)" },
	}

	l := New(runStep, mutations)
	_, _, err := l.Run(context.Background(), model.ReforgeSpec{
		Steps: 1, HoningPrompt: "refine", Mutations: []string{"tighten_labels"},
	}, model.Candidate{Content: "v0"})

	require.NoError(t, err)
	require.Len(t, seenPrompts, 1)
	assert.Contains(t, seenPrompts[0], "(tightened)")
}

func TestLoop_StopsOnStepError(t *testing.T) {
	calls := 0
	runStep := func(ctx context.Context, seedContent, refinementPrompt string, step int) (model.Refinement, error) {
		calls++
		return model.Refinement{}, model.NewProviderError("test", "boom")
	}

	l := New(runStep, nil)
	_, steps, err := l.Run(context.Background(), model.ReforgeSpec{Steps: 5, HoningPrompt: "x"}, model.Candidate{Content: "v0"})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, steps)
}
