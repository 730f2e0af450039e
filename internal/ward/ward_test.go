package ward

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

type fakeToolRunner struct {
	outcome Outcome
	err     error
}

func (f *fakeToolRunner) RunValidatorTool(ctx context.Context, name string, args json.RawMessage) (Outcome, error) {
	return f.outcome, f.err
}

// sequencedToolRunner returns one outcome per call, in order, holding the
// last one for any call past the end of the slice.
type sequencedToolRunner struct {
	outcomes []Outcome
	call     int
}

func (f *sequencedToolRunner) RunValidatorTool(ctx context.Context, name string, args json.RawMessage) (Outcome, error) {
	idx := f.call
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	f.call++
	return f.outcomes[idx], nil
}

func TestEngine_BlockingFailsImmediately(t *testing.T) {
	e := New(&fakeToolRunner{outcome: Outcome{Valid: false, Reason: "bad"}}, nil)

	_, err := e.Apply(context.Background(), model.WardSpec{Validator: "v", Mode: model.WardModeBlocking}, "content", nil, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
}

func TestEngine_AdvisoryNeverFails(t *testing.T) {
	e := New(&fakeToolRunner{outcome: Outcome{Valid: false, Reason: "meh"}}, nil)

	out, err := e.Apply(context.Background(), model.WardSpec{Validator: "v", Mode: model.WardModeAdvisory}, "content", nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "content", out)
}

func TestEngine_RetryReRunsUntilValidOrExhausted(t *testing.T) {
	calls := 0
	e := New(&fakeToolRunner{outcome: Outcome{Valid: false, Reason: "nope"}}, nil)

	_, err := e.Apply(context.Background(),
		model.WardSpec{Validator: "v", Mode: model.WardModeRetry, MaxAttempts: 3, RetryInstructions: "retry: {{.validation_error}}"},
		"content", nil, nil,
		func(ctx context.Context, retryPrompt string) (string, error) {
			calls++
			assert.Contains(t, retryPrompt, "nope")
			return "content-v2", nil
		},
		nil,
	)

	require.Error(t, err)
	assert.Equal(t, 2, calls, "should retry (max_attempts-1) times before giving up")
}

func TestEngine_RetryReportsEachAttemptOutcome(t *testing.T) {
	outcomes := []Outcome{{Valid: false, Reason: "fail"}, {Valid: true}}
	calls := 0
	tools := &sequencedToolRunner{outcomes: outcomes}
	e := New(tools, nil)

	var reported []Outcome
	var attempts []int

	_, err := e.Apply(context.Background(),
		model.WardSpec{Validator: "v", Mode: model.WardModeRetry, MaxAttempts: 2, RetryInstructions: "retry: {{.validation_error}}"},
		"content", nil, nil,
		func(ctx context.Context, retryPrompt string) (string, error) {
			calls++
			return "content-v2", nil
		},
		func(attempt int, outcome Outcome) {
			attempts = append(attempts, attempt)
			reported = append(reported, outcome)
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{1, 2}, attempts)
	require.Len(t, reported, 2)
	assert.False(t, reported[0].Valid)
	assert.True(t, reported[1].Valid)
}

func TestEngine_SchemaValidationRejectsMismatch(t *testing.T) {
	e := New(&fakeToolRunner{outcome: Outcome{Valid: true}}, nil)
	spec := model.WardSpec{
		Validator:   "schema_check",
		Mode:        model.WardModeBlocking,
		MaxAttempts: 1,
		OutputSchema: model.RawValue(`{"type":"object","required":["greeting"],"properties":{"greeting":{"type":"string"}}}`),
	}

	_, err := e.Apply(context.Background(), spec, `{"nope":1}`, nil, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
}

func TestEngine_SchemaValidationAcceptsMatch(t *testing.T) {
	e := New(&fakeToolRunner{outcome: Outcome{Valid: true}}, nil)
	spec := model.WardSpec{
		Validator:   "schema_check",
		Mode:        model.WardModeBlocking,
		MaxAttempts: 1,
		OutputSchema: model.RawValue(`{"type":"object","required":["greeting"]}`),
	}

	out, err := e.Apply(context.Background(), spec, `{"greeting":"hi"}`, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"greeting":"hi"}`, out)
}
