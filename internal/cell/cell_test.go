package cell

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/contextbuilder"
	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/logsink/memsink"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/tackle"
	"github.com/rvbbit/rvbbit/internal/ward"
)

// fakeLLM is a programmable llm.Client: fn receives the 1-based call
// count and the assembled request, and decides what to answer.
type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req llm.Request) (llm.Response, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, req)
}

func (f *fakeLLM) FetchUsage(ctx context.Context, requestID string) (int, int, float64, error) {
	return 0, 0, 0, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestExecutor(t *testing.T, llmClient llm.Client) (*Executor, *tackle.Registry, *ward.Engine, *model.Echo) {
	t.Helper()
	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tools := tackle.New(nil)
	tools.RegisterBuiltin("echo_tool", tackle.ToolFunc{
		Desc: "echoes its arguments back as content",
		Fn: func(ctx context.Context, args json.RawMessage) (tackle.Result, error) {
			return tackle.Result{Content: string(args)}, nil
		},
	})
	wards := ward.New(tools, nil)
	builder := contextbuilder.New(zerolog.Nop())

	exec := New(llmClient, tools, wards, sessions, sink, builder, zerolog.Nop(), "test-model", 4, 0)

	cascade := model.Cascade{CascadeID: "test-cascade"}
	echo := model.NewEcho("sess-1", cascade, map[string]interface{}{"topic": "go"})
	require.NoError(t, sessions.Create(context.Background(), echo, nil))

	return exec, tools, wards, echo
}

func TestExecutor_SingleTurnNoToolCalls(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "hello world"}, nil
	}}
	exec, _, _, echo := newTestExecutor(t, llmClient)

	cell := model.Cell{Name: "writer", Instructions: "write about {{.topic}}", Mode: model.CellModeAgent, MaxTurns: 1}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Content)
	assert.Equal(t, 1, llmClient.callCount())
}

func TestExecutor_ExecutesToolCallThenFollowsUp(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		if call == 1 {
			return llm.Response{ToolCalls: []llm.ToolCall{{Name: "echo_tool", Args: []byte(`{"x":1}`)}}}, nil
		}
		return llm.Response{Content: "done"}, nil
	}}
	exec, _, _, echo := newTestExecutor(t, llmClient)

	cell := model.Cell{
		Name: "agent", Instructions: "do the task", Mode: model.CellModeAgent,
		MaxTurns: 2, Traits: []string{"echo_tool"},
	}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.Equal(t, "done", res.Content)
	assert.Equal(t, 2, llmClient.callCount())
	assert.Len(t, echo.Messages["agent"], 2) // empty assistant msg excluded: tool result + final assistant
}

func TestExecutor_PromptBasedToolCallIsParsedAndRepaired(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		if call == 1 {
			// One extra closing brace: the model mistake §4.5.1 names.
			return llm.Response{Content: `{"name":"echo_tool","args":{"x":1}}}`}, nil
		}
		return llm.Response{Content: "done"}, nil
	}}

	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tools := tackle.New(nil)
	tools.RegisterBuiltin("echo_tool", tackle.ToolFunc{
		Desc: "echoes its arguments back as content",
		Fn: func(ctx context.Context, args json.RawMessage) (tackle.Result, error) {
			return tackle.Result{Content: string(args)}, nil
		},
	})
	wards := ward.New(tools, nil)
	builder := contextbuilder.New(zerolog.Nop())
	exec := New(llmClient, tools, wards, sessions, sink, builder, zerolog.Nop(), "test-model", 4, 0)

	cascade := model.Cascade{CascadeID: "test-cascade"}
	echo := model.NewEcho("sess-1", cascade, map[string]interface{}{"topic": "go"})
	require.NoError(t, sessions.Create(context.Background(), echo, nil))

	cell := model.Cell{
		Name: "agent", Instructions: "do the task", Mode: model.CellModeAgent,
		MaxTurns: 2, Traits: []string{"echo_tool"},
	}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.Equal(t, "done", res.Content)
	assert.Equal(t, 2, llmClient.callCount())

	var sawRepairWarning bool
	for _, r := range sink.RowsBySession("sess-1") {
		if r.NodeType == model.NodeAgent && r.TurnNumber != nil && *r.TurnNumber == 0 {
			sawRepairWarning = len(r.MetadataJSON) > 0 && strings.Contains(string(r.MetadataJSON), `"json_repair":true`)
		}
	}
	assert.True(t, sawRepairWarning, "first turn's agent row must record json_repair=true")
}

func TestExecutor_ToolModeCellInvokesRegisteredTool(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		t.Fatal("tool-mode cell must never invoke the LLM")
		return llm.Response{}, nil
	}}
	exec, _, _, echo := newTestExecutor(t, llmClient)

	cell := model.Cell{
		Name: "direct", Mode: model.CellModeTool, ToolName: "echo_tool",
		Inputs: map[string]string{"x": "{{.topic}}"},
	}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.JSONEq(t, `{"x":"go"}`, res.Content)
}

func TestExecutor_CandidatesSelectsWinnerViaEvaluator(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		sys := req.Messages[0].Content
		if strings.HasPrefix(sys, "pick best") {
			return llm.Response{Content: `{"winner_index":1}`}, nil
		}
		return llm.Response{Content: "variant-output"}, nil
	}}
	exec, _, _, echo := newTestExecutor(t, llmClient)

	cell := model.Cell{
		Name: "variant", Instructions: "produce X", Mode: model.CellModeAgent, MaxTurns: 1,
		Candidates: &model.CandidateSpec{
			Factor: "2", Mode: model.CandidateModeSelect,
			EvaluatorInstructions: "pick best", MaxParallel: 2,
		},
	}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.Equal(t, "variant-output", res.Content)
}

func TestExecutor_CandidatesLogExactlyOneWinner(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		sys := req.Messages[0].Content
		if strings.HasPrefix(sys, "pick best") {
			return llm.Response{Content: `{"winner_index":1}`}, nil
		}
		return llm.Response{Content: "variant-output"}, nil
	}}

	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tools := tackle.New(nil)
	wards := ward.New(tools, nil)
	builder := contextbuilder.New(zerolog.Nop())
	exec := New(llmClient, tools, wards, sessions, sink, builder, zerolog.Nop(), "test-model", 4, 0)

	cascade := model.Cascade{CascadeID: "test-cascade"}
	echo := model.NewEcho("sess-1", cascade, map[string]interface{}{"topic": "go"})
	require.NoError(t, sessions.Create(context.Background(), echo, nil))

	cell := model.Cell{
		Name: "variant", Instructions: "produce X", Mode: model.CellModeAgent, MaxTurns: 1,
		Candidates: &model.CandidateSpec{
			Factor: "2", Mode: model.CandidateModeSelect,
			EvaluatorInstructions: "pick best", MaxParallel: 2,
		},
	}
	_, err := exec.Run(context.Background(), echo, cell)
	require.NoError(t, err)

	winners := 0
	for _, r := range sink.RowsBySession("sess-1") {
		if r.NodeType == model.NodeCandidateEvaluated && r.IsWinner != nil && *r.IsWinner {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one candidate_evaluated row must have is_winner=true")
}

func TestExecutor_ReforgeChainsSequentialSteps(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == "system" {
			return llm.Response{Content: "v0"}, nil
		}
		return llm.Response{Content: last.Content + "+"}, nil
	}}
	exec, _, _, echo := newTestExecutor(t, llmClient)

	cell := model.Cell{
		Name: "refiner", Instructions: "seed", Mode: model.CellModeAgent, MaxTurns: 1,
		Reforge: &model.ReforgeSpec{Steps: 2, HoningPrompt: "improve: {{.artifact}}"},
	}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "improve:"))
	assert.Equal(t, 3, llmClient.callCount()) // seed + 2 reforge steps
}

func TestExecutor_PostWardRetryRerunsCellUntilValid(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		if call == 1 {
			return llm.Response{Content: "output-A"}, nil
		}
		return llm.Response{Content: "output-B"}, nil
	}}
	exec, tools, _, echo := newTestExecutor(t, llmClient)

	var validatorCalls int
	tools.RegisterBuiltin("validator_tool", tackle.ToolFunc{
		Desc: "validates cell output",
		Fn: func(ctx context.Context, args json.RawMessage) (tackle.Result, error) {
			validatorCalls++
			if validatorCalls == 1 {
				return tackle.Result{Content: `{"valid":false,"reason":"bad"}`}, nil
			}
			return tackle.Result{Content: `{"valid":true}`}, nil
		},
	})

	cell := model.Cell{
		Name: "checked", Instructions: "produce output", Mode: model.CellModeAgent, MaxTurns: 1,
		Wards: model.Wards{Post: []model.WardSpec{
			{Validator: "validator_tool", Mode: model.WardModeRetry, MaxAttempts: 2, RetryInstructions: "fix it"},
		}},
	}
	res, err := exec.Run(context.Background(), echo, cell)

	require.NoError(t, err)
	assert.Equal(t, "output-B", res.Content)
	assert.Equal(t, 2, llmClient.callCount())
	assert.Equal(t, 2, validatorCalls)
}

func TestExecutor_PostWardRetryLogsValidFalseThenValidTrue(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		if call == 1 {
			return llm.Response{Content: "fail"}, nil
		}
		return llm.Response{Content: "OK"}, nil
	}}

	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tools := tackle.New(nil)
	var validatorCalls int
	tools.RegisterBuiltin("validator_tool", tackle.ToolFunc{
		Desc: "requires OK",
		Fn: func(ctx context.Context, args json.RawMessage) (tackle.Result, error) {
			validatorCalls++
			if validatorCalls == 1 {
				return tackle.Result{Content: `{"valid":false,"reason":"missing OK"}`}, nil
			}
			return tackle.Result{Content: `{"valid":true}`}, nil
		},
	})
	wards := ward.New(tools, nil)
	builder := contextbuilder.New(zerolog.Nop())
	exec := New(llmClient, tools, wards, sessions, sink, builder, zerolog.Nop(), "test-model", 4, 0)

	cascade := model.Cascade{CascadeID: "test-cascade"}
	echo := model.NewEcho("sess-1", cascade, nil)
	require.NoError(t, sessions.Create(context.Background(), echo, nil))

	cell := model.Cell{
		Name: "checked", Instructions: "produce OK", Mode: model.CellModeAgent, MaxTurns: 1,
		Wards: model.Wards{Post: []model.WardSpec{
			{Validator: "validator_tool", Mode: model.WardModeRetry, MaxAttempts: 2, RetryInstructions: "fix it"},
		}},
	}
	_, err := exec.Run(context.Background(), echo, cell)
	require.NoError(t, err)

	var wardChecks []model.LogRow
	for _, r := range sink.RowsBySession("sess-1") {
		if r.NodeType == model.NodeWardCheck {
			wardChecks = append(wardChecks, r)
		}
	}
	require.Len(t, wardChecks, 2, "one ward_check row per attempt")
	assert.Equal(t, "post", wardChecks[0].Role)
	assert.Contains(t, string(wardChecks[0].ContentJSON), `"valid":false`)
	assert.Contains(t, string(wardChecks[1].ContentJSON), `"valid":true`)
}

func TestExecutor_PreWardBlockingFailsBeforeCellRuns(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		t.Fatal("cell must never run once a blocking pre-ward rejects it")
		return llm.Response{}, nil
	}}
	exec, tools, _, echo := newTestExecutor(t, llmClient)

	tools.RegisterBuiltin("validator_tool", tackle.ToolFunc{
		Desc: "always rejects",
		Fn: func(ctx context.Context, args json.RawMessage) (tackle.Result, error) {
			return tackle.Result{Content: `{"valid":false,"reason":"missing precondition"}`}, nil
		},
	})

	cell := model.Cell{
		Name: "guarded", Instructions: "produce output", Mode: model.CellModeAgent, MaxTurns: 1,
		Wards: model.Wards{Pre: []model.WardSpec{{Validator: "validator_tool", Mode: model.WardModeBlocking}}},
	}
	_, err := exec.Run(context.Background(), echo, cell)

	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Equal(t, 0, llmClient.callCount())
}
