package cascade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/cell"
	"github.com/rvbbit/rvbbit/internal/contextbuilder"
	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/logsink/memsink"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/tackle"
	"github.com/rvbbit/rvbbit/internal/ward"
)

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

type fakeRowSource struct {
	rows []map[string]interface{}
}

func (f fakeRowSource) Rows(ctx context.Context, table string) ([]map[string]interface{}, error) {
	return f.rows, nil
}

func newTestRunner(
	t *testing.T,
	llmClient llm.Client,
	catalog map[string]model.Cascade,
	rows RowSource,
	results ResultWriter,
	maxDepth int,
) (*Runner, *sessionstore.Store, *memsink.Sink) {
	t.Helper()
	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tools := tackle.New(nil)
	wards := ward.New(tools, nil)
	builder := contextbuilder.New(zerolog.Nop())
	executor := cell.New(llmClient, tools, wards, sessions, sink, builder, zerolog.Nop(), "test-model", 4, 0)
	runner := New(executor, sessions, sink, catalog, rows, results, zerolog.Nop(), maxDepth)
	return runner, sessions, sink
}

func TestRunner_RunsCellsSequentiallyAndReturnsLastCellContent(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		sys := req.Messages[0].Content
		if strings.Contains(sys, "do2") {
			return llm.Response{Content: "result-2"}, nil
		}
		return llm.Response{Content: "result-1"}, nil
	}}
	runner, _, _ := newTestRunner(t, llmClient, nil, nil, nil, 5)

	c := model.Cascade{CascadeID: "seq", Cells: []model.Cell{
		{Name: "c1", Instructions: "do1", Mode: model.CellModeAgent, MaxTurns: 1},
		{Name: "c2", Instructions: "do2", Mode: model.CellModeAgent, MaxTurns: 1},
	}}

	res, err := runner.Run(context.Background(), c, nil, RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, "result-2", res.Content)
	assert.Equal(t, model.SessionCompleted, res.Status)
}

func TestRunner_CellErrorMarksSessionFailed(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		sys := req.Messages[0].Content
		if strings.Contains(sys, "do2") {
			return llm.Response{}, errors.New("boom")
		}
		return llm.Response{Content: "ok1"}, nil
	}}
	runner, _, _ := newTestRunner(t, llmClient, nil, nil, nil, 5)

	c := model.Cascade{CascadeID: "seq-fail", Cells: []model.Cell{
		{Name: "c1", Instructions: "do1", Mode: model.CellModeAgent, MaxTurns: 1},
		{Name: "c2", Instructions: "do2", Mode: model.CellModeAgent, MaxTurns: 1},
	}}

	res, err := runner.Run(context.Background(), c, nil, RunOptions{})

	require.Error(t, err)
	assert.Equal(t, model.SessionFailed, res.Status)
}

func TestRunner_RunAsToolRunsSubCascadeAsChild(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "child-output"}, nil
	}}
	child := model.Cascade{CascadeID: "child", Cells: []model.Cell{
		{Name: "c1", Instructions: "child cell", Mode: model.CellModeAgent, MaxTurns: 1},
	}}
	catalog := map[string]model.Cascade{"child": child}
	runner, _, sink := newTestRunner(t, llmClient, catalog, nil, nil, 5)

	parent := model.Cascade{CascadeID: "parent", Cells: []model.Cell{
		{Name: "p1", Instructions: "parent cell", Mode: model.CellModeAgent, MaxTurns: 1},
	}}
	parentRes, err := runner.Run(context.Background(), parent, nil, RunOptions{})
	require.NoError(t, err)

	toolRes, err := runner.RunAsTool(context.Background(), "child", map[string]interface{}{"x": 1}, parentRes.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "child-output", toolRes.Content)

	var childRow *model.CascadeSessionRow
	for i := range sink.Sessions {
		if sink.Sessions[i].CascadeID == "child" {
			childRow = &sink.Sessions[i]
		}
	}
	require.NotNil(t, childRow)
	assert.Equal(t, 1, childRow.Depth)
	assert.Equal(t, parentRes.SessionID, childRow.ParentSessionID)
}

func TestRunner_RunValidatorCascadeParsesOutcome(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: `{"valid":false,"reason":"nope"}`}, nil
	}}
	validator := model.Cascade{CascadeID: "validator", Cells: []model.Cell{
		{Name: "check", Instructions: "check it", Mode: model.CellModeAgent, MaxTurns: 1},
	}}
	catalog := map[string]model.Cascade{"validator": validator}
	runner, _, _ := newTestRunner(t, llmClient, catalog, nil, nil, 5)

	outcome, err := runner.RunValidatorCascade(context.Background(), "validator", nil)

	require.NoError(t, err)
	assert.False(t, outcome.Valid)
	assert.Equal(t, "nope", outcome.Reason)
}

func TestRunner_ForEachRowFailFastPropagatesRowError(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		sys := req.Messages[0].Content
		if strings.Contains(sys, "process 2") {
			return llm.Response{}, errors.New("row 2 boom")
		}
		return llm.Response{Content: "ok"}, nil
	}}
	child := model.Cascade{CascadeID: "child", Cells: []model.Cell{
		{Name: "c1", Instructions: "process {{.id}}", Mode: model.CellModeAgent, MaxTurns: 1},
	}}
	catalog := map[string]model.Cascade{"child": child}
	rows := fakeRowSource{rows: []map[string]interface{}{{"id": 1}, {"id": 2}}}
	runner, _, _ := newTestRunner(t, llmClient, catalog, rows, nil, 5)

	c := model.Cascade{CascadeID: "mapper-parent", Cells: []model.Cell{
		{Name: "mapper", ForEachRow: &model.ForEachRowSpec{
			Table: "rows_table", Cascade: "child", Inputs: map[string]string{"id": "{{.id}}"},
			MaxParallel: 1, OnError: model.OnErrorFailFast,
		}},
	}}

	_, err := runner.Run(context.Background(), c, nil, RunOptions{})

	require.Error(t, err)
}

func TestRunner_ForEachRowContinueCollectsErrorsAndKeepsGoing(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		sys := req.Messages[0].Content
		if strings.Contains(sys, "process 2") {
			return llm.Response{}, errors.New("row 2 boom")
		}
		return llm.Response{Content: "ok"}, nil
	}}
	child := model.Cascade{CascadeID: "child", Cells: []model.Cell{
		{Name: "c1", Instructions: "process {{.id}}", Mode: model.CellModeAgent, MaxTurns: 1},
	}}
	catalog := map[string]model.Cascade{"child": child}
	rows := fakeRowSource{rows: []map[string]interface{}{{"id": 1}, {"id": 2}}}
	runner, sessions, _ := newTestRunner(t, llmClient, catalog, rows, nil, 5)

	c := model.Cascade{CascadeID: "mapper-parent2", Cells: []model.Cell{
		{Name: "mapper", ForEachRow: &model.ForEachRowSpec{
			Table: "rows_table", Cascade: "child", Inputs: map[string]string{"id": "{{.id}}"},
			MaxParallel: 2, OnError: model.OnErrorContinue,
		}},
	}}

	res, err := runner.Run(context.Background(), c, nil, RunOptions{})

	require.NoError(t, err)
	echo, ok := sessions.Get(res.SessionID)
	require.True(t, ok)
	require.Len(t, echo.Errors, 1)
	assert.Equal(t, "mapper", echo.Errors[0].CellName)
}

func TestRunner_ExceedsMaxCascadeDepthReturnsPolicyError(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		t.Fatal("must not run any cell once depth is rejected")
		return llm.Response{}, nil
	}}
	runner, _, _ := newTestRunner(t, llmClient, nil, nil, nil, 1)

	c := model.Cascade{CascadeID: "deep", Cells: []model.Cell{{Name: "c1", Instructions: "x", Mode: model.CellModeAgent, MaxTurns: 1}}}
	_, err := runner.Run(context.Background(), c, nil, RunOptions{Depth: 2})

	require.Error(t, err)
	assert.True(t, model.IsPolicyError(err))
}

func TestRunner_CancelDelegatesToSessionStore(t *testing.T) {
	llmClient := &fakeLLM{fn: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "x"}, nil
	}}
	runner, sessions, _ := newTestRunner(t, llmClient, nil, nil, nil, 5)

	var canceled bool
	echo := model.NewEcho("manual-1", model.Cascade{CascadeID: "c"}, nil)
	require.NoError(t, sessions.Create(context.Background(), echo, func() { canceled = true }))

	assert.True(t, runner.Cancel("manual-1"))
	assert.True(t, canceled)
	assert.False(t, runner.Cancel("unknown"))
}
