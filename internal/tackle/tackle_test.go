package tackle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

func TestRegistry_InvokeBuiltin(t *testing.T) {
	r := New(nil)
	r.RegisterBuiltin("echo", ToolFunc{
		Desc: "echoes its args",
		Fn: func(ctx context.Context, args json.RawMessage) (Result, error) {
			return Result{Content: string(args)}, nil
		},
	})

	res, err := r.Invoke(context.Background(), "sess-1", Call{Name: "echo", Args: json.RawMessage(`{"x":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, res.Content)
}

func TestRegistry_InvokeUnknownToolReturnsToolError(t *testing.T) {
	r := New(nil)
	_, err := r.Invoke(context.Background(), "sess-1", Call{Name: "nope"})
	assert.True(t, model.IsToolError(err))
}

type fakeInvoker struct{ called bool }

func (f *fakeInvoker) RunAsTool(ctx context.Context, cascadeID string, inputs map[string]interface{}, parentSessionID string) (Result, error) {
	f.called = true
	return Result{Content: "ran " + cascadeID}, nil
}

func TestRegistry_InvokeCascadeTool(t *testing.T) {
	inv := &fakeInvoker{}
	r := New(inv)
	r.RegisterCascadeTool(model.Cascade{CascadeID: "summarize"})

	res, err := r.Invoke(context.Background(), "sess-1", Call{Name: "summarize", Args: json.RawMessage(`{"text":"hi"}`)})
	require.NoError(t, err)
	assert.True(t, inv.called)
	assert.Equal(t, "ran summarize", res.Content)
}

func TestRegistry_NamesSortedAndSynopses(t *testing.T) {
	r := New(nil)
	r.RegisterBuiltin("zeta", ToolFunc{Desc: "z tool"})
	r.RegisterBuiltin("alpha", ToolFunc{Desc: "a tool"})

	names := r.Names()
	require.Equal(t, []string{"alpha", "zeta"}, names)

	syn := r.Synopses(names)
	require.Len(t, syn, 2)
	assert.Contains(t, syn[0], "alpha: a tool")
}
