package cell

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/logsink/memsink"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
)

func TestSetStateTool_WritesDurableStateRowAndEchoState(t *testing.T) {
	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tool := NewSetStateTool(sessions)

	cascade := model.Cascade{CascadeID: "test-cascade"}
	echo := model.NewEcho("sess-1", cascade, nil)
	require.NoError(t, sessions.Create(context.Background(), echo, nil))

	ctx := withRunState(context.Background(), runState{echo: echo, sessionID: "sess-1", cellName: "writer"})
	res, err := tool.Invoke(ctx, json.RawMessage(`{"key":"topic","value":"go"}`))

	require.NoError(t, err)
	assert.Equal(t, `"go"`, res.Content)
	assert.JSONEq(t, `"go"`, string(echo.State["topic"]))

	require.Len(t, sink.States, 1)
	assert.Equal(t, "topic", sink.States[0].Key)
	assert.Equal(t, "writer", sink.States[0].CellName)
}

func TestSetStateTool_MissingKeyReturnsError(t *testing.T) {
	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tool := NewSetStateTool(sessions)

	ctx := withRunState(context.Background(), runState{sessionID: "sess-1", cellName: "writer"})
	_, err := tool.Invoke(ctx, json.RawMessage(`{"value":"go"}`))

	assert.Error(t, err)
}

func TestSetStateTool_NoRunStateOnContextReturnsError(t *testing.T) {
	sink := memsink.New()
	sessions := sessionstore.New(sink)
	tool := NewSetStateTool(sessions)

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"key":"topic","value":"go"}`))

	assert.Error(t, err)
}
