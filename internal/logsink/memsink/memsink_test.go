package memsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

func TestSink_LogAppendsInOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Log(ctx, model.LogRow{SessionID: "s1", NodeType: model.NodeCascadeStart}))
	require.NoError(t, s.Log(ctx, model.LogRow{SessionID: "s1", NodeType: model.NodeCellStart}))
	require.NoError(t, s.Log(ctx, model.LogRow{SessionID: "s2", NodeType: model.NodeCascadeStart}))

	rows := s.RowsBySession("s1")
	require.Len(t, rows, 2)
	assert.Equal(t, model.NodeCascadeStart, rows[0].NodeType)
	assert.Equal(t, model.NodeCellStart, rows[1].NodeType)
}

func TestSink_RowsByCallerID(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Log(ctx, model.LogRow{SessionID: "s1", CallerID: "http-abc"}))
	require.NoError(t, s.Log(ctx, model.LogRow{SessionID: "s2", CallerID: "http-abc"}))
	require.NoError(t, s.Log(ctx, model.LogRow{SessionID: "s3", CallerID: "http-xyz"}))

	assert.Len(t, s.RowsByCallerID("http-abc"), 2)
	assert.Len(t, s.RowsByCallerID("http-xyz"), 1)
}

func TestSink_WriteStateAndSession(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WriteState(ctx, model.StateSnapshotRow{SessionID: "s1", Key: "k"}))
	require.NoError(t, s.WriteSession(ctx, model.CascadeSessionRow{SessionID: "s1"}))

	assert.Len(t, s.States, 1)
	assert.Len(t, s.Sessions, 1)
}
