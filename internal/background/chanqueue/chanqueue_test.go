package chanqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/background"
)

func TestQueue_EnqueueDequeueRoundTrips(t *testing.T) {
	q := New(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, background.Job{ID: "1", SQL: "SELECT 1"}))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
}

func TestQueue_DequeueRespectsCancellation(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_EnqueueBlocksWhenFullUntilCanceled(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(context.Background(), background.Job{ID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, background.Job{ID: "2"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
