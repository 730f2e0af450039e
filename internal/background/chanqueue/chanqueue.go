// Package chanqueue is the default background.JobQueue backend: an
// in-process buffered channel. Matches the teacher's outbox.Worker
// poll-and-lease idiom generalized from SQL-row leasing (SELECT ... FOR
// UPDATE SKIP LOCKED) to a channel, since a single process has no need
// for row-level locking to hand a job to exactly one worker.
package chanqueue

import (
	"context"

	"github.com/rvbbit/rvbbit/internal/background"
)

// Queue is a buffered-channel background.JobQueue. Enqueue blocks once
// the buffer is full, applying backpressure to the submitter per spec
// §5 rather than growing unbounded.
type Queue struct {
	ch chan background.Job
}

// New constructs a Queue with the given buffer size.
func New(bufferSize int) *Queue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Queue{ch: make(chan background.Job, bufferSize)}
}

func (q *Queue) Enqueue(ctx context.Context, job background.Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dequeue(ctx context.Context) (background.Job, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return background.Job{}, ctx.Err()
	}
}
