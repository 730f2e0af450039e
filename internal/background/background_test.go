package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/identity"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func (q *fakeQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func TestScheduler_SubmitSeedsIdentityForHandler(t *testing.T) {
	queue := &fakeQueue{}
	tokens := identity.NewTokenStore()

	seen := make(chan identity.Identity, 1)
	handler := func(ctx context.Context, job Job) error {
		seen <- identity.Get(ctx)
		return nil
	}

	sched := NewScheduler(queue, tokens, handler, zerolog.Nop())

	ctx := identity.Set(context.Background(), identity.Identity{CallerID: "http-abc"})
	jobID, err := sched.Submit(ctx, "RVBBIT MAP classify FROM docs")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	runCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { _ = sched.Run(runCtx, 1) }()

	select {
	case id := <-seen:
		assert.Equal(t, "http-abc", id.CallerID)
	case <-time.After(150 * time.Millisecond):
		t.Fatal("handler never invoked")
	}

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if h, ok := sched.Lookup(jobID); ok && h.Status == StatusDone {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached done status")
}

func TestScheduler_HandlerFailureMarksJobFailed(t *testing.T) {
	queue := &fakeQueue{}
	tokens := identity.NewTokenStore()
	handler := func(ctx context.Context, job Job) error {
		return errors.New("boom")
	}
	sched := NewScheduler(queue, tokens, handler, zerolog.Nop())

	jobID, err := sched.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { _ = sched.Run(runCtx, 1) }()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if h, ok := sched.Lookup(jobID); ok && h.Status == StatusFailed {
			assert.Equal(t, "boom", h.Error)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached failed status")
}

func TestScheduler_LookupUnknownJobReturnsFalse(t *testing.T) {
	sched := NewScheduler(&fakeQueue{}, identity.NewTokenStore(), func(context.Context, Job) error { return nil }, zerolog.Nop())
	_, ok := sched.Lookup("never-submitted")
	assert.False(t, ok)
}
