// Package background implements BackgroundScheduler (spec §4.13): a
// pluggable-queue fire-and-forget job runner for `BACKGROUND <query>` SQL
// statements (§4.1, §6's "identity across backgrounds" example). A
// submitted job's identity is seeded into an identity.TokenStore at
// Submit time and restored onto the worker goroutine's context before the
// query actually runs, so every log row the background execution produces
// still carries the submitting caller's caller_id even though it runs on
// an unrelated goroutine.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rvbbit/rvbbit/internal/identity"
)

// Job is one unit of background work: a SQL statement as submitted (its
// leading BACKGROUND directive still in place) for fire-and-forget
// execution; the handler runs it through sqlrewriter, which strips the
// directive, before executing it.
type Job struct {
	ID       string
	SQL      string
	CallerID string
}

// JobQueue is the transport a Scheduler enqueues jobs onto and consumes
// them from. chanqueue.Queue (default, in-process) and kafkaqueue.Queue
// (durable, multi-process) both implement it.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}

// Status is a submitted job's lifecycle state, queryable via
// Scheduler.Lookup.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Handle is a submitted job's current, point-in-time status snapshot.
type Handle struct {
	ID        string
	Status    Status
	Error     string
	UpdatedAt time.Time
}

// Handler executes one job's SQL. Wired by the factory to the same
// sqlengine.Engine/sqlrewriter.Rewriter pipeline the synchronous HTTP/SQL
// front door uses, so BACKGROUND and foreground execution share one code
// path.
type Handler func(ctx context.Context, job Job) error

// Scheduler submits jobs onto a JobQueue and drains them with a bounded
// worker pool, tracking per-job status for Lookup.
type Scheduler struct {
	queue   JobQueue
	tokens  *identity.TokenStore
	handler Handler
	log     zerolog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewScheduler constructs a Scheduler. tokens is the identity.TokenStore
// shared with the rest of the process's identity propagation (spec §3.5
// tier 2).
func NewScheduler(queue JobQueue, tokens *identity.TokenStore, handler Handler, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		queue:   queue,
		tokens:  tokens,
		handler: handler,
		log:     log,
		handles: make(map[string]*Handle),
	}
}

// Submit enqueues sql for background execution and returns its job id
// immediately, without waiting for the job to run.
func (s *Scheduler) Submit(ctx context.Context, sql string) (string, error) {
	jobID := uuid.New().String()
	id := identity.Get(ctx)
	s.tokens.Seed(jobID, id)
	s.setHandle(jobID, StatusPending, "")

	if err := s.queue.Enqueue(ctx, Job{ID: jobID, SQL: sql, CallerID: id.CallerID}); err != nil {
		s.setHandle(jobID, StatusFailed, err.Error())
		return "", err
	}
	return jobID, nil
}

// Lookup returns the current status of a previously submitted job.
func (s *Scheduler) Lookup(jobID string) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[jobID]
	if !ok {
		return Handle{}, false
	}
	return *h, true
}

// Run drains the queue with workers concurrent goroutines until ctx is
// canceled. Each worker loops Dequeue-then-handle, restoring the job's
// seeded identity onto the context before invoking Handler.
func (s *Scheduler) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				job, err := s.queue.Dequeue(gctx)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					s.log.Error().Err(err).Msg("background: dequeue failed")
					continue
				}
				s.runJob(gctx, job)
			}
		})
	}
	return g.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.setHandle(job.ID, StatusRunning, "")

	id, _ := s.tokens.Take(job.ID)
	jobCtx := identity.Set(ctx, id)

	if err := s.handler(jobCtx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("background: job failed")
		s.setHandle(job.ID, StatusFailed, err.Error())
		return
	}
	s.setHandle(job.ID, StatusDone, "")
}

func (s *Scheduler) setHandle(jobID string, status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[jobID] = &Handle{ID: jobID, Status: status, Error: errMsg, UpdatedAt: time.Now().UTC()}
}
