// Package memsink is an in-process logsink.Sink backed by a slice,
// mirroring the teacher's hand-written fake stores used in unit tests: it
// keeps no external state and is the default sink for tests and local
// development.
package memsink

import (
	"context"
	"sync"

	"github.com/rvbbit/rvbbit/internal/model"
)

// Sink stores log rows, state snapshots, and session rows in memory. Safe
// for concurrent use.
type Sink struct {
	mu       sync.Mutex
	Rows     []model.LogRow
	States   []model.StateSnapshotRow
	Sessions []model.CascadeSessionRow
}

// New constructs an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Log appends row. Never returns an error: memory writes cannot fail.
func (s *Sink) Log(_ context.Context, row model.LogRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rows = append(s.Rows, row)
	return nil
}

// WriteState appends row.
func (s *Sink) WriteState(_ context.Context, row model.StateSnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.States = append(s.States, row)
	return nil
}

// WriteSession appends row.
func (s *Sink) WriteSession(_ context.Context, row model.CascadeSessionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions = append(s.Sessions, row)
	return nil
}

// RowsBySession returns, in append order, the rows with the given
// session_id. Intended for tests asserting on invariants.
func (s *Sink) RowsBySession(sessionID string) []model.LogRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LogRow
	for _, r := range s.Rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// RowsByCallerID returns, in append order, the rows with the given
// caller_id, regardless of session.
func (s *Sink) RowsByCallerID(callerID string) []model.LogRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LogRow
	for _, r := range s.Rows {
		if r.CallerID == callerID {
			out = append(out, r)
		}
	}
	return out
}
