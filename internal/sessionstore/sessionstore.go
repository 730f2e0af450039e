// Package sessionstore is the in-memory session registry (spec §4.3): the
// authoritative map from session_id to *model.Echo, mirrored durably to a
// logsink.Sink so identity and state survive past process memory. Store is
// a single flat type; it has no per-resource sub-stores.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rvbbit/rvbbit/internal/logsink"
	"github.com/rvbbit/rvbbit/internal/model"
)

// Store is the in-memory session registry. Safe for concurrent use.
type Store struct {
	sink logsink.Sink

	mu       sync.RWMutex
	sessions map[string]*model.Echo
	cancels  map[string]context.CancelFunc
}

// New constructs a Store backed by sink. Create and SetState write rows to
// sink; the other mutations (messages, errors, cost, finish, cancel) change
// only the in-memory session.
func New(sink logsink.Sink) *Store {
	return &Store{
		sink:     sink,
		sessions: make(map[string]*model.Echo),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Create registers echo, writes its cascade_session row (verbatim cascade
// bytes + inputs, for replay), and registers cancel as the session's
// cancellation hook so CascadeRunner.Cancel can stop it later.
func (s *Store) Create(ctx context.Context, echo *model.Echo, cancel context.CancelFunc) error {
	s.mu.Lock()
	s.sessions[echo.SessionID] = echo
	if cancel != nil {
		s.cancels[echo.SessionID] = cancel
	}
	s.mu.Unlock()

	inputData, err := json.Marshal(echo.Inputs)
	if err != nil {
		inputData = nil
	}
	return s.sink.WriteSession(ctx, model.CascadeSessionRow{
		SessionID:       echo.SessionID,
		CascadeID:       echo.CascadeID,
		ParentSessionID: echo.ParentSessionID,
		Depth:           echo.Depth,
		CascadeRaw:      echo.Cascade.Raw,
		InputData:       inputData,
		CallerID:        echo.CallerID,
		CreatedAt:       echo.CreatedAt,
	})
}

// Get returns the session registered under sessionID.
func (s *Store) Get(sessionID string) (*model.Echo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}

// LookupBySession is the lookup used by logsink adapters that enrich rows
// from session state rather than ambient context (logsink.IdentityLookup).
func (s *Store) LookupBySession(sessionID string) (string, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return "", nil, false
	}
	return e.CallerID, e.InvocationMetadata, true
}

// SetState updates Echo.State and writes a durable, cross-session-queryable
// state row.
func (s *Store) SetState(ctx context.Context, sessionID, cellName, key string, value json.RawMessage) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("sessionstore: unknown session %s", sessionID)
	}
	e.State[key] = value
	s.mu.Unlock()

	return s.sink.WriteState(ctx, model.StateSnapshotRow{
		SessionID: sessionID,
		CascadeID: e.CascadeID,
		Key:       key,
		Value:     string(value),
		ValueType: jsonValueType(value),
		CellName:  cellName,
		CreatedAt: time.Now().UTC(),
	})
}

// AppendMessage appends msg to the cell's conversation history.
func (s *Store) AppendMessage(sessionID, cellName string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	e.Messages[cellName] = append(e.Messages[cellName], msg)
}

// AppendError records an unrecovered error against the session.
func (s *Store) AppendError(sessionID string, sessErr model.SessionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	e.Errors = append(e.Errors, sessErr)
}

// AddCost accumulates cost/token totals for a session.
func (s *Store) AddCost(sessionID string, cost float64, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	e.CostTotal += cost
	e.TokensTotal += tokens
}

// Finish sets the session's terminal status based on whether it
// accumulated any errors, and cancels the session's context if one was
// registered.
func (s *Store) Finish(sessionID string) model.SessionStatus {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	var status model.SessionStatus
	if ok {
		if len(e.Errors) == 0 {
			status = model.SessionCompleted
		} else {
			status = model.SessionFailed
		}
		e.Status = status
	}
	cancel := s.cancels[sessionID]
	delete(s.cancels, sessionID)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return status
}

// Cancel cancels the context registered for sessionID, if any, causing any
// in-flight work for that session to unwind with model.CanceledError.
func (s *Store) Cancel(sessionID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func jsonValueType(v json.RawMessage) string {
	var probe interface{}
	if err := json.Unmarshal(v, &probe); err != nil {
		return "string"
	}
	switch probe.(type) {
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	default:
		return "string"
	}
}
