// Package invariants is RVBBIT's blackbox property checker, grounded on
// the teacher's internal/invariants.InvariantChecker: a suite of
// customer-facing assertions run against a live system, never by
// inspecting or mutating internals to make an assertion pass. The
// teacher's "customer-facing API" is HTTP JSON; RVBBIT's unified log
// (spec §6.2) IS the customer-facing contract for every one of §8's
// testable properties, so callers drive cascades through a real
// cascade.Runner and this Checker asserts purely against the resulting
// log rows, the
// same arm's-length posture the teacher keeps by only calling its own
// REST endpoints.
package invariants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

// Checker asserts spec §8's invariants against a finished or in-flight
// set of log rows. It never starts a cascade itself — callers drive their
// own cascade.Runner (or HTTP front door) and hand the resulting rows in,
// matching the teacher's pattern of a checker that only ever reads back
// what the system under test already produced.
type Checker struct {
	rows []model.LogRow
}

// NewChecker wraps the rows produced by one or more cascade runs.
func NewChecker(rows []model.LogRow) *Checker {
	return &Checker{rows: rows}
}

func (c *Checker) bySession(sessionID string) []model.LogRow {
	var out []model.LogRow
	for _, r := range c.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// CheckIdentityPropagation is invariant 1: every row for session rootID
// (and every descendant session reachable via ParentSessionID) carries
// the same caller_id as rootID's own cascade_start row.
func (c *Checker) CheckIdentityPropagation(t *testing.T, rootSessionID string) {
	t.Helper()

	root := c.bySession(rootSessionID)
	require.NotEmpty(t, root, "no rows found for root session %s", rootSessionID)

	var rootCallerID string
	for _, r := range root {
		if r.NodeType == model.NodeCascadeStart {
			rootCallerID = r.CallerID
			break
		}
	}
	require.NotEmpty(t, rootCallerID, "root session %s has no cascade_start row", rootSessionID)

	descendants := map[string]bool{rootSessionID: true}
	grew := true
	for grew {
		grew = false
		for _, r := range c.rows {
			if descendants[r.ParentSessionID] && !descendants[r.SessionID] {
				descendants[r.SessionID] = true
				grew = true
			}
		}
	}

	for _, r := range c.rows {
		if descendants[r.SessionID] {
			assert.Equal(t, rootCallerID, r.CallerID,
				"row %s/%s has caller_id %q, want root's %q", r.SessionID, r.NodeType, r.CallerID, rootCallerID)
		}
	}
}

// CheckSessionBracketing is invariant 2: exactly one cascade_start and
// one cascade_complete row per session, with every other row for that
// session falling strictly between them in wall-clock order.
func (c *Checker) CheckSessionBracketing(t *testing.T, sessionID string) {
	t.Helper()

	rows := c.bySession(sessionID)
	require.NotEmpty(t, rows, "no rows for session %s", sessionID)

	var startTS, completeTS float64
	var starts, completes int
	for _, r := range rows {
		switch r.NodeType {
		case model.NodeCascadeStart:
			starts++
			startTS = r.Timestamp
		case model.NodeCascadeComplete:
			completes++
			completeTS = r.Timestamp
		}
	}
	assert.Equal(t, 1, starts, "session %s must have exactly one cascade_start row", sessionID)
	assert.Equal(t, 1, completes, "session %s must have exactly one cascade_complete row", sessionID)

	for _, r := range rows {
		if r.NodeType == model.NodeCascadeStart || r.NodeType == model.NodeCascadeComplete {
			continue
		}
		assert.GreaterOrEqual(t, r.Timestamp, startTS,
			"row %s falls before cascade_start", r.NodeType)
		assert.LessOrEqual(t, r.Timestamp, completeTS,
			"row %s falls after cascade_complete", r.NodeType)
	}
}

// CheckExactlyOneWinner is invariant 3: for a cell that ran candidates,
// exactly one winner_selected row for (sessionID, cellName) has
// is_winner=true.
func (c *Checker) CheckExactlyOneWinner(t *testing.T, sessionID, cellName string) {
	t.Helper()

	winners := 0
	for _, r := range c.bySession(sessionID) {
		if r.NodeType != model.NodeWinnerSelected || r.CellName != cellName {
			continue
		}
		if r.IsWinner != nil && *r.IsWinner {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "cell %s in session %s must have exactly one is_winner=true row", cellName, sessionID)
}

// CheckAgentCallsHaveUsage is invariant 4: every agent row with a
// non-empty request_id has its cost and token counts populated.
func (c *Checker) CheckAgentCallsHaveUsage(t *testing.T) {
	t.Helper()

	for _, r := range c.rows {
		if r.NodeType != model.NodeAgent || r.RequestID == "" {
			continue
		}
		assert.True(t, r.TokensIn > 0 || r.TokensOut > 0 || r.Cost >= 0,
			"agent row %s/%s has request_id %q but no usage recorded", r.SessionID, r.CellName, r.RequestID)
	}
}

// CheckNoEmptyAssistantContent is invariant 5: no persisted assistant
// message has empty content.
func (c *Checker) CheckNoEmptyAssistantContent(t *testing.T) {
	t.Helper()

	for _, r := range c.rows {
		if r.NodeType == model.NodeAgent && r.Role == "assistant" {
			assert.NotEmpty(t, r.ContentJSON, "session %s cell %s has an empty persisted assistant message", r.SessionID, r.CellName)
		}
	}
}
