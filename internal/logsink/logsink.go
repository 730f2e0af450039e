// Package logsink defines the append-only unified log surface (spec §4.2,
// §6.2). The engine's store of record is this log: every observable event
// becomes exactly one model.LogRow, written synchronously before the
// producing call is considered complete.
package logsink

import (
	"context"

	"github.com/rvbbit/rvbbit/internal/model"
)

// UsageFetcher retrieves a provider's usage/cost record for a request,
// used to enrich agent_call rows before they are written so no separate
// "cost update" row is ever needed.
type UsageFetcher interface {
	FetchUsage(ctx context.Context, requestID string) (tokensIn, tokensOut int, cost float64, err error)
}

// IdentityLookup resolves the authoritative caller_id/invocation_metadata
// for a session, used by Sink implementations that did not receive it on
// the event (§4.2: "removes dependency on thread-local state at write
// time").
type IdentityLookup interface {
	LookupBySession(sessionID string) (callerID string, invocationMetadata []byte, ok bool)
}

// Sink is the single append operation every engine component writes
// through. Log blocks until the row is durable (or best-effort if the
// backing store is unavailable) and never reorders rows relative to the
// order Log was called.
type Sink interface {
	Log(ctx context.Context, row model.LogRow) error
	WriteState(ctx context.Context, row model.StateSnapshotRow) error
	WriteSession(ctx context.Context, row model.CascadeSessionRow) error
}
