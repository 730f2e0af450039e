// Package identity implements IdentityContext (spec §3.5, §4.1): the
// process-wide, propagation-safe (caller_id, invocation_metadata) pair that
// rolls up cost and causality across nested cascades regardless of which
// goroutine produces a log row.
//
// Three tiers carry the same value for one logical call chain: an ambient
// context.Context value (synchronous calls within a cell), a goroutine-local
// copy inherited explicitly at background-job spawn time, and the
// session-keyed Registry. Log sinks do not read the Registry: row
// enrichment goes through logsink.IdentityLookup, which sessionstore.Store
// implements from its own session map.
package identity

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Identity is the (caller_id, invocation_metadata) pair propagated through
// a call tree.
type Identity struct {
	CallerID           string
	InvocationMetadata json.RawMessage
}

type ctxKey struct{}

// Set returns a new context carrying identity as the ambient value for
// synchronous calls within the current cell execution.
func Set(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Get returns the ambient identity carried by ctx, or the zero Identity if
// none was set. Lookup never panics or errors: an absent identity is a
// valid (if degenerate) state.
func Get(ctx context.Context) Identity {
	v, _ := ctx.Value(ctxKey{}).(Identity)
	return v
}

// TokenStore is tier 2: identity seeded at background-job spawn time and
// looked up by the job's own token once it runs on a worker goroutine that
// has no ambient context.Context from the submitting call. The background
// scheduler calls Seed before enqueuing and Take when the worker picks the
// job up.
type TokenStore struct {
	m sync.Map // token string -> Identity
}

// NewTokenStore constructs an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Seed records the identity a background job should inherit when it runs.
func (t *TokenStore) Seed(token string, id Identity) {
	t.m.Store(token, id)
}

// Take returns and removes the identity seeded for token, if any.
func (t *TokenStore) Take(token string) (Identity, bool) {
	v, ok := t.m.LoadAndDelete(token)
	if !ok {
		return Identity{}, false
	}
	return v.(Identity), true
}

// Registry is the session-keyed identity store (tier 3): an identity bound
// to a session_id can be looked up from a different goroutine (e.g. a
// background worker) than the one that called Set. It is a standalone map;
// log sinks resolve identity through logsink.IdentityLookup instead.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Identity
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Identity)}
}

// BindToSession records identity as authoritative for sessionID. Any later
// LookupBySession for the same sessionID returns this value, regardless of
// ambient context state.
func (r *Registry) BindToSession(sessionID string, id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sessionID] = id
}

// LookupBySession returns the identity bound to sessionID, or the zero
// Identity and false if none was bound.
func (r *Registry) LookupBySession(sessionID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byID[sessionID]
	return id, ok
}

// Forget removes a session's bound identity. Call once a session's log rows
// are all durably written; the SessionStore entry may outlive this if the
// session result is still cached for replay.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, sessionID)
}

// MintCallerID produces a new top-level caller_id of the form
// "<source>-<uuid>" (spec §6.4), e.g. "http-3f9a2b1c-...". source identifies
// the entry surface (http, sql-wire, cli, ui).
func MintCallerID(source string) string {
	return source + "-" + uuid.New().String()
}
