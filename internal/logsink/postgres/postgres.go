// Package postgres is a logsink.Sink backed by PostgreSQL, using plain
// database/sql with the pgx stdlib driver — no ORM — mirroring the
// teacher's internal/store/postgres package.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/logsink"
	"github.com/rvbbit/rvbbit/internal/model"
)

const (
	insertLogRowSQL = `
INSERT INTO log_rows (
	timestamp, timestamp_iso, session_id, trace_id, parent_id, parent_session_id,
	parent_message_id, node_type, role, status, depth, candidate_index, is_winner,
	reforge_step, attempt_number, turn_number, cascade_id, cell_name, cell_json,
	cascade_json, model, request_id, provider, duration_ms, tokens_in, tokens_out,
	total_tokens, cost, content_json, full_request_json, full_response_json,
	tool_calls_json, images_json, has_images, has_base64, metadata_json,
	caller_id, invocation_metadata_json
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,
	$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38
)`

	insertStateSQL = `
INSERT INTO state_snapshots (session_id, cascade_id, key, value, value_type, cell_name, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

	insertSessionSQL = `
INSERT INTO cascade_sessions (
	session_id, cascade_id, parent_session_id, depth, cascade_raw, input_data,
	caller_id, invocation_metadata_json, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Sink writes every LogRow/StateSnapshotRow/CascadeSessionRow as one INSERT.
type Sink struct {
	db           *sql.DB
	log          zerolog.Logger
	usage        logsink.UsageFetcher
	identity     logsink.IdentityLookup
	usageRetries int
}

// New constructs a Sink. usage and identity may be nil; when usage is nil,
// agent_call rows are written with whatever tokens/cost the caller already
// populated. usageRetries bounds the number of FetchUsage attempts before
// the row is written without enrichment (defaults to 3).
func New(db *sql.DB, usage logsink.UsageFetcher, identity logsink.IdentityLookup, log zerolog.Logger, usageRetries int) *Sink {
	if usageRetries <= 0 {
		usageRetries = 3
	}
	return &Sink{db: db, log: log, usage: usage, identity: identity, usageRetries: usageRetries}
}

// Log enriches agent_call rows with provider usage (bounded retry,
// matching the teacher's pull-and-retry-once idiom generalized to N
// attempts), fills caller_id/invocation_metadata from the identity
// registry when absent, and writes one INSERT. Never reorders rows: the
// caller is responsible for serializing calls per session if ordering
// matters downstream.
func (s *Sink) Log(ctx context.Context, row model.LogRow) error {
	if row.NodeType == model.NodeAgent && row.RequestID != "" && s.usage != nil {
		s.enrichUsage(ctx, &row)
	}
	if row.CallerID == "" && s.identity != nil {
		if callerID, meta, ok := s.identity.LookupBySession(row.SessionID); ok {
			row.CallerID = callerID
			row.InvocationMetadataJSON = meta
		}
	}

	_, err := s.db.ExecContext(ctx, insertLogRowSQL,
		row.Timestamp, row.TimestampISO, row.SessionID, row.TraceID, row.ParentID,
		row.ParentSessionID, row.ParentMessageID, string(row.NodeType), row.Role, string(row.Status),
		row.Depth, row.CandidateIndex, row.IsWinner, row.ReforgeStep, row.AttemptNumber,
		row.TurnNumber, row.CascadeID, row.CellName, row.CellJSON, row.CascadeJSON,
		row.Model, row.RequestID, row.Provider, row.DurationMS, row.TokensIn,
		row.TokensOut, row.TotalTokens, row.Cost, row.ContentJSON, row.FullRequestJSON,
		row.FullResponseJSON, row.ToolCallsJSON, row.ImagesJSON, row.HasImages,
		row.HasBase64, row.MetadataJSON, row.CallerID, row.InvocationMetadataJSON,
	)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", row.SessionID).Msg("logsink: insert log row failed")
	}
	return err
}

func (s *Sink) enrichUsage(ctx context.Context, row *model.LogRow) {
	var lastErr error
	for attempt := 1; attempt <= s.usageRetries; attempt++ {
		tokensIn, tokensOut, cost, err := s.usage.FetchUsage(ctx, row.RequestID)
		if err == nil {
			row.TokensIn = tokensIn
			row.TokensOut = tokensOut
			row.TotalTokens = tokensIn + tokensOut
			row.Cost = cost
			return
		}
		lastErr = err
		if attempt < s.usageRetries {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
	}
	s.log.Warn().Err(lastErr).Str("request_id", row.RequestID).Msg("logsink: usage enrichment exhausted retries")
}

// WriteState writes a durable state snapshot row.
func (s *Sink) WriteState(ctx context.Context, row model.StateSnapshotRow) error {
	_, err := s.db.ExecContext(ctx, insertStateSQL,
		row.SessionID, row.CascadeID, row.Key, row.Value, row.ValueType, row.CellName, row.CreatedAt)
	return err
}

// WriteSession writes a cascade-session row carrying the cascade's
// verbatim bytes.
func (s *Sink) WriteSession(ctx context.Context, row model.CascadeSessionRow) error {
	_, err := s.db.ExecContext(ctx, insertSessionSQL,
		row.SessionID, row.CascadeID, row.ParentSessionID, row.Depth, row.CascadeRaw,
		row.InputData, row.CallerID, row.InvocationMetadataJSON, row.CreatedAt)
	return err
}
