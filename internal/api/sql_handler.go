// Package api hosts the HTTP SQL endpoint + health endpoint (spec §6.3):
// the router, its recovery/validate/respond helpers, and the
// identity-minting boundary (§6.4) every entry point must apply before
// invoking the engine.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/api/respond"
	"github.com/rvbbit/rvbbit/internal/api/validate"
	"github.com/rvbbit/rvbbit/internal/background"
	"github.com/rvbbit/rvbbit/internal/identity"
	"github.com/rvbbit/rvbbit/internal/sqlengine"
	"github.com/rvbbit/rvbbit/internal/sqlrewriter"
)

// MapRunner is the narrow udfruntime.Runtime surface SQLHandler needs for
// RVBBIT MAP PARALLEL interception.
type MapRunner interface {
	RunMapParallel(ctx context.Context, plan *sqlrewriter.MapPlan, resultTable string) error
	Analyze(ctx context.Context, criterion string, rows []map[string]interface{}) (string, error)
}

// SQLHandler serves POST /sql: mint identity, rewrite, execute, respond.
type SQLHandler struct {
	rewriter  *sqlrewriter.Rewriter
	engine    sqlengine.Engine
	runtime   MapRunner
	scheduler *background.Scheduler
	log       zerolog.Logger
}

func NewSQLHandler(rewriter *sqlrewriter.Rewriter, engine sqlengine.Engine, runtime MapRunner, scheduler *background.Scheduler, log zerolog.Logger) *SQLHandler {
	return &SQLHandler{rewriter: rewriter, engine: engine, runtime: runtime, scheduler: scheduler, log: log}
}

type sqlRequest struct {
	SQL string `json:"sql"`
}

type sqlResponse struct {
	Rows     []map[string]interface{} `json:"rows,omitempty"`
	Analysis string                   `json:"analysis,omitempty"`
	JobID    string                   `json:"job_id,omitempty"`
}

// Query handles POST /sql (§6.4: mints a fresh "http-<uuid>" caller_id for
// every request — the HTTP boundary never trusts a client-supplied one).
func (h *SQLHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if err := validate.SQLQuery(req.SQL); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	ctx := identity.Set(r.Context(), identity.Identity{
		CallerID:           identity.MintCallerID("http"),
		InvocationMetadata: json.RawMessage(`{"sql":` + jsonQuote(req.SQL) + `}`),
	})

	rewritten, plan, err := h.rewriter.Rewrite(req.SQL)
	if err != nil {
		respond.WriteModelError(w, err)
		return
	}

	if plan.Background {
		jobID, serr := h.scheduler.Submit(ctx, req.SQL)
		if serr != nil {
			respond.WriteInternalError(w, serr.Error())
			return
		}
		respond.WriteJSON(w, http.StatusAccepted, sqlResponse{JobID: jobID})
		return
	}

	rows, aerr := h.execute(ctx, rewritten, &plan)
	if aerr != nil {
		respond.WriteModelError(w, aerr)
		return
	}

	out := sqlResponse{Rows: rows}
	if plan.Analyze != "" {
		analysis, aErr := h.runtime.Analyze(ctx, plan.Analyze, rows)
		if aErr != nil {
			respond.WriteModelError(w, aErr)
			return
		}
		out.Analysis = analysis
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// execute runs the rewritten statement, routing RVBBIT MAP PARALLEL plans
// through the scheduler-bypassing udfruntime interception (§4.12.2)
// instead of the SQL engine.
func (h *SQLHandler) execute(ctx context.Context, rewritten string, plan *sqlrewriter.Plan) ([]map[string]interface{}, error) {
	if plan.Map != nil && plan.Map.Parallelism > 1 {
		resultTable := "map_result_" + plan.Map.CascadePath
		if err := h.runtime.RunMapParallel(ctx, plan.Map, resultTable); err != nil {
			return nil, err
		}
		return h.engine.Rows(ctx, resultTable)
	}
	return h.engine.Exec(ctx, rewritten)
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
