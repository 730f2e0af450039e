package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rvbbit/rvbbit/internal/cell"
	"github.com/rvbbit/rvbbit/internal/contextbuilder/tmpl"
	"github.com/rvbbit/rvbbit/internal/identity"
	"github.com/rvbbit/rvbbit/internal/logsink"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/tackle"
	"github.com/rvbbit/rvbbit/internal/ward"
)

// RowSource materializes the rows of a named table for a for_each_row
// cell (§6.1). Implemented by the sqlitedb engine under internal/sqlengine;
// accepted here as an interface so the row-mapper handoff can be exercised
// without a SQL engine wired.
type RowSource interface {
	Rows(ctx context.Context, table string) ([]map[string]interface{}, error)
}

// ResultWriter persists a for_each_row cell's per-row outputs into its
// declared result_table. Implemented by internal/sqlengine.
type ResultWriter interface {
	WriteRows(ctx context.Context, table string, rows []map[string]interface{}) error
}

// RunOptions parameterizes one CascadeRunner.Run invocation.
type RunOptions struct {
	// SessionID, if set, is used verbatim instead of minting a new one —
	// used when an outer caller (e.g. the SQL/HTTP front door) must know
	// the session id before the run starts.
	SessionID       string
	ParentSessionID string
	Depth           int
}

// Runner is the CascadeRunner (spec §4.10): the entry point that drives a
// cascade's cells to completion, including sub-cascade re-entry
// (run_cascade, cascade-as-tool, ward validator cascades) and for_each_row
// row-mapper handoffs.
type Runner struct {
	executor *cell.Executor
	sessions *sessionstore.Store
	sink     logsink.Sink
	catalog  map[string]model.Cascade
	rows     RowSource
	results  ResultWriter
	log      zerolog.Logger
	maxDepth int
}

// New constructs a Runner. catalog maps cascade_id to its loaded document
// and is consulted for run_cascade/cascade-as-tool/ward-validator-cascade
// re-entry and for_each_row's sub-cascade lookup; rows/results may be nil.
// With rows nil, for_each_row cells fail with a PolicyError; with results
// nil, a for_each_row cell's result_table is not written.
func New(
	executor *cell.Executor,
	sessions *sessionstore.Store,
	sink logsink.Sink,
	catalog map[string]model.Cascade,
	rows RowSource,
	results ResultWriter,
	log zerolog.Logger,
	maxDepth int,
) *Runner {
	return &Runner{
		executor: executor,
		sessions: sessions,
		sink:     sink,
		catalog:  catalog,
		rows:     rows,
		results:  results,
		log:      log,
		maxDepth: maxDepth,
	}
}

// Run drives c's cells to completion in declaration order, threading a
// single *model.Echo through every cell. identity.Get(ctx) is inherited as
// the session's caller_id/invocation_metadata, so a sub-cascade run always
// carries its parent's identity automatically (§3.5).
func (r *Runner) Run(ctx context.Context, c model.Cascade, inputs map[string]interface{}, opts RunOptions) (model.SessionResult, error) {
	if r.maxDepth > 0 && opts.Depth > r.maxDepth {
		return model.SessionResult{}, model.NewPolicyError("max_cascade_depth", fmt.Sprintf("depth %d exceeds limit %d", opts.Depth, r.maxDepth))
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = c.CascadeID + "-" + uuid.New().String()
	}

	runCtx, cancel := context.WithCancel(ctx)

	echo := model.NewEcho(sessionID, c, inputs)
	echo.Depth = opts.Depth
	echo.ParentSessionID = opts.ParentSessionID
	id := identity.Get(ctx)
	echo.CallerID = id.CallerID
	echo.InvocationMetadata = id.InvocationMetadata

	if err := r.sessions.Create(runCtx, echo, cancel); err != nil {
		cancel()
		return model.SessionResult{}, err
	}

	r.writeLog(runCtx, echo, model.NodeCascadeStart, "", "")

	var lastContent string
	var runErr error

	for _, cl := range c.Cells {
		select {
		case <-runCtx.Done():
			runErr = model.NewCanceledError(sessionID)
		default:
		}
		if runErr != nil {
			break
		}

		if cl.ForEachRow != nil {
			if err := r.runForEachRow(runCtx, echo, cl); err != nil {
				runErr = err
				break
			}
			continue
		}

		res, err := r.executor.Run(runCtx, echo, cl)
		if err != nil {
			runErr = err
			break
		}
		lastContent = res.Content
	}

	status := r.sessions.Finish(sessionID)

	result := model.SessionResult{
		SessionID: sessionID,
		Status:    status,
		Content:   lastContent,
		Errors:    echo.Errors,
		CostTotal: echo.CostTotal,
	}

	if runErr != nil {
		r.writeLog(ctx, echo, model.NodeError, "", "")
		r.writeLog(ctx, echo, model.NodeCascadeComplete, "", status)
		return result, runErr
	}

	r.writeLog(ctx, echo, model.NodeCascadeComplete, "", status)
	return result, nil
}

// Cancel cancels the in-flight run registered under sessionID, if any.
func (r *Runner) Cancel(sessionID string) bool {
	return r.sessions.Cancel(sessionID)
}

// RunAsTool implements tackle.CascadeInvoker: cascade-as-tool and
// run_cascade(path, inputs) both resolve to this — the cascade named by
// cascadeID is looked up in the catalog and run as a sub-cascade one depth
// deeper than its caller.
func (r *Runner) RunAsTool(ctx context.Context, cascadeID string, inputs map[string]interface{}, parentSessionID string) (tackle.Result, error) {
	sub, ok := r.catalog[cascadeID]
	if !ok {
		return tackle.Result{}, model.NewToolError(cascadeID, "unknown cascade")
	}

	depth := 0
	if parentEcho, ok := r.sessions.Get(parentSessionID); ok {
		depth = parentEcho.Depth + 1
	}

	res, err := r.Run(ctx, sub, inputs, RunOptions{ParentSessionID: parentSessionID, Depth: depth})
	if err != nil {
		return tackle.Result{}, err
	}
	return tackle.Result{Content: res.Content}, nil
}

// RunInstructions implements the udfruntime.CascadeInvoker surface for the
// rvbbit(instructions, value) UDF (§4.12.1): a synthesized one-cell agent
// cascade whose instructions is the literal criterion text the SQL caller
// supplied, plus a templated reference to the row value, run one depth
// deeper than its caller. Unlike rvbbit_run/RunAsTool this never touches
// the catalog — there is no cascade_id to look up.
func (r *Runner) RunInstructions(ctx context.Context, instructions string, value interface{}, parentSessionID string) (tackle.Result, error) {
	depth := 0
	if parentEcho, ok := r.sessions.Get(parentSessionID); ok {
		depth = parentEcho.Depth + 1
	}

	adHoc := model.Cascade{
		CascadeID: "rvbbit_udf_adhoc",
		Cells: []model.Cell{{
			Name:         "rvbbit",
			Mode:         model.CellModeAgent,
			Instructions: instructions + "\n\nInput:\n{{.value}}",
			MaxTurns:     1,
		}},
	}

	res, err := r.Run(ctx, adHoc, map[string]interface{}{"value": value}, RunOptions{ParentSessionID: parentSessionID, Depth: depth})
	if err != nil {
		return tackle.Result{}, err
	}
	return tackle.Result{Content: res.Content}, nil
}

// RunValidatorCascade implements ward.CascadeRunner: the named cascade is
// run to completion and its final content is interpreted as a
// {"valid": bool, "reason": string} JSON outcome.
func (r *Runner) RunValidatorCascade(ctx context.Context, cascadeID string, inputs map[string]interface{}) (ward.Outcome, error) {
	sub, ok := r.catalog[cascadeID]
	if !ok {
		return ward.Outcome{}, model.NewValidationError(cascadeID, "unknown validator cascade")
	}

	res, err := r.Run(ctx, sub, inputs, RunOptions{})
	if err != nil {
		return ward.Outcome{}, err
	}

	var parsed struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	if jerr := json.Unmarshal([]byte(res.Content), &parsed); jerr != nil {
		return ward.Outcome{}, model.NewParseError("validator_cascade_output", jerr.Error())
	}
	return ward.Outcome{Valid: parsed.Valid, Reason: parsed.Reason}, nil
}

// runForEachRow implements the row_mapper handoff (§6.1): every row of
// spec.Table is mapped through spec.Cascade as an independent sub-cascade
// run, bounded by spec.MaxParallel, with on_error governing whether a
// row's failure aborts the whole cell.
func (r *Runner) runForEachRow(ctx context.Context, echo *model.Echo, cl model.Cell) error {
	spec := cl.ForEachRow
	if r.rows == nil {
		return model.NewPolicyError("for_each_row", "no row source configured")
	}

	rows, err := r.rows.Rows(ctx, spec.Table)
	if err != nil {
		return err
	}

	sub, ok := r.catalog[spec.Cascade]
	if !ok {
		return model.NewValidationError("for_each_row.cascade", "unknown cascade "+spec.Cascade)
	}

	maxParallel := spec.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	results := make([]map[string]interface{}, len(rows))
	rowErrs := make([]error, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			rowInputs := make(map[string]interface{}, len(spec.Inputs))
			for k, tplSrc := range spec.Inputs {
				rendered, terr := tmpl.Render(tplSrc, row)
				if terr != nil {
					rowErrs[i] = model.NewParseError("for_each_row.inputs."+k, terr.Error())
					return nil
				}
				rowInputs[k] = rendered
			}

			res, rerr := r.Run(gctx, sub, rowInputs, RunOptions{ParentSessionID: echo.SessionID, Depth: echo.Depth + 1})
			if rerr != nil {
				rowErrs[i] = rerr
				if spec.OnError == model.OnErrorFailFast {
					return rerr
				}
				return nil
			}
			results[i] = map[string]interface{}{"row_index": i, "content": res.Content}
			return nil
		})
	}
	groupErr := g.Wait()

	for i, rerr := range rowErrs {
		if rerr == nil {
			continue
		}
		r.sessions.AppendError(echo.SessionID, model.SessionError{
			CellName:  cl.Name,
			ErrorKind: "for_each_row_error",
			Message:   fmt.Sprintf("row %d: %s", i, rerr.Error()),
		})
	}

	if spec.OnError == model.OnErrorFailFast && groupErr != nil {
		return groupErr
	}

	if spec.ResultTable != "" && r.results != nil {
		rowsOut := make([]map[string]interface{}, 0, len(results))
		for _, res := range results {
			if res != nil {
				rowsOut = append(rowsOut, res)
			}
		}
		if werr := r.results.WriteRows(ctx, spec.ResultTable, rowsOut); werr != nil {
			return werr
		}
	}

	return nil
}

// writeLog appends one LogRow. status is recorded verbatim on
// cascade_complete rows (spec §4.10: "records cascade_complete with final
// status"); every other call site passes "" and leaves it unset.
func (r *Runner) writeLog(ctx context.Context, echo *model.Echo, nodeType model.NodeType, cellName string, status model.SessionStatus) {
	now := time.Now().UTC()
	row := model.LogRow{
		Timestamp:       float64(now.UnixNano()) / 1e9,
		TimestampISO:    now.Format(time.RFC3339Nano),
		SessionID:       echo.SessionID,
		TraceID:         echo.SessionID,
		ParentSessionID: echo.ParentSessionID,
		NodeType:        nodeType,
		Status:          status,
		Depth:           echo.Depth,
		CascadeID:       echo.CascadeID,
		CellName:        cellName,
		CallerID:        echo.CallerID,
	}
	if err := r.sink.Log(ctx, row); err != nil {
		r.log.Warn().Err(err).Str("node_type", string(nodeType)).Msg("cascade: log write failed")
	}
}
