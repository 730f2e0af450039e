// Package cell implements the CellExecutor (spec §4.6): the engine that
// drives one cell invocation through its turn loop (instructions, tool
// calls, follow-ups), wiring together the context builder, tool registry,
// ward engine, candidate loop, and refinement loop for that one cell.
//
// cell.Executor is the concrete implementation behind the narrow
// interfaces the lower-level packages declare (candidate.RunBranch,
// candidate.Evaluate, reforge.RunStep, tackle.QuartermasterRunner): those
// packages never import cell, so the closures/methods are wired up here
// instead, keeping the dependency graph one-directional.
package cell

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rvbbit/rvbbit/internal/candidate"
	"github.com/rvbbit/rvbbit/internal/contextbuilder"
	"github.com/rvbbit/rvbbit/internal/contextbuilder/tmpl"
	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/logsink"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/reforge"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/tackle"
	"github.com/rvbbit/rvbbit/internal/ward"
)

// Executor runs one cell to completion, including its candidate
// exploration and refinement steps if declared.
type Executor struct {
	llmClient llm.Client
	tools     *tackle.Registry
	wards     *ward.Engine
	sessions  *sessionstore.Store
	sink      logsink.Sink
	builder   *contextbuilder.Builder
	log       zerolog.Logger

	modelName   string
	maxParallel int
	tokenBudget int
}

// New constructs an Executor. modelName is the default model passed on
// every llm.Request; maxParallel bounds concurrent tool-call execution
// within one turn (candidate branch parallelism is governed separately by
// each cell's candidates.max_parallel); tokenBudget is the approximate
// character budget handed to contextbuilder (0 disables truncation).
func New(
	llmClient llm.Client,
	tools *tackle.Registry,
	wards *ward.Engine,
	sessions *sessionstore.Store,
	sink logsink.Sink,
	builder *contextbuilder.Builder,
	log zerolog.Logger,
	modelName string,
	maxParallel, tokenBudget int,
) *Executor {
	return &Executor{
		llmClient:   llmClient,
		tools:       tools,
		wards:       wards,
		sessions:    sessions,
		sink:        sink,
		builder:     builder,
		log:         log,
		modelName:   modelName,
		maxParallel: maxParallel,
		tokenBudget: tokenBudget,
	}
}

// runState is stashed on ctx around a cell invocation so SelectTools (the
// tackle.QuartermasterRunner implementation) can run its meta-cell against
// the same echo/session without threading them through the interface's
// fixed signature.
type runState struct {
	echo      *model.Echo
	sessionID string
	cellName  string
}

type runStateKey struct{}

func withRunState(ctx context.Context, s runState) context.Context {
	return context.WithValue(ctx, runStateKey{}, s)
}

func getRunState(ctx context.Context) (runState, bool) {
	s, ok := ctx.Value(runStateKey{}).(runState)
	return s, ok
}

// Run executes cell to completion: pre wards, candidate exploration and/or
// refinement, post wards, then records the cell_complete event and rolls
// the cell's cost into the session total.
func (e *Executor) Run(ctx context.Context, echo *model.Echo, cell model.Cell) (model.CellResult, error) {
	e.writeLog(ctx, echo, model.NodeCellStart, cell.Name, nil)

	inputsJSON, _ := json.Marshal(echo.Inputs)
	for _, w := range cell.Wards.Pre {
		w := w
		onAttempt := e.wardCheckLogger(ctx, echo, cell.Name, "pre", w.Validator)
		if _, err := e.wards.Apply(ctx, w, "", inputsJSON, echo.Inputs, preWardRerun, onAttempt); err != nil {
			e.sessions.AppendError(echo.SessionID, model.SessionError{CellName: cell.Name, ErrorKind: "ward_error", Message: err.Error()})
			return model.CellResult{}, err
		}
	}

	result, err := e.runWithExploration(ctx, echo, cell)
	if err != nil {
		e.sessions.AppendError(echo.SessionID, model.SessionError{CellName: cell.Name, ErrorKind: "cell_error", Message: err.Error()})
		return model.CellResult{}, err
	}

	for _, w := range cell.Wards.Post {
		w := w
		onAttempt := e.wardCheckLogger(ctx, echo, cell.Name, "post", w.Validator)
		contentJSON, _ := json.Marshal(result.Content)
		newContent, werr := e.wards.Apply(ctx, w, result.Content, contentJSON, echo.Inputs, e.postWardRerun(echo, cell), onAttempt)
		if werr != nil {
			e.sessions.AppendError(echo.SessionID, model.SessionError{CellName: cell.Name, ErrorKind: "ward_error", Message: werr.Error()})
			return model.CellResult{}, werr
		}
		result.Content = newContent
	}

	e.sessions.AddCost(echo.SessionID, result.Cost, result.TokensIn+result.TokensOut)
	e.writeLog(ctx, echo, model.NodeCellComplete, cell.Name, func(r *model.LogRow) {
		r.Cost = result.Cost
		r.TokensIn = result.TokensIn
		r.TokensOut = result.TokensOut
		r.TotalTokens = result.TokensIn + result.TokensOut
		r.ContentJSON, _ = json.Marshal(result.Content)
	})

	return result, nil
}

// wardCheckLogger builds the onAttempt callback passed to ward.Engine.Apply:
// one ward_check row per resolved attempt, Role recording the phase (pre or
// post, for cell.Wards.Pre vs .Post) and ContentJSON recording validity, so a retry-mode
// ward's valid=false then valid=true pair (spec §4.2/e2e scenario #3) shows
// up as two rows rather than collapsing into Apply's single return value.
func (e *Executor) wardCheckLogger(ctx context.Context, echo *model.Echo, cellName, phase, validator string) func(attempt int, outcome ward.Outcome) {
	return func(attempt int, outcome ward.Outcome) {
		e.writeLog(ctx, echo, model.NodeWardCheck, cellName, func(r *model.LogRow) {
			a := attempt
			r.AttemptNumber = &a
			valid := outcome.Valid
			r.Role = phase
			r.ContentJSON, _ = json.Marshal(struct {
				Valid     bool   `json:"valid"`
				Reason    string `json:"reason,omitempty"`
				Validator string `json:"validator"`
			}{Valid: valid, Reason: outcome.Reason, Validator: validator})
		})
	}
}

// preWardRerun is the rerun hook passed for pre-cell wards: there is no
// prior cell output to regenerate before the cell has run, so a retry
// simply re-checks the same (empty) content until it either passes or the
// ward exhausts its attempt budget.
func preWardRerun(ctx context.Context, retryPrompt string) (string, error) {
	return "", nil
}

func (e *Executor) postWardRerun(echo *model.Echo, cell model.Cell) func(ctx context.Context, retryPrompt string) (string, error) {
	return func(ctx context.Context, retryPrompt string) (string, error) {
		e.sessions.AppendMessage(echo.SessionID, cell.Name, model.Message{Role: "user", Content: retryPrompt, Turn: 1 << 20})
		res, err := e.runCellCore(ctx, echo, cell, echo.SessionID)
		if err != nil {
			return "", err
		}
		return res.Content, nil
	}
}

// runWithExploration handles the candidates/reforge combination (spec
// §3.2: a cell may declare either, both, or neither).
func (e *Executor) runWithExploration(ctx context.Context, echo *model.Echo, cell model.Cell) (model.CellResult, error) {
	var winner model.Candidate

	if cell.Candidates != nil {
		factor := resolveFactor(cell.Candidates.Factor, echo)
		loop := candidate.New(e.candidateRunBranch(echo, cell), e.candidateEvaluate(echo, *cell.Candidates))
		w, all, err := loop.Run(ctx, echo.SessionID, *cell.Candidates, factor, cell.Candidates.MaxParallel)
		if err != nil {
			return model.CellResult{}, err
		}
		winner = w

		// Logged only once every branch has run and the winner is known, so
		// each row's is_winner reflects the actual outcome rather than being
		// written blind at branch-completion time (spec §8 invariant 3:
		// exactly one candidate row has is_winner=true).
		for _, c := range all {
			cand := c
			e.writeLog(ctx, echo, model.NodeCandidateEvaluated, cell.Name, func(r *model.LogRow) {
				idx := cand.Index
				r.CandidateIndex = &idx
				r.Cost = cand.Cost
				isWinner := cand.Winner
				r.IsWinner = &isWinner
			})
		}
		e.writeLog(ctx, echo, model.NodeWinnerSelected, cell.Name, func(r *model.LogRow) {
			idx := winner.Index
			r.CandidateIndex = &idx
			isWinner := true
			r.IsWinner = &isWinner
		})
	} else {
		res, err := e.runCellCore(ctx, echo, cell, echo.SessionID)
		if err != nil {
			return model.CellResult{}, err
		}
		winner = model.Candidate{Content: res.Content, Cost: res.Cost, SessionID: echo.SessionID}
	}

	if cell.Reforge != nil {
		final, steps, err := reforge.New(e.reforgeRunStep(echo, cell), nil).Run(ctx, *cell.Reforge, winner)
		if err != nil {
			return model.CellResult{}, err
		}
		for i := range steps {
			step := i
			e.writeLog(ctx, echo, model.NodeRefinementStep, cell.Name, func(r *model.LogRow) {
				r.ReforgeStep = &step
			})
		}
		winner = final
	}

	return model.CellResult{Content: winner.Content, Cost: winner.Cost}, nil
}

// resolveFactor renders candidates.factor (a literal integer or a template
// referencing cascade inputs) and parses the result.
func resolveFactor(factor string, echo *model.Echo) int {
	rendered, err := tmpl.Render(factor, map[string]interface{}{"inputs": echo.Inputs})
	if err != nil {
		rendered = factor
	}
	n, err := strconv.Atoi(strings.TrimSpace(rendered))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// candidateRunBranch adapts Executor into candidate.RunBranch: one full,
// isolated invocation of cell under a branch-scoped session id.
func (e *Executor) candidateRunBranch(echo *model.Echo, cell model.Cell) candidate.RunBranch {
	return func(ctx context.Context, branchSessionID string, index int) (model.Candidate, error) {
		res, err := e.runCellCore(ctx, echo, cell, branchSessionID)
		if err != nil {
			return model.Candidate{}, err
		}
		return model.Candidate{Index: index, ParentCell: cell.Name, Content: res.Content, Cost: res.Cost, SessionID: branchSessionID}, nil
	}
}

// candidateEvaluate adapts Executor into candidate.Evaluate. select and
// all_or_nothing run an evaluator meta-cell that returns {"winner_index":
// N}; aggregate runs the evaluator and treats its output as the merged
// artifact; first_valid needs no evaluator cell at all.
func (e *Executor) candidateEvaluate(echo *model.Echo, spec model.CandidateSpec) candidate.Evaluate {
	return func(ctx context.Context, candidates []model.Candidate, mode model.CandidateMode) (int, string, error) {
		if mode == model.CandidateModeFirstValid {
			for _, c := range candidates {
				if strings.TrimSpace(c.Content) != "" {
					return c.Index, "", nil
				}
			}
			return -1, "", model.NewCandidateExhaustionError(echo.SessionID, len(candidates))
		}

		var sb strings.Builder
		for _, c := range candidates {
			sb.WriteString("Candidate ")
			sb.WriteString(strconv.Itoa(c.Index))
			sb.WriteString(":\n")
			sb.WriteString(c.Content)
			sb.WriteString("\n\n")
		}

		evalCell := model.Cell{
			Name:         "__evaluator__",
			Instructions: spec.EvaluatorInstructions,
			Mode:         model.CellModeAgent,
			MaxTurns:     1,
		}
		e.sessions.AppendMessage(echo.SessionID, evalCell.Name, model.Message{Role: "user", Content: sb.String(), Turn: 0})

		res, err := e.runCellCore(ctx, echo, evalCell, echo.SessionID)
		if err != nil {
			return 0, "", err
		}

		if mode == model.CandidateModeAggregate {
			return -1, res.Content, nil
		}

		var parsed struct {
			WinnerIndex int    `json:"winner_index"`
			Rationale   string `json:"rationale"`
		}
		if jerr := json.Unmarshal([]byte(res.Content), &parsed); jerr != nil {
			return 0, "", model.NewParseError("evaluator_output", jerr.Error())
		}
		return parsed.WinnerIndex, parsed.Rationale, nil
	}
}

// reforgeRunStep adapts Executor into reforge.RunStep: re-invoke the cell
// with the honing prompt appended as the next user turn, chaining from the
// prior step's output.
func (e *Executor) reforgeRunStep(echo *model.Echo, cell model.Cell) reforge.RunStep {
	return func(ctx context.Context, seedContent, refinementPrompt string, step int) (model.Refinement, error) {
		e.sessions.AppendMessage(echo.SessionID, cell.Name, model.Message{Role: "user", Content: refinementPrompt, Turn: step + 1})
		res, err := e.runCellCore(ctx, echo, cell, echo.SessionID)
		if err != nil {
			return model.Refinement{}, err
		}
		return model.Refinement{OutputContent: res.Content, Cost: res.Cost}, nil
	}
}

// SelectTools implements tackle.QuartermasterRunner: it runs a fixed
// meta-cell (per spec §9's evaluator-as-meta-cell pattern, applied
// identically to tool selection) that picks the minimal tool subset for
// targetCell from the full registry's synopses.
func (e *Executor) SelectTools(ctx context.Context, targetCell model.Cell, allSynopses []string) ([]string, string, error) {
	rs, ok := getRunState(ctx)
	if !ok {
		return nil, "", model.NewValidationError("quartermaster", "SelectTools called outside a cell run")
	}

	qmCell := model.Cell{
		Name: "__quartermaster__",
		Instructions: "Select the minimal set of tools required for the following task.\n\n" +
			"Task instructions:\n" + targetCell.Instructions +
			"\n\nAvailable tools:\n" + strings.Join(allSynopses, "\n") +
			"\n\nRespond with JSON: {\"tools\": [\"tool_name\", ...], \"rationale\": \"...\"}.",
		Mode:     model.CellModeAgent,
		MaxTurns: 1,
	}

	res, err := e.runCellCore(ctx, rs.echo, qmCell, rs.sessionID)
	if err != nil {
		return nil, "", err
	}

	var parsed struct {
		Tools     []string `json:"tools"`
		Rationale string   `json:"rationale"`
	}
	if jerr := json.Unmarshal([]byte(res.Content), &parsed); jerr != nil {
		return nil, "", model.NewParseError("quartermaster_output", jerr.Error())
	}
	return parsed.Tools, parsed.Rationale, nil
}

// runCellCore dispatches to the tool-mode or agent-mode turn loop. It is
// what candidate branches, reforge steps, the evaluator, and the
// quartermaster all funnel through, so every one of those sub-invocations
// gets its own turn loop, ward-free (wards wrap the outer Run call only).
func (e *Executor) runCellCore(ctx context.Context, echo *model.Echo, cell model.Cell, sessionID string) (model.CellResult, error) {
	if cell.Mode == model.CellModeTool {
		return e.runTool(ctx, echo, cell, sessionID)
	}
	return e.runAgent(ctx, echo, cell, sessionID)
}

func (e *Executor) runTool(ctx context.Context, echo *model.Echo, cell model.Cell, sessionID string) (model.CellResult, error) {
	ctx = withRunState(ctx, runState{echo: echo, sessionID: sessionID, cellName: cell.Name})

	argsJSON, err := renderToolArgs(cell, echo)
	if err != nil {
		return model.CellResult{}, err
	}

	res, err := e.tools.Invoke(ctx, sessionID, tackle.Call{Name: cell.ToolName, Args: argsJSON})
	if err != nil {
		return model.CellResult{}, err
	}

	e.sessions.AppendMessage(sessionID, cell.Name, model.Message{Role: "tool", Content: res.Content, Images: res.Images, Turn: 0})
	return model.CellResult{Content: res.Content, Images: res.Images}, nil
}

// renderToolArgs templates each of cell.Inputs against the echo's inputs
// and state, producing the JSON argument payload for a tool-mode cell.
func renderToolArgs(cell model.Cell, echo *model.Echo) ([]byte, error) {
	data := make(map[string]interface{}, len(echo.Inputs)+1)
	for k, v := range echo.Inputs {
		data[k] = v
	}
	state := make(map[string]interface{}, len(echo.State))
	for k, v := range echo.State {
		state[k] = string(v)
	}
	data["state"] = state

	args := make(map[string]interface{}, len(cell.Inputs))
	for k, v := range cell.Inputs {
		rendered, err := tmpl.Render(v, data)
		if err != nil {
			return nil, model.NewParseError("cell.inputs."+k, err.Error())
		}
		args[k] = rendered
	}
	return json.Marshal(args)
}

// runAgent is the turn loop of spec §4.6: assemble context, invoke the
// model, execute any tool calls in parallel, then follow up — bounded by
// cell.max_turns, stopping as soon as a turn returns no tool calls.
func (e *Executor) runAgent(ctx context.Context, echo *model.Echo, cell model.Cell, sessionID string) (model.CellResult, error) {
	ctx = withRunState(ctx, runState{echo: echo, sessionID: sessionID, cellName: cell.Name})

	maxTurns := cell.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}

	traits, _, err := e.tools.ResolveTraits(ctx, cell, e)
	if err != nil {
		return model.CellResult{}, err
	}
	toolDefs := e.tools.Synopses(traits)
	toolSpecs := e.buildToolSpecs(traits)

	var (
		content             string
		totalCost           float64
		tokensIn, tokensOut int
		images              []string
	)

	for turn := 0; turn < maxTurns; turn++ {
		messages, berr := e.builder.Build(contextbuilder.Input{
			Cell:        cell,
			Echo:        echo,
			Turn:        turn,
			ToolDefs:    toolDefs,
			TokenBudget: e.tokenBudget,
		})
		if berr != nil {
			return model.CellResult{}, berr
		}

		resp, cerr := e.llmClient.Complete(ctx, llm.Request{
			Model:    e.modelName,
			Messages: messages,
			Tools:    toolSpecs,
			MaxTurns: maxTurns,
		})
		if cerr != nil {
			if model.IsProviderError(cerr) || model.IsTimeoutError(cerr) || model.IsCanceledError(cerr) {
				return model.CellResult{}, cerr
			}
			return model.CellResult{}, model.NewProviderError(e.modelName, cerr.Error())
		}

		totalCost += resp.Cost
		tokensIn += resp.TokensIn
		tokensOut += resp.TokensOut
		content = resp.Content

		var jsonRepaired bool
		if len(resp.ToolCalls) == 0 && len(toolDefs) > 0 {
			if promptCalls, repaired := e.maybePromptBasedToolCalls(resp.Content); len(promptCalls) > 0 {
				resp.ToolCalls = promptCalls
				jsonRepaired = repaired
			}
		}

		turnNum := turn
		e.writeLog(ctx, echo, model.NodeAgent, cell.Name, func(r *model.LogRow) {
			r.Model = e.modelName
			r.RequestID = resp.RequestID
			r.TokensIn = resp.TokensIn
			r.TokensOut = resp.TokensOut
			r.TotalTokens = resp.TokensIn + resp.TokensOut
			r.Cost = resp.Cost
			r.TurnNumber = &turnNum
			if jsonRepaired {
				r.MetadataJSON = json.RawMessage(`{"json_repair":true}`)
			}
		})

		if strings.TrimSpace(resp.Content) != "" {
			e.sessions.AppendMessage(sessionID, cell.Name, model.Message{Role: "assistant", Content: resp.Content, Turn: turn})
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		toolMsgs, toolImages, terr := e.executeToolCalls(ctx, echo, cell, sessionID, turn, resp.ToolCalls)
		if terr != nil {
			return model.CellResult{}, terr
		}
		images = append(images, toolImages...)
		for _, m := range toolMsgs {
			e.sessions.AppendMessage(sessionID, cell.Name, m)
		}
	}

	return model.CellResult{Content: content, Cost: totalCost, TokensIn: tokensIn, TokensOut: tokensOut, Images: images}, nil
}

// maybePromptBasedToolCalls recognizes a model response that encodes a
// tool call directly in its content rather than through the provider's
// structured tool_calls field (spec §4.5.1's prompt-based tool calling),
// and routes it through tackle.ParseToolCalls' fence-strip/brace-rebalance
// repair pipeline. Only attempted when the content looks JSON-shaped, so
// ordinary prose responses never pay for a doomed parse attempt; any
// parse failure is treated as "no tool call" rather than an error, since
// an agent cell not calling a tool is a perfectly ordinary turn outcome.
func (e *Executor) maybePromptBasedToolCalls(content string) ([]llm.ToolCall, bool) {
	trimmed := strings.TrimSpace(content)
	looksJSON := strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "```")
	if !looksJSON {
		return nil, false
	}

	payloads, repaired, err := tackle.ParseToolCalls(content, e.log)
	if err != nil {
		return nil, false
	}

	calls := make([]llm.ToolCall, 0, len(payloads))
	for _, p := range payloads {
		if p.Name == "" {
			return nil, false
		}
		calls = append(calls, llm.ToolCall{Name: p.Name, Args: p.Args})
	}
	return calls, repaired
}

// buildToolSpecs resolves each trait name to its registered synopsis,
// one name at a time so an unknown name never desynchronizes a
// parallel-slice lookup.
func (e *Executor) buildToolSpecs(names []string) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, n := range names {
		desc := n
		if syn := e.tools.Synopses([]string{n}); len(syn) > 0 {
			desc = syn[0]
		}
		specs = append(specs, llm.ToolSpec{Name: n, Description: desc})
	}
	return specs
}

// executeToolCalls runs every model-issued tool call concurrently (bounded
// by maxParallel), since independent tool calls within one turn have no
// ordering dependency on each other. Results are written back into msgs in
// call order regardless of completion order, so follow-up context stays
// deterministic.
func (e *Executor) executeToolCalls(ctx context.Context, echo *model.Echo, cell model.Cell, sessionID string, turn int, calls []llm.ToolCall) ([]model.Message, []string, error) {
	msgs := make([]model.Message, len(calls))
	var (
		mu        sync.Mutex
		allImages []string
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := e.maxParallel
	if limit <= 0 {
		limit = len(calls)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			e.writeLog(ctx, echo, model.NodeToolCall, cell.Name, func(r *model.LogRow) {
				r.ContentJSON = json.RawMessage(call.Args)
			})

			res, err := e.tools.Invoke(gctx, sessionID, tackle.Call{Name: call.Name, Args: call.Args})
			if err != nil {
				e.sessions.AppendError(sessionID, model.SessionError{CellName: cell.Name, ErrorKind: "tool_error", Message: err.Error()})
				e.writeLog(ctx, echo, model.NodeError, cell.Name, func(r *model.LogRow) {
					r.ContentJSON, _ = json.Marshal(err.Error())
				})
				msgs[i] = model.Message{Role: "tool", Content: "error: " + err.Error(), Turn: turn}
				return nil
			}

			if len(res.Images) > 0 {
				mu.Lock()
				allImages = append(allImages, res.Images...)
				mu.Unlock()
			}

			e.writeLog(ctx, echo, model.NodeToolResult, cell.Name, func(r *model.LogRow) {
				r.ContentJSON, _ = json.Marshal(res.Content)
				r.HasImages = len(res.Images) > 0
			})

			msgs[i] = model.Message{Role: "tool", Content: res.Content, Images: res.Images, Turn: turn}
			return nil
		})
	}
	_ = g.Wait()

	return msgs, allImages, nil
}

// writeLog populates the common LogRow fields from echo and applies
// mutate for the node-type-specific ones, then appends through the sink.
// A write failure is logged and otherwise swallowed: per logsink.Sink's
// contract this is best-effort when the backing store is unavailable, and
// must never abort the cascade it is merely observing.
func (e *Executor) writeLog(ctx context.Context, echo *model.Echo, nodeType model.NodeType, cellName string, mutate func(*model.LogRow)) {
	now := time.Now().UTC()
	row := model.LogRow{
		Timestamp:       float64(now.UnixNano()) / 1e9,
		TimestampISO:    now.Format(time.RFC3339Nano),
		SessionID:       echo.SessionID,
		TraceID:         echo.SessionID,
		ParentSessionID: echo.ParentSessionID,
		NodeType:        nodeType,
		Depth:           echo.Depth,
		CascadeID:       echo.CascadeID,
		CellName:        cellName,
		CallerID:        echo.CallerID,
	}
	if mutate != nil {
		mutate(&row)
	}
	if err := e.sink.Log(ctx, row); err != nil {
		e.log.Warn().Err(err).Str("node_type", string(nodeType)).Str("cell", cellName).Msg("cell: log write failed")
	}
}
