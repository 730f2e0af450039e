// Package contextbuilder assembles the message sequence fed to the LLM
// for one cell invocation (spec §4.4), applying image culling and a
// token-budget truncation policy over prior turn history.
package contextbuilder

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/contextbuilder/tmpl"
	"github.com/rvbbit/rvbbit/internal/model"
)

// TrainingExample is a prior verified (input, output) pair retrieved as a
// few-shot exemplar when a cell declares use_training.
type TrainingExample struct {
	Input  string
	Output string
}

// Input bundles everything Build needs beyond the cell/session pair
// itself. ToolDefs is the already-rendered tool synopsis (assembled by
// tackle.Registry) so contextbuilder stays decoupled from the tool
// catalog; Training is empty unless the cell declared use_training.
type Input struct {
	Cell        model.Cell
	Echo        *model.Echo
	Turn        int
	ToolDefs    []string
	Training    []TrainingExample
	TokenBudget int // approximate character budget; 0 disables truncation
}

// essentialRoleThreshold marks messages from the most recent turn as
// never subject to truncation, per rule 7 ("tool-results from the most
// recent turn" are essential).
const essentialRoleThreshold = 0

// Builder assembles per-cell message lists.
type Builder struct {
	log zerolog.Logger
}

// New constructs a Builder.
func New(log zerolog.Logger) *Builder {
	return &Builder{log: log}
}

// Build implements the 7-step assembly algorithm of spec §4.4.
func (b *Builder) Build(in Input) ([]model.Message, error) {
	var out []model.Message

	// 1. System/tool definitions.
	instructions, err := tmpl.Render(in.Cell.Instructions, buildTemplateData(in.Echo, in.Cell))
	if err != nil {
		return nil, model.NewParseError("cell.instructions", err.Error())
	}
	sys := instructions
	if len(in.ToolDefs) > 0 {
		sys += "\n\nAvailable tools:\n" + strings.Join(in.ToolDefs, "\n")
	}
	out = append(out, model.Message{Role: "system", Content: sys, Turn: in.Turn})

	// 2. Few-shot exemplars, capped to training_limit.
	if in.Cell.UseTraining {
		limit := in.Cell.TrainingLimit
		if limit <= 0 || limit > len(in.Training) {
			limit = len(in.Training)
		}
		for _, ex := range in.Training[:limit] {
			out = append(out,
				model.Message{Role: "user", Content: ex.Input, Turn: in.Turn},
				model.Message{Role: "assistant", Content: ex.Output, Turn: in.Turn},
			)
		}
	}

	// 3. Input data and inherited state (as declared in `context`).
	if inputMsg := buildInputMessage(in.Echo, in.Cell); inputMsg != "" {
		out = append(out, model.Message{Role: "user", Content: inputMsg, Turn: in.Turn})
	}

	// 4 & 5. Prior message history for this cell (multi-turn tool dialogs,
	// and the full transcript for candidate/refinement re-entries — both
	// are just the accumulated history for the cell).
	history := in.Echo.Messages[in.Cell.Name]
	for _, m := range history {
		if m.Role == "assistant" && strings.TrimSpace(m.Content) == "" {
			b.log.Warn().Str("cell", in.Cell.Name).Msg("contextbuilder: dropping empty assistant message from history")
			continue
		}
		out = append(out, m)
	}

	// 6. Image culling: follow-up turns (turn > 0) don't need image bytes
	// re-analyzed; images are already on disk via imagestore, so strip
	// them from every message except the most recent turn's.
	if in.Turn > 0 {
		cullImages(out, in.Turn)
	}

	// 7. Token-budget truncation of oldest non-essential messages.
	if in.TokenBudget > 0 {
		out = truncateToBudget(out, in.TokenBudget, in.Turn)
	}

	return out, nil
}

func buildTemplateData(echo *model.Echo, cell model.Cell) map[string]interface{} {
	data := make(map[string]interface{}, len(echo.Inputs)+1)
	for k, v := range echo.Inputs {
		data[k] = v
	}
	state := make(map[string]interface{}, len(echo.State))
	for k, v := range echo.State {
		state[k] = string(v)
	}
	data["state"] = state
	return data
}

func buildInputMessage(echo *model.Echo, cell model.Cell) string {
	var parts []string
	for _, ref := range cell.Context {
		if strings.HasPrefix(ref, "state.") {
			key := strings.TrimPrefix(ref, "state.")
			if v, ok := echo.State[key]; ok {
				parts = append(parts, "state."+key+": "+string(v))
			}
			continue
		}
		if msgs, ok := echo.Messages[ref]; ok && len(msgs) > 0 {
			parts = append(parts, ref+": "+msgs[len(msgs)-1].Content)
		}
	}
	return strings.Join(parts, "\n")
}

// cullImages removes Images from every message whose Turn is older than
// the most recent turn. The bytes already live in imagestore; only the
// in-memory reference is dropped so follow-ups don't re-ship them.
func cullImages(msgs []model.Message, currentTurn int) {
	for i := range msgs {
		if msgs[i].Turn < currentTurn {
			msgs[i].Images = nil
		}
	}
}

// truncateToBudget drops oldest non-essential messages (everything but
// system messages and the most recent turn's tool results) until the
// total content length fits within budget.
func truncateToBudget(msgs []model.Message, budget, currentTurn int) []model.Message {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	if total <= budget {
		return msgs
	}

	kept := make([]model.Message, 0, len(msgs))
	droppable := make([]int, 0, len(msgs))
	for i, m := range msgs {
		essential := m.Role == "system" || (m.Role == "tool" && m.Turn == currentTurn)
		if essential {
			continue
		}
		droppable = append(droppable, i)
	}

	drop := make(map[int]bool)
	for _, idx := range droppable {
		if total <= budget {
			break
		}
		drop[idx] = true
		total -= len(msgs[idx].Content)
	}

	for i, m := range msgs {
		if !drop[i] {
			kept = append(kept, m)
		}
	}
	return kept
}
