package cell

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/tackle"
)

// setStateArgs is the payload a cell passes a set_state call: {"key":
// "...", "value": <any JSON>}.
type setStateArgs struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewSetStateTool builds the §4.5 built-in deterministic set_state tool:
// dispatches to sessionstore.Store.SetState using the invoking session and
// cell name stashed on ctx by runAgent/runTool's withRunState, so a cell
// can call it exactly like any other registered tool while the durable
// state row still records which cell wrote it.
func NewSetStateTool(sessions *sessionstore.Store) tackle.Tool {
	return tackle.ToolFunc{
		Desc: "set_state(key, value): durably records a state.<key> value visible to later cells in this cascade",
		Fn: func(ctx context.Context, args json.RawMessage) (tackle.Result, error) {
			var a setStateArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return tackle.Result{}, fmt.Errorf("set_state: invalid args: %w", err)
			}
			if a.Key == "" {
				return tackle.Result{}, fmt.Errorf("set_state: key is required")
			}

			rs, ok := getRunState(ctx)
			if !ok {
				return tackle.Result{}, fmt.Errorf("set_state: no active session on context")
			}

			if err := sessions.SetState(ctx, rs.sessionID, rs.cellName, a.Key, a.Value); err != nil {
				return tackle.Result{}, err
			}
			return tackle.Result{Content: string(a.Value)}, nil
		},
	}
}
