package tackle

import (
	"context"
	"encoding/json"

	"github.com/rvbbit/rvbbit/internal/ward"
)

// RunValidatorTool implements ward.ToolRunner: it invokes the named tool
// and interprets the result as a validation outcome. A tool whose content
// is the literal JSON {"valid": bool, "reason": string} reports that
// outcome directly; any other tool output is treated as valid, since a
// deterministic tool that ran without error raised no objection.
func (r *Registry) RunValidatorTool(ctx context.Context, name string, args json.RawMessage) (ward.Outcome, error) {
	res, err := r.Invoke(ctx, "", Call{Name: name, Args: args})
	if err != nil {
		return ward.Outcome{}, err
	}

	var parsed struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	if jerr := json.Unmarshal([]byte(res.Content), &parsed); jerr != nil {
		return ward.Outcome{Valid: true}, nil
	}
	return ward.Outcome{Valid: parsed.Valid, Reason: parsed.Reason}, nil
}
