package tackle

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/model"
)

// ToolCallPayload is the shape a model emits for prompt-based tool calling:
// a JSON array or object of {name, args} entries.
type ToolCallPayload struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ParseToolCalls implements the robustness pipeline of spec §4.5.1: strip
// markdown fences, attempt a standard parse, and on failure rebalance
// extra closing braces (the common "one too many `}`" model mistake)
// before retrying. A parse that still fails after rebalancing raises a
// recoverable model.ParseError. The returned bool reports whether brace
// rebalancing was needed to parse the payload, so the caller can record
// the spec's json_repair=true warning on the persisted row.
func ParseToolCalls(raw string, log zerolog.Logger) ([]ToolCallPayload, bool, error) {
	stripped := stripCodeFences(raw)

	var single ToolCallPayload
	var many []ToolCallPayload

	if err := json.Unmarshal([]byte(stripped), &many); err == nil {
		return many, false, nil
	}
	if err := json.Unmarshal([]byte(stripped), &single); err == nil {
		return []ToolCallPayload{single}, false, nil
	}

	rebalanced := rebalanceBraces(stripped)
	if rebalanced != stripped {
		if err := json.Unmarshal([]byte(rebalanced), &many); err == nil {
			log.Warn().Str("raw", raw).Msg("tackle: tool-call JSON required brace rebalancing")
			return many, true, nil
		}
		if err := json.Unmarshal([]byte(rebalanced), &single); err == nil {
			log.Warn().Str("raw", raw).Msg("tackle: tool-call JSON required brace rebalancing")
			return []ToolCallPayload{single}, true, nil
		}
	}

	return nil, false, model.NewParseError("tool_call_json", "unparseable after fence-strip and brace rebalancing")
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		first := s[:idx]
		if !strings.ContainsAny(first, "{}[]\"") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// rebalanceBraces strips trailing extra '}' characters so the closing-brace
// count matches the opening-brace count — the model error §4.5.1 names
// explicitly.
func rebalanceBraces(s string) string {
	opens := strings.Count(s, "{")
	closes := strings.Count(s, "}")
	if closes <= opens {
		return s
	}
	trimmed := strings.TrimRight(s, "}")
	return trimmed + strings.Repeat("}", opens)
}
