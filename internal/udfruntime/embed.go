package udfruntime

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rvbbit/rvbbit/internal/identity"
	"github.com/rvbbit/rvbbit/internal/vector"
)

// embedBatch implements embed_batch(table, column, rows_json, options_json)
// (§4.12.3): rows_json is a JSON array of {id, text, metadata} objects (the
// shape the RVBBIT EMBED rewrite's json_group_array(...) projects,
// §4.11 phase 3). Each row's text is embedded and the resulting vectors
// are upserted into the vector backend, tagged with column so multiple
// embedded columns of the same table stay distinguishable at search time.
// The embedding caller_id becomes the backend tenant, isolating one
// caller's embedded rows from another's even within the same table.
func (rt *Runtime) embedBatch(ctx context.Context, args ...interface{}) (interface{}, error) {
	if len(args) != 4 || rt.vectors == nil || rt.embedder == nil {
		return errorResult, nil
	}
	table, _ := args[0].(string)
	column, _ := args[1].(string)
	rowsJSON, _ := args[2].(string)

	var rows []struct {
		ID       string                 `json:"id"`
		Text     string                 `json:"text"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		return errorResult, nil
	}
	if len(rows) == 0 {
		return "0", nil
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	vecs, err := rt.embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(rows) {
		return errorResult, nil
	}

	records := make([]vector.Record, len(rows))
	for i, r := range rows {
		records[i] = vector.Record{ID: r.ID, Text: r.Text, Embedding: vecs[i], Metadata: r.Metadata}
	}

	tenant := identity.Get(ctx).CallerID
	if err := rt.vectors.Upsert(ctx, tenant, table, column, records); err != nil {
		return errorResult, nil
	}
	return strconv.Itoa(len(records)), nil
}
