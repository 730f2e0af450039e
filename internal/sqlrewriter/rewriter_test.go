package sqlrewriter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

func TestRewriter_VectorSearchWrapsReadJSONAutoWithPredicate(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`SELECT * FROM VECTOR_SEARCH('what is x', docs.body, 5)`)

	require.NoError(t, err)
	assert.Contains(t, out, "read_json_auto(vector_search_json_3(")
	assert.Contains(t, out, "metadata.column_name = 'body'")
}

func TestRewriter_DirectiveStripSetsPlanFlags(t *testing.T) {
	r := New(nil, nil)
	out, plan, err := r.Rewrite(`BACKGROUND ANALYZE 'summarize results' SELECT 1`)

	require.NoError(t, err)
	assert.True(t, plan.Background)
	assert.Equal(t, "summarize results", plan.Analyze)
	assert.Equal(t, "SELECT 1", strings.TrimSpace(out))
}

func TestRewriter_EmbedBlockBecomesEmbedBatchCall(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`RVBBIT EMBED docs.body USING (SELECT id, text, metadata FROM source) WITH (backend=weaviate, batch_size=50)`)

	require.NoError(t, err)
	assert.Contains(t, out, "embed_batch('docs', 'body',")
	assert.Contains(t, out, `"backend":"weaviate"`)
	assert.Contains(t, out, `"batch_size":"50"`)
}

func TestRewriter_SerialMapRewritesToScalarUDFCall(t *testing.T) {
	r := New(nil, nil)
	out, plan, err := r.Rewrite(`RVBBIT MAP 'cascades/summarize.yaml' AS result USING (SELECT id, body FROM docs)`)

	require.NoError(t, err)
	require.NotNil(t, plan.Map)
	assert.Equal(t, "cascades/summarize.yaml", plan.Map.CascadePath)
	assert.Equal(t, 1, plan.Map.Parallelism)
	assert.Contains(t, out, "rvbbit_run('cascades/summarize.yaml', to_json(t)) AS result")
	assert.Contains(t, plan.Map.InputQuery, "LIMIT 1000")
}

func TestRewriter_ParallelMapDefersToUDFRuntimeInterception(t *testing.T) {
	r := New(nil, nil)
	out, plan, err := r.Rewrite(`RVBBIT MAP PARALLEL 4 DISTINCT 'cascades/classify.yaml' USING (SELECT id FROM docs LIMIT 50)`)

	require.NoError(t, err)
	require.NotNil(t, plan.Map)
	assert.Equal(t, "", out)
	assert.Equal(t, 4, plan.Map.Parallelism)
	assert.True(t, plan.Map.Distinct)
	assert.Contains(t, plan.Map.InputQuery, "LIMIT 50")
	assert.Equal(t, 1, strings.Count(plan.Map.InputQuery, "LIMIT")) // no auto-limit appended, one already present
}

func TestRewriter_SemanticOperatorRewritesToCanonicalArgOrder(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`SELECT * FROM docs WHERE body MEANS 'happy customers'`)

	require.NoError(t, err)
	assert.Contains(t, out, "rvbbit_means(body, 'happy customers')")
}

func TestRewriter_NegatedSemanticOperatorKeepsNotPrefix(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`SELECT * FROM docs WHERE body NOT ABOUT 'politics'`)

	require.NoError(t, err)
	assert.Contains(t, out, "NOT rvbbit_about(body, 'politics')")
}

func TestRewriter_SemanticOperatorIsWordBoundaryAware(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`SELECT meanscol FROM t`)

	require.NoError(t, err)
	assert.Equal(t, `SELECT meanscol FROM t`, out)
}

func TestRewriter_OrderByRelevanceToRewritesToUDFCall(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`SELECT * FROM docs ORDER BY body RELEVANCE TO 'urgent issues'`)

	require.NoError(t, err)
	assert.Contains(t, out, "rvbbit_relevance(body, 'urgent issues') DESC")
}

func TestRewriter_GroupByDimensionFunctionRewritesOnlyGroupByPosition(t *testing.T) {
	r := New(nil, nil)
	out, _, err := r.Rewrite(`SELECT topics(body), COUNT(*) FROM docs GROUP BY topics(body)`)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "SELECT topics(body), COUNT(*) FROM docs GROUP BY"))
	assert.Contains(t, out, "rvbbit_dimension_bucket('topics', body)")
}

func TestRewriter_AggregateAliasRewritesToRegisteredUDF(t *testing.T) {
	r := New([]AggregateOperator{{Alias: "SUMMARIZE", UDFName: "rvbbit_summarize_agg", Arity: 1}}, nil)
	out, _, err := r.Rewrite(`SELECT SUMMARIZE(body) FROM docs GROUP BY category`)

	require.NoError(t, err)
	assert.Contains(t, out, "rvbbit_summarize_agg(body)")
}

func TestRewriter_AggregateArityMismatchErrors(t *testing.T) {
	r := New([]AggregateOperator{{Alias: "SUMMARIZE", UDFName: "rvbbit_summarize_agg", Arity: 1}}, nil)
	_, _, err := r.Rewrite(`SELECT SUMMARIZE(body, extra) FROM docs`)

	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
}

func TestRewriter_IsIdempotentOnAlreadyRewrittenSQL(t *testing.T) {
	r := New(nil, nil)
	out1, _, err := r.Rewrite(`SELECT * FROM docs WHERE body MEANS 'x'`)
	require.NoError(t, err)

	out2, _, err := r.Rewrite(out1)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
}

func TestRewriter_UnterminatedStringPropagatesParseError(t *testing.T) {
	r := New(nil, nil)
	_, _, err := r.Rewrite(`SELECT 'unterminated`)

	require.Error(t, err)
	assert.True(t, model.IsParseError(err))
}
