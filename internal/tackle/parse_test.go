package tackle

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

func TestParseToolCalls_PlainJSON(t *testing.T) {
	calls, repaired, err := ParseToolCalls(`{"name":"search","args":{"q":"x"}}`, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.False(t, repaired)
}

func TestParseToolCalls_StripsCodeFences(t *testing.T) {
	calls, repaired, err := ParseToolCalls("```json\n{\"name\":\"search\",\"args\":{}}\n```", zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.False(t, repaired)
}

func TestParseToolCalls_RebalancesExtraClosingBrace(t *testing.T) {
	calls, repaired, err := ParseToolCalls(`{"name":"search","args":{"q":"x"}}}`, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.True(t, repaired)
}

func TestParseToolCalls_UnrecoverableReturnsParseError(t *testing.T) {
	_, repaired, err := ParseToolCalls(`not json at all {{{`, zerolog.Nop())
	assert.True(t, model.IsParseError(err))
	assert.False(t, repaired)
}

func TestRebalanceBraces_NoOpWhenBalanced(t *testing.T) {
	assert.Equal(t, `{"a":1}`, rebalanceBraces(`{"a":1}`))
}
