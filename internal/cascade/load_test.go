package cascade

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/model"
)

const sampleCascade = `
cascade_id: greet
inputs_schema:
  name:
    type: string
    description: who to greet
cells:
  - name: say_hi
    instructions: "Say hi to {{.name}}"
    mode: agent
    wards:
      post:
        - validator: json_schema
          mode: blocking
          max_attempts: 2
          output_schema:
            type: object
            properties:
              greeting: { type: string }
`

func TestParse_RetainsRawBytes(t *testing.T) {
	c, err := Parse([]byte(sampleCascade))
	require.NoError(t, err)

	assert.Equal(t, "greet", c.CascadeID)
	assert.Equal(t, []byte(sampleCascade), c.Raw)
	require.Len(t, c.Cells, 1)
	assert.Equal(t, "say_hi", c.Cells[0].Name)
}

func TestParse_OutputSchemaDecodesToJSON(t *testing.T) {
	c, err := Parse([]byte(sampleCascade))
	require.NoError(t, err)

	schema := c.Cells[0].Wards.Post[0].OutputSchema
	assert.JSONEq(t, `{"type":"object","properties":{"greeting":{"type":"string"}}}`, string(schema))
}

func TestParse_RejectsMissingCascadeID(t *testing.T) {
	_, err := Parse([]byte("cells:\n  - name: a\n    instructions: x\n"))
	assert.True(t, model.IsValidationError(err))
}

func TestParse_RejectsDuplicateCellNames(t *testing.T) {
	_, err := Parse([]byte("cascade_id: x\ncells:\n  - name: a\n    instructions: x\n  - name: a\n    instructions: y\n"))
	assert.True(t, model.IsValidationError(err))
}

func TestCascade_CellByName(t *testing.T) {
	c, err := Parse([]byte(sampleCascade))
	require.NoError(t, err)

	cell, ok := c.CellByName("say_hi")
	require.True(t, ok)
	assert.Equal(t, "say_hi", cell.Name)

	_, ok = c.CellByName("missing")
	assert.False(t, ok)
}

func TestLoadDir_KeysByCascadeID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(sampleCascade), 0o644))

	docs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Contains(t, docs, "greet")
}
