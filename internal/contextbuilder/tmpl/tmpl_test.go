package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SubstitutesData(t *testing.T) {
	out, err := Render("Say hi to {{.name}}", map[string]interface{}{"name": "ava"})
	require.NoError(t, err)
	assert.Equal(t, "Say hi to ava", out)
}

func TestRender_SprigFuncAvailable(t *testing.T) {
	out, err := Render("{{.name | upper}}", map[string]interface{}{"name": "ava"})
	require.NoError(t, err)
	assert.Equal(t, "AVA", out)
}

func TestRender_ErrorsOnBadSyntax(t *testing.T) {
	_, err := Render("{{.name", nil)
	assert.Error(t, err)
}
