// Package tmpl renders cascade instruction templates using text/template
// with sprig's function map, giving cascade authors string/list/math
// helpers for free (e.g. {{.name | upper}}, {{.items | first}}).
package tmpl

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Render executes source against data, as used for a cell's `instructions`
// field and for-each-row `inputs` value templates.
func Render(source string, data map[string]interface{}) (string, error) {
	t, err := template.New("instructions").Funcs(sprig.FuncMap()).Parse(source)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
