// Package cascade loads cascade documents (spec §3.1, §6.1) and drives
// their execution (CascadeRunner, spec §4.10). Cascade files are YAML
// (JSON is accepted too, since YAML is a JSON superset); the loader keeps
// the exact source bytes on model.Cascade.Raw so every session's stored
// definition is byte-exact for replay, matching "the engine must not
// rewrite it during persistence."
package cascade

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rvbbit/rvbbit/internal/model"
)

// Load reads and parses the cascade document at path.
func Load(path string) (model.Cascade, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Cascade{}, fmt.Errorf("cascade: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes raw cascade bytes, retaining them verbatim on the result.
func Parse(raw []byte) (model.Cascade, error) {
	var c model.Cascade
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return model.Cascade{}, model.NewParseError("cascade", err.Error())
	}
	if c.CascadeID == "" {
		return model.Cascade{}, model.NewValidationError("cascade_id", "required")
	}
	if len(c.Cells) == 0 {
		return model.Cascade{}, model.NewValidationError("cells", "cascade must declare at least one cell")
	}
	seen := make(map[string]bool, len(c.Cells))
	for _, cell := range c.Cells {
		if cell.Name == "" {
			return model.Cascade{}, model.NewValidationError("cells[].name", "required")
		}
		if seen[cell.Name] {
			return model.Cascade{}, model.NewValidationError("cells[].name", fmt.Sprintf("duplicate cell name %q", cell.Name))
		}
		seen[cell.Name] = true
	}
	c.Raw = raw
	return c, nil
}

// LoadDir loads every *.yaml/*.yml/*.json file directly under dir, keyed
// by cascade_id. Used to populate a cascade-as-tool catalog from
// tool_dirs (spec §4.5).
func LoadDir(dir string) (map[string]model.Cascade, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cascade: read dir %s: %w", dir, err)
	}
	out := make(map[string]model.Cascade)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		c, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out[c.CascadeID] = c
	}
	return out, nil
}
