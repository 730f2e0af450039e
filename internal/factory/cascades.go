package factory

import (
	"fmt"
	"path/filepath"

	"github.com/rvbbit/rvbbit/internal/cascade"
	"github.com/rvbbit/rvbbit/internal/cell"
	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/model"
	"github.com/rvbbit/rvbbit/internal/sessionstore"
	"github.com/rvbbit/rvbbit/internal/tackle"
)

// loadCascadeCatalog loads every cascade under cfg.CascadeDir plus, for
// each of those, every cascade under its own declared tool_dirs (and
// cfg.ToolDir), merged into one map. cascade.Runner's RunAsTool and
// ward.Engine's validator re-entry both resolve cascade_id through a
// single catalog, so a cascade reachable only as another cascade's tool
// must still land in the same map the main Runner is built with.
func loadCascadeCatalog(cfg *config.Config) (map[string]model.Cascade, error) {
	catalog, err := cascade.LoadDir(cfg.CascadeDir)
	if err != nil {
		return nil, fmt.Errorf("load cascade dir %s: %w", cfg.CascadeDir, err)
	}

	seenDirs := map[string]bool{filepath.Clean(cfg.CascadeDir): true}
	var toolDirs []string
	for _, c := range catalog {
		for _, dir := range c.ToolDirs {
			if clean := filepath.Clean(dir); !seenDirs[clean] {
				seenDirs[clean] = true
				toolDirs = append(toolDirs, dir)
			}
		}
	}
	if cfg.ToolDir != "" && !seenDirs[filepath.Clean(cfg.ToolDir)] {
		toolDirs = append(toolDirs, cfg.ToolDir)
	}

	for _, dir := range toolDirs {
		extra, err := cascade.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load tool dir %s: %w", dir, err)
		}
		for id, c := range extra {
			catalog[id] = c
		}
	}

	return catalog, nil
}

// registerToolCascades registers every loaded cascade as a callable
// cascade-as-tool. Registration only makes a cascade_id resolvable by
// name through tackle.Registry.Invoke and adds it to Registry.Names. A cell
// with an explicit traits list is offered only the cascades it names; a
// cell declaring traits: [manifest] has the quartermaster choose from every
// registered name, which includes the whole catalog.
func registerToolCascades(tools *tackle.Registry, catalog map[string]model.Cascade) {
	for _, c := range catalog {
		tools.RegisterCascadeTool(c)
	}
}

// registerBuiltinTools adds the §4.5 built-in deterministic tool catalog.
// set_state is the one the spec names explicitly (§4.2/§8's
// set_state-then-read round trip); it is the only durable cross-cell
// write a cell can make, so it's also the only deterministic built-in
// with an observable effect worth shipping as one.
func registerBuiltinTools(tools *tackle.Registry, sessions *sessionstore.Store) {
	tools.RegisterBuiltin("set_state", cell.NewSetStateTool(sessions))
}
