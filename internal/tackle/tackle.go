// Package tackle is the tool registry (ToolRegistry, spec §4.5): a
// catalog of built-in deterministic tools plus cascades loaded from
// tool_dirs ("cascade-as-tool"), with quartermaster manifest selection for
// cells declaring traits: [manifest].
package tackle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rvbbit/rvbbit/internal/model"
)

// Call is one tool invocation request.
type Call struct {
	Name string
	Args json.RawMessage
}

// Result is what a tool invocation produces.
type Result struct {
	Content  string
	Metadata map[string]interface{}
	Images   []string
}

// Tool is anything the registry can invoke by name.
type Tool interface {
	// Synopsis is a one-line description shown to the quartermaster and
	// rendered into a cell's system prompt.
	Synopsis() string
	Invoke(ctx context.Context, args json.RawMessage) (Result, error)
}

// ToolFunc adapts a plain function to the Tool interface for built-ins.
type ToolFunc struct {
	Desc string
	Fn   func(ctx context.Context, args json.RawMessage) (Result, error)
}

func (f ToolFunc) Synopsis() string { return f.Desc }
func (f ToolFunc) Invoke(ctx context.Context, args json.RawMessage) (Result, error) {
	return f.Fn(ctx, args)
}

// CascadeInvoker runs a cascade as a tool (cascade-as-tool) or as a ward
// validator. Implemented by cascade.Runner; accepted here as an interface
// to avoid an import cycle between tackle and cascade.
type CascadeInvoker interface {
	RunAsTool(ctx context.Context, cascadeID string, inputs map[string]interface{}, parentSessionID string) (Result, error)
}

// Registry is the tool catalog.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	cascades map[string]model.Cascade
	invoker  CascadeInvoker
}

// New constructs an empty Registry. invoker may be nil until a
// CascadeInvoker is wired (e.g. by internal/factory), in which case
// cascade-backed tools fail with a ToolError when invoked.
func New(invoker CascadeInvoker) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		cascades: make(map[string]model.Cascade),
		invoker:  invoker,
	}
}

// SetInvoker wires the CascadeInvoker after construction. cascade.Runner
// itself depends on a *cell.Executor that in turn depends on this
// Registry, so the two can't be constructed in dependency order; factory
// builds both with a nil invoker/cascades first and backfills via this
// setter and ward.Engine.SetCascades once the Runner exists.
func (r *Registry) SetInvoker(invoker CascadeInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoker = invoker
}

// RegisterBuiltin adds a built-in deterministic tool.
func (r *Registry) RegisterBuiltin(name string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
}

// RegisterCascadeTool adds a cascade usable as a tool (cascade-as-tool),
// discovered from a tool_dirs entry.
func (r *Registry) RegisterCascadeTool(c model.Cascade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cascades[c.CascadeID] = c
}

// Names returns every registered tool name, built-in and cascade-backed,
// sorted for deterministic manifest rendering.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools)+len(r.cascades))
	for n := range r.tools {
		names = append(names, n)
	}
	for n := range r.cascades {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Synopses returns "name: description" lines for the given tool names, in
// the order given, skipping unknown names.
func (r *Registry) Synopses(names []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, fmt.Sprintf("%s: %s", n, t.Synopsis()))
			continue
		}
		if c, ok := r.cascades[n]; ok {
			out = append(out, fmt.Sprintf("%s: cascade tool", c.CascadeID))
		}
	}
	return out
}

// Invoke dispatches a tool call by name, whether built-in or cascade-backed.
func (r *Registry) Invoke(ctx context.Context, sessionID string, call Call) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	c, cascadeOK := r.cascades[call.Name]
	r.mu.RUnlock()

	if ok {
		res, err := t.Invoke(ctx, call.Args)
		if err != nil {
			return Result{}, model.NewToolError(call.Name, err.Error())
		}
		return res, nil
	}
	if cascadeOK {
		if r.invoker == nil {
			return Result{}, model.NewToolError(call.Name, "cascade-backed tool invoked with no CascadeInvoker wired")
		}
		var inputs map[string]interface{}
		if len(call.Args) > 0 {
			if err := json.Unmarshal(call.Args, &inputs); err != nil {
				return Result{}, model.NewParseError("tool_args", err.Error())
			}
		}
		return r.invoker.RunAsTool(ctx, c.CascadeID, inputs, sessionID)
	}
	return Result{}, model.NewToolError(call.Name, "unknown tool")
}
