// Package ward implements the WardEngine (spec §4.9): pre/post cell
// validators with three modes (blocking, retry, advisory) and
// schema-driven retry-with-error-message (§4.6.1).
package ward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rvbbit/rvbbit/internal/contextbuilder/tmpl"
	"github.com/rvbbit/rvbbit/internal/model"
)

// Outcome is what applying one ward hook produces.
type Outcome struct {
	Valid  bool
	Reason string
}

// ToolRunner invokes a validator that resolves to a registered tool name.
// Implemented by tackle.Registry; accepted as an interface to avoid a
// ward -> tackle import cycle.
type ToolRunner interface {
	RunValidatorTool(ctx context.Context, name string, args json.RawMessage) (Outcome, error)
}

// CascadeRunner invokes a validator that resolves to a cascade returning
// {valid, reason}. Implemented by cascade.Runner.
type CascadeRunner interface {
	RunValidatorCascade(ctx context.Context, cascadeID string, inputs map[string]interface{}) (Outcome, error)
}

// Engine applies pre/post ward hooks around a cell invocation.
type Engine struct {
	tools    ToolRunner
	cascades CascadeRunner

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// New constructs an Engine. Either dependency may be nil if the cascade
// pack never declares validators of that kind.
func New(tools ToolRunner, cascades CascadeRunner) *Engine {
	return &Engine{tools: tools, cascades: cascades, compiled: make(map[string]*jsonschema.Schema)}
}

// SetCascades wires the CascadeRunner after construction, mirroring
// tackle.Registry.SetInvoker: cascade.Runner depends on a *cell.Executor
// that depends on this Engine, so factory backfills both setters once the
// Runner exists rather than constructing in strict dependency order.
func (e *Engine) SetCascades(cascades CascadeRunner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cascades = cascades
}

// resolve runs the named validator, trying a registered tool first and
// falling back to a cascade lookup.
func (e *Engine) resolve(ctx context.Context, validator string, args json.RawMessage, inputs map[string]interface{}) (Outcome, error) {
	if e.tools != nil {
		if out, err := e.tools.RunValidatorTool(ctx, validator, args); err == nil {
			return out, nil
		}
	}
	if e.cascades != nil {
		return e.cascades.RunValidatorCascade(ctx, validator, inputs)
	}
	return Outcome{}, model.NewValidationError(validator, "no validator resolved: neither tool nor cascade")
}

// Apply runs one ward spec against content, honoring its mode. attempt is
// 1-based; run is a closure that re-executes the cell (used by retry
// mode) and returns the new content plus any error it produced. onAttempt,
// if non-nil, is called once per resolved Outcome (every loop iteration)
// so a caller can log a ward_check row per attempt, including the
// valid=false/valid=true pair a retry-mode ward produces (spec §4.2,
// e2e scenario #3); it is never called for a resolve error, which the
// caller observes through Apply's own returned error instead.
func (e *Engine) Apply(
	ctx context.Context,
	spec model.WardSpec,
	content string,
	args json.RawMessage,
	inputs map[string]interface{},
	rerun func(ctx context.Context, retryPrompt string) (string, error),
	onAttempt func(attempt int, outcome Outcome),
) (string, error) {
	attempt := 1
	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for {
		outcome, err := e.resolve(ctx, spec.Validator, args, inputs)
		if err != nil {
			return content, err
		}
		if len(spec.OutputSchema) > 0 {
			if schemaOutcome, serr := e.validateSchema(spec.Validator, spec.OutputSchema, content); serr != nil {
				return content, serr
			} else if !schemaOutcome.Valid {
				outcome = schemaOutcome
			}
		}

		if onAttempt != nil {
			onAttempt(attempt, outcome)
		}

		if outcome.Valid {
			return content, nil
		}

		switch spec.Mode {
		case model.WardModeAdvisory:
			return content, nil
		case model.WardModeBlocking:
			return content, model.NewValidationError(spec.Validator, outcome.Reason)
		case model.WardModeRetry:
			if attempt >= maxAttempts {
				return content, model.NewValidationError(spec.Validator, fmt.Sprintf("exhausted %d attempts: %s", maxAttempts, outcome.Reason))
			}
			retryPrompt, terr := tmpl.Render(spec.RetryInstructions, map[string]interface{}{
				"validation_error": outcome.Reason,
				"attempt":          attempt,
				"max_attempts":     maxAttempts,
			})
			if terr != nil {
				return content, model.NewParseError("retry_instructions", terr.Error())
			}
			newContent, rerr := rerun(ctx, retryPrompt)
			if rerr != nil {
				return content, rerr
			}
			content = newContent
			attempt++
			continue
		default:
			return content, model.NewValidationError(spec.Validator, "unknown ward mode "+string(spec.Mode))
		}
	}
}

// validateSchema compiles (and caches) spec.OutputSchema and validates
// content as a JSON document against it.
func (e *Engine) validateSchema(key string, schemaDoc model.RawValue, content string) (Outcome, error) {
	schema, err := e.compiledSchema(key, schemaDoc)
	if err != nil {
		return Outcome{}, model.NewValidationError(key, "invalid output_schema: "+err.Error())
	}

	var instance interface{}
	if err := json.Unmarshal([]byte(content), &instance); err != nil {
		return Outcome{Valid: false, Reason: "output is not valid JSON: " + err.Error()}, nil
	}
	if err := schema.Validate(instance); err != nil {
		return Outcome{Valid: false, Reason: err.Error()}, nil
	}
	return Outcome{Valid: true}, nil
}

func (e *Engine) compiledSchema(key string, schemaDoc model.RawValue) (*jsonschema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.compiled[key]; ok {
		return s, nil
	}

	compiler := jsonschema.NewCompiler()
	resourceName := key + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(schemaDoc)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}
	e.compiled[key] = schema
	return schema, nil
}
