package invariants_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/cascade"
	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/factory"
	"github.com/rvbbit/rvbbit/internal/identity"
	"github.com/rvbbit/rvbbit/internal/invariants"
	"github.com/rvbbit/rvbbit/internal/logsink/memsink"
)

// first_valid needs no evaluator cell (candidateEvaluate returns the first
// non-empty branch directly), so this cascade exercises the winner-logging
// path deterministically against the fake LLM backend's echo responses
// without depending on it producing parseable evaluator JSON.
const candidateCascadeYAML = `
cascade_id: pick-best
cells:
  - name: variant
    instructions: "produce output"
    candidates:
      factor: "3"
      mode: first_valid
      max_parallel: 3
`

func TestInvariants_AgainstARealCascadeRun(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CascadeDir = t.TempDir()
	cfg.ToolDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CascadeDir, "pick-best.yaml"), []byte(candidateCascadeYAML), 0o644))

	eng, err := factory.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer eng.Close()

	sink, ok := eng.Sink.(*memsink.Sink)
	require.True(t, ok, "config.NewForTesting's default log sink must be memsink for this test to inspect rows")

	c, err := cascade.Load(filepath.Join(cfg.CascadeDir, "pick-best.yaml"))
	require.NoError(t, err)

	ctx := identity.Set(context.Background(), identity.Identity{CallerID: "http-test-1"})
	result, err := eng.Cascades.Run(ctx, c, map[string]interface{}{"topic": "go"}, cascade.RunOptions{})
	require.NoError(t, err)

	checker := invariants.NewChecker(sink.Rows)
	checker.CheckIdentityPropagation(t, result.SessionID)
	checker.CheckSessionBracketing(t, result.SessionID)
	checker.CheckExactlyOneWinner(t, result.SessionID, "variant")
	checker.CheckAgentCallsHaveUsage(t)
	checker.CheckNoEmptyAssistantContent(t)
}

// failingCascadeYAML's only cell invokes a tool name nothing registers, so
// the run always fails before completing its single cell.
const failingCascadeYAML = `
cascade_id: always-fails
cells:
  - name: broken
    mode: tool
    tool: no_such_tool
`

func TestInvariants_SessionBracketingHoldsOnFailure(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.CascadeDir = t.TempDir()
	cfg.ToolDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CascadeDir, "always-fails.yaml"), []byte(failingCascadeYAML), 0o644))

	eng, err := factory.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer eng.Close()

	sink, ok := eng.Sink.(*memsink.Sink)
	require.True(t, ok, "config.NewForTesting's default log sink must be memsink for this test to inspect rows")

	c, err := cascade.Load(filepath.Join(cfg.CascadeDir, "always-fails.yaml"))
	require.NoError(t, err)

	ctx := identity.Set(context.Background(), identity.Identity{CallerID: "http-test-2"})
	result, err := eng.Cascades.Run(ctx, c, nil, cascade.RunOptions{})
	require.Error(t, err, "the cascade's only cell invokes an unregistered tool")

	checker := invariants.NewChecker(sink.Rows)
	checker.CheckSessionBracketing(t, result.SessionID)
}
