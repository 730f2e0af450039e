package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvbbit/rvbbit/internal/config"
)

const minimalCascadeYAML = `
cascade_id: greet
cells:
  - name: respond
    instructions: "Say hello to {{input}}."
`

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewForTesting()
	cfg.CascadeDir = t.TempDir()
	cfg.ToolDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CascadeDir, "greet.yaml"), []byte(minimalCascadeYAML), 0o644))
	return cfg
}

func TestNew_WiresFakeBackendsEndToEnd(t *testing.T) {
	cfg := newTestConfig(t)

	eng, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, eng)
	defer eng.Close()

	assert.NotNil(t, eng.SQLEngine)
	assert.NotNil(t, eng.LLM)
	assert.NotNil(t, eng.Embedder)
	assert.NotNil(t, eng.Vectors)
	assert.NotNil(t, eng.Sessions)
	assert.NotNil(t, eng.Tools)
	assert.NotNil(t, eng.Wards)
	assert.NotNil(t, eng.Executor)
	assert.NotNil(t, eng.Cascades)
	assert.NotNil(t, eng.Runtime)
	assert.NotNil(t, eng.Rewriter)
	assert.NotNil(t, eng.Scheduler)
	assert.NotNil(t, eng.Health)

	assert.Contains(t, eng.Tools.Names(), "greet")
}

func TestNew_RejectsUnimplementedPostgresEngine(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.SQLEngine = "postgres"
	cfg.PostgresDSN = "postgres://localhost/rvbbit"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_ExecutesSubmittedBackgroundJob(t *testing.T) {
	cfg := newTestConfig(t)

	eng, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	go eng.Scheduler.Run(ctx, 1)

	jobID, err := eng.Scheduler.Submit(ctx, "SELECT 1 AS one")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
}
