package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.MaxConsecutiveFailures)
	assert.Equal(t, 2, cfg.Engine.ParseRetryLimit)
	assert.Equal(t, 0.15, cfg.Coherence.Floor)
	assert.Equal(t, 0.05, cfg.Residue.NearMissEpsilon)
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
engine:
  max_consecutive_failures: 5
  agent_timeout: 90s
coherence:
  floor: 0.2
llm:
  backends:
    claude:
      provider: anthropic
      model: claude-sonnet-4-20250514
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.MaxConsecutiveFailures)
	assert.Equal(t, 90*time.Second, cfg.Engine.AgentTimeout.Std())
	assert.Equal(t, 0.2, cfg.Coherence.Floor)
	// Untouched defaults survive partial files.
	assert.Equal(t, 2, cfg.Engine.ParseRetryLimit)
	require.Contains(t, cfg.LLM.Backends, "claude")
	assert.Equal(t, "anthropic", cfg.LLM.Backends["claude"].Provider)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("EVOFORGE_RESIDUE_DB", "/tmp/override.db")
	t.Setenv("EVOFORGE_MAX_PROMPT_TOKENS", "12000")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
residue:
  database_path: file.db
llm:
  backends:
    claude:
      provider: anthropic
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Residue.DatabasePath)
	assert.Equal(t, 12000, cfg.Prompt.MaxTokens)
	assert.Equal(t, "sk-test", cfg.LLM.Backends["claude"].APIKey)
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := Default()
	cfg.Coherence.Floor = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.MaxConsecutiveFailures = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Prompt.MaxTokens = 10
	assert.Error(t, cfg.Validate())
}
