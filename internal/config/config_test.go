package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Backend)
	assert.Equal(t, "spokes", cfg.Spokes.Dir)
	assert.Equal(t, "Asia/Tokyo", cfg.Google.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Executor.Timeout)
	assert.True(t, cfg.Executor.Inference)
	assert.True(t, cfg.Orchestrator.Synthesize)
	assert.Equal(t, 3, cfg.Orchestrator.History)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	content := `
llm:
  backend: ollama
  model: llama3
executor:
  timeout: 5s
  inference: false
orchestrator:
  history: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("ASSISTANT_LLM_MODEL", "phi4:latest")
	t.Setenv("ASSISTANT_SPOKES_DIR", "/etc/spokes")

	cfg, err := Load(path)
	require.NoError(t, err)

	testCases := []struct {
		name string
		got  any
		want any
	}{
		{"file value kept", cfg.LLM.Backend, "ollama"},
		{"env overrides file", cfg.LLM.Model, "phi4:latest"},
		{"env sets nested key", cfg.Spokes.Dir, "/etc/spokes"},
		{"duration parsed", cfg.Executor.Timeout, 5 * time.Second},
		{"bool from file", cfg.Executor.Inference, false},
		{"int from file", cfg.Orchestrator.History, 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
