package service_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/backlog/service"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := service.DefaultConfig()

	assert.Equal(t, "configs/triage.yaml", cfg.Graph)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.6, cfg.Duplicates.Threshold)
	assert.False(t, cfg.LLM.Enabled())
}

func TestConfig_Merge_ZeroValuesPreserveDefaults(t *testing.T) {
	cfg := service.DefaultConfig()
	cfg.Merge(&service.Config{})

	assert.Equal(t, service.DefaultConfig().Executor, cfg.Executor)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv(service.EnvLLMAPIKey, "secret")

	path := writeFile(t, "backlog.yaml", `
graph: graphs/custom.yaml
executor:
  node_timeout: 5s
  max_concurrency: 2
store:
  driver: file
  path: /tmp/tasks
duplicates:
  window: 20
`)

	cfg, err := service.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "graphs/custom.yaml", cfg.Graph)
	assert.Equal(t, 5*time.Second, cfg.Executor.NodeTimeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.RetryBackoff.Std())
	assert.Equal(t, 2, cfg.Executor.MaxConcurrency)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 20, cfg.Duplicates.Window)
	assert.Equal(t, 0.6, cfg.Duplicates.Threshold)
	assert.True(t, cfg.LLM.Enabled())
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "backlog.json", `{
		"graph": "graphs/triage.hcl",
		"server": {"addr": ":9000"}
	}`)

	cfg, err := service.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "graphs/triage.hcl", cfg.Graph)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(service.EnvGraph, "from-env.yaml")
	t.Setenv(service.EnvAddr, ":7070")

	cfg, err := service.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-env.yaml", cfg.Graph)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown driver", "c.yaml", "store:\n  driver: sqlite\n"},
		{"badger without path", "c.yaml", "store:\n  driver: badger\n"},
		{"unknown field", "c.yaml", "graphs: x.yaml\n"},
		{"bad duration", "c.yaml", "executor:\n  node_timeout: soon\n"},
		{"bad json", "c.json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.LoadConfig(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := service.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
