package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, 10*time.Minute, time.Duration(cfg.SessionTimeout))
	require.Equal(t, 2, cfg.MaxQARetries)
	require.Equal(t, 1000, cfg.MaxResultLength)
	require.Nil(t, cfg.EnableDataScience)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.toml")
	contents := `
max_qa_retries = 5
sandbox_snapshot = "ds-v2"
node_timeout = "90s"
enable_data_science = true

[providers.anthropic]
base_url = "https://api.anthropic.com"
api_key_env = "ANTHROPIC_API_KEY"
default_models_per_role = { coder = "claude-opus" }

[[subgraphs]]
name = "research"
description = "deep research"
graph = "research_graph"
input_mapper = "research_in"
output_mapper = "research_out"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxQARetries)
	require.Equal(t, "ds-v2", cfg.SandboxSnapshot)
	require.Equal(t, 90*time.Second, time.Duration(cfg.NodeTimeout))
	require.NotNil(t, cfg.EnableDataScience)
	require.True(t, *cfg.EnableDataScience)

	anthropic, ok := cfg.Providers["anthropic"]
	require.True(t, ok)
	require.Equal(t, "https://api.anthropic.com", anthropic.BaseURL)
	require.Equal(t, "claude-opus", anthropic.DefaultModelByRole["coder"])

	require.Len(t, cfg.Subgraphs, 1)
	require.Equal(t, "research", cfg.Subgraphs[0].Name)
}

func TestProviderConfigAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "secret-value")
	p := ProviderConfig{APIKeyEnv: "TEST_PROVIDER_KEY"}
	require.Equal(t, "secret-value", p.APIKey())

	unset := ProviderConfig{}
	require.Equal(t, "", unset.APIKey())
}

func TestEnableDataScienceOrAuto(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.EnableDataScienceOrAuto(true))
	require.False(t, cfg.EnableDataScienceOrAuto(false))

	enabled := true
	cfg.EnableDataScience = &enabled
	require.True(t, cfg.EnableDataScienceOrAuto(false))
}
