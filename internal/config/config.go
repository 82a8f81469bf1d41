// Package config loads the orchestrator's single Config struct: defaults,
// then a TOML file. Secrets never enter the file; a provider's API key is
// read from its named environment variable by ProviderConfig.APIKey.
// Generalized from the oasis.toml loader in the reference corpus to the
// §6.5 configuration surface.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is constructed once in cmd/orchestratord/main.go and threaded
// through constructors. No field is read from a process-wide singleton.
type Config struct {
	SessionTimeout          Duration `toml:"session_timeout"`
	RunResumeGrace          Duration `toml:"run_resume_grace"`
	NodeTimeout             Duration `toml:"node_timeout"`
	DefaultCodeTimeout      Duration `toml:"default_code_timeout"`
	EmitBackpressureTimeout Duration `toml:"emit_backpressure_timeout"`

	MaxAgentIters       int `toml:"max_agent_iters"`
	MaxFix              int `toml:"max_fix"`
	MaxQARetries        int `toml:"max_qa_retries"`
	MaxProcessSelfLoops int `toml:"max_process_self_loops"`

	MaxResultLength int `toml:"max_result_length"`

	SandboxSnapshot   string `toml:"sandbox_snapshot"`
	EnableDataScience *bool  `toml:"enable_data_science"`

	Providers map[string]ProviderConfig `toml:"providers"`
	Subgraphs []SubgraphConfig          `toml:"subgraphs"`
}

// ProviderConfig describes one entry of the Providers map: a model
// provider's base URL and the default model used per agent role when a
// node doesn't pin one explicitly. The API key itself is never stored in
// the TOML file; APIKeyEnv names the environment variable it is read from.
type ProviderConfig struct {
	BaseURL            string            `toml:"base_url"`
	DefaultModelByRole map[string]string `toml:"default_models_per_role"`
	APIKeyEnv          string            `toml:"api_key_env"`
}

// APIKey resolves the provider's credential from its configured
// environment variable. Returns "" when APIKeyEnv is unset or unset in
// the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// SubgraphConfig is one registry entry: a named, describable subgraph with
// its graph identifier and the mapper pair the planner uses to translate
// parent state in and out.
type SubgraphConfig struct {
	Name         string `toml:"name"`
	Description  string `toml:"description"`
	Graph        string `toml:"graph"`
	InputMapper  string `toml:"input_mapper"`
	OutputMapper string `toml:"output_mapper"`
}

// Duration wraps time.Duration with TOML string decoding ("30s", "5m") so
// the file format stays human-editable instead of raw nanoseconds.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a Config with every option set to a safe, conservative
// default. Load applies a TOML file on top.
func Default() Config {
	return Config{
		SessionTimeout:          Duration(10 * time.Minute),
		RunResumeGrace:          Duration(5 * time.Minute),
		NodeTimeout:             Duration(180 * time.Second),
		DefaultCodeTimeout:      Duration(60 * time.Second),
		EmitBackpressureTimeout: Duration(30 * time.Second),

		MaxAgentIters:       15,
		MaxFix:              3,
		MaxQARetries:        2,
		MaxProcessSelfLoops: 3,

		MaxResultLength: 1000,

		SandboxSnapshot: "data-science-base",

		Providers: map[string]ProviderConfig{},
		Subgraphs: nil,
	}
}

// EnableDataScienceOrAuto reports whether data-science routing is enabled.
// A nil EnableDataScience leaves the decision to auto-enable (the planner
// turns it on for a run with at least one CSV-bearing file reference); a
// non-nil value always overrides that auto-detection.
func (c Config) EnableDataScienceOrAuto(autoDetected bool) bool {
	if c.EnableDataScience != nil {
		return *c.EnableDataScience
	}
	return autoDetected
}

// Load reads config: defaults -> TOML file at path (if it exists). No
// environment variable is read here. An empty path or a missing file is
// not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if _, decodeErr := toml.Decode(string(data), &cfg); decodeErr != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, decodeErr)
			}
		case os.IsNotExist(err):
			// Missing file is fine; the defaults apply.
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	return cfg, nil
}
