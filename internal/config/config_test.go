package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Dispatch.MaxConcurrentRequests != 4 {
		t.Errorf("expected max concurrent requests 4, got %d", cfg.Dispatch.MaxConcurrentRequests)
	}
	if cfg.Dispatch.Retry.MaxRetries != 3 {
		t.Errorf("expected max retries 3, got %d", cfg.Dispatch.Retry.MaxRetries)
	}
	if cfg.Dispatch.Timeout.SubtaskTimeout() != 5*time.Minute {
		t.Errorf("expected subtask timeout 5m, got %v", cfg.Dispatch.Timeout.SubtaskTimeout())
	}
	if cfg.Analysis.MaxTokens != 4000 || cfg.Analysis.MaxSentences != 50 ||
		cfg.Analysis.MaxParagraphs != 10 || cfg.Analysis.MaxComplexity != 0.8 {
		t.Errorf("unexpected analysis thresholds: %+v", cfg.Analysis)
	}
	if cfg.Slicing.SlicingStrategy != StrategySemantic {
		t.Errorf("expected semantic strategy, got %q", cfg.Slicing.SlicingStrategy)
	}
	if !cfg.Progress.EnableProgressValidation {
		t.Error("expected progress validation to be on by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
dispatch:
  max_concurrent_requests: 2
  retry:
    max_retries: 5
    initial_delay_ms: 10
    backoff_multiplier: 3
  fallback:
    enabled: true
    agents: [openai, gemini]
  error_handling:
    halt_on_critical_failure: true
slicing:
  granularity: fine
  slicing_strategy: structural
analysis:
  max_tokens: 8000
agents:
  default: openai
  anthropic:
    api_key: test-key
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Dispatch.MaxConcurrentRequests != 2 {
		t.Errorf("expected max concurrent requests 2, got %d", cfg.Dispatch.MaxConcurrentRequests)
	}
	if cfg.Dispatch.Retry.MaxRetries != 5 || cfg.Dispatch.Retry.BackoffMultiplier != 3 {
		t.Errorf("unexpected retry config: %+v", cfg.Dispatch.Retry)
	}
	if !cfg.Dispatch.Fallback.Enabled || len(cfg.Dispatch.Fallback.Agents) != 2 || cfg.Dispatch.Fallback.Agents[0] != "openai" {
		t.Errorf("unexpected fallback config: %+v", cfg.Dispatch.Fallback)
	}
	if !cfg.Dispatch.ErrorHandling.HaltOnCriticalFailure {
		t.Error("expected halt_on_critical_failure to be true")
	}
	// Unset keys keep their defaults.
	if !cfg.Dispatch.ErrorHandling.FallbackToSequential {
		t.Error("expected fallback_to_sequential default to survive")
	}
	if cfg.Slicing.Granularity != GranularityFine || cfg.Slicing.SlicingStrategy != StrategyStructural {
		t.Errorf("unexpected slicing config: %+v", cfg.Slicing)
	}
	if cfg.Analysis.MaxTokens != 8000 || cfg.Analysis.MaxSentences != 50 {
		t.Errorf("unexpected analysis config: %+v", cfg.Analysis)
	}
	if cfg.Agents.Default != "openai" {
		t.Errorf("expected default agent openai, got %q", cfg.Agents.Default)
	}
	if cfg.Agents.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Agents.Anthropic.APIKey)
	}
}

func TestLoadFromPath_RejectsInvalidValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
slicing:
  granularity: microscopic
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadFromPath(configPath)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero concurrency", func(c *Config) { c.Dispatch.MaxConcurrentRequests = 0 }},
		{"negative retries", func(c *Config) { c.Dispatch.Retry.MaxRetries = -1 }},
		{"shrinking backoff", func(c *Config) { c.Dispatch.Retry.BackoffMultiplier = 0.5 }},
		{"unknown policy", func(c *Config) { c.Dispatch.ErrorHandling.BatchFailurePolicy = "some" }},
		{"unknown strategy", func(c *Config) { c.Slicing.SlicingStrategy = "random" }},
		{"zero context", func(c *Config) { c.Injection.MaxContextLength = 0 }},
		{"zero flush interval", func(c *Config) { c.Progress.FlushIntervalMs = 0 }},
		{"zero token threshold", func(c *Config) { c.Analysis.MaxTokens = 0 }},
		{"complexity above one", func(c *Config) { c.Analysis.MaxComplexity = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Dispatch.Fallback = FallbackConfig{Enabled: true, Agents: []string{"gemini"}}
	cfg.Injection.CustomPrefix = "You are part of a team."
	cfg.Slicing.MaxSubtasks = 7

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Injection.CustomPrefix != cfg.Injection.CustomPrefix {
		t.Errorf("custom prefix = %q, want %q", loaded.Injection.CustomPrefix, cfg.Injection.CustomPrefix)
	}
	if loaded.Slicing.MaxSubtasks != 7 {
		t.Errorf("max subtasks = %d, want 7", loaded.Slicing.MaxSubtasks)
	}
	if !loaded.Dispatch.Fallback.Enabled || len(loaded.Dispatch.Fallback.Agents) != 1 {
		t.Errorf("fallback = %+v", loaded.Dispatch.Fallback)
	}
}

func TestConfig_JSONOmitsKeys(t *testing.T) {
	cfg := Default()
	cfg.Agents.Anthropic.APIKey = "sk-ant-secret-value"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dispatch := decoded["dispatch"].(map[string]any)
	if _, ok := dispatch["maxConcurrentRequests"]; !ok {
		t.Errorf("expected camelCase json keys, got %v", dispatch)
	}
	if strings.Contains(string(data), "sk-ant-secret-value") {
		t.Error("API key leaked into JSON")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if result := expandEnv("${TEST_VAR}"); result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}
	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/weave" {
		t.Errorf("expected %q, got %q", "/custom/config/weave", dir)
	}
}
