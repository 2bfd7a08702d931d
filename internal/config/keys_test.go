package config

import (
	"errors"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{}, ProviderAnthropic)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-test-key" {
			t.Errorf("expected 'sk-ant-test-key', got %q", key)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{Agents: AgentsConfig{OpenAI: OpenAIConfig{APIKey: "sk-config-key"}}}
		key, err := GetAPIKey(cfg, ProviderOpenAI)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-config-key" {
			t.Errorf("expected 'sk-config-key', got %q", key)
		}
	})

	t.Run("gemini falls back to GOOGLE_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "google-key")

		key, err := GetAPIKey(nil, ProviderGemini)
		if err != nil || key != "google-key" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("unexpanded reference counts as missing", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("MISSING_KEY_VAR", "")

		cfg := &Config{Agents: AgentsConfig{Anthropic: AnthropicConfig{APIKey: "${MISSING_KEY_VAR}"}}}
		if _, err := GetAPIKey(cfg, ProviderAnthropic); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-abcdefghijklmnopqrstuvwxyz", true},
		{"too short", "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("got %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("got %q", got)
	}
	if got := MaskAPIKey("sk-ant-REDACTED"); got != "sk-ant-...mnop" {
		t.Errorf("got %q", got)
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if got := GetAPIKeySource(&Config{}, ProviderOpenAI); got != KeySourceNone {
		t.Errorf("got %q, want none", got)
	}
	t.Setenv("OPENAI_API_KEY", "env-key")
	if got := GetAPIKeySource(&Config{}, ProviderOpenAI); got != KeySourceEnv {
		t.Errorf("got %q, want environment", got)
	}
}
