package cmd

import (
	"testing"

	"github.com/seedwise/kindred/internal/relationships"
	"github.com/seedwise/kindred/types"
)

func TestLLMConfigFromApp(t *testing.T) {
	tests := []struct {
		name         string
		provider     string
		configKey    string
		env          map[string]string
		wantProvider relationships.Provider
		wantKey      string
	}{
		{
			name:         "empty provider defaults to openai with env key",
			provider:     "",
			env:          map[string]string{"OPENAI_API_KEY": "sk-env"},
			wantProvider: relationships.ProviderOpenAI,
			wantKey:      "sk-env",
		},
		{
			name:         "config key wins over env",
			provider:     "openai",
			configKey:    "sk-config",
			env:          map[string]string{"OPENAI_API_KEY": "sk-env"},
			wantProvider: relationships.ProviderOpenAI,
			wantKey:      "sk-config",
		},
		{
			name:         "anthropic reads its env var",
			provider:     "anthropic",
			env:          map[string]string{"ANTHROPIC_API_KEY": "sk-ant"},
			wantProvider: relationships.ProviderAnthropic,
			wantKey:      "sk-ant",
		},
		{
			name:         "gemini prefers GEMINI_API_KEY",
			provider:     "gemini",
			env:          map[string]string{"GEMINI_API_KEY": "gm-1", "GOOGLE_API_KEY": "gg-2"},
			wantProvider: relationships.ProviderGemini,
			wantKey:      "gm-1",
		},
		{
			name:         "gemini falls back to GOOGLE_API_KEY",
			provider:     "gemini",
			env:          map[string]string{"GOOGLE_API_KEY": "gg-2"},
			wantProvider: relationships.ProviderGemini,
			wantKey:      "gg-2",
		},
		{
			name:         "ollama needs no key",
			provider:     "ollama",
			wantProvider: relationships.ProviderOllama,
			wantKey:      "",
		},
	}

	envVars := []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range envVars {
				t.Setenv(v, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := types.AppConfig{}
			cfg.LLM.Provider = tt.provider
			cfg.LLM.APIKey = tt.configKey
			withAppConfig(t, cfg)

			got := llmConfigFromApp()
			if got.Provider != tt.wantProvider {
				t.Errorf("provider = %q, want %q", got.Provider, tt.wantProvider)
			}
			if got.APIKey != tt.wantKey {
				t.Errorf("apiKey = %q, want %q", got.APIKey, tt.wantKey)
			}
		})
	}
}
