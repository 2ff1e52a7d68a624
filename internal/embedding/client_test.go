package embedding

import (
	"context"
	"strings"
	"testing"
)

func TestValidateProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     Provider
		wantErr  bool
	}{
		{name: "openai", provider: "openai", want: ProviderOpenAI},
		{name: "gemini", provider: "gemini", want: ProviderGemini},
		{name: "ollama", provider: "ollama", want: ProviderOllama},
		{name: "tei", provider: "tei", want: ProviderTEI},
		{name: "unknown rejected", provider: "cohere", wantErr: true},
		{name: "empty rejected", provider: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateProvider(tt.provider)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateProvider(%q) expected error, got nil", tt.provider)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateProvider(%q) error = %v", tt.provider, err)
				return
			}
			if got != tt.want {
				t.Errorf("ValidateProvider(%q) = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}

func TestDefaultModelForProvider(t *testing.T) {
	tests := []struct {
		provider Provider
		want     string
	}{
		{ProviderOpenAI, DefaultOpenAIEmbeddingModel},
		{ProviderGemini, DefaultGeminiEmbeddingModel},
		{ProviderOllama, DefaultOllamaEmbeddingModel},
		{ProviderTEI, ""},
	}

	for _, tt := range tests {
		if got := DefaultModelForProvider(tt.provider); got != tt.want {
			t.Errorf("DefaultModelForProvider(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestNewCloseableEmbedder_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "openai requires API key",
			cfg: Config{
				Provider: ProviderOpenAI,
				APIKey:   "",
			},
			wantErr: "OpenAI API key is required",
		},
		{
			name: "gemini requires API key",
			cfg: Config{
				Provider: ProviderGemini,
				APIKey:   "",
			},
			wantErr: "gemini API key is required",
		},
		{
			name: "unsupported provider",
			cfg: Config{
				Provider: "unknown",
				APIKey:   "key",
			},
			wantErr: "unsupported embedding provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCloseableEmbedder(ctx, tt.cfg)
			if err == nil {
				t.Errorf("NewCloseableEmbedder() expected error containing %q, got nil", tt.wantErr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewCloseableEmbedder() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCloseableEmbedder_Close(t *testing.T) {
	// Close() must be safe on an embedder without a closer.
	ce := &CloseableEmbedder{
		Embedder: nil,
		closer:   nil,
	}

	if err := ce.Close(); err != nil {
		t.Errorf("Close() on nil closer should return nil, got %v", err)
	}

	// Multiple closes are safe.
	if err := ce.Close(); err != nil {
		t.Errorf("second Close() should return nil, got %v", err)
	}
}

func TestDimensionForModel(t *testing.T) {
	if got := DimensionForModel("text-embedding-3-small"); got != 1536 {
		t.Errorf("DimensionForModel(text-embedding-3-small) = %d, want 1536", got)
	}
	if got := DimensionForModel("nomic-embed-text"); got != 768 {
		t.Errorf("DimensionForModel(nomic-embed-text) = %d, want 768", got)
	}
	if got := DimensionForModel("no-such-model"); got != 0 {
		t.Errorf("DimensionForModel(no-such-model) = %d, want 0", got)
	}
}

func TestModelsForProvider_DefaultFirst(t *testing.T) {
	models := ModelsForProvider(ProviderOllama)
	if len(models) == 0 {
		t.Fatal("ModelsForProvider(ollama) returned nothing")
	}
	if models[0] != DefaultOllamaEmbeddingModel {
		t.Errorf("first model = %q, want default %q", models[0], DefaultOllamaEmbeddingModel)
	}
}
