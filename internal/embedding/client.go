package embedding

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/spf13/viper"
)

// Provider identifies the embedding provider to use.
type Provider string

// Provider constants
const (
	// DefaultProvider is the provider used when none is configured
	DefaultProvider = ProviderOpenAI

	// ProviderOpenAI represents the OpenAI provider
	ProviderOpenAI = "openai"

	// ProviderGemini represents the Google Gemini provider
	ProviderGemini = "gemini"

	// ProviderOllama represents a local Ollama server
	ProviderOllama = "ollama"

	// ProviderTEI represents Text Embeddings Inference
	// TEI is a high-performance embedding server from Hugging Face
	// See: https://github.com/huggingface/text-embeddings-inference
	ProviderTEI = "tei"
)

// Default endpoints and models per provider
const (
	DefaultOllamaURL = "http://localhost:11434"
	DefaultTEIURL    = "http://localhost:8080"

	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

// Config holds configuration for creating an embedding client.
type Config struct {
	Provider Provider
	Model    string // Embedding model (empty picks the provider default)
	APIKey   string // Required for OpenAI and Gemini
	BaseURL  string // Required for Ollama and TEI
}

// ValidateProvider checks if the given provider string is supported.
func ValidateProvider(p string) (Provider, error) {
	switch Provider(p) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderTEI:
		return ProviderTEI, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", p)
	}
}

// DefaultModelForProvider returns the default embedding model for a provider.
func DefaultModelForProvider(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return DefaultOpenAIEmbeddingModel
	case ProviderGemini:
		return DefaultGeminiEmbeddingModel
	case ProviderOllama:
		return DefaultOllamaEmbeddingModel
	default:
		return ""
	}
}

// NewEmbedder creates an Embedder instance based on the provider configuration.
// It returns an Eino embedding.Embedder usable for EmbedStrings() calls.
func NewEmbedder(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		modelName := cfg.Model
		if modelName == "" {
			modelName = DefaultOpenAIEmbeddingModel
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:  modelName,
			APIKey: cfg.APIKey,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// Gemini extension relies on environment variables
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)

		modelName := cfg.Model
		if modelName == "" {
			modelName = DefaultGeminiEmbeddingModel
		}
		return geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Model: modelName,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		modelName := cfg.Model
		if modelName == "" {
			modelName = DefaultOllamaEmbeddingModel
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   modelName,
		})

	case ProviderTEI:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultTEIURL
		}
		return NewTEIEmbedder(ctx, &TEIConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: openai, gemini, ollama, tei)", cfg.Provider)
	}
}

// CloseableEmbedder bundles an Embedder with the resources behind it so
// callers can release connections when done. Close is safe on a zero value.
type CloseableEmbedder struct {
	embedding.Embedder
	closer io.Closer
}

// Close releases provider resources, if any.
func (e *CloseableEmbedder) Close() error {
	if e.closer == nil {
		return nil
	}
	err := e.closer.Close()
	e.closer = nil
	return err
}

// NewCloseableEmbedder creates an embedder and pairs it with its closer.
func NewCloseableEmbedder(ctx context.Context, cfg Config) (*CloseableEmbedder, error) {
	embedder, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ce := &CloseableEmbedder{Embedder: embedder}
	if c, ok := embedder.(io.Closer); ok {
		ce.closer = c
	}
	return ce, nil
}

// LoadConfig loads embedding configuration from Viper and environment
// variables. Precedence: explicit Viper config > environment variables >
// defaults. It does NOT handle interactive prompts (that belongs in the CLI
// layer).
func LoadConfig() (Config, error) {
	// 1. Provider
	provider := viper.GetString("embedding.provider")
	if provider == "" {
		provider = DefaultProvider
	}

	p, err := ValidateProvider(provider)
	if err != nil {
		return Config{}, fmt.Errorf("invalid provider: %w", err)
	}

	// 2. Model
	model := viper.GetString("embedding.model")
	if model == "" {
		model = DefaultModelForProvider(p)
	}

	// 3. API Key
	apiKey := ResolveAPIKey(p)
	// Missing keys are not an error here; local providers do not need one
	// and the CLI layer reports the gap with a hint.

	// 4. Base URL (local providers)
	baseURL := viper.GetString("embedding.baseURL")
	if baseURL == "" {
		switch p {
		case ProviderOllama:
			baseURL = DefaultOllamaURL
		case ProviderTEI:
			baseURL = DefaultTEIURL
		}
	}

	return Config{
		Provider: p,
		Model:    model,
		APIKey:   apiKey,
		BaseURL:  baseURL,
	}, nil
}

// ResolveAPIKey returns the best API key for the given provider using
// per-provider config keys, then provider-specific env vars.
func ResolveAPIKey(provider Provider) string {
	keyFromViper := func(path string) string {
		if viper.IsSet(path) {
			return strings.TrimSpace(viper.GetString(path))
		}
		return ""
	}

	// 1) Per-provider config key (embedding.apiKeys.<provider>)
	if key := keyFromViper(fmt.Sprintf("embedding.apiKeys.%s", provider)); key != "" {
		return key
	}

	// 2) Shared config key
	if key := keyFromViper("embedding.apiKey"); key != "" {
		return key
	}

	// 3) Provider-specific env vars
	switch provider {
	case ProviderOpenAI:
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case ProviderGemini:
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
		}
		return key
	default:
		return ""
	}
}
