package relationships

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Provider identifies the chat-model provider used for edge typing.
type Provider string

// Provider constants
const (
	// DefaultProvider is the provider used when none is configured
	DefaultProvider = ProviderOpenAI

	// ProviderOpenAI represents the OpenAI provider
	ProviderOpenAI = "openai"

	// ProviderAnthropic represents the Anthropic provider
	ProviderAnthropic = "anthropic"

	// ProviderGemini represents the Google Gemini provider
	ProviderGemini = "gemini"

	// ProviderOllama represents a local Ollama server
	ProviderOllama = "ollama"
)

// Default endpoints and chat models per provider
const (
	DefaultOllamaURL = "http://localhost:11434"

	DefaultOpenAIChatModel    = "gpt-4o-mini"
	DefaultAnthropicChatModel = "claude-3-5-haiku-latest"
	DefaultGeminiChatModel    = "gemini-2.0-flash"
	DefaultOllamaChatModel    = "llama3.2"
)

// Config holds configuration for creating a chat model.
type Config struct {
	Provider Provider
	Model    string
	APIKey   string // Required for openai, anthropic and gemini
	BaseURL  string // Required for ollama (default: http://localhost:11434)
}

// ValidateProvider checks if the given provider string is supported.
func ValidateProvider(p string) (Provider, error) {
	switch Provider(p) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderAnthropic:
		return ProviderAnthropic, nil
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderOllama:
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", p)
	}
}

// DefaultModelForProvider returns the default chat model for a provider.
func DefaultModelForProvider(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return DefaultOpenAIChatModel
	case ProviderAnthropic:
		return DefaultAnthropicChatModel
	case ProviderGemini:
		return DefaultGeminiChatModel
	case ProviderOllama:
		return DefaultOllamaChatModel
	default:
		return ""
	}
}

// NewChatModel creates a ChatModel instance based on the provider
// configuration. It returns an Eino BaseChatModel usable for Generate calls.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModelForProvider(cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:  modelName,
			APIKey: cfg.APIKey,
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey: cfg.APIKey,
			Model:  modelName,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// The Gemini extension reads the key from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)

		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: modelName,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
		})

	default:
		return nil, fmt.Errorf("unsupported chat provider: %s (supported: openai, anthropic, gemini, ollama)", cfg.Provider)
	}
}
