package embedding

// Model describes an embedding model definition.
type Model struct {
	ID         string // Canonical model ID
	Provider   string // Provider display name
	ProviderID string // Internal provider ID
	Dimensions int    // Output embedding dimensions
	MaxTokens  int    // Max input tokens
	IsDefault  bool   // Default model for this provider
}

// Registry is the single source of truth for embedding models.
var Registry = []Model{
	// ============================================
	// OpenAI Embedding Models
	// https://platform.openai.com/docs/guides/embeddings
	// ============================================
	{
		ID:         "text-embedding-3-large",
		Provider:   "OpenAI",
		ProviderID: ProviderOpenAI,
		Dimensions: 3072,
		MaxTokens:  8191,
	},
	{
		ID:         "text-embedding-3-small",
		Provider:   "OpenAI",
		ProviderID: ProviderOpenAI,
		Dimensions: 1536,
		MaxTokens:  8191,
		IsDefault:  true,
	},

	// ============================================
	// Google Gemini Embedding Models
	// https://ai.google.dev/gemini-api/docs/embeddings
	// ============================================
	{
		ID:         "text-embedding-004",
		Provider:   "Google",
		ProviderID: ProviderGemini,
		Dimensions: 768,
		MaxTokens:  2048,
		IsDefault:  true,
	},

	// ============================================
	// Ollama Embedding Models (local)
	// ============================================
	{
		ID:         "nomic-embed-text",
		Provider:   "Ollama",
		ProviderID: ProviderOllama,
		Dimensions: 768,
		MaxTokens:  8192,
		IsDefault:  true,
	},
	{
		ID:         "mxbai-embed-large",
		Provider:   "Ollama",
		ProviderID: ProviderOllama,
		Dimensions: 1024,
		MaxTokens:  512,
	},
	{
		ID:         "all-minilm",
		Provider:   "Ollama",
		ProviderID: ProviderOllama,
		Dimensions: 384,
		MaxTokens:  256,
	},

	// ============================================
	// TEI (Text Embeddings Inference) - Custom endpoint
	// ============================================
	{
		ID:         "custom",
		Provider:   "TEI",
		ProviderID: ProviderTEI,
		Dimensions: 0, // Depends on model loaded in TEI
		MaxTokens:  0,
		IsDefault:  true,
	},
}

// modelIndex is built at init time for fast lookups
var modelIndex map[string]*Model

func init() {
	modelIndex = make(map[string]*Model)
	for i := range Registry {
		m := &Registry[i]
		modelIndex[m.ID] = m
	}
}

// GetModel returns the model definition for a given ID, or nil if unknown.
func GetModel(modelID string) *Model {
	return modelIndex[modelID]
}

// DimensionForModel returns the known output width for a model, or 0 when
// the model is unknown or serves a variable width (TEI).
func DimensionForModel(modelID string) int {
	if m := modelIndex[modelID]; m != nil {
		return m.Dimensions
	}
	return 0
}

// ModelsForProvider returns the model IDs available for a provider, default
// first.
func ModelsForProvider(providerID string) []string {
	var def string
	var rest []string
	for _, m := range Registry {
		if m.ProviderID != providerID {
			continue
		}
		if m.IsDefault {
			def = m.ID
			continue
		}
		rest = append(rest, m.ID)
	}
	if def == "" {
		return rest
	}
	return append([]string{def}, rest...)
}
