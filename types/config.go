package types

// AppConfig represents the complete application configuration
type AppConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	Quiet   bool   `mapstructure:"quiet"`
	JSON    bool   `mapstructure:"json"`
	Config  string `mapstructure:"config"`

	Project   ProjectConfig   `mapstructure:"project" validate:"required"`
	Tracker   TrackerConfig   `mapstructure:"tracker" validate:"required"`
	Embedding EmbeddingConfig `mapstructure:"embedding" validate:"omitempty"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"omitempty"`
}

// ProjectConfig holds local workspace settings.
type ProjectConfig struct {
	// RootDir is the per-project state directory (index, policies, team map).
	RootDir string `mapstructure:"rootDir" validate:"required"`
	// IndexDir is where vectors.bin and metadata.json live. Relative paths
	// are resolved against RootDir. Overridden by VECTOR_DB_PATH.
	IndexDir string `mapstructure:"indexDir" validate:"required"`
	// TeamsFile maps team names to verified area paths (json, yaml or toml).
	TeamsFile string `mapstructure:"teamsFile" validate:"omitempty"`
	// PoliciesDir holds optional .rego candidate-admission policies.
	PoliciesDir string `mapstructure:"policiesDir" validate:"omitempty"`
}

// TrackerConfig holds connection settings for the issue tracker.
type TrackerConfig struct {
	// BaseURL of the tracker REST API, e.g. https://dev.azure.com/org.
	BaseURL string `mapstructure:"baseUrl" validate:"omitempty,url"`
	// Project is the single logical project scope for all queries.
	Project string `mapstructure:"project" validate:"omitempty,min=1"`
	// Token is a personal access token; may also come from KINDRED_TRACKER_TOKEN.
	Token string `mapstructure:"token" validate:"omitempty,min=1"`
	// RequestTimeoutSeconds controls the HTTP client timeout per tracker call.
	RequestTimeoutSeconds int `mapstructure:"requestTimeoutSeconds" validate:"omitempty,min=5,max=600"`
}

// EmbeddingConfig holds configuration for the embedding provider.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=openai gemini ollama tei"`
	Model    string `mapstructure:"model" validate:"omitempty,min=1"`
	APIKey   string `mapstructure:"apiKey" validate:"omitempty,min=1"`
	// BaseURL is required for ollama and tei providers.
	BaseURL string `mapstructure:"baseUrl" validate:"omitempty,url"`
	// Dimension of the provider's vectors; hash-fallback vectors use the same D.
	Dimension int `mapstructure:"dimension" validate:"omitempty,min=8,max=8192"`
	// BatchSize caps texts per provider call. Overridden by EMBED_BATCH_SIZE.
	BatchSize int `mapstructure:"batchSize" validate:"omitempty,min=1,max=25"`
	// BatchDeadlineSeconds bounds one provider call. Overridden by
	// EMBED_BATCH_DEADLINE_SECONDS.
	BatchDeadlineSeconds int `mapstructure:"batchDeadlineSeconds" validate:"omitempty,min=1,max=600"`
	// AllowHashFallback keeps the pipeline alive on provider failure by
	// substituting deterministic content-hash vectors.
	AllowHashFallback bool `mapstructure:"allowHashFallback"`
	// CachePath is the sqlite file for the process-wide embedding cache.
	// Empty disables caching.
	CachePath string `mapstructure:"cachePath" validate:"omitempty"`
}

// LLMConfig holds configuration for the optional relationship-typing model.
type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=openai anthropic gemini ollama"`
	Model    string `mapstructure:"model" validate:"omitempty,min=1"`
	APIKey   string `mapstructure:"apiKey" validate:"omitempty,min=1"`
	BaseURL  string `mapstructure:"baseUrl" validate:"omitempty,url"`
	// RequestTimeoutSeconds controls the HTTP client timeout for LLM calls
	RequestTimeoutSeconds int `mapstructure:"requestTimeoutSeconds" validate:"omitempty,min=5,max=600"`
}
