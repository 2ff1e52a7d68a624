// Package config holds the relatedness core's tunable knobs. Each component
// gets a Default...() constructor plus a Load...() that layers viper-managed
// settings and the documented environment variables over those defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Environment variables recognized by the core. They win over config-file
// values so operators can retune a deployment without editing YAML.
const (
	EnvVectorDBPath        = "VECTOR_DB_PATH"
	EnvSimilarityThreshold = "SIMILARITY_THRESHOLD"
	EnvEmbedBatchSize      = "EMBED_BATCH_SIZE"
	EnvEmbedBatchDeadline  = "EMBED_BATCH_DEADLINE_SECONDS"
	EnvBalancedResultCap   = "BALANCED_RESULT_CAP"
)

// FetcherConfig controls candidate retrieval (time slicing, caps, hydration).
type FetcherConfig struct {
	// AllowedTypes are the work item types admitted into candidate queries.
	AllowedTypes []string `mapstructure:"allowed_types"`

	// BalancedResultCap short-circuits balanced slicing once the unique
	// candidate count exceeds it. Laser ignores the cap.
	BalancedResultCap int `mapstructure:"balanced_result_cap"`

	// Slice geometry, newest-first.
	BalancedSliceMonths int `mapstructure:"balanced_slice_months"`
	BalancedSliceCount  int `mapstructure:"balanced_slice_count"`
	LaserSliceMonths    int `mapstructure:"laser_slice_months"`
	LaserSliceCount     int `mapstructure:"laser_slice_count"`

	// SliceSpacing is the pause between consecutive slice queries so a burst
	// of slices does not overwhelm the tracker.
	SliceSpacing time.Duration `mapstructure:"slice_spacing"`

	// HydrateBatchSize caps ids per GetWorkItemsBatch call (tracker limit 200).
	HydrateBatchSize int `mapstructure:"hydrate_batch_size"`

	// HydrateParallelism bounds concurrent hydration batches.
	HydrateParallelism int `mapstructure:"hydrate_parallelism"`
}

// DefaultFetcherConfig returns the fetcher defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		AllowedTypes:        []string{"Bug", "User Story", "Task", "Feature", "Epic"},
		BalancedResultCap:   350,
		BalancedSliceMonths: 3,
		BalancedSliceCount:  8,
		LaserSliceMonths:    6,
		LaserSliceCount:     6,
		SliceSpacing:        500 * time.Millisecond,
		HydrateBatchSize:    200,
		HydrateParallelism:  4,
	}
}

// LoadFetcherConfig loads fetcher configuration from viper with defaults,
// then applies BALANCED_RESULT_CAP.
func LoadFetcherConfig() FetcherConfig {
	defaults := DefaultFetcherConfig()

	cfg := FetcherConfig{
		AllowedTypes:        getStringSliceWithDefault("fetcher.allowed_types", defaults.AllowedTypes),
		BalancedResultCap:   getIntWithDefault("fetcher.balanced_result_cap", defaults.BalancedResultCap),
		BalancedSliceMonths: getIntWithDefault("fetcher.slices.balanced_months", defaults.BalancedSliceMonths),
		BalancedSliceCount:  getIntWithDefault("fetcher.slices.balanced_count", defaults.BalancedSliceCount),
		LaserSliceMonths:    getIntWithDefault("fetcher.slices.laser_months", defaults.LaserSliceMonths),
		LaserSliceCount:     getIntWithDefault("fetcher.slices.laser_count", defaults.LaserSliceCount),
		SliceSpacing:        getDurationWithDefault("fetcher.slice_spacing", defaults.SliceSpacing),
		HydrateBatchSize:    getIntWithDefault("fetcher.hydrate.batch_size", defaults.HydrateBatchSize),
		HydrateParallelism:  getIntWithDefault("fetcher.hydrate.parallelism", defaults.HydrateParallelism),
	}

	if v, ok := envInt(EnvBalancedResultCap); ok && v > 0 {
		cfg.BalancedResultCap = v
	}
	return cfg
}

// NormalizerConfig controls canonical-text production.
type NormalizerConfig struct {
	MinLength      int  `mapstructure:"min_length"`
	MaxLength      int  `mapstructure:"max_length"`
	RemoveHTML     bool `mapstructure:"remove_html"`
	RemoveMarkdown bool `mapstructure:"remove_markdown"`
}

// DefaultNormalizerConfig returns the normalizer defaults.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		MinLength:      10,
		MaxLength:      8000,
		RemoveHTML:     true,
		RemoveMarkdown: true,
	}
}

// LoadNormalizerConfig loads normalizer configuration from viper with defaults.
func LoadNormalizerConfig() NormalizerConfig {
	defaults := DefaultNormalizerConfig()

	return NormalizerConfig{
		MinLength:      getIntWithDefault("normalizer.min_length", defaults.MinLength),
		MaxLength:      getIntWithDefault("normalizer.max_length", defaults.MaxLength),
		RemoveHTML:     getBoolWithDefault("normalizer.remove_html", defaults.RemoveHTML),
		RemoveMarkdown: getBoolWithDefault("normalizer.remove_markdown", defaults.RemoveMarkdown),
	}
}

// IndexConfig locates the persisted embedding index.
type IndexConfig struct {
	// Path is the index directory holding vectors.bin and metadata.json.
	Path string `mapstructure:"path"`
}

// DefaultIndexConfig returns the index defaults. The empty path means
// "resolve against the project root at wiring time".
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{Path: ""}
}

// LoadIndexConfig loads index configuration from viper, then applies
// VECTOR_DB_PATH.
func LoadIndexConfig() IndexConfig {
	defaults := DefaultIndexConfig()

	cfg := IndexConfig{
		Path: getStringWithDefault("index.path", defaults.Path),
	}
	if v := os.Getenv(EnvVectorDBPath); v != "" {
		cfg.Path = v
	}
	return cfg
}

// EngineConfig controls ranking, thresholding, and embedding batches.
type EngineConfig struct {
	// TopK is the maximum number of ranked results returned.
	TopK int `mapstructure:"top_k"`

	// DefaultThreshold seeds the adaptive threshold when a near-exact
	// duplicate is present (base >= 0.99).
	DefaultThreshold float64 `mapstructure:"default_threshold"`

	// MinThreshold and MaxThreshold clamp the adaptive threshold.
	MinThreshold float64 `mapstructure:"min_threshold"`
	MaxThreshold float64 `mapstructure:"max_threshold"`

	// BatchSize caps texts per embedding provider call.
	BatchSize int `mapstructure:"batch_size"`

	// BatchDeadline bounds one embedding provider call.
	BatchDeadline time.Duration `mapstructure:"batch_deadline"`

	// AllowHashFallback keeps the pipeline alive on provider failure by
	// substituting deterministic content-hash vectors. Disabled, a provider
	// outage becomes a terminal EmbeddingUnavailable.
	AllowHashFallback bool `mapstructure:"allow_hash_fallback"`
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TopK:              20,
		DefaultThreshold:  0.70,
		MinThreshold:      0.60,
		MaxThreshold:      0.95,
		BatchSize:         25,
		BatchDeadline:     45 * time.Second,
		AllowHashFallback: true,
	}
}

// LoadEngineConfig loads engine configuration from viper with defaults, then
// applies SIMILARITY_THRESHOLD, EMBED_BATCH_SIZE, and
// EMBED_BATCH_DEADLINE_SECONDS.
func LoadEngineConfig() EngineConfig {
	defaults := DefaultEngineConfig()

	cfg := EngineConfig{
		TopK:              getIntWithDefault("engine.top_k", defaults.TopK),
		DefaultThreshold:  getFloat64WithDefault("engine.thresholds.default", defaults.DefaultThreshold),
		MinThreshold:      getFloat64WithDefault("engine.thresholds.min", defaults.MinThreshold),
		MaxThreshold:      getFloat64WithDefault("engine.thresholds.max", defaults.MaxThreshold),
		BatchSize:         getIntWithDefault("engine.embed.batch_size", defaults.BatchSize),
		BatchDeadline:     getDurationWithDefault("engine.embed.batch_deadline", defaults.BatchDeadline),
		AllowHashFallback: getBoolWithDefault("engine.embed.allow_hash_fallback", defaults.AllowHashFallback),
	}

	if v, ok := envFloat(EnvSimilarityThreshold); ok && v >= 0 && v <= 1 {
		cfg.DefaultThreshold = v
	}
	if v, ok := envInt(EnvEmbedBatchSize); ok && v > 0 {
		cfg.BatchSize = v
	}
	if v, ok := envInt(EnvEmbedBatchDeadline); ok && v > 0 {
		cfg.BatchDeadline = time.Duration(v) * time.Second
	}
	return cfg
}

// Helper functions for viper with defaults

func getFloat64WithDefault(key string, defaultVal float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return defaultVal
}

func getIntWithDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getBoolWithDefault(key string, defaultVal bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultVal
}

func getStringWithDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

func getStringSliceWithDefault(key string, defaultVal []string) []string {
	if viper.IsSet(key) {
		if v := viper.GetStringSlice(key); len(v) > 0 {
			return v
		}
	}
	return defaultVal
}

func getDurationWithDefault(key string, defaultVal time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return defaultVal
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
