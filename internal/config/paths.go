package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// GetGlobalConfigDir returns the path to the global configuration directory (~/.kindred).
// This is the source of truth for where global config lives.
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kindred"), nil
}

// GetIndexBasePath returns the directory holding the persisted embedding index
// (vectors.bin and metadata.json).
// Resolution order (first match wins):
// 1. VECTOR_DB_PATH environment variable
// 2. Explicit config via "index.path" (Viper/env/flag)
// 3. Local project directory: .kindred/index (if exists)
// 4. XDG_DATA_HOME/kindred/index (if XDG_DATA_HOME is set)
// 5. Global fallback: ~/.kindred/index
func GetIndexBasePath() string {
	// 1.+2. LoadIndexConfig layers VECTOR_DB_PATH over "index.path", so a
	// non-empty path here already has the env override applied.
	if cfg := LoadIndexConfig(); cfg.Path != "" {
		return cfg.Path
	}

	// 3. Check for local project .kindred/index directory
	// This allows per-project isolation when running from within a project
	localIndex := ".kindred/index"
	if info, err := os.Stat(localIndex); err == nil && info.IsDir() {
		return localIndex
	}

	// 4. Check XDG_DATA_HOME
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "kindred", "index")
	}

	// 5. Fallback to ~/.kindred/index (global)
	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "./index"
	}
	return filepath.Join(dir, "index")
}

// GetEmbedCachePath returns the SQLite file backing the embedding cache.
// Resolution order mirrors GetIndexBasePath minus the env override:
// explicit "embedding.cachePath" config, then XDG_DATA_HOME, then global.
func GetEmbedCachePath() string {
	if path := viper.GetString("embedding.cachePath"); path != "" {
		return path
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "kindred", "cache", "embeddings.db")
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return filepath.Join(".kindred", "cache", "embeddings.db")
	}
	return filepath.Join(dir, "cache", "embeddings.db")
}

// GetAuditDBPath returns the SQLite file recording admission decisions.
// Resolution mirrors GetEmbedCachePath: explicit "policy.auditPath" config,
// then XDG_DATA_HOME, then global.
func GetAuditDBPath() string {
	if path := viper.GetString("policy.auditPath"); path != "" {
		return path
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "kindred", "audit.db")
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return filepath.Join(".kindred", "audit.db")
	}
	return filepath.Join(dir, "audit.db")
}
