package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/logger"
	"github.com/seedwise/kindred/internal/telemetry"
	"github.com/seedwise/kindred/types"
)

const (
	configName = ".kindred"
	envPrefix  = "KINDRED"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

// validate is a single instance of Validate, it caches struct info
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// validateAppConfig performs validation on the AppConfig struct.
func validateAppConfig(config *types.AppConfig) error {
	errs := validate.Struct(config)
	if errs != nil {
		return errs
	}
	return nil
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// Load .env file first if present
	if err := godotenv.Load(); err != nil {
		// It's okay if .env file doesn't exist.
	}

	// Environment variable handling must be set up BEFORE reading the config
	// file, so that env vars can influence config loading if needed.
	viper.SetEnvPrefix(envPrefix)                          // e.g., KINDRED_VERBOSE
	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // KINDRED_TRACKER_BASEURL -> tracker.baseUrl

	cfgFileFlag := viper.GetString("config") // Value from --config flag

	// The project state directory doubles as the config search root. It has
	// to be resolved before the full unmarshal so the config file itself can
	// be found; the unmarshaled value wins afterwards.
	potentialProjectConfigDir := viper.GetString("project.rootDir")
	if potentialProjectConfigDir == "" {
		potentialProjectConfigDir = ".kindred"
	}

	if cfgFileFlag != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFileFlag)
	} else {
		if _, err := os.Stat(potentialProjectConfigDir); !os.IsNotExist(err) {
			// Project-specific config directory exists. Prioritize it.
			viper.AddConfigPath(potentialProjectConfigDir) // ./.kindred/.kindred.yaml
			viper.SetConfigName(configName)
		} else {
			// Fall back to home and current directory for global config.
			home, err := os.UserHomeDir()
			cobra.CheckErr(err)
			viper.AddConfigPath(home)       // $HOME/.kindred.yaml
			viper.AddConfigPath(".")        // ./.kindred.yaml
			viper.SetConfigName(configName)
		}
	}

	// Attempt to read the configuration file.
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if cfgFileFlag != "" {
				fmt.Fprintln(os.Stderr, "Error: Specified config file not found:", cfgFileFlag)
			} else if viper.GetBool("verbose") {
				// Config file not found by search paths, which is fine.
				fmt.Fprintln(os.Stderr, "No config file found. Using defaults and environment variables.")
			}
		} else {
			// Config file was found but another error was produced (e.g., parsing error).
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	}

	// Set default values
	viper.SetDefault("project.rootDir", ".kindred")
	viper.SetDefault("project.indexDir", "index")
	viper.SetDefault("project.teamsFile", "teams.json")
	viper.SetDefault("project.policiesDir", "policies")

	viper.SetDefault("tracker.baseUrl", "")
	viper.SetDefault("tracker.project", "")
	viper.SetDefault("tracker.requestTimeoutSeconds", 30)

	// Defaults for the embedding provider
	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "")
	viper.SetDefault("embedding.batchSize", 25)
	viper.SetDefault("embedding.batchDeadlineSeconds", 45)
	viper.SetDefault("embedding.allowHashFallback", true)

	// Defaults for the optional relationship-typing model
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.apiKey", "")

	// After all sources are configured, unmarshal into GlobalAppConfig
	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling config: %s\n", err)
		os.Exit(1)
	}

	// Ensure critical project paths are set, falling back to Viper's defaults
	// if empty after unmarshal. This handles config files that exist but are
	// missing these specific nested keys.
	if GlobalAppConfig.Project.RootDir == "" {
		GlobalAppConfig.Project.RootDir = viper.GetString("project.rootDir")
	}
	if GlobalAppConfig.Project.IndexDir == "" {
		GlobalAppConfig.Project.IndexDir = viper.GetString("project.indexDir")
	}
	if GlobalAppConfig.Project.IndexDir != "" && !filepath.IsAbs(GlobalAppConfig.Project.IndexDir) {
		GlobalAppConfig.Project.IndexDir = filepath.Join(GlobalAppConfig.Project.RootDir, GlobalAppConfig.Project.IndexDir)
	}
	if GlobalAppConfig.Project.TeamsFile == "" {
		GlobalAppConfig.Project.TeamsFile = viper.GetString("project.teamsFile")
	}
	if GlobalAppConfig.Project.TeamsFile != "" && !filepath.IsAbs(GlobalAppConfig.Project.TeamsFile) {
		GlobalAppConfig.Project.TeamsFile = filepath.Join(GlobalAppConfig.Project.RootDir, GlobalAppConfig.Project.TeamsFile)
	}

	// Validate the populated configuration
	if err := validateAppConfig(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %s\n", err)
		os.Exit(1)
	}

	// Crash logs and the telemetry opt-in file live under the global config
	// dir so they survive per-project state wipes.
	if dir, err := config.GetGlobalConfigDir(); err == nil {
		logger.SetBasePath(dir)
		telemetry.SetConfigDir(dir)
	}
	logger.SetCommand(strings.Join(os.Args, " "))
}

// GetConfig returns a pointer to the global types.AppConfig instance.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}
