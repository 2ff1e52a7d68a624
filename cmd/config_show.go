package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/ui"
	"github.com/seedwise/kindred/types"
)

// configCmd groups configuration inspection subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with secrets masked",
	Long: `Show the configuration after merging defaults, the config file,
environment variables, and flags. Tokens and API keys are masked.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := *GetConfig() // copy so masking never touches the live config
	cfg.Tracker.Token = maskSecret(cfg.Tracker.Token)
	cfg.Embedding.APIKey = maskSecret(cfg.Embedding.APIKey)
	cfg.LLM.APIKey = maskSecret(cfg.LLM.APIKey)

	if isJSON() {
		return printJSON(struct {
			ConfigFile string          `json:"configFile,omitempty"`
			IndexPath  string          `json:"indexPath"`
			CachePath  string          `json:"cachePath"`
			Config     types.AppConfig `json:"config"`
		}{
			ConfigFile: viper.ConfigFileUsed(),
			IndexPath:  config.GetIndexBasePath(),
			CachePath:  config.GetEmbedCachePath(),
			Config:     cfg,
		})
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("Config file: %s\n\n", used)
	} else {
		fmt.Printf("Config file: none (defaults and environment only)\n\n")
	}

	fmt.Println(ui.RenderPanel("Project", fmt.Sprintf(
		"RootDir:      %s\nIndexDir:     %s\nTeamsFile:    %s\nPoliciesDir:  %s",
		cfg.Project.RootDir, cfg.Project.IndexDir, cfg.Project.TeamsFile, cfg.Project.PoliciesDir)))

	fmt.Println(ui.RenderPanel("Tracker", fmt.Sprintf(
		"BaseURL:  %s\nProject:  %s\nToken:    %s\nTimeout:  %ds",
		orUnset(cfg.Tracker.BaseURL), orUnset(cfg.Tracker.Project), orUnset(cfg.Tracker.Token), cfg.Tracker.RequestTimeoutSeconds)))

	fmt.Println(ui.RenderPanel("Embedding", fmt.Sprintf(
		"Provider:       %s\nModel:          %s\nAPIKey:         %s\nBaseURL:        %s\nBatchSize:      %d\nBatchDeadline:  %ds\nHashFallback:   %t",
		orUnset(cfg.Embedding.Provider), orUnset(cfg.Embedding.Model), orUnset(cfg.Embedding.APIKey),
		orUnset(cfg.Embedding.BaseURL), cfg.Embedding.BatchSize, cfg.Embedding.BatchDeadlineSeconds, cfg.Embedding.AllowHashFallback)))

	fmt.Println(ui.RenderPanel("Paths", fmt.Sprintf(
		"Index:  %s\nCache:  %s",
		config.GetIndexBasePath(), config.GetEmbedCachePath())))

	return nil
}

// maskSecret keeps just enough of a credential to recognize it.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
