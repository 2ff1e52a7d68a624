package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/embedding"
	"github.com/seedwise/kindred/internal/policy"
	"github.com/seedwise/kindred/internal/relationships"
	"github.com/seedwise/kindred/internal/teams"
	"github.com/seedwise/kindred/internal/ui"
	"github.com/seedwise/kindred/internal/vecindex"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check kindred setup and diagnose issues",
	Long: `Validate your kindred configuration and local state.

Checks:
  • Configuration file and tracker connection settings
  • Team map file
  • Embedding provider credentials and cache
  • Persisted index integrity
  • Admission policies
  • LLM credentials for relationship typing

Use this to troubleshoot before filing an issue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "fail"
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func runDoctor() error {
	checks := []DoctorCheck{
		checkConfigFile(),
		checkTracker(),
		checkTeamMap(),
		checkEmbedding(),
		checkIndex(),
		checkEmbedCache(),
		checkPolicies(),
		checkLLM(),
	}

	hasErrors := false
	for _, c := range checks {
		if c.Status == "fail" {
			hasErrors = true
		}
	}

	if isJSON() {
		return printJSON(map[string]any{
			"checks":  checks,
			"healthy": !hasErrors,
		})
	}

	fmt.Println("🩺 Kindred Doctor")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	for _, c := range checks {
		printCheck(c)
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if hasErrors {
		fmt.Println("❌ Issues found. Fix the errors above before continuing.")
	} else {
		fmt.Println("✅ Everything looks good!")
		fmt.Println()
		fmt.Println("Try: kindred related 12345   (or kindred related --demo 101)")
	}

	return nil
}

func printCheck(c DoctorCheck) {
	var icon string
	switch c.Status {
	case "ok":
		icon = "✅"
	case "warn":
		icon = "⚠️ "
	case "fail":
		icon = "❌"
	}

	fmt.Printf("%s %s: %s\n", icon, c.Name, c.Message)
	if c.Hint != "" && c.Status != "ok" {
		fmt.Printf("   └─ %s\n", ui.StyleSubtle.Render(c.Hint))
	}
}

func checkConfigFile() DoctorCheck {
	if used := viper.ConfigFileUsed(); used != "" {
		return DoctorCheck{
			Name:    "Configuration",
			Status:  "ok",
			Message: used,
		}
	}
	return DoctorCheck{
		Name:    "Configuration",
		Status:  "warn",
		Message: "No config file found, running on defaults and environment",
		Hint:    fmt.Sprintf("Create .kindred/%s.yaml or ~/%s.yaml", configName, configName),
	}
}

func checkTracker() DoctorCheck {
	cfg := GetConfig().Tracker
	if cfg.BaseURL == "" {
		return DoctorCheck{
			Name:    "Tracker",
			Status:  "fail",
			Message: "tracker.baseUrl is not set",
			Hint:    "Set it in the config file or KINDRED_TRACKER_BASEURL (use --demo to explore without a tracker)",
		}
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("KINDRED_TRACKER_TOKEN")
	}
	if token == "" {
		return DoctorCheck{
			Name:    "Tracker",
			Status:  "warn",
			Message: fmt.Sprintf("%s (no access token)", cfg.BaseURL),
			Hint:    "Set tracker.token or KINDRED_TRACKER_TOKEN if the tracker requires auth",
		}
	}

	msg := cfg.BaseURL
	if cfg.Project != "" {
		msg += " project=" + cfg.Project
	}
	return DoctorCheck{
		Name:    "Tracker",
		Status:  "ok",
		Message: msg,
	}
}

func checkTeamMap() DoctorCheck {
	path := GetConfig().Project.TeamsFile
	if path == "" {
		return DoctorCheck{
			Name:    "Team map",
			Status:  "warn",
			Message: "No team map configured, analyses return only the seed",
			Hint:    "Point project.teamsFile at a JSON/YAML/TOML team map",
		}
	}

	fs := afero.NewOsFs()
	if ok, _ := afero.Exists(fs, path); !ok {
		return DoctorCheck{
			Name:    "Team map",
			Status:  "warn",
			Message: fmt.Sprintf("%s does not exist", path),
			Hint:    "Create it or clear project.teamsFile to silence this warning",
		}
	}

	m, err := teams.Load(fs, path)
	if err != nil {
		return DoctorCheck{
			Name:    "Team map",
			Status:  "fail",
			Message: fmt.Sprintf("%s failed to parse", path),
			Hint:    err.Error(),
		}
	}

	msg := fmt.Sprintf("%d team(s) in %s", m.Len(), path)
	if unverified := m.Unverified(); len(unverified) > 0 {
		msg += fmt.Sprintf(", %d unverified", len(unverified))
		return DoctorCheck{
			Name:    "Team map",
			Status:  "warn",
			Message: msg,
			Hint:    "Run: kindred teams --verify",
		}
	}
	return DoctorCheck{
		Name:    "Team map",
		Status:  "ok",
		Message: msg,
	}
}

func checkEmbedding() DoctorCheck {
	cfg, err := embedding.LoadConfig()
	if err != nil {
		return DoctorCheck{
			Name:    "Embedding",
			Status:  "fail",
			Message: err.Error(),
			Hint:    "Check embedding.provider in the config file",
		}
	}

	needsKey := cfg.Provider == embedding.ProviderOpenAI || cfg.Provider == embedding.ProviderGemini
	if needsKey && cfg.APIKey == "" {
		return DoctorCheck{
			Name:    "Embedding",
			Status:  "warn",
			Message: fmt.Sprintf("%s/%s has no API key, hash vectors will be used", cfg.Provider, cfg.Model),
			Hint:    "Set embedding.apiKey or the provider's env var (OPENAI_API_KEY, GEMINI_API_KEY)",
		}
	}

	return DoctorCheck{
		Name:    "Embedding",
		Status:  "ok",
		Message: fmt.Sprintf("%s/%s", cfg.Provider, cfg.Model),
	}
}

func checkIndex() DoctorCheck {
	dir := config.GetIndexBasePath()
	store, err := vecindex.NewStore(dir)
	if err != nil {
		return DoctorCheck{
			Name:    "Index",
			Status:  "fail",
			Message: fmt.Sprintf("cannot open %s", dir),
			Hint:    err.Error(),
		}
	}

	x, err := store.Load()
	if err != nil {
		if errors.Is(err, vecindex.ErrCorrupt) {
			return DoctorCheck{
				Name:    "Index",
				Status:  "fail",
				Message: fmt.Sprintf("persisted index at %s is corrupt", dir),
				Hint:    "Run: kindred index clear (the index rebuilds on the next query)",
			}
		}
		return DoctorCheck{
			Name:    "Index",
			Status:  "fail",
			Message: fmt.Sprintf("cannot load index at %s", dir),
			Hint:    err.Error(),
		}
	}

	if x.Len() == 0 {
		return DoctorCheck{
			Name:    "Index",
			Status:  "ok",
			Message: fmt.Sprintf("empty (%s), populates on first query", dir),
		}
	}
	return DoctorCheck{
		Name:    "Index",
		Status:  "ok",
		Message: fmt.Sprintf("%d vector(s), dimension %d at %s", x.Len(), x.Dimension(), dir),
	}
}

func checkEmbedCache() DoctorCheck {
	path := config.GetEmbedCachePath()
	cache, err := embedding.OpenCache(path)
	if err != nil {
		return DoctorCheck{
			Name:    "Embedding cache",
			Status:  "warn",
			Message: fmt.Sprintf("cannot open %s", path),
			Hint:    "Queries still work, every text re-embeds. Delete the file if it is corrupt.",
		}
	}
	defer func() { _ = cache.Close() }()

	n, err := cache.Count()
	if err != nil {
		return DoctorCheck{
			Name:    "Embedding cache",
			Status:  "warn",
			Message: fmt.Sprintf("%s opened but cannot be read", path),
			Hint:    err.Error(),
		}
	}
	return DoctorCheck{
		Name:    "Embedding cache",
		Status:  "ok",
		Message: fmt.Sprintf("%d cached vector(s) at %s", n, path),
	}
}

func checkPolicies() DoctorCheck {
	dir := policiesDir()
	loader := policy.NewOsLoader(dir)
	exists, err := loader.Exists()
	if err != nil || !exists {
		return DoctorCheck{
			Name:    "Admission policies",
			Status:  "ok",
			Message: "none configured, all fetched candidates are admitted",
		}
	}

	eng, err := policy.NewEngine(policy.EngineConfig{PoliciesDir: dir})
	if err != nil {
		return DoctorCheck{
			Name:    "Admission policies",
			Status:  "fail",
			Message: fmt.Sprintf("policies in %s do not compile", dir),
			Hint:    err.Error(),
		}
	}
	return DoctorCheck{
		Name:    "Admission policies",
		Status:  "ok",
		Message: fmt.Sprintf("%d policy file(s) in %s", eng.PolicyCount(), dir),
	}
}

func checkLLM() DoctorCheck {
	cfg := llmConfigFromApp()
	if cfg.Provider != relationships.ProviderOllama && cfg.APIKey == "" {
		return DoctorCheck{
			Name:    "Relationship typing",
			Status:  "warn",
			Message: fmt.Sprintf("no API key for llm provider %s", cfg.Provider),
			Hint:    "Only needed for --relationships. Set llm.apiKey or the provider's env var.",
		}
	}
	return DoctorCheck{
		Name:    "Relationship typing",
		Status:  "ok",
		Message: fmt.Sprintf("%s/%s", cfg.Provider, cfg.Model),
	}
}
