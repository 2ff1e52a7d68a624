package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seedwise/kindred/internal/telemetry"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Manage anonymous usage statistics",
	Long: `View and manage kindred's anonymous telemetry settings.

Only aggregate counts and timings are collected (strategy, candidate counts,
durations). Work item ids, titles, and text never leave your machine.`,
}

var telemetryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current telemetry status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := telemetry.Load()
		if err != nil {
			return fmt.Errorf("read telemetry status: %w", err)
		}

		if isJSON() {
			return printJSON(map[string]any{
				"enabled":       cfg.IsEnabled(),
				"consent_asked": !cfg.NeedsConsent(),
			})
		}

		if cfg.NeedsConsent() {
			fmt.Println("📊 Telemetry: not configured yet")
			fmt.Println("   Run any command to be prompted for consent, or 'kindred telemetry on'.")
			return nil
		}

		if cfg.IsEnabled() {
			fmt.Println("📊 Telemetry: enabled")
			fmt.Println()
			fmt.Println("   To disable: kindred telemetry off")
		} else {
			fmt.Println("📊 Telemetry: disabled")
			fmt.Println()
			fmt.Println("   To enable: kindred telemetry on")
		}

		return nil
	},
}

var telemetryOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := telemetry.Load()
		if err != nil {
			return fmt.Errorf("read telemetry config: %w", err)
		}
		cfg.Enable()
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("enable telemetry: %w", err)
		}
		fmt.Println("✅ Telemetry enabled. Thank you for helping improve kindred!")
		return nil
	},
}

var telemetryOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := telemetry.Load()
		if err != nil {
			return fmt.Errorf("read telemetry config: %w", err)
		}
		cfg.Disable()
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("disable telemetry: %w", err)
		}
		fmt.Println("✅ Telemetry disabled.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(telemetryCmd)
	telemetryCmd.AddCommand(telemetryStatusCmd)
	telemetryCmd.AddCommand(telemetryOnCmd)
	telemetryCmd.AddCommand(telemetryOffCmd)
}
