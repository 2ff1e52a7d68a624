package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedwise/kindred/internal/logger"
	"github.com/seedwise/kindred/internal/telemetry"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// jsonOutput switches command output to machine-readable JSON.
	jsonOutput bool
	// quiet suppresses decorative output.
	quiet bool
	// ErrNoWorkItems is returned when an interactive selection is attempted
	// but no work items are available.
	ErrNoWorkItems = errors.New("no work items found matching your criteria")
	// version is the application version.
	version = "0.3.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kindred",
	Short: "Kindred finds the work items most related to a given one.",
	Long: `Kindred CLI surfaces the work items most related to a seed item.
It fetches recent candidates from your tracker, embeds their text, and ranks
neighbors by semantic similarity with metadata-aware boosts.`,
	Run: func(cmd *cobra.Command, args []string) {
		// return help if no args are provided
		if len(args) == 0 {
			_ = cmd.Help()
			os.Exit(0)
		}

		// otherwise, run the subcommand
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	logger.SetVersion(version)
	defer logger.HandlePanic()
	defer telemetry.Close()

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitConfig, initTelemetry)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.kindred/.kindred.yaml or $HOME/.kindred.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	// Bind persistent flags to Viper
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

// initTelemetry resolves consent and wires the telemetry client after config
// is loaded so the opt-in state and config dir overrides are respected.
func initTelemetry() {
	// The consent prompt would corrupt machine-readable output; those runs
	// keep the stored answer and stay silent.
	if !isJSON() && !isQuiet() {
		if _, err := telemetry.EnsureConsent(); err != nil {
			LogError("telemetry consent", err)
		}
	}
	if err := telemetry.Init(version); err != nil {
		LogError("telemetry init", err)
	}
}
