package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedwise/kindred/internal/engine"
	"github.com/seedwise/kindred/internal/fetcher"
	"github.com/seedwise/kindred/internal/relationships"
	"github.com/seedwise/kindred/internal/telemetry"
	"github.com/seedwise/kindred/internal/ui"
	"github.com/seedwise/kindred/internal/workitem"
	"github.com/seedwise/kindred/types"
)

// relatedCmd represents the related command
var relatedCmd = &cobra.Command{
	Use:   "related [work-item-id]",
	Short: "Find work items related to a seed item",
	Long: `Find the work items most related to a given seed item.

The pipeline fetches recent candidates from your tracker, embeds their
canonical text, and ranks neighbors by cosine similarity with metadata-aware
boosts. Scores are comparable only within one run.

Without arguments, starts an interactive picker.
With a work item id, performs a one-shot analysis.

Examples:
  kindred related 12345                  # One-shot, balanced strategy
  kindred related 12345 --strategy laser # Title-focused retrieval
  kindred related 12345 --json           # Machine-readable report
  kindred related 12345 --team Payments  # Scope retrieval to one team
  kindred related 101 --demo             # Offline run against a seeded corpus
  kindred related                        # Interactive mode`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRelated,
}

var (
	relatedStrategy string
	relatedLimit    int
	relatedTeams    []string
	relatedTypes    []string
	relatedTimeout  time.Duration
	relatedEdges    bool
	relatedDemo     bool
)

func init() {
	rootCmd.AddCommand(relatedCmd)
	relatedCmd.Flags().StringVarP(&relatedStrategy, "strategy", "s", "balanced", "Retrieval strategy: balanced or laser")
	relatedCmd.Flags().IntVar(&relatedLimit, "limit", 0, "Maximum ranked results (0 uses the configured top-k)")
	relatedCmd.Flags().StringSliceVar(&relatedTeams, "team", nil, "Restrict retrieval to these team names (repeatable)")
	relatedCmd.Flags().StringSliceVar(&relatedTypes, "type", nil, "Restrict candidate work item types (repeatable)")
	relatedCmd.Flags().DurationVar(&relatedTimeout, "timeout", 90*time.Second, "Request deadline; expiry yields partial results (0 disables)")
	relatedCmd.Flags().BoolVar(&relatedEdges, "relationships", false, "Type each result's relationship to the seed with an LLM")
	relatedCmd.Flags().BoolVar(&relatedDemo, "demo", false, "Run against a seeded in-memory corpus, no tracker or API key needed")
}

func runRelated(cmd *cobra.Command, args []string) error {
	strategy, err := fetcher.ParseStrategy(relatedStrategy)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cmd.Context(), relatedDemo, false)
	if err != nil {
		return err
	}
	defer p.Close()

	// One-shot when an id is given.
	if len(args) > 0 {
		seedID, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil || seedID <= 0 {
			return fmt.Errorf("work item id must be a positive integer, got %q", args[0])
		}
		return runRelatedOneShot(cmd.Context(), p, seedID, strategy)
	}

	// Otherwise, run interactive mode.
	if isJSON() {
		return fmt.Errorf("interactive mode not supported with --json flag; provide a work item id")
	}
	if !ui.IsInteractive() {
		return fmt.Errorf("no work item id given and no terminal attached; pass an id")
	}
	return runRelatedInteractive(cmd.Context(), p, strategy)
}

func runRelatedOneShot(ctx context.Context, p *pipeline, seedID int, strategy fetcher.Strategy) error {
	if !isJSON() && !isQuiet() {
		ui.RenderPageHeader("Kindred Related", fmt.Sprintf("Seed: #%d  Strategy: %s", seedID, strategy))
		if relatedDemo {
			fmt.Println(ui.StyleSubtle.Render("Demo corpus. " + demoSeedHint()))
		}
	}

	report, err := analyzeSeed(ctx, p, seedID, strategy)
	if err != nil {
		if isJSON() {
			return printJSON(map[string]any{
				"error": map[string]any{"kind": string(types.KindOf(err)), "message": err.Error()},
			})
		}
		PrintError(userMessageFor(err), err)
		return fmt.Errorf("analysis failed")
	}

	edges := inferEdges(ctx, report)

	if isJSON() {
		out := map[string]any{
			"seed":        report.Seed,
			"ranked":      report.Ranked,
			"diagnostics": report.Diagnostics,
		}
		if edges != nil {
			out["edges"] = edges
		}
		return printJSON(out)
	}

	renderRelatedReport(report, edges)
	return nil
}

// analyzeSeed runs one pipeline pass with telemetry around it.
func analyzeSeed(ctx context.Context, p *pipeline, seedID int, strategy fetcher.Strategy) (*engine.Report, error) {
	telemetry.Track(telemetry.EventRelatedStarted, telemetry.RelatedStartedProps(string(strategy)))

	if relatedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, relatedTimeout)
		defer cancel()
	}

	var spin *ui.Spinner
	if !isJSON() && !isQuiet() && ui.IsInteractive() {
		spin = ui.NewSpinner(fmt.Sprintf("Analyzing #%d...", seedID))
		spin.Start()
	}

	report, err := p.Engine.Analyze(ctx, engine.Request{
		SeedID:   seedID,
		Strategy: strategy,
		Teams:    relatedTeams,
		Types:    relatedTypes,
		Limit:    relatedLimit,
	})

	if spin != nil {
		spin.Stop()
	}

	if err != nil {
		telemetry.TrackError(string(types.KindOf(err)))
		return nil, err
	}

	d := report.Diagnostics
	telemetry.Track(telemetry.EventRelatedCompleted, telemetry.RelatedCompletedProps(
		d.DurationMS, d.Strategy, d.CandidateCount, len(report.Ranked), len(d.EmbeddingFallbackIDs), d.Partial))
	return report, nil
}

// inferEdges runs the optional LLM relationship-typing post-pass. Any model
// trouble degrades to plain "related" edges, reported in verbose mode only.
func inferEdges(ctx context.Context, report *engine.Report) []relationships.Edge {
	if !relatedEdges || len(report.Ranked) == 0 {
		return nil
	}

	neighbors := make([]workitem.WorkItem, 0, len(report.Ranked))
	for _, r := range report.Ranked {
		neighbors = append(neighbors, r.Item)
	}

	inferrer := relationships.NewInferrer(llmConfigFromApp())
	edges, note := inferrer.Infer(ctx, report.Seed, neighbors, 30*time.Second)
	if note != "" {
		LogError("relationship typing degraded: "+note, nil)
	}
	return edges
}

// llmConfigFromApp maps the loaded app config onto the chat-model config,
// resolving the API key from config then provider env vars.
func llmConfigFromApp() relationships.Config {
	llm := GetConfig().LLM
	provider := relationships.Provider(llm.Provider)
	if provider == "" {
		provider = relationships.DefaultProvider
	}

	apiKey := llm.APIKey
	if apiKey == "" {
		switch provider {
		case relationships.ProviderOpenAI:
			apiKey = os.Getenv("OPENAI_API_KEY")
		case relationships.ProviderAnthropic:
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		case relationships.ProviderGemini:
			apiKey = os.Getenv("GEMINI_API_KEY")
			if apiKey == "" {
				apiKey = os.Getenv("GOOGLE_API_KEY")
			}
		}
	}

	return relationships.Config{
		Provider: provider,
		Model:    llm.Model,
		APIKey:   apiKey,
		BaseURL:  llm.BaseURL,
	}
}

// renderRelatedReport prints the ranked list with scores, hints, and, in
// verbose mode, the pipeline diagnostics.
func renderRelatedReport(report *engine.Report, edges []relationships.Edge) {
	d := report.Diagnostics

	if len(report.Ranked) == 0 {
		fmt.Println("No related work items cleared the similarity threshold.")
		fmt.Println(ui.StyleSubtle.Render(fmt.Sprintf("Looked at %d candidates (threshold %.2f). Try --strategy laser or a broader --team scope.", d.CandidateCount, d.Threshold)))
		return
	}

	edgeByID := make(map[int]relationships.Edge, len(edges))
	for _, e := range edges {
		edgeByID[e.WorkItemID] = e
	}

	fmt.Printf("\n📊 %d related work item(s) for #%d %s\n\n",
		len(report.Ranked), report.Seed.ID, ui.StyleTitle.Render(ui.Truncate(report.Seed.Title, 60)))

	for _, r := range report.Ranked {
		title := ui.Truncate(r.Item.Title, 70)
		scoreLabel := fmt.Sprintf("%.3f", r.Score)
		if r.ExactTitle {
			scoreLabel += " (near-identical title)"
		}

		fmt.Printf("%2d. %s %s\n", r.Rank, ui.StyleTitle.Render(fmt.Sprintf("#%d", r.WorkItemID)), title)
		meta := fmt.Sprintf("%s · %s · %s", r.Item.WorkItemType, r.Item.State, r.Item.AreaPath)
		fmt.Printf("    %s  score %s\n", ui.StyleSubtle.Render(meta), ui.StylePrimary.Render(scoreLabel))

		if e, ok := edgeByID[r.WorkItemID]; ok && e.Inferred {
			label := e.Kind
			if e.Confidence != "" {
				label += " (" + e.Confidence + ")"
			}
			fmt.Printf("    ↳ %s", ui.StyleSuccess.Render(label))
			if e.Reason != "" {
				fmt.Printf(" %s", ui.StyleSubtle.Render(ui.Truncate(e.Reason, 80)))
			}
			fmt.Println()
		}

		if isVerbose() && len(r.Hints) > 0 {
			fmt.Printf("    %s\n", ui.StyleSubtle.Render(strings.Join(r.Hints, ", ")))
		}
		fmt.Println()
	}

	if d.Partial {
		fmt.Println(ui.RenderWarningPanel("Partial results", "The request deadline expired mid-pipeline; ranking used what had been collected by then."))
	}

	if isVerbose() {
		var b strings.Builder
		fmt.Fprintf(&b, "request %s  strategy %s\n", d.RequestID, d.Strategy)
		fmt.Fprintf(&b, "candidates %d  embedded %d  cache hits %d  threshold %.2f  %dms",
			d.CandidateCount, d.EmbeddedCount, d.CacheHits, d.Threshold, d.DurationMS)
		if len(d.EmbeddingFallbackIDs) > 0 {
			fmt.Fprintf(&b, "\nhash-fallback vectors: %d", len(d.EmbeddingFallbackIDs))
		}
		if len(d.SkippedIDs) > 0 {
			fmt.Fprintf(&b, "\nskipped (no text): %d", len(d.SkippedIDs))
		}
		for _, n := range d.Notes {
			fmt.Fprintf(&b, "\nnote: %s", n)
		}
		fmt.Println(ui.RenderInfoPanel("Diagnostics", b.String()))
	}

	if !viper.GetBool("quiet") && !telemetry.Enabled() {
		// One-line nudge, never a prompt mid-command.
		fmt.Println(ui.StyleSubtle.Render("Anonymous usage stats are off. 'kindred telemetry on' to help improve ranking defaults."))
	}
}
