package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/engine"
	"github.com/seedwise/kindred/internal/fetcher"
	"github.com/seedwise/kindred/internal/telemetry"
	"github.com/seedwise/kindred/internal/vecindex"
	"github.com/seedwise/kindred/types"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI tool integration",
	Long: `Start a Model Context Protocol (MCP) server so AI tools like Claude Code,
Cursor, and other assistants can query work item relatedness.

The server runs over stdin/stdout and provides tools for:
- Finding work items related to a seed item
- Inspecting the persisted embedding index
- Clearing the persisted embedding index

Example usage with Claude Code:
  kindred mcp

The server will run until the client disconnects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	// MCP server inherits verbose flag from root command
}

// mcpAnalyzeTimeout bounds one find_related call; expiry yields partial
// results when anything was collected, a timeout error otherwise.
const mcpAnalyzeTimeout = 90 * time.Second

func runMCPServer(ctx context.Context) error {
	shared := &mcpPipeline{}
	defer shared.Close()

	impl := &mcp.Implementation{
		Name:    "kindred",
		Version: version,
	}

	server := mcp.NewServer(impl, &mcp.ServerOptions{})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_related",
		Description: "Find the work items most related to a seed work item. Fetches recent candidates from the tracker, embeds their text, and ranks neighbors by cosine similarity with metadata-aware boosts. Scores are comparable only within one response.",
	}, findRelatedHandler(shared))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_stats",
		Description: "Report the persisted embedding index state: vector count, dimension, and approximate memory footprint. An empty index is normal; it fills on the next find_related call.",
	}, indexStatsHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_index",
		Description: "Delete the persisted embedding index files. Always safe: the index is a per-request working set and rebuilds on the next find_related call. Requires force=true when the index is non-empty.",
	}, clearIndexHandler())

	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

// mcpPipeline wires the analysis pipeline on first use and reuses it across
// tool calls. Lazy construction keeps the index tools usable on a machine
// where the tracker is not configured yet.
type mcpPipeline struct {
	mu sync.Mutex
	p  *pipeline
}

func (m *mcpPipeline) get(ctx context.Context) (*pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p != nil {
		return m.p, nil
	}
	// The server outlives any single call, so the team map stays watched.
	p, err := buildPipeline(ctx, false, true)
	if err != nil {
		return nil, err
	}
	m.p = p
	return p, nil
}

func (m *mcpPipeline) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p != nil {
		m.p.Close()
		m.p = nil
	}
}

// findRelatedHandler runs one relatedness analysis for the given seed.
func findRelatedHandler(shared *mcpPipeline) mcp.ToolHandlerFor[types.FindRelatedParams, types.FindRelatedResponse] {
	return func(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[types.FindRelatedParams]) (*mcp.CallToolResultFor[types.FindRelatedResponse], error) {
		args := params.Arguments
		logToolCall("find_related", args)

		if args.SeedID <= 0 {
			return nil, types.NewMCPError("INVALID_SEED", "seedId must be a positive work item id", map[string]interface{}{
				"seedId": args.SeedID,
			})
		}
		if args.Limit < 0 {
			return nil, types.NewMCPError("INVALID_LIMIT", "limit must be zero or positive", map[string]interface{}{
				"limit": args.Limit,
			})
		}
		strategy, err := fetcher.ParseStrategy(args.Strategy)
		if err != nil {
			return nil, types.NewMCPError("INVALID_STRATEGY", err.Error(), map[string]interface{}{
				"strategy":     args.Strategy,
				"valid_values": []string{"balanced", "laser"},
			})
		}

		p, err := shared.get(ctx)
		if err != nil {
			return nil, types.NewMCPError("PIPELINE_UNAVAILABLE", err.Error(), nil)
		}

		telemetry.Track(telemetry.EventRelatedStarted, telemetry.RelatedStartedProps(string(strategy)))

		analyzeCtx, cancel := context.WithTimeout(ctx, mcpAnalyzeTimeout)
		defer cancel()

		report, err := p.Engine.Analyze(analyzeCtx, engine.Request{
			SeedID:   args.SeedID,
			Strategy: strategy,
			Limit:    args.Limit,
		})
		if err != nil {
			telemetry.TrackError(string(types.KindOf(err)))
			logError(err)
			return nil, mcpErrorFor(err, args.SeedID)
		}

		d := report.Diagnostics
		telemetry.Track(telemetry.EventRelatedCompleted, telemetry.RelatedCompletedProps(
			d.DurationMS, d.Strategy, d.CandidateCount, len(report.Ranked), len(d.EmbeddingFallbackIDs), d.Partial))
		logInfo(fmt.Sprintf("find_related seed=%d ranked=%d candidates=%d duration=%dms",
			args.SeedID, len(report.Ranked), d.CandidateCount, d.DurationMS))

		resp := types.FindRelatedResponse{
			SeedID:    report.Seed.ID,
			SeedTitle: report.Seed.Title,
			Strategy:  d.Strategy,
			Count:     len(report.Ranked),
			Partial:   d.Partial,
			Diagnostics: map[string]any{
				"requestId":      d.RequestID,
				"candidateCount": d.CandidateCount,
				"embeddedCount":  d.EmbeddedCount,
				"threshold":      d.Threshold,
				"durationMs":     d.DurationMS,
			},
		}
		if n := len(d.EmbeddingFallbackIDs); n > 0 {
			resp.Diagnostics["embeddingFallbacks"] = n
		}
		for _, r := range report.Ranked {
			resp.Results = append(resp.Results, types.RelatedItemSummary{
				ID:       r.WorkItemID,
				Title:    r.Item.Title,
				Type:     r.Item.WorkItemType,
				State:    r.Item.State,
				AreaPath: r.Item.AreaPath,
				Score:    r.Score,
				Rank:     r.Rank,
				Hints:    r.Hints,
			})
		}

		return &mcp.CallToolResultFor[types.FindRelatedResponse]{
			Content: []mcp.Content{
				&mcp.TextContent{
					Text: renderFindRelatedText(report),
				},
			},
			StructuredContent: resp,
			IsError:           false,
		}, nil
	}
}

// indexStatsHandler reports the persisted index state without touching the
// tracker or embedding provider.
func indexStatsHandler() mcp.ToolHandlerFor[types.IndexStatsParams, types.IndexStatsResponse] {
	return func(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[types.IndexStatsParams]) (*mcp.CallToolResultFor[types.IndexStatsResponse], error) {
		logToolCall("index_stats", params.Arguments)

		dir := config.GetIndexBasePath()
		store, err := vecindex.NewStore(dir)
		if err != nil {
			return nil, types.NewMCPError("INDEX_UNAVAILABLE", err.Error(), map[string]interface{}{"path": dir})
		}

		idx, err := store.Load()
		if err != nil {
			if errors.Is(err, vecindex.ErrCorrupt) {
				return nil, types.NewMCPError("INDEX_CORRUPT", "persisted index failed integrity checks; run clear_index to recover", map[string]interface{}{
					"path": dir,
				})
			}
			return nil, types.NewMCPError("INDEX_UNAVAILABLE", err.Error(), map[string]interface{}{"path": dir})
		}

		stats := idx.Stats()
		resp := types.IndexStatsResponse{
			Count:       stats.Count,
			Dimension:   stats.Dimension,
			MemoryBytes: stats.MemoryBytes,
			Path:        dir,
		}

		text := fmt.Sprintf("Index is empty at %s; it fills on the next find_related call.", dir)
		if stats.Count > 0 {
			text = fmt.Sprintf("Index holds %d vector(s), dimension %d, %s at %s.",
				stats.Count, stats.Dimension, formatBytes(stats.MemoryBytes), dir)
		}

		return &mcp.CallToolResultFor[types.IndexStatsResponse]{
			Content: []mcp.Content{
				&mcp.TextContent{Text: text},
			},
			StructuredContent: resp,
			IsError:           false,
		}, nil
	}
}

// clearIndexHandler deletes the persisted index pair. A non-empty index
// needs force because MCP has no interactive confirmation.
func clearIndexHandler() mcp.ToolHandlerFor[types.ClearIndexParams, types.ClearIndexResponse] {
	return func(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[types.ClearIndexParams]) (*mcp.CallToolResultFor[types.ClearIndexResponse], error) {
		args := params.Arguments
		logToolCall("clear_index", args)

		dir := config.GetIndexBasePath()
		store, err := vecindex.NewStore(dir)
		if err != nil {
			return nil, types.NewMCPError("INDEX_UNAVAILABLE", err.Error(), map[string]interface{}{"path": dir})
		}

		// A corrupt index still gets cleared; the removed count is just
		// unknown then.
		removed := 0
		if idx, err := store.Load(); err == nil {
			removed = idx.Len()
		} else if !errors.Is(err, vecindex.ErrCorrupt) {
			return nil, types.NewMCPError("INDEX_UNAVAILABLE", err.Error(), map[string]interface{}{"path": dir})
		}

		if removed > 0 && !args.Force {
			return nil, types.NewMCPError("CONFIRMATION_REQUIRED", fmt.Sprintf("index holds %d vector(s); pass force=true to clear it", removed), map[string]interface{}{
				"count": removed,
				"path":  dir,
			})
		}

		if err := store.Clear(); err != nil {
			return nil, types.NewMCPError("CLEAR_FAILED", err.Error(), map[string]interface{}{"path": dir})
		}

		logInfo(fmt.Sprintf("clear_index removed=%d path=%s", removed, dir))

		return &mcp.CallToolResultFor[types.ClearIndexResponse]{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Cleared %d vector(s) from %s.", removed, dir)},
			},
			StructuredContent: types.ClearIndexResponse{Cleared: true, Removed: removed},
			IsError:           false,
		}, nil
	}
}

// mcpErrorFor maps a pipeline error onto a structured MCP error code.
func mcpErrorFor(err error, seedID int) *types.MCPError {
	switch types.KindOf(err) {
	case types.ErrKindNotFound:
		return types.NewMCPError("SEED_NOT_FOUND", fmt.Sprintf("work item %d not found in the tracker", seedID), map[string]interface{}{
			"seedId": seedID,
		})
	case types.ErrKindTrackerUnavailable:
		return types.NewMCPError("TRACKER_UNAVAILABLE", err.Error(), nil)
	case types.ErrKindEmbeddingUnavailable:
		return types.NewMCPError("EMBEDDING_UNAVAILABLE", err.Error(), nil)
	case types.ErrKindIndexCorrupt:
		return types.NewMCPError("INDEX_CORRUPT", "persisted index failed integrity checks; run clear_index to recover", nil)
	case types.ErrKindTimeout:
		return types.NewMCPError("TIMEOUT", err.Error(), nil)
	default:
		return types.NewMCPError("ANALYSIS_FAILED", err.Error(), nil)
	}
}

// renderFindRelatedText builds the human-readable companion to the
// structured response.
func renderFindRelatedText(report *engine.Report) string {
	if len(report.Ranked) == 0 {
		return fmt.Sprintf("No related work items cleared the similarity threshold for #%d %q (looked at %d candidates).",
			report.Seed.ID, report.Seed.Title, report.Diagnostics.CandidateCount)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d related work item(s) for #%d %q:\n", len(report.Ranked), report.Seed.ID, report.Seed.Title)
	for _, r := range report.Ranked {
		fmt.Fprintf(&b, "%2d. #%d (%.3f) %s\n", r.Rank, r.WorkItemID, r.Score, r.Item.Title)
	}
	if report.Diagnostics.Partial {
		b.WriteString("Note: the deadline expired mid-pipeline; this list is partial.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func logError(err error) {
	if viper.GetBool("verbose") {
		log.Printf("[MCP ERROR] %v", err)
	}
}

func logInfo(msg string) {
	if viper.GetBool("verbose") {
		log.Printf("[MCP INFO] %s", msg)
	}
}

func logToolCall(toolName string, params interface{}) {
	if viper.GetBool("verbose") {
		log.Printf("[MCP TOOL] %s called with params: %+v", toolName, params)
	}
}
