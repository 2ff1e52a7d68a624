package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/ui"
	"github.com/seedwise/kindred/internal/vecindex"
	"github.com/seedwise/kindred/types"
)

// indexCmd groups operations on the persisted embedding index.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or clear the persisted embedding index",
	Long: `Inspect or clear the persisted embedding index.

The index (vectors.bin plus metadata.json) is a per-request working set, so
clearing it is always safe: the next analysis rebuilds it from scratch.`,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector count, dimension, and memory footprint",
	RunE:  runIndexStats,
}

var indexClearForce bool

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted index files",
	RunE:  runIndexClear,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexClearCmd)
	indexClearCmd.Flags().BoolVarP(&indexClearForce, "force", "f", false, "Skip the confirmation prompt")
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	dir := config.GetIndexBasePath()
	store, err := vecindex.NewStore(dir)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}

	idx, err := store.Load()
	if err != nil {
		if errors.Is(err, vecindex.ErrCorrupt) {
			if isJSON() {
				return printJSON(types.IndexStatsResponse{Path: dir, Count: -1})
			}
			PrintError("The persisted index failed integrity checks. Run 'kindred index clear' to recover.", err)
			return fmt.Errorf("index corrupt")
		}
		return fmt.Errorf("load index: %w", err)
	}

	stats := idx.Stats()
	if isJSON() {
		return printJSON(types.IndexStatsResponse{
			Count:       stats.Count,
			Dimension:   stats.Dimension,
			MemoryBytes: stats.MemoryBytes,
			Path:        dir,
		})
	}

	content := fmt.Sprintf("Path:       %s\nVectors:    %d\nDimension:  %d\nMemory:     %s",
		dir, stats.Count, stats.Dimension, formatBytes(stats.MemoryBytes))
	if !stats.LastUpdated.IsZero() {
		content += fmt.Sprintf("\nUpdated:    %s", stats.LastUpdated.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Println(ui.RenderInfoPanel("Embedding Index", content))

	if stats.Count == 0 {
		fmt.Println(ui.StyleSubtle.Render("Empty. The index fills on the next 'kindred related' run."))
	}
	return nil
}

func runIndexClear(cmd *cobra.Command, args []string) error {
	dir := config.GetIndexBasePath()
	store, err := vecindex.NewStore(dir)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}

	// Count what is about to go. A corrupt index still gets cleared; the
	// count is just unknown then.
	removed := 0
	if idx, err := store.Load(); err == nil {
		removed = idx.Len()
	} else if !errors.Is(err, vecindex.ErrCorrupt) {
		return fmt.Errorf("load index: %w", err)
	}

	if !indexClearForce {
		if !confirmOrAbort(fmt.Sprintf("Delete the persisted index at %s (%d vectors)? [y/N] ", dir, removed)) {
			return nil
		}
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	if isJSON() {
		return printJSON(types.ClearIndexResponse{Cleared: true, Removed: removed})
	}
	fmt.Printf("%s Cleared %d vector(s) from %s\n", ui.StyleSuccess.Render("✓"), removed, dir)
	return nil
}

// formatBytes renders a byte count in the largest sensible unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
