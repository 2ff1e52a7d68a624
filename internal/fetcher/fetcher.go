// Package fetcher expands a seed work item into a bounded candidate corpus.
// It slices the search window newest-first, runs one scoped query per slice,
// deduplicates ids across slices, and hydrates full work items in
// tracker-sized batches.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/phrase"
	"github.com/seedwise/kindred/internal/teams"
	"github.com/seedwise/kindred/internal/tracker"
	"github.com/seedwise/kindred/internal/workitem"
)

// Strategy selects how wide the candidate net is cast.
type Strategy string

const (
	// StrategyBalanced phrase-searches titles and descriptions, eight
	// 3-month slices over 24 months, stopping early past the result cap.
	StrategyBalanced Strategy = "balanced"

	// StrategyLaser matches the full seed title, six 6-month slices over
	// 36 months, always running every slice.
	StrategyLaser Strategy = "laser"
)

// ParseStrategy validates a user-supplied strategy name. Empty means
// balanced.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StrategyBalanced):
		return StrategyBalanced, nil
	case string(StrategyLaser):
		return StrategyLaser, nil
	default:
		return "", fmt.Errorf("unknown strategy %q: must be balanced or laser", s)
	}
}

// Admitter is an optional post-hydration filter over candidates. The policy
// engine implements it; nil admits everything.
type Admitter interface {
	// Admit reports whether candidate may enter the pipeline, along with
	// any policy warnings worth logging.
	Admit(ctx context.Context, seed, candidate workitem.WorkItem) (bool, []string, error)
}

// TeamResolver turns team names into verified area paths. A static *teams.Map
// satisfies it for one-shot commands; the reloadable teams.Source satisfies it
// for long-running servers.
type TeamResolver interface {
	Resolve(names []string) []string
}

var (
	_ TeamResolver = (*teams.Map)(nil)
	_ TeamResolver = (*teams.Source)(nil)
)

// timeNow is stubbed in tests to pin slice windows.
var timeNow = time.Now

// Options wires a Fetcher.
type Options struct {
	Client  tracker.Client
	Teams   TeamResolver
	Project string
	Config  config.FetcherConfig

	// Admitter filters hydrated candidates. Optional.
	Admitter Admitter
}

// Fetcher is the candidate retrieval stage.
type Fetcher struct {
	client   tracker.Client
	teams    TeamResolver
	project  string
	cfg      config.FetcherConfig
	admitter Admitter
}

// New builds a Fetcher, clamping hydration knobs to tracker limits.
func New(opts Options) *Fetcher {
	cfg := opts.Config
	if cfg.HydrateBatchSize <= 0 || cfg.HydrateBatchSize > tracker.MaxBatchSize {
		cfg.HydrateBatchSize = tracker.MaxBatchSize
	}
	if cfg.HydrateParallelism <= 0 {
		cfg.HydrateParallelism = 1
	}
	resolver := opts.Teams
	if resolver == nil {
		resolver = teams.New(nil)
	}
	return &Fetcher{
		client:   opts.Client,
		teams:    resolver,
		project:  opts.Project,
		cfg:      cfg,
		admitter: opts.Admitter,
	}
}

// Fetch returns the seed followed by deduplicated candidates, earlier slices
// first and tracker newest-first order kept within a slice.
//
// A request deadline on ctx degrades rather than fails: expiry between
// slices stops further slicing, and ids already collected are still
// hydrated on a detached context so the partial pipeline can rank them.
// Explicit cancellation aborts outright.
func (f *Fetcher) Fetch(ctx context.Context, seed workitem.WorkItem, teamNames, types []string, strategy Strategy) ([]workitem.WorkItem, error) {
	areas := f.teams.Resolve(teamNames)
	if len(areas) == 0 {
		slog.Warn("no verified area paths resolved, returning seed only", "teams", teamNames)
		return []workitem.WorkItem{seed}, nil
	}
	if len(types) == 0 {
		types = f.cfg.AllowedTypes
	}

	phraseLen := phrase.MaxWords
	var phrases []string
	switch strategy {
	case StrategyLaser:
		if strings.TrimSpace(seed.Title) == "" {
			slog.Warn("seed has no title to match on, returning seed only", "seed", seed.ID)
			return []workitem.WorkItem{seed}, nil
		}
	default:
		phrases = phrase.Extract(seed.Title, phraseLen)
		if len(phrases) == 0 {
			slog.Warn("no searchable phrases in seed title, returning seed only", "seed", seed.ID)
			return []workitem.WorkItem{seed}, nil
		}
	}

	windows := f.timeSlices(strategy)
	seen := map[int]bool{seed.ID: true}
	var ids []int

	for i, w := range windows {
		if i > 0 {
			if err := pause(ctx, f.cfg.SliceSpacing); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				slog.Debug("request deadline reached, skipping remaining slices", "done", i, "total", len(windows))
				break
			}
		}

		spec := f.sliceSpec(seed, areas, types, phrases, strategy, w, i == 0)
		sliceIDs, err := f.client.QueryWorkItemIDs(ctx, tracker.Query{WIQL: buildWIQL(spec)})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("slice %d query: %w", i+1, err)
			}
			slog.Warn("candidate slice query failed", "slice", i+1, "from", w.From.Format(wiqlDate), "error", err)
			continue
		}

		// A dry first slice usually means trigrams are too specific for
		// this corpus; drop to bigrams and keep them for later slices.
		if strategy == StrategyBalanced && i == 0 && len(sliceIDs) == 0 && phraseLen > phrase.MinWords {
			if retry := phrase.Extract(seed.Title, phrase.MinWords); len(retry) > 0 && !slices.Equal(retry, phrases) {
				phrases = retry
				spec = f.sliceSpec(seed, areas, types, phrases, strategy, w, true)
				sliceIDs, err = f.client.QueryWorkItemIDs(ctx, tracker.Query{WIQL: buildWIQL(spec)})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil, fmt.Errorf("slice %d retry query: %w", i+1, err)
					}
					slog.Warn("candidate slice retry failed", "slice", i+1, "error", err)
					continue
				}
			}
		}

		for _, id := range sliceIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}

		if strategy == StrategyBalanced && len(ids) > f.cfg.BalancedResultCap {
			slog.Debug("balanced result cap passed, stopping slices", "unique", len(ids), "cap", f.cfg.BalancedResultCap, "slices_run", i+1)
			break
		}
	}

	items, err := f.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}
	items = f.admit(ctx, seed, items)

	out := make([]workitem.WorkItem, 0, len(items)+1)
	out = append(out, seed)
	out = append(out, items...)

	slog.Debug("candidate fetch complete",
		"strategy", string(strategy),
		"areas", len(areas),
		"unique_ids", len(ids),
		"returned", len(out),
	)
	return out, nil
}

// sliceSpec binds one window to the shared query parameters.
func (f *Fetcher) sliceSpec(seed workitem.WorkItem, areas, types, phrases []string, strategy Strategy, w window, newest bool) querySpec {
	spec := querySpec{
		Project:     f.project,
		SeedID:      seed.ID,
		Types:       types,
		Areas:       areas,
		From:        w.From,
		To:          w.To,
		InclusiveTo: newest,
	}
	if strategy == StrategyLaser {
		spec.SeedTitle = strings.TrimSpace(seed.Title)
	} else {
		spec.Phrases = phrases
		spec.MatchDescription = true
	}
	return spec
}

// window is one creation-date slice, [From, To).
type window struct {
	From time.Time
	To   time.Time
}

// timeSlices partitions the strategy's search span newest-first. Windows are
// contiguous: each window's From is the next window's To, so day-precision
// query bounds neither overlap nor leave gaps.
func (f *Fetcher) timeSlices(strategy Strategy) []window {
	count, months := f.cfg.BalancedSliceCount, f.cfg.BalancedSliceMonths
	if strategy == StrategyLaser {
		count, months = f.cfg.LaserSliceCount, f.cfg.LaserSliceMonths
	}

	windows := make([]window, 0, count)
	to := timeNow().UTC()
	for i := 0; i < count; i++ {
		from := to.AddDate(0, -months, 0)
		windows = append(windows, window{From: from, To: to})
		to = from
	}
	return windows
}

// hydrate fetches full work items for ids, preserving id order. Batches run
// in parallel bounded by HydrateParallelism; a failed batch is logged and
// its items are absent from the result, matching per-slice degradation.
func (f *Fetcher) hydrate(ctx context.Context, ids []int) ([]workitem.WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// Ids collected before a deadline expiry still get hydrated so the
	// partial pipeline has something to rank. Hard cancellation aborts.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ctx = context.WithoutCancel(ctx)
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	batches := chunk(ids, f.cfg.HydrateBatchSize)
	results := make([][]workitem.WorkItem, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.HydrateParallelism)
	for i, batch := range batches {
		g.Go(func() error {
			items, err := f.client.GetWorkItemsBatch(gctx, batch)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				slog.Warn("hydration batch failed", "batch", i+1, "size", len(batch), "error", err)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hydrate candidates: %w", err)
	}

	byID := make(map[int]workitem.WorkItem, len(ids))
	for _, items := range results {
		for _, item := range items {
			byID[item.ID] = item
		}
	}

	out := make([]workitem.WorkItem, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// admit drops candidates the policy engine denies. Policy errors admit the
// candidate; admission is a guardrail, not a gate on availability.
func (f *Fetcher) admit(ctx context.Context, seed workitem.WorkItem, items []workitem.WorkItem) []workitem.WorkItem {
	if f.admitter == nil || len(items) == 0 {
		return items
	}

	kept := items[:0]
	denied := 0
	for _, item := range items {
		ok, warnings, err := f.admitter.Admit(ctx, seed, item)
		if err != nil {
			slog.Warn("candidate admission check failed, admitting", "candidate", item.ID, "error", err)
			kept = append(kept, item)
			continue
		}
		for _, w := range warnings {
			slog.Warn("candidate admission warning", "candidate", item.ID, "warning", w)
		}
		if !ok {
			denied++
			slog.Debug("candidate denied by policy", "candidate", item.ID)
			continue
		}
		kept = append(kept, item)
	}
	if denied > 0 {
		slog.Debug("candidates denied by policy", "denied", denied, "kept", len(kept))
	}
	return kept
}

// chunk splits ids into runs of at most size.
func chunk(ids []int, size int) [][]int {
	var out [][]int
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// pause waits d between slice queries, honoring ctx.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
