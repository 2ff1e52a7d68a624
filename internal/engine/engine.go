// Package engine drives a relatedness request end to end: seed lookup,
// candidate retrieval, normalization, embedding, neighbor search, feature
// rescoring, and adaptive thresholding. The engine owns the embedding index
// for the requests it serves; everything else is a collaborator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/embedding"
	"github.com/seedwise/kindred/internal/fetcher"
	"github.com/seedwise/kindred/internal/textnorm"
	"github.com/seedwise/kindred/internal/tracker"
	"github.com/seedwise/kindred/internal/vecindex"
	"github.com/seedwise/kindred/internal/workitem"
	"github.com/seedwise/kindred/types"
)

// CandidateFetcher retrieves the candidate corpus for a seed, seed first.
// *fetcher.Fetcher is the production implementation.
type CandidateFetcher interface {
	Fetch(ctx context.Context, seed workitem.WorkItem, teams, types []string, strategy fetcher.Strategy) ([]workitem.WorkItem, error)
}

// Embedder turns texts into vectors, one Result per text in input order.
// *embedding.Batcher is the production implementation.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([]embedding.Result, error)
}

// Options wires an Engine.
type Options struct {
	Client   tracker.Client
	Fetcher  CandidateFetcher
	Embedder Embedder

	// Store persists the index after each rebuild. Nil keeps the index
	// memory-only.
	Store *vecindex.Store

	Config config.EngineConfig

	// Normalizer tunes canonical-text production. The zero value means
	// textnorm.DefaultOptions.
	Normalizer textnorm.Options
}

// Request selects the seed and scopes retrieval.
type Request struct {
	SeedID   int
	Strategy fetcher.Strategy // empty means balanced

	// Teams restricts retrieval to these team names. Empty means every
	// verified team.
	Teams []string

	// Types restricts candidate work item types. Empty means the fetcher's
	// allowed set.
	Types []string

	// Limit caps the ranked results. Zero means the configured top-k.
	Limit int
}

// Result is one ranked related work item.
type Result struct {
	WorkItemID int     `json:"work_item_id"`
	Score      float64 `json:"score"`
	BaseScore  float64 `json:"base_score"`
	Rank       int     `json:"rank"`

	// ExactTitle marks results promoted by the near-identical-title fast
	// path; their score is pinned to 1.0.
	ExactTitle bool `json:"exact_title,omitempty"`

	Item  workitem.WorkItem `json:"item"`
	Hints []string          `json:"hints,omitempty"`
}

// Diagnostics records what the pipeline did for one request, including every
// degradation it absorbed.
type Diagnostics struct {
	RequestID      string `json:"request_id"`
	Strategy       string `json:"strategy"`
	CandidateCount int    `json:"candidate_count"`
	EmbeddedCount  int    `json:"embedded_count"`

	// SkippedIDs are items that produced no canonical text.
	SkippedIDs []int `json:"skipped_ids,omitempty"`

	// EmbeddingFallbackIDs are items served by hash vectors after their
	// provider batch failed or timed out.
	EmbeddingFallbackIDs []int `json:"embedding_fallback_ids,omitempty"`

	CacheHits      int     `json:"cache_hits,omitempty"`
	DroppedVectors int     `json:"dropped_vectors,omitempty"`
	Threshold      float64 `json:"threshold"`

	// Partial means the request deadline expired mid-pipeline and the
	// ranked list was built from whatever had been collected by then.
	Partial bool `json:"partial,omitempty"`

	Notes      []string `json:"notes,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// Report is the outcome of one Analyze call.
type Report struct {
	Seed        workitem.WorkItem `json:"seed"`
	Ranked      []Result          `json:"ranked"`
	Diagnostics Diagnostics       `json:"diagnostics"`
}

// Engine hosts one embedding index and rebuilds it per request. Analyze
// calls are serialized so the index never sees two writers.
type Engine struct {
	client   tracker.Client
	fetcher  CandidateFetcher
	embedder Embedder
	store    *vecindex.Store
	cfg      config.EngineConfig
	norm     textnorm.Options

	mu    sync.Mutex
	index *vecindex.Index

	newRequestID func() string
}

// New builds an Engine, filling config gaps from the defaults.
func New(opts Options) *Engine {
	cfg := opts.Config
	def := config.DefaultEngineConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = def.DefaultThreshold
	}
	if cfg.MinThreshold <= 0 {
		cfg.MinThreshold = def.MinThreshold
	}
	if cfg.MaxThreshold <= 0 || cfg.MaxThreshold > 1 {
		cfg.MaxThreshold = def.MaxThreshold
	}

	norm := opts.Normalizer
	if norm == (textnorm.Options{}) {
		norm = textnorm.DefaultOptions()
	}

	return &Engine{
		client:       opts.Client,
		fetcher:      opts.Fetcher,
		embedder:     opts.Embedder,
		store:        opts.Store,
		cfg:          cfg,
		norm:         norm,
		index:        vecindex.New(0),
		newRequestID: func() string { return uuid.New().String() },
	}
}

// Analyze runs the full pipeline for one seed and returns the ranked related
// items with diagnostics. Degradations (slice failures, embedding fallbacks,
// deadline expiry mid-run) shrink the result and are reported in diagnostics;
// only the terminal conditions in types.ErrorKind surface as errors.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if req.Strategy == "" {
		req.Strategy = fetcher.StrategyBalanced
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.TopK
	}

	diag := Diagnostics{
		RequestID: e.newRequestID(),
		Strategy:  string(req.Strategy),
	}

	// 1. Seed lookup.
	seed, err := e.client.GetWorkItem(ctx, req.SeedID)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			return nil, types.NewCoreError(types.ErrKindNotFound, "engine.analyze", err).
				WithDetail("seed_id", req.SeedID)
		}
		if isContextErr(err) {
			return nil, types.NewCoreError(types.ErrKindTimeout, "engine.analyze", err)
		}
		return nil, types.NewCoreError(types.ErrKindTrackerUnavailable, "engine.analyze", err)
	}

	// 2. Candidate retrieval. The fetcher absorbs per-slice failures and
	// deadline expiry; a hard error means cancellation or a tracker that
	// never answered.
	items, err := e.fetcher.Fetch(ctx, seed, req.Teams, req.Types, req.Strategy)
	if err != nil {
		if isContextErr(err) {
			return nil, types.NewCoreError(types.ErrKindTimeout, "engine.analyze", err)
		}
		return nil, types.NewCoreError(types.ErrKindTrackerUnavailable, "engine.analyze", err)
	}
	diag.CandidateCount = len(items) - 1

	// 3. Normalization. Items with no usable text are excluded from
	// embedding; parallel slices keep items and texts aligned.
	embedItems := make([]workitem.WorkItem, 0, len(items))
	texts := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := textnorm.Canonical(item, e.norm)
		if !ok {
			diag.SkippedIDs = append(diag.SkippedIDs, item.ID)
			continue
		}
		embedItems = append(embedItems, item)
		texts = append(texts, text)
	}
	if len(embedItems) == 0 || embedItems[0].ID != seed.ID {
		diag.Notes = append(diag.Notes, "seed produced no canonical text")
		return e.finish(seed, nil, diag, start), nil
	}

	// 4. Embedding. The batcher consults the cache, degrades failed batches
	// to hash vectors, and only errors when nothing could be produced.
	results, err := e.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, types.NewCoreError(types.ErrKindEmbeddingUnavailable, "engine.analyze", err)
	}

	entries := make([]vecindex.Entry, 0, len(results))
	for i, res := range results {
		if !res.OK {
			diag.SkippedIDs = append(diag.SkippedIDs, embedItems[i].ID)
			continue
		}
		if res.Fallback {
			diag.EmbeddingFallbackIDs = append(diag.EmbeddingFallbackIDs, embedItems[i].ID)
		}
		if res.Cached {
			diag.CacheHits++
		}
		entries = append(entries, vecindex.Entry{
			Item:     embedItems[i],
			Vector:   res.Vector,
			Model:    res.Model,
			Fallback: res.Fallback,
		})
	}

	// 5. Index rebuild. The corpus is request-scoped: clear, repopulate in
	// fetch order so the seed lands at position 0, then persist.
	e.index.Clear()
	up := e.index.Upsert(entries)
	diag.EmbeddedCount = up.Inserted
	diag.DroppedVectors += up.Skipped
	if e.store != nil {
		if err := e.store.Save(e.index); err != nil {
			return nil, types.NewCoreError(types.ErrKindInternal, "engine.analyze",
				fmt.Errorf("persist index: %w", err))
		}
	}

	// 6. Neighbor search. The scan is CPU-only; once the request deadline
	// has expired it runs detached so collected candidates still rank.
	seedVec, ok := e.index.Vector(seed.ID)
	if !ok {
		diag.Notes = append(diag.Notes, "seed embedding unavailable")
		return e.finish(seed, nil, diag, start), nil
	}
	searchCtx := ctx
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		diag.Partial = true
		searchCtx = context.WithoutCancel(ctx)
	}
	hits, err := e.index.Search(searchCtx, seedVec, limit*2+1)
	if errors.Is(err, context.DeadlineExceeded) {
		diag.Partial = true
		hits, err = e.index.Search(context.WithoutCancel(ctx), seedVec, limit*2+1)
	}
	if err != nil {
		return nil, types.NewCoreError(types.ErrKindTimeout, "engine.analyze", err)
	}

	neighbors := make([]vecindex.Hit, 0, len(hits))
	for _, h := range hits {
		if h.WorkItemID == seed.ID {
			continue
		}
		neighbors = append(neighbors, h)
	}
	if len(neighbors) > limit*2 {
		neighbors = neighbors[:limit*2]
	}

	// 7-9. Rescore, threshold, rank.
	ranked, threshold := e.rank(seed, neighbors, limit)
	diag.Threshold = threshold

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		diag.Partial = true
	}
	if diag.Partial && len(ranked) == 0 {
		return nil, types.NewCoreError(types.ErrKindTimeout, "engine.analyze", ctx.Err()).
			WithDetail("request_id", diag.RequestID)
	}

	report := e.finish(seed, ranked, diag, start)
	slog.Debug("relatedness analysis complete",
		"request_id", diag.RequestID,
		"seed", seed.ID,
		"strategy", diag.Strategy,
		"candidates", diag.CandidateCount,
		"ranked", len(ranked),
		"partial", diag.Partial,
		"duration_ms", report.Diagnostics.DurationMS)
	return report, nil
}

// finish stamps the duration and assembles the report. A nil ranked list
// still reports the threshold the empty candidate set would have used.
func (e *Engine) finish(seed workitem.WorkItem, ranked []Result, diag Diagnostics, start time.Time) *Report {
	if diag.Threshold == 0 {
		diag.Threshold = adaptiveThreshold(nil, e.cfg)
	}
	diag.DurationMS = time.Since(start).Milliseconds()
	return &Report{Seed: seed, Ranked: ranked, Diagnostics: diag}
}

// Stats reports the hosted index shape.
func (e *Engine) Stats() vecindex.Stats {
	return e.index.Stats()
}

// IndexDir returns the persistence directory, empty when memory-only.
func (e *Engine) IndexDir() string {
	if e.store == nil {
		return ""
	}
	return e.store.Dir()
}

// ClearIndex drops every vector, in memory and on disk, and reports how many
// records were removed.
func (e *Engine) ClearIndex() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.index.Clear()
	if e.store != nil {
		if err := e.store.Clear(); err != nil {
			return n, types.NewCoreError(types.ErrKindInternal, "engine.clear_index", err)
		}
	}
	return n, nil
}

// LoadIndex restores the persisted index, replacing the in-memory one. A
// missing index is not an error; corrupt files surface as IndexCorrupt so
// callers can offer a clear.
func (e *Engine) LoadIndex() error {
	if e.store == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.store.Load()
	if err != nil {
		if errors.Is(err, vecindex.ErrCorrupt) {
			return types.NewCoreError(types.ErrKindIndexCorrupt, "engine.load_index", err).
				WithDetail("dir", e.store.Dir())
		}
		return types.NewCoreError(types.ErrKindInternal, "engine.load_index", err)
	}
	if idx != nil {
		e.index = idx
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
