package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"github.com/seedwise/kindred/internal/embedding"
	"github.com/seedwise/kindred/internal/fetcher"
	"github.com/seedwise/kindred/internal/tracker"
	"github.com/seedwise/kindred/internal/vecindex"
	"github.com/seedwise/kindred/internal/workitem"
	"github.com/seedwise/kindred/types"
)

// stubFetcher returns a fixed candidate list behind the seed.
type stubFetcher struct {
	items []workitem.WorkItem
	err   error
}

func (s *stubFetcher) Fetch(ctx context.Context, seed workitem.WorkItem, teams, typs []string, strategy fetcher.Strategy) ([]workitem.WorkItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]workitem.WorkItem{seed}, s.items...), nil
}

// scriptedEmbedder hands out vectors positionally across calls, deriving
// content-hash vectors once the script runs dry. failFromCall fails every
// call from that number on (1-based), standing in for provider timeouts.
type scriptedEmbedder struct {
	vectors      [][]float64
	failFromCall int

	calls int
	next  int
}

func (s *scriptedEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	s.calls++
	if s.failFromCall > 0 && s.calls >= s.failFromCall {
		return nil, errors.New("provider deadline exceeded")
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if s.next < len(s.vectors) {
			out[i] = s.vectors[s.next]
		} else {
			out[i] = hashVec64(text)
		}
		s.next++
	}
	return out, nil
}

func hashVec64(text string) []float64 {
	v := embedding.HashVector(text, 32)
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func newBatcher(provider einoembedding.Embedder, allowFallback bool) *embedding.Batcher {
	return embedding.NewBatcher(provider, nil, embedding.BatchConfig{
		Size:              25,
		Deadline:          time.Second,
		AllowHashFallback: allowFallback,
		Model:             "test-model",
	})
}

func newTestEngine(t *testing.T, seed workitem.WorkItem, candidates []workitem.WorkItem, emb Embedder, store *vecindex.Store) *Engine {
	t.Helper()
	return New(Options{
		Client:   tracker.NewMemoryClient([]workitem.WorkItem{seed}, nil),
		Fetcher:  &stubFetcher{items: candidates},
		Embedder: emb,
		Store:    store,
	})
}

func testSeed() workitem.WorkItem {
	return workitem.WorkItem{
		ID:           9001,
		Title:        "[DEV] Fix login button accessibility for keyboard users",
		Description:  "Focus order skips the login button when navigating with tab.",
		WorkItemType: "Bug",
		State:        "Active",
		AreaPath:     `Proj\Identity\SignIn`,
		Tags:         "accessibility; keyboard",
	}
}

// onAngle builds a unit vector whose dot product with (1, 0) is exactly base.
func onAngle(base float64) []float64 {
	return []float64{base, math.Sqrt(1 - base*base)}
}

func TestAnalyze_NearDuplicateFastPath(t *testing.T) {
	seed := testSeed()
	dup := seed
	dup.ID = 101

	// A nil provider forces hash vectors; identical text means an identical
	// vector, so the duplicate lands at base 1.0.
	eng := newTestEngine(t, seed, []workitem.WorkItem{dup}, newBatcher(nil, true), nil)

	report, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(report.Ranked) != 1 {
		t.Fatalf("Ranked = %d results, want 1", len(report.Ranked))
	}
	top := report.Ranked[0]
	if top.WorkItemID != 101 || top.Score != 1.0 || top.Rank != 1 {
		t.Errorf("top = {id %d, score %v, rank %d}, want {101, 1.0, 1}", top.WorkItemID, top.Score, top.Rank)
	}
	if !top.ExactTitle {
		t.Error("near-duplicate should take the exact-title fast path")
	}
	if report.Diagnostics.CandidateCount != 1 {
		t.Errorf("CandidateCount = %d, want 1", report.Diagnostics.CandidateCount)
	}
	if got := report.Diagnostics.Threshold; math.Abs(got-0.70) > 1e-9 {
		t.Errorf("Threshold = %v, want the configured default 0.70", got)
	}
	if len(report.Diagnostics.EmbeddingFallbackIDs) != 2 {
		t.Errorf("EmbeddingFallbackIDs = %v, want seed and candidate", report.Diagnostics.EmbeddingFallbackIDs)
	}
}

func TestAnalyze_SeedIndexedFirst(t *testing.T) {
	seed := testSeed()
	other := testSeed()
	other.ID = 101
	other.Title = "Unrelated dashboard widget refresh loop"

	eng := newTestEngine(t, seed, []workitem.WorkItem{other}, newBatcher(nil, true), nil)
	if _, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	ids := eng.index.IDs()
	if len(ids) == 0 || ids[0] != seed.ID {
		t.Errorf("index ids = %v, want seed %d first", ids, seed.ID)
	}
}

func TestAnalyze_ThresholdAdaptsToTightCluster(t *testing.T) {
	seed := testSeed()

	titles := []string{
		"Quarterly roadmap planning notes",
		"Dashboard theme colors wrong",
		"Profile avatar upload fails",
		"Search results pagination broken",
		"Notification digest sent twice",
	}
	bases := []float64{0.82, 0.81, 0.80, 0.79, 0.78}

	candidates := make([]workitem.WorkItem, len(titles))
	vectors := [][]float64{{1, 0}} // seed
	for i, title := range titles {
		candidates[i] = workitem.WorkItem{
			ID:           200 + i,
			Title:        title,
			WorkItemType: "Feature",
			State:        "Closed",
			AreaPath:     `Other\Zone`,
		}
		vectors = append(vectors, onAngle(bases[i]))
	}

	eng := newTestEngine(t, seed, candidates, newBatcher(&scriptedEmbedder{vectors: vectors}, true), nil)
	report, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	// sigma ~0.014 puts the floor at mean+0.05 = 0.85; the best base 0.82
	// cannot clear it, so the floor relaxes to 0.82-0.05.
	if got := report.Diagnostics.Threshold; math.Abs(got-0.77) > 1e-4 {
		t.Errorf("Threshold = %v, want 0.77", got)
	}
	if len(report.Ranked) != 5 {
		t.Fatalf("Ranked = %d results, want all 5", len(report.Ranked))
	}
	for i, want := range []int{200, 201, 202, 203, 204} {
		got := report.Ranked[i]
		if got.WorkItemID != want {
			t.Errorf("rank %d = id %d, want %d", i+1, got.WorkItemID, want)
		}
		if got.Rank != i+1 {
			t.Errorf("rank field = %d, want %d", got.Rank, i+1)
		}
		if math.Abs(got.Score-(bases[i]+0.002)) > 1e-4 {
			t.Errorf("id %d score = %v, want base %v plus settled-state boost", got.WorkItemID, got.Score, bases[i])
		}
	}
}

func TestAnalyze_ThresholdDropsWeakCandidates(t *testing.T) {
	seed := testSeed()
	strong := workitem.WorkItem{ID: 201, Title: "Payments ledger export slow", WorkItemType: "Feature", State: "Closed"}
	weak := workitem.WorkItem{ID: 202, Title: "Office chairs replacement order", WorkItemType: "Feature", State: "Closed"}

	emb := &scriptedEmbedder{vectors: [][]float64{{1, 0}, onAngle(0.9), onAngle(0.3)}}
	eng := newTestEngine(t, seed, []workitem.WorkItem{strong, weak}, newBatcher(emb, true), nil)

	report, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(report.Ranked) != 1 || report.Ranked[0].WorkItemID != 201 {
		t.Fatalf("Ranked = %+v, want only id 201", report.Ranked)
	}
	if got := report.Diagnostics.Threshold; math.Abs(got-0.60) > 1e-9 {
		t.Errorf("Threshold = %v, want the 0.60 floor", got)
	}
}

func TestAnalyze_EmbeddingBatchFallback(t *testing.T) {
	seed := testSeed()

	candidates := make([]workitem.WorkItem, 0, 30)
	dup := seed
	dup.ID = 101
	candidates = append(candidates, dup)
	for i := 2; i <= 30; i++ {
		candidates = append(candidates, workitem.WorkItem{
			ID:           100 + i,
			Title:        fmt.Sprintf("Telemetry export widget number %d misbehaving", i),
			WorkItemType: "Task",
			State:        "Closed",
		})
	}

	// Call one serves the first 25 texts, call two dies; its six texts
	// degrade to hash vectors.
	emb := &scriptedEmbedder{failFromCall: 2}
	eng := newTestEngine(t, seed, candidates, newBatcher(emb, true), nil)

	report, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	fallback := report.Diagnostics.EmbeddingFallbackIDs
	if len(fallback) != 6 {
		t.Fatalf("EmbeddingFallbackIDs = %v, want the 6 items of the failed batch", fallback)
	}
	for _, id := range fallback {
		if id < 125 || id > 130 {
			t.Errorf("fallback id %d outside the second batch", id)
		}
	}
	if len(report.Ranked) == 0 || report.Ranked[0].WorkItemID != 101 || report.Ranked[0].Score != 1.0 {
		t.Errorf("Ranked = %+v, want the near-duplicate first despite the failed batch", report.Ranked)
	}
}

func TestAnalyze_EmbeddingUnavailable(t *testing.T) {
	seed := testSeed()
	eng := newTestEngine(t, seed, nil, newBatcher(nil, false), nil)

	_, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if !types.IsKind(err, types.ErrKindEmbeddingUnavailable) {
		t.Fatalf("Analyze() error = %v, want kind embedding_unavailable", err)
	}
}

func TestAnalyze_SeedNotFound(t *testing.T) {
	eng := New(Options{
		Client:   tracker.NewMemoryClient(nil, nil),
		Fetcher:  &stubFetcher{},
		Embedder: newBatcher(nil, true),
	})

	_, err := eng.Analyze(context.Background(), Request{SeedID: 404})
	if !types.IsKind(err, types.ErrKindNotFound) {
		t.Fatalf("Analyze() error = %v, want kind not_found", err)
	}
}

func TestAnalyze_TrackerUnavailable(t *testing.T) {
	client := tracker.NewMemoryClient(nil, nil)
	client.Err = errors.New("connection refused")
	eng := New(Options{Client: client, Fetcher: &stubFetcher{}, Embedder: newBatcher(nil, true)})

	_, err := eng.Analyze(context.Background(), Request{SeedID: 1})
	if !types.IsKind(err, types.ErrKindTrackerUnavailable) {
		t.Fatalf("Analyze() error = %v, want kind tracker_unavailable", err)
	}
}

func TestAnalyze_CancelledFetchAborts(t *testing.T) {
	seed := testSeed()
	eng := New(Options{
		Client:   tracker.NewMemoryClient([]workitem.WorkItem{seed}, nil),
		Fetcher:  &stubFetcher{err: context.Canceled},
		Embedder: newBatcher(nil, true),
	})

	_, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if !types.IsKind(err, types.ErrKindTimeout) {
		t.Fatalf("Analyze() error = %v, want kind timeout", err)
	}
}

func TestAnalyze_SeedOnlyReturnsEmpty(t *testing.T) {
	seed := testSeed()
	eng := newTestEngine(t, seed, nil, newBatcher(nil, true), nil)

	report, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(report.Ranked) != 0 {
		t.Errorf("Ranked = %+v, want empty for a seed-only corpus", report.Ranked)
	}
	if report.Diagnostics.CandidateCount != 0 {
		t.Errorf("CandidateCount = %d, want 0", report.Diagnostics.CandidateCount)
	}
}

func TestAnalyze_SeedWithoutTextReturnsEmpty(t *testing.T) {
	seed := workitem.WorkItem{ID: 7, Title: "abc"}
	eng := newTestEngine(t, seed, nil, newBatcher(nil, true), nil)

	report, err := eng.Analyze(context.Background(), Request{SeedID: 7})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(report.Ranked) != 0 {
		t.Errorf("Ranked = %+v, want empty", report.Ranked)
	}
	if len(report.Diagnostics.Notes) == 0 {
		t.Error("expected a diagnostic note about the unusable seed text")
	}
}

func TestAnalyze_PersistsAndClearsIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := vecindex.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	seed := testSeed()
	dup := seed
	dup.ID = 101
	eng := newTestEngine(t, seed, []workitem.WorkItem{dup}, newBatcher(nil, true), store)

	if _, err := eng.Analyze(context.Background(), Request{SeedID: seed.ID}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got := eng.Stats().Count; got != 2 {
		t.Errorf("Stats().Count = %d, want 2", got)
	}

	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("persisted index has %d records, want 2", reloaded.Len())
	}

	removed, err := eng.ClearIndex()
	if err != nil {
		t.Fatalf("ClearIndex() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("ClearIndex() = %d, want 2", removed)
	}
	empty, err := store.Load()
	if err != nil {
		t.Fatalf("Load() after clear error = %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("index after clear has %d records, want 0", empty.Len())
	}
}

func TestLoadIndex_RestoresPersistedState(t *testing.T) {
	dir := t.TempDir()
	store, err := vecindex.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	seed := testSeed()
	dup := seed
	dup.ID = 101
	first := newTestEngine(t, seed, []workitem.WorkItem{dup}, newBatcher(nil, true), store)
	if _, err := first.Analyze(context.Background(), Request{SeedID: seed.ID}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	second := newTestEngine(t, seed, nil, newBatcher(nil, true), store)
	if err := second.LoadIndex(); err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	if got := second.Stats().Count; got != 2 {
		t.Errorf("Stats().Count after LoadIndex = %d, want 2", got)
	}
}
