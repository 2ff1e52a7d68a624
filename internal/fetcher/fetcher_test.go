package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/teams"
	"github.com/seedwise/kindred/internal/tracker"
	"github.com/seedwise/kindred/internal/workitem"
)

func stubNow(t *testing.T, fixed time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = orig })
}

func testConfig() config.FetcherConfig {
	cfg := config.DefaultFetcherConfig()
	cfg.SliceSpacing = 0
	cfg.HydrateParallelism = 1
	return cfg
}

func testTeams() *teams.Map {
	return teams.New([]teams.Entry{
		{Team: "Payments", AreaPath: `Proj\Payments`, Verified: true},
		{Team: "Checkout", AreaPath: `Proj\Checkout`, Verified: true},
		{Team: "Sandbox", AreaPath: `Proj\Sandbox`},
	})
}

func testSeed() workitem.WorkItem {
	return workitem.WorkItem{
		ID:           9001,
		Title:        "Fix login button accessibility",
		WorkItemType: "Bug",
		AreaPath:     `Proj\Payments`,
	}
}

// itemsForIDs seeds one synthetic work item per id.
func itemsForIDs(ids ...int) []workitem.WorkItem {
	items := make([]workitem.WorkItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, workitem.WorkItem{
			ID:           id,
			Title:        fmt.Sprintf("candidate %d", id),
			WorkItemType: "Bug",
		})
	}
	return items
}

func idRange(from, count int) []int {
	ids := make([]int, count)
	for i := range ids {
		ids[i] = from + i
	}
	return ids
}

func resultIDs(items []workitem.WorkItem) []int {
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "", want: StrategyBalanced},
		{in: "balanced", want: StrategyBalanced},
		{in: " Laser ", want: StrategyLaser},
		{in: "LASER", want: StrategyLaser},
		{in: "wide", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStrategy(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestTimeSlices(t *testing.T) {
	fixed := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	stubNow(t, fixed)
	f := New(Options{Config: testConfig()})

	tests := []struct {
		name     string
		strategy Strategy
		count    int
		months   int
	}{
		{name: "balanced 8x3 over 24 months", strategy: StrategyBalanced, count: 8, months: 24},
		{name: "laser 6x6 over 36 months", strategy: StrategyLaser, count: 6, months: 36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := f.timeSlices(tt.strategy)
			if len(ws) != tt.count {
				t.Fatalf("slice count = %d, want %d", len(ws), tt.count)
			}
			if !ws[0].To.Equal(fixed) {
				t.Errorf("newest window ends at %v, want %v", ws[0].To, fixed)
			}
			for i := 1; i < len(ws); i++ {
				if !ws[i].To.Equal(ws[i-1].From) {
					t.Errorf("window %d not contiguous: To=%v prev From=%v", i, ws[i].To, ws[i-1].From)
				}
			}
			oldest := fixed.AddDate(0, -tt.months, 0)
			if !ws[len(ws)-1].From.Equal(oldest) {
				t.Errorf("oldest window starts %v, want %v", ws[len(ws)-1].From, oldest)
			}
		})
	}
}

func TestBuildWIQL(t *testing.T) {
	from := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	t.Run("balanced phrase query", func(t *testing.T) {
		got := buildWIQL(querySpec{
			Project:          "Proj",
			SeedID:           9001,
			Types:            []string{"Bug", "User Story"},
			Areas:            []string{`Proj\Payments`, `Proj\Checkout`},
			From:             from,
			To:               to,
			InclusiveTo:      true,
			Phrases:          []string{"fix login", "login button"},
			MatchDescription: true,
		})

		for _, want := range []string{
			"SELECT [System.Id] FROM WorkItems WHERE ",
			"[System.TeamProject] = 'Proj'",
			"[System.Id] <> 9001",
			"[System.State] <> 'Removed'",
			"[System.WorkItemType] IN ('Bug', 'User Story')",
			`([System.AreaPath] UNDER 'Proj\Payments' OR [System.AreaPath] UNDER 'Proj\Checkout')`,
			"[System.CreatedDate] >= '2026-05-15'",
			"[System.CreatedDate] <= '2026-08-15'",
			"[System.Title] CONTAINS 'fix login'",
			"[System.Description] CONTAINS 'fix login'",
			"[System.Title] CONTAINS 'login button'",
			"ORDER BY [System.CreatedDate] DESC",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("query missing %q\nfull: %s", want, got)
			}
		}
	})

	t.Run("laser full title, exclusive upper bound", func(t *testing.T) {
		got := buildWIQL(querySpec{
			Project:   "Proj",
			SeedID:    7,
			Types:     []string{"Bug"},
			Areas:     []string{`Proj\Payments`},
			From:      from,
			To:        to,
			SeedTitle: "payment worker can't retry",
		})

		if !strings.Contains(got, "[System.Title] CONTAINS 'payment worker can''t retry'") {
			t.Errorf("laser query should escape and contain full title: %s", got)
		}
		if strings.Contains(got, "System.Description") {
			t.Errorf("laser query should not match description: %s", got)
		}
		if !strings.Contains(got, "[System.CreatedDate] < '2026-08-15'") {
			t.Errorf("older slice should use exclusive upper bound: %s", got)
		}
	})
}

func TestFetch_DedupAndOrderAcrossSlices(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	mc := tracker.NewMemoryClient(itemsForIDs(11, 12, 13, 14), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		switch call {
		case 1:
			return []int{12, 11, seed.ID}, nil // seed id must be skipped
		case 2:
			return []int{13, 12, 14}, nil // 12 already seen
		default:
			return nil, nil
		}
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	got, err := f.Fetch(context.Background(), seed, []string{"Payments"}, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := []int{seed.ID, 12, 11, 13, 14}
	if gotIDs := resultIDs(got); !equalInts(gotIDs, want) {
		t.Errorf("Fetch() ids = %v, want %v", gotIDs, want)
	}
	if len(mc.Queries()) != 8 {
		t.Errorf("queries = %d, want 8 balanced slices", len(mc.Queries()))
	}
}

func TestFetch_BalancedShortCircuit(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	slice1 := idRange(1000, 120)
	slice2 := idRange(2000, 150)
	slice3 := idRange(3000, 95)

	var all []int
	all = append(all, slice1...)
	all = append(all, slice2...)
	all = append(all, slice3...)

	mc := tracker.NewMemoryClient(itemsForIDs(all...), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		switch call {
		case 1:
			return slice1, nil
		case 2:
			return slice2, nil
		case 3:
			return slice3, nil
		default:
			t.Errorf("slice %d should not run after short-circuit", call)
			return nil, nil
		}
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	got, err := f.Fetch(context.Background(), seed, []string{"Payments"}, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(mc.Queries()) != 3 {
		t.Errorf("queries = %d, want 3 (short-circuit past 350)", len(mc.Queries()))
	}
	if len(got) != 1+365 {
		t.Errorf("results = %d, want seed + 365 candidates", len(got))
	}

	batches := mc.BatchCalls()
	if len(batches) != 2 || len(batches[0]) != 200 || len(batches[1]) != 165 {
		sizes := make([]int, len(batches))
		for i, b := range batches {
			sizes[i] = len(b)
		}
		t.Errorf("hydration batch sizes = %v, want [200 165]", sizes)
	}
}

func TestFetch_LaserRunsAllSlices(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	big := idRange(5000, 400)
	mc := tracker.NewMemoryClient(itemsForIDs(big...), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		if call == 1 {
			return big, nil
		}
		return nil, nil
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	got, err := f.Fetch(context.Background(), seed, nil, nil, StrategyLaser)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(mc.Queries()) != 6 {
		t.Errorf("queries = %d, want all 6 laser slices despite volume", len(mc.Queries()))
	}
	if len(got) != 1+400 {
		t.Errorf("results = %d, want seed + 400", len(got))
	}
	for _, q := range mc.Queries() {
		if !strings.Contains(q.WIQL, "[System.Title] CONTAINS 'Fix login button accessibility'") {
			t.Errorf("laser query should match full title: %s", q.WIQL)
		}
	}
}

func TestFetch_SliceErrorContinues(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	mc := tracker.NewMemoryClient(itemsForIDs(21, 22), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		switch call {
		case 1:
			return []int{21}, nil
		case 2:
			return nil, errors.New("tracker 503")
		case 3:
			return []int{22}, nil
		default:
			return nil, nil
		}
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	got, err := f.Fetch(context.Background(), seed, nil, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := []int{seed.ID, 21, 22}
	if gotIDs := resultIDs(got); !equalInts(gotIDs, want) {
		t.Errorf("Fetch() ids = %v, want %v", gotIDs, want)
	}
	if len(mc.Queries()) != 8 {
		t.Errorf("queries = %d, want 8 (failed slice does not stop the rest)", len(mc.Queries()))
	}
}

func TestFetch_BigramRetryOnEmptyFirstSlice(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed() // trigrams: "fix login button", "login button accessibility"

	mc := tracker.NewMemoryClient(itemsForIDs(31), nil)
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		if strings.Contains(q.WIQL, "fix login button") {
			return nil, nil // trigram pass finds nothing
		}
		return []int{31}, nil
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	got, err := f.Fetch(context.Background(), seed, nil, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	queries := mc.Queries()
	// Slice 1 runs twice (trigram then bigram retry); slices 2-8 once.
	if len(queries) != 9 {
		t.Fatalf("queries = %d, want 9", len(queries))
	}
	if !strings.Contains(queries[1].WIQL, "'fix login'") {
		t.Errorf("retry should use bigrams: %s", queries[1].WIQL)
	}
	for i, q := range queries[1:] {
		if strings.Contains(q.WIQL, "fix login button") {
			t.Errorf("query %d should reuse bigrams after retry: %s", i+1, q.WIQL)
		}
	}
	if gotIDs := resultIDs(got); !equalInts(gotIDs, []int{seed.ID, 31}) {
		t.Errorf("Fetch() ids = %v", gotIDs)
	}
}

func TestFetch_SeedOnlyFallbacks(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		seed     workitem.WorkItem
		teams    []string
		strategy Strategy
	}{
		{
			name:     "no verified teams",
			seed:     testSeed(),
			teams:    []string{"Sandbox", "Ghost"},
			strategy: StrategyBalanced,
		},
		{
			name:     "no searchable phrases",
			seed:     workitem.WorkItem{ID: 42, Title: "Bug"},
			teams:    []string{"Payments"},
			strategy: StrategyBalanced,
		},
		{
			name:     "laser without title",
			seed:     workitem.WorkItem{ID: 43, Title: "   "},
			teams:    []string{"Payments"},
			strategy: StrategyLaser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := tracker.NewMemoryClient(nil, nil)
			f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})

			got, err := f.Fetch(context.Background(), tt.seed, tt.teams, nil, tt.strategy)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != tt.seed.ID {
				t.Errorf("Fetch() = %v, want seed only", resultIDs(got))
			}
			if len(mc.Queries()) != 0 {
				t.Errorf("no queries should run, got %d", len(mc.Queries()))
			}
		})
	}
}

func TestFetch_HydrationDropsUnknownIDs(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	// 52 is returned by the query but no longer exists in the tracker.
	mc := tracker.NewMemoryClient(itemsForIDs(51, 53), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		if call == 1 {
			return []int{51, 52, 53}, nil
		}
		return nil, nil
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	got, err := f.Fetch(context.Background(), seed, nil, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotIDs := resultIDs(got); !equalInts(gotIDs, []int{seed.ID, 51, 53}) {
		t.Errorf("Fetch() ids = %v, want [%d 51 53]", gotIDs, seed.ID)
	}
}

type stubAdmitter struct {
	deny map[int]bool
	err  error
}

func (a stubAdmitter) Admit(ctx context.Context, seed, candidate workitem.WorkItem) (bool, []string, error) {
	if a.err != nil {
		return false, nil, a.err
	}
	return !a.deny[candidate.ID], nil, nil
}

func TestFetch_AdmitterFiltersCandidates(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	mc := tracker.NewMemoryClient(itemsForIDs(61, 62, 63), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		if call == 1 {
			return []int{61, 62, 63}, nil
		}
		return nil, nil
	}

	f := New(Options{
		Client:   mc,
		Teams:    testTeams(),
		Project:  "Proj",
		Config:   testConfig(),
		Admitter: stubAdmitter{deny: map[int]bool{62: true}},
	})
	got, err := f.Fetch(context.Background(), seed, nil, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotIDs := resultIDs(got); !equalInts(gotIDs, []int{seed.ID, 61, 63}) {
		t.Errorf("Fetch() ids = %v, want seed, 61, 63", gotIDs)
	}
}

func TestFetch_AdmitterErrorAdmits(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	mc := tracker.NewMemoryClient(itemsForIDs(71), nil)
	call := 0
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		call++
		if call == 1 {
			return []int{71}, nil
		}
		return nil, nil
	}

	f := New(Options{
		Client:   mc,
		Teams:    testTeams(),
		Project:  "Proj",
		Config:   testConfig(),
		Admitter: stubAdmitter{err: errors.New("rego compile failed")},
	})
	got, err := f.Fetch(context.Background(), seed, nil, nil, StrategyBalanced)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotIDs := resultIDs(got); !equalInts(gotIDs, []int{seed.ID, 71}) {
		t.Errorf("policy errors must fail open, got %v", gotIDs)
	}
}

func TestFetch_CancelledContextAborts(t *testing.T) {
	stubNow(t, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	seed := testSeed()

	ctx, cancel := context.WithCancel(context.Background())
	mc := tracker.NewMemoryClient(nil, nil)
	mc.QueryHandler = func(q tracker.Query) ([]int, error) {
		cancel()
		return nil, ctx.Err()
	}

	f := New(Options{Client: mc, Teams: testTeams(), Project: "Proj", Config: testConfig()})
	if _, err := f.Fetch(ctx, seed, nil, nil, StrategyBalanced); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n    int
		size int
		want []int // chunk lengths
	}{
		{n: 0, size: 200, want: nil},
		{n: 5, size: 200, want: []int{5}},
		{n: 200, size: 200, want: []int{200}},
		{n: 365, size: 200, want: []int{200, 165}},
		{n: 401, size: 200, want: []int{200, 200, 1}},
	}
	for _, tt := range tests {
		got := chunk(idRange(1, tt.n), tt.size)
		sizes := make([]int, len(got))
		for i, c := range got {
			sizes[i] = len(c)
		}
		if !equalInts(sizes, tt.want) {
			t.Errorf("chunk(%d, %d) sizes = %v, want %v", tt.n, tt.size, sizes, tt.want)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
