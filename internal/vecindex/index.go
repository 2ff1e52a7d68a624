// Package vecindex implements the embedding index: an in-memory inner-product
// index over unit vectors, keyed by work item id, with locked two-file
// persistence (vectors.bin + metadata.json) underneath.
package vecindex

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/seedwise/kindred/internal/workitem"
)

// SourceInfo records where a stored vector came from.
type SourceInfo struct {
	Model    string `json:"model"`
	Fallback bool   `json:"fallback"`
}

// Entry is one (work item, vector) pair offered for insertion.
type Entry struct {
	Item     workitem.WorkItem
	Vector   []float32
	Model    string
	Fallback bool
}

// Record is a stored entry plus bookkeeping.
type Record struct {
	Item       workitem.WorkItem
	Source     SourceInfo
	InsertedAt time.Time
}

// Hit is one search result.
type Hit struct {
	WorkItemID int
	Score      float64
}

// UpsertReport counts what an Upsert batch did.
type UpsertReport struct {
	Inserted int
	Replaced int
	Skipped  int
}

// Stats summarizes index shape for diagnostics.
type Stats struct {
	Count       int       `json:"count"`
	Dimension   int       `json:"dimension"`
	MemoryBytes int64     `json:"memory_bytes"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Index holds unit vectors in insertion order. ids[i] owns vectors[i]; the
// two slices never diverge in length. Search is a brute-force scan, which
// stays comfortably fast for the few hundred vectors one request produces.
type Index struct {
	mu          sync.RWMutex
	dim         int
	ids         []int
	vectors     [][]float32
	slots       map[int]int // work item id -> position in ids/vectors
	records     map[int]Record
	lastUpdated time.Time
}

// New creates an empty index. dim 0 means the first inserted vector decides
// the dimension.
func New(dim int) *Index {
	return &Index{
		dim:     dim,
		slots:   make(map[int]int),
		records: make(map[int]Record),
	}
}

// Upsert inserts or replaces entries in order. Entries without a vector, and
// entries whose vector width disagrees with the index, are skipped and
// counted. Vectors are defensively re-normalized so downstream dot products
// stay valid cosines. Replacing an id keeps its original position.
func (x *Index) Upsert(entries []Entry) UpsertReport {
	x.mu.Lock()
	defer x.mu.Unlock()

	var report UpsertReport
	now := time.Now().UTC()

	for _, e := range entries {
		if len(e.Vector) == 0 {
			report.Skipped++
			continue
		}
		if x.dim == 0 {
			x.dim = len(e.Vector)
		}
		if len(e.Vector) != x.dim {
			report.Skipped++
			continue
		}

		v := normalize(append([]float32(nil), e.Vector...))
		rec := Record{
			Item:       e.Item,
			Source:     SourceInfo{Model: e.Model, Fallback: e.Fallback},
			InsertedAt: now,
		}

		if slot, ok := x.slots[e.Item.ID]; ok {
			x.vectors[slot] = v
			x.records[e.Item.ID] = rec
			report.Replaced++
		} else {
			x.slots[e.Item.ID] = len(x.ids)
			x.ids = append(x.ids, e.Item.ID)
			x.vectors = append(x.vectors, v)
			x.records[e.Item.ID] = rec
			report.Inserted++
		}
	}

	if report.Inserted+report.Replaced > 0 {
		x.lastUpdated = now
	}
	return report
}

// Search scans all vectors against the query and returns up to limit hits
// sorted by descending score. Ties keep insertion order. The query is
// normalized before scoring, so raw provider vectors are accepted.
func (x *Index) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.ids) == 0 || limit <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, nil
	}

	q := normalize(append([]float32(nil), query...))

	hits := make([]Hit, 0, len(x.ids))
	for i, id := range x.ids {
		if i%256 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		hits = append(hits, Hit{WorkItemID: id, Score: dot(q, x.vectors[i])})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Vector returns a copy of the stored vector for id.
func (x *Index) Vector(id int) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	slot, ok := x.slots[id]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), x.vectors[slot]...), true
}

// Get returns the stored record for id.
func (x *Index) Get(id int) (Record, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, ok := x.records[id]
	return rec, ok
}

// Has reports whether id is indexed.
func (x *Index) Has(id int) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, ok := x.slots[id]
	return ok
}

// IDs returns the indexed work item ids in insertion order.
func (x *Index) IDs() []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return append([]int(nil), x.ids...)
}

// Len reports the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return len(x.ids)
}

// Dimension reports the vector width, 0 while empty and unpinned.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.dim
}

// Clear drops every vector and record. The dimension unpins so the next
// corpus may use a different model.
func (x *Index) Clear() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := len(x.ids)
	x.dim = 0
	x.ids = nil
	x.vectors = nil
	x.slots = make(map[int]int)
	x.records = make(map[int]Record)
	x.lastUpdated = time.Now().UTC()
	return n
}

// Stats reports the index shape.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return Stats{
		Count:       len(x.ids),
		Dimension:   x.dim,
		MemoryBytes: int64(len(x.ids)) * int64(x.dim) * 4,
		LastUpdated: x.lastUpdated,
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
