package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/seedwise/kindred/internal/workitem"
)

// MemoryClient is an in-memory Client for tests and offline demos. Query
// evaluation is delegated to QueryHandler since WIQL text is opaque here;
// the default handler returns every stored id.
type MemoryClient struct {
	mu    sync.Mutex
	items map[int]workitem.WorkItem
	teams []Team

	// QueryHandler decides what a structured query matches.
	QueryHandler func(q Query) ([]int, error)

	// Err, when set, fails every call. Simulates an unreachable tracker.
	Err error

	queries []Query
	batches [][]int
}

// NewMemoryClient seeds a client with items and teams.
func NewMemoryClient(items []workitem.WorkItem, teams []Team) *MemoryClient {
	m := &MemoryClient{
		items: make(map[int]workitem.WorkItem, len(items)),
		teams: teams,
	}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

// Put inserts or replaces an item.
func (m *MemoryClient) Put(item workitem.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// GetWorkItem implements Client.
func (m *MemoryClient) GetWorkItem(ctx context.Context, id int) (workitem.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return workitem.WorkItem{}, m.Err
	}
	item, ok := m.items[id]
	if !ok {
		return workitem.WorkItem{}, fmt.Errorf("work item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

// GetWorkItemsBatch implements Client. Unknown ids are omitted, matching the
// REST adapter's errorPolicy.
func (m *MemoryClient) GetWorkItemsBatch(ctx context.Context, ids []int) ([]workitem.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds tracker limit %d", len(ids), MaxBatchSize)
	}

	m.batches = append(m.batches, append([]int(nil), ids...))

	items := make([]workitem.WorkItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// QueryWorkItemIDs implements Client.
func (m *MemoryClient) QueryWorkItemIDs(ctx context.Context, q Query) ([]int, error) {
	m.mu.Lock()
	handler := m.QueryHandler
	if m.Err != nil {
		m.mu.Unlock()
		return nil, m.Err
	}
	m.queries = append(m.queries, q)
	m.mu.Unlock()

	if handler != nil {
		return handler(q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	return ids, nil
}

// GetTeams implements Client.
func (m *MemoryClient) GetTeams(ctx context.Context) ([]Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return append([]Team(nil), m.teams...), nil
}

// Queries returns the structured queries seen so far.
func (m *MemoryClient) Queries() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.queries...)
}

// BatchCalls returns the id batches hydrated so far.
func (m *MemoryClient) BatchCalls() [][]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]int, len(m.batches))
	for i, b := range m.batches {
		out[i] = append([]int(nil), b...)
	}
	return out
}

var _ Client = (*MemoryClient)(nil)
