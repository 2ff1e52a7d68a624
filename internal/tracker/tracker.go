// Package tracker talks to the work item tracker. The Client interface is
// the seam the fetcher and engine depend on; RESTClient implements it against
// an Azure-DevOps-compatible REST surface and MemoryClient backs tests and
// offline demos.
package tracker

import (
	"context"
	"errors"

	"github.com/seedwise/kindred/internal/workitem"
)

// MaxBatchSize is the tracker-imposed ceiling on ids per batch read.
const MaxBatchSize = 200

// ErrNotFound reports that a requested work item does not exist.
var ErrNotFound = errors.New("work item not found")

// Query is an opaque structured query. The fetcher builds the WIQL text; the
// tracker only transports it.
type Query struct {
	WIQL string
}

// Team is a team known to the tracker.
type Team struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Client is the tracker surface the relatedness pipeline needs.
type Client interface {
	// GetWorkItem fetches one item. Missing ids yield ErrNotFound.
	GetWorkItem(ctx context.Context, id int) (workitem.WorkItem, error)

	// GetWorkItemsBatch hydrates up to MaxBatchSize items. Ids the tracker
	// no longer knows are silently absent from the result.
	GetWorkItemsBatch(ctx context.Context, ids []int) ([]workitem.WorkItem, error)

	// QueryWorkItemIDs runs a structured query and returns matching ids in
	// tracker order.
	QueryWorkItemIDs(ctx context.Context, q Query) ([]int, error)

	// GetTeams lists the teams of the configured project.
	GetTeams(ctx context.Context) ([]Team, error)
}
