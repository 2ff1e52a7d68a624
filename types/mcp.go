package types

// MCP tool parameter and response DTOs. These stay flat and JSON-friendly so
// the MCP SDK can derive schemas from them; they deliberately do not reference
// internal domain types.

// FindRelatedParams are the arguments for the find-related tool.
type FindRelatedParams struct {
	SeedID   int    `json:"seedId" jsonschema:"the work item id to find related items for"`
	Strategy string `json:"strategy,omitempty" jsonschema:"retrieval strategy: balanced or laser (default balanced)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum ranked results to return (default 20)"`
}

// RelatedItemSummary is one ranked result in MCP responses.
type RelatedItemSummary struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Type     string   `json:"type,omitempty"`
	State    string   `json:"state,omitempty"`
	AreaPath string   `json:"areaPath,omitempty"`
	Score    float64  `json:"score"`
	Rank     int      `json:"rank"`
	Hints    []string `json:"hints,omitempty"`
}

// FindRelatedResponse is the result payload of the find-related tool.
type FindRelatedResponse struct {
	SeedID      int                  `json:"seedId"`
	SeedTitle   string               `json:"seedTitle"`
	Strategy    string               `json:"strategy"`
	Results     []RelatedItemSummary `json:"results"`
	Count       int                  `json:"count"`
	Partial     bool                 `json:"partial,omitempty"`
	Diagnostics map[string]any       `json:"diagnostics,omitempty"`
}

// IndexStatsParams has no arguments; present for schema symmetry.
type IndexStatsParams struct{}

// IndexStatsResponse reports the persisted index state.
type IndexStatsResponse struct {
	Count       int    `json:"count"`
	Dimension   int    `json:"dimension"`
	MemoryBytes int64  `json:"memoryBytes"`
	Path        string `json:"path"`
}

// ClearIndexParams are the arguments for the clear-index tool.
type ClearIndexParams struct {
	Force bool `json:"force,omitempty" jsonschema:"set true to skip the non-empty index guard"`
}

// ClearIndexResponse reports what the clear removed.
type ClearIndexResponse struct {
	Cleared bool `json:"cleared"`
	Removed int  `json:"removed"`
}
