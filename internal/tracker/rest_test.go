package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seedwise/kindred/internal/workitem"
)

func newTestClient(t *testing.T, handler http.Handler) (*RESTClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewRESTClient(RESTConfig{
		BaseURL: srv.URL,
		Project: "Proj",
		Token:   "secret-pat",
	})
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}
	return c, srv
}

func TestRESTClient_GetWorkItem(t *testing.T) {
	var sawAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		if !strings.HasPrefix(r.URL.Path, "/Proj/_apis/wit/workitems/42") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 42,
			"fields": map[string]any{
				"System.Title":                   "Login times out",
				"System.Description":             "<div>after 30s</div>",
				"System.WorkItemType":            "Bug",
				"System.State":                   "Active",
				"System.AreaPath":                `Proj\Identity`,
				"System.Tags":                    "auth; login",
				"System.AssignedTo":              map[string]any{"displayName": "Sam Doe"},
				"Microsoft.VSTS.Common.Priority": float64(2),
				"System.CreatedDate":             "2026-03-01T10:00:00Z",
			},
		})
	}))

	item, err := c.GetWorkItem(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetWorkItem() error = %v", err)
	}

	if item.ID != 42 || item.Title != "Login times out" {
		t.Errorf("item = %+v, want id 42 with title", item)
	}
	if item.WorkItemType != "Bug" || item.Priority != 2 {
		t.Errorf("type/priority = %s/%d, want Bug/2", item.WorkItemType, item.Priority)
	}
	if item.AssignedTo != "Sam Doe" {
		t.Errorf("AssignedTo = %q, want identity displayName", item.AssignedTo)
	}
	if item.CreatedDate.IsZero() {
		t.Error("CreatedDate should parse")
	}
	if !strings.HasPrefix(sawAuth, "Basic ") {
		t.Errorf("Authorization = %q, want basic PAT auth", sawAuth)
	}
}

func TestRESTClient_GetWorkItem_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"TF401232: Work item does not exist"}`, http.StatusNotFound)
	}))

	_, err := c.GetWorkItem(context.Background(), 99999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWorkItem() error = %v, want ErrNotFound", err)
	}
}

func TestRESTClient_GetWorkItemsBatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query().Get("ids")
		if ids != "1,2,3" {
			t.Errorf("ids param = %q, want 1,2,3", ids)
		}
		// Tracker omits id 3 (deleted), matching errorPolicy=omit.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count": 2,
			"value": []map[string]any{
				{"id": 1, "fields": map[string]any{"System.Title": "one"}},
				{"id": 2, "fields": map[string]any{"System.Title": "two"}},
			},
		})
	}))

	items, err := c.GetWorkItemsBatch(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("GetWorkItemsBatch() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != 1 || items[1].ID != 2 {
		t.Errorf("items = %+v, want ids 1,2 in order", items)
	}
}

func TestRESTClient_GetWorkItemsBatch_RejectsOversize(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	ids := make([]int, MaxBatchSize+1)
	for i := range ids {
		ids[i] = i + 1
	}
	if _, err := c.GetWorkItemsBatch(context.Background(), ids); err == nil {
		t.Errorf("batch of %d should be rejected", len(ids))
	}
}

func TestRESTClient_QueryWorkItemIDs(t *testing.T) {
	var gotWIQL string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/wit/wiql") {
			http.NotFound(w, r)
			return
		}
		var req wiqlRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotWIQL = req.Query
		_ = json.NewEncoder(w).Encode(map[string]any{
			"workItems": []map[string]int{{"id": 7}, {"id": 3}, {"id": 12}},
		})
	}))

	wiql := "SELECT [System.Id] FROM WorkItems WHERE [System.Title] CONTAINS 'login'"
	ids, err := c.QueryWorkItemIDs(context.Background(), Query{WIQL: wiql})
	if err != nil {
		t.Fatalf("QueryWorkItemIDs() error = %v", err)
	}
	if gotWIQL != wiql {
		t.Errorf("posted WIQL = %q, want passthrough", gotWIQL)
	}
	if len(ids) != 3 || ids[0] != 7 || ids[1] != 3 || ids[2] != 12 {
		t.Errorf("ids = %v, want tracker order [7 3 12]", ids)
	}
}

func TestRESTClient_GetTeams(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/_apis/projects/Proj/teams") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{
				{"id": "t1", "name": "Payments"},
				{"id": "t2", "name": "Identity"},
			},
		})
	}))

	teams, err := c.GetTeams(context.Background())
	if err != nil {
		t.Fatalf("GetTeams() error = %v", err)
	}
	if len(teams) != 2 || teams[0].Name != "Payments" {
		t.Errorf("teams = %+v", teams)
	}
}

func TestRESTClient_AuthFailureSurfaces(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "access denied", http.StatusUnauthorized)
	}))

	if _, err := c.QueryWorkItemIDs(context.Background(), Query{WIQL: "SELECT"}); err == nil {
		t.Error("401 should surface as an error")
	}
}

func TestNewRESTClient_Validation(t *testing.T) {
	if _, err := NewRESTClient(RESTConfig{Project: "P"}); err == nil {
		t.Error("missing base URL should be rejected")
	}
	if _, err := NewRESTClient(RESTConfig{BaseURL: "http://x"}); err == nil {
		t.Error("missing project should be rejected")
	}
}

func TestMemoryClient_Basics(t *testing.T) {
	m := NewMemoryClient(nil, nil)
	m.Put(workitem.WorkItem{ID: 1, Title: "one"})
	m.Put(workitem.WorkItem{ID: 2, Title: "two"})

	ctx := context.Background()

	got, err := m.GetWorkItem(ctx, 1)
	if err != nil || got.Title != "one" {
		t.Errorf("GetWorkItem(1) = %+v, %v", got, err)
	}
	if _, err := m.GetWorkItem(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWorkItem(404) error = %v, want ErrNotFound", err)
	}

	items, err := m.GetWorkItemsBatch(ctx, []int{2, 404, 1})
	if err != nil {
		t.Fatalf("GetWorkItemsBatch() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("batch returned %d items, want 2 (unknown omitted)", len(items))
	}
	if calls := m.BatchCalls(); len(calls) != 1 || len(calls[0]) != 3 {
		t.Errorf("BatchCalls() = %v", calls)
	}
}
