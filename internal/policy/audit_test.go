package policy

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *AuditStore {
	t.Helper()

	store, err := OpenAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenAuditStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAuditStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)

	decision := &PolicyDecision{
		PolicyPath:  DefaultPolicyPackage,
		Result:      PolicyResultDeny,
		Violations:  []string{"candidate 42 is tagged do-not-link"},
		Input:       map[string]any{"candidate": map[string]any{"id": 42}},
		SeedID:      7,
		CandidateID: 42,
		RequestID:   "req-abc",
	}
	if err := store.SaveDecision(decision); err != nil {
		t.Fatalf("SaveDecision() error = %v", err)
	}
	if decision.DecisionID == "" {
		t.Fatal("SaveDecision() should assign a DecisionID")
	}
	if decision.EvaluatedAt.IsZero() {
		t.Fatal("SaveDecision() should assign EvaluatedAt")
	}

	got, err := store.GetDecision(decision.DecisionID)
	if err != nil {
		t.Fatalf("GetDecision() error = %v", err)
	}
	if got.Result != PolicyResultDeny {
		t.Errorf("Result = %q, want deny", got.Result)
	}
	if len(got.Violations) != 1 || got.Violations[0] != decision.Violations[0] {
		t.Errorf("Violations = %v", got.Violations)
	}
	if got.SeedID != 7 || got.CandidateID != 42 || got.RequestID != "req-abc" {
		t.Errorf("identifiers = seed %d candidate %d request %q", got.SeedID, got.CandidateID, got.RequestID)
	}
}

func TestAuditStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetDecision("no-such-id"); err == nil {
		t.Error("GetDecision(missing) should fail")
	}
}

func TestAuditStore_ListDecisions(t *testing.T) {
	store := openTestStore(t)

	seed := []struct {
		seedID    int
		requestID string
		result    string
	}{
		{7, "req-1", PolicyResultAllow},
		{7, "req-1", PolicyResultDeny},
		{8, "req-2", PolicyResultDeny},
	}
	for i, s := range seed {
		err := store.SaveDecision(&PolicyDecision{
			PolicyPath:  DefaultPolicyPackage,
			Result:      s.result,
			SeedID:      s.seedID,
			CandidateID: 100 + i,
			RequestID:   s.requestID,
		})
		if err != nil {
			t.Fatalf("SaveDecision() error = %v", err)
		}
	}

	tests := []struct {
		name string
		opts ListDecisionsOptions
		want int
	}{
		{"all", ListDecisionsOptions{}, 3},
		{"by seed", ListDecisionsOptions{SeedID: 7}, 2},
		{"by request", ListDecisionsOptions{RequestID: "req-2"}, 1},
		{"by result", ListDecisionsOptions{Result: PolicyResultDeny}, 2},
		{"seed and result", ListDecisionsOptions{SeedID: 7, Result: PolicyResultDeny}, 1},
		{"limit", ListDecisionsOptions{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListDecisions(tt.opts)
			if err != nil {
				t.Fatalf("ListDecisions() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListDecisions() = %d decisions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestAuditStore_CountDenials(t *testing.T) {
	store := openTestStore(t)

	for _, result := range []string{PolicyResultDeny, PolicyResultDeny, PolicyResultAllow} {
		if err := store.SaveDecision(&PolicyDecision{PolicyPath: "p", Result: result}); err != nil {
			t.Fatalf("SaveDecision() error = %v", err)
		}
	}

	count, err := store.CountDenials(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountDenials() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountDenials() = %d, want 2", count)
	}

	count, err = store.CountDenials(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountDenials() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountDenials(future) = %d, want 0", count)
	}
}

func TestAuditStore_PruneOldDecisions(t *testing.T) {
	store := openTestStore(t)

	old := &PolicyDecision{
		PolicyPath:  "p",
		Result:      PolicyResultDeny,
		EvaluatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	fresh := &PolicyDecision{PolicyPath: "p", Result: PolicyResultAllow}
	if err := store.SaveDecision(old); err != nil {
		t.Fatalf("SaveDecision() error = %v", err)
	}
	if err := store.SaveDecision(fresh); err != nil {
		t.Fatalf("SaveDecision() error = %v", err)
	}

	pruned, err := store.PruneOldDecisions(24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneOldDecisions() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("PruneOldDecisions() = %d, want 1", pruned)
	}

	remaining, err := store.ListDecisions(ListDecisionsOptions{})
	if err != nil {
		t.Fatalf("ListDecisions() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].DecisionID != fresh.DecisionID {
		t.Errorf("remaining = %+v, want only the fresh decision", remaining)
	}
}
