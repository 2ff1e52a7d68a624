package relationships

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/seedwise/kindred/internal/workitem"
)

// mockChatModel implements model.BaseChatModel for testing.
type mockChatModel struct {
	response    *schema.Message
	err         error
	prompts     []string
	hadDeadline bool
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	_, m.hadDeadline = ctx.Deadline()
	for _, msg := range input {
		m.prompts = append(m.prompts, msg.Content)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil // Infer only uses Generate
}

func newMockInferrer(mock *mockChatModel, factoryErr error) *Inferrer {
	inf := NewInferrer(Config{Provider: ProviderOpenAI, APIKey: "test"})
	inf.chatModelFactory = func(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return mock, nil
	}
	return inf
}

func inferSeed() workitem.WorkItem {
	return workitem.WorkItem{
		ID:           500,
		Title:        "Checkout fails when cart holds more than 50 items",
		Description:  "POST /checkout returns 500 for oversized carts.",
		WorkItemType: "Bug",
		State:        "Active",
	}
}

func inferNeighbors() []workitem.WorkItem {
	return []workitem.WorkItem{
		{ID: 501, Title: "Checkout errors out on large carts", WorkItemType: "Bug", State: "New"},
		{ID: 502, Title: "Split cart validation into its own service call", WorkItemType: "Task", State: "Active"},
		{ID: 503, Title: "Improve cart page load time", WorkItemType: "User Story", State: "Closed"},
	}
}

func TestInfer_TypedEdges(t *testing.T) {
	mock := &mockChatModel{
		response: &schema.Message{
			Role: schema.Assistant,
			Content: "```json\n" + `[
				{"work_item_id": 501, "kind": "duplicate", "confidence": "High", "reason": "Same failing endpoint"},
				{"work_item_id": 502, "kind": "parent/child", "confidence": "medium", "reason": "Breakdown of the fix"}
			]` + "\n```",
		},
	}
	inf := newMockInferrer(mock, nil)

	edges, note := inf.Infer(context.Background(), inferSeed(), inferNeighbors(), time.Second)
	if note != "" {
		t.Fatalf("Infer() note = %q, want empty", note)
	}
	if len(edges) != 3 {
		t.Fatalf("Infer() returned %d edges, want 3", len(edges))
	}

	if edges[0].Kind != KindDuplicate || !edges[0].Inferred {
		t.Errorf("edge[0] = %+v, want inferred %s", edges[0], KindDuplicate)
	}
	if edges[0].Confidence != "high" {
		t.Errorf("edge[0].Confidence = %q, want normalized %q", edges[0].Confidence, "high")
	}
	if edges[1].Kind != KindParentChild || !edges[1].Inferred {
		t.Errorf("edge[1] = %+v, want inferred %s", edges[1], KindParentChild)
	}
	// 503 was skipped by the model and falls back to the default kind.
	if edges[2].WorkItemID != 503 || edges[2].Kind != KindRelated || edges[2].Inferred {
		t.Errorf("edge[2] = %+v, want default %s for 503", edges[2], KindRelated)
	}
	for i, e := range edges {
		if e.SeedID != 500 {
			t.Errorf("edge[%d].SeedID = %d, want 500", i, e.SeedID)
		}
	}
	if !mock.hadDeadline {
		t.Error("Infer() did not apply the deadline to the model call")
	}
}

func TestInfer_PromptCarriesSeedAndCandidates(t *testing.T) {
	mock := &mockChatModel{
		response: &schema.Message{Role: schema.Assistant, Content: "[]"},
	}
	inf := newMockInferrer(mock, nil)

	if _, note := inf.Infer(context.Background(), inferSeed(), inferNeighbors(), 0); note != "" {
		t.Fatalf("Infer() note = %q, want empty", note)
	}
	if len(mock.prompts) != 1 {
		t.Fatalf("model saw %d messages, want 1", len(mock.prompts))
	}
	prompt := mock.prompts[0]
	for _, want := range []string{"id=500", "Checkout fails when cart holds more than 50 items", "id=501", "id=502", "id=503"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestInfer_IgnoresInventedIDs(t *testing.T) {
	mock := &mockChatModel{
		response: &schema.Message{
			Role:    schema.Assistant,
			Content: `[{"work_item_id": 501, "kind": "affects"}, {"work_item_id": 999, "kind": "blocks"}]`,
		},
	}
	inf := newMockInferrer(mock, nil)

	edges, note := inf.Infer(context.Background(), inferSeed(), inferNeighbors()[:1], 0)
	if note != "" {
		t.Fatalf("Infer() note = %q, want empty", note)
	}
	if len(edges) != 1 {
		t.Fatalf("Infer() returned %d edges, want 1", len(edges))
	}
	if edges[0].WorkItemID != 501 || edges[0].Kind != KindAffects {
		t.Errorf("edge = %+v, want 501 %s", edges[0], KindAffects)
	}
}

func TestInfer_ModelErrorDegrades(t *testing.T) {
	mock := &mockChatModel{err: errors.New("rate limited")}
	inf := newMockInferrer(mock, nil)

	edges, note := inf.Infer(context.Background(), inferSeed(), inferNeighbors(), 0)
	if !strings.Contains(note, "llm generate") {
		t.Fatalf("Infer() note = %q, want generate failure", note)
	}
	if len(edges) != 3 {
		t.Fatalf("Infer() returned %d edges, want 3", len(edges))
	}
	for i, e := range edges {
		if e.Kind != KindRelated || e.Inferred {
			t.Errorf("edge[%d] = %+v, want fallback %s", i, e, KindRelated)
		}
	}
}

func TestInfer_FactoryErrorDegrades(t *testing.T) {
	inf := newMockInferrer(nil, errors.New("no api key"))

	edges, note := inf.Infer(context.Background(), inferSeed(), inferNeighbors(), 0)
	if !strings.Contains(note, "create model") {
		t.Fatalf("Infer() note = %q, want factory failure", note)
	}
	if len(edges) != 3 {
		t.Fatalf("Infer() returned %d edges, want 3", len(edges))
	}
}

func TestInfer_UnparseableResponseDegrades(t *testing.T) {
	mock := &mockChatModel{
		response: &schema.Message{Role: schema.Assistant, Content: "They all look related to me."},
	}
	inf := newMockInferrer(mock, nil)

	edges, note := inf.Infer(context.Background(), inferSeed(), inferNeighbors(), 0)
	if !strings.Contains(note, "parse response") {
		t.Fatalf("Infer() note = %q, want parse failure", note)
	}
	if len(edges) != 3 {
		t.Fatalf("Infer() returned %d edges, want 3", len(edges))
	}
	if edges[0].Kind != KindRelated {
		t.Errorf("edge[0].Kind = %q, want %s", edges[0].Kind, KindRelated)
	}
}

func TestInfer_NoNeighbors(t *testing.T) {
	inf := newMockInferrer(nil, errors.New("must not be called"))

	edges, note := inf.Infer(context.Background(), inferSeed(), nil, 0)
	if edges != nil || note != "" {
		t.Errorf("Infer() = (%v, %q), want (nil, empty)", edges, note)
	}
}

func TestInfer_CapsPairsPerCall(t *testing.T) {
	neighbors := make([]workitem.WorkItem, 0, MaxPairsPerCall+5)
	for i := 0; i < MaxPairsPerCall+5; i++ {
		neighbors = append(neighbors, workitem.WorkItem{ID: 600 + i, Title: "filler"})
	}
	mock := &mockChatModel{
		response: &schema.Message{Role: schema.Assistant, Content: "[]"},
	}
	inf := newMockInferrer(mock, nil)

	edges, _ := inf.Infer(context.Background(), inferSeed(), neighbors, 0)
	if len(edges) != MaxPairsPerCall {
		t.Fatalf("Infer() returned %d edges, want %d", len(edges), MaxPairsPerCall)
	}
}

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"duplicate", KindDuplicate},
		{"DUP", KindDuplicate},
		{"parent-child", KindParentChild},
		{"Parent/Child", KindParentChild},
		{"subtask", KindParentChild},
		{"affects", KindAffects},
		{"blocks", KindBlocks},
		{" blocking ", KindBlocks},
		{"related", KindRelated},
		{"supersedes", KindRelated},
		{"", KindRelated},
	}
	for _, tt := range tests {
		if got := normalizeKind(tt.in); got != tt.want {
			t.Errorf("normalizeKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateProvider(t *testing.T) {
	for _, p := range []string{"openai", "anthropic", "gemini", "ollama"} {
		if _, err := ValidateProvider(p); err != nil {
			t.Errorf("ValidateProvider(%q) error = %v", p, err)
		}
	}
	if _, err := ValidateProvider("bedrock"); err == nil {
		t.Error("ValidateProvider(\"bedrock\") expected error, got nil")
	}
}

func TestDefaultModelForProvider(t *testing.T) {
	if got := DefaultModelForProvider(ProviderOpenAI); got != DefaultOpenAIChatModel {
		t.Errorf("DefaultModelForProvider(openai) = %q, want %q", got, DefaultOpenAIChatModel)
	}
	if got := DefaultModelForProvider("nope"); got != "" {
		t.Errorf("DefaultModelForProvider(nope) = %q, want empty", got)
	}
}
