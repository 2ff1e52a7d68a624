// Package relationships labels ranked neighbors with a typed relationship to
// the seed work item using a chat model. It is an optional post-pass: the
// ranking pipeline never depends on it, and any model failure degrades to
// plain "related" edges instead of an error.
package relationships

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/seedwise/kindred/internal/workitem"
)

// Relationship kinds an edge may carry.
const (
	KindDuplicate   = "duplicate"
	KindParentChild = "parent-child"
	KindRelated     = "related"
	KindAffects     = "affects"
	KindBlocks      = "blocks"
)

// MaxPairsPerCall caps how many neighbors are typed in a single model call.
const MaxPairsPerCall = 20

// descriptionSnippetLen bounds how much of each description enters the prompt.
const descriptionSnippetLen = 280

// Edge links the seed to one neighbor with a typed relationship.
type Edge struct {
	SeedID     int    `json:"seed_id"`
	WorkItemID int    `json:"work_item_id"`
	Kind       string `json:"kind"`
	Confidence string `json:"confidence,omitempty"`
	Reason     string `json:"reason,omitempty"`
	// Inferred is false when the edge came from the degradation path rather
	// than the model.
	Inferred bool `json:"inferred"`
}

// Inferrer types (seed, neighbor) pairs via a chat model.
type Inferrer struct {
	cfg Config

	chatModelFactory func(ctx context.Context, cfg Config) (model.BaseChatModel, error)
}

// NewInferrer creates an inferrer for the given chat-model configuration.
func NewInferrer(cfg Config) *Inferrer {
	return &Inferrer{
		cfg:              cfg,
		chatModelFactory: NewChatModel,
	}
}

// Infer labels each (seed, neighbor) pair with a relationship kind. It never
// fails: when the model is unreachable, times out, or returns something
// unparseable, every pair falls back to KindRelated and the returned note
// says why. A non-empty note always accompanies fallback edges.
func (inf *Inferrer) Infer(ctx context.Context, seed workitem.WorkItem, neighbors []workitem.WorkItem, deadline time.Duration) ([]Edge, string) {
	if len(neighbors) == 0 {
		return nil, ""
	}
	if len(neighbors) > MaxPairsPerCall {
		neighbors = neighbors[:MaxPairsPerCall]
	}

	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	chatModel, err := inf.chatModelFactory(ctx, inf.cfg)
	if err != nil {
		return fallbackEdges(seed, neighbors), fmt.Sprintf("create model: %v", err)
	}

	prompt := buildInferPrompt(seed, neighbors)
	messages := []*schema.Message{
		schema.UserMessage(prompt),
	}

	resp, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return fallbackEdges(seed, neighbors), fmt.Sprintf("llm generate: %v", err)
	}

	typed, err := parseInferResponse(resp.Content)
	if err != nil {
		return fallbackEdges(seed, neighbors), fmt.Sprintf("parse response: %v", err)
	}

	// The model answers by work item id. Pairs it skipped, and ids it
	// invented, both resolve against the input list: skipped pairs get the
	// default kind, invented ids are dropped.
	byID := make(map[int]Edge, len(typed))
	for _, e := range typed {
		byID[e.WorkItemID] = e
	}

	edges := make([]Edge, 0, len(neighbors))
	for _, n := range neighbors {
		if e, ok := byID[n.ID]; ok {
			e.SeedID = seed.ID
			e.Inferred = true
			edges = append(edges, e)
			continue
		}
		edges = append(edges, Edge{
			SeedID:     seed.ID,
			WorkItemID: n.ID,
			Kind:       KindRelated,
		})
	}
	return edges, ""
}

func buildInferPrompt(seed workitem.WorkItem, neighbors []workitem.WorkItem) string {
	var candidates strings.Builder
	for _, n := range neighbors {
		candidates.WriteString(fmt.Sprintf("- id=%d type=%q state=%q title=%q", n.ID, n.WorkItemType, n.State, n.Title))
		if s := snippet(n.Description, descriptionSnippetLen); s != "" {
			candidates.WriteString(fmt.Sprintf(" description=%q", s))
		}
		candidates.WriteString("\n")
	}

	return fmt.Sprintf(`You are a triage assistant labeling relationships between work items in an issue tracker.

SEED WORK ITEM:
id=%d type=%q state=%q title=%q
description: %s

CANDIDATE WORK ITEMS:
%s
TASK: For each candidate, classify its relationship to the seed as exactly one of:
- "duplicate": describes the same problem or request as the seed
- "parent-child": one item is a sub-task or breakdown of the other
- "affects": the candidate's change impacts the seed's area of behavior
- "blocks": the candidate must be resolved before the seed can progress
- "related": connected but none of the above

RESPOND IN JSON, one entry per candidate:
[
  {
    "work_item_id": 123,
    "kind": "duplicate|parent-child|affects|blocks|related",
    "confidence": "high|medium|low",
    "reason": "One sentence citing the overlap"
  }
]

Respond with the JSON array only:`, seed.ID, seed.WorkItemType, seed.State, seed.Title, snippet(seed.Description, descriptionSnippetLen), candidates.String())
}

func parseInferResponse(response string) ([]Edge, error) {
	// Clean response
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var parsed []struct {
		WorkItemID int    `json:"work_item_id"`
		Kind       string `json:"kind"`
		Confidence string `json:"confidence"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, err
	}

	edges := make([]Edge, 0, len(parsed))
	for _, p := range parsed {
		if p.WorkItemID == 0 {
			continue
		}
		edges = append(edges, Edge{
			WorkItemID: p.WorkItemID,
			Kind:       normalizeKind(p.Kind),
			Confidence: strings.ToLower(strings.TrimSpace(p.Confidence)),
			Reason:     strings.TrimSpace(p.Reason),
		})
	}
	return edges, nil
}

// normalizeKind maps model output onto the closed kind set. Anything
// unrecognized becomes KindRelated.
func normalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindDuplicate, "dup", "duplicates":
		return KindDuplicate
	case KindParentChild, "parent/child", "parent child", "child", "parent", "subtask":
		return KindParentChild
	case KindAffects, "affect":
		return KindAffects
	case KindBlocks, "block", "blocking":
		return KindBlocks
	default:
		return KindRelated
	}
}

func fallbackEdges(seed workitem.WorkItem, neighbors []workitem.WorkItem) []Edge {
	edges := make([]Edge, 0, len(neighbors))
	for _, n := range neighbors {
		edges = append(edges, Edge{
			SeedID:     seed.ID,
			WorkItemID: n.ID,
			Kind:       KindRelated,
		})
	}
	return edges
}

// snippet collapses whitespace and truncates to max runes.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
