// Package policy gates candidate admission with OPA. Teams that need
// guardrails beyond the built-in filters (quarantined areas, embargoed tags,
// compliance holds) express them in Rego; evaluation is local, no network.
package policy

import (
	"encoding/json"
	"time"

	"github.com/seedwise/kindred/internal/workitem"
)

// PolicyResult constants.
const (
	PolicyResultAllow = "allow"
	PolicyResultDeny  = "deny"
)

// PolicyDecision is the outcome of evaluating the loaded policies against one
// seed/candidate pair. Decisions are kept in the audit store when one is
// configured.
type PolicyDecision struct {
	ID          int64     `json:"id"`
	DecisionID  string    `json:"decisionId"`
	PolicyPath  string    `json:"policyPath"`
	Result      string    `json:"result"`
	Violations  []string  `json:"violations,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Input       any       `json:"input"`
	SeedID      int       `json:"seedId,omitempty"`
	CandidateID int       `json:"candidateId,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// IsAllowed reports an "allow" outcome.
func (d *PolicyDecision) IsAllowed() bool {
	return d.Result == PolicyResultAllow
}

// IsDenied reports a "deny" outcome.
func (d *PolicyDecision) IsDenied() bool {
	return d.Result == PolicyResultDeny
}

// ViolationsJSON renders the violations for storage.
func (d *PolicyDecision) ViolationsJSON() string {
	if len(d.Violations) == 0 {
		return "[]"
	}
	b, err := json.Marshal(d.Violations)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// InputJSON renders the evaluated input for storage.
func (d *PolicyDecision) InputJSON() string {
	if d.Input == nil {
		return "{}"
	}
	b, err := json.Marshal(d.Input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseViolations decodes a stored violations column.
func ParseViolations(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// PolicyInput is what Rego policies receive in the `input` variable.
type PolicyInput struct {
	Seed      *ItemInput `json:"seed,omitempty"`
	Candidate *ItemInput `json:"candidate,omitempty"`
}

// ItemInput is the policy-visible projection of a work item. Field names are
// snake_case to read naturally in Rego.
type ItemInput struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	WorkItemType   string   `json:"work_item_type,omitempty"`
	State          string   `json:"state,omitempty"`
	Priority       int      `json:"priority,omitempty"`
	AreaPath       string   `json:"area_path,omitempty"`
	IterationPath  string   `json:"iteration_path,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	CreatedDaysAgo int      `json:"created_days_ago,omitempty"`
}

// ItemInputFrom projects a work item for policy evaluation.
func ItemInputFrom(item workitem.WorkItem) *ItemInput {
	in := &ItemInput{
		ID:            item.ID,
		Title:         item.Title,
		WorkItemType:  item.WorkItemType,
		State:         item.State,
		Priority:      item.Priority,
		AreaPath:      item.AreaPath,
		IterationPath: item.IterationPath,
		Tags:          item.TagList(),
	}
	if !item.CreatedDate.IsZero() {
		in.CreatedDaysAgo = int(time.Since(item.CreatedDate).Hours() / 24)
	}
	return in
}
