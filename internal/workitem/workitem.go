// Package workitem defines the immutable work item snapshot the relatedness
// pipeline operates on, plus the small classification helpers (type families,
// state groups, tag handling) the rescoring pass relies on.
package workitem

import (
	"strings"
	"time"
)

// WorkItem is a read-only snapshot of one tracker item, valid for the duration
// of a single request. The id is stable within the tracker; every other field
// reflects the moment the item was fetched.
type WorkItem struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	WorkItemType  string    `json:"work_item_type,omitempty"`
	State         string    `json:"state,omitempty"`
	Priority      int       `json:"priority,omitempty"`
	AreaPath      string    `json:"area_path,omitempty"`
	IterationPath string    `json:"iteration_path,omitempty"`
	Tags          string    `json:"tags,omitempty"` // semicolon-separated multiset
	AssignedTo    string    `json:"assigned_to,omitempty"`
	CreatedDate   time.Time `json:"created_date,omitempty"`
	ChangedDate   time.Time `json:"changed_date,omitempty"`

	// Long-form fields folded into the canonical text when present.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	ReproSteps         string `json:"repro_steps,omitempty"`
	BusinessValue      string `json:"business_value,omitempty"`
}

// TagList splits the semicolon-separated tag field into trimmed, non-empty tags.
func (w WorkItem) TagList() []string {
	if w.Tags == "" {
		return nil
	}
	parts := strings.Split(w.Tags, ";")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// AreaSegments splits the backslash-delimited area path into its segments.
func (w WorkItem) AreaSegments() []string {
	if w.AreaPath == "" {
		return nil
	}
	parts := strings.Split(w.AreaPath, `\`)
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// TypeFamily groups work item types that behave alike for boosting purposes.
type TypeFamily string

const (
	FamilyBug   TypeFamily = "bug"
	FamilyStory TypeFamily = "story"
	FamilyTask  TypeFamily = "task"
	FamilyNone  TypeFamily = ""
)

// Family classifies a work item type string into its family.
// Unknown types map to FamilyNone.
func Family(workItemType string) TypeFamily {
	switch t := strings.ToLower(strings.TrimSpace(workItemType)); {
	case t == "bug" || t == "defect":
		return FamilyBug
	case t == "user story" || t == "story" || t == "product backlog item":
		return FamilyStory
	case t == "task" || t == "subtask" || t == "sub-task":
		return FamilyTask
	default:
		return FamilyNone
	}
}

// IsActiveState reports whether the state counts as in-flight for boosting.
func IsActiveState(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "active", "new", "in progress":
		return true
	}
	return false
}

// IsSettledState reports whether the state counts as finished for boosting.
func IsSettledState(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "closed", "done", "resolved":
		return true
	}
	return false
}
