package fetcher

import (
	"fmt"
	"strings"
	"time"
)

// wiqlDate is the day-precision literal format WIQL accepts.
const wiqlDate = "2006-01-02"

// querySpec carries everything one slice query needs.
type querySpec struct {
	Project string
	SeedID  int
	Types   []string
	Areas   []string

	From time.Time
	To   time.Time
	// InclusiveTo widens the newest slice so items created today match.
	InclusiveTo bool

	// Phrases drive the balanced disjunction; SeedTitle drives the laser
	// full-title match. Exactly one of the two is set.
	Phrases          []string
	MatchDescription bool
	SeedTitle        string
}

// buildWIQL assembles the slice query text. Conditions are AND-joined, the
// topical filter is a nested OR disjunction, and results come back
// newest-first.
func buildWIQL(s querySpec) string {
	conds := []string{
		fmt.Sprintf("[System.TeamProject] = '%s'", escapeWIQL(s.Project)),
		fmt.Sprintf("[System.Id] <> %d", s.SeedID),
		"[System.State] <> 'Removed'",
	}

	if len(s.Types) > 0 {
		quoted := make([]string, len(s.Types))
		for i, t := range s.Types {
			quoted[i] = "'" + escapeWIQL(t) + "'"
		}
		conds = append(conds, fmt.Sprintf("[System.WorkItemType] IN (%s)", strings.Join(quoted, ", ")))
	}

	if len(s.Areas) > 0 {
		areas := make([]string, len(s.Areas))
		for i, a := range s.Areas {
			areas[i] = fmt.Sprintf("[System.AreaPath] UNDER '%s'", escapeWIQL(a))
		}
		conds = append(conds, group(areas))
	}

	conds = append(conds, fmt.Sprintf("[System.CreatedDate] >= '%s'", s.From.Format(wiqlDate)))
	toOp := "<"
	if s.InclusiveTo {
		toOp = "<="
	}
	conds = append(conds, fmt.Sprintf("[System.CreatedDate] %s '%s'", toOp, s.To.Format(wiqlDate)))

	if match := s.matchClause(); match != "" {
		conds = append(conds, match)
	}

	return "SELECT [System.Id] FROM WorkItems WHERE " +
		strings.Join(conds, " AND ") +
		" ORDER BY [System.CreatedDate] DESC"
}

// matchClause renders the topical filter: a phrase disjunction over title
// (and, for balanced, description) or a single full-title CONTAINS.
func (s querySpec) matchClause() string {
	if s.SeedTitle != "" {
		return fmt.Sprintf("[System.Title] CONTAINS '%s'", escapeWIQL(s.SeedTitle))
	}
	terms := make([]string, 0, 2*len(s.Phrases))
	for _, p := range s.Phrases {
		terms = append(terms, fmt.Sprintf("[System.Title] CONTAINS '%s'", escapeWIQL(p)))
		if s.MatchDescription {
			terms = append(terms, fmt.Sprintf("[System.Description] CONTAINS '%s'", escapeWIQL(p)))
		}
	}
	return group(terms)
}

// group parenthesizes multi-term OR disjunctions.
func group(terms []string) string {
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	default:
		return "(" + strings.Join(terms, " OR ") + ")"
	}
}

// escapeWIQL doubles single quotes inside string literals.
func escapeWIQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
