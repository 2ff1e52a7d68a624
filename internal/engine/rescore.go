package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seedwise/kindred/internal/phrase"
	"github.com/seedwise/kindred/internal/vecindex"
	"github.com/seedwise/kindred/internal/workitem"
)

// exactTitleMatch is the title-similarity bar for the fast path: neighbors
// above it are emitted at score 1.0 ahead of general rescoring.
const exactTitleMatch = 0.90

// rank rescores neighbors against the seed, applies the adaptive threshold
// over their base scores, and returns the ranked list plus the threshold.
// Near-identical titles bypass rescoring and lead the list at score 1.0.
func (e *Engine) rank(seed workitem.WorkItem, neighbors []vecindex.Hit, limit int) ([]Result, float64) {
	bases := make([]float64, len(neighbors))
	for i, h := range neighbors {
		bases[i] = h.Score
	}
	threshold := adaptiveThreshold(bases, e.cfg)
	if len(neighbors) == 0 {
		return nil, threshold
	}

	var exact, scored []Result
	for _, h := range neighbors {
		rec, ok := e.index.Get(h.WorkItemID)
		if !ok {
			continue
		}
		item := rec.Item

		sim := titleSimilarity(seed.Title, item.Title)
		if sim > exactTitleMatch {
			exact = append(exact, Result{
				WorkItemID: h.WorkItemID,
				Score:      1.0,
				BaseScore:  h.Score,
				ExactTitle: true,
				Item:       item,
				Hints:      []string{"near-identical title"},
			})
			continue
		}

		boost, hints := featureBoost(seed, item, h.Score, sim)
		adjusted := h.Score + boost
		if adjusted > 1 {
			adjusted = 1
		}
		if adjusted < 0 {
			adjusted = 0
		}
		if adjusted < threshold {
			continue
		}
		scored = append(scored, Result{
			WorkItemID: h.WorkItemID,
			Score:      adjusted,
			BaseScore:  h.Score,
			Item:       item,
			Hints:      hints,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	ranked := append(exact, scored...)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, threshold
}

// featureBoost computes the additive boost for one neighbor. Each matching
// feature raises a multiplier m starting at 1.0; the distance from 1.0 is
// scaled hard for confident base scores and barely at all for weak ones, so
// metadata agreement refines semantic similarity instead of replacing it.
func featureBoost(seed, cand workitem.WorkItem, base, titleSim float64) (float64, []string) {
	m := 1.0
	var hints []string

	switch {
	case cand.WorkItemType != "" && cand.WorkItemType == seed.WorkItemType:
		m += 0.15
		hints = append(hints, "same work item type")
	case sameFamily(seed, cand):
		m += 0.05
		hints = append(hints, "same type family")
	}

	if j := areaJaccard(seed, cand); j > 0 {
		m += 0.10 * j
		hints = append(hints, fmt.Sprintf("area overlap %.2f", j))
	}

	if n := tagOverlap(seed, cand); n > 0 {
		inc := 0.03 * float64(n)
		if inc > 0.08 {
			inc = 0.08
		}
		m += inc
		hints = append(hints, fmt.Sprintf("shared tags: %d", n))
	}

	switch {
	case workitem.IsActiveState(cand.State):
		m += 0.03
	case workitem.IsSettledState(cand.State):
		m += 0.01
	}

	switch {
	case titleSim > 0.90:
		m += 0.20
	case titleSim > 0.80:
		m += 0.15
	case titleSim > 0.70:
		m += 0.10
	default:
		inc := 0.03 * float64(stemmedOverlap(seed.Title, cand.Title))
		if inc > 0.15 {
			inc = 0.15
		}
		m += inc
	}
	if titleSim > 0.70 {
		hints = append(hints, fmt.Sprintf("title similarity %.2f", titleSim))
	}

	if n := stemmedOverlap(seed.Description, cand.Description); n > 0 {
		inc := 0.02 * float64(n)
		if inc > 0.10 {
			inc = 0.10
		}
		m += inc
		hints = append(hints, fmt.Sprintf("description overlap: %d words", n))
	}

	// Priority zero means unset in the tracker, so it never matches.
	if seed.Priority > 0 && cand.Priority > 0 {
		switch diff := seed.Priority - cand.Priority; {
		case diff == 0:
			m += 0.05
			hints = append(hints, "same priority")
		case diff == 1 || diff == -1:
			m += 0.02
		}
	}

	if base > 0.5 {
		return (m - 1) * 0.20, hints
	}
	return (m - 1) * 0.05, hints
}

// titleSimilarity is Jaccard over meaningful title tokens. An exact match of
// the normalized titles scores 1.0; sharing five or more tokens earns a 1.2x
// lift, clipped to 1.0.
func titleSimilarity(a, b string) float64 {
	na, nb := normalizeTitle(a), normalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	sa := tokenSet(phrase.MeaningfulTokens(a))
	sb := tokenSet(phrase.MeaningfulTokens(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	shared := 0
	for tok := range sa {
		if sb[tok] {
			shared++
		}
	}
	union := len(sa) + len(sb) - shared
	sim := float64(shared) / float64(union)
	if shared >= 5 {
		sim *= 1.2
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// stemmedOverlap counts distinct stems shared by the meaningful tokens of a
// and b.
func stemmedOverlap(a, b string) int {
	sa := stemSet(phrase.MeaningfulTokens(a))
	sb := stemSet(phrase.MeaningfulTokens(b))

	n := 0
	for s := range sa {
		if sb[s] {
			n++
		}
	}
	return n
}

// stem is a crude suffix stripper, deliberately cheap: ing and ed come off
// words longer than three characters, a trailing s off words longer than
// four.
func stem(word string) string {
	switch {
	case len(word) > 3 && strings.HasSuffix(word, "ing"):
		return word[:len(word)-3]
	case len(word) > 3 && strings.HasSuffix(word, "ed"):
		return word[:len(word)-2]
	case len(word) > 4 && strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func stemSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[stem(t)] = true
	}
	return set
}

// sameFamily reports whether both items belong to the same known type family.
func sameFamily(a, b workitem.WorkItem) bool {
	fa := workitem.Family(a.WorkItemType)
	return fa != workitem.FamilyNone && fa == workitem.Family(b.WorkItemType)
}

// areaJaccard compares area paths segment-wise.
func areaJaccard(a, b workitem.WorkItem) float64 {
	sa := segmentSet(a.AreaSegments())
	sb := segmentSet(b.AreaSegments())
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	shared := 0
	for seg := range sa {
		if sb[seg] {
			shared++
		}
	}
	union := len(sa) + len(sb) - shared
	return float64(shared) / float64(union)
}

func segmentSet(segments []string) map[string]bool {
	set := make(map[string]bool, len(segments))
	for _, s := range segments {
		set[strings.ToLower(s)] = true
	}
	return set
}

// tagOverlap counts tags present on both items, case-insensitively.
func tagOverlap(a, b workitem.WorkItem) int {
	ta := a.TagList()
	if len(ta) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[strings.ToLower(t)] = true
	}

	n := 0
	for _, t := range b.TagList() {
		if set[strings.ToLower(t)] {
			n++
		}
	}
	return n
}
