// Package phrase turns work item titles into ordered, de-duplicated
// multi-word phrases used for keyword retrieval against the tracker.
package phrase

import (
	"regexp"
	"strings"
)

const (
	// MinWords and MaxWords bound the requested phrase length.
	MinWords = 2
	MaxWords = 3

	// MaxPhrases caps the extractor output; the first phrases of a title
	// tend to carry the most signal.
	MaxPhrases = 12

	// Tokens of length <= 2 never count as meaningful.
	minTokenLength = 3

	// Titles of 4 characters or fewer produce nothing.
	minTitleLength = 5
)

// stopWords are common words excluded from phrase construction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"were": true, "are": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "shall": true, "can": true, "need": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "i": true, "we": true, "you": true, "he": true, "she": true,
	"they": true, "them": true, "their": true, "what": true, "which": true,
	"who": true, "whom": true, "when": true, "where": true, "why": true,
	"how": true, "all": true, "each": true, "every": true, "both": true,
	"few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "no": true, "nor": true, "not": true, "only": true,
	"own": true, "same": true, "so": true, "than": true, "too": true,
	"very": true, "just": true, "also": true,
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// MeaningfulTokens lowercases s and returns its word tokens with short tokens
// and stop words removed, in order of appearance. Shared by the extractor and
// by title-similarity scoring so both agree on what a "meaningful" word is.
func MeaningfulTokens(s string) []string {
	raw := wordPattern.FindAllString(strings.ToLower(s), -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < minTokenLength {
			continue
		}
		if stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// IsStopWord reports whether the lowercased word is in the stop-word set.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// Extract returns up to MaxPhrases phrases of n meaningful words from title,
// preserving first-occurrence order and deduplicating on the full phrase.
// Windows containing a repeated token are discarded. When no phrase of
// length n exists and n > MinWords, the extractor falls back to n-1,
// repeating down to MinWords.
func Extract(title string, n int) []string {
	if len(strings.TrimSpace(title)) < minTitleLength {
		return nil
	}
	if n < MinWords {
		n = MinWords
	}
	if n > MaxWords {
		n = MaxWords
	}

	tokens := MeaningfulTokens(title)

	for length := n; length >= MinWords; length-- {
		if phrases := windows(tokens, length); len(phrases) > 0 {
			return phrases
		}
	}
	return nil
}

// windows forms every consecutive run of length meaningful tokens,
// skipping runs with internal repeats and duplicate phrase strings.
func windows(tokens []string, length int) []string {
	if len(tokens) < length {
		return nil
	}

	seen := make(map[string]bool)
	var phrases []string
	for i := 0; i+length <= len(tokens); i++ {
		window := tokens[i : i+length]
		if hasRepeat(window) {
			continue
		}
		p := strings.Join(window, " ")
		if seen[p] {
			continue
		}
		seen[p] = true
		phrases = append(phrases, p)
		if len(phrases) == MaxPhrases {
			break
		}
	}
	return phrases
}

func hasRepeat(window []string) bool {
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			if window[i] == window[j] {
				return true
			}
		}
	}
	return false
}
