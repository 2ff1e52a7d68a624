// Package textnorm collapses a work item's structured fields into one
// canonical text suitable for embedding: markup stripped, code and URLs
// removed, boilerplate dropped, whitespace and Unicode normalized.
//
// The normalizer is pure: it never mutates the work item and has no
// side effects.
package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/seedwise/kindred/internal/workitem"
)

const (
	// DefaultMinLength drops items whose text is too short to embed usefully.
	DefaultMinLength = 10
	// DefaultMaxLength truncates runaway descriptions before embedding.
	DefaultMaxLength = 8000
)

// Options control the normalization pipeline.
type Options struct {
	MinLength      int
	MaxLength      int
	RemoveHTML     bool
	RemoveMarkdown bool
}

// DefaultOptions returns the pipeline defaults used by the engine.
func DefaultOptions() Options {
	return Options{
		MinLength:      DefaultMinLength,
		MaxLength:      DefaultMaxLength,
		RemoveHTML:     true,
		RemoveMarkdown: true,
	}
}

// Pre-compiled patterns; the normalizer runs once per candidate per request.
var (
	fencedCodePattern = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")
	inlineCodePattern = regexp.MustCompile("`[^`\n]*`")
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// boilerplatePatterns remove user-story scaffolding and section labels
	// that would otherwise dominate the embedding of short items.
	boilerplatePatterns = []*regexp.Regexp{
		// "As a <role>, I want (to)" / "I need (to)" prefaces.
		regexp.MustCompile(`(?i)\bas an? [^,.\n]{1,60},?\s*i (?:want|need)(?: to)?\b`),
		regexp.MustCompile(`(?i)\bso that\b`),
		// Scenario keywords at line starts.
		regexp.MustCompile(`(?im)^[ \t]*(?:given|when|then)\b:?[ \t]*`),
		// Section labels, inline or standalone.
		regexp.MustCompile(`(?i)\b(?:acceptance criteria|definition of done|user story)\b\s*:?`),
		regexp.MustCompile(`(?im)^[ \t]*(?:bug|epic|feature|task)[ \t]*:?[ \t]*$`),
	}
)

// Canonical runs the full pipeline over one work item. The second return is
// false when the item should be skipped for embedding (too little text before
// or after cleaning).
func Canonical(item workitem.WorkItem, opts Options) (string, bool) {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	text := assembleFields(item)
	if utf8.RuneCountInString(text) < opts.MinLength {
		return "", false
	}

	if opts.RemoveHTML {
		text = StripHTML(text)
	}
	if opts.RemoveMarkdown {
		text = StripMarkdown(text)
	}

	text = fencedCodePattern.ReplaceAllString(text, " ")
	text = inlineCodePattern.ReplaceAllString(text, " ")
	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")

	for _, p := range boilerplatePatterns {
		text = p.ReplaceAllString(text, " ")
	}

	text = whitespacePattern.ReplaceAllString(text, " ")
	text = norm.NFKC.String(text)
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > opts.MaxLength {
		text = strings.TrimSpace(string([]rune(text)[:opts.MaxLength]))
	}

	if utf8.RuneCountInString(text) < opts.MinLength {
		return "", false
	}
	return text, true
}

// assembleFields concatenates the non-empty fields in priority order,
// separated by blank lines.
func assembleFields(item workitem.WorkItem) string {
	fields := []string{
		item.Title,
		item.Description,
		item.AcceptanceCriteria,
		item.ReproSteps,
		item.BusinessValue,
		item.WorkItemType,
		item.AreaPath,
		item.Tags,
		item.IterationPath,
		item.State,
	}

	var parts []string
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
