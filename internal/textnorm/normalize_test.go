package textnorm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/seedwise/kindred/internal/workitem"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		item workitem.WorkItem
		opts Options
		want string
		ok   bool
	}{
		{
			name: "html stripped from description",
			item: workitem.WorkItem{
				Title:       "Fix login timeout",
				Description: "Users see <b>errors</b> after 30 seconds.",
			},
			opts: DefaultOptions(),
			want: "Fix login timeout Users see errors after 30 seconds.",
			ok:   true,
		},
		{
			name: "user story boilerplate removed",
			item: workitem.WorkItem{
				Title:       "Checkout flow improvements",
				Description: "As a customer, I want to pay with saved cards so that checkout is faster.",
			},
			opts: DefaultOptions(),
			want: "Checkout flow improvements pay with saved cards checkout is faster.",
			ok:   true,
		},
		{
			name: "urls and emails removed",
			item: workitem.WorkItem{
				Title:       "Update webhook integration docs",
				Description: "See https://example.com/docs#setup and mail ops@example.com for access.",
			},
			opts: DefaultOptions(),
			want: "Update webhook integration docs See and mail for access.",
			ok:   true,
		},
		{
			name: "code fences and inline code removed when markdown strip is off",
			item: workitem.WorkItem{
				Title:       "Parser crash on empty input",
				Description: "Repro:\n```\nparse(\"\")\n```\nAlso call `flush()` twice.",
			},
			opts: Options{},
			want: "Parser crash on empty input Repro: Also call twice.",
			ok:   true,
		},
		{
			name: "too short before cleaning",
			item: workitem.WorkItem{Title: "Bug"},
			opts: DefaultOptions(),
			want: "",
			ok:   false,
		},
		{
			name: "too short after cleaning",
			item: workitem.WorkItem{Title: "https://example.com/a https://example.com/b"},
			opts: DefaultOptions(),
			want: "",
			ok:   false,
		},
		{
			name: "unicode compatibility forms folded",
			item: workitem.WorkItem{Title: "Veriﬁcation ﬂow drops conﬁrmation emails"},
			opts: DefaultOptions(),
			want: "Verification flow drops confirmation emails",
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Canonical(tt.item, tt.opts)
			if ok != tt.ok {
				t.Fatalf("Canonical() ok = %v, want %v (text %q)", ok, tt.ok, got)
			}
			if got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalAssemblesAllFields(t *testing.T) {
	item := workitem.WorkItem{
		Title:              "Payment retries",
		Description:        "Retries fail silently.",
		AcceptanceCriteria: "Retry surfaces an alert.",
		WorkItemType:       "Bug",
		AreaPath:           `Platform\Payments`,
		Tags:               "payments; retry",
		State:              "Active",
	}
	got, ok := Canonical(item, DefaultOptions())
	if !ok {
		t.Fatal("Canonical() skipped a fully populated item")
	}
	// The standalone "Bug" line is a section label and gets dropped.
	want := `Payment retries Retries fail silently. Retry surfaces an alert. Platform\Payments payments; retry Active`
	if got != want {
		t.Errorf("Canonical() = %q, want %q", got, want)
	}
}

func TestCanonicalTruncatesToMaxLength(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLength = 20
	item := workitem.WorkItem{Title: strings.Repeat("release checklist ", 10)}

	got, ok := Canonical(item, opts)
	if !ok {
		t.Fatal("Canonical() skipped a long item")
	}
	if n := utf8.RuneCountInString(got); n > 20 {
		t.Errorf("Canonical() returned %d runes, want at most 20: %q", n, got)
	}
	if !strings.HasPrefix(got, "release checklist") {
		t.Errorf("Canonical() = %q, want prefix %q", got, "release checklist")
	}
}

func TestCanonicalZeroOptionsUseDefaults(t *testing.T) {
	item := workitem.WorkItem{Title: "ok"}
	if _, ok := Canonical(item, Options{}); ok {
		t.Error("Canonical() with zero options kept a 2-rune title; MinLength default not applied")
	}
}

func TestCanonicalScenarioKeywordsRemoved(t *testing.T) {
	item := workitem.WorkItem{
		Title:       "Session expiry handling",
		Description: "Given an expired token\nWhen the user refreshes\nThen redirect to login",
	}
	got, ok := Canonical(item, DefaultOptions())
	if !ok {
		t.Fatal("Canonical() skipped the item")
	}
	for _, kw := range []string{"Given", "When", "Then"} {
		if strings.Contains(got, kw) {
			t.Errorf("Canonical() = %q, still contains scenario keyword %q", got, kw)
		}
	}
	if !strings.Contains(got, "expired token") {
		t.Errorf("Canonical() = %q, lost scenario content", got)
	}
}
