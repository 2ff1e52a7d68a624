package telemetry

// Event names. The client refuses anything not listed here, so a stray
// call site cannot leak a new event without updating the allowlist.
const (
	// EventRelatedStarted fires when a relatedness analysis begins.
	EventRelatedStarted = "related_started"

	// EventRelatedCompleted fires when an analysis returns a report.
	EventRelatedCompleted = "related_completed"

	// EventError fires when a command fails terminally.
	EventError = "error"
)

// Property keys shared by the event builders.
const (
	PropStrategy       = "strategy"
	PropDurationMS     = "duration_ms"
	PropCandidateCount = "candidate_count"
	PropRankedCount    = "ranked_count"
	PropFallbackCount  = "fallback_count"
	PropPartial        = "partial"
	PropErrorKind      = "error_kind"
)

// allowedEvents is the complete set of events this build may emit.
var allowedEvents = map[string]bool{
	EventRelatedStarted:   true,
	EventRelatedCompleted: true,
	EventError:            true,
}

// RelatedStartedProps builds the payload for EventRelatedStarted.
func RelatedStartedProps(strategy string) Properties {
	return Properties{
		PropStrategy: strategy,
	}
}

// RelatedCompletedProps builds the payload for EventRelatedCompleted.
// Only aggregate counts and timings are included; the seed and the
// ranked items themselves never appear.
func RelatedCompletedProps(durationMS int64, strategy string, candidates, ranked, fallbacks int, partial bool) Properties {
	return Properties{
		PropDurationMS:     durationMS,
		PropStrategy:       strategy,
		PropCandidateCount: candidates,
		PropRankedCount:    ranked,
		PropFallbackCount:  fallbacks,
		PropPartial:        partial,
	}
}
