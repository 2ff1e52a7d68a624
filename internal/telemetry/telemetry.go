// Package telemetry reports anonymous usage events for kindred.
//
// Collection is opt-in: nothing leaves the machine until the user
// accepts the first-run prompt, and every event carries
// $process_person_profile=false so no person profile is ever built.
// Events come from a fixed allowlist and their payloads hold counts,
// durations, strategy names, and error kinds. Work item text, titles,
// identifiers, and organization names are never sent.
package telemetry

import "sync"

// apiKey is the PostHog project key, injected at release build time:
//
//	go build -ldflags "-X github.com/seedwise/kindred/internal/telemetry.apiKey=phc_..."
//
// Development builds carry no key, so telemetry stays off regardless
// of consent state.
var apiKey string

var (
	globalMu     sync.RWMutex
	globalClient Client = NewNoopClient()
	globalConfig *Config
)

// Init loads the stored consent state and activates the PostHog client
// when a key is compiled in and the user has opted in. With no key or
// no consent the package stays a no-op, so callers can Track freely.
func Init(version string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg

	if apiKey == "" || !cfg.IsEnabled() {
		globalClient = NewNoopClient()
		return nil
	}

	client, err := NewPosthogClient(ClientConfig{
		APIKey:  apiKey,
		Version: version,
		Config:  cfg,
	})
	if err != nil {
		globalClient = NewNoopClient()
		return err
	}

	globalClient = client
	return nil
}

// Track records a named event with the given properties.
func Track(event string, props Properties) {
	globalMu.RLock()
	client := globalClient
	globalMu.RUnlock()

	client.Track(event, props)
}

// TrackError records a terminal failure by its kind only. Messages,
// stacks, and item identifiers stay local.
func TrackError(kind string) {
	Track(EventError, Properties{PropErrorKind: kind})
}

// Close flushes pending events. Call once on process exit.
func Close() {
	globalMu.RLock()
	client := globalClient
	globalMu.RUnlock()

	_ = client.Close()
}

// Enabled reports whether events are currently being sent.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return apiKey != "" && globalConfig != nil && globalConfig.IsEnabled()
}

// setClient swaps the active client (for testing).
func setClient(c Client) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalClient = c
}
