package telemetry

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/posthog/posthog-go"
)

// Client sends telemetry events. Implementations must be safe for
// concurrent use and must never block the caller on network I/O.
type Client interface {
	// Track enqueues an event for async delivery. No-op when telemetry
	// is disabled or the event is not on the allowlist.
	Track(event string, properties Properties)

	// Close flushes pending events and releases the client.
	Close() error
}

// Properties holds the payload of a single event.
type Properties = map[string]any

// enqueuer is the slice of the PostHog SDK we depend on, kept narrow
// so tests can capture events without a network.
type enqueuer interface {
	io.Closer
	Enqueue(msg posthog.Message) error
}

// PosthogClient delivers events to PostHog in the background.
type PosthogClient struct {
	mu      sync.RWMutex
	sink    enqueuer
	config  *Config
	version string
	ready   bool
}

// ClientConfig configures NewPosthogClient.
type ClientConfig struct {
	// APIKey is the PostHog project key. Empty disables the client.
	APIKey string

	// Version is the kindred build version stamped on every event.
	Version string

	// Config carries the consent state and anonymous ID.
	Config *Config

	// Endpoint overrides the PostHog cloud endpoint (self-hosted setups).
	Endpoint string
}

// NewPosthogClient builds a client for the given key and consent
// state. A missing key or nil config yields an inert client rather
// than an error, so callers never need a guard at the call site.
func NewPosthogClient(cfg ClientConfig) (*PosthogClient, error) {
	if cfg.APIKey == "" || cfg.Config == nil {
		return &PosthogClient{config: cfg.Config, version: cfg.Version}, nil
	}

	phCfg := posthog.Config{
		// A CLI emits a handful of events per run, so keep the batch
		// small and the flush interval short.
		BatchSize: 8,
		Interval:  time.Second,
		// Transport noise must never reach the terminal.
		Logger: silentLogger{},
	}
	if cfg.Endpoint != "" {
		phCfg.Endpoint = cfg.Endpoint
	}

	sink, err := posthog.NewWithConfig(cfg.APIKey, phCfg)
	if err != nil {
		return nil, err
	}

	return &PosthogClient{
		sink:    sink,
		config:  cfg.Config,
		version: cfg.Version,
		ready:   true,
	}, nil
}

// newPosthogClientWithSink wires a custom enqueuer (for testing).
func newPosthogClientWithSink(sink enqueuer, cfg *Config, version string) *PosthogClient {
	return &PosthogClient{
		sink:    sink,
		config:  cfg,
		version: version,
		ready:   true,
	}
}

// Track enqueues one event. Unknown event names are dropped, which
// keeps the emitted surface equal to the documented allowlist.
func (c *PosthogClient) Track(event string, properties Properties) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready || c.config == nil || !c.config.IsEnabled() {
		return
	}
	if !allowedEvents[event] {
		return
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	props.Set("os", runtime.GOOS)
	props.Set("arch", runtime.GOARCH)
	props.Set("app_version", c.version)

	// Anonymous capture: no person profile is created server-side.
	props.Set("$process_person_profile", false)

	_ = c.sink.Enqueue(posthog.Capture{
		DistinctId: c.config.AnonymousID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes the queue. The SDK bounds the flush internally, so
// this returns promptly even when the endpoint is unreachable.
func (c *PosthogClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready || c.sink == nil {
		return nil
	}
	return c.sink.Close()
}

// NoopClient discards every event. Active whenever telemetry is
// disabled or the build carries no API key.
type NoopClient struct{}

// NewNoopClient returns a client that does nothing.
func NewNoopClient() *NoopClient { return &NoopClient{} }

// Track is a no-op.
func (*NoopClient) Track(string, Properties) {}

// Close is a no-op.
func (*NoopClient) Close() error { return nil }

// silentLogger drops PostHog SDK log lines.
type silentLogger struct{}

func (silentLogger) Debugf(string, ...interface{}) {}
func (silentLogger) Logf(string, ...interface{})   {}
func (silentLogger) Warnf(string, ...interface{})  {}
func (silentLogger) Errorf(string, ...interface{}) {}
