package core

import (
	"context"

	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/internal/stats"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

// SessionSource enumerates the connections the service tracks. The order of
// ListConns is the display order and must be stable; the source is the
// single authority on which connections exist. ListConns is called on every
// render, so implementations should answer from memory.
type SessionSource interface {
	ListConns(ctx context.Context) ([]schema.Conn, error)
	// Linked reports whether the transport link for the connection is
	// currently established. Purely informational; busy tracking does not
	// depend on it.
	Linked(id schema.ConnID) bool
}

// Publisher delivers a rendered status line to the external status bar.
// Publish must not block and must not fail the caller; delivery problems
// stay inside the publisher.
type Publisher interface {
	Publish(line string)
}

// ServiceDeps carries the collaborators a Service needs. Sessions is
// required. A nil Transport leaves sending disabled, a nil Publisher sends
// renders nowhere, and nil Signal or Resolver disables context tracking.
type ServiceDeps struct {
	Sessions  SessionSource
	Transport TransportFunc
	Publisher Publisher
	EventSink EventSink
	Signal    ContextSignal
	Resolver  ContextResolver
	Markup    Markup
	Metrics   *metrics.Metrics
	Stats     *stats.Tracker
	Logger    pslog.Logger
}
