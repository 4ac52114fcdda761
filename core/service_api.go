package core

import (
	"context"

	"pkt.systems/busyline/schema"
)

// Service is the transport-agnostic API for busy tracking, rendering and
// connection control. Every frontend (HTTP API, CLI, status-bar publisher)
// goes through this interface; none of them touch the registry directly.
type Service interface {
	// Status renders the aggregate status line from current state. The
	// line is built fresh on every call, never cached.
	Status(ctx context.Context, req schema.StatusRequest) (schema.StatusResponse, error)

	// ListConns returns a snapshot of every enumerated connection with its
	// busy state, current flag, link state and exchange counters.
	ListConns(ctx context.Context, req schema.ListConnsRequest) (schema.ListConnsResponse, error)

	// Send submits a request on the named connection through the active
	// transport. With the interceptor attached this marks the connection
	// busy; detached it is a plain passthrough.
	Send(ctx context.Context, req schema.SendRequest) (schema.SendResponse, error)

	// Attach installs the request-interception wrapper around the base
	// transport. Attaching twice is a no-op.
	Attach(ctx context.Context, req schema.AttachRequest) (schema.AttachResponse, error)

	// Detach removes the wrapper so requests flow through the base
	// transport with no busy or idle side effects. Detaching twice is a
	// no-op.
	Detach(ctx context.Context, req schema.DetachRequest) (schema.DetachResponse, error)

	// StopAll forces every enumerated connection idle. Escape hatch for
	// busy flags stuck after a lost reply; connections the session source
	// does not enumerate keep whatever state the registry holds for them.
	StopAll(ctx context.Context, req schema.StopAllRequest) (schema.StopAllResponse, error)

	// Display returns the effective display settings without touching them.
	Display(ctx context.Context, req schema.DisplayRequest) (schema.DisplayResponse, error)

	// Configure merges a display patch into the active settings, persists
	// the result and re-renders.
	Configure(ctx context.Context, req schema.ConfigureRequest) (schema.ConfigureResponse, error)

	// Run drives the background context tracking loop until ctx is done.
	// Returns immediately when no context signal is configured.
	Run(ctx context.Context) error
}
