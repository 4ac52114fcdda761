package core

import (
	"context"

	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

// ContextSignal announces that the active context may have switched. The
// notification carries no payload; subscribers query the resolver for the
// connection now in focus. Subscribe returns the channel and an unsubscribe
// func.
type ContextSignal interface {
	Subscribe() (<-chan struct{}, func())
}

// ContextResolver maps the active context to its associated connection.
// ok is false when the active context has no connection.
type ContextResolver interface {
	ActiveConn(ctx context.Context) (schema.Conn, bool)
}

// Tracker keeps the registry's current-connection pointer in step with the
// active context. It updates and re-renders only when the pointer actually
// moves, so bursts of focus notifications for the same context collapse to
// nothing.
type Tracker struct {
	registry *Registry
	signal   ContextSignal
	resolver ContextResolver
	changed  func(conn schema.Conn)
	logger   pslog.Logger
}

// NewTracker wires a tracker. changed is invoked with the newly current
// connection after every real pointer move; a cleared pointer passes the
// zero Conn.
func NewTracker(registry *Registry, signal ContextSignal, resolver ContextResolver, changed func(conn schema.Conn), logger pslog.Logger) *Tracker {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if changed == nil {
		changed = func(schema.Conn) {}
	}
	return &Tracker{
		registry: registry,
		signal:   signal,
		resolver: resolver,
		changed:  changed,
		logger:   logger,
	}
}

// Run consumes context-change notifications until ctx is done or the signal
// closes its channel. It always returns nil; the error return keeps it
// shaped like the other serve loops.
func (t *Tracker) Run(ctx context.Context) error {
	ch, unsubscribe := t.signal.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			t.sync(ctx)
		}
	}
}

// sync resolves the active connection and moves the current pointer. No-op
// when the pointer already points there.
func (t *Tracker) sync(ctx context.Context) {
	conn, ok := t.resolver.ActiveConn(ctx)
	id := conn.ID
	if !ok {
		id = ""
		conn = schema.Conn{}
	}
	if !t.registry.SwapCurrent(id) {
		return
	}
	t.logger.Debug("context switch", "conn", id)
	t.changed(conn)
}
