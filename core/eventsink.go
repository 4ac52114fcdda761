package core

import "pkt.systems/busyline/schema"

// EventSink receives events emitted by the service. Implementations must not
// block; slow consumers should buffer or drop on their side of the sink.
type EventSink interface {
	// OnStatus is invoked after every publish with the rendered line.
	OnStatus(event schema.StatusEvent)
	// OnConn is invoked when a connection changes state or becomes current.
	OnConn(event schema.ConnEvent)
}

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) OnStatus(schema.StatusEvent) {}
func (NopEventSink) OnConn(schema.ConnEvent)     {}
