package busyline

import (
	"pkt.systems/busyline/core"
	"pkt.systems/busyline/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnStatus(event schema.StatusEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnStatus(event)
	}
}

func (f eventFanout) OnConn(event schema.ConnEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnConn(event)
	}
}
