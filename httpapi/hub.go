package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/busyline/internal/logx"
	"pkt.systems/busyline/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64              `json:"seq"`
	Type      string              `json:"type"`
	Status    *schema.StatusEvent `json:"status,omitempty"`
	Conn      *schema.ConnEvent   `json:"conn,omitempty"`
	Snapshot  *SnapshotPayload    `json:"snapshot,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// SnapshotPayload seeds client state on connect.
type SnapshotPayload struct {
	Line     string                `json:"line"`
	Conns    []schema.ConnSnapshot `json:"conns"`
	Current  schema.ConnID         `json:"current,omitempty"`
	Attached bool                  `json:"attached"`
	Display  schema.DisplayConfig  `json:"display"`
}

// Hub broadcasts service events to stream subscribers and keeps a bounded
// history for Last-Event-ID replay.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
	}
}

// OnStatus implements core.EventSink.
func (h *Hub) OnStatus(event schema.StatusEvent) {
	logx.Ctx(context.Background()).Trace("hub status event", "reason", event.Reason)
	h.publish(StreamEvent{
		Type:      "status",
		Status:    &event,
		Timestamp: time.Now(),
	})
}

// OnConn implements core.EventSink.
func (h *Hub) OnConn(event schema.ConnEvent) {
	logx.WithConn(context.Background(), event.Conn.ID).Trace("hub conn event", "type", event.Type)
	h.publish(StreamEvent{
		Type:      "conn",
		Conn:      &event,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber and returns its channel, a cancel func
// and the seq of the last published event.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	seq := h.seq
	log := logx.Ctx(context.Background())
	log.Info("hub subscribe", "subs", len(h.subs))
	unsub := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		remaining := len(h.subs)
		h.mu.Unlock()
		log.Info("hub unsubscribe", "subs", remaining)
	}
	return ch, unsub, seq
}

// Replay returns buffered events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.Ctx(context.Background()).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	subs := make([]chan StreamEvent, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}
