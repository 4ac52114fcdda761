package schema

import (
	"encoding/json"
	"time"
)

// Request is one outbound exchange issued on a connection.
type Request struct {
	ID      RequestID       `json:"id"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a request. Error responses still count as answers: any
// reply, success or failure, ends the busy state of the exchange.
type Response struct {
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusReason explains what prompted a status line publish.
type StatusReason string

const (
	// ReasonRequest marks a publish caused by a request going out.
	ReasonRequest StatusReason = "request"
	// ReasonReply marks a publish caused by a reply arriving.
	ReasonReply StatusReason = "reply"
	// ReasonFocus marks a publish caused by the current connection changing.
	ReasonFocus StatusReason = "focus"
	// ReasonStopAll marks a publish caused by a forced idle reset.
	ReasonStopAll StatusReason = "stop_all"
	// ReasonConfig marks a publish caused by a display settings change.
	ReasonConfig StatusReason = "config"
)

// StatusEvent is emitted every time the aggregate line is re-rendered and
// handed to the publish sink.
type StatusEvent struct {
	Line      string       `json:"line"`
	Reason    StatusReason `json:"reason"`
	Conn      ConnID       `json:"conn,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ConnEventType describes per-connection transitions.
type ConnEventType string

const (
	// ConnEventBusy indicates a connection flipped to busy.
	ConnEventBusy ConnEventType = "busy"
	// ConnEventIdle indicates a connection flipped to idle.
	ConnEventIdle ConnEventType = "idle"
	// ConnEventCurrent indicates the current-connection pointer moved.
	ConnEventCurrent ConnEventType = "current"
)

// ConnEvent reports a single connection transition.
type ConnEvent struct {
	Type      ConnEventType `json:"type"`
	Conn      ConnSnapshot  `json:"conn"`
	Timestamp time.Time     `json:"timestamp"`
}
