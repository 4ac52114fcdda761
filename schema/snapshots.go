package schema

import "time"

// ConnSnapshot is a read-only view of one connection for transports.
type ConnSnapshot struct {
	ID      ConnID
	Name    string
	State   ConnState
	Current bool
	Linked  bool
	Stats   ConnStats
}

// ConnStats carries per-connection exchange counters. Presentation only;
// the busy flag never derives from these.
type ConnStats struct {
	Requests   uint64
	Replies    uint64
	ForcedIdle uint64
	BusyFor    time.Duration
}
