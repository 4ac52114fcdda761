// Package stats accumulates per-connection exchange counters and busy time.
// Presentation only; the busy flag never derives from these numbers.
package stats

import (
	"sync"
	"time"

	"pkt.systems/busyline/schema"
)

// Tracker counts requests, replies and forced resets per connection and
// keeps a running total of time spent busy. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	conns map[schema.ConnID]*connStats
}

type connStats struct {
	requests   uint64
	replies    uint64
	forcedIdle uint64
	busySince  time.Time
	busyFor    time.Duration
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, conns: make(map[schema.ConnID]*connStats)}
}

// Request counts an outbound request and opens the busy window when none is
// open. Repeat requests during an open window only bump the counter.
func (t *Tracker) Request(id schema.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.get(id)
	cs.requests++
	if cs.busySince.IsZero() {
		cs.busySince = t.now()
	}
}

// Reply counts an answer and closes the busy window.
func (t *Tracker) Reply(id schema.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.get(id)
	cs.replies++
	t.closeWindow(cs)
}

// ForcedIdle counts a forced reset and closes the busy window.
func (t *Tracker) ForcedIdle(id schema.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.get(id)
	cs.forcedIdle++
	t.closeWindow(cs)
}

// Snapshot returns the counters for one connection. An open busy window
// counts up to now. Unknown connections report zeroes.
func (t *Tracker) Snapshot(id schema.ConnID) schema.ConnStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs, ok := t.conns[id]
	if !ok {
		return schema.ConnStats{}
	}
	out := schema.ConnStats{
		Requests:   cs.requests,
		Replies:    cs.replies,
		ForcedIdle: cs.forcedIdle,
		BusyFor:    cs.busyFor,
	}
	if !cs.busySince.IsZero() {
		out.BusyFor += t.now().Sub(cs.busySince)
	}
	return out
}

func (t *Tracker) get(id schema.ConnID) *connStats {
	cs, ok := t.conns[id]
	if !ok {
		cs = &connStats{}
		t.conns[id] = cs
	}
	return cs
}

func (t *Tracker) closeWindow(cs *connStats) {
	if cs.busySince.IsZero() {
		return
	}
	cs.busyFor += t.now().Sub(cs.busySince)
	cs.busySince = time.Time{}
}
