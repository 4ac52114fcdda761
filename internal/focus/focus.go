// Package focus tracks which connection the active context maps to. Two
// producers feed it: explicit announcements over the HTTP API and the tmux
// pane watcher. Consumers get a payload-free change signal and query the
// store back for the connection, so stale notifications are harmless.
package focus

import (
	"context"
	"sync"

	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

// Store holds the active connection and fans out change signals.
type Store struct {
	mu   sync.Mutex
	conn schema.Conn
	ok   bool
	subs map[chan struct{}]struct{}
	log  pslog.Logger
}

// NewStore constructs an empty store with no active connection.
func NewStore(logger pslog.Logger) *Store {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Store{subs: make(map[chan struct{}]struct{}), log: logger}
}

// Announce records the connection associated with the active context and
// fires the change signal. An empty id means the active context has no
// connection. Every announcement fires, even a redundant one; subscribers
// resolve and dedupe on their side.
func (s *Store) Announce(conn schema.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.ok = conn.ID != ""
	subs := make([]chan struct{}, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
	s.log.Trace("focus announce", "conn", conn.ID)
}

// ActiveConn reports the connection of the active context.
func (s *Store) ActiveConn(context.Context) (schema.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.ok
}

// Subscribe registers a change-signal subscriber. The channel has a one-slot
// buffer; a pending signal absorbs any number of further announcements,
// which coalesces bursts instead of queueing them.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}
}
