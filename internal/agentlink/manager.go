// Package agentlink maintains WebSocket links to the configured agent
// sessions and adapts them to the core's session source and transport
// contracts. One link per session; the config order is the display order.
package agentlink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"pkt.systems/busyline/core"
	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

// SessionConfig describes one agent session endpoint.
type SessionConfig struct {
	ID   schema.ConnID
	Name string
	URL  string
}

// ManagerDeps carries optional collaborators for a Manager.
type ManagerDeps struct {
	Logger  pslog.Logger
	Metrics *metrics.Metrics
}

// Manager owns the links for every configured session.
type Manager struct {
	conns []schema.Conn
	links map[schema.ConnID]*Link
}

// NewManager validates the session list and builds the links. Links are not
// dialed until Run.
func NewManager(sessions []SessionConfig, deps ManagerDeps) (*Manager, error) {
	if len(sessions) == 0 {
		return nil, errors.New("agentlink: at least one session is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	m := &Manager{links: make(map[schema.ConnID]*Link, len(sessions))}
	for _, session := range sessions {
		if err := schema.ValidateConnID(session.ID); err != nil {
			return nil, fmt.Errorf("session %q: %w", session.ID, err)
		}
		if _, dup := m.links[session.ID]; dup {
			return nil, fmt.Errorf("session %q: duplicate id", session.ID)
		}
		if strings.TrimSpace(session.URL) == "" {
			return nil, fmt.Errorf("session %q: url is required", session.ID)
		}
		name := session.Name
		if name == "" {
			name = string(session.ID)
		}
		conn := schema.Conn{ID: session.ID, Name: name}
		m.conns = append(m.conns, conn)
		m.links[session.ID] = newLink(conn, session.URL, logger, deps.Metrics)
	}
	return m, nil
}

// ListConns returns the sessions in config order.
func (m *Manager) ListConns(context.Context) ([]schema.Conn, error) {
	return append([]schema.Conn(nil), m.conns...), nil
}

// Linked reports whether the session's socket is established.
func (m *Manager) Linked(id schema.ConnID) bool {
	link, ok := m.links[id]
	return ok && link.Connected()
}

// Transport returns the transport that routes requests to their links.
func (m *Manager) Transport() core.TransportFunc {
	return func(ctx context.Context, conn schema.Conn, req schema.Request, reply core.ReplyFunc) error {
		link, ok := m.links[conn.ID]
		if !ok {
			return schema.ErrConnNotFound
		}
		return link.send(ctx, req, reply)
	}
}

// Run keeps every link alive until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, link := range m.links {
		g.Go(func() error { return link.run(ctx) })
	}
	return g.Wait()
}
