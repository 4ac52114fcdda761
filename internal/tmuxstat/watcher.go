package tmuxstat

import (
	"context"
	"strings"
	"time"

	"pkt.systems/busyline/core"
	"pkt.systems/busyline/internal/focus"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

const (
	defaultConnOption   = "@busyline_conn"
	defaultPollInterval = time.Second
)

// WatcherConfig tunes the focus poll loop.
type WatcherConfig struct {
	// ConnOption is the pane option holding the session id of the agent
	// running in that pane. Empty selects "@busyline_conn".
	ConnOption string
	// PollInterval is the time between polls. Zero selects one second.
	PollInterval time.Duration
}

// FocusWatcher polls tmux for the active pane's session id and announces
// changes to the focus store. A pane without the option, or with an id no
// session is configured under, clears focus.
type FocusWatcher struct {
	runner   Runner
	format   string
	interval time.Duration
	sessions core.SessionSource
	focus    *focus.Store
	log      pslog.Logger

	last   schema.ConnID
	polled bool
}

// NewFocusWatcher builds a FocusWatcher. Polling starts with Run.
func NewFocusWatcher(runner Runner, cfg WatcherConfig, sessions core.SessionSource, store *focus.Store, logger pslog.Logger) *FocusWatcher {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	option := cfg.ConnOption
	if option == "" {
		option = defaultConnOption
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &FocusWatcher{
		runner:   runner,
		format:   "#{" + option + "}",
		interval: interval,
		sessions: sessions,
		focus:    store,
		log:      logger,
	}
}

// Run polls until ctx is cancelled.
func (w *FocusWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *FocusWatcher) poll(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := w.runner.Output(cctx, "display-message", "-p", w.format)
	if err != nil {
		w.log.Trace("focus poll failed", "err", err)
		return
	}
	id := schema.ConnID(strings.TrimSpace(out))
	if w.polled && id == w.last {
		return
	}
	w.polled = true
	w.last = id
	if id == "" {
		w.focus.Announce(schema.Conn{})
		return
	}
	conn, ok := w.findConn(ctx, id)
	if !ok {
		w.log.Debug("focused pane has no tracked session", "conn", id)
		w.focus.Announce(schema.Conn{})
		return
	}
	w.focus.Announce(conn)
}

func (w *FocusWatcher) findConn(ctx context.Context, id schema.ConnID) (schema.Conn, bool) {
	conns, err := w.sessions.ListConns(ctx)
	if err != nil {
		return schema.Conn{}, false
	}
	for _, conn := range conns {
		if conn.ID == id {
			return conn, true
		}
	}
	return schema.Conn{}, false
}
