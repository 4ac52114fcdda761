package agentlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"pkt.systems/busyline/core"
	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

const (
	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongWait          = 90 * time.Second
	reconnectBaseWait = time.Second
	reconnectMaxWait  = 30 * time.Second
)

// Link maintains the WebSocket to one agent session. It dials, routes
// replies to their callbacks and reconnects with backoff until its context
// ends. Requests in flight when the socket drops get a synthetic error
// reply; nothing is re-sent on reconnect.
type Link struct {
	conn    schema.Conn
	url     string
	logger  pslog.Logger
	metrics *metrics.Metrics

	writeMu sync.Mutex

	mu        sync.Mutex
	ws        *websocket.Conn
	linkID    schema.LinkID
	connected bool
	lastPong  time.Time
	pending   map[schema.RequestID]core.ReplyFunc
}

func newLink(conn schema.Conn, url string, logger pslog.Logger, m *metrics.Metrics) *Link {
	return &Link{
		conn:    conn,
		url:     url,
		logger:  logger.With("conn", conn.ID),
		metrics: m,
		pending: make(map[schema.RequestID]core.ReplyFunc),
	}
}

// Connected reports whether the socket is currently established.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// run dials and reads until ctx is done, reconnecting with exponential
// backoff after failures.
func (l *Link) run(ctx context.Context) error {
	wait := reconnectBaseWait
	for {
		ws, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("link dial failed", "err", err)
			if l.metrics != nil {
				l.metrics.Reconnects.Inc()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			wait *= 2
			if wait > reconnectMaxWait {
				wait = reconnectMaxWait
			}
			continue
		}
		wait = reconnectBaseWait
		l.readLoop(ctx, ws)
		l.teardown()
		if ctx.Err() != nil {
			return nil
		}
		if l.metrics != nil {
			l.metrics.Reconnects.Inc()
		}
	}
}

func (l *Link) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return nil, err
	}
	linkID := schema.LinkID(uuid.NewString())
	l.mu.Lock()
	l.ws = ws
	l.linkID = linkID
	l.connected = true
	l.lastPong = time.Now()
	l.mu.Unlock()
	ws.SetPongHandler(func(string) error {
		l.mu.Lock()
		l.lastPong = time.Now()
		l.mu.Unlock()
		return nil
	})
	if l.metrics != nil {
		l.metrics.LinkUp.WithLabelValues(string(l.conn.ID)).Set(1)
	}
	l.logger.Info("link up", "link", linkID, "url", l.url)
	return ws, nil
}

// readLoop consumes frames until the socket drops. The keepalive goroutine
// closes the socket on context end or staleness, which unblocks the read.
func (l *Link) readLoop(ctx context.Context, ws *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go l.keepalive(ctx, ws, done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("link read failed", "err", err)
			}
			return
		}
		l.dispatch(data)
	}
}

func (l *Link) keepalive(ctx context.Context, ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = ws.Close()
			return
		case <-ticker.C:
			l.mu.Lock()
			stale := time.Since(l.lastPong) > pongWait
			l.mu.Unlock()
			if stale {
				l.logger.Warn("link stale, closing")
				_ = ws.Close()
				return
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

// dispatch routes an inbound frame to the pending reply callback. Frames
// without an id are agent-initiated notifications and are dropped.
func (l *Link) dispatch(data []byte) {
	var resp schema.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		l.logger.Debug("link message unparseable", "err", err)
		return
	}
	if resp.ID == "" {
		l.logger.Trace("link notification dropped")
		return
	}
	l.mu.Lock()
	reply, ok := l.pending[resp.ID]
	if ok {
		delete(l.pending, resp.ID)
	}
	l.mu.Unlock()
	if !ok {
		l.logger.Debug("link reply unmatched", "request", resp.ID)
		return
	}
	reply(resp)
}

// send submits a request and registers the reply callback. The returned
// error covers submission only.
func (l *Link) send(ctx context.Context, req schema.Request, reply core.ReplyFunc) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return schema.ErrNotConnected
	}
	ws := l.ws
	if reply != nil {
		if _, exists := l.pending[req.ID]; exists {
			l.mu.Unlock()
			return fmt.Errorf("%w: duplicate request id %s", schema.ErrInvalidRequest, req.ID)
		}
		l.pending[req.ID] = reply
	}
	l.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		l.forget(req.ID)
		return err
	}
	l.writeMu.Lock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = ws.WriteMessage(websocket.TextMessage, data)
	l.writeMu.Unlock()
	if err != nil {
		l.forget(req.ID)
		return err
	}
	l.logger.Trace("link send", "request", req.ID, "method", req.Method)
	return nil
}

func (l *Link) forget(id schema.RequestID) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// teardown closes the socket and fails every pending exchange so callers
// get an answer instead of waiting forever.
func (l *Link) teardown() {
	l.mu.Lock()
	ws := l.ws
	linkID := l.linkID
	pending := l.pending
	l.ws = nil
	l.linkID = ""
	l.connected = false
	l.pending = make(map[schema.RequestID]core.ReplyFunc)
	l.mu.Unlock()
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
	if l.metrics != nil {
		l.metrics.LinkUp.WithLabelValues(string(l.conn.ID)).Set(0)
	}
	for id, reply := range pending {
		reply(schema.Response{ID: id, Error: schema.ErrLinkClosed.Error()})
	}
	if len(pending) > 0 {
		l.logger.Warn("link lost with requests in flight", "count", len(pending))
	}
	l.logger.Info("link down", "link", linkID)
}
