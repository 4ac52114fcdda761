package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/busyline/internal/logx"
	"pkt.systems/busyline/internal/markup"
	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/internal/persist"
	"pkt.systems/busyline/internal/stats"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

// service implements Service. The registry holds the only mutable busy
// state; every op mutates through it, renders fresh, publishes, then emits
// events. The mutex guards the transport slot only.
type service struct {
	cfg       schema.ServiceConfig
	registry  *Registry
	formatter *Formatter
	sessions  SessionSource
	publisher Publisher
	sink      EventSink
	stats     *stats.Tracker
	metrics   *metrics.Metrics
	store     *persist.Store
	tracker   *Tracker
	logger    pslog.Logger

	mu       sync.Mutex
	base     TransportFunc
	active   TransportFunc
	attached bool
	icept    *Interceptor
}

// NewService builds the core service from cfg and deps. Sessions is
// required; everything else degrades gracefully when absent. When a
// transport is present the interceptor starts attached, so busy tracking is
// the default and Detach the opt-out.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Sessions == nil {
		return nil, errors.New("core: session source is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	m := deps.Markup
	if m == nil {
		m = markup.Tmux{}
	}
	st := deps.Stats
	if st == nil {
		st = stats.NewTracker()
	}
	store, err := persist.NewStoreWithLogger(normalized.StateDir, logger)
	if err != nil {
		return nil, err
	}
	display := normalized.Display
	if saved, ok, err := store.LoadDisplay(); err != nil {
		logger.Warn("display override load failed", "err", err)
	} else if ok {
		if _, nerr := schema.NormalizeDisplayConfig(saved); nerr != nil {
			logger.Warn("display override invalid", "err", nerr)
		} else {
			display = saved
		}
	}
	formatter, err := NewFormatter(m, display)
	if err != nil {
		return nil, err
	}
	s := &service{
		cfg:       normalized,
		registry:  NewRegistry(),
		formatter: formatter,
		sessions:  deps.Sessions,
		publisher: deps.Publisher,
		sink:      deps.EventSink,
		stats:     st,
		metrics:   deps.Metrics,
		store:     store,
		logger:    logger,
		base:      deps.Transport,
	}
	s.icept = NewInterceptor(s.markBusy, s.markIdle)
	if s.base != nil {
		s.active = s.icept.Wrap(s.base)
		s.attached = true
	}
	if deps.Signal != nil && deps.Resolver != nil {
		s.tracker = NewTracker(s.registry, deps.Signal, deps.Resolver, s.currentChanged, logger)
	}
	return s, nil
}

func (s *service) Status(ctx context.Context, req schema.StatusRequest) (schema.StatusResponse, error) {
	var m Markup
	if req.Markup != "" {
		var ok bool
		if m, ok = markupFor(req.Markup); !ok {
			return schema.StatusResponse{}, fmt.Errorf("%w: unknown markup %q", schema.ErrInvalidRequest, req.Markup)
		}
	}
	conns, err := s.sessions.ListConns(ctx)
	if err != nil {
		return schema.StatusResponse{}, err
	}
	return schema.StatusResponse{Line: s.formatter.LineWith(m, conns, s.registry)}, nil
}

// markupFor maps a wire-level markup name to its renderer.
func markupFor(kind schema.MarkupKind) (Markup, bool) {
	switch kind {
	case schema.MarkupTmux:
		return markup.Tmux{}, true
	case schema.MarkupANSI:
		return markup.ANSI{}, true
	case schema.MarkupPlain:
		return markup.Plain{}, true
	}
	return nil, false
}

func (s *service) ListConns(ctx context.Context, _ schema.ListConnsRequest) (schema.ListConnsResponse, error) {
	conns, err := s.sessions.ListConns(ctx)
	if err != nil {
		return schema.ListConnsResponse{}, err
	}
	snapshots := make([]schema.ConnSnapshot, 0, len(conns))
	for _, conn := range conns {
		snapshots = append(snapshots, s.snapshot(conn))
	}
	s.mu.Lock()
	attached := s.attached
	s.mu.Unlock()
	return schema.ListConnsResponse{
		Conns:    snapshots,
		Current:  s.registry.Current(),
		Attached: attached,
	}, nil
}

func (s *service) Send(ctx context.Context, req schema.SendRequest) (schema.SendResponse, error) {
	if err := schema.ValidateConnID(req.Conn); err != nil {
		return schema.SendResponse{}, err
	}
	if req.Req.Method == "" && len(req.Req.Payload) == 0 {
		return schema.SendResponse{}, schema.ErrEmptyRequest
	}
	conns, err := s.sessions.ListConns(ctx)
	if err != nil {
		return schema.SendResponse{}, err
	}
	conn, ok := findConn(conns, req.Conn)
	if !ok {
		return schema.SendResponse{}, schema.ErrConnNotFound
	}
	out := req.Req
	if out.ID == "" {
		out.ID = schema.RequestID(newRequestID())
	}
	s.mu.Lock()
	transport := s.active
	s.mu.Unlock()
	if transport == nil {
		return schema.SendResponse{}, schema.ErrNoTransport
	}
	log := logx.WithRequest(logx.WithConn(ctx, conn.ID), out.ID)
	log.Info("service send start", "method", out.Method)
	reply := func(resp schema.Response) {
		if resp.Error != "" {
			log.Debug("service reply error", "err", resp.Error)
			return
		}
		log.Debug("service reply")
	}
	if err := transport(ctx, conn, out, reply); err != nil {
		log.Warn("service send failed", "err", err)
		return schema.SendResponse{}, err
	}
	return schema.SendResponse{RequestID: out.ID}, nil
}

func (s *service) Attach(ctx context.Context, _ schema.AttachRequest) (schema.AttachResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return schema.AttachResponse{}, schema.ErrNoTransport
	}
	if s.attached {
		return schema.AttachResponse{Attached: true}, nil
	}
	s.active = s.icept.Wrap(s.base)
	s.attached = true
	s.logger.Info("interceptor attach")
	return schema.AttachResponse{Attached: true, Changed: true}, nil
}

func (s *service) Detach(ctx context.Context, _ schema.DetachRequest) (schema.DetachResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return schema.DetachResponse{}, nil
	}
	s.active = s.base
	s.attached = false
	s.logger.Info("interceptor detach")
	return schema.DetachResponse{Changed: true}, nil
}

func (s *service) StopAll(ctx context.Context, _ schema.StopAllRequest) (schema.StopAllResponse, error) {
	conns, err := s.sessions.ListConns(ctx)
	if err != nil {
		return schema.StopAllResponse{}, err
	}
	stopped := 0
	for _, conn := range conns {
		if !s.registry.SetIdle(conn.ID) {
			continue
		}
		stopped++
		s.stats.ForcedIdle(conn.ID)
		if s.metrics != nil {
			s.metrics.ForcedIdle.Inc()
			s.metrics.BusyConns.Dec()
		}
		s.emitConn(schema.ConnEventIdle, conn)
	}
	line := s.publish(ctx, schema.ReasonStopAll, "")
	s.logger.Info("service stop all", "stopped", stopped, "conns", len(conns))
	return schema.StopAllResponse{Stopped: stopped, Line: line}, nil
}

func (s *service) Display(ctx context.Context, _ schema.DisplayRequest) (schema.DisplayResponse, error) {
	return schema.DisplayResponse{Display: s.formatter.Display()}, nil
}

func (s *service) Configure(ctx context.Context, req schema.ConfigureRequest) (schema.ConfigureResponse, error) {
	display, err := s.formatter.Apply(req.Display)
	if err != nil {
		return schema.ConfigureResponse{}, err
	}
	if s.store != nil {
		if err := s.store.SaveDisplay(display); err != nil {
			s.logger.Warn("display override save failed", "err", err)
		}
	}
	s.publish(ctx, schema.ReasonConfig, "")
	s.logger.Info("service display configure")
	return schema.ConfigureResponse{Display: display}, nil
}

func (s *service) Run(ctx context.Context) error {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.Run(ctx)
}

// markBusy is the interceptor's request-side hook. Mutate, emit, publish, in
// that order, so every observer sees state that already changed.
func (s *service) markBusy(conn schema.Conn) {
	changed := s.registry.SetBusy(conn.ID)
	s.stats.Request(conn.ID)
	if s.metrics != nil {
		s.metrics.Requests.Inc()
		if changed {
			s.metrics.BusyConns.Inc()
		}
	}
	if changed {
		s.emitConn(schema.ConnEventBusy, conn)
	}
	s.publish(context.Background(), schema.ReasonRequest, conn.ID)
	s.logger.Debug("conn busy", "conn", conn.ID)
}

// markIdle is the interceptor's reply-side hook.
func (s *service) markIdle(conn schema.Conn) {
	changed := s.registry.SetIdle(conn.ID)
	s.stats.Reply(conn.ID)
	if s.metrics != nil {
		s.metrics.Replies.Inc()
		if changed {
			s.metrics.BusyConns.Dec()
		}
	}
	if changed {
		s.emitConn(schema.ConnEventIdle, conn)
	}
	s.publish(context.Background(), schema.ReasonReply, conn.ID)
	s.logger.Debug("conn idle", "conn", conn.ID)
}

// currentChanged runs after the tracker moved the current pointer.
func (s *service) currentChanged(conn schema.Conn) {
	if conn.ID != "" {
		s.emitConn(schema.ConnEventCurrent, conn)
	}
	s.publish(context.Background(), schema.ReasonFocus, conn.ID)
}

// publish renders a fresh line, hands it to the publisher and emits the
// status event. Registry state must already reflect the change being
// announced; publisher failures never reach the state pipeline.
func (s *service) publish(ctx context.Context, reason schema.StatusReason, conn schema.ConnID) string {
	conns, err := s.sessions.ListConns(ctx)
	if err != nil {
		s.logger.Warn("conn enumeration failed", "err", err)
		conns = nil
	}
	line := s.formatter.Line(conns, s.registry)
	if s.metrics != nil {
		s.metrics.Publishes.Inc()
	}
	if s.publisher != nil {
		s.publisher.Publish(line)
	}
	if s.sink != nil {
		s.sink.OnStatus(schema.StatusEvent{
			Line:      line,
			Reason:    reason,
			Conn:      conn,
			Timestamp: time.Now(),
		})
	}
	return line
}

func (s *service) emitConn(typ schema.ConnEventType, conn schema.Conn) {
	if s.sink == nil {
		return
	}
	s.sink.OnConn(schema.ConnEvent{Type: typ, Conn: s.snapshot(conn), Timestamp: time.Now()})
}

func (s *service) snapshot(conn schema.Conn) schema.ConnSnapshot {
	state := schema.ConnStateIdle
	if s.registry.IsBusy(conn.ID) {
		state = schema.ConnStateBusy
	}
	return schema.ConnSnapshot{
		ID:      conn.ID,
		Name:    conn.Name,
		State:   state,
		Current: s.registry.IsCurrent(conn.ID),
		Linked:  s.sessions.Linked(conn.ID),
		Stats:   s.stats.Snapshot(conn.ID),
	}
}

func findConn(conns []schema.Conn, id schema.ConnID) (schema.Conn, bool) {
	for _, conn := range conns {
		if conn.ID == id {
			return conn, true
		}
	}
	return schema.Conn{}, false
}
