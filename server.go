// Package busyline composes the busy-tracking core with its frontends: the
// control API on a unix socket, the tmux status-line publisher with its
// focus watcher, and the WebSocket links to the agent sessions.
package busyline

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/busyline/core"
	"pkt.systems/busyline/httpapi"
	"pkt.systems/busyline/internal/agentlink"
	"pkt.systems/busyline/internal/eventbus"
	"pkt.systems/busyline/internal/focus"
	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/internal/tmuxstat"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

// Server composes the busyline daemon services.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Service exposes the core service for in-process callers, like the
	// config reload hook in the serve command.
	Service() core.Service
	// Events taps the daemon's event stream. The returned cancel func must
	// be called when done.
	Events() (<-chan eventbus.Event, func())
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service    schema.ServiceConfig
	HTTP       httpapi.Config
	Tmux       TmuxConfig
	Agents     []agentlink.SessionConfig
	HubHistory int
}

// TmuxConfig defines the status-bar integration settings.
type TmuxConfig struct {
	// Option is the tmux user option the rendered line is written to.
	Option string
	// ConnOption is the pane option the focus watcher polls for the active
	// session id.
	ConnOption string
	// PollInterval is the focus poll period. Zero selects one second.
	PollInterval time.Duration
	// Refresh forces a status redraw after each update.
	Refresh bool
}

// ServerDeps captures injected dependencies. Everything is optional for a
// server with agents enabled; tests inject Sessions, Transport and
// TmuxRunner to run without real agents or a tmux server.
type ServerDeps struct {
	Logger     pslog.Logger
	Metrics    *metrics.Metrics
	EventSink  core.EventSink
	Sessions   core.SessionSource
	Transport  core.TransportFunc
	TmuxRunner tmuxstat.Runner
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP   bool
	enableTmux   bool
	enableAgents bool
}

// WithHTTP enables the control API and live view.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithTmux enables the status-line publisher and the pane focus watcher.
func WithTmux() ServerOption {
	return func(o *serverOptions) { o.enableTmux = true }
}

// WithAgents enables the WebSocket links to the configured sessions.
func WithAgents() ServerOption {
	return func(o *serverOptions) { o.enableAgents = true }
}

// New constructs a composable busyline server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableTmux && !options.enableAgents {
		return nil, errors.New("no services enabled")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	sessions := deps.Sessions
	transport := deps.Transport
	var manager *agentlink.Manager
	if options.enableAgents {
		var err error
		manager, err = agentlink.NewManager(cfg.Agents, agentlink.ManagerDeps{
			Logger:  logger,
			Metrics: deps.Metrics,
		})
		if err != nil {
			return nil, err
		}
		if sessions == nil {
			sessions = manager
		}
		if transport == nil {
			transport = manager.Transport()
		}
	}
	if sessions == nil {
		return nil, errors.New("session source is required without agents")
	}

	focusStore := focus.NewStore(logger)
	bus := eventbus.New(logger)
	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HubHistory)
	}

	sinks := make([]core.EventSink, 0, 3)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	sinks = append(sinks, bus)
	var sink core.EventSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else {
		sink = eventFanout{sinks: sinks}
	}

	var publisher *tmuxstat.Publisher
	var watcher *tmuxstat.FocusWatcher
	var corePublisher core.Publisher
	if options.enableTmux {
		runner := deps.TmuxRunner
		if runner == nil {
			runner = tmuxstat.NewRunner()
		}
		publisher = tmuxstat.NewPublisher(runner, tmuxstat.PublisherConfig{
			Option:  cfg.Tmux.Option,
			Refresh: cfg.Tmux.Refresh,
		}, logger)
		if deps.Metrics != nil {
			publisher.OnError(deps.Metrics.PublishErrors.Inc)
		}
		corePublisher = publisher
		watcher = tmuxstat.NewFocusWatcher(runner, tmuxstat.WatcherConfig{
			ConnOption:   cfg.Tmux.ConnOption,
			PollInterval: cfg.Tmux.PollInterval,
		}, sessions, focusStore, logger)
	}

	service, err := core.NewService(cfg.Service, core.ServiceDeps{
		Sessions:  sessions,
		Transport: transport,
		Publisher: corePublisher,
		EventSink: sink,
		Signal:    focusStore,
		Resolver:  focusStore,
		Metrics:   deps.Metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, service, focusStore, hub, deps.Metrics)
	}

	return &compositeServer{
		cfg:       cfg,
		options:   options,
		service:   service,
		bus:       bus,
		manager:   manager,
		publisher: publisher,
		watcher:   watcher,
		httpSrv:   httpSrv,
	}, nil
}

type compositeServer struct {
	cfg       ServerConfig
	options   serverOptions
	service   core.Service
	bus       *eventbus.Bus
	manager   *agentlink.Manager
	publisher *tmuxstat.Publisher
	watcher   *tmuxstat.FocusWatcher
	httpSrv   *httpapi.Server
	logger    pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Service() core.Service { return s.service }

func (s *compositeServer) Events() (<-chan eventbus.Event, func()) {
	return s.bus.Subscribe()
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 6)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"tmux", s.options.enableTmux,
		"agents", s.options.enableAgents,
		"socket", s.cfg.HTTP.SocketPath,
		"addr", s.cfg.HTTP.Addr,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		if s.cfg.HTTP.SocketPath != "" {
			go func() {
				if err := httpapi.ListenAndServeUnix(s.ctx, s.cfg.HTTP.SocketPath, s.httpSrv.Handler()); err != nil {
					log.Error("http socket server failed", "err", err)
					s.errCh <- err
				}
			}()
		}
		if s.cfg.HTTP.Addr != "" {
			go func() {
				if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
					log.Error("http server failed", "err", err)
					s.errCh <- err
				}
			}()
		}
	}
	if s.options.enableTmux {
		// Seed the bar with the idle line; afterwards only state changes
		// trigger publishes.
		if resp, err := s.service.Status(s.ctx, schema.StatusRequest{}); err == nil {
			s.publisher.Publish(resp.Line)
		} else {
			log.Warn("initial render failed", "err", err)
		}
		go func() {
			if err := s.publisher.Run(s.ctx); err != nil {
				log.Error("tmux publisher failed", "err", err)
				s.errCh <- err
			}
		}()
		go func() {
			if err := s.watcher.Run(s.ctx); err != nil {
				log.Error("focus watcher failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableAgents && s.manager != nil {
		go func() {
			if err := s.manager.Run(s.ctx); err != nil {
				log.Error("agent links failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	go func() {
		if err := s.service.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("context tracker failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
