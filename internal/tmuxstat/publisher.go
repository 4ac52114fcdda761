package tmuxstat

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
)

const (
	defaultOption  = "@busyline"
	commandTimeout = 3 * time.Second
)

// PublisherConfig selects where and how the status line lands in tmux.
type PublisherConfig struct {
	// Option is the tmux user option that receives the rendered line.
	// Empty selects "@busyline".
	Option string
	// Refresh forces a status redraw after each update. Redraw failures
	// are tolerated; a detached server has no client to refresh.
	Refresh bool
}

// Publisher writes status lines to a tmux user option. Publish never
// blocks and never fails the caller; bursts coalesce so only the latest
// line reaches tmux.
type Publisher struct {
	runner  Runner
	option  string
	refresh bool
	log     pslog.Logger
	onError func()

	mu      sync.Mutex
	pending string
	dirty   bool
	kick    chan struct{}
}

// NewPublisher builds a Publisher. Updates are applied by Run; lines
// published before Run starts are held and flushed once it does.
func NewPublisher(runner Runner, cfg PublisherConfig, logger pslog.Logger) *Publisher {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	option := cfg.Option
	if option == "" {
		option = defaultOption
	}
	return &Publisher{
		runner:  runner,
		option:  option,
		refresh: cfg.Refresh,
		log:     logger,
		kick:    make(chan struct{}, 1),
	}
}

// OnError registers a callback invoked once per failed tmux update.
func (p *Publisher) OnError(fn func()) {
	p.onError = fn
}

// Publish queues line for delivery to tmux and returns immediately.
func (p *Publisher) Publish(line string) {
	p.mu.Lock()
	p.pending = line
	p.dirty = true
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run applies queued lines until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.kick:
		}
		for {
			p.mu.Lock()
			if !p.dirty {
				p.mu.Unlock()
				break
			}
			line := p.pending
			p.dirty = false
			p.mu.Unlock()
			p.apply(ctx, line)
		}
	}
}

func (p *Publisher) apply(ctx context.Context, line string) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := p.runner.Run(cctx, "set-option", "-g", p.option, line); err != nil {
		p.log.Warn("status publish failed", "option", p.option, "err", err)
		if p.onError != nil {
			p.onError()
		}
		return
	}
	if p.refresh {
		if err := p.runner.Run(cctx, "refresh-client", "-S"); err != nil {
			p.log.Trace("status refresh skipped", "err", err)
		}
	}
	p.log.Trace("status published", "option", p.option, "chars", len(line))
}
