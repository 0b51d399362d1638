package sysclock

import (
	"context"
	"sync"
	"time"

	"github.com/tnicklin/sysclock/logger"
)

// DefaultPollInterval is how often Loop polls the clock.
const DefaultPollInterval = time.Second

// Poller is polled by Loop. *SystemClock implements it.
type Poller interface {
	Poll()
}

// Loop polls a clock from a single background goroutine.
type Loop struct {
	poller   Poller
	interval time.Duration
	onTick   func()
	logger   logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LoopParams configures a Loop.
type LoopParams struct {
	Poller   Poller
	Interval time.Duration
	// OnTick runs after every Poll on the loop goroutine.
	OnTick func()
	Logger logger.Logger
}

// NewLoop creates a stopped Loop.
func NewLoop(p LoopParams) *Loop {
	l := &Loop{
		poller:   p.Poller,
		interval: p.Interval,
		onTick:   p.OnTick,
		logger:   p.Logger,
	}
	if l.interval <= 0 {
		l.interval = DefaultPollInterval
	}
	if l.logger == nil {
		l.logger = logger.NewNop()
	}
	return l
}

// Start polls in a background goroutine until ctx is done or Stop is
// called. Starting a running Loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = l.Run(ctx)
	}(l.done)
}

// Stop cancels the background goroutine and waits for it to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Run polls on the calling goroutine until ctx is done and returns
// ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.DebugW("clock loop started", "interval", l.interval)
	defer l.logger.DebugW("clock loop stopped")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	l.poller.Poll()
	if l.onTick != nil {
		l.onTick()
	}
}
