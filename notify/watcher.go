package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tnicklin/sysclock/clock"
	"github.com/tnicklin/sysclock/logger"
	"github.com/tnicklin/sysclock/sntp"
)

// Watcher raises one alert when no sync has succeeded for longer than the
// stale threshold, and one recovery message on the next success.
type Watcher struct {
	notifier   Notifier
	src        clock.Local
	logger     logger.Logger
	staleAfter int64 // ms

	mu          sync.Mutex
	lastSuccess int64
	failures    int
	lastErr     string
	alerted     bool
}

// WatcherParams configures a Watcher.
type WatcherParams struct {
	Config   Config
	Notifier Notifier
	Clock    clock.Local
	Logger   logger.Logger
}

// NewWatcher creates a Watcher. The stale window starts at creation.
func NewWatcher(p WatcherParams) *Watcher {
	p.Logger = logger.OrNop(p.Logger)
	if p.Clock == nil {
		p.Clock = clock.Monotonic()
	}
	if p.Notifier == nil {
		p.Notifier = NewLog(p.Logger)
	}
	return &Watcher{
		notifier:    p.Notifier,
		src:         p.Clock,
		logger:      p.Logger,
		staleAfter:  p.Config.StaleAfter().Milliseconds(),
		lastSuccess: p.Clock.Millis(),
	}
}

// Observe records a sync outcome. It is meant to be registered as a
// SystemClock OnSync hook.
func (w *Watcher) Observe(ctx context.Context, res sntp.Result) {
	w.mu.Lock()
	if res.Status != sntp.Success {
		w.failures++
		if res.Err != nil {
			w.lastErr = res.Err.Error()
		} else {
			w.lastErr = res.Status.String()
		}
		w.mu.Unlock()
		return
	}
	w.lastSuccess = w.src.Millis()
	w.failures = 0
	w.lastErr = ""
	recovered := w.alerted
	w.alerted = false
	w.mu.Unlock()

	if recovered {
		w.send(ctx, fmt.Sprintf("clock sync recovered via %s, offset %.3fs", res.Server, res.Offset.Float64()))
	}
}

// Check sends an alert if the clock has been stale past the threshold and
// no alert is outstanding. It reports whether the clock is stale.
func (w *Watcher) Check(ctx context.Context) bool {
	w.mu.Lock()
	since := w.src.Millis() - w.lastSuccess
	stale := since >= w.staleAfter
	if !stale || w.alerted {
		w.mu.Unlock()
		return stale
	}
	w.alerted = true
	msg := fmt.Sprintf("clock has not synced for %s (%d consecutive failures)",
		(time.Duration(since) * time.Millisecond).Truncate(time.Second), w.failures)
	if w.lastErr != "" {
		msg += ": " + w.lastErr
	}
	w.mu.Unlock()

	w.send(ctx, msg)
	return true
}

// Alerted reports whether a stale alert is outstanding.
func (w *Watcher) Alerted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alerted
}

func (w *Watcher) send(ctx context.Context, msg string) {
	if err := w.notifier.Notify(ctx, msg); err != nil {
		w.logger.ErrorW("failed to send clock alert", "error", err)
	}
}
