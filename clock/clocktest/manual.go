// Package clocktest provides test doubles for the clock package.
package clocktest

import (
	"sync"
	"time"

	"github.com/tnicklin/sysclock/clock"
)

// Manual is a deterministic, advanceable millisecond counter.
// Use Advance/Set to control time progression instead of sleeping.
type Manual struct {
	mu     sync.Mutex
	millis int64
}

// NewManual creates a Manual reading millis.
func NewManual(millis int64) *Manual {
	return &Manual{millis: millis}
}

// Millis returns the current reading.
func (m *Manual) Millis() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.millis
}

// Advance moves the reading forward by d, truncated to milliseconds.
// Negative durations are ignored so the counter stays monotonic.
func (m *Manual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.millis += d.Milliseconds()
}

// Set changes the reading. Values earlier than the current one are ignored.
func (m *Manual) Set(millis int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if millis > m.millis {
		m.millis = millis
	}
}

var _ clock.Local = (*Manual)(nil)
