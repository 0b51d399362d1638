// Package timer implements a cooperative countdown timer driven by an
// external Poll call. It never starts goroutines or OS timers: the handler
// runs synchronously inside Poll once the deadline has passed.
//
// A repeating timer is obtained by calling Start again from the handler:
//
//	t := timer.New(clock.Monotonic())
//	t.Configure(15 * time.Second)
//	t.SetHandler(func() {
//		doWork()
//		t.Start()
//	})
//	t.Start()
//	for {
//		t.Poll()
//	}
package timer

import (
	"time"

	"github.com/tnicklin/sysclock/clock"
)

// State is the run state of a Timer.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Timer is a countdown state machine. It is not safe for concurrent use.
type Timer struct {
	src     clock.Local
	handler func()

	state         State
	duration      int64 // configured run length, ms
	remaining     int64 // run length for the next Start, ms
	startedAt     int64
	deadline      int64
	pauseDeadline int64
}

// New returns a stopped Timer reading time from src.
func New(src clock.Local) *Timer {
	return &Timer{src: src, handler: func() {}}
}

// Configure sets the run length. The current state is unaffected; a
// running Timer keeps its deadline and the next Start uses d.
func (t *Timer) Configure(d time.Duration) {
	t.duration = max(d.Milliseconds(), 0)
	t.remaining = t.duration
}

// SetHMS configures the run length from hours, minutes and seconds.
// Negative components count as zero.
func (t *Timer) SetHMS(h, m, s int) {
	d := time.Duration(max(h, 0))*time.Hour +
		time.Duration(max(m, 0))*time.Minute +
		time.Duration(max(s, 0))*time.Second
	t.Configure(d)
}

// SetHandler installs the function run on expiry. A nil handler does
// nothing.
func (t *Timer) SetHandler(h func()) {
	if h == nil {
		h = func() {}
	}
	t.handler = h
}

// Start runs the Timer for the remaining time, which is the configured
// duration unless a previous Stop left a remainder. Starting a paused
// Timer cancels the pause. Start is a no-op while running.
func (t *Timer) Start() {
	if t.state == Running {
		return
	}
	now := t.src.Millis()
	t.state = Running
	t.startedAt = now
	t.deadline = now + t.remaining
	t.pauseDeadline = 0
}

// Stop halts a running Timer and keeps the unexpired time for the next
// Start.
func (t *Timer) Stop() {
	if t.state != Running {
		return
	}
	now := t.src.Millis()
	t.remaining = max(t.deadline-now, 0)
	t.state = Stopped
	t.startedAt = 0
	t.deadline = 0
}

// Reset stops the Timer and discards any remainder and pause.
func (t *Timer) Reset() {
	t.state = Stopped
	t.remaining = t.duration
	t.startedAt = 0
	t.deadline = 0
	t.pauseDeadline = 0
}

// Clear resets the Timer and zeroes the configured duration.
func (t *Timer) Clear() {
	t.Reset()
	t.duration = 0
	t.remaining = 0
}

// Pause stops the Timer and schedules an automatic Start d from now.
// Pausing an already paused Timer is a no-op.
func (t *Timer) Pause(d time.Duration) {
	if t.state == Paused {
		return
	}
	t.Stop()
	t.state = Paused
	t.pauseDeadline = t.src.Millis() + max(d.Milliseconds(), 0)
}

// CancelPause ends a pause early and starts the Timer.
func (t *Timer) CancelPause() {
	if t.state == Paused {
		t.Start()
	}
}

// Poll advances the state machine. A running Timer whose deadline has been
// reached stops, rearms its full duration and runs the handler exactly
// once. A paused Timer whose pause has expired starts.
func (t *Timer) Poll() {
	now := t.src.Millis()
	switch t.state {
	case Running:
		if now >= t.deadline {
			t.Reset()
			t.handler()
		}
	case Paused:
		if now >= t.pauseDeadline {
			t.Start()
		}
	}
}

// Fire runs the handler immediately without touching the state.
func (t *Timer) Fire() { t.handler() }

// State returns the current state.
func (t *Timer) State() State { return t.state }

// Running reports whether the Timer is counting down.
func (t *Timer) Running() bool { return t.state == Running }

// Stopped reports whether the Timer is stopped and not paused.
func (t *Timer) Stopped() bool { return t.state == Stopped }

// Paused reports whether the Timer is paused.
func (t *Timer) Paused() bool { return t.state == Paused }

// Duration returns the configured run length.
func (t *Timer) Duration() time.Duration {
	return time.Duration(t.duration) * time.Millisecond
}

// Remaining returns the time left before expiry, or the time the next Start
// will run for when not running.
func (t *Timer) Remaining() time.Duration {
	if t.state != Running {
		return time.Duration(t.remaining) * time.Millisecond
	}
	return time.Duration(max(t.deadline-t.src.Millis(), 0)) * time.Millisecond
}

// Elapsed returns the time since the last Start, or zero when not running.
func (t *Timer) Elapsed() time.Duration {
	if t.state != Running {
		return 0
	}
	return time.Duration(t.src.Millis()-t.startedAt) * time.Millisecond
}

// Deadline returns the local millisecond reading at which a running Timer
// expires, or zero.
func (t *Timer) Deadline() int64 { return t.deadline }

// PauseDeadline returns the local millisecond reading at which a pause
// ends, or zero.
func (t *Timer) PauseDeadline() int64 { return t.pauseDeadline }
