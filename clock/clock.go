package clock

import "time"

// Clock provides wall-clock time. Implementations may correct for
// system clock drift (e.g. via SNTP).
type Clock interface {
	Now() time.Time
}

// System returns a Clock backed by time.Now().
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Local is a free-running millisecond counter. It must never run
// backwards and is never reset for the lifetime of the process.
type Local interface {
	Millis() int64
}

// Monotonic returns a Local counting milliseconds since the call, read
// from the runtime's monotonic clock.
func Monotonic() Local {
	return monotonic{start: time.Now()}
}

type monotonic struct {
	start time.Time
}

func (m monotonic) Millis() int64 {
	return time.Since(m.start).Milliseconds()
}
