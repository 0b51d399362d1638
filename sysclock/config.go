package sysclock

import (
	"time"

	"github.com/tnicklin/sysclock/instant"
)

const (
	DefaultResyncMinutes = 60
	MinResyncMinutes     = 15
	MaxResyncMinutes     = 1440

	// DefaultRetryInitial is the first retry delay after a failed sync.
	DefaultRetryInitial = 30 * time.Second
)

// DefaultInitTime is the clock value before the first sync,
// Jan 1, 2024 00:00:00 UTC.
var DefaultInitTime = instant.New(instant.Jan1st2024, 0)

// Config configures a SystemClock. Out of range values are clamped.
type Config struct {
	ResyncMinutes int     `yaml:"resync_minutes"`
	TimezoneHours float64 `yaml:"timezone_hours"`
	// ManualSync disables the sync timer; the clock then syncs only when a
	// read finds it stale.
	ManualSync bool `yaml:"manual_sync"`
	// InitTime is an RFC 3339 time used before the first sync.
	InitTime string `yaml:"init_time"`
}

// Defaults returns the default clock configuration.
func (Config) Defaults() Config {
	return Config{
		ResyncMinutes: DefaultResyncMinutes,
		InitTime:      DefaultInitTime.Time().Format(time.RFC3339),
	}
}

// InitInstant parses InitTime, falling back to DefaultInitTime when it is
// empty or malformed.
func (c Config) InitInstant() instant.Instant {
	if c.InitTime == "" {
		return DefaultInitTime
	}
	t, err := time.Parse(time.RFC3339Nano, c.InitTime)
	if err != nil {
		return DefaultInitTime
	}
	return instant.FromTime(t)
}

func clampResync(minutes int) int {
	return max(MinResyncMinutes, min(minutes, MaxResyncMinutes))
}
