// Package sysclock keeps a best-known UTC estimate that is extrapolated from
// a free-running local clock and periodically corrected over SNTP.
//
// A read returns the stored Timestamp materialized against the local clock
// unless the estimate has gone stale, in which case the read runs one
// blocking exchange first. Scheduled syncs happen from Poll, which drives
// an internal timer.Timer; nothing in this package starts a goroutine.
package sysclock

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"

	"github.com/tnicklin/sysclock/clock"
	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/logger"
	"github.com/tnicklin/sysclock/sntp"
	"github.com/tnicklin/sysclock/timer"
)

// Syncer runs one offset exchange against ref. *sntp.Client implements it.
type Syncer interface {
	Sync(ref clock.Timestamp) sntp.Result
}

var (
	_ Syncer      = (*sntp.Client)(nil)
	_ clock.Clock = (*SystemClock)(nil)
)

// Status is a snapshot of the sync state.
type Status struct {
	Synced              bool
	ScheduledSync       bool
	ResyncInterval      time.Duration
	LastSync            instant.Instant
	NextSync            instant.Instant
	LastOffset          instant.Instant
	LastStatus          sntp.Status
	Attempts            int
	ConsecutiveFailures int
}

// SystemClock is the synchronized clock. Its methods are safe for
// concurrent use; exchanges are serialized and each one blocks for at most
// the client's timeout.
type SystemClock struct {
	client  Syncer
	src     clock.Local
	logger  logger.Logger
	metrics metrics
	retry   backoff.BackOff

	mu            sync.Mutex
	initTime      instant.Instant
	sysTime       clock.Timestamp
	start         instant.Instant
	synced        bool
	lastSync      instant.Instant
	nextSync      instant.Instant
	scheduled     bool // nextSync has been set
	resyncMinutes int
	tzOffset      int32
	manual        bool
	timer         *timer.Timer

	lastOffset instant.Instant
	lastStatus sntp.Status
	attempts   int
	failures   int

	onSync  func(sntp.Result)
	pending []sntp.Result
}

// Params configures a SystemClock. Client is required.
type Params struct {
	Config Config
	Client Syncer
	// Clock defaults to clock.Monotonic.
	Clock  clock.Local
	Logger logger.Logger
	// Meter defaults to the global otel meter provider.
	Meter metric.Meter
	// Retry spaces out attempts after failed exchanges. The default is
	// exponential from DefaultRetryInitial, capped at the resync interval.
	Retry backoff.BackOff
	// InitTime overrides Config.InitTime when non-zero.
	InitTime instant.Instant
}

// New creates a SystemClock holding the initialization time. Unless
// Config.ManualSync is set the sync timer starts immediately; no exchange
// runs until the first read or the first timer expiry.
func New(p Params) *SystemClock {
	c := &SystemClock{
		client:        p.Client,
		src:           p.Clock,
		logger:        p.Logger,
		metrics:       newMetrics(p.Meter),
		retry:         p.Retry,
		initTime:      p.InitTime,
		resyncMinutes: DefaultResyncMinutes,
		manual:        p.Config.ManualSync,
		tzOffset:      instant.TimezoneOffset(p.Config.TimezoneHours),
	}
	if c.src == nil {
		c.src = clock.Monotonic()
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if p.Config.ResyncMinutes != 0 {
		c.resyncMinutes = clampResync(p.Config.ResyncMinutes)
	}
	if c.retry == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = DefaultRetryInitial
		eb.MaxInterval = c.interval()
		eb.MaxElapsedTime = 0
		eb.Reset()
		c.retry = eb
	}
	if c.initTime.IsZero() {
		c.initTime = p.Config.InitInstant()
	}
	c.sysTime = clock.Stamp(c.initTime, c.src)

	c.timer = timer.New(c.src)
	c.timer.SetHandler(func() {
		c.sync()
		if !c.manual {
			c.timer.Start()
		}
	})
	c.resetSyncTimer(c.interval())
	return c
}

// OnSync installs a hook that receives every exchange result, successful
// or not. It runs after the clock's lock is released, on the goroutine
// that triggered the exchange.
func (c *SystemClock) OnSync(fn func(sntp.Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSync = fn
}

// CurrentTime returns the UTC estimate, syncing first if no sync has
// succeeded yet or the estimate is past the next scheduled sync.
func (c *SystemClock) CurrentTime() instant.Instant {
	c.mu.Lock()
	now := c.sysTime.Materialize(c.src)
	if !c.scheduled || now.After(c.nextSync) {
		now = c.sync()
	}
	done := c.takePending()
	c.mu.Unlock()

	c.dispatch(done)
	return now
}

// ForceSync runs an exchange regardless of the schedule and returns its
// result.
func (c *SystemClock) ForceSync() sntp.Result {
	c.mu.Lock()
	c.sync()
	done := c.takePending()
	c.mu.Unlock()

	c.dispatch(done)
	return done[len(done)-1]
}

// LocalTime is CurrentTime shifted by the timezone offset.
func (c *SystemClock) LocalTime() instant.Instant {
	return c.ToLocal(c.CurrentTime())
}

// ToLocal shifts a UTC Instant by the timezone offset.
func (c *SystemClock) ToLocal(utc instant.Instant) instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utc.AddSeconds(int64(c.tzOffset))
}

// Now returns CurrentTime as a time.Time so the clock can stand in for
// clock.Clock.
func (c *SystemClock) Now() time.Time {
	return c.CurrentTime().Time()
}

// Poll advances the sync timer and runs a scheduled exchange when it
// expires. Call it from the application's main loop.
func (c *SystemClock) Poll() {
	c.mu.Lock()
	c.timer.Poll()
	done := c.takePending()
	c.mu.Unlock()

	c.dispatch(done)
}

// SetResyncInterval sets the sync interval in minutes, clamped to
// [15, 1440], and reschedules the next sync from the last one.
func (c *SystemClock) SetResyncInterval(minutes int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resyncMinutes = clampResync(minutes)
	if eb, ok := c.retry.(*backoff.ExponentialBackOff); ok {
		eb.MaxInterval = c.interval()
	}
	if c.synced {
		c.nextSync = c.lastSync.AddSeconds(int64(c.resyncMinutes) * 60)
	}
	c.resetSyncTimer(c.interval())
}

// ResyncInterval returns the sync interval.
func (c *SystemClock) ResyncInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval()
}

// SetTimezoneHours sets the timezone offset, clamped to ±14 hours and
// rounded to the nearest quarter hour.
func (c *SystemClock) SetTimezoneHours(hours float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tzOffset = instant.TimezoneOffset(hours)
}

// TimezoneOffset returns the timezone offset in seconds.
func (c *SystemClock) TimezoneOffset() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tzOffset
}

// TimezoneHours returns the timezone offset in hours.
func (c *SystemClock) TimezoneHours() float64 {
	return float64(c.TimezoneOffset()) / 3600
}

// EnableScheduledSync turns the sync timer on or off. Toggling resets the
// timer so the change takes effect from the next full interval.
func (c *SystemClock) EnableScheduledSync(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on == !c.manual {
		return
	}
	c.manual = !on
	c.resetSyncTimer(c.interval())
}

// ScheduledSync reports whether the sync timer is enabled.
func (c *SystemClock) ScheduledSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.manual
}

// Reset discards the sync history and reverts to the initialization time.
func (c *SystemClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sysTime = clock.Stamp(c.initTime, c.src)
	c.start = instant.Instant{}
	c.synced = false
	c.scheduled = false
	c.lastSync = instant.Instant{}
	c.nextSync = instant.Instant{}
	c.lastOffset = instant.Instant{}
	c.lastStatus = 0
	c.failures = 0
	c.retry.Reset()
	c.resetSyncTimer(c.interval())
}

// Initialize sets the initialization time and restarts the estimate from
// it. The sync history is kept.
func (c *SystemClock) Initialize(i instant.Instant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initTime = i
	c.sysTime = clock.Stamp(i, c.src)
}

// InitializationTime returns the value the clock starts from.
func (c *SystemClock) InitializationTime() instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initTime
}

// StartTime returns the UTC time of the first successful sync, or zero.
func (c *SystemClock) StartTime() instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}

// LastSync returns the UTC time of the last successful sync, or zero.
func (c *SystemClock) LastSync() instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// NextSync returns the UTC time after which a read resyncs, or zero when
// nothing is scheduled.
func (c *SystemClock) NextSync() instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextSync
}

// LastOffset returns the offset applied by the last successful sync.
func (c *SystemClock) LastOffset() instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOffset
}

// Status returns a snapshot of the sync state.
func (c *SystemClock) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Synced:              c.synced,
		ScheduledSync:       !c.manual,
		ResyncInterval:      c.interval(),
		LastSync:            c.lastSync,
		NextSync:            c.nextSync,
		LastOffset:          c.lastOffset,
		LastStatus:          c.lastStatus,
		Attempts:            c.attempts,
		ConsecutiveFailures: c.failures,
	}
}

func (c *SystemClock) interval() time.Duration {
	return time.Duration(c.resyncMinutes) * time.Minute
}

// sync runs one exchange and applies it. c.mu must be held.
func (c *SystemClock) sync() instant.Instant {
	res := c.client.Sync(c.sysTime)
	c.attempts++
	c.lastStatus = res.Status
	c.metrics.record(res)
	c.pending = append(c.pending, res)

	if res.Status != sntp.Success {
		c.failures++
		now := res.Updated.Materialize(c.src)
		delay := c.retryDelay()
		c.nextSync = now.Add(instant.FromDuration(delay))
		c.scheduled = true
		c.resetSyncTimer(delay)
		c.logger.WarnW("clock sync failed, keeping local estimate",
			"session", res.ID.String(),
			"server", res.Server,
			"status", res.Status.String(),
			"error", res.Err,
			"failures", c.failures,
			"retry_in", delay,
		)
		return now
	}

	c.sysTime = res.Updated
	if !c.synced {
		c.start = res.Updated.Instant()
	}
	c.synced = true
	c.lastSync = res.Updated.Instant()
	c.nextSync = c.lastSync.AddSeconds(int64(c.resyncMinutes) * 60)
	c.scheduled = true
	c.lastOffset = res.Offset
	c.failures = 0
	c.retry.Reset()
	c.resetSyncTimer(c.interval())

	c.logger.InfoW("clock synchronized",
		"session", res.ID.String(),
		"server", res.Server,
		"offset", res.Offset.Duration(),
		"stratum", res.Packet.Stratum,
	)
	return c.sysTime.Materialize(c.src)
}

// retryDelay returns the wait before the next attempt after a failure,
// never longer than the resync interval.
func (c *SystemClock) retryDelay() time.Duration {
	d := c.retry.NextBackOff()
	if d == backoff.Stop || d > c.interval() {
		return c.interval()
	}
	return max(d, 0)
}

// resetSyncTimer rearms the timer for d, starting it only when scheduled
// sync is on.
func (c *SystemClock) resetSyncTimer(d time.Duration) {
	c.timer.Configure(d)
	c.timer.Reset()
	if !c.manual {
		c.timer.Start()
	}
}

func (c *SystemClock) takePending() []sntp.Result {
	done := c.pending
	c.pending = nil
	return done
}

func (c *SystemClock) dispatch(results []sntp.Result) {
	if len(results) == 0 {
		return
	}
	c.mu.Lock()
	fn := c.onSync
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, r := range results {
		fn(r)
	}
}
