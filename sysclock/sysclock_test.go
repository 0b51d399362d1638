package sysclock

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tnicklin/sysclock/clock/clocktest"
	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/logger"
	"github.com/tnicklin/sysclock/sntp"
)

var hour = instant.New(3600, 0)

func newTestClock(t *testing.T, cfg Config) (*SystemClock, *fakeSyncer, *clocktest.Manual) {
	t.Helper()
	src := clocktest.NewManual(0)
	f := &fakeSyncer{src: src, offset: hour}
	c := New(Params{
		Config: cfg,
		Client: f,
		Clock:  src,
		Retry:  backoff.NewConstantBackOff(time.Minute),
	})
	return c, f, src
}

func TestCurrentTimeSyncsOnlyWhenStale(t *testing.T) {
	c, f, src := newTestClock(t, Config{ResyncMinutes: 15, ManualSync: true})

	first := c.CurrentTime()
	require.Equal(t, 1, f.calls)
	assert.Equal(t, DefaultInitTime.Add(hour), first)

	src.Advance(10 * time.Minute)
	second := c.CurrentTime()
	assert.Equal(t, 1, f.calls, "read inside the interval must not sync")
	assert.Equal(t, first.AddSeconds(600), second)

	src.Advance(6 * time.Minute)
	c.CurrentTime()
	assert.Equal(t, 2, f.calls, "read past the interval must sync once")
}

func TestFailedSyncKeepsEstimate(t *testing.T) {
	c, f, src := newTestClock(t, Config{ManualSync: true})

	synced := c.CurrentTime()
	require.Equal(t, 1, f.calls)

	f.status = sntp.Timeout
	res := c.ForceSync()
	require.Equal(t, sntp.Timeout, res.Status)
	assert.True(t, res.Offset.IsZero())
	assert.ErrorIs(t, res.Err, sntp.ErrTimeout)

	assert.Equal(t, synced, c.CurrentTime())
	src.Advance(1500 * time.Millisecond)
	assert.Equal(t, synced.AddMillis(1500), c.CurrentTime())
	assert.Equal(t, 2, f.calls)

	st := c.Status()
	assert.True(t, st.Synced)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, sntp.Timeout, st.LastStatus)
	assert.Equal(t, hour, st.LastOffset)
}

func TestRetryWindowAfterFailure(t *testing.T) {
	src := clocktest.NewManual(0)
	f := &fakeSyncer{src: src, status: sntp.SendError}
	c := New(Params{
		Config: Config{ManualSync: true},
		Client: f,
		Clock:  src,
		Retry:  backoff.NewConstantBackOff(30 * time.Second),
	})

	assert.Equal(t, DefaultInitTime, c.CurrentTime())
	require.Equal(t, 1, f.calls)

	src.Advance(29 * time.Second)
	c.CurrentTime()
	assert.Equal(t, 1, f.calls, "retry inside the backoff window")

	src.Advance(2 * time.Second)
	c.CurrentTime()
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, 2, c.Status().ConsecutiveFailures)
	assert.False(t, c.Status().Synced)

	f.status = sntp.Success
	f.offset = hour
	src.Advance(31 * time.Second)
	got := c.CurrentTime()
	assert.Equal(t, 3, f.calls)
	assert.Equal(t, DefaultInitTime.AddSeconds(62).Add(hour), got)
	assert.Zero(t, c.Status().ConsecutiveFailures)
}

func TestZeroBackoffRetriesOnNextRead(t *testing.T) {
	src := clocktest.NewManual(0)
	f := &fakeSyncer{src: src, status: sntp.Timeout}
	c := New(Params{
		Config: Config{ManualSync: true},
		Client: f,
		Clock:  src,
		Retry:  &backoff.ZeroBackOff{},
	})

	c.CurrentTime()
	src.Advance(time.Millisecond)
	c.CurrentTime()
	assert.Equal(t, 2, f.calls)
}

func TestRetryDelayCappedAtInterval(t *testing.T) {
	src := clocktest.NewManual(0)
	f := &fakeSyncer{src: src, status: sntp.Timeout}
	c := New(Params{
		Config: Config{ManualSync: true, ResyncMinutes: 15},
		Client: f,
		Clock:  src,
		Retry:  backoff.NewConstantBackOff(24 * time.Hour),
	})

	c.CurrentTime()
	assert.Equal(t, DefaultInitTime.AddSeconds(15*60), c.NextSync())

	c.Reset()
	c.retry = &backoff.StopBackOff{}
	c.CurrentTime()
	assert.Equal(t, DefaultInitTime.AddSeconds(15*60), c.NextSync())
}

func TestScheduledSyncFromPoll(t *testing.T) {
	c, f, src := newTestClock(t, Config{ResyncMinutes: 15})
	require.True(t, c.ScheduledSync())

	c.Poll()
	assert.Zero(t, f.calls)

	src.Advance(15*time.Minute - time.Millisecond)
	c.Poll()
	assert.Zero(t, f.calls)

	src.Advance(time.Millisecond)
	c.Poll()
	assert.Equal(t, 1, f.calls)

	src.Advance(15 * time.Minute)
	c.Poll()
	c.Poll()
	assert.Equal(t, 2, f.calls, "timer rearms after each sync")
}

func TestScheduledSyncRetriesAfterFailure(t *testing.T) {
	c, f, src := newTestClock(t, Config{ResyncMinutes: 15})
	f.status = sntp.Timeout

	src.Advance(15 * time.Minute)
	c.Poll()
	require.Equal(t, 1, f.calls)

	// The timer is rearmed for the retry delay, not the full interval.
	src.Advance(time.Minute)
	c.Poll()
	assert.Equal(t, 2, f.calls)
}

func TestEnableScheduledSync(t *testing.T) {
	c, f, src := newTestClock(t, Config{ResyncMinutes: 15})

	src.Advance(10 * time.Minute)
	c.EnableScheduledSync(false)
	assert.False(t, c.ScheduledSync())

	src.Advance(time.Hour)
	c.Poll()
	assert.Zero(t, f.calls, "disabled timer must not sync")

	c.EnableScheduledSync(true)
	src.Advance(15*time.Minute - time.Millisecond)
	c.Poll()
	assert.Zero(t, f.calls, "re-enabled timer starts a full interval")
	src.Advance(time.Millisecond)
	c.Poll()
	assert.Equal(t, 1, f.calls)

	// Enabling an enabled timer does not restart the interval.
	src.Advance(10 * time.Minute)
	c.EnableScheduledSync(true)
	src.Advance(5 * time.Minute)
	c.Poll()
	assert.Equal(t, 2, f.calls)
}

func TestSetResyncIntervalClamps(t *testing.T) {
	c, _, _ := newTestClock(t, Config{ManualSync: true})
	assert.Equal(t, time.Hour, c.ResyncInterval())

	tests := []struct {
		in   int
		want time.Duration
	}{
		{5, 15 * time.Minute},
		{-1, 15 * time.Minute},
		{90, 90 * time.Minute},
		{5000, 24 * time.Hour},
	}
	for _, tt := range tests {
		c.SetResyncInterval(tt.in)
		assert.Equal(t, tt.want, c.ResyncInterval(), "SetResyncInterval(%d)", tt.in)
	}
}

func TestSetResyncIntervalReschedules(t *testing.T) {
	c, f, src := newTestClock(t, Config{ManualSync: true})
	c.CurrentTime()
	last := c.LastSync()
	assert.Equal(t, last.AddSeconds(3600), c.NextSync())

	c.SetResyncInterval(20)
	assert.Equal(t, last.AddSeconds(1200), c.NextSync())

	src.Advance(21 * time.Minute)
	c.CurrentTime()
	assert.Equal(t, 2, f.calls)
}

func TestTimezone(t *testing.T) {
	c, _, _ := newTestClock(t, Config{ManualSync: true, TimezoneHours: 5.5})
	assert.Equal(t, int32(19800), c.TimezoneOffset())

	utc := c.CurrentTime()
	assert.Equal(t, utc.AddSeconds(19800), c.LocalTime())

	c.SetTimezoneHours(-20)
	assert.Equal(t, -14.0, c.TimezoneHours())
	assert.Equal(t, utc.AddSeconds(-14*3600), c.ToLocal(utc))

	c.SetTimezoneHours(3.8)
	assert.Equal(t, 3.75, c.TimezoneHours())
}

func TestResetAndInitialize(t *testing.T) {
	c, f, src := newTestClock(t, Config{ManualSync: true})
	c.CurrentTime()
	require.True(t, c.Status().Synced)
	start := c.StartTime()
	assert.Equal(t, DefaultInitTime.Add(hour), start)

	src.Advance(time.Minute)
	c.CurrentTime()
	assert.Equal(t, start, c.StartTime(), "start time is the first sync only")

	c.Reset()
	st := c.Status()
	assert.False(t, st.Synced)
	assert.True(t, c.LastSync().IsZero())
	assert.True(t, c.StartTime().IsZero())

	f.status = sntp.Timeout
	assert.Equal(t, DefaultInitTime, c.CurrentTime(), "reset reverts to the initialization time")

	custom := instant.New(instant.Jan1st2024+86400, 0)
	c.Initialize(custom)
	assert.Equal(t, custom, c.InitializationTime())
	assert.Equal(t, custom, c.sysTime.Materialize(src))
}

func TestInitTimeFromParams(t *testing.T) {
	src := clocktest.NewManual(0)
	seed := instant.New(instant.Jan1st2024+7*86400, 0)
	c := New(Params{
		Config:   Config{ManualSync: true, InitTime: "2030-01-01T00:00:00Z"},
		Client:   &fakeSyncer{src: src, status: sntp.Timeout},
		Clock:    src,
		InitTime: seed,
	})
	assert.Equal(t, seed, c.InitializationTime())

	c = New(Params{
		Config: Config{ManualSync: true, InitTime: "2030-01-01T00:00:00Z"},
		Client: &fakeSyncer{src: src},
		Clock:  src,
	})
	want := instant.FromTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, want, c.InitializationTime())
}

func TestOnSyncHook(t *testing.T) {
	c, f, _ := newTestClock(t, Config{ManualSync: true})

	var got []sntp.Result
	c.OnSync(func(r sntp.Result) {
		// The hook may read the clock without deadlocking.
		_ = c.Status()
		got = append(got, r)
	})

	c.CurrentTime()
	f.status = sntp.Timeout
	c.ForceSync()

	require.Len(t, got, 2)
	assert.Equal(t, sntp.Success, got[0].Status)
	assert.Equal(t, sntp.Timeout, got[1].Status)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestNowMatchesCurrentTime(t *testing.T) {
	c, _, _ := newTestClock(t, Config{ManualSync: true})
	want := DefaultInitTime.Add(hour).Time()
	assert.True(t, c.Now().Equal(want), "Now() = %v, want %v", c.Now(), want)
}

func TestSyncLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := clocktest.NewManual(0)
	f := &fakeSyncer{src: src, offset: hour}
	c := New(Params{
		Config: Config{ManualSync: true},
		Client: f,
		Clock:  src,
		Logger: logger.FromZap(zap.New(core)),
		Retry:  backoff.NewConstantBackOff(time.Minute),
	})

	c.CurrentTime()
	f.status = sntp.Timeout
	c.ForceSync()

	info := logs.FilterMessage("clock synchronized").All()
	require.Len(t, info, 1)
	assert.Equal(t, "192.0.2.1", info[0].ContextMap()["server"])

	warn := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warn, 1)
	assert.Equal(t, "timeout", warn[0].ContextMap()["status"])
	assert.EqualValues(t, 1, warn[0].ContextMap()["failures"])
}

func TestSyncMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	src := clocktest.NewManual(0)
	f := &fakeSyncer{src: src, offset: instant.New(1, 1<<31)}
	c := New(Params{
		Config: Config{ManualSync: true},
		Client: f,
		Clock:  src,
		Meter:  provider.Meter("test"),
	})
	c.ForceSync()
	c.ForceSync()
	f.status = sntp.Timeout
	c.ForceSync()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	var offsets metricdata.Histogram[float64]
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "sysclock_sync_attempts_total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					status, _ := dp.Attributes.Value("status")
					counts[status.AsString()] += dp.Value
				}
			case "sysclock_sync_offset_seconds":
				h, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				offsets = h
			}
		}
	}
	assert.Equal(t, map[string]int64{"success": 2, "timeout": 1}, counts)
	require.Len(t, offsets.DataPoints, 1)
	assert.EqualValues(t, 2, offsets.DataPoints[0].Count)
	assert.InDelta(t, 3.0, offsets.DataPoints[0].Sum, 1e-9)
}

func TestEndToEndWithClient(t *testing.T) {
	src := clocktest.NewManual(0)
	server := &serverTransport{
		src:   src,
		base:  instant.New(instant.Jan1st2024+3*3600, 0),
		delay: 10 * time.Millisecond,
	}
	client := sntp.New(sntp.Params{
		Config:    sntp.Config{}.Defaults(),
		Transport: server,
		Clock:     src,
	})
	c := New(Params{Config: Config{ManualSync: true}, Client: client, Clock: src})

	got := c.CurrentTime()
	want := server.base.AddMillis(src.Millis())
	assert.InDelta(t, 0, got.Sub(want).Float64(), 0.001)
	assert.InDelta(t, 3*3600, c.LastOffset().Float64(), 0.001)
	assert.Equal(t, 1, server.opens)

	src.Advance(30 * time.Minute)
	got = c.CurrentTime()
	want = server.base.AddMillis(src.Millis())
	assert.InDelta(t, 0, got.Sub(want).Float64(), 0.001)
	assert.Equal(t, 1, server.opens)
}
