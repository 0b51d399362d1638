package sysclock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tnicklin/sysclock/sntp"
)

const meterName = "github.com/tnicklin/sysclock/sysclock"

type metrics struct {
	attempts metric.Int64Counter
	offset   metric.Float64Histogram
}

func newMetrics(m metric.Meter) metrics {
	if m == nil {
		m = otel.Meter(meterName)
	}
	var out metrics
	out.attempts, _ = m.Int64Counter("sysclock_sync_attempts_total",
		metric.WithDescription("Total SNTP exchanges by outcome"))
	out.offset, _ = m.Float64Histogram("sysclock_sync_offset_seconds",
		metric.WithDescription("Clock offset measured by successful exchanges"),
		metric.WithUnit("s"))
	return out
}

func (m metrics) record(res sntp.Result) {
	ctx := context.Background()
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", res.Status.String())))
	if res.Status == sntp.Success {
		m.offset.Record(ctx, res.Offset.Duration().Seconds())
	}
}
