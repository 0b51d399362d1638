package clock

import "github.com/tnicklin/sysclock/instant"

// Timestamp pairs an Instant with the local millisecond reading taken when
// it was captured. The Instant is extrapolated forward by the local clock
// on demand; the capture itself is never modified.
type Timestamp struct {
	instant  instant.Instant
	captured int64
}

// Stamp captures i against the current reading of src.
func Stamp(i instant.Instant, src Local) Timestamp {
	return Timestamp{instant: i, captured: src.Millis()}
}

// StampAt captures i against an explicit local reading.
func StampAt(i instant.Instant, millis int64) Timestamp {
	return Timestamp{instant: i, captured: millis}
}

// Instant returns the captured Instant.
func (t Timestamp) Instant() instant.Instant { return t.instant }

// CapturedAt returns the local millisecond reading at capture.
func (t Timestamp) CapturedAt() int64 { return t.captured }

// Materialize returns the captured Instant advanced by the local
// milliseconds elapsed since capture.
func (t Timestamp) Materialize(src Local) instant.Instant {
	return t.MaterializeAt(src.Millis())
}

// MaterializeAt is Materialize against an explicit local reading. Readings
// earlier than the capture are treated as no elapsed time.
func (t Timestamp) MaterializeAt(millis int64) instant.Instant {
	elapsed := millis - t.captured
	if elapsed <= 0 {
		return t.instant
	}
	return t.instant.AddMillis(elapsed)
}

// Restamp materializes t and captures the result against the same reading.
func (t Timestamp) Restamp(src Local) Timestamp {
	now := src.Millis()
	return Timestamp{instant: t.MaterializeAt(now), captured: now}
}

// Shift returns t with off added to the Instant, keeping the capture.
// Clock offsets and timezone adjustments are applied this way.
func (t Timestamp) Shift(off instant.Instant) Timestamp {
	return Timestamp{instant: t.instant.Add(off), captured: t.captured}
}
