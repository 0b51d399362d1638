package instant

import "math"

const (
	// MaxTimezoneHours bounds a timezone offset in either direction.
	MaxTimezoneHours = 14

	quarterHour = 900
)

// TimezoneOffset converts an offset in hours into seconds. Hours are clamped
// to [-14, +14] and rounded to the nearest quarter hour, so 5.3 becomes
// 5h15m and -3.6 becomes -3h30m.
func TimezoneOffset(hours float64) int32 {
	if math.IsNaN(hours) {
		return 0
	}
	hours = math.Max(-MaxTimezoneHours, math.Min(MaxTimezoneHours, hours))
	quarters := math.Round(hours * 4)
	return int32(quarters) * quarterHour
}

// ShiftHours returns i shifted by the quantized timezone offset. The
// fraction is never touched.
func (i Instant) ShiftHours(hours float64) Instant {
	return i.AddSeconds(int64(TimezoneOffset(hours)))
}
