// Package instant implements a fixed-point point in time on the NTP time
// scale: a signed 64-bit count of seconds from the prime epoch
// (0h Jan 1, 1900 UTC) plus an unsigned 32-bit binary fraction of a second.
//
// The fraction is always a non-negative offset from Seconds, including
// before the prime epoch, so -0.25s is represented as {-1, 0xC0000000}.
// All arithmetic is integer and exact; Float64 is a read-only view.
//
// The 64-bit seconds field folds a signed 32-bit era and an unsigned 32-bit
// era offset together:
//
//	era    offset        seconds       date/time (UTC)
//	 0     3913056000    3913056000    Jan 1,  2024 00:00:00
//	 0     4294967295    4294967295    Feb 7,  2036 06:28:15
//	 1     0             4294967296    Feb 7,  2036 06:28:16
//	-1     4294967295    -1            Dec 31, 1899 23:59:59
//	-1     0             -4294967296   Nov 24, 1763 17:31:44
package instant

import (
	"math"
	"math/bits"
	"time"
)

const (
	// EraSeconds is the length of one era, 2^32 seconds (about 136 years).
	EraSeconds int64 = 1 << 32

	// SecondsIn68Years bounds how far apart a client and server era offset
	// may be before they are treated as straddling an era boundary.
	SecondsIn68Years int64 = 2144448000

	// SecondsPerDay is the number of seconds in a civil day.
	SecondsPerDay int64 = 86400

	// UnixOffset is the number of seconds between the prime epoch and the
	// Unix epoch.
	UnixOffset int64 = 2208988800

	// Jan1st2024 is the seconds value of Jan 1, 2024 00:00:00 UTC.
	Jan1st2024 int64 = 3913056000

	fracScale = float64(EraSeconds)
)

// Instant is an immutable point in time on the NTP time scale. The zero
// value is the prime epoch.
type Instant struct {
	secs int64
	frac uint32
}

// New returns the Instant secs + frac/2^32 seconds after the prime epoch.
func New(secs int64, frac uint32) Instant {
	return Instant{secs: secs, frac: frac}
}

// FromEra composes an Instant from an era, an era offset and a fraction.
func FromEra(era int32, offset uint32, frac uint32) Instant {
	return Instant{secs: int64(era)*EraSeconds + int64(offset), frac: frac}
}

// FromTime converts a time.Time to an Instant. Sub-nanosecond precision is
// truncated.
func FromTime(t time.Time) Instant {
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return Instant{secs: t.Unix() + UnixOffset, frac: uint32(frac)}
}

// FromDuration converts a signed duration to an Instant measured from the
// prime epoch, which is how offsets are represented.
func FromDuration(d time.Duration) Instant {
	secs := int64(d / time.Second)
	nanos := int64(d % time.Second)
	if nanos < 0 {
		secs--
		nanos += int64(time.Second)
	}
	frac := (uint64(nanos) << 32) / uint64(time.Second)
	return Instant{secs: secs, frac: uint32(frac)}
}

// Seconds returns the whole seconds from the prime epoch.
func (i Instant) Seconds() int64 { return i.secs }

// Fraction returns the binary fraction in units of 1/2^32 s.
func (i Instant) Fraction() uint32 { return i.frac }

// Era returns floor(Seconds / 2^32).
func (i Instant) Era() int32 {
	// Arithmetic shift rounds toward negative infinity.
	return int32(i.secs >> 32)
}

// EraOffset returns Seconds - Era*2^32, always in [0, 2^32).
func (i Instant) EraOffset() uint32 {
	return uint32(uint64(i.secs) & math.MaxUint32)
}

// IsZero reports whether i is the prime epoch exactly.
func (i Instant) IsZero() bool { return i.secs == 0 && i.frac == 0 }

// Compare returns -1, 0 or +1 ordering first by seconds, then by fraction.
func (i Instant) Compare(o Instant) int {
	switch {
	case i.secs < o.secs:
		return -1
	case i.secs > o.secs:
		return 1
	case i.frac < o.frac:
		return -1
	case i.frac > o.frac:
		return 1
	}
	return 0
}

// Before reports whether i is earlier than o.
func (i Instant) Before(o Instant) bool { return i.Compare(o) < 0 }

// After reports whether i is later than o.
func (i Instant) After(o Instant) bool { return i.Compare(o) > 0 }

// Equal reports whether i and o denote the same instant.
func (i Instant) Equal(o Instant) bool { return i == o }

// Add returns i + o. A fraction overflow carries exactly one second.
func (i Instant) Add(o Instant) Instant {
	sum, carry := bits.Add32(i.frac, o.frac, 0)
	return Instant{secs: i.secs + o.secs + int64(carry), frac: sum}
}

// Sub returns i - o.
func (i Instant) Sub(o Instant) Instant {
	return i.Add(o.Neg())
}

// Neg returns -i. The fraction is replaced by its complement and the
// seconds borrow one so the value stays continuous across zero.
func (i Instant) Neg() Instant {
	r := Instant{secs: -i.secs}
	if i.frac != 0 {
		r.frac = uint32(EraSeconds - int64(i.frac))
		r.secs--
	}
	return r
}

// Abs returns |i|.
func (i Instant) Abs() Instant {
	if i.secs < 0 {
		return i.Neg()
	}
	return i
}

// Div returns i/n rounded toward negative infinity at 2^-32 s resolution.
// It panics if n is zero.
func (i Instant) Div(n int32) Instant {
	if n == 0 {
		panic("instant: division by zero")
	}
	v, d := i, int64(n)
	if d < 0 {
		v, d = v.Neg(), -d
	}
	q, r := v.secs/d, v.secs%d
	if r < 0 {
		q--
		r += d
	}
	// r < d <= 2^31, so the remainder scaled by 2^32 fits in 64 bits.
	f := (uint64(r)<<32 | uint64(v.frac)) / uint64(d)
	return Instant{secs: q, frac: uint32(f)}
}

// AddSeconds shifts i by whole seconds, leaving the fraction untouched.
func (i Instant) AddSeconds(s int64) Instant {
	return Instant{secs: i.secs + s, frac: i.frac}
}

// AddMillis adds a non-negative count of milliseconds exactly.
func (i Instant) AddMillis(ms int64) Instant {
	if ms < 0 {
		return i.Sub(Instant{}.AddMillis(-ms))
	}
	secs := ms / 1000
	frac := (uint64(ms%1000) << 32) / 1000
	return i.Add(Instant{secs: secs, frac: uint32(frac)})
}

// Elapsed returns the absolute whole seconds between i and o.
func (i Instant) Elapsed(o Instant) uint64 {
	return uint64(i.Sub(o).Abs().secs)
}

// Float64 returns the seconds from the prime epoch as a float. Precision
// degrades for large eras; use it for display only.
func (i Instant) Float64() float64 {
	return float64(i.secs) + float64(i.frac)/fracScale
}

// Time converts i to a UTC time.Time, truncating to the nanosecond.
func (i Instant) Time() time.Time {
	nanos := (uint64(i.frac) * uint64(time.Second)) >> 32
	return time.Unix(i.secs-UnixOffset, int64(nanos)).UTC()
}

// Duration interprets i as a signed offset and converts it to a
// time.Duration, saturating at the representable bounds.
func (i Instant) Duration() time.Duration {
	const maxSecs = int64(math.MaxInt64/int64(time.Second)) - 1
	if i.secs > maxSecs {
		return time.Duration(math.MaxInt64)
	}
	if i.secs < -maxSecs {
		return time.Duration(math.MinInt64)
	}
	nanos := (uint64(i.frac) * uint64(time.Second)) >> 32
	return time.Duration(i.secs)*time.Second + time.Duration(nanos)
}

// Calendar decomposes i into a UTC date and time of day.
func (i Instant) Calendar() (Date, Time) {
	d, t := ToCalendar(i.secs)
	t.Fraction = i.frac
	return d, t
}
