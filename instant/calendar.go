package instant

// primeYear is the year of the prime epoch.
const primeYear = 1900

var daysPerMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// MonthNames holds three-letter month abbreviations, January first.
var MonthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Date is a Gregorian calendar date.
type Date struct {
	Month int // 1..12
	Day   int // 1..31
	Year  int // >= 0
}

// Time is a time of day with a binary fraction of a second.
type Time struct {
	Hour     int // 0..23
	Min      int // 0..59
	Sec      int // 0..59
	Fraction uint32
}

// NewDate returns a Date with out-of-range fields clamped to the nearest
// valid value. The day is clamped against the length of the clamped month.
func NewDate(month, day, year int) Date {
	d := Date{
		Month: clamp(month, 1, 12),
		Year:  max(year, 0),
	}
	d.Day = clamp(day, 1, DaysInMonth(d.Month, d.Year))
	return d
}

// NewTime returns a Time with out-of-range fields clamped.
func NewTime(hour, min, sec int, fraction uint32) Time {
	return Time{
		Hour:     clamp(hour, 0, 23),
		Min:      clamp(min, 0, 59),
		Sec:      clamp(sec, 0, 59),
		Fraction: fraction,
	}
}

// IsLeapYear applies the Gregorian leap year rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInYear returns 366 for leap years and 365 otherwise.
func DaysInYear(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

// DaysInMonth returns the number of days in month (1..12) of year.
func DaysInMonth(month, year int) int {
	month = clamp(month, 1, 12)
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return daysPerMonth[month-1]
}

func secondsInYear(year int) int64 {
	return int64(DaysInYear(year)) * SecondsPerDay
}

// FromCalendar converts a UTC date and time of day to an Instant. Years
// before 1900 yield negative seconds, so Dec 31, 1899 23:59:59 is -1.
func FromCalendar(d Date, t Time) Instant {
	var secs int64
	if d.Year < primeYear {
		for y := primeYear - 1; y > d.Year; y-- {
			secs -= secondsInYear(y)
		}
	} else {
		for y := primeYear; y < d.Year; y++ {
			secs += secondsInYear(y)
		}
	}

	var within int64
	for m := 1; m < d.Month; m++ {
		within += int64(DaysInMonth(m, d.Year)) * SecondsPerDay
	}
	within += int64(d.Day-1) * SecondsPerDay
	within += int64(t.Hour)*3600 + int64(t.Min)*60 + int64(t.Sec)

	if d.Year < primeYear {
		secs -= secondsInYear(d.Year) - within
	} else {
		secs += within
	}
	return Instant{secs: secs, frac: t.Fraction}
}

// ToCalendar decomposes seconds from the prime epoch into a UTC date and
// time of day. The returned Time has a zero fraction.
func ToCalendar(secs int64) (Date, Time) {
	year := primeYear
	rem := secs
	if secs < 0 {
		year = primeYear - 1
		for rem < -secondsInYear(year) {
			rem += secondsInYear(year)
			year--
		}
		// Count forward from Jan 1 of the containing year.
		rem += secondsInYear(year)
	} else {
		for rem >= secondsInYear(year) {
			rem -= secondsInYear(year)
			year++
		}
	}

	days := int(rem / SecondsPerDay)
	month := 1
	for month < 12 && days >= DaysInMonth(month, year) {
		days -= DaysInMonth(month, year)
		month++
	}

	daySecs := rem % SecondsPerDay
	return Date{Month: month, Day: days + 1, Year: year}, Time{
		Hour: int(daySecs / 3600),
		Min:  int(daySecs / 60 % 60),
		Sec:  int(daySecs % 60),
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
