package timeline

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Day is the length of a calendar day in elapsed-time computations.
const Day = 24 * time.Hour

// StartOfDay returns midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last millisecond of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// AddDays returns midnight of t shifted by days calendar days.
func AddDays(t time.Time, days int) time.Time {
	return StartOfDay(t).AddDate(0, 0, days)
}

// DaysBetween returns the whole number of elapsed days from from to to,
// rounded down.
func DaysBetween(from, to time.Time) int {
	return int(math.Floor(float64(to.Sub(from)) / float64(Day)))
}

// AgeInYears returns floor(days since dob / 365).
func AgeInYears(dob, now time.Time) int {
	days := math.Abs(float64(now.Sub(dob)) / float64(Day))
	return int(math.Floor(days / 365))
}

// AgeInMonths returns the calendar month difference between dob and now,
// ignoring the day of month.
func AgeInMonths(dob, now time.Time) int {
	return int(now.Month()) - int(dob.Month()) + 12*(now.Year()-dob.Year())
}

// ParseDate reads a date-like field. It accepts RFC 3339 instants and
// calendar dates whose year, month and day are separated by any non-digit
// characters (2024-03-01, 2024/3/1). Calendar dates are placed at midnight in
// loc. The second result is false when the text is not a date; each caller
// documents its own fallback.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), true
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if len(parts) < 3 {
		return time.Time{}, false
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || len(parts[0]) != 4 {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
