package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayBoundaries(t *testing.T) {
	kathmandu := time.FixedZone("NPT", 5*3600+45*60)

	ts := time.Date(2024, 3, 10, 17, 45, 12, 0, kathmandu)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, kathmandu), StartOfDay(ts))
	assert.Equal(t, time.Date(2024, 3, 10, 23, 59, 59, int(999*time.Millisecond), kathmandu), EndOfDay(ts))
	assert.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, kathmandu), AddDays(ts, 30))
	assert.Equal(t, time.Date(2024, 2, 25, 0, 0, 0, 0, kathmandu), AddDays(ts, -14))
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(from, from.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysBetween(from, from.Add(24*time.Hour)))
	assert.Equal(t, -1, DaysBetween(from, from.Add(-time.Hour)))
	assert.Equal(t, 59, DaysBetween(from, from.AddDate(0, 0, 59)))
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, AgeInYears(time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 30, AgeInYears(time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 23, AgeInMonths(time.Date(2022, 7, 30, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 24, AgeInMonths(time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{name: "calendar date", input: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "slashes", input: "2024/3/1", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "rfc3339", input: "2024-03-01T10:00:00Z", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ok: true},
		{name: "date with time suffix", input: "2024-03-01 10:00", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "empty", input: "", ok: false},
		{name: "not a date", input: "NaN", ok: false},
		{name: "day overflow", input: "2024-02-31", ok: false},
		{name: "month out of range", input: "2024-13-01", ok: false},
		{name: "short year", input: "24-03-01", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, time.UTC)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
			}
		})
	}
}
