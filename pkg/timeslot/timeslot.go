// Package timeslot provides the clock, interval and date-range primitives the
// scheduling engine uses to decide whether two trips collide.
//
// Intervals are half-open: [Start, End). Two back-to-back trips where the
// first ends exactly when the second starts never overlap.
package timeslot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ─── Clock ──────────────────────────────────────────────────

// Clock is a wall-clock time of day stored as minutes since midnight.
type Clock int

const (
	// MinutesPerDay is the number of minutes in a calendar day.
	MinutesPerDay = 24 * 60

	// EndOfDay is the conventional end for a trip with no return time.
	EndOfDay Clock = 23*60 + 59
)

// ParseClock parses "HH:MM" (or "HH:MM:SS", seconds ignored).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timeslot: invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("timeslot: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("timeslot: invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for constants and tests.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the clock as "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock shifted by d, clamped to the same day.
func (c Clock) Add(d time.Duration) Clock {
	n := int(c) + int(d/time.Minute)
	if n < 0 {
		return 0
	}
	if n > int(EndOfDay) {
		return EndOfDay
	}
	return Clock(n)
}

// MarshalJSON encodes the clock as "HH:MM".
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts "HH:MM". JSON null leaves the clock unchanged.
func (c *Clock) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ─── Interval ───────────────────────────────────────────────

// Interval is a half-open span of one day: [Start, End).
type Interval struct {
	Start Clock
	End   Clock
}

// Span builds the interval for a trip. A nil end is treated as open until
// EndOfDay, which is conservative and can over-report conflicts.
func Span(start Clock, end *Clock) Interval {
	if end == nil {
		return OpenEnded(start)
	}
	return Interval{Start: start, End: *end}
}

// OpenEnded is the interval of a trip with no return time: [start, EndOfDay).
// A pickup at EndOfDay itself runs to midnight so the interval is never empty.
func OpenEnded(start Clock) Interval {
	return Interval{Start: start, End: max(EndOfDay, start+1)}
}

// Duration returns the length of the interval, or zero if it is inverted.
func (i Interval) Duration() time.Duration {
	if i.End <= i.Start {
		return 0
	}
	return time.Duration(i.End-i.Start) * time.Minute
}

// Overlaps reports whether a and b share any instant.
// Symmetric: Overlaps(a, b) == Overlaps(b, a).
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// ─── Dates ──────────────────────────────────────────────────

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD" into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeslot: invalid date %q", s)
	}
	return t, nil
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// DateRange is an inclusive span of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether date falls within [Start, End], inclusive on both ends.
func (r DateRange) Contains(date time.Time) bool {
	d := Day(date)
	return !d.Before(Day(r.Start)) && !d.After(Day(r.End))
}

// Days returns every date in the range in order. An inverted range yields nil.
func (r DateRange) Days() []time.Time {
	start, end := Day(r.Start), Day(r.End)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len returns the number of days in the range.
func (r DateRange) Len() int {
	start, end := Day(r.Start), Day(r.End)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
