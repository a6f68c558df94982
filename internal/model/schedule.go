package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shiva/fleetops/pkg/timeslot"
)

// Weekday enumerates the seven keys of a recurring schedule.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayKeys = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// String returns the lower-case schedule key ("monday", ...).
func (w Weekday) String() string {
	if w < Sunday || w > Saturday {
		return "unknown"
	}
	return weekdayKeys[w]
}

// WeekdayOf resolves the schedule key for a calendar date.
func WeekdayOf(date time.Time) Weekday {
	return Weekday(date.Weekday())
}

// DaySchedule is one weekday's template on a customer record.
type DaySchedule struct {
	Destination   string          `json:"destination"`
	MorningTime   *timeslot.Clock `json:"morningTime,omitempty"`
	AfternoonTime *timeslot.Clock `json:"afternoonTime,omitempty"`
	Fare          float64         `json:"fare,omitempty"`
}

// UnmarshalJSON decodes the loosely typed JSONB entry. Empty or null times
// are unset, and the fare may be a number or a numeric string.
func (d *DaySchedule) UnmarshalJSON(b []byte) error {
	var raw struct {
		Destination   string          `json:"destination"`
		MorningTime   *string         `json:"morningTime"`
		AfternoonTime *string         `json:"afternoonTime"`
		Fare          json.RawMessage `json:"fare"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	morning, err := optionalClock("morningTime", raw.MorningTime)
	if err != nil {
		return err
	}
	afternoon, err := optionalClock("afternoonTime", raw.AfternoonTime)
	if err != nil {
		return err
	}
	fare, err := parseFare(raw.Fare)
	if err != nil {
		return err
	}

	*d = DaySchedule{
		Destination:   strings.TrimSpace(raw.Destination),
		MorningTime:   morning,
		AfternoonTime: afternoon,
		Fare:          fare,
	}
	return nil
}

func optionalClock(field string, s *string) (*timeslot.Clock, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	c, err := timeslot.ParseClock(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &c, nil
}

func parseFare(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("fare: %s is not a number", raw)
	}
	if s = strings.TrimSpace(s); s == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("fare: %q is not a number", s)
	}
	return n, nil
}

// Configured reports whether the day has a destination to travel to.
func (d *DaySchedule) Configured() bool {
	return d != nil && d.Destination != ""
}

// RecurringSchedule is the per-weekday template stored as JSONB on the
// customer. Each weekday is a named field so the shape is fixed.
type RecurringSchedule struct {
	Monday    *DaySchedule `json:"monday,omitempty"`
	Tuesday   *DaySchedule `json:"tuesday,omitempty"`
	Wednesday *DaySchedule `json:"wednesday,omitempty"`
	Thursday  *DaySchedule `json:"thursday,omitempty"`
	Friday    *DaySchedule `json:"friday,omitempty"`
	Saturday  *DaySchedule `json:"saturday,omitempty"`
	Sunday    *DaySchedule `json:"sunday,omitempty"`
}

// Day returns the entry for w, or nil.
func (s *RecurringSchedule) Day(w Weekday) *DaySchedule {
	switch w {
	case Monday:
		return s.Monday
	case Tuesday:
		return s.Tuesday
	case Wednesday:
		return s.Wednesday
	case Thursday:
		return s.Thursday
	case Friday:
		return s.Friday
	case Saturday:
		return s.Saturday
	case Sunday:
		return s.Sunday
	}
	return nil
}

// IsEmpty reports whether no weekday has a destination.
func (s *RecurringSchedule) IsEmpty() bool {
	for w := Sunday; w <= Saturday; w++ {
		if s.Day(w).Configured() {
			return false
		}
	}
	return true
}
