package timeslot

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", EndOfDay, false},
		{"10:30:00", 630, false},
		{"24:00", 0, true},
		{"9", 0, true},
		{"ab:cd", 0, true},
		{"12:60", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClockStringAndJSON(t *testing.T) {
	c := MustClock("07:05")
	if c.String() != "07:05" {
		t.Errorf("String() = %q, want 07:05", c.String())
	}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"07:05"` {
		t.Errorf("marshal = %s", b)
	}
	var back Clock
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != c {
		t.Errorf("round trip = %v, want %v", back, c)
	}
}

func TestOverlaps(t *testing.T) {
	span := func(a, b string) Interval {
		return Interval{Start: MustClock(a), End: MustClock(b)}
	}
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"back to back", span("10:00", "10:30"), span("10:30", "11:00"), false},
		{"partial overlap", span("10:00", "10:45"), span("10:30", "11:00"), true},
		{"contained", span("09:00", "12:00"), span("10:00", "10:15"), true},
		{"disjoint", span("08:00", "09:00"), span("13:00", "14:00"), false},
		{"identical", span("10:00", "11:00"), span("10:00", "11:00"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpanOpenEnded(t *testing.T) {
	open := Span(MustClock("15:00"), nil)
	if open.End != EndOfDay {
		t.Fatalf("open span end = %v, want %v", open.End, EndOfDay)
	}
	later := Span(MustClock("20:00"), ptr(MustClock("20:30")))
	if !Overlaps(open, later) {
		t.Error("open-ended trip should collide with any later trip that day")
	}
	earlier := Span(MustClock("14:00"), ptr(MustClock("15:00")))
	if Overlaps(open, earlier) {
		t.Error("trip ending when the open trip starts must not collide")
	}
}

func TestOpenEndedLastMinute(t *testing.T) {
	last := OpenEnded(EndOfDay)
	if last.End != MinutesPerDay || last.Duration() != time.Minute {
		t.Fatalf("OpenEnded(23:59) = [%d, %d), want one minute", last.Start, last.End)
	}
	if !Overlaps(last, OpenEnded(EndOfDay)) {
		t.Error("two open-ended 23:59 pickups must collide")
	}
	if !Overlaps(last, Span(MustClock("23:30"), nil)) {
		t.Error("23:30 open-ended trip must collide with a 23:59 pickup")
	}
	if Overlaps(last, Span(MustClock("23:30"), ptr(EndOfDay))) {
		t.Error("trip ending at 23:59 must not collide with a 23:59 pickup")
	}
}

func TestClockUnmarshalNull(t *testing.T) {
	c := MustClock("08:00")
	if err := json.Unmarshal([]byte(`null`), &c); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if c != MustClock("08:00") {
		t.Errorf("null changed clock to %v", c)
	}
	if err := json.Unmarshal([]byte(`""`), &c); err == nil {
		t.Error("empty string should not parse as a clock")
	}
}

func TestIntervalDuration(t *testing.T) {
	i := Interval{Start: MustClock("09:00"), End: MustClock("10:30")}
	if i.Duration() != 90*time.Minute {
		t.Errorf("Duration = %v, want 90m", i.Duration())
	}
	inverted := Interval{Start: MustClock("10:00"), End: MustClock("09:00")}
	if inverted.Duration() != 0 {
		t.Errorf("inverted Duration = %v, want 0", inverted.Duration())
	}
}

func TestDateRange(t *testing.T) {
	start, _ := ParseDate("2025-01-06")
	end, _ := ParseDate("2025-01-10")
	r := DateRange{Start: start, End: end}

	if r.Len() != 5 {
		t.Errorf("Len = %d, want 5", r.Len())
	}
	days := r.Days()
	if len(days) != 5 || days[0].Weekday() != time.Monday || days[4].Weekday() != time.Friday {
		t.Errorf("Days = %v", days)
	}
	if !r.Contains(start) || !r.Contains(end) {
		t.Error("range must include both endpoints")
	}
	outside, _ := ParseDate("2025-01-11")
	if r.Contains(outside) {
		t.Error("range must exclude the day after End")
	}
	if (DateRange{Start: end, End: start}).Days() != nil {
		t.Error("inverted range should have no days")
	}
}

func ptr(c Clock) *Clock { return &c }
