package model

import (
	"encoding/json"
	"testing"

	"github.com/shiva/fleetops/pkg/timeslot"
)

func TestDayScheduleUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		morning   string
		afternoon string
		fare      float64
		wantErr   bool
	}{
		{"both legs", `{"destination":"Oak","morningTime":"08:30","afternoonTime":"15:00","fare":12.5}`, "08:30", "15:00", 12.5, false},
		{"empty morning", `{"destination":"Oak","morningTime":"","afternoonTime":"15:00"}`, "", "15:00", 0, false},
		{"null times", `{"destination":"Oak","morningTime":null,"afternoonTime":null}`, "", "", 0, false},
		{"seconds", `{"destination":"Oak","morningTime":"08:30:00"}`, "08:30", "", 0, false},
		{"string fare", `{"destination":"Oak","fare":"9.75"}`, "", "", 9.75, false},
		{"empty fare", `{"destination":"Oak","fare":""}`, "", "", 0, false},
		{"bad time", `{"destination":"Oak","morningTime":"8am"}`, "", "", 0, true},
		{"bad fare", `{"destination":"Oak","fare":"cheap"}`, "", "", 0, true},
		{"fare object", `{"destination":"Oak","fare":{}}`, "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DaySchedule
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", d)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := clockString(d.MorningTime); got != tt.morning {
				t.Errorf("morning = %q, want %q", got, tt.morning)
			}
			if got := clockString(d.AfternoonTime); got != tt.afternoon {
				t.Errorf("afternoon = %q, want %q", got, tt.afternoon)
			}
			if d.Fare != tt.fare {
				t.Errorf("fare = %v, want %v", d.Fare, tt.fare)
			}
		})
	}
}

func TestRecurringScheduleRoundTrip(t *testing.T) {
	in := RecurringSchedule{Friday: &DaySchedule{Destination: "Library", AfternoonTime: ptrClock("14:00"), Fare: 4}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out RecurringSchedule
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if !out.Day(Friday).Configured() || out.Friday.MorningTime != nil || clockString(out.Friday.AfternoonTime) != "14:00" {
		t.Errorf("friday = %+v", out.Friday)
	}
	if out.IsEmpty() {
		t.Error("decoded schedule reported empty")
	}
}

func clockString(c *timeslot.Clock) string {
	if c == nil {
		return ""
	}
	return c.String()
}

func ptrClock(s string) *timeslot.Clock {
	c := timeslot.MustClock(s)
	return &c
}
