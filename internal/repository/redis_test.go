package repository

import (
	"testing"
	"time"

	"github.com/shiva/fleetops/internal/model"
)

func TestSlotKeys(t *testing.T) {
	driver := int64(7)
	trip := &model.Trip{
		TenantID:   2,
		CustomerID: 40,
		DriverID:   &driver,
		TripDate:   time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
	}

	keys := SlotKeys(trip)
	want := []string{
		"slot:2:customer:40:2025-01-06",
		"slot:2:driver:7:2025-01-06",
	}
	if len(keys) != len(want) {
		t.Fatalf("SlotKeys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("SlotKeys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	trip.DriverID = nil
	if keys := SlotKeys(trip); len(keys) != 1 {
		t.Errorf("unassigned trip should lock only the customer slot, got %v", keys)
	}
}

func TestGeocodeKeyNormalizes(t *testing.T) {
	a := geocodeKey("  St James's  Hospital, LEEDS ")
	b := geocodeKey("st james's hospital, leeds")
	if a != b {
		t.Errorf("geocodeKey mismatch: %q vs %q", a, b)
	}
}

func TestLocationCodec(t *testing.T) {
	loc := model.Location{Lat: 53.807, Lon: -1.520}
	back, err := decodeLocation(encodeLocation(loc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back != loc {
		t.Errorf("decoded %v, want %v", back, loc)
	}
	if _, err := decodeLocation("garbage"); err == nil {
		t.Error("expected error for malformed cache value")
	}
}

func TestDecodeHolidays(t *testing.T) {
	got, err := decodeHolidays([]byte(`[{"start":"2025-01-06","end":"2025-01-08"}]`))
	if err != nil {
		t.Fatalf("decodeHolidays: %v", err)
	}
	if len(got) != 1 || got[0].Range().Len() != 3 {
		t.Errorf("decodeHolidays = %v", got)
	}
	if _, err := decodeHolidays([]byte(`[{"start":"06/01/2025","end":"2025-01-08"}]`)); err == nil {
		t.Error("expected error for malformed date")
	}
}
