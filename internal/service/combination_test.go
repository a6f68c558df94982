package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

func combinationFixture() *memAvail {
	return newMemAvail().
		addVehicle(model.Vehicle{ID: 10, Registration: "YX21 ABC", SeatCapacity: 4, Active: true}).
		addDriver(model.Driver{ID: 1, Name: "Asha", Active: true, VehicleID: ptr[int64](10)}).
		addCustomer(model.Customer{ID: 100, Name: "Riding", Active: true, Phone: "0113 1"}).
		addCustomer(model.Customer{ID: 101, Name: "Regular", Active: true, Phone: "0113 2", Email: "r@x.io"}).
		addCustomer(model.Customer{ID: 102, Name: "Wheelchair", Active: true, Phone: "0113 3", RequiresWheelchair: true}).
		addCustomer(model.Customer{ID: 103, Name: "Quiet", Active: true}).
		addCustomer(model.Customer{ID: 104, Name: "Away", Active: false, Phone: "0113 4"})
}

func combinationTrips() *memTrips {
	prior := trip(1, 101, nil, monday.AddDate(0, 0, -7), "09:00", nil)
	prior.Destination = "Oak Day Centre"
	prior.Price = 30
	prior.Status = model.TripCompleted

	riding := trip(2, 100, ptr[int64](1), monday, "09:00", clockPtr("10:00"))
	riding.Destination = "Oak Day Centre, Leeds"
	riding.PickupAddress = "1 High St, LS1 4AB"

	nearby := trip(3, 101, nil, monday, "09:30", clockPtr("10:30"))
	far := trip(4, 103, nil, monday, "13:00", clockPtr("14:00"))
	return newMemTrips(prior, riding, nearby, far)
}

func newCombination(t *testing.T, trips *memTrips, avail *memAvail) *CombinationService {
	settings := DefaultSettings()
	return NewCombinationService(trips, avail, NewScorer(nil, settings, nil), settings, zaptest.NewLogger(t))
}

func TestRecommendPassengers(t *testing.T) {
	svc := newCombination(t, combinationTrips(), combinationFixture())

	out, err := svc.RecommendPassengers(context.Background(), RecommendRequest{
		TenantID:       tenant,
		DriverID:       1,
		DriverLocation: "LS1 4AB",
		Destination:    "Oak Day Centre, Leeds",
		PickupTime:     clockPtr("09:00"),
		TripDate:       monday,
	})
	if err != nil {
		t.Fatalf("RecommendPassengers: %v", err)
	}

	// 100 already rides with the driver, 102 needs a wheelchair, 103 scores
	// too low and 104 is inactive.
	if len(out) != 1 || out[0].Customer.ID != 101 {
		t.Fatalf("got %+v, want only customer 101", out)
	}
	if out[0].Recommendation != model.HighlyRecommended {
		t.Errorf("recommendation = %s (score %d)", out[0].Recommendation, out[0].Score)
	}
}

func TestRecommendPassengers_PickupWindow(t *testing.T) {
	tests := []struct {
		name   string
		pickup *timeslot.Clock
		want   []int64
	}{
		{"no pickup time", nil, []int64{101}},
		{"same-day trip inside window", clockPtr("10:00"), []int64{101}},
		{"same-day trip outside window", clockPtr("12:00"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newCombination(t, combinationTrips(), combinationFixture())
			out, err := svc.RecommendPassengers(context.Background(), RecommendRequest{
				TenantID:    tenant,
				DriverID:    1,
				Destination: "Oak Day Centre, Leeds",
				PickupTime:  tt.pickup,
				TripDate:    monday,
			})
			if err != nil {
				t.Fatalf("RecommendPassengers: %v", err)
			}
			var got []int64
			for _, cs := range out {
				got = append(got, cs.Customer.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("customers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecommendPassengers_HistoryIsPriorDaysOnly(t *testing.T) {
	trips := combinationTrips()
	for i := range trips.trips {
		if trips.trips[i].ID == 1 {
			trips.trips[i].Destination = "Library"
		}
		if trips.trips[i].ID == 3 {
			trips.trips[i].Destination = "Oak Day Centre"
		}
	}
	svc := newCombination(t, trips, combinationFixture())

	out, err := svc.RecommendPassengers(context.Background(), RecommendRequest{
		TenantID: tenant, DriverID: 1, Destination: "Oak Day Centre, Leeds", TripDate: monday,
	})
	if err != nil {
		t.Fatalf("RecommendPassengers: %v", err)
	}
	if len(out) != 1 || out[0].Customer.ID != 101 {
		t.Fatalf("got %+v, want customer 101", out)
	}
	for _, r := range out[0].Reasoning {
		if strings.Contains(r, "similar destination") {
			t.Errorf("same-day trip counted as history: %q", r)
		}
	}
}

func TestRecommendPassengers_Errors(t *testing.T) {
	svc := newCombination(t, combinationTrips(), combinationFixture())

	_, err := svc.RecommendPassengers(context.Background(), RecommendRequest{TenantID: tenant, DriverID: 1, TripDate: monday})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "destination" {
		t.Errorf("missing destination: err = %v", err)
	}

	_, err = svc.RecommendPassengers(context.Background(), RecommendRequest{
		TenantID: tenant, DriverID: 99, TripDate: monday, Destination: "x",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown driver: err = %v, want ErrNotFound", err)
	}
}

func TestCombinationOpportunities(t *testing.T) {
	svc := newCombination(t, combinationTrips(), combinationFixture())

	out, err := svc.CombinationOpportunities(context.Background(), tenant, &monday)
	if err != nil {
		t.Fatalf("CombinationOpportunities: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(out))
	}
	op := out[0]
	if op.Trip.ID != 2 || op.SpareSeats != 3 {
		t.Errorf("trip/spare = %d/%d, want 2/3", op.Trip.ID, op.SpareSeats)
	}
	if len(op.Candidates) != 1 || op.Candidates[0].Customer.ID != 101 {
		t.Errorf("candidates = %+v, want customer 101 only", op.Candidates)
	}
}

func TestCombinationOpportunities_FullVehicle(t *testing.T) {
	trips := combinationTrips()
	for i := range trips.trips {
		if trips.trips[i].ID == 2 {
			trips.trips[i].PassengerCount = 4
		}
	}
	svc := newCombination(t, trips, combinationFixture())

	out, err := svc.CombinationOpportunities(context.Background(), tenant, &monday)
	if err != nil {
		t.Fatalf("CombinationOpportunities: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("opportunities = %+v, want none", out)
	}
}

func TestCombinationOpportunities_DefaultsToTodayAndTomorrow(t *testing.T) {
	svc := newCombination(t, combinationTrips(), combinationFixture())
	svc.now = func() time.Time { return monday.AddDate(0, 0, -1).Add(15 * time.Hour) }

	out, err := svc.CombinationOpportunities(context.Background(), tenant, nil)
	if err != nil {
		t.Fatalf("CombinationOpportunities: %v", err)
	}
	if len(out) != 1 || out[0].Trip.ID != 2 {
		t.Errorf("got %+v, want the Monday opportunity", out)
	}

	svc.now = func() time.Time { return monday.AddDate(0, 0, 2) }
	out, err = svc.CombinationOpportunities(context.Background(), tenant, nil)
	if err != nil {
		t.Fatalf("CombinationOpportunities: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("got %+v, want an empty non-nil list", out)
	}
}
