package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

var week = timeslot.DateRange{Start: monday, End: monday.AddDate(0, 0, 6)}

// weekdaySchedule runs Monday with both legs and Tuesday with no times.
func weekdaySchedule() model.RecurringSchedule {
	return model.RecurringSchedule{
		Monday: &model.DaySchedule{
			Destination:   "Oak Day Centre, Leeds",
			MorningTime:   clockPtr("08:30"),
			AfternoonTime: clockPtr("15:00"),
			Fare:          12.5,
		},
		Tuesday: &model.DaySchedule{Destination: "Library"},
	}
}

func autoAssignFixture() *memAvail {
	return newMemAvail().
		addVehicle(model.Vehicle{ID: 10, Registration: "YX21 ABC", SeatCapacity: 4, Active: true}).
		addDriver(model.Driver{ID: 1, Name: "Asha", Active: true, VehicleID: ptr[int64](10)}).
		addDriver(model.Driver{ID: 2, Name: "Ben", Active: false}).
		addCustomer(model.Customer{
			ID: 100, Name: "Cara", Active: true, Address: "1 High St, LS1 4AB",
			RegularDriverID: ptr[int64](1), Schedule: weekdaySchedule(),
		})
}

func newAutoAssign(t *testing.T, trips *memTrips, avail *memAvail) *AutoAssignService {
	return NewAutoAssignService(trips, avail, DefaultSettings(), zaptest.NewLogger(t))
}

func TestAutoAssign_CreatesLegs(t *testing.T) {
	trips := newMemTrips()
	svc := newAutoAssign(t, trips, autoAssignFixture())

	res, err := svc.AutoAssign(context.Background(), tenant, week)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if res.Successful != 3 || len(res.Failed) != 0 {
		t.Fatalf("successful/failed = %d/%v, want 3/none", res.Successful, res.Failed)
	}

	created, _ := trips.FindTrips(context.Background(), model.TripFilter{TenantID: tenant})
	if len(created) != 3 {
		t.Fatalf("stored = %d, want 3", len(created))
	}

	morning, afternoon, tuesday := created[0], created[1], created[2]
	if morning.PickupTime != clock("08:30") || morning.Destination != "Oak Day Centre, Leeds" {
		t.Errorf("morning leg = %s to %q", morning.PickupTime, morning.Destination)
	}
	if afternoon.PickupTime != clock("15:00") ||
		afternoon.PickupAddress != "Oak Day Centre, Leeds" || afternoon.Destination != "1 High St, LS1 4AB" {
		t.Errorf("afternoon leg = %s from %q to %q", afternoon.PickupTime, afternoon.PickupAddress, afternoon.Destination)
	}
	if tuesday.PickupTime != clock("09:00") || !timeslot.SameDay(tuesday.TripDate, monday.AddDate(0, 0, 1)) {
		t.Errorf("default leg = %s on %s", tuesday.PickupTime, tuesday.TripDate.Format(timeslot.DateLayout))
	}
	for _, tr := range created {
		if tr.TripType != model.TripRegular || tr.Status != model.TripScheduled {
			t.Errorf("trip %d type/status = %s/%s", tr.ID, tr.TripType, tr.Status)
		}
		if tr.DriverID == nil || *tr.DriverID != 1 || tr.VehicleID == nil || *tr.VehicleID != 10 {
			t.Errorf("trip %d not assigned to driver 1 with vehicle 10", tr.ID)
		}
	}
	if morning.Price != 12.5 {
		t.Errorf("fare = %v, want 12.5", morning.Price)
	}
}

func TestAutoAssign_Idempotent(t *testing.T) {
	trips := newMemTrips()
	svc := newAutoAssign(t, trips, autoAssignFixture())

	if _, err := svc.AutoAssign(context.Background(), tenant, week); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := svc.AutoAssign(context.Background(), tenant, week)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Successful != 0 || len(res.Failed) != 0 {
		t.Errorf("second run = %d/%v, want 0/none", res.Successful, res.Failed)
	}
	if trips.count() != 3 {
		t.Errorf("stored = %d, want 3", trips.count())
	}
}

func TestAutoAssign_CancelledTripDoesNotBlock(t *testing.T) {
	cancelled := trip(1, 100, ptr[int64](1), monday, "08:30", nil)
	cancelled.TripType = model.TripRegular
	cancelled.Status = model.TripCancelled
	trips := newMemTrips(cancelled)
	svc := newAutoAssign(t, trips, autoAssignFixture())

	res, err := svc.AutoAssign(context.Background(), tenant, timeslot.DateRange{Start: monday, End: monday})
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if res.Successful != 2 {
		t.Errorf("successful = %d, want 2", res.Successful)
	}
}

func TestAutoAssign_NoUsableDriver(t *testing.T) {
	tests := []struct {
		name   string
		driver *int64
	}{
		{"no regular driver", nil},
		{"inactive driver", ptr[int64](2)},
		{"unknown driver", ptr[int64](99)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avail := autoAssignFixture()
			avail.customers[100].RegularDriverID = tt.driver
			trips := newMemTrips()

			res, err := newAutoAssign(t, trips, avail).AutoAssign(context.Background(), tenant, week)
			if err != nil {
				t.Fatalf("AutoAssign: %v", err)
			}
			if res.Successful != 0 || trips.count() != 0 {
				t.Errorf("successful = %d, stored = %d, want 0", res.Successful, trips.count())
			}
			if len(res.Failed) != 1 {
				t.Fatalf("failed = %+v, want exactly one entry", res.Failed)
			}
			f := res.Failed[0]
			if f.Reason != ReasonNoRegularDriver || f.CustomerID != 100 || f.CustomerName != "Cara" {
				t.Errorf("failure = %+v", f)
			}
			if f.Date != "2025-03-03" || f.Day != "monday" {
				t.Errorf("failure date/day = %s/%s, want 2025-03-03/monday", f.Date, f.Day)
			}
		})
	}
}

func TestAutoAssign_DriverOnHoliday(t *testing.T) {
	avail := autoAssignFixture()
	tuesday := monday.AddDate(0, 0, 1)
	avail.holidays = []model.HolidayRequest{{
		ID: 1, TenantID: tenant, EntityType: model.EntityDriver, EntityID: 1,
		StartDate: tuesday, EndDate: tuesday, Status: model.HolidayApproved,
	}}
	trips := newMemTrips()

	res, err := newAutoAssign(t, trips, avail).AutoAssign(context.Background(), tenant, week)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if res.Successful != 2 {
		t.Errorf("successful = %d, want 2", res.Successful)
	}
	if len(res.Failed) != 1 || res.Failed[0].Reason != "Driver Asha is on holiday" || res.Failed[0].Day != "tuesday" {
		t.Errorf("failed = %+v", res.Failed)
	}
}

func TestAutoAssign_InsertFailureIsRecorded(t *testing.T) {
	trips := newMemTrips()
	trips.failInsert = func(tr *model.Trip) error {
		if tr.PickupTime == clock("15:00") {
			return errBoom
		}
		return nil
	}

	res, err := newAutoAssign(t, trips, autoAssignFixture()).AutoAssign(context.Background(), tenant, week)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if res.Successful != 2 {
		t.Errorf("successful = %d, want 2", res.Successful)
	}
	if len(res.Failed) != 1 || !strings.HasPrefix(res.Failed[0].Reason, "Failed to create trip: ") {
		t.Errorf("failed = %+v", res.Failed)
	}
}

func TestAutoAssign_InvalidScheduleDoesNotAbortTenant(t *testing.T) {
	avail := autoAssignFixture().addCustomer(model.Customer{
		ID: 90, Name: "Dev", Active: true, RegularDriverID: ptr[int64](1),
		ScheduleErr: errors.New(`monday: morningTime: timeslot: invalid clock "8am"`),
	})
	trips := newMemTrips()

	res, err := newAutoAssign(t, trips, avail).AutoAssign(context.Background(), tenant, week)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if res.Successful != 3 {
		t.Errorf("successful = %d, want 3 for the valid customer", res.Successful)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("failed = %+v, want exactly one entry", res.Failed)
	}
	f := res.Failed[0]
	if f.CustomerID != 90 || f.Reason != ReasonInvalidSchedule || f.Date != "2025-03-03" {
		t.Errorf("failure = %+v", f)
	}
	stored, _ := trips.FindTrips(context.Background(), model.TripFilter{TenantID: tenant, CustomerID: ptr[int64](90)})
	if len(stored) != 0 {
		t.Errorf("stored %d trips for the invalid customer", len(stored))
	}
}

func TestAutoAssign_ParallelMergesInCustomerOrder(t *testing.T) {
	avail := autoAssignFixture()
	for id := int64(101); id <= 105; id++ {
		avail.addCustomer(model.Customer{ID: id, Name: "Orphan", Active: true, Schedule: weekdaySchedule()})
	}
	settings := DefaultSettings()
	settings.AutoAssignWorkers = 4
	svc := NewAutoAssignService(newMemTrips(), avail, settings, nil)

	res, err := svc.AutoAssign(context.Background(), tenant, week)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if res.Successful != 3 {
		t.Errorf("successful = %d, want 3", res.Successful)
	}
	if len(res.Failed) != 5 {
		t.Fatalf("failed = %d, want 5", len(res.Failed))
	}
	for i, f := range res.Failed {
		if f.CustomerID != int64(101+i) {
			t.Errorf("failed[%d].CustomerID = %d, want %d", i, f.CustomerID, 101+i)
		}
	}
}

func TestAutoAssign_RangeValidation(t *testing.T) {
	svc := newAutoAssign(t, newMemTrips(), autoAssignFixture())

	tests := []struct {
		name   string
		window timeslot.DateRange
	}{
		{"missing start", timeslot.DateRange{End: monday}},
		{"end before start", timeslot.DateRange{Start: monday, End: monday.AddDate(0, 0, -1)}},
		{"too long", timeslot.DateRange{Start: monday, End: monday.AddDate(0, 0, 93)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AutoAssign(context.Background(), tenant, tt.window)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}
