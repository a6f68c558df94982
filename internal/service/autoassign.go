package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ReasonNoRegularDriver is the failure reason when a customer's regular
// driver cannot be resolved.
const ReasonNoRegularDriver = "Regular driver not found or inactive"

// ReasonInvalidSchedule is the failure reason when a customer's stored
// schedule could not be decoded.
const ReasonInvalidSchedule = "invalid recurring schedule"

// AutoAssignService expands customer recurring schedules into trips.
//
// Failure policy: best-effort per row. A customer without a usable driver,
// a driver on holiday or a row the store rejects is recorded in the result
// and the run continues. Rows already inserted are never rolled back.
//
// Concurrency: customers may be processed in parallel (Settings.AutoAssignWorkers);
// the dates of one customer are always processed in order by one goroutine.
// Duplicate inserts from overlapping runs are absorbed by the regular-trip
// unique index, so the existence check is an optimization, not the guard.
type AutoAssignService struct {
	trips    TripStore
	avail    AvailabilityStore
	settings Settings
	log      *zap.Logger
}

// NewAutoAssignService creates an auto-assign service.
func NewAutoAssignService(trips TripStore, avail AvailabilityStore, settings Settings, log *zap.Logger) *AutoAssignService {
	return &AutoAssignService{trips: trips, avail: avail, settings: settings, log: orNop(log)}
}

// AutoAssign creates regular trips for every scheduled customer on every
// date in the inclusive range.
//
// Complexity: O(customers × days), each unit a constant number of store calls.
func (s *AutoAssignService) AutoAssign(ctx context.Context, tenantID int64, window timeslot.DateRange) (*model.AutoAssignResult, error) {
	if err := validateRange(window, s.settings.MaxAutoAssignDays); err != nil {
		return nil, err
	}

	customers, err := s.avail.ListScheduledCustomers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("auto-assign: list customers: %w", err)
	}

	days := window.Days()
	results := make([]customerOutcome, len(customers))

	workers := s.settings.AutoAssignWorkers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range customers {
		g.Go(func() error {
			out, err := s.assignCustomer(gctx, tenantID, &customers[i], days)
			results[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("auto-assign: %w", err)
	}

	// Merge in customer order so the result is independent of scheduling.
	res := &model.AutoAssignResult{Failed: []model.AssignFailure{}}
	for _, out := range results {
		res.Successful += out.inserted
		res.Failed = append(res.Failed, out.failures...)
	}

	s.log.Info("auto-assign finished",
		zap.Int64("tenant_id", tenantID),
		zap.String("start", window.Start.Format(timeslot.DateLayout)),
		zap.String("end", window.End.Format(timeslot.DateLayout)),
		zap.Int("customers", len(customers)),
		zap.Int("successful", res.Successful),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

type customerOutcome struct {
	inserted int
	failures []model.AssignFailure
}

// assignCustomer walks one customer's dates. It only returns an error when
// ctx is done; everything else becomes a failure entry.
func (s *AutoAssignService) assignCustomer(
	ctx context.Context,
	tenantID int64,
	c *model.Customer,
	days []time.Time,
) (customerOutcome, error) {
	var out customerOutcome

	fail := func(date time.Time, reason string) {
		out.failures = append(out.failures, model.AssignFailure{
			CustomerID:   c.ID,
			CustomerName: c.Name,
			Day:          model.WeekdayOf(date).String(),
			Date:         date.Format(timeslot.DateLayout),
			Reason:       reason,
		})
	}

	if c.ScheduleErr != nil {
		s.log.Warn("skipping customer with invalid schedule",
			zap.Int64("customer_id", c.ID), zap.Error(c.ScheduleErr))
		if len(days) > 0 {
			fail(days[0], ReasonInvalidSchedule)
		}
		return out, nil
	}
	if c.Schedule.IsEmpty() {
		return out, nil
	}

	driver, driverErr := s.resolveDriver(ctx, tenantID, c)

	for _, date := range days {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		// ── Step 1: Weekday entry ───────────────────────
		day := c.Schedule.Day(model.WeekdayOf(date))
		if !day.Configured() {
			continue
		}

		// ── Step 2: Idempotency ─────────────────────────
		exists, err := s.trips.HasRegularTrip(ctx, tenantID, c.ID, date)
		if err != nil {
			fail(date, "Failed to check existing trips: "+err.Error())
			continue
		}
		if exists {
			continue
		}

		// ── Step 3: Regular driver ──────────────────────
		// Reported once per customer; the remaining dates cannot succeed either.
		if driver == nil {
			if driverErr != nil {
				s.log.Warn("regular driver lookup failed",
					zap.Int64("customer_id", c.ID), zap.Error(driverErr))
			}
			fail(date, ReasonNoRegularDriver)
			return out, nil
		}

		// ── Step 4: Driver holidays ─────────────────────
		reqs, err := s.avail.ApprovedHolidays(ctx, tenantID, model.EntityDriver, driver.ID,
			timeslot.DateRange{Start: date, End: date})
		if err != nil {
			fail(date, "Failed to check driver holidays: "+err.Error())
			continue
		}
		if _, onHoliday := onLeave(date, driver.Holidays, reqs); onHoliday {
			fail(date, fmt.Sprintf("Driver %s is on holiday", driver.Name))
			continue
		}

		// ── Step 5: Derive trips ────────────────────────
		trips := s.deriveTrips(tenantID, c, driver, day, date)

		// ── Step 6: Best-effort insert ──────────────────
		batch, err := InsertBatch(ctx, s.trips, trips, BestEffort)
		if err != nil {
			return out, err
		}
		out.inserted += len(batch.Inserted)
		for _, f := range batch.Failures {
			fail(date, "Failed to create trip: "+f.Err.Error())
		}
	}
	return out, nil
}

// resolveDriver returns nil when the customer has no designated driver or
// the driver is missing or inactive.
func (s *AutoAssignService) resolveDriver(ctx context.Context, tenantID int64, c *model.Customer) (*model.Driver, error) {
	if c.RegularDriverID == nil {
		return nil, nil
	}
	d, err := s.avail.GetDriver(ctx, tenantID, *c.RegularDriverID)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, nil
	}
	return d, nil
}

// deriveTrips builds the morning and afternoon legs for a day. With neither
// time set, one trip is created at the default pickup time.
func (s *AutoAssignService) deriveTrips(
	tenantID int64,
	c *model.Customer,
	d *model.Driver,
	day *model.DaySchedule,
	date time.Time,
) []*model.Trip {
	base := func(pickup timeslot.Clock) *model.Trip {
		return &model.Trip{
			TenantID:           tenantID,
			CustomerID:         c.ID,
			DriverID:           ptr(d.ID),
			VehicleID:          d.VehicleID,
			TripDate:           date,
			PickupTime:         pickup,
			TripType:           model.TripRegular,
			Status:             model.TripScheduled,
			Price:              day.Fare,
			PassengerCount:     1,
			RequiresWheelchair: c.RequiresWheelchair,
		}
	}
	outbound := func(pickup timeslot.Clock) *model.Trip {
		t := base(pickup)
		t.PickupLocation, t.PickupAddress = c.Address, c.Address
		t.Destination, t.DestinationAddress = day.Destination, day.Destination
		return t
	}

	var trips []*model.Trip
	if day.MorningTime != nil {
		trips = append(trips, outbound(*day.MorningTime))
	}
	if day.AfternoonTime != nil {
		t := base(*day.AfternoonTime)
		t.PickupLocation, t.PickupAddress = day.Destination, day.Destination
		t.Destination, t.DestinationAddress = c.Address, c.Address
		trips = append(trips, t)
	}
	if len(trips) == 0 {
		trips = append(trips, outbound(s.settings.DefaultPickupTime))
	}
	return trips
}
