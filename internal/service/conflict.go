package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ─── Conflict sources ───────────────────────────────────────

// conflictSource is what the five checks read. The live source goes to the
// stores on every call; the roster dashboard uses a preloaded window.
type conflictSource interface {
	tripsFor(ctx context.Context, f model.TripFilter) ([]model.Trip, error)
	driver(ctx context.Context, tenantID, id int64) (*model.Driver, error)
	vehicle(ctx context.Context, tenantID, id int64) (*model.Vehicle, error)
	leave(ctx context.Context, tenantID int64, entity model.EntityType, id int64, date time.Time) ([]model.HolidayRequest, error)
}

type storeSource struct {
	trips TripStore
	avail AvailabilityStore
}

func (s storeSource) tripsFor(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	return s.trips.FindTrips(ctx, f)
}

func (s storeSource) driver(ctx context.Context, tenantID, id int64) (*model.Driver, error) {
	return s.avail.GetDriver(ctx, tenantID, id)
}

func (s storeSource) vehicle(ctx context.Context, tenantID, id int64) (*model.Vehicle, error) {
	return s.avail.GetVehicle(ctx, tenantID, id)
}

func (s storeSource) leave(ctx context.Context, tenantID int64, entity model.EntityType, id int64, date time.Time) ([]model.HolidayRequest, error) {
	return s.avail.ApprovedHolidays(ctx, tenantID, entity, id, timeslot.DateRange{Start: date, End: date})
}

// ─── ConflictService ────────────────────────────────────────

// ConflictService reports scheduling conflicts for a candidate trip. It
// never blocks a write on its own; callers decide what a critical conflict
// means for them.
type ConflictService struct {
	trips TripStore
	avail AvailabilityStore
	log   *zap.Logger
}

// NewConflictService creates a conflict service.
func NewConflictService(trips TripStore, avail AvailabilityStore, log *zap.Logger) *ConflictService {
	return &ConflictService{trips: trips, avail: avail, log: orNop(log)}
}

// CheckConflicts runs every check against the candidate and merges the
// results. excludeTripID lets an edit ignore its own stored version.
//
// The candidate needs a date, a pickup time and at least one of driver or
// customer. Driver-keyed checks are skipped when no driver is set;
// customer-keyed checks when no customer is set.
func (s *ConflictService) CheckConflicts(
	ctx context.Context,
	tenantID int64,
	candidate *model.Trip,
	excludeTripID *int64,
) (*model.ConflictReport, error) {
	if candidate.TripDate.IsZero() {
		return nil, invalid("tripDate", "is required")
	}
	if candidate.ReturnTime != nil && *candidate.ReturnTime <= candidate.PickupTime {
		return nil, invalid("returnTime", "must be after pickupTime")
	}
	return detectConflicts(ctx, storeSource{trips: s.trips, avail: s.avail}, tenantID, candidate, excludeTripID)
}

type conflictCheck func(ctx context.Context, src conflictSource, tenantID int64, c *model.Trip, exclude *int64) ([]model.Conflict, error)

// detectConflicts runs all checks, none short-circuiting the others. If any
// check fails to read its data the errors are joined and returned.
func detectConflicts(
	ctx context.Context,
	src conflictSource,
	tenantID int64,
	candidate *model.Trip,
	exclude *int64,
) (*model.ConflictReport, error) {
	checks := []conflictCheck{
		checkDriverOverlap,
		checkDriverLeave,
		checkVehicleCompliance,
		checkCustomerOverlap,
		checkCustomerLeave,
	}

	var (
		found []model.Conflict
		errs  []error
	)
	for _, check := range checks {
		c, err := check(ctx, src, tenantID, candidate, exclude)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found = append(found, c...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return model.NewConflictReport(found), nil
}

// ─── Checks ─────────────────────────────────────────────────

// overlapping returns the other non-cancelled trips of the filter's driver or
// customer on the candidate's date whose span intersects the candidate's.
// A missing return time is open until EndOfDay.
func overlapping(ctx context.Context, src conflictSource, f model.TripFilter, c *model.Trip) ([]model.Trip, error) {
	date := timeslot.Day(c.TripDate)
	f.Date = &date
	f.ExcludeCancelled = true

	others, err := src.tripsFor(ctx, f)
	if err != nil {
		return nil, err
	}

	span := c.Span()
	var hits []model.Trip
	for _, o := range others {
		if c.ID != 0 && o.ID == c.ID {
			continue
		}
		if timeslot.Overlaps(span, o.Span()) {
			hits = append(hits, o)
		}
	}
	return hits, nil
}

func overlapDetails(o model.Trip) map[string]any {
	d := map[string]any{
		"tripId":      o.ID,
		"pickupTime":  o.PickupTime.String(),
		"destination": o.Destination,
	}
	if o.ReturnTime != nil {
		d["returnTime"] = o.ReturnTime.String()
	} else {
		d["returnTime"] = nil
		d["openEnded"] = true
	}
	return d
}

func checkDriverOverlap(ctx context.Context, src conflictSource, tenantID int64, c *model.Trip, exclude *int64) ([]model.Conflict, error) {
	if c.DriverID == nil {
		return nil, nil
	}
	hits, err := overlapping(ctx, src, model.TripFilter{
		TenantID:  tenantID,
		DriverID:  c.DriverID,
		ExcludeID: exclude,
	}, c)
	if err != nil {
		return nil, fmt.Errorf("driver overlap: %w", err)
	}

	out := make([]model.Conflict, 0, len(hits))
	for _, o := range hits {
		out = append(out, model.Conflict{
			Type:     model.ConflictDriverOverlap,
			Severity: model.SeverityCritical,
			Message: fmt.Sprintf("Driver already has trip #%d at %s on %s",
				o.ID, o.PickupTime, o.TripDate.Format(timeslot.DateLayout)),
			Details: overlapDetails(o),
		})
	}
	return out, nil
}

func checkCustomerOverlap(ctx context.Context, src conflictSource, tenantID int64, c *model.Trip, exclude *int64) ([]model.Conflict, error) {
	if c.CustomerID == 0 {
		return nil, nil
	}
	hits, err := overlapping(ctx, src, model.TripFilter{
		TenantID:   tenantID,
		CustomerID: &c.CustomerID,
		ExcludeID:  exclude,
	}, c)
	if err != nil {
		return nil, fmt.Errorf("customer overlap: %w", err)
	}

	out := make([]model.Conflict, 0, len(hits))
	for _, o := range hits {
		out = append(out, model.Conflict{
			Type:     model.ConflictCustomerOverlap,
			Severity: model.SeverityCritical,
			Message: fmt.Sprintf("Customer already has trip #%d at %s on %s",
				o.ID, o.PickupTime, o.TripDate.Format(timeslot.DateLayout)),
			Details: overlapDetails(o),
		})
	}
	return out, nil
}

// onLeave reports whether date falls in any driver holiday interval or
// approved leave request.
func onLeave(date time.Time, intervals []model.HolidayInterval, requests []model.HolidayRequest) (timeslot.DateRange, bool) {
	for _, h := range intervals {
		if h.Range().Contains(date) {
			return h.Range(), true
		}
	}
	for _, h := range requests {
		if h.Status == model.HolidayApproved && h.Range().Contains(date) {
			return h.Range(), true
		}
	}
	return timeslot.DateRange{}, false
}

func leaveDetails(r timeslot.DateRange) map[string]any {
	return map[string]any{
		"startDate": r.Start.Format(timeslot.DateLayout),
		"endDate":   r.End.Format(timeslot.DateLayout),
	}
}

func checkDriverLeave(ctx context.Context, src conflictSource, tenantID int64, c *model.Trip, _ *int64) ([]model.Conflict, error) {
	if c.DriverID == nil {
		return nil, nil
	}
	d, err := src.driver(ctx, tenantID, *c.DriverID)
	if err != nil {
		return nil, fmt.Errorf("driver leave: %w", err)
	}
	reqs, err := src.leave(ctx, tenantID, model.EntityDriver, d.ID, c.TripDate)
	if err != nil {
		return nil, fmt.Errorf("driver leave: %w", err)
	}

	r, ok := onLeave(c.TripDate, d.Holidays, reqs)
	if !ok {
		return nil, nil
	}
	return []model.Conflict{{
		Type:     model.ConflictDriverHoliday,
		Severity: model.SeverityCritical,
		Message:  fmt.Sprintf("Driver %s is on holiday on %s", d.Name, c.TripDate.Format(timeslot.DateLayout)),
		Details:  leaveDetails(r),
	}}, nil
}

func checkCustomerLeave(ctx context.Context, src conflictSource, tenantID int64, c *model.Trip, _ *int64) ([]model.Conflict, error) {
	if c.CustomerID == 0 {
		return nil, nil
	}
	reqs, err := src.leave(ctx, tenantID, model.EntityCustomer, c.CustomerID, c.TripDate)
	if err != nil {
		return nil, fmt.Errorf("customer leave: %w", err)
	}

	r, ok := onLeave(c.TripDate, nil, reqs)
	if !ok {
		return nil, nil
	}
	return []model.Conflict{{
		Type:     model.ConflictCustomerHoliday,
		Severity: model.SeverityWarning,
		Message:  fmt.Sprintf("Customer is on approved leave on %s", c.TripDate.Format(timeslot.DateLayout)),
		Details:  leaveDetails(r),
	}}, nil
}

// checkVehicleCompliance inspects the trip's vehicle, falling back to the
// driver's assigned vehicle.
func checkVehicleCompliance(ctx context.Context, src conflictSource, tenantID int64, c *model.Trip, _ *int64) ([]model.Conflict, error) {
	if c.DriverID == nil {
		return nil, nil
	}
	vehicleID := c.VehicleID
	if vehicleID == nil {
		d, err := src.driver(ctx, tenantID, *c.DriverID)
		if err != nil {
			return nil, fmt.Errorf("vehicle compliance: %w", err)
		}
		vehicleID = d.VehicleID
	}

	noVehicle := []model.Conflict{{
		Type:     model.ConflictNoVehicle,
		Severity: model.SeverityWarning,
		Message:  "No vehicle assigned to driver",
	}}
	if vehicleID == nil {
		return noVehicle, nil
	}

	v, err := src.vehicle(ctx, tenantID, *vehicleID)
	if errors.Is(err, ErrNotFound) {
		noVehicle[0].Details = map[string]any{"vehicleId": *vehicleID}
		return noVehicle, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vehicle compliance: %w", err)
	}

	var out []model.Conflict
	if v.MOTExpiry != nil && timeslot.Day(*v.MOTExpiry).Before(timeslot.Day(c.TripDate)) {
		out = append(out, model.Conflict{
			Type:     model.ConflictVehicleMOT,
			Severity: model.SeverityCritical,
			Message: fmt.Sprintf("Vehicle %s MOT expired on %s",
				v.Registration, v.MOTExpiry.Format(timeslot.DateLayout)),
			Details: map[string]any{
				"vehicleId": v.ID,
				"motExpiry": v.MOTExpiry.Format(timeslot.DateLayout),
			},
		})
	}
	if !v.Active {
		out = append(out, model.Conflict{
			Type:     model.ConflictVehicleInactive,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Vehicle %s is marked inactive", v.Registration),
			Details:  map[string]any{"vehicleId": v.ID},
		})
	}
	return out, nil
}
