package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/repository"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// CreateResult is a created trip plus any non-blocking conflicts.
type CreateResult struct {
	Trip     *model.Trip      `json:"trip"`
	Warnings []model.Conflict `json:"warnings"`
}

// TripService handles single-trip commands and the atomic bulk path.
//
// Concurrency model:
//   - Single creates and reassignments take the Redis slot lock for the
//     driver and customer day before checking conflicts, so two requests for
//     the same slot cannot both pass the check.
//   - Bulk creation runs in one Postgres transaction.
//   - Status changes are compare-and-set on the current status.
type TripService struct {
	trips     TripStore
	avail     AvailabilityStore
	conflicts *ConflictService
	locker    SlotLocker
	log       *zap.Logger
}

// NewTripService creates a trip service. A nil locker disables slot locking.
func NewTripService(
	trips TripStore,
	avail AvailabilityStore,
	conflicts *ConflictService,
	locker SlotLocker,
	log *zap.Logger,
) *TripService {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &TripService{
		trips:     trips,
		avail:     avail,
		conflicts: conflicts,
		locker:    locker,
		log:       orNop(log),
	}
}

// Create validates, checks and inserts one trip. Critical conflicts reject
// the trip with a *ConflictError unless override is set; warnings never do.
func (s *TripService) Create(ctx context.Context, t *model.Trip, override bool) (*CreateResult, error) {
	if err := validateTrip(t); err != nil {
		return nil, err
	}
	if _, err := s.avail.GetCustomer(ctx, t.TenantID, t.CustomerID); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	unlock, err := s.lock(ctx, t)
	if err != nil {
		return nil, err
	}
	defer unlock()

	report, err := s.conflicts.CheckConflicts(ctx, t.TenantID, t, nil)
	if err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}
	if report.CriticalCount > 0 && !override {
		return nil, &ConflictError{Report: report}
	}

	inserted, err := s.trips.InsertTrip(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}
	if !inserted {
		return nil, ErrDuplicateTrip
	}

	if report.CriticalCount > 0 {
		s.log.Warn("trip created over critical conflicts",
			zap.Int64("tenant_id", t.TenantID),
			zap.Int64("trip_id", t.ID),
			zap.Int("critical", report.CriticalCount))
	}
	return &CreateResult{Trip: t, Warnings: report.Conflicts}, nil
}

// BulkCreate inserts every trip or none of them.
func (s *TripService) BulkCreate(ctx context.Context, trips []*model.Trip) ([]*model.Trip, error) {
	if len(trips) == 0 {
		return nil, invalid("trips", "must contain at least one trip")
	}
	for i, t := range trips {
		if err := validateTrip(t); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				for j := range ve.Fields {
					ve.Fields[j].Field = fmt.Sprintf("trips[%d].%s", i, ve.Fields[j].Field)
				}
			}
			return nil, err
		}
	}

	res, err := InsertBatch(ctx, s.trips, trips, Atomic)
	if err != nil {
		return nil, err
	}
	return res.Inserted, nil
}

// List returns the trips matching f.
func (s *TripService) List(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, invalid("endDate", "must not be before startDate")
	}
	trips, err := s.trips.FindTrips(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	if trips == nil {
		trips = []model.Trip{}
	}
	return trips, nil
}

// Get returns one trip.
func (s *TripService) Get(ctx context.Context, tenantID, id int64) (*model.Trip, error) {
	return s.trips.GetTrip(ctx, tenantID, id)
}

// ChangeStatus moves a trip along its lifecycle.
func (s *TripService) ChangeStatus(ctx context.Context, tenantID, id int64, to model.TripStatus) (*model.Trip, error) {
	t, err := s.trips.GetTrip(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(t.Status, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, t.Status, to)
	}
	if err := s.trips.UpdateStatus(ctx, tenantID, id, t.Status, to); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return nil, fmt.Errorf("change status: %w", err)
	}

	s.log.Info("trip status changed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("trip_id", id),
		zap.String("from", string(t.Status)),
		zap.String("to", string(to)))

	t.Status = to
	return t, nil
}

// Cancel soft-deletes a trip.
func (s *TripService) Cancel(ctx context.Context, tenantID, id int64) (*model.Trip, error) {
	return s.ChangeStatus(ctx, tenantID, id, model.TripCancelled)
}

// Reassign moves a trip to another driver. Conflicts are checked with the
// trip's own stored version excluded.
func (s *TripService) Reassign(
	ctx context.Context,
	tenantID, id, driverID int64,
	vehicleID *int64,
	override bool,
) (*CreateResult, error) {
	t, err := s.trips.GetTrip(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TripCompleted || t.Status == model.TripCancelled {
		return nil, fmt.Errorf("%w: trip %d is %s", ErrInvalidTransition, id, t.Status)
	}

	driver, err := s.avail.GetDriver(ctx, tenantID, driverID)
	if err != nil {
		return nil, fmt.Errorf("reassign: %w", err)
	}
	if !driver.Active {
		return nil, invalid("driverId", "driver is inactive")
	}

	candidate := *t
	candidate.DriverID = &driver.ID
	candidate.VehicleID = vehicleID
	if candidate.VehicleID == nil {
		candidate.VehicleID = driver.VehicleID
	}

	unlock, err := s.lock(ctx, &candidate)
	if err != nil {
		return nil, err
	}
	defer unlock()

	report, err := s.conflicts.CheckConflicts(ctx, tenantID, &candidate, &t.ID)
	if err != nil {
		return nil, fmt.Errorf("reassign: %w", err)
	}
	if report.CriticalCount > 0 && !override {
		return nil, &ConflictError{Report: report}
	}

	updated, err := s.trips.AssignDriver(ctx, tenantID, id, driver.ID, candidate.VehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return nil, fmt.Errorf("reassign: %w", err)
	}
	return &CreateResult{Trip: updated, Warnings: report.Conflicts}, nil
}

func (s *TripService) lock(ctx context.Context, t *model.Trip) (func(), error) {
	unlock, err := s.locker.LockTrip(ctx, t)
	if errors.Is(err, repository.ErrSlotHeld) {
		return nil, ErrSlotBusy
	}
	if err != nil {
		// Redis being down must not stop scheduling; the unique index still
		// guards regular trips.
		s.log.Warn("slot lock unavailable, continuing without it", zap.Error(err))
		return func() {}, nil
	}
	return unlock, nil
}

// validateTrip checks the fields every write path needs.
func validateTrip(t *model.Trip) error {
	var fields []FieldError
	if t.CustomerID <= 0 {
		fields = append(fields, FieldError{Field: "customerId", Message: "is required"})
	}
	if t.TripDate.IsZero() {
		fields = append(fields, FieldError{Field: "tripDate", Message: "is required"})
	}
	if t.ReturnTime != nil && *t.ReturnTime <= t.PickupTime {
		fields = append(fields, FieldError{Field: "returnTime", Message: "must be after pickupTime"})
	}
	if t.PassengerCount < 0 {
		fields = append(fields, FieldError{Field: "passengerCount", Message: "must not be negative"})
	}
	if t.Price < 0 {
		fields = append(fields, FieldError{Field: "price", Message: "must not be negative"})
	}
	switch t.TripType {
	case "", model.TripAdhoc, model.TripRegular:
	default:
		fields = append(fields, FieldError{Field: "tripType", Message: "must be adhoc or regular"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if t.TripType == "" {
		t.TripType = model.TripAdhoc
	}
	t.TripDate = timeslot.Day(t.TripDate)
	return nil
}
