// Package service implements the scheduling engine: conflict detection,
// recurring-schedule expansion, batch insertion, compatibility scoring and
// the roster dashboard.
//
// Services depend on the store interfaces declared here rather than on the
// concrete Postgres repositories so they can be exercised with in-memory
// fakes.
package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/repository"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ─── Stores ─────────────────────────────────────────────────

// TripStore is the trips table.
type TripStore interface {
	FindTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error)
	GetTrip(ctx context.Context, tenantID, id int64) (*model.Trip, error)
	HasRegularTrip(ctx context.Context, tenantID, customerID int64, date time.Time) (bool, error)
	InsertTrip(ctx context.Context, t *model.Trip) (bool, error)
	InTx(ctx context.Context, fn func(repository.TripInserter) error) error
	AssignDriver(ctx context.Context, tenantID, tripID, driverID int64, vehicleID *int64) (*model.Trip, error)
	UpdateStatus(ctx context.Context, tenantID, tripID int64, from, to model.TripStatus) error
}

// AvailabilityStore is the read-only entity state the checks consult.
type AvailabilityStore interface {
	GetDriver(ctx context.Context, tenantID, id int64) (*model.Driver, error)
	ListActiveDrivers(ctx context.Context, tenantID int64) ([]model.Driver, error)
	GetVehicle(ctx context.Context, tenantID, id int64) (*model.Vehicle, error)
	GetCustomer(ctx context.Context, tenantID, id int64) (*model.Customer, error)
	ListActiveCustomers(ctx context.Context, tenantID int64) ([]model.Customer, error)
	ListScheduledCustomers(ctx context.Context, tenantID int64) ([]model.Customer, error)
	ListCustomersByID(ctx context.Context, tenantID int64, ids []int64) ([]model.Customer, error)
	ApprovedHolidays(ctx context.Context, tenantID int64, entity model.EntityType, entityID int64, window timeslot.DateRange) ([]model.HolidayRequest, error)
}

// SlotLocker serializes writes touching the same driver or customer day.
type SlotLocker interface {
	LockTrip(ctx context.Context, t *model.Trip) (unlock func(), err error)
}

// NoopLocker never blocks. Used when Redis is not wired, and in tests.
type NoopLocker struct{}

// LockTrip always succeeds.
func (NoopLocker) LockTrip(context.Context, *model.Trip) (func(), error) {
	return func() {}, nil
}

// ─── Settings ───────────────────────────────────────────────

// Settings holds the tunables of the scheduling engine.
type Settings struct {
	DefaultPickupTime    timeslot.Clock
	NominalTripDuration  time.Duration
	FullTimeHoursPerWeek float64
	MinFareThreshold     float64
	MaxAutoAssignDays    int
	AutoAssignWorkers    int
	CombinationWindow    time.Duration
	DestinationMatchKm   float64

	// GeocodingEnabled reports whether the tenant opted into geocoded scoring.
	GeocodingEnabled func(tenantID int64) bool
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		DefaultPickupTime:    timeslot.MustClock("09:00"),
		NominalTripDuration:  time.Hour,
		FullTimeHoursPerWeek: 40,
		MinFareThreshold:     10,
		MaxAutoAssignDays:    93,
		AutoAssignWorkers:    1,
		CombinationWindow:    60 * time.Minute,
		DestinationMatchKm:   1.5,
		GeocodingEnabled:     func(int64) bool { return false },
	}
}

func (s Settings) geocodingEnabled(tenantID int64) bool {
	return s.GeocodingEnabled != nil && s.GeocodingEnabled(tenantID)
}

// validateRange checks an inclusive date window against a day limit.
// maxDays <= 0 disables the limit.
func validateRange(r timeslot.DateRange, maxDays int) error {
	if r.Start.IsZero() {
		return invalid("startDate", "is required")
	}
	if r.End.IsZero() {
		return invalid("endDate", "is required")
	}
	if r.End.Before(r.Start) {
		return invalid("endDate", "must not be before startDate")
	}
	if maxDays > 0 && r.Len() > maxDays {
		return invalid("endDate", "range exceeds the maximum of "+strconv.Itoa(maxDays)+" days")
	}
	return nil
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

func ptr[T any](v T) *T { return &v }
