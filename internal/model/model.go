// Package model contains domain models for the trip scheduling engine.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import (
	"time"

	"github.com/shiva/fleetops/pkg/timeslot"
)

// ─── Enums ──────────────────────────────────────────────────

type TripType string

const (
	TripAdhoc   TripType = "adhoc"
	TripRegular TripType = "regular"
)

type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// AllowedTransitions is the trip status flow as code.
var AllowedTransitions = map[TripStatus][]TripStatus{
	TripScheduled:  {TripInProgress, TripCancelled},
	TripInProgress: {TripCompleted, TripCancelled},
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to TripStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type EntityType string

const (
	EntityDriver   EntityType = "driver"
	EntityCustomer EntityType = "customer"
)

type HolidayStatus string

const (
	HolidayPending  HolidayStatus = "pending"
	HolidayApproved HolidayStatus = "approved"
	HolidayRejected HolidayStatus = "rejected"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Domain Models ──────────────────────────────────────────

// Trip maps to the `trips` table.
type Trip struct {
	ID                 int64           `json:"id"`
	TenantID           int64           `json:"tenant_id"`
	CustomerID         int64           `json:"customer_id"`
	DriverID           *int64          `json:"driver_id,omitempty"`
	VehicleID          *int64          `json:"vehicle_id,omitempty"`
	TripDate           time.Time       `json:"trip_date"`
	PickupTime         timeslot.Clock  `json:"pickup_time"`
	ReturnTime         *timeslot.Clock `json:"return_time,omitempty"`
	PickupLocation     string          `json:"pickup_location"`
	PickupAddress      string          `json:"pickup_address"`
	Destination        string          `json:"destination"`
	DestinationAddress string          `json:"destination_address"`
	TripType           TripType        `json:"trip_type"`
	Status             TripStatus      `json:"status"`
	Urgent             bool            `json:"urgent"`
	Price              float64         `json:"price"`
	PassengerCount     int             `json:"passenger_count"`
	RequiresWheelchair bool            `json:"requires_wheelchair"`
	RequiresEscort     bool            `json:"requires_escort"`
	DistanceKm         *float64        `json:"distance_km,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Span returns the trip's occupied interval for overlap checks.
func (t *Trip) Span() timeslot.Interval {
	return timeslot.Span(t.PickupTime, t.ReturnTime)
}

// Customer maps to the `customers` table.
type Customer struct {
	ID                 int64             `json:"id"`
	TenantID           int64             `json:"tenant_id"`
	Name               string            `json:"name"`
	Phone              string            `json:"phone,omitempty"`
	Email              string            `json:"email,omitempty"`
	Address            string            `json:"address,omitempty"`
	Postcode           string            `json:"postcode,omitempty"`
	RequiresWheelchair bool              `json:"requires_wheelchair"`
	Active             bool              `json:"active"`
	RegularDriverID    *int64            `json:"regular_driver_id,omitempty"`
	Schedule           RecurringSchedule `json:"recurring_schedule"`

	// ScheduleErr is set when the stored schedule could not be decoded.
	// Schedule is then empty.
	ScheduleErr error `json:"-"`
}

// HolidayInterval is an inclusive leave period stored on the driver record.
type HolidayInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Range converts the interval into a date range.
func (h HolidayInterval) Range() timeslot.DateRange {
	return timeslot.DateRange{Start: h.Start, End: h.End}
}

// Driver maps to the `drivers` table.
type Driver struct {
	ID               int64             `json:"id"`
	TenantID         int64             `json:"tenant_id"`
	Name             string            `json:"name"`
	Active           bool              `json:"active"`
	EmploymentStatus string            `json:"employment_status"`
	VehicleID        *int64            `json:"vehicle_id,omitempty"`
	Postcode         string            `json:"postcode,omitempty"`
	Address          string            `json:"address,omitempty"`
	Holidays         []HolidayInterval `json:"holidays,omitempty"`
}

// Vehicle maps to the `vehicles` table.
type Vehicle struct {
	ID                   int64      `json:"id"`
	TenantID             int64      `json:"tenant_id"`
	Registration         string     `json:"registration"`
	SeatCapacity         int        `json:"seat_capacity"`
	WheelchairAccessible bool       `json:"wheelchair_accessible"`
	MOTExpiry            *time.Time `json:"mot_expiry,omitempty"`
	Active               bool       `json:"active"`
}

// HolidayRequest maps to the `holiday_requests` table.
type HolidayRequest struct {
	ID         int64         `json:"id"`
	TenantID   int64         `json:"tenant_id"`
	EntityType EntityType    `json:"entity_type"`
	EntityID   int64         `json:"entity_id"`
	StartDate  time.Time     `json:"start_date"`
	EndDate    time.Time     `json:"end_date"`
	Status     HolidayStatus `json:"status"`
}

// Range converts the request into a date range.
func (h HolidayRequest) Range() timeslot.DateRange {
	return timeslot.DateRange{Start: h.StartDate, End: h.EndDate}
}

// ─── Query filters ──────────────────────────────────────────

// TripFilter narrows a trip lookup. Nil fields are not constrained.
type TripFilter struct {
	TenantID         int64
	DriverID         *int64
	CustomerID       *int64
	CustomerIDs      []int64
	Date             *time.Time
	From             *time.Time
	To               *time.Time
	ExcludeID        *int64
	TripType         *TripType
	Status           *TripStatus
	ExcludeCancelled bool
	UnassignedOnly   bool
}
