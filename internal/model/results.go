package model

import "time"

// ─── Conflict detection ─────────────────────────────────────

type ConflictType string

const (
	ConflictDriverOverlap   ConflictType = "driver_time_overlap"
	ConflictDriverHoliday   ConflictType = "driver_on_holiday"
	ConflictVehicleMOT      ConflictType = "vehicle_mot_expired"
	ConflictVehicleInactive ConflictType = "vehicle_inactive"
	ConflictNoVehicle       ConflictType = "no_vehicle_assigned"
	ConflictCustomerOverlap ConflictType = "customer_time_overlap"
	ConflictCustomerHoliday ConflictType = "customer_on_holiday"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Conflict is a detected scheduling violation. Never persisted.
type Conflict struct {
	Type     ConflictType   `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// ConflictReport is the merged output of every conflict check.
type ConflictReport struct {
	HasConflicts  bool       `json:"hasConflicts"`
	Conflicts     []Conflict `json:"conflicts"`
	CriticalCount int        `json:"criticalCount"`
	WarningCount  int        `json:"warningCount"`
}

// NewConflictReport tallies conflicts into a report.
func NewConflictReport(conflicts []Conflict) *ConflictReport {
	r := &ConflictReport{Conflicts: conflicts}
	if r.Conflicts == nil {
		r.Conflicts = []Conflict{}
	}
	for _, c := range r.Conflicts {
		switch c.Severity {
		case SeverityCritical:
			r.CriticalCount++
		case SeverityWarning:
			r.WarningCount++
		}
	}
	r.HasConflicts = len(r.Conflicts) > 0
	return r
}

// ─── Auto-assign ────────────────────────────────────────────

// AssignFailure is one row of auto-assign's partial-failure list.
type AssignFailure struct {
	CustomerID   int64  `json:"customerId"`
	CustomerName string `json:"customerName"`
	Day          string `json:"day"`
	Date         string `json:"date"`
	Reason       string `json:"reason"`
}

// AutoAssignResult is returned even when some rows failed.
type AutoAssignResult struct {
	Successful int             `json:"successful"`
	Failed     []AssignFailure `json:"failed"`
}

// ─── Compatibility scoring ──────────────────────────────────

type RecommendationLabel string

const (
	HighlyRecommended RecommendationLabel = "highly_recommended"
	Recommended       RecommendationLabel = "recommended"
	Acceptable        RecommendationLabel = "acceptable"
)

// DriverTrip describes the journey a candidate might join.
type DriverTrip struct {
	TenantID             int64     `json:"tenant_id"`
	TripID               *int64    `json:"trip_id,omitempty"`
	DriverID             int64     `json:"driver_id"`
	DriverLocation       string    `json:"driver_location"`
	Destination          string    `json:"destination"`
	TripDate             time.Time `json:"trip_date"`
	WheelchairAccessible bool      `json:"wheelchair_accessible"`
}

// Candidate is a customer plus the history the scorer needs.
type Candidate struct {
	Customer Customer
	History  []Trip
}

// CompatibilityScore is the ranked, recomputed-per-request score.
type CompatibilityScore struct {
	Customer       Customer            `json:"customer"`
	Score          int                 `json:"score"`
	Recommendation RecommendationLabel `json:"recommendation"`
	Reasoning      []string            `json:"reasoning"`
	DistanceKm     *float64            `json:"distance_km,omitempty"`
}

// CombinationOpportunity is an existing trip with spare seats and the
// candidates that could share it.
type CombinationOpportunity struct {
	Trip       Trip                 `json:"trip"`
	SpareSeats int                  `json:"spare_seats"`
	Candidates []CompatibilityScore `json:"candidates"`
}

// ─── Roster ─────────────────────────────────────────────────

type UtilizationBand string

const (
	UnderUtilized UtilizationBand = "under_utilized"
	WellBalanced  UtilizationBand = "well_balanced"
	OverUtilized  UtilizationBand = "over_utilized"
)

// WorkloadMetric is a per-driver aggregate over a window. Never persisted.
type WorkloadMetric struct {
	DriverID              int64           `json:"driver_id"`
	DriverName            string          `json:"driver_name"`
	TotalHours            float64         `json:"total_hours"`
	TripCount             int             `json:"trip_count"`
	DistanceKm            float64         `json:"distance_km"`
	DaysWorked            int             `json:"days_worked"`
	UtilizationPercentage float64         `json:"utilization_percentage"`
	Band                  UtilizationBand `json:"band"`
}

// WorkloadSummary aggregates the metrics of every driver.
type WorkloadSummary struct {
	TotalDrivers       int     `json:"total_drivers"`
	TotalTrips         int     `json:"total_trips"`
	TotalHours         float64 `json:"total_hours"`
	AverageUtilization float64 `json:"average_utilization"`
	UnderUtilized      int     `json:"under_utilized"`
	WellBalanced       int     `json:"well_balanced"`
	OverUtilized       int     `json:"over_utilized"`
	Imbalanced         bool    `json:"imbalanced"`
}

// TripConflicts pairs a trip with the conflicts found for it.
type TripConflicts struct {
	TripID     int64      `json:"trip_id"`
	DriverID   *int64     `json:"driver_id,omitempty"`
	CustomerID int64      `json:"customer_id"`
	TripDate   time.Time  `json:"trip_date"`
	Conflicts  []Conflict `json:"conflicts"`
}

// ConflictSummary counts dashboard conflicts.
type ConflictSummary struct {
	Total         int `json:"total"`
	Critical      int `json:"critical"`
	Warning       int `json:"warning"`
	TripsAffected int `json:"trips_affected"`
}

// Dashboard is the roster view for a window.
type Dashboard struct {
	Workload struct {
		Metrics []WorkloadMetric `json:"metrics"`
		Summary WorkloadSummary  `json:"summary"`
	} `json:"workload"`
	Conflicts struct {
		Items   []TripConflicts `json:"items"`
		Summary ConflictSummary `json:"summary"`
	} `json:"conflicts"`
	UnassignedTrips int `json:"unassignedTrips"`
}

// AssignmentProposal is one roster auto-assign suggestion.
type AssignmentProposal struct {
	TripID     int64    `json:"trip_id"`
	CustomerID int64    `json:"customer_id"`
	DriverID   int64    `json:"driver_id"`
	DriverName string   `json:"driver_name"`
	VehicleID  *int64   `json:"vehicle_id,omitempty"`
	Reasons    []string `json:"reasons"`
	Warnings   int      `json:"warnings"`
}

// RosterAssignResult is the preview or apply outcome.
type RosterAssignResult struct {
	Applied    bool                 `json:"applied"`
	Proposals  []AssignmentProposal `json:"proposals"`
	Unassigned []int64              `json:"unassigned"`
	Failed     []AssignFailure      `json:"failed,omitempty"`
}
