package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/repository"
)

// ─── Service Errors ─────────────────────────────────────────

var (
	// ErrNotFound is returned when a referenced trip, driver, vehicle or
	// customer does not exist for the tenant.
	ErrNotFound = repository.ErrNotFound

	// ErrSchedulingConflict is returned when a write would create a critical
	// conflict and the caller did not ask to override it.
	ErrSchedulingConflict = errors.New("trip has critical scheduling conflicts")

	// ErrSlotBusy is returned when another request is scheduling the same
	// driver or customer on the same day.
	ErrSlotBusy = errors.New("another request is scheduling this slot")

	// ErrInvalidTransition is returned for a status change the trip
	// lifecycle does not allow, including one that lost a race.
	ErrInvalidTransition = errors.New("invalid trip status transition")

	// ErrDuplicateTrip is returned when a regular trip already occupies the
	// same customer, date and pickup time.
	ErrDuplicateTrip = errors.New("duplicate regular trip")

	// ErrDependencyUnavailable marks an optional collaborator failure. It is
	// logged and never returned to a caller of the scorer.
	ErrDependencyUnavailable = errors.New("optional dependency unavailable")
)

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// invalid builds a single-field ValidationError.
func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// BatchAbortedError is returned when an atomic batch rolled back. Index is
// the zero-based row that failed.
type BatchAbortedError struct {
	Index int
	Err   error
}

func (e *BatchAbortedError) Error() string {
	return fmt.Sprintf("batch aborted at row %d: %v", e.Index, e.Err)
}

func (e *BatchAbortedError) Unwrap() error { return e.Err }

// ConflictError carries the report that blocked a write.
type ConflictError struct {
	Report *model.ConflictReport
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %d critical, %d warning",
		ErrSchedulingConflict, e.Report.CriticalCount, e.Report.WarningCount)
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }
