// Package repository provides database access for the scheduling engine.
//
// TripRepository owns the trips table, including the transactional bulk
// path. AvailabilityRepository is a read-only view of the drivers, vehicles,
// customers and holiday requests the conflict checks consult. Redis backs the
// slot locks and the geocode cache.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ErrNotFound is returned when a referenced row does not exist for the tenant.
var ErrNotFound = errors.New("not found")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same
// statements run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripInserter writes a single trip. Inserted is false when the row was
// skipped by the regular-trip uniqueness guard.
type TripInserter interface {
	InsertTrip(ctx context.Context, t *model.Trip) (inserted bool, err error)
}

// notFound maps pgx.ErrNoRows onto ErrNotFound with context.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %d: %w", what, id, err)
}

// clockArg converts a clock into a TIME parameter.
func clockArg(c timeslot.Clock) string {
	return c.String()
}

// optClockArg converts an optional clock into a nullable TIME parameter.
func optClockArg(c *timeslot.Clock) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}

// parseOptClock parses a nullable "HH:MI" column.
func parseOptClock(s *string) (*timeslot.Clock, error) {
	if s == nil {
		return nil, nil
	}
	c, err := timeslot.ParseClock(*s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
