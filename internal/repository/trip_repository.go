package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ErrStaleStatus is returned when a status update lost a race with another writer.
var ErrStaleStatus = errors.New("trip status changed concurrently")

// TripRepository handles reads and writes on the trips table.
type TripRepository struct {
	pool *pgxpool.Pool
}

// NewTripRepository creates a new trip repository.
func NewTripRepository(pool *pgxpool.Pool) *TripRepository {
	return &TripRepository{pool: pool}
}

const tripColumns = `
	t.id, t.tenant_id, t.customer_id, t.driver_id, t.vehicle_id,
	t.trip_date,
	to_char(t.pickup_time, 'HH24:MI'),
	to_char(t.return_time, 'HH24:MI'),
	t.pickup_location, t.pickup_address, t.destination, t.destination_address,
	t.trip_type, t.status, t.urgent, t.price::float8, t.passenger_count,
	t.requires_wheelchair, t.requires_escort, t.distance_km::float8, t.notes,
	t.created_at, t.updated_at`

func scanTrip(row pgx.Row) (*model.Trip, error) {
	var (
		tr         model.Trip
		pickup     string
		returnTime *string
	)
	err := row.Scan(
		&tr.ID, &tr.TenantID, &tr.CustomerID, &tr.DriverID, &tr.VehicleID,
		&tr.TripDate,
		&pickup,
		&returnTime,
		&tr.PickupLocation, &tr.PickupAddress, &tr.Destination, &tr.DestinationAddress,
		&tr.TripType, &tr.Status, &tr.Urgent, &tr.Price, &tr.PassengerCount,
		&tr.RequiresWheelchair, &tr.RequiresEscort, &tr.DistanceKm, &tr.Notes,
		&tr.CreatedAt, &tr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tr.PickupTime, err = timeslot.ParseClock(pickup); err != nil {
		return nil, fmt.Errorf("trip %d pickup_time: %w", tr.ID, err)
	}
	if tr.ReturnTime, err = parseOptClock(returnTime); err != nil {
		return nil, fmt.Errorf("trip %d return_time: %w", tr.ID, err)
	}
	return &tr, nil
}

// ─── Reads ──────────────────────────────────────────────────

// FindTrips returns trips matching the filter, ordered by date then pickup.
func (r *TripRepository) FindTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	p := tripPredicate(f)
	query := `SELECT ` + tripColumns + `
		FROM trips t
		` + p.where() + `
		ORDER BY t.trip_date, t.pickup_time, t.id`

	rows, err := r.pool.Query(ctx, query, p.args...)
	if err != nil {
		return nil, fmt.Errorf("find trips: %w", err)
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		tr, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("find trips: scan: %w", err)
		}
		trips = append(trips, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find trips: %w", err)
	}
	return trips, nil
}

// GetTrip fetches one trip scoped to the tenant.
func (r *TripRepository) GetTrip(ctx context.Context, tenantID, id int64) (*model.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips t WHERE t.tenant_id = $1 AND t.id = $2`
	tr, err := scanTrip(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, notFound(err, "get trip", id)
	}
	return tr, nil
}

// HasRegularTrip reports whether a non-cancelled regular trip exists for the
// customer on the date.
func (r *TripRepository) HasRegularTrip(ctx context.Context, tenantID, customerID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trips
			WHERE tenant_id = $1
			  AND customer_id = $2
			  AND trip_date = $3
			  AND trip_type = 'regular'
			  AND status <> 'cancelled'
		)
	`, tenantID, customerID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has regular trip: customer %d: %w", customerID, err)
	}
	return exists, nil
}

// ─── Writes ─────────────────────────────────────────────────

// InsertTrip inserts one trip outside any transaction.
func (r *TripRepository) InsertTrip(ctx context.Context, t *model.Trip) (bool, error) {
	return insertTrip(ctx, r.pool, t)
}

// InTx runs fn inside a single transaction. Any error from fn rolls back
// every insert made through the inserter it was given.
func (r *TripRepository) InTx(ctx context.Context, fn func(TripInserter) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("trips: begin tx: %w", err)
	}
	// Defer rollback; no-op once committed.
	defer tx.Rollback(ctx)

	if err := fn(txInserter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("trips: commit: %w", err)
	}
	return nil
}

type txInserter struct {
	tx pgx.Tx
}

func (i txInserter) InsertTrip(ctx context.Context, t *model.Trip) (bool, error) {
	return insertTrip(ctx, i.tx, t)
}

// insertTrip writes t and fills its ID and timestamps. Regular trips that
// collide with the partial unique index are skipped, not failed.
func insertTrip(ctx context.Context, q querier, t *model.Trip) (bool, error) {
	if t.Status == "" {
		t.Status = model.TripScheduled
	}
	if t.PassengerCount == 0 {
		t.PassengerCount = 1
	}

	err := q.QueryRow(ctx, `
		INSERT INTO trips (
			tenant_id, customer_id, driver_id, vehicle_id,
			trip_date, pickup_time, return_time,
			pickup_location, pickup_address, destination, destination_address,
			trip_type, status, urgent, price, passenger_count,
			requires_wheelchair, requires_escort, distance_km, notes
		) VALUES (
			$1, $2, $3, $4,
			$5, $6::time, $7::time,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20
		)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		t.TenantID, t.CustomerID, t.DriverID, t.VehicleID,
		t.TripDate, clockArg(t.PickupTime), optClockArg(t.ReturnTime),
		t.PickupLocation, t.PickupAddress, t.Destination, t.DestinationAddress,
		t.TripType, t.Status, t.Urgent, t.Price, t.PassengerCount,
		t.RequiresWheelchair, t.RequiresEscort, t.DistanceKm, t.Notes,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert trip: customer %d on %s: %w",
			t.CustomerID, t.TripDate.Format(timeslot.DateLayout), err)
	}
	return true, nil
}

// AssignDriver sets the driver and vehicle of a trip under a row lock so a
// concurrent status change cannot interleave.
func (r *TripRepository) AssignDriver(
	ctx context.Context,
	tenantID, tripID, driverID int64,
	vehicleID *int64,
) (*model.Trip, error) {

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("assign driver: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.TripStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM trips
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, tripID).Scan(&status)
	if err != nil {
		return nil, notFound(err, "assign driver: lock trip", tripID)
	}
	if status == model.TripCompleted || status == model.TripCancelled {
		return nil, fmt.Errorf("assign driver: trip %d is %s: %w", tripID, status, ErrStaleStatus)
	}

	_, err = tx.Exec(ctx, `
		UPDATE trips
		SET driver_id = $3, vehicle_id = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, tripID, driverID, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("assign driver: update trip %d: %w", tripID, err)
	}

	tr, err := scanTrip(tx.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips t WHERE t.tenant_id = $1 AND t.id = $2`,
		tenantID, tripID))
	if err != nil {
		return nil, fmt.Errorf("assign driver: reload trip %d: %w", tripID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("assign driver: commit: %w", err)
	}
	return tr, nil
}

// UpdateStatus moves a trip from one status to another. The update only
// applies if the row is still in the expected status.
func (r *TripRepository) UpdateStatus(
	ctx context.Context,
	tenantID, tripID int64,
	from, to model.TripStatus,
) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE trips
		SET status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $3
	`, tenantID, tripID, from, to)
	if err != nil {
		return fmt.Errorf("update trip %d status: %w", tripID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update trip %d status %s→%s: %w", tripID, from, to, ErrStaleStatus)
	}
	return nil
}
