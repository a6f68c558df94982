package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// AvailabilityRepository is the read-only view of drivers, vehicles,
// customers and approved leave used by the conflict checks and the scorer.
type AvailabilityRepository struct {
	pool *pgxpool.Pool
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(pool *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

// ─── Drivers ────────────────────────────────────────────────

const driverColumns = `
	id, tenant_id, name, active, employment_status, vehicle_id,
	postcode, address, COALESCE(holidays, '[]'::jsonb)`

// holidayJSON is the stored shape of one entry in drivers.holidays.
type holidayJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func decodeHolidays(raw []byte) ([]model.HolidayInterval, error) {
	var stored []holidayJSON
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	out := make([]model.HolidayInterval, 0, len(stored))
	for _, h := range stored {
		start, err := timeslot.ParseDate(h.Start)
		if err != nil {
			return nil, err
		}
		end, err := timeslot.ParseDate(h.End)
		if err != nil {
			return nil, err
		}
		out = append(out, model.HolidayInterval{Start: start, End: end})
	}
	return out, nil
}

func scanDriver(row pgx.Row) (*model.Driver, error) {
	var (
		d        model.Driver
		holidays []byte
	)
	if err := row.Scan(
		&d.ID, &d.TenantID, &d.Name, &d.Active, &d.EmploymentStatus, &d.VehicleID,
		&d.Postcode, &d.Address, &holidays,
	); err != nil {
		return nil, err
	}
	var err error
	if d.Holidays, err = decodeHolidays(holidays); err != nil {
		return nil, fmt.Errorf("driver %d holidays: %w", d.ID, err)
	}
	return &d, nil
}

// GetDriver fetches one driver scoped to the tenant.
func (r *AvailabilityRepository) GetDriver(ctx context.Context, tenantID, id int64) (*model.Driver, error) {
	d, err := scanDriver(r.pool.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE tenant_id = $1 AND id = $2`,
		tenantID, id))
	if err != nil {
		return nil, notFound(err, "get driver", id)
	}
	return d, nil
}

// ListActiveDrivers returns every active driver of the tenant ordered by ID.
func (r *AvailabilityRepository) ListActiveDrivers(ctx context.Context, tenantID int64) ([]model.Driver, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE tenant_id = $1 AND active ORDER BY id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []model.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("list drivers: scan: %w", err)
		}
		drivers = append(drivers, *d)
	}
	return drivers, rows.Err()
}

// ─── Vehicles ───────────────────────────────────────────────

// GetVehicle fetches one vehicle scoped to the tenant.
func (r *AvailabilityRepository) GetVehicle(ctx context.Context, tenantID, id int64) (*model.Vehicle, error) {
	v := &model.Vehicle{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, registration, seat_capacity, wheelchair_accessible, mot_expiry, active
		FROM vehicles
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(
		&v.ID, &v.TenantID, &v.Registration, &v.SeatCapacity,
		&v.WheelchairAccessible, &v.MOTExpiry, &v.Active,
	)
	if err != nil {
		return nil, notFound(err, "get vehicle", id)
	}
	return v, nil
}

// ─── Customers ──────────────────────────────────────────────

const customerColumns = `
	id, tenant_id, name, COALESCE(phone, ''), COALESCE(email, ''),
	COALESCE(address, ''), COALESCE(postcode, ''),
	requires_wheelchair, active, regular_driver_id,
	COALESCE(recurring_schedule, '{}'::jsonb)`

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var (
		c        model.Customer
		schedule []byte
	)
	if err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email,
		&c.Address, &c.Postcode,
		&c.RequiresWheelchair, &c.Active, &c.RegularDriverID,
		&schedule,
	); err != nil {
		return nil, err
	}
	// A malformed schedule only affects this customer.
	if err := json.Unmarshal(schedule, &c.Schedule); err != nil {
		c.Schedule = model.RecurringSchedule{}
		c.ScheduleErr = fmt.Errorf("customer %d recurring_schedule: %w", c.ID, err)
	}
	return &c, nil
}

func (r *AvailabilityRepository) queryCustomers(ctx context.Context, query string, args ...any) ([]model.Customer, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("list customers: scan: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

// GetCustomer fetches one customer scoped to the tenant.
func (r *AvailabilityRepository) GetCustomer(ctx context.Context, tenantID, id int64) (*model.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND id = $2`,
		tenantID, id))
	if err != nil {
		return nil, notFound(err, "get customer", id)
	}
	return c, nil
}

// ListActiveCustomers returns every active customer of the tenant ordered by ID.
func (r *AvailabilityRepository) ListActiveCustomers(ctx context.Context, tenantID int64) ([]model.Customer, error) {
	return r.queryCustomers(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND active ORDER BY id`,
		tenantID)
}

// ListScheduledCustomers returns active customers with a non-empty recurring
// schedule. Customers without a regular driver are included so auto-assign
// can report them.
func (r *AvailabilityRepository) ListScheduledCustomers(ctx context.Context, tenantID int64) ([]model.Customer, error) {
	return r.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE tenant_id = $1
		  AND active
		  AND recurring_schedule IS NOT NULL
		  AND recurring_schedule <> '{}'::jsonb
		ORDER BY id
	`, tenantID)
}

// ListCustomersByID returns the named customers of the tenant ordered by ID.
func (r *AvailabilityRepository) ListCustomersByID(ctx context.Context, tenantID int64, ids []int64) ([]model.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryCustomers(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id`,
		tenantID, ids)
}

// ─── Holiday requests ───────────────────────────────────────

// ApprovedHolidays returns approved leave for an entity that intersects the window.
func (r *AvailabilityRepository) ApprovedHolidays(
	ctx context.Context,
	tenantID int64,
	entity model.EntityType,
	entityID int64,
	window timeslot.DateRange,
) ([]model.HolidayRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, start_date, end_date, status
		FROM holiday_requests
		WHERE tenant_id = $1
		  AND entity_type = $2
		  AND entity_id = $3
		  AND status = 'approved'
		  AND start_date <= $5
		  AND end_date >= $4
		ORDER BY start_date, id
	`, tenantID, entity, entityID, dateArg(window.Start), dateArg(window.End))
	if err != nil {
		return nil, fmt.Errorf("approved holidays: %s %d: %w", entity, entityID, err)
	}
	defer rows.Close()

	var out []model.HolidayRequest
	for rows.Next() {
		var h model.HolidayRequest
		if err := rows.Scan(
			&h.ID, &h.TenantID, &h.EntityType, &h.EntityID,
			&h.StartDate, &h.EndDate, &h.Status,
		); err != nil {
			return nil, fmt.Errorf("approved holidays: scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func dateArg(t time.Time) time.Time {
	return timeslot.Day(t)
}
