package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/internal/repository"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ─── In-memory trip store ───────────────────────────────────

type memTrips struct {
	mu     sync.Mutex
	trips  []model.Trip
	nextID int64

	// failInsert makes InsertTrip fail for matching trips.
	failInsert func(t *model.Trip) error
	findErr    error
}

func newMemTrips(seed ...model.Trip) *memTrips {
	m := &memTrips{nextID: 1000}
	for _, t := range seed {
		if t.Status == "" {
			t.Status = model.TripScheduled
		}
		if t.TripType == "" {
			t.TripType = model.TripAdhoc
		}
		m.trips = append(m.trips, t)
	}
	return m
}

func matches(t model.Trip, f model.TripFilter) bool {
	if t.TenantID != f.TenantID {
		return false
	}
	if f.DriverID != nil && (t.DriverID == nil || *t.DriverID != *f.DriverID) {
		return false
	}
	if f.CustomerID != nil && t.CustomerID != *f.CustomerID {
		return false
	}
	if len(f.CustomerIDs) > 0 {
		found := false
		for _, id := range f.CustomerIDs {
			if id == t.CustomerID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Date != nil && !timeslot.SameDay(t.TripDate, *f.Date) {
		return false
	}
	if f.From != nil && timeslot.Day(t.TripDate).Before(timeslot.Day(*f.From)) {
		return false
	}
	if f.To != nil && timeslot.Day(t.TripDate).After(timeslot.Day(*f.To)) {
		return false
	}
	if f.ExcludeID != nil && t.ID == *f.ExcludeID {
		return false
	}
	if f.TripType != nil && t.TripType != *f.TripType {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.ExcludeCancelled && t.Status == model.TripCancelled {
		return false
	}
	if f.UnassignedOnly && t.DriverID != nil {
		return false
	}
	return true
}

func (m *memTrips) FindTrips(_ context.Context, f model.TripFilter) ([]model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []model.Trip
	for _, t := range m.trips {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TripDate.Equal(out[j].TripDate) {
			return out[i].TripDate.Before(out[j].TripDate)
		}
		if out[i].PickupTime != out[j].PickupTime {
			return out[i].PickupTime < out[j].PickupTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memTrips) GetTrip(_ context.Context, tenantID, id int64) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.TenantID == tenantID && t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memTrips) HasRegularTrip(_ context.Context, tenantID, customerID int64, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.TenantID == tenantID && t.CustomerID == customerID &&
			t.TripType == model.TripRegular && t.Status != model.TripCancelled &&
			timeslot.SameDay(t.TripDate, date) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTrips) InsertTrip(_ context.Context, t *model.Trip) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(t)
}

// insertLocked mirrors the unique partial index on regular trips.
func (m *memTrips) insertLocked(t *model.Trip) (bool, error) {
	if m.failInsert != nil {
		if err := m.failInsert(t); err != nil {
			return false, err
		}
	}
	if t.TripType == model.TripRegular {
		for _, o := range m.trips {
			if o.TenantID == t.TenantID && o.CustomerID == t.CustomerID &&
				o.TripType == model.TripRegular && o.Status != model.TripCancelled &&
				timeslot.SameDay(o.TripDate, t.TripDate) && o.PickupTime == t.PickupTime {
				return false, nil
			}
		}
	}
	if t.Status == "" {
		t.Status = model.TripScheduled
	}
	if t.PassengerCount == 0 {
		t.PassengerCount = 1
	}
	m.nextID++
	t.ID = m.nextID
	m.trips = append(m.trips, *t)
	return true, nil
}

type memTx struct{ m *memTrips }

func (tx memTx) InsertTrip(_ context.Context, t *model.Trip) (bool, error) {
	return tx.m.insertLocked(t)
}

func (m *memTrips) InTx(_ context.Context, fn func(repository.TripInserter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := append([]model.Trip(nil), m.trips...)
	savedID := m.nextID
	if err := fn(memTx{m}); err != nil {
		m.trips, m.nextID = saved, savedID
		return err
	}
	return nil
}

func (m *memTrips) AssignDriver(_ context.Context, tenantID, tripID, driverID int64, vehicleID *int64) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips {
		t := &m.trips[i]
		if t.TenantID != tenantID || t.ID != tripID {
			continue
		}
		if t.Status == model.TripCompleted || t.Status == model.TripCancelled {
			return nil, repository.ErrStaleStatus
		}
		t.DriverID = ptr(driverID)
		t.VehicleID = vehicleID
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memTrips) UpdateStatus(_ context.Context, tenantID, tripID int64, from, to model.TripStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips {
		t := &m.trips[i]
		if t.TenantID == tenantID && t.ID == tripID {
			if t.Status != from {
				return repository.ErrStaleStatus
			}
			t.Status = to
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memTrips) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trips)
}

// ─── In-memory availability store ───────────────────────────

type memAvail struct {
	drivers   map[int64]*model.Driver
	vehicles  map[int64]*model.Vehicle
	customers map[int64]*model.Customer
	holidays  []model.HolidayRequest
}

func newMemAvail() *memAvail {
	return &memAvail{
		drivers:   map[int64]*model.Driver{},
		vehicles:  map[int64]*model.Vehicle{},
		customers: map[int64]*model.Customer{},
	}
}

func (a *memAvail) addDriver(d model.Driver) *memAvail {
	if d.TenantID == 0 {
		d.TenantID = tenant
	}
	a.drivers[d.ID] = &d
	return a
}

func (a *memAvail) addVehicle(v model.Vehicle) *memAvail {
	if v.TenantID == 0 {
		v.TenantID = tenant
	}
	a.vehicles[v.ID] = &v
	return a
}

func (a *memAvail) addCustomer(c model.Customer) *memAvail {
	if c.TenantID == 0 {
		c.TenantID = tenant
	}
	a.customers[c.ID] = &c
	return a
}

func (a *memAvail) GetDriver(_ context.Context, tenantID, id int64) (*model.Driver, error) {
	if d, ok := a.drivers[id]; ok && d.TenantID == tenantID {
		cp := *d
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (a *memAvail) ListActiveDrivers(_ context.Context, tenantID int64) ([]model.Driver, error) {
	var out []model.Driver
	for _, d := range a.drivers {
		if d.TenantID == tenantID && d.Active {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *memAvail) GetVehicle(_ context.Context, tenantID, id int64) (*model.Vehicle, error) {
	if v, ok := a.vehicles[id]; ok && v.TenantID == tenantID {
		cp := *v
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (a *memAvail) GetCustomer(_ context.Context, tenantID, id int64) (*model.Customer, error) {
	if c, ok := a.customers[id]; ok && c.TenantID == tenantID {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (a *memAvail) customersWhere(tenantID int64, keep func(*model.Customer) bool) []model.Customer {
	var out []model.Customer
	for _, c := range a.customers {
		if c.TenantID == tenantID && keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *memAvail) ListActiveCustomers(_ context.Context, tenantID int64) ([]model.Customer, error) {
	return a.customersWhere(tenantID, func(c *model.Customer) bool { return c.Active }), nil
}

func (a *memAvail) ListScheduledCustomers(_ context.Context, tenantID int64) ([]model.Customer, error) {
	return a.customersWhere(tenantID, func(c *model.Customer) bool {
		return c.Active && (!c.Schedule.IsEmpty() || c.ScheduleErr != nil)
	}), nil
}

func (a *memAvail) ListCustomersByID(_ context.Context, tenantID int64, ids []int64) ([]model.Customer, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return a.customersWhere(tenantID, func(c *model.Customer) bool { return want[c.ID] }), nil
}

func (a *memAvail) ApprovedHolidays(_ context.Context, tenantID int64, entity model.EntityType, entityID int64, window timeslot.DateRange) ([]model.HolidayRequest, error) {
	var out []model.HolidayRequest
	for _, h := range a.holidays {
		if h.TenantID != tenantID || h.EntityType != entity || h.EntityID != entityID {
			continue
		}
		if h.Status != model.HolidayApproved {
			continue
		}
		if h.StartDate.After(window.End) || h.EndDate.Before(window.Start) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// ─── Fixtures ───────────────────────────────────────────────

const tenant int64 = 1

// 2025-03-03 is a Monday.
var monday = date("2025-03-03")

func date(s string) time.Time {
	d, err := timeslot.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func clock(s string) timeslot.Clock { return timeslot.MustClock(s) }

func clockPtr(s string) *timeslot.Clock { return ptr(timeslot.MustClock(s)) }

// trip builds a scheduled trip for tenant 1.
func trip(id, customerID int64, driverID *int64, day time.Time, pickup string, ret *timeslot.Clock) model.Trip {
	return model.Trip{
		ID:             id,
		TenantID:       tenant,
		CustomerID:     customerID,
		DriverID:       driverID,
		TripDate:       day,
		PickupTime:     clock(pickup),
		ReturnTime:     ret,
		TripType:       model.TripAdhoc,
		Status:         model.TripScheduled,
		PassengerCount: 1,
	}
}

func conflictTypes(r *model.ConflictReport) []model.ConflictType {
	out := make([]model.ConflictType, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		out = append(out, c.Type)
	}
	return out
}

func hasConflict(r *model.ConflictReport, typ model.ConflictType) bool {
	for _, c := range r.Conflicts {
		if c.Type == typ {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")

type stubLocker struct{ err error }

func (l stubLocker) LockTrip(context.Context, *model.Trip) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}
