package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/geo"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// DefaultMaxAssignments caps a roster auto-assign run when the caller sets none.
const DefaultMaxAssignments = 50

// Utilization band edges, in percent.
const (
	UnderUtilizedBelow = 50.0
	OverUtilizedAbove  = 90.0
)

// Band classifies a utilization percentage for display.
func Band(pct float64) model.UtilizationBand {
	switch {
	case pct < UnderUtilizedBelow:
		return model.UnderUtilized
	case pct > OverUtilizedAbove:
		return model.OverUtilized
	default:
		return model.WellBalanced
	}
}

// RosterAssignRequest configures a roster auto-assign run.
type RosterAssignRequest struct {
	Date              time.Time
	BalanceWorkload   bool
	ConsiderProximity bool
	MaxAssignments    int
	ApplyChanges      bool
}

// RosterService aggregates workload and conflicts over a window and
// proposes drivers for unassigned trips. It adds no assignment rules of its
// own: candidates are filtered by the conflict checks and ordered by the
// regular driver, workload and postcode proximity.
type RosterService struct {
	trips    TripStore
	avail    AvailabilityStore
	settings Settings
	log      *zap.Logger
}

// NewRosterService creates a roster service.
func NewRosterService(trips TripStore, avail AvailabilityStore, settings Settings, log *zap.Logger) *RosterService {
	return &RosterService{trips: trips, avail: avail, settings: settings, log: orNop(log)}
}

// ─── Dashboard ──────────────────────────────────────────────

// Dashboard returns workload metrics, window-wide conflicts and the count
// of unassigned trips.
func (s *RosterService) Dashboard(ctx context.Context, tenantID int64, window timeslot.DateRange) (*model.Dashboard, error) {
	if err := validateRange(window, s.settings.MaxAutoAssignDays); err != nil {
		return nil, err
	}

	src, err := s.loadWindow(ctx, tenantID, window)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	drivers, err := s.avail.ListActiveDrivers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	dash := &model.Dashboard{}

	// ── Workload ────────────────────────────────────────
	metrics := s.workload(drivers, src.trips, window)
	dash.Workload.Metrics = metrics
	dash.Workload.Summary = summarize(metrics, src.trips)

	// ── Conflicts ───────────────────────────────────────
	items := []model.TripConflicts{}
	var sum model.ConflictSummary
	for i := range src.trips {
		t := &src.trips[i]
		report, err := detectConflicts(ctx, src, tenantID, t, &t.ID)
		if err != nil {
			return nil, fmt.Errorf("dashboard: trip %d: %w", t.ID, err)
		}
		if !report.HasConflicts {
			continue
		}
		items = append(items, model.TripConflicts{
			TripID:     t.ID,
			DriverID:   t.DriverID,
			CustomerID: t.CustomerID,
			TripDate:   t.TripDate,
			Conflicts:  report.Conflicts,
		})
		sum.Total += len(report.Conflicts)
		sum.Critical += report.CriticalCount
		sum.Warning += report.WarningCount
	}
	sum.TripsAffected = len(items)
	dash.Conflicts.Items = items
	dash.Conflicts.Summary = sum

	// ── Unassigned ──────────────────────────────────────
	for _, t := range src.trips {
		if t.DriverID == nil {
			dash.UnassignedTrips++
		}
	}

	return dash, nil
}

// tripHours is the scheduled duration of a trip. A missing return time
// counts as the nominal duration so open-ended trips do not skew averages.
func (s *RosterService) tripHours(t *model.Trip) float64 {
	if t.ReturnTime == nil {
		return s.settings.NominalTripDuration.Hours()
	}
	return t.Span().Duration().Hours()
}

// workload builds one metric per active driver, ordered by driver ID.
func (s *RosterService) workload(drivers []model.Driver, trips []model.Trip, window timeslot.DateRange) []model.WorkloadMetric {
	capacity := s.settings.FullTimeHoursPerWeek * float64(window.Len()) / 7

	byDriver := make(map[int64]*model.WorkloadMetric, len(drivers))
	days := make(map[int64]map[time.Time]bool, len(drivers))
	metrics := make([]model.WorkloadMetric, len(drivers))
	for i, d := range drivers {
		metrics[i] = model.WorkloadMetric{DriverID: d.ID, DriverName: d.Name}
		byDriver[d.ID] = &metrics[i]
		days[d.ID] = map[time.Time]bool{}
	}

	for i := range trips {
		t := &trips[i]
		if t.DriverID == nil {
			continue
		}
		m, ok := byDriver[*t.DriverID]
		if !ok {
			continue
		}
		m.TripCount++
		m.TotalHours += s.tripHours(t)
		if t.DistanceKm != nil {
			m.DistanceKm += *t.DistanceKm
		}
		days[*t.DriverID][timeslot.Day(t.TripDate)] = true
	}

	for i := range metrics {
		m := &metrics[i]
		m.DaysWorked = len(days[m.DriverID])
		m.TotalHours = round1(m.TotalHours)
		m.DistanceKm = round1(m.DistanceKm)
		if capacity > 0 {
			m.UtilizationPercentage = round1(m.TotalHours / capacity * 100)
		}
		m.Band = Band(m.UtilizationPercentage)
	}
	return metrics
}

func summarize(metrics []model.WorkloadMetric, trips []model.Trip) model.WorkloadSummary {
	sum := model.WorkloadSummary{TotalDrivers: len(metrics), TotalTrips: len(trips)}
	var util float64
	for _, m := range metrics {
		sum.TotalHours += m.TotalHours
		util += m.UtilizationPercentage
		switch m.Band {
		case model.UnderUtilized:
			sum.UnderUtilized++
		case model.WellBalanced:
			sum.WellBalanced++
		case model.OverUtilized:
			sum.OverUtilized++
		}
	}
	sum.TotalHours = round1(sum.TotalHours)
	if len(metrics) > 0 {
		sum.AverageUtilization = round1(util / float64(len(metrics)))
	}
	sum.Imbalanced = sum.UnderUtilized > 0 && sum.OverUtilized > 0
	return sum
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ─── Auto-assign from dashboard ─────────────────────────────

// AutoAssign proposes drivers for the unassigned trips on req.Date. With
// ApplyChanges it commits each proposal best-effort; otherwise nothing is
// written.
//
// For each trip, in pickup order, candidates are the customer's regular
// driver first, then every other active driver ordered by postcode
// proximity (ConsiderProximity), then by hours already rostered this week
// (BalanceWorkload), then by ID. The first candidate with no critical
// conflict and a suitable vehicle wins. Proposals made earlier in the run
// count as booked for later trips.
func (s *RosterService) AutoAssign(ctx context.Context, tenantID int64, req RosterAssignRequest) (*model.RosterAssignResult, error) {
	if req.Date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if req.MaxAssignments < 0 {
		return nil, invalid("maxAssignments", "must not be negative")
	}
	limit := req.MaxAssignments
	if limit == 0 {
		limit = DefaultMaxAssignments
	}

	date := timeslot.Day(req.Date)
	week := weekOf(date)

	src, err := s.loadWindow(ctx, tenantID, week)
	if err != nil {
		return nil, fmt.Errorf("roster auto-assign: %w", err)
	}
	drivers, err := s.avail.ListActiveDrivers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("roster auto-assign: %w", err)
	}
	for i := range drivers {
		src.drivers[drivers[i].ID] = &drivers[i]
	}

	hours := map[int64]float64{}
	for _, m := range s.workload(drivers, src.trips, week) {
		hours[m.DriverID] = m.TotalHours
	}

	pending, err := src.tripsFor(ctx, model.TripFilter{
		TenantID:       tenantID,
		Date:           &date,
		Status:         ptr(model.TripScheduled),
		UnassignedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("roster auto-assign: %w", err)
	}

	res := &model.RosterAssignResult{
		Proposals:  []model.AssignmentProposal{},
		Unassigned: []int64{},
	}

	for i := range pending {
		t := pending[i]
		if len(res.Proposals) >= limit {
			res.Unassigned = append(res.Unassigned, t.ID)
			continue
		}

		customer, err := s.avail.GetCustomer(ctx, tenantID, t.CustomerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("roster auto-assign: trip %d: %w", t.ID, err)
		}

		order := candidateOrder(drivers, customer, &t, hours, req)
		proposal, err := s.firstFit(ctx, src, tenantID, &t, order, customer)
		if err != nil {
			return nil, fmt.Errorf("roster auto-assign: trip %d: %w", t.ID, err)
		}
		if proposal == nil {
			res.Unassigned = append(res.Unassigned, t.ID)
			continue
		}

		res.Proposals = append(res.Proposals, *proposal)
		hours[proposal.DriverID] += s.tripHours(&t)

		// Later trips must see this proposal as booked.
		booked := t
		booked.DriverID = ptr(proposal.DriverID)
		booked.VehicleID = proposal.VehicleID
		src.replace(booked)
	}

	if req.ApplyChanges {
		res.Applied = true
		res.Failed = s.apply(ctx, tenantID, res.Proposals, pending)
	}

	s.log.Info("roster auto-assign",
		zap.Int64("tenant_id", tenantID),
		zap.String("date", date.Format(timeslot.DateLayout)),
		zap.Bool("applied", res.Applied),
		zap.Int("proposals", len(res.Proposals)),
		zap.Int("unassigned", len(res.Unassigned)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// candidateOrder returns the drivers in the order they should be tried.
func candidateOrder(
	drivers []model.Driver,
	customer *model.Customer,
	t *model.Trip,
	hours map[int64]float64,
	req RosterAssignRequest,
) []*model.Driver {
	var regular int64
	if customer != nil && customer.RegularDriverID != nil {
		regular = *customer.RegularDriverID
	}
	pickup := t.PickupAddress
	if pickup == "" && customer != nil {
		pickup = customerAddress(*customer)
	}

	order := make([]*model.Driver, len(drivers))
	for i := range drivers {
		order[i] = &drivers[i]
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if (a.ID == regular) != (b.ID == regular) {
			return a.ID == regular
		}
		if req.ConsiderProximity {
			pa := geo.PostcodeProximity(a.Postcode, pickup)
			pb := geo.PostcodeProximity(b.Postcode, pickup)
			if pa != pb {
				return pa > pb
			}
		}
		if req.BalanceWorkload && hours[a.ID] != hours[b.ID] {
			return hours[a.ID] < hours[b.ID]
		}
		return a.ID < b.ID
	})
	return order
}

// firstFit returns the first driver in order that can take t, or nil.
func (s *RosterService) firstFit(
	ctx context.Context,
	src *windowSource,
	tenantID int64,
	t *model.Trip,
	order []*model.Driver,
	customer *model.Customer,
) (*model.AssignmentProposal, error) {
	needsWheelchair := t.RequiresWheelchair || (customer != nil && customer.RequiresWheelchair)

	for _, d := range order {
		candidate := *t
		candidate.DriverID = ptr(d.ID)
		if candidate.VehicleID == nil {
			candidate.VehicleID = d.VehicleID
		}

		if needsWheelchair {
			ok, err := s.accessible(ctx, src, tenantID, candidate.VehicleID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		report, err := detectConflicts(ctx, src, tenantID, &candidate, &t.ID)
		if err != nil {
			return nil, err
		}
		if report.CriticalCount > 0 {
			continue
		}

		reasons := []string{}
		if customer != nil && customer.RegularDriverID != nil && *customer.RegularDriverID == d.ID {
			reasons = append(reasons, "Customer's regular driver")
		}
		if p := geo.PostcodeProximity(d.Postcode, t.PickupAddress); p != geo.ProximityUnknown {
			reasons = append(reasons, "Driver based in "+p.String())
		}
		reasons = append(reasons, "No critical conflicts")

		return &model.AssignmentProposal{
			TripID:     t.ID,
			CustomerID: t.CustomerID,
			DriverID:   d.ID,
			DriverName: d.Name,
			VehicleID:  candidate.VehicleID,
			Reasons:    reasons,
			Warnings:   report.WarningCount,
		}, nil
	}
	return nil, nil
}

func (s *RosterService) accessible(ctx context.Context, src *windowSource, tenantID int64, vehicleID *int64) (bool, error) {
	if vehicleID == nil {
		return false, nil
	}
	v, err := src.vehicle(ctx, tenantID, *vehicleID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.WheelchairAccessible && v.Active, nil
}

// apply commits proposals one by one. A failed row is reported and the
// rest continue.
func (s *RosterService) apply(ctx context.Context, tenantID int64, proposals []model.AssignmentProposal, trips []model.Trip) []model.AssignFailure {
	dates := make(map[int64]time.Time, len(trips))
	for _, t := range trips {
		dates[t.ID] = t.TripDate
	}

	failed := []model.AssignFailure{}
	for _, p := range proposals {
		if _, err := s.trips.AssignDriver(ctx, tenantID, p.TripID, p.DriverID, p.VehicleID); err != nil {
			s.log.Warn("roster assignment failed",
				zap.Int64("trip_id", p.TripID), zap.Int64("driver_id", p.DriverID), zap.Error(err))
			date := dates[p.TripID]
			failed = append(failed, model.AssignFailure{
				CustomerID: p.CustomerID,
				Day:        model.WeekdayOf(date).String(),
				Date:       date.Format(timeslot.DateLayout),
				Reason:     err.Error(),
			})
		}
	}
	return failed
}

// weekOf returns the Monday-to-Sunday week containing date.
func weekOf(date time.Time) timeslot.DateRange {
	offset := (int(date.Weekday()) + 6) % 7
	start := timeslot.Day(date).AddDate(0, 0, -offset)
	return timeslot.DateRange{Start: start, End: start.AddDate(0, 0, 6)}
}

// ─── Window source ──────────────────────────────────────────

// windowSource answers conflict lookups from the non-cancelled trips of a
// preloaded window and memoizes entity lookups, so checking every trip in
// the window costs one query per distinct driver, vehicle and leave owner.
type windowSource struct {
	base     storeSource
	trips    []model.Trip
	drivers  map[int64]*model.Driver
	vehicles map[int64]*model.Vehicle
	leaves   map[leaveKey][]model.HolidayRequest
	window   timeslot.DateRange
}

type leaveKey struct {
	entity model.EntityType
	id     int64
}

func (s *RosterService) loadWindow(ctx context.Context, tenantID int64, window timeslot.DateRange) (*windowSource, error) {
	from, to := timeslot.Day(window.Start), timeslot.Day(window.End)
	trips, err := s.trips.FindTrips(ctx, model.TripFilter{
		TenantID:         tenantID,
		From:             &from,
		To:               &to,
		ExcludeCancelled: true,
	})
	if err != nil {
		return nil, err
	}
	return &windowSource{
		base:     storeSource{trips: s.trips, avail: s.avail},
		trips:    trips,
		drivers:  map[int64]*model.Driver{},
		vehicles: map[int64]*model.Vehicle{},
		leaves:   map[leaveKey][]model.HolidayRequest{},
		window:   timeslot.DateRange{Start: from, End: to},
	}, nil
}

// replace swaps the stored copy of t.
func (w *windowSource) replace(t model.Trip) {
	for i := range w.trips {
		if w.trips[i].ID == t.ID {
			w.trips[i] = t
			return
		}
	}
	w.trips = append(w.trips, t)
}

func (w *windowSource) tripsFor(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	if f.Date == nil || !w.window.Contains(*f.Date) {
		return w.base.tripsFor(ctx, f)
	}
	var out []model.Trip
	for _, t := range w.trips {
		if !timeslot.SameDay(t.TripDate, *f.Date) {
			continue
		}
		if f.DriverID != nil && (t.DriverID == nil || *t.DriverID != *f.DriverID) {
			continue
		}
		if f.CustomerID != nil && t.CustomerID != *f.CustomerID {
			continue
		}
		if f.ExcludeID != nil && t.ID == *f.ExcludeID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.UnassignedOnly && t.DriverID != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (w *windowSource) driver(ctx context.Context, tenantID, id int64) (*model.Driver, error) {
	if d, ok := w.drivers[id]; ok {
		return d, nil
	}
	d, err := w.base.driver(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	w.drivers[id] = d
	return d, nil
}

func (w *windowSource) vehicle(ctx context.Context, tenantID, id int64) (*model.Vehicle, error) {
	if v, ok := w.vehicles[id]; ok {
		if v == nil {
			return nil, fmt.Errorf("vehicle %d: %w", id, ErrNotFound)
		}
		return v, nil
	}
	v, err := w.base.vehicle(ctx, tenantID, id)
	if errors.Is(err, ErrNotFound) {
		w.vehicles[id] = nil
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	w.vehicles[id] = v
	return v, nil
}

func (w *windowSource) leave(ctx context.Context, tenantID int64, entity model.EntityType, id int64, date time.Time) ([]model.HolidayRequest, error) {
	if !w.window.Contains(date) {
		return w.base.leave(ctx, tenantID, entity, id, date)
	}
	key := leaveKey{entity: entity, id: id}
	if reqs, ok := w.leaves[key]; ok {
		return reqs, nil
	}
	reqs, err := w.base.avail.ApprovedHolidays(ctx, tenantID, entity, id, w.window)
	if err != nil {
		return nil, err
	}
	w.leaves[key] = reqs
	return reqs, nil
}
