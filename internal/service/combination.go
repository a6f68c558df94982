package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// RecommendRequest is the planned journey passengers are recommended for.
type RecommendRequest struct {
	TenantID          int64
	DriverID          int64
	DriverLocation    string
	Destination       string
	PickupTime        *timeslot.Clock
	TripDate          time.Time
	IncludeGoogleMaps bool
}

// CombinationService builds the candidate pools the Scorer ranks. It is
// read-only; an operator approves suggestions before anything is written.
type CombinationService struct {
	trips    TripStore
	avail    AvailabilityStore
	scorer   *Scorer
	settings Settings
	now      func() time.Time
	log      *zap.Logger
}

// NewCombinationService creates a combination service.
func NewCombinationService(
	trips TripStore,
	avail AvailabilityStore,
	scorer *Scorer,
	settings Settings,
	log *zap.Logger,
) *CombinationService {
	return &CombinationService{
		trips:    trips,
		avail:    avail,
		scorer:   scorer,
		settings: settings,
		now:      time.Now,
		log:      orNop(log),
	}
}

// RecommendPassengers ranks active customers for a planned driver trip.
// Customers already riding with the driver that day are left out. When the
// request has a pickup time, so are customers whose trips that day all fall
// outside the combination window of it.
func (s *CombinationService) RecommendPassengers(ctx context.Context, req RecommendRequest) ([]model.CompatibilityScore, error) {
	if req.TripDate.IsZero() {
		return nil, invalid("tripDate", "is required")
	}
	if req.Destination == "" {
		return nil, invalid("destination", "is required")
	}

	driver, err := s.avail.GetDriver(ctx, req.TenantID, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("recommend passengers: %w", err)
	}
	accessible, err := s.wheelchairAccessible(ctx, req.TenantID, driver.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("recommend passengers: %w", err)
	}

	customers, err := s.avail.ListActiveCustomers(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("recommend passengers: %w", err)
	}

	date := timeslot.Day(req.TripDate)
	sameDay, err := s.trips.FindTrips(ctx, model.TripFilter{
		TenantID:         req.TenantID,
		Date:             &date,
		ExcludeCancelled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("recommend passengers: %w", err)
	}
	riding := map[int64]bool{}
	booked := map[int64]bool{}
	inWindow := map[int64]bool{}
	for _, t := range sameDay {
		if t.DriverID != nil && *t.DriverID == driver.ID {
			riding[t.CustomerID] = true
		}
		booked[t.CustomerID] = true
		if req.PickupTime != nil && s.withinWindow(t.PickupTime, *req.PickupTime) {
			inWindow[t.CustomerID] = true
		}
	}

	// With a pickup time, customers already travelling that day only at
	// other times are left out.
	pool := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if riding[c.ID] {
			continue
		}
		if req.PickupTime != nil && booked[c.ID] && !inWindow[c.ID] {
			continue
		}
		pool = append(pool, c)
	}

	candidates, err := s.withHistory(ctx, req.TenantID, pool, date)
	if err != nil {
		return nil, fmt.Errorf("recommend passengers: %w", err)
	}

	trip := model.DriverTrip{
		TenantID:             req.TenantID,
		DriverID:             driver.ID,
		DriverLocation:       req.DriverLocation,
		Destination:          req.Destination,
		TripDate:             date,
		WheelchairAccessible: accessible,
	}
	geocoded := req.IncludeGoogleMaps && s.settings.geocodingEnabled(req.TenantID)
	return s.scorer.ScoreCandidates(ctx, trip, candidates, RecommendationLimit, geocoded), nil
}

// CombinationOpportunities scans scheduled trips with spare seats and ranks
// the customers of other trips that day, within the combination window of
// the pickup, as candidates to share. With no date it scans today and
// tomorrow.
func (s *CombinationService) CombinationOpportunities(ctx context.Context, tenantID int64, date *time.Time) ([]model.CombinationOpportunity, error) {
	var dates []time.Time
	if date != nil {
		dates = []time.Time{timeslot.Day(*date)}
	} else {
		today := timeslot.Day(s.now())
		dates = []time.Time{today, today.AddDate(0, 0, 1)}
	}

	geocoded := s.settings.geocodingEnabled(tenantID)
	vehicles := map[int64]*model.Vehicle{}
	drivers := map[int64]*model.Driver{}

	opportunities := []model.CombinationOpportunity{}
	for _, d := range dates {
		day := d
		trips, err := s.trips.FindTrips(ctx, model.TripFilter{
			TenantID:         tenantID,
			Date:             &day,
			ExcludeCancelled: true,
		})
		if err != nil {
			return nil, fmt.Errorf("combination opportunities: %w", err)
		}

		for i := range trips {
			t := &trips[i]
			if t.Status != model.TripScheduled || t.DriverID == nil {
				continue
			}

			v, err := s.tripVehicle(ctx, tenantID, t, drivers, vehicles)
			if err != nil {
				return nil, fmt.Errorf("combination opportunities: trip %d: %w", t.ID, err)
			}
			if v == nil {
				continue
			}
			spare := v.SeatCapacity - t.PassengerCount
			if spare <= 0 {
				continue
			}

			pool := s.nearbyCustomers(t, trips)
			if len(pool) == 0 {
				continue
			}
			customers, err := s.avail.ListCustomersByID(ctx, tenantID, pool)
			if err != nil {
				return nil, fmt.Errorf("combination opportunities: %w", err)
			}
			candidates, err := s.withHistory(ctx, tenantID, customers, day)
			if err != nil {
				return nil, fmt.Errorf("combination opportunities: %w", err)
			}

			ranked := s.scorer.ScoreCandidates(ctx, model.DriverTrip{
				TenantID:             tenantID,
				TripID:               ptr(t.ID),
				DriverID:             *t.DriverID,
				DriverLocation:       t.PickupAddress,
				Destination:          t.Destination,
				TripDate:             day,
				WheelchairAccessible: v.WheelchairAccessible,
			}, candidates, CombinationLimit, geocoded)
			if len(ranked) == 0 {
				continue
			}

			opportunities = append(opportunities, model.CombinationOpportunity{
				Trip:       *t,
				SpareSeats: spare,
				Candidates: ranked,
			})
		}
	}
	return opportunities, nil
}

// nearbyCustomers returns the customers of other trips whose pickup is
// within the combination window of t, in first-seen order.
func (s *CombinationService) nearbyCustomers(t *model.Trip, sameDay []model.Trip) []int64 {
	seen := map[int64]bool{t.CustomerID: true}

	var ids []int64
	for _, o := range sameDay {
		if o.ID == t.ID || seen[o.CustomerID] {
			continue
		}
		if !s.withinWindow(o.PickupTime, t.PickupTime) {
			continue
		}
		seen[o.CustomerID] = true
		ids = append(ids, o.CustomerID)
	}
	return ids
}

// withinWindow reports whether two pickups are within the combination window.
func (s *CombinationService) withinWindow(a, b timeslot.Clock) bool {
	diff := int(a - b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= int(s.settings.CombinationWindow/time.Minute)
}

// withHistory attaches each customer's non-cancelled trips before date.
// Trips on date itself are not history.
func (s *CombinationService) withHistory(ctx context.Context, tenantID int64, customers []model.Customer, date time.Time) ([]model.Candidate, error) {
	if len(customers) == 0 {
		return nil, nil
	}
	prior := date.AddDate(0, 0, -1)
	ids := make([]int64, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}
	history, err := s.trips.FindTrips(ctx, model.TripFilter{
		TenantID:         tenantID,
		CustomerIDs:      ids,
		To:               &prior,
		ExcludeCancelled: true,
	})
	if err != nil {
		return nil, err
	}
	byCustomer := make(map[int64][]model.Trip, len(customers))
	for _, h := range history {
		byCustomer[h.CustomerID] = append(byCustomer[h.CustomerID], h)
	}

	out := make([]model.Candidate, len(customers))
	for i, c := range customers {
		out[i] = model.Candidate{Customer: c, History: byCustomer[c.ID]}
	}
	return out, nil
}

// tripVehicle resolves the trip's vehicle or its driver's, memoized per call.
// A missing vehicle yields nil without error.
func (s *CombinationService) tripVehicle(
	ctx context.Context,
	tenantID int64,
	t *model.Trip,
	drivers map[int64]*model.Driver,
	vehicles map[int64]*model.Vehicle,
) (*model.Vehicle, error) {
	vehicleID := t.VehicleID
	if vehicleID == nil {
		d, ok := drivers[*t.DriverID]
		if !ok {
			var err error
			d, err = s.avail.GetDriver(ctx, tenantID, *t.DriverID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			drivers[*t.DriverID] = d
		}
		if d == nil || d.VehicleID == nil {
			return nil, nil
		}
		vehicleID = d.VehicleID
	}

	if v, ok := vehicles[*vehicleID]; ok {
		return v, nil
	}
	v, err := s.avail.GetVehicle(ctx, tenantID, *vehicleID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	vehicles[*vehicleID] = v
	return v, nil
}

func (s *CombinationService) wheelchairAccessible(ctx context.Context, tenantID int64, vehicleID *int64) (bool, error) {
	if vehicleID == nil {
		return false, nil
	}
	v, err := s.avail.GetVehicle(ctx, tenantID, *vehicleID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.WheelchairAccessible, nil
}
