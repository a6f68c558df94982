package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/geo"
)

// ─── Scoring weights ────────────────────────────────────────
//
// Additive, out of 100:
//
//   destination match        +40
//   average fare > threshold +30, otherwise +10
//   phone on file            +20
//   email on file            +10
//
// Candidates at or below MinScore are dropped.

const (
	WeightDestination = 40
	WeightFareHigh    = 30
	WeightFareLow     = 10
	WeightPhone       = 20
	WeightEmail       = 10

	MinScore = 20

	RecommendationLimit = 10
	CombinationLimit    = 20
)

// Label derives the recommendation band from a score.
func Label(score int) model.RecommendationLabel {
	switch {
	case score >= 60:
		return model.HighlyRecommended
	case score >= 40:
		return model.Recommended
	default:
		return model.Acceptable
	}
}

// Scorer ranks candidate passengers against a driver trip.
//
// The coarse mode is pure: destination similarity is a case-insensitive
// substring test on the first comma segment and proximity comes from
// postcodes. The geocoded mode replaces the destination test with a
// distance threshold and reports a distance. Any geocoding failure falls
// back to the coarse mode for that comparison and is only logged.
type Scorer struct {
	geocoder geo.Geocoder
	settings Settings
	log      *zap.Logger
}

// NewScorer creates a scorer. A nil geocoder disables the geocoded mode.
func NewScorer(geocoder geo.Geocoder, settings Settings, log *zap.Logger) *Scorer {
	if geocoder == nil {
		geocoder = geo.NoopGeocoder{}
	}
	return &Scorer{geocoder: geocoder, settings: settings, log: orNop(log)}
}

// ScoreCandidates returns up to limit candidates ranked by score descending,
// ties broken by customer ID. geocoded requests the higher-fidelity mode.
func (s *Scorer) ScoreCandidates(
	ctx context.Context,
	trip model.DriverTrip,
	pool []model.Candidate,
	limit int,
	geocoded bool,
) []model.CompatibilityScore {
	key := destinationKey(trip.Destination)

	var lookup *geoLookup
	if geocoded {
		lookup = s.newLookup(ctx, trip)
	}

	scored := make([]model.CompatibilityScore, 0, len(pool))
	for i := range pool {
		c := &pool[i]

		// Excluded, not down-scored.
		if c.Customer.RequiresWheelchair && !trip.WheelchairAccessible {
			continue
		}

		cs := s.score(ctx, key, lookup, trip, c)
		if cs.Score <= MinScore {
			continue
		}
		scored = append(scored, cs)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Customer.ID < scored[j].Customer.ID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (s *Scorer) score(
	ctx context.Context,
	key string,
	lookup *geoLookup,
	trip model.DriverTrip,
	c *model.Candidate,
) model.CompatibilityScore {
	cs := model.CompatibilityScore{Customer: c.Customer, Reasoning: []string{}}

	// ── Destination similarity ──────────────────────────
	if n := s.similarTrips(ctx, key, lookup, c.History); n > 0 {
		cs.Score += WeightDestination
		cs.Reasoning = append(cs.Reasoning,
			fmt.Sprintf("%d previous trip(s) to a similar destination", n))
	}

	// ── Fare history ────────────────────────────────────
	avg := averageFare(c.History)
	if avg > s.settings.MinFareThreshold {
		cs.Score += WeightFareHigh
		cs.Reasoning = append(cs.Reasoning, fmt.Sprintf("Average fare %.2f", avg))
	} else {
		cs.Score += WeightFareLow
		if len(c.History) > 0 {
			cs.Reasoning = append(cs.Reasoning, fmt.Sprintf("Low average fare %.2f", avg))
		} else {
			cs.Reasoning = append(cs.Reasoning, "No trip history")
		}
	}

	// ── Reachability ────────────────────────────────────
	if strings.TrimSpace(c.Customer.Phone) != "" {
		cs.Score += WeightPhone
		cs.Reasoning = append(cs.Reasoning, "Phone number on file")
	}
	if strings.TrimSpace(c.Customer.Email) != "" {
		cs.Score += WeightEmail
		cs.Reasoning = append(cs.Reasoning, "Email on file")
	}

	// ── Proximity (informational) ───────────────────────
	if lookup != nil {
		if km, ok := lookup.distanceTo(ctx, customerAddress(c.Customer)); ok {
			cs.DistanceKm = &km
			cs.Reasoning = append(cs.Reasoning, fmt.Sprintf("%.1f km from driver (~%d min)", km, geo.DriveMinutes(km)))
		}
	}
	if cs.DistanceKm == nil {
		if p := geo.PostcodeProximity(trip.DriverLocation, customerAddress(c.Customer)); p != geo.ProximityUnknown {
			cs.Reasoning = append(cs.Reasoning, "Pickup in "+p.String()+" as driver")
		}
	}

	cs.Recommendation = Label(cs.Score)
	return cs
}

// similarTrips counts history entries whose destination matches.
func (s *Scorer) similarTrips(ctx context.Context, key string, lookup *geoLookup, history []model.Trip) int {
	n := 0
	for _, h := range history {
		if h.Status == model.TripCancelled {
			continue
		}
		if lookup != nil && lookup.dest != nil {
			if km, ok := lookup.between(ctx, *lookup.dest, h.Destination); ok {
				if km <= s.settings.DestinationMatchKm {
					n++
				}
				continue
			}
		}
		if key != "" && strings.Contains(strings.ToLower(h.Destination), key) {
			n++
		}
	}
	return n
}

// destinationKey is the lower-cased first comma-delimited segment.
func destinationKey(destination string) string {
	first, _, _ := strings.Cut(destination, ",")
	return strings.ToLower(strings.TrimSpace(first))
}

func averageFare(history []model.Trip) float64 {
	var (
		sum float64
		n   int
	)
	for _, h := range history {
		if h.Status == model.TripCancelled {
			continue
		}
		sum += h.Price
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func customerAddress(c model.Customer) string {
	switch {
	case c.Address != "" && c.Postcode != "":
		return c.Address + ", " + c.Postcode
	case c.Address != "":
		return c.Address
	}
	return c.Postcode
}

// ─── Geocoded mode ──────────────────────────────────────────

// geoLookup memoizes geocoding within one request.
type geoLookup struct {
	s      *Scorer
	origin *model.Location
	dest   *model.Location
	seen   map[string]*model.Location
}

func (s *Scorer) newLookup(ctx context.Context, trip model.DriverTrip) *geoLookup {
	l := &geoLookup{s: s, seen: map[string]*model.Location{}}
	l.origin = l.resolve(ctx, trip.DriverLocation)
	l.dest = l.resolve(ctx, trip.Destination)
	return l
}

// resolve returns nil on failure. Failures are logged once per address.
func (l *geoLookup) resolve(ctx context.Context, address string) *model.Location {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	if loc, ok := l.seen[address]; ok {
		return loc
	}
	loc, err := l.s.geocoder.Geocode(ctx, address)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
		if !errors.Is(err, geo.ErrUnavailable) {
			l.s.log.Warn("geocoding failed, using heuristic scoring",
				zap.String("address", address), zap.Error(err))
		}
		l.seen[address] = nil
		return nil
	}
	l.seen[address] = &loc
	return &loc
}

func (l *geoLookup) between(ctx context.Context, from model.Location, address string) (float64, bool) {
	to := l.resolve(ctx, address)
	if to == nil {
		return 0, false
	}
	return geo.RoundKm(geo.HaversineKm(from, *to)), true
}

func (l *geoLookup) distanceTo(ctx context.Context, address string) (float64, bool) {
	if l.origin == nil {
		return 0, false
	}
	return l.between(ctx, *l.origin, address)
}
