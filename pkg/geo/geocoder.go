package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/shiva/fleetops/internal/model"
)

// ErrUnavailable is returned when no geocoding backend can answer.
var ErrUnavailable = errors.New("geo: geocoder unavailable")

// ErrNoResult is returned when the backend found nothing for the address.
var ErrNoResult = errors.New("geo: no geocoding result")

// Geocoder resolves a free-text address into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (model.Location, error)
}

// NoopGeocoder is the heuristic-only fallback. It never performs I/O.
type NoopGeocoder struct{}

// Geocode always fails with ErrUnavailable.
func (NoopGeocoder) Geocode(context.Context, string) (model.Location, error) {
	return model.Location{}, ErrUnavailable
}

// ─── Google Maps ────────────────────────────────────────────

// GoogleGeocoder calls the Google Geocoding API.
type GoogleGeocoder struct {
	client  *maps.Client
	timeout time.Duration
	region  string
}

// NewGoogleGeocoder creates a geocoder with the given API key. Each lookup is
// bounded by timeout.
func NewGoogleGeocoder(apiKey string, timeout time.Duration) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &GoogleGeocoder{client: client, timeout: timeout, region: "uk"}, nil
}

// Geocode resolves address to the first result's coordinates.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (model.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  g.region,
	})
	if err != nil {
		return model.Location{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return model.Location{}, ErrNoResult
	}

	loc := results[0].Geometry.Location
	return model.Location{Lat: loc.Lat, Lon: loc.Lng}, nil
}
