// Package geo provides geographic utility functions for trip combination.
//
// Distances use the Haversine formula on WGS-84 coordinates. Travel time is
// estimated using a constant average urban speed. Addresses are resolved to
// coordinates by an optional Geocoder; without one, callers fall back to the
// postcode heuristics in postcode.go.
package geo

import (
	"math"

	"github.com/shiva/fleetops/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// AverageSpeedKmph is the assumed average urban driving speed.
	AverageSpeedKmph = 30.0
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// DriveMinutes converts a straight-line distance into whole minutes of
// driving at AverageSpeedKmph, never less than one.
func DriveMinutes(km float64) int {
	return max(1, int(math.Round(km/AverageSpeedKmph*60.0)))
}

// RoundKm rounds a distance to one decimal place for display.
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
