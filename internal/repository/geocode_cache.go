package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/geo"
)

const geocodeKeyPrefix = "geo:addr:"

// CachedGeocoder puts a Redis fast path in front of a slower geocoder.
// Only successful lookups are cached.
type CachedGeocoder struct {
	next  geo.Geocoder
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next geo.Geocoder, client *redis.Client, ttl time.Duration) *CachedGeocoder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedGeocoder{next: next, redis: client, ttl: ttl}
}

// geocodeKey normalizes an address so trivially different spellings share a slot.
func geocodeKey(address string) string {
	return geocodeKeyPrefix + strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

func encodeLocation(loc model.Location) string {
	return strconv.FormatFloat(loc.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(loc.Lon, 'f', 6, 64)
}

func decodeLocation(s string) (model.Location, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return model.Location{}, fmt.Errorf("geocode cache: malformed value %q", s)
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return model.Location{}, fmt.Errorf("geocode cache: %w", err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return model.Location{}, fmt.Errorf("geocode cache: %w", err)
	}
	return model.Location{Lat: la, Lon: lo}, nil
}

// Geocode resolves address.
//
// Strategy:
//  1. Try Redis first (fast path).
//  2. On a miss or a Redis error, ask the wrapped geocoder, then cache.
func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (model.Location, error) {
	key := geocodeKey(address)

	// ── Fast path: Redis cache ──────────────────────────
	if val, err := c.redis.Get(ctx, key).Result(); err == nil {
		if loc, err := decodeLocation(val); err == nil {
			return loc, nil
		}
	}

	// ── Slow path: upstream geocoder ────────────────────
	loc, err := c.next.Geocode(ctx, address)
	if err != nil {
		return model.Location{}, err
	}

	// Fire-and-forget; a failed write only costs a future lookup.
	_ = c.redis.Set(ctx, key, encodeLocation(loc), c.ttl).Err()
	return loc, nil
}
