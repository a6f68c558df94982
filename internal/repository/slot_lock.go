package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/fleetops/internal/model"
	"github.com/shiva/fleetops/pkg/timeslot"
)

// ErrSlotHeld is returned when another request holds one of the slot keys.
var ErrSlotHeld = errors.New("slot lock held by another request")

const slotKeyPrefix = "slot:"

// releaseScript deletes a key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SlotLocker serializes check-then-insert for the same driver or customer
// on the same day across processes. Locks expire after ttl so a crashed
// holder never wedges a slot.
type SlotLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSlotLocker creates a locker with the given expiry.
func NewSlotLocker(client *redis.Client, ttl time.Duration) *SlotLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SlotLocker{redis: client, ttl: ttl}
}

// SlotKeys returns the sorted lock keys a trip touches.
func SlotKeys(t *model.Trip) []string {
	date := t.TripDate.Format(timeslot.DateLayout)
	keys := []string{
		fmt.Sprintf("%s%d:customer:%d:%s", slotKeyPrefix, t.TenantID, t.CustomerID, date),
	}
	if t.DriverID != nil {
		keys = append(keys, fmt.Sprintf("%s%d:driver:%d:%s", slotKeyPrefix, t.TenantID, *t.DriverID, date))
	}
	sort.Strings(keys)
	return keys
}

// LockTrip acquires every slot key for t in sorted order. On failure the keys
// already taken are released and ErrSlotHeld is returned.
func (l *SlotLocker) LockTrip(ctx context.Context, t *model.Trip) (func(), error) {
	token := uuid.NewString()
	keys := SlotKeys(t)
	held := make([]string, 0, len(keys))

	release := func() {
		// Use a fresh context so release still runs after request cancellation.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, k := range held {
			_ = releaseScript.Run(relCtx, l.redis, []string{k}, token).Err()
		}
	}

	for _, k := range keys {
		ok, err := l.redis.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			release()
			return nil, fmt.Errorf("slot lock %s: %w", k, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("slot lock %s: %w", k, ErrSlotHeld)
		}
		held = append(held, k)
	}
	return release, nil
}
