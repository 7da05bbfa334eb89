// Package cache holds a small Redis-backed cache for resolved availability
// responses. It is presentation-side only: the store's conflict checks never
// read from it, and every mutation invalidates the affected dates.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"agendamed/internal/model"
)

const keyPrefix = "agendamed:availability:"

// Availability caches resolved slot sets per date with a TTL. A nil
// *Availability is a valid no-op cache.
type Availability struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates an availability cache. Returns nil (disabled) when rdb is nil
// or ttl is not positive.
func New(rdb *redis.Client, ttl time.Duration) *Availability {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &Availability{rdb: rdb, ttl: ttl}
}

// Get returns the cached slot set for date, if present.
func (c *Availability) Get(ctx context.Context, date string) ([]model.TimeSlot, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.rdb.Get(ctx, keyPrefix+date).Result()
	if err != nil {
		return nil, false
	}
	var result []model.TimeSlot
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, false
	}
	return result, true
}

// Set stores the slot set for date. Failures are ignored; the cache is
// best effort.
func (c *Availability) Set(ctx context.Context, date string, result []model.TimeSlot) {
	if c == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, keyPrefix+date, data, c.ttl).Err()
}

// Invalidate drops the cached slot sets for the given dates.
func (c *Availability) Invalidate(ctx context.Context, dates ...string) {
	if c == nil || len(dates) == 0 {
		return
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = keyPrefix + d
	}
	_ = c.rdb.Del(ctx, keys...).Err()
}
