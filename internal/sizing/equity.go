package sizing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EquitySource produces a venue's current account equity.
type EquitySource func(ctx context.Context) (decimal.Decimal, error)

// EquityCache caches both venues' account equity so equal-mode sizing does
// not hit the account endpoints on every event. Entries stay fresh for the
// configured TTL; a fetch failure surfaces to the caller rather than serving
// an arbitrarily stale value.
type EquityCache struct {
	mu  sync.Mutex
	ttl time.Duration

	fetchFollower EquitySource
	fetchMaster   EquitySource

	follower cachedEquity
	master   cachedEquity
}

type cachedEquity struct {
	value     decimal.Decimal
	fetchedAt time.Time
}

// NewEquityCache builds a cache over the two equity sources.
func NewEquityCache(ttl time.Duration, fetchFollower, fetchMaster EquitySource) *EquityCache {
	return &EquityCache{
		ttl:           ttl,
		fetchFollower: fetchFollower,
		fetchMaster:   fetchMaster,
	}
}

// Follower returns the Follower account's equity, cached.
func (e *EquityCache) Follower(ctx context.Context) (decimal.Decimal, error) {
	return e.get(ctx, &e.follower, e.fetchFollower)
}

// Master returns the Master account's equity, cached.
func (e *EquityCache) Master(ctx context.Context) (decimal.Decimal, error) {
	return e.get(ctx, &e.master, e.fetchMaster)
}

func (e *EquityCache) get(ctx context.Context, slot *cachedEquity, fetch EquitySource) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !slot.fetchedAt.IsZero() && time.Since(slot.fetchedAt) < e.ttl {
		return slot.value, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	slot.value = v
	slot.fetchedAt = time.Now()
	return v, nil
}
