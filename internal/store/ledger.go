package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Ledger is the per-instrument signed delta accumulator: Target − Actual in
// Master units. Positive means the Follower is behind (needs to buy net),
// negative means ahead. Values are fixed-point integers under INCRBY, so
// concurrent adds from multiple processes stay exact.
type Ledger struct {
	rdb *redis.Client
}

// Init seeds the delta for a coin only when no value exists yet. A restart
// must never clobber a live ledger; first boot seeds it from the Master's
// position snapshot (the Follower starts empty, so Δ = Master position).
// Returns true when the value was written.
func (l *Ledger) Init(ctx context.Context, coin string, d decimal.Decimal) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyDelta+coin, toScaled(d), deltaTTL).Result()
	if err != nil {
		return false, fmt.Errorf("init delta %s: %w", coin, err)
	}
	return ok, nil
}

// Add atomically adds a signed amount and returns the new delta. The
// retention TTL is refreshed on every write.
func (l *Ledger) Add(ctx context.Context, coin string, d decimal.Decimal) (decimal.Decimal, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, keyDelta+coin, toScaled(d))
	pipe.Expire(ctx, keyDelta+coin, deltaTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("add delta %s: %w", coin, err)
	}
	return fromScaled(incr.Val()), nil
}

// Get returns the current delta, zero when none is stored.
func (l *Ledger) Get(ctx context.Context, coin string) (decimal.Decimal, error) {
	n, err := l.rdb.Get(ctx, keyDelta+coin).Int64()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get delta %s: %w", coin, err)
	}
	return fromScaled(n), nil
}

// Consume clears a portion of the delta: Add(−amount).
func (l *Ledger) Consume(ctx context.Context, coin string, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.Add(ctx, coin, amount.Neg())
}
