package sizing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEquityCacheServesWithinTTL(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := NewEquityCache(time.Minute,
		func(context.Context) (decimal.Decimal, error) {
			calls++
			return decimal.NewFromInt(10000), nil
		},
		func(context.Context) (decimal.Decimal, error) { return decimal.NewFromInt(1), nil },
	)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		v, err := cache.Follower(ctx)
		if err != nil {
			t.Fatalf("Follower #%d: %v", i, err)
		}
		if !v.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Follower = %s", v)
		}
	}
	if calls != 1 {
		t.Errorf("source fetched %d times within TTL, want 1", calls)
	}
}

func TestEquityCacheRefetchesAfterTTL(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := NewEquityCache(20*time.Millisecond,
		func(context.Context) (decimal.Decimal, error) {
			calls++
			return decimal.NewFromInt(int64(calls * 100)), nil
		},
		nil,
	)
	ctx := context.Background()

	first, _ := cache.Follower(ctx)
	time.Sleep(30 * time.Millisecond)
	second, _ := cache.Follower(ctx)

	if calls != 2 {
		t.Fatalf("source fetched %d times across TTL expiry, want 2", calls)
	}
	if first.Equal(second) {
		t.Error("cache served the stale value after TTL expiry")
	}
}

func TestEquityCacheSlotsAreIndependent(t *testing.T) {
	t.Parallel()

	cache := NewEquityCache(time.Minute,
		func(context.Context) (decimal.Decimal, error) { return decimal.NewFromInt(10000), nil },
		func(context.Context) (decimal.Decimal, error) { return decimal.NewFromInt(200000), nil },
	)
	ctx := context.Background()

	f, _ := cache.Follower(ctx)
	m, _ := cache.Master(ctx)
	if !f.Equal(decimal.NewFromInt(10000)) || !m.Equal(decimal.NewFromInt(200000)) {
		t.Errorf("equities = %s / %s", f, m)
	}
}

func TestEquityCachePropagatesFetchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("venue unreachable")
	cache := NewEquityCache(time.Minute,
		func(context.Context) (decimal.Decimal, error) { return decimal.Zero, boom },
		nil,
	)

	if _, err := cache.Follower(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Follower error = %v, want %v", err, boom)
	}
}
