package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

func newTestValidator(e *env, maxAge time.Duration) *Validator {
	return NewValidator(e.st, e.venue, testInstruments(), time.Minute, maxAge, nil, testLogger())
}

func TestValidatorReapsTerminalOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.venue.addOrder(types.FollowerOrder{
		OrderID: 10, Symbol: "BTCUSDT", Side: types.BUY,
		OrigQty: decimal.RequireFromString("0.002"),
		Status:  types.ExecFilled,
	})
	if err := e.st.Mapper.Save(ctx, 1, 10, "BTC"); err != nil {
		t.Fatalf("Mapper.Save: %v", err)
	}

	newTestValidator(e, 24*time.Hour).sweep(ctx)

	if _, ok, _ := e.st.Mapper.LookupFollower(ctx, 1); ok {
		t.Error("terminal mapping survived sweep")
	}
}

func TestValidatorReapsUnknownOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	// Mapping points at an order the venue has already purged.
	if err := e.st.Mapper.Save(ctx, 2, 999, "BTC"); err != nil {
		t.Fatalf("Mapper.Save: %v", err)
	}

	newTestValidator(e, 24*time.Hour).sweep(ctx)

	if _, ok, _ := e.st.Mapper.LookupFollower(ctx, 2); ok {
		t.Error("unknown-order mapping survived sweep")
	}
}

func TestValidatorReapsExpiredMapping(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.venue.addOrder(types.FollowerOrder{
		OrderID: 10, Symbol: "BTCUSDT", Side: types.BUY,
		OrigQty: decimal.RequireFromString("0.002"),
		Status:  types.ExecNew,
	})
	if err := e.st.Mapper.Save(ctx, 3, 10, "BTC"); err != nil {
		t.Fatalf("Mapper.Save: %v", err)
	}

	// Any elapsed time exceeds a nanosecond age limit.
	newTestValidator(e, time.Nanosecond).sweep(ctx)

	if _, ok, _ := e.st.Mapper.LookupFollower(ctx, 3); ok {
		t.Error("expired mapping survived sweep")
	}
}

func TestValidatorKeepsLiveOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.venue.addOrder(types.FollowerOrder{
		OrderID: 10, Symbol: "BTCUSDT", Side: types.BUY,
		OrigQty: decimal.RequireFromString("0.002"),
		Status:  types.ExecPartiallyFilled,
	})
	if err := e.st.Mapper.Save(ctx, 4, 10, "BTC"); err != nil {
		t.Fatalf("Mapper.Save: %v", err)
	}

	newTestValidator(e, 24*time.Hour).sweep(ctx)

	if _, ok, _ := e.st.Mapper.LookupFollower(ctx, 4); !ok {
		t.Error("live mapping reaped")
	}
}

func TestValidatorRetainsOnTransientError(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.venue.addOrder(types.FollowerOrder{
		OrderID: 10, Symbol: "BTCUSDT", Side: types.BUY,
		OrigQty: decimal.RequireFromString("0.002"),
		Status:  types.ExecNew,
	})
	if err := e.st.Mapper.Save(ctx, 5, 10, "BTC"); err != nil {
		t.Fatalf("Mapper.Save: %v", err)
	}
	e.venue.failGet = errors.New("rest timeout")

	v := newTestValidator(e, 24*time.Hour)
	v.sweep(ctx)
	v.sweep(ctx)

	if _, ok, _ := e.st.Mapper.LookupFollower(ctx, 5); !ok {
		t.Fatal("mapping reaped on transient error")
	}
	if got := v.failures[5]; got != 2 {
		t.Errorf("consecutive failures = %d, want 2", got)
	}

	// Recovery resets the counter.
	e.venue.failGet = nil
	v.sweep(ctx)
	if got := v.failures[5]; got != 0 {
		t.Errorf("failures after recovery = %d, want 0", got)
	}
}
