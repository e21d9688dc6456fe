package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLedgerInitOnlyWhenAbsent(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	wrote, err := s.Ledger.Init(ctx, "BTC", decimal.RequireFromString("0.5"))
	if err != nil || !wrote {
		t.Fatalf("first Init: wrote=%v err=%v", wrote, err)
	}

	// A second init (e.g. after a restart) must not clobber the live value.
	wrote, err = s.Ledger.Init(ctx, "BTC", decimal.RequireFromString("9.9"))
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if wrote {
		t.Error("second Init overwrote an existing delta")
	}

	got, err := s.Ledger.Get(ctx, "BTC")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("delta = %s, want 0.5", got)
	}
}

func TestLedgerAddAndConsumeCancelOut(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	x := decimal.RequireFromString("0.02")
	if _, err := s.Ledger.Add(ctx, "BTC", x); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Ledger.Consume(ctx, "BTC", x); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := s.Ledger.Get(ctx, "BTC")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("delta after add+consume = %s, want 0", got)
	}
}

func TestLedgerExactOverManySmallAdds(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	// 1000 × 0.001 must equal exactly 1. Binary-float accumulation fails this.
	step := decimal.RequireFromString("0.001")
	var last decimal.Decimal
	for i := 0; i < 1000; i++ {
		var err error
		last, err = s.Ledger.Add(ctx, "ETH", step)
		if err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	if !last.Equal(decimal.NewFromInt(1)) {
		t.Errorf("accumulated delta = %s, want exactly 1", last)
	}
}

func TestLedgerSignedValues(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Ledger.Add(ctx, "BTC", decimal.RequireFromString("-0.03")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, _ := s.Ledger.Get(ctx, "BTC")
	if !got.Equal(decimal.RequireFromString("-0.03")) {
		t.Errorf("delta = %s, want -0.03", got)
	}

	// Consume of a negative amount moves the delta up.
	got, err := s.Ledger.Consume(ctx, "BTC", decimal.RequireFromString("-0.01"))
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("-0.02")) {
		t.Errorf("delta = %s, want -0.02", got)
	}
}

func TestLedgerGetMissingIsZero(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	got, err := s.Ledger.Get(context.Background(), "DOGE")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("missing delta = %s, want 0", got)
	}
}
