package sizing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

func testInstruments() map[string]types.Instrument {
	return map[string]types.Instrument{
		"BTC": {
			Coin:         "BTC",
			Symbol:       "BTCUSDT",
			SizeDecimals: 3,
			PriceTick:    decimal.NewFromFloat(0.1),
			MinOpenSize:  decimal.NewFromFloat(0.002),
			MinCloseSize: decimal.NewFromFloat(0.002),
		},
	}
}

func fixedCalc(ratio string) *Calculator {
	return NewCalculator(types.ModeFixed, decimal.RequireFromString(ratio), decimal.Zero, nil, testInstruments())
}

func TestTranslateFixedMode(t *testing.T) {
	t.Parallel()
	c := fixedCalc("0.1")
	ctx := context.Background()

	tests := []struct {
		name   string
		master string
		action types.ActionType
		want   string
		ok     bool
	}{
		{"basic mirror", "0.02", types.ActionOpen, "0.002", true},
		{"below minimum", "0.01", types.ActionOpen, "0", false},
		{"rounds to precision", "0.025", types.ActionOpen, "0.003", true}, // 0.0025 rounds half away
		{"negative input handled as absolute", "-0.02", types.ActionOpen, "0.002", true},
		{"large order", "1.5", types.ActionClose, "0.15", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decimal.RequireFromString(tt.master)
			got, ok, err := c.Translate(ctx, in, "BTC", tt.action)
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Translate(%s) = %s, want %s", tt.master, got, tt.want)
			}
		})
	}
}

func TestTranslateUnknownCoin(t *testing.T) {
	t.Parallel()
	c := fixedCalc("0.1")

	if _, _, err := c.Translate(context.Background(), decimal.NewFromInt(1), "DOGE", types.ActionOpen); err == nil {
		t.Error("Translate accepted an unknown coin")
	}
}

func TestTranslateSplitMinimums(t *testing.T) {
	t.Parallel()

	insts := testInstruments()
	btc := insts["BTC"]
	btc.MinCloseSize = decimal.NewFromFloat(0.001)
	insts["BTC"] = btc
	c := NewCalculator(types.ModeFixed, decimal.RequireFromString("0.1"), decimal.Zero, nil, insts)
	ctx := context.Background()

	// 0.015 × 0.1 = 0.0015: above the close minimum, below the open minimum.
	in := decimal.RequireFromString("0.015")
	if _, ok, _ := c.Translate(ctx, in, "BTC", types.ActionOpen); ok {
		t.Error("open translation passed below the open minimum")
	}
	got, ok, _ := c.Translate(ctx, in, "BTC", types.ActionClose)
	if !ok || !got.Equal(decimal.RequireFromString("0.002")) {
		t.Errorf("close translation = (%s, %v), want (0.002, true)", got, ok)
	}
}

func TestTranslateEqualMode(t *testing.T) {
	t.Parallel()

	// follower 10k vs master 100k: equity ratio 0.1, equal multiplier 1.
	cache := NewEquityCache(time.Minute,
		func(context.Context) (decimal.Decimal, error) { return decimal.NewFromInt(10000), nil },
		func(context.Context) (decimal.Decimal, error) { return decimal.NewFromInt(100000), nil },
	)
	c := NewCalculator(types.ModeEqual, decimal.Zero, decimal.NewFromInt(1), cache, testInstruments())

	got, ok, err := c.Translate(context.Background(), decimal.RequireFromString("0.02"), "BTC", types.ActionOpen)
	if err != nil || !ok {
		t.Fatalf("Translate: ok=%v err=%v", ok, err)
	}
	if !got.Equal(decimal.RequireFromString("0.002")) {
		t.Errorf("Translate = %s, want 0.002", got)
	}
}

func TestTranslateEqualModeZeroMasterEquity(t *testing.T) {
	t.Parallel()

	cache := NewEquityCache(time.Minute,
		func(context.Context) (decimal.Decimal, error) { return decimal.NewFromInt(10000), nil },
		func(context.Context) (decimal.Decimal, error) { return decimal.Zero, nil },
	)
	c := NewCalculator(types.ModeEqual, decimal.Zero, decimal.NewFromInt(1), cache, testInstruments())

	if _, _, err := c.Translate(context.Background(), decimal.NewFromInt(1), "BTC", types.ActionOpen); err == nil {
		t.Error("Translate accepted a zero master equity")
	}
}

func TestMasterEquivalentReversesTranslation(t *testing.T) {
	t.Parallel()
	c := fixedCalc("0.1")
	ctx := context.Background()

	got, err := c.MasterEquivalent(ctx, decimal.RequireFromString("0.002"), "BTC")
	if err != nil {
		t.Fatalf("MasterEquivalent: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("MasterEquivalent(0.002) = %s, want 0.02", got)
	}
}

func TestMasterEquivalentZeroRatio(t *testing.T) {
	t.Parallel()
	c := fixedCalc("0")

	if _, err := c.MasterEquivalent(context.Background(), decimal.NewFromInt(1), "BTC"); err == nil {
		t.Error("MasterEquivalent accepted a zero ratio")
	}
}
