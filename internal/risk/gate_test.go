package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

func newTestGate(emergencyStop bool) *Gate {
	instruments := map[string]types.Instrument{
		"BTC": {Coin: "BTC", MaxPosition: decimal.NewFromInt(1)},
		"ETH": {Coin: "ETH"}, // uncapped
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGate([]string{"BTC", "ETH"}, instruments, emergencyStop, logger)
}

func TestGateSupported(t *testing.T) {
	t.Parallel()
	g := newTestGate(false)

	if !g.Supported("BTC") {
		t.Error("BTC should be supported")
	}
	if g.Supported("DOGE") {
		t.Error("DOGE should not be supported")
	}
}

func TestGateEmergencyStop(t *testing.T) {
	t.Parallel()
	g := newTestGate(false)

	if g.EmergencyStopActive() {
		t.Error("emergency stop engaged at construction")
	}

	g.SetEmergencyStop(true)
	if !g.EmergencyStopActive() {
		t.Error("emergency stop not engaged after set")
	}
	if _, ok := g.Allow("BTC", decimal.Zero, decimal.NewFromFloat(0.001)); ok {
		t.Error("Allow passed while emergency stop engaged")
	}

	g.SetEmergencyStop(false)
	if g.EmergencyStopActive() {
		t.Error("emergency stop still engaged after clear")
	}
}

func TestGateWithinPositionLimit(t *testing.T) {
	t.Parallel()
	g := newTestGate(false)

	tests := []struct {
		name     string
		coin     string
		current  string
		proposed string
		want     bool
	}{
		{"well inside cap", "BTC", "0.5", "0.1", true},
		{"exactly at cap", "BTC", "0.9", "0.1", true},
		{"over cap", "BTC", "0.95", "0.1", false},
		{"short position counts absolute", "BTC", "-0.95", "0.1", false},
		{"uncapped instrument", "ETH", "100", "100", true},
		{"unknown coin has no cap", "DOGE", "100", "100", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.WithinPositionLimit(tt.coin,
				decimal.RequireFromString(tt.current),
				decimal.RequireFromString(tt.proposed))
			if got != tt.want {
				t.Errorf("WithinPositionLimit(%s, %s, %s) = %v, want %v",
					tt.coin, tt.current, tt.proposed, got, tt.want)
			}
		})
	}
}

func TestGateAllow(t *testing.T) {
	t.Parallel()
	g := newTestGate(false)

	if reason, ok := g.Allow("BTC", decimal.Zero, decimal.NewFromFloat(0.5)); !ok {
		t.Errorf("Allow denied a clean order: %s", reason)
	}

	reason, ok := g.Allow("DOGE", decimal.Zero, decimal.NewFromFloat(0.5))
	if ok || reason == "" {
		t.Error("Allow passed an unsupported coin")
	}

	reason, ok = g.Allow("BTC", decimal.NewFromFloat(0.9), decimal.NewFromFloat(0.5))
	if ok || reason == "" {
		t.Error("Allow passed an order breaching the position cap")
	}
}
