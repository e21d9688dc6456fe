// Package risk holds the synchronous pre-trade checks the executor runs
// before touching the Follower venue.
//
// The gate does no I/O and never blocks: it checks the instrument whitelist,
// the emergency-stop flag, and the per-instrument absolute position cap.
// Denials are not errors. The executor treats them as skip signals and still
// credits the delta ledger, so a denied order is accounted for rather than
// silently lost.
package risk

import (
	"log/slog"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

// Gate evaluates whether a proposed Follower order is allowed.
type Gate struct {
	logger *slog.Logger

	supported   map[string]bool
	instruments map[string]types.Instrument

	emergencyStop atomic.Bool
}

// NewGate builds a gate over the configured whitelist and instrument caps.
func NewGate(supportedCoins []string, instruments map[string]types.Instrument, emergencyStop bool, logger *slog.Logger) *Gate {
	supported := make(map[string]bool, len(supportedCoins))
	for _, coin := range supportedCoins {
		supported[coin] = true
	}

	g := &Gate{
		logger:      logger.With("component", "risk"),
		supported:   supported,
		instruments: instruments,
	}
	g.emergencyStop.Store(emergencyStop)
	return g
}

// Supported reports whether the coin is on the instrument whitelist.
func (g *Gate) Supported(coin string) bool {
	return g.supported[coin]
}

// EmergencyStopActive reports whether the global kill switch is engaged.
func (g *Gate) EmergencyStopActive() bool {
	return g.emergencyStop.Load()
}

// SetEmergencyStop flips the global kill switch at runtime.
func (g *Gate) SetEmergencyStop(active bool) {
	was := g.emergencyStop.Swap(active)
	if was != active {
		g.logger.Warn("emergency stop changed", "active", active)
	}
}

// WithinPositionLimit reports whether |currentSigned| + proposed stays inside
// the instrument's absolute position cap. Instruments without a cap always
// pass.
func (g *Gate) WithinPositionLimit(coin string, currentSigned, proposed decimal.Decimal) bool {
	inst, ok := g.instruments[coin]
	if !ok || inst.MaxPosition.IsZero() {
		return true
	}
	return currentSigned.Abs().Add(proposed).LessThanOrEqual(inst.MaxPosition)
}

// Allow runs all three checks and returns the first deny reason, or ok.
func (g *Gate) Allow(coin string, currentSigned, proposed decimal.Decimal) (string, bool) {
	if !g.Supported(coin) {
		return "coin not supported", false
	}
	if g.EmergencyStopActive() {
		return "emergency stop active", false
	}
	if !g.WithinPositionLimit(coin, currentSigned, proposed) {
		return "position limit exceeded", false
	}
	return "", true
}
