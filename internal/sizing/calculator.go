// Package sizing translates Master order sizes into Follower order sizes.
//
// Two modes exist: fixed (a constant multiplier) and equal (the equity ratio
// between the two accounts, times a multiplier). Translation rounds to the
// instrument's quantity precision and applies the per-action minimum-size
// policy; the reverse translation converts Follower fill quantities back into
// Master units for orphan-fill accounting, using the same equity snapshot.
package sizing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

// Calculator is the pure size-translation function. It holds no venue
// connections; equal mode reads equities through the cache.
type Calculator struct {
	mode        types.TradingMode
	fixedRatio  decimal.Decimal
	equalRatio  decimal.Decimal
	equity      *EquityCache // used in equal mode only
	instruments map[string]types.Instrument
}

// NewCalculator builds a calculator for the given mode. equity may be nil in
// fixed mode.
func NewCalculator(mode types.TradingMode, fixedRatio, equalRatio decimal.Decimal, equity *EquityCache, instruments map[string]types.Instrument) *Calculator {
	return &Calculator{
		mode:        mode,
		fixedRatio:  fixedRatio,
		equalRatio:  equalRatio,
		equity:      equity,
		instruments: instruments,
	}
}

// Mode returns the configured trading mode.
func (c *Calculator) Mode() types.TradingMode {
	return c.mode
}

// Ratio returns the current Master→Follower size multiplier. In equal mode
// this reads both equities through the cache, so repeated calls within the
// cache TTL observe one snapshot.
func (c *Calculator) Ratio(ctx context.Context) (decimal.Decimal, error) {
	if c.mode == types.ModeFixed {
		return c.fixedRatio, nil
	}

	followerEq, err := c.equity.Follower(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("follower equity: %w", err)
	}
	masterEq, err := c.equity.Master(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("master equity: %w", err)
	}
	if masterEq.IsZero() {
		return decimal.Zero, fmt.Errorf("master equity is zero")
	}
	return followerEq.Div(masterEq).Mul(c.equalRatio), nil
}

// Translate converts an absolute Master size into a Follower quantity for
// the given coin and action. Returns ok=false when the rounded quantity is
// below the instrument's minimum for that action; the caller decides whether
// to enforce the minimum.
func (c *Calculator) Translate(ctx context.Context, masterSize decimal.Decimal, coin string, action types.ActionType) (decimal.Decimal, bool, error) {
	inst, ok := c.instruments[coin]
	if !ok {
		return decimal.Zero, false, fmt.Errorf("unknown instrument %s", coin)
	}

	ratio, err := c.Ratio(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}

	q := inst.RoundSize(masterSize.Abs().Mul(ratio))
	if q.LessThan(inst.MinSize(action)) {
		return decimal.Zero, false, nil
	}
	return q, true, nil
}

// MasterEquivalent converts a Follower quantity back into Master units using
// the reciprocal of the current ratio. Used to pre-credit orphan fills.
func (c *Calculator) MasterEquivalent(ctx context.Context, followerSize decimal.Decimal, coin string) (decimal.Decimal, error) {
	if _, ok := c.instruments[coin]; !ok {
		return decimal.Zero, fmt.Errorf("unknown instrument %s", coin)
	}

	ratio, err := c.Ratio(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if ratio.IsZero() {
		return decimal.Zero, fmt.Errorf("size ratio is zero")
	}
	return followerSize.Div(ratio), nil
}
