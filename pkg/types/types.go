// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the mirror engine: order sides
// and statuses on both venues, the Master event stream payloads, Follower
// execution reports, journal outcomes, and per-instrument venue metadata.
// It has no dependencies on internal packages, so it can be imported by any
// layer.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownOrder reports that the Follower venue no longer knows an order:
// already purged, canceled, or never placed. Cancel paths treat it as
// success; lookup paths treat it as proof the mapping is stale.
var ErrUnknownOrder = errors.New("unknown order")

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL as a decimal multiplier.
func (s Side) Sign() decimal.Decimal {
	if s == SELL {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// ParseMasterSide converts the Master venue's wire encoding ("B" = bid,
// "A" = ask) into a Side.
func ParseMasterSide(w string) (Side, bool) {
	switch w {
	case "B":
		return BUY, true
	case "A":
		return SELL, true
	default:
		return "", false
	}
}

// OrderStatus is the lifecycle state of a Master order.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusCanceled  OrderStatus = "canceled"
	StatusFilled    OrderStatus = "filled"
	StatusTriggered OrderStatus = "triggered" // conditional order became active
)

// ParseOrderStatus classifies a Master wire status string. Rejected and
// margin-canceled orders collapse into StatusCanceled: in every case the
// order has left the book without filling, so the mirror reacts identically.
func ParseOrderStatus(w string) (OrderStatus, bool) {
	switch w {
	case "open":
		return StatusOpen, true
	case "filled":
		return StatusFilled, true
	case "triggered":
		return StatusTriggered, true
	case "canceled", "rejected", "marginCanceled", "liquidatedCanceled":
		return StatusCanceled, true
	default:
		return "", false
	}
}

// ExecStatus is the lifecycle state of a Follower order, as reported by the
// Follower venue's REST API and user data stream.
type ExecStatus string

const (
	ExecNew             ExecStatus = "NEW"
	ExecPartiallyFilled ExecStatus = "PARTIALLY_FILLED"
	ExecFilled          ExecStatus = "FILLED"
	ExecCanceled        ExecStatus = "CANCELED"
	ExecExpired         ExecStatus = "EXPIRED"
	ExecRejected        ExecStatus = "REJECTED"
)

// Terminal reports whether the order can no longer trade.
func (s ExecStatus) Terminal() bool {
	switch s {
	case ExecFilled, ExecCanceled, ExecExpired, ExecRejected:
		return true
	default:
		return false
	}
}

// ActionType distinguishes orders that grow the Follower position from
// orders that shrink it. Minimum order sizes may differ between the two.
type ActionType string

const (
	ActionOpen  ActionType = "open"
	ActionClose ActionType = "close"
)

// Outcome records how the executor disposed of a Master event. Persisted in
// the processed-order journal so the decision survives restarts.
type Outcome string

const (
	OutcomePlaced           Outcome = "placed"            // mirrored 1:1
	OutcomeEnforced         Outcome = "enforced"          // promoted to venue minimum to clear pending delta
	OutcomeReplaced         Outcome = "replaced"          // cancel-replace of an already-mirrored order
	OutcomeRecovered        Outcome = "recovered"         // mapping re-adopted during startup reconciliation
	OutcomeSkippedBelowMin  Outcome = "skipped_below_min" // translated size under venue minimum, delta credited
	OutcomeSkippedRisk      Outcome = "skipped_risk"      // risk gate denial, delta credited
	OutcomeSkippedDirection Outcome = "skipped_direction" // fill direction disagreed with net requirement
)

// TradingMode selects how Master sizes translate to Follower sizes.
type TradingMode string

const (
	ModeFixed TradingMode = "fixed" // follower = master × fixedRatio
	ModeEqual TradingMode = "equal" // follower = master × equityRatio × equalRatio
)

// ————————————————————————————————————————————————————————————————————————
// Instrument metadata
// ————————————————————————————————————————————————————————————————————————

// Instrument carries the per-coin venue constraints the executor needs:
// the Follower symbol, quantity precision, price tick, minimum order sizes
// (open and close may differ), the absolute position cap, and the threshold
// above which the rebalancer reduces aggressively. Built once from config.
type Instrument struct {
	Coin   string // Master venue coin, e.g. "BTC"
	Symbol string // Follower venue symbol, e.g. "BTCUSDT"

	SizeDecimals int32           // quantity precision on the Follower venue
	PriceTick    decimal.Decimal // minimum price increment on the Follower venue

	MinOpenSize  decimal.Decimal // smallest order that may grow the position
	MinCloseSize decimal.Decimal // smallest order that may shrink the position

	MaxPosition        decimal.Decimal // absolute position cap, zero = uncapped
	ReductionThreshold decimal.Decimal // uncovered exposure that triggers aggressive rebalancing
}

// TickDecimals returns the number of decimal places implied by the price tick.
func (i Instrument) TickDecimals() int32 {
	if e := i.PriceTick.Exponent(); e < 0 {
		return -e
	}
	return 0
}

// SnapPrice rounds a Master price to the nearest Follower tick:
// round(px / tick) × tick.
func (i Instrument) SnapPrice(px decimal.Decimal) decimal.Decimal {
	if i.PriceTick.IsZero() {
		return px
	}
	return px.Div(i.PriceTick).Round(0).Mul(i.PriceTick)
}

// FormatPrice renders a tick-snapped price with exactly the tick's precision,
// the string form the Follower venue expects.
func (i Instrument) FormatPrice(px decimal.Decimal) string {
	return i.SnapPrice(px).StringFixed(i.TickDecimals())
}

// RoundSize rounds a quantity to the instrument's size precision
// (half away from zero).
func (i Instrument) RoundSize(q decimal.Decimal) decimal.Decimal {
	return q.Round(i.SizeDecimals)
}

// FormatSize renders a quantity with exactly the instrument's size precision.
func (i Instrument) FormatSize(q decimal.Decimal) string {
	return i.RoundSize(q).StringFixed(i.SizeDecimals)
}

// MinSize returns the minimum order size for the given action type.
func (i Instrument) MinSize(action ActionType) decimal.Decimal {
	if action == ActionClose {
		return i.MinCloseSize
	}
	return i.MinOpenSize
}

// ————————————————————————————————————————————————————————————————————————
// Master venue events
// ————————————————————————————————————————————————————————————————————————

// MasterOrderEvent is one order lifecycle update from the Master venue,
// normalized from the orderUpdates subscription or the open-orders snapshot.
type MasterOrderEvent struct {
	Oid        int64           // Master order id, stable for the order's lifetime
	Coin       string          // instrument, e.g. "BTC"
	Side       Side            // BUY or SELL
	Price      decimal.Decimal // limit price in Master quote units
	Size       decimal.Decimal // remaining size, always positive
	Status     OrderStatus     // open / canceled / filled / triggered
	ReduceOnly bool            // order may only shrink the Master position
	Time       time.Time       // venue status timestamp
	Account    string          // Master account the event belongs to
}

// SignedSize returns +Size for BUY and -Size for SELL.
func (e MasterOrderEvent) SignedSize() decimal.Decimal {
	return e.Side.Sign().Mul(e.Size)
}

// MasterFillEvent is one trade print from the Master venue's userFills
// subscription. Only taker fills (Taker == true, wire field "crossed") are
// reproducible as independent actions; maker fills are implied by an
// already-mirrored resting order and must not be re-executed.
type MasterFillEvent struct {
	Coin    string
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal // always positive
	Time    time.Time
	Taker   bool
	Account string
}

// SignedSize returns +Size for BUY and -Size for SELL.
func (e MasterFillEvent) SignedSize() decimal.Decimal {
	return e.Side.Sign().Mul(e.Size)
}

// EventID is the synthetic journal key for a fill. Fills carry no oid, so
// identity is the (coin, timestamp, size) tuple.
func (e MasterFillEvent) EventID() string {
	return fmt.Sprintf("fill:%s:%d:%s", e.Coin, e.Time.UnixMilli(), e.Size.String())
}

// ————————————————————————————————————————————————————————————————————————
// Follower venue state
// ————————————————————————————————————————————————————————————————————————

// ExecReport is one execution report from the Follower venue's user data
// stream (order placed, partially filled, filled, canceled, ...).
type ExecReport struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string // Follower venue symbol, e.g. "BTCUSDT"
	Side          Side
	Status        ExecStatus
	LastFillPrice decimal.Decimal // price of the triggering fill, zero if none
	LastFillQty   decimal.Decimal // quantity of the triggering fill, zero if none
	FilledQty     decimal.Decimal // cumulative filled quantity
	Time          time.Time
}

// Position is the Follower venue's view of one instrument's net position.
// Amount is signed: positive = long, negative = short.
type Position struct {
	Symbol        string
	Amount        decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// FollowerOrder is a resting order on the Follower venue, as returned by the
// open-orders query. RemainingQty is OrigQty minus what has already filled.
type FollowerOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	OrigQty       decimal.Decimal
	RemainingQty  decimal.Decimal
	ReduceOnly    bool
	Status        ExecStatus
	UpdatedAt     time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Persisted records
// ————————————————————————————————————————————————————————————————————————

// Mapping binds a Master oid to the Follower order mirroring it. Stored in
// both directions; the mapper guarantees the two stay consistent.
type Mapping struct {
	FollowerID int64  `json:"followerOrderId"`
	Coin       string `json:"coin"`
}

// OrphanFill is a provisional record written when the Follower leg of a
// mirrored order fills before the Master venue reports its own fill. The
// pre-credited Master-unit equivalent is reversed when the Master's Filled
// event arrives.
type OrphanFill struct {
	Coin             string
	Side             Side
	FollowerSize     decimal.Decimal // cumulative Follower quantity filled
	MasterEquivalent decimal.Decimal // the same quantity rescaled to Master units, signed
	FollowerID       int64
	ObservedAt       time.Time
}
