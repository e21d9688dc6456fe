package api

import (
	"time"

	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

// Event types pushed to dashboard clients.
const (
	EventTypeOutcome   = "outcome"        // an executor disposition: placed, enforced, or skipped
	EventTypeCancel    = "cancel"         // a Master cancel mirrored to the Follower
	EventTypeOrphan    = "orphan"         // a Follower fill observed ahead of the Master's
	EventTypeRebalance = "rebalance"      // a take-profit anchor placed or moved
	EventTypeStop      = "emergency_stop" // kill-switch toggled at runtime
	EventTypeReap      = "reap"           // the validator deleted a stale mapping
	EventTypeSnapshot  = "snapshot"       // full engine state, sent on connect
)

// Event is the wrapper for all events sent to the dashboard.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Coin      string      `json:"coin,omitempty"` // empty for global events
	Data      interface{} `json:"data"`
}

// OutcomeEvent reports how one Master event was disposed of.
type OutcomeEvent struct {
	EventID      string          `json:"event_id"`
	Outcome      types.Outcome   `json:"outcome"`
	Side         types.Side      `json:"side"`
	MasterSize   decimal.Decimal `json:"master_size"`
	FollowerSize decimal.Decimal `json:"follower_size"`
	Price        decimal.Decimal `json:"price"`
	FollowerID   int64           `json:"follower_order_id,omitempty"`
}

// CancelEvent reports a mirrored cancellation.
type CancelEvent struct {
	Oid        int64 `json:"master_oid"`
	FollowerID int64 `json:"follower_order_id"`
}

// OrphanEvent reports an orphan fill record being written or resolved.
type OrphanEvent struct {
	Oid              int64           `json:"master_oid"`
	FollowerSize     decimal.Decimal `json:"follower_size"`
	MasterEquivalent decimal.Decimal `json:"master_equivalent"`
	Resolved         bool            `json:"resolved"`
}

// RebalanceEvent reports a new take-profit anchor.
type RebalanceEvent struct {
	Side       types.Side      `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	FollowerID int64           `json:"follower_order_id"`
	Aggressive bool            `json:"aggressive"`
}

// StopEvent reports an emergency-stop toggle.
type StopEvent struct {
	Active bool   `json:"active"`
	Source string `json:"source"` // "config", "api"
}

// ReapEvent reports a mapping deleted by the periodic validator.
type ReapEvent struct {
	Oid        int64  `json:"master_oid"`
	FollowerID int64  `json:"follower_order_id"`
	Reason     string `json:"reason"` // "terminal", "unknown", "expired"
}

// NewOutcomeEvent wraps an executor disposition.
func NewOutcomeEvent(coin, eventID string, outcome types.Outcome, side types.Side, masterSize, followerSize, price decimal.Decimal, followerID int64) Event {
	return Event{
		Type:      EventTypeOutcome,
		Timestamp: time.Now(),
		Coin:      coin,
		Data: OutcomeEvent{
			EventID:      eventID,
			Outcome:      outcome,
			Side:         side,
			MasterSize:   masterSize,
			FollowerSize: followerSize,
			Price:        price,
			FollowerID:   followerID,
		},
	}
}

// NewCancelEvent wraps a mirrored cancel.
func NewCancelEvent(coin string, oid, followerID int64) Event {
	return Event{
		Type:      EventTypeCancel,
		Timestamp: time.Now(),
		Coin:      coin,
		Data:      CancelEvent{Oid: oid, FollowerID: followerID},
	}
}

// NewOrphanEvent wraps an orphan fill record or its resolution.
func NewOrphanEvent(coin string, oid int64, followerSize, masterEquivalent decimal.Decimal, resolved bool) Event {
	return Event{
		Type:      EventTypeOrphan,
		Timestamp: time.Now(),
		Coin:      coin,
		Data: OrphanEvent{
			Oid:              oid,
			FollowerSize:     followerSize,
			MasterEquivalent: masterEquivalent,
			Resolved:         resolved,
		},
	}
}

// NewRebalanceEvent wraps a take-profit anchor placement.
func NewRebalanceEvent(coin string, side types.Side, qty, price decimal.Decimal, followerID int64, aggressive bool) Event {
	return Event{
		Type:      EventTypeRebalance,
		Timestamp: time.Now(),
		Coin:      coin,
		Data: RebalanceEvent{
			Side:       side,
			Quantity:   qty,
			Price:      price,
			FollowerID: followerID,
			Aggressive: aggressive,
		},
	}
}

// NewStopEvent wraps an emergency-stop toggle.
func NewStopEvent(active bool, source string) Event {
	return Event{
		Type:      EventTypeStop,
		Timestamp: time.Now(),
		Data:      StopEvent{Active: active, Source: source},
	}
}

// NewReapEvent wraps a validator mapping deletion.
func NewReapEvent(coin string, oid, followerID int64, reason string) Event {
	return Event{
		Type:      EventTypeReap,
		Timestamp: time.Now(),
		Coin:      coin,
		Data:      ReapEvent{Oid: oid, FollowerID: followerID, Reason: reason},
	}
}
