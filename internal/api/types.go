package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusSnapshot is the full operational state of the mirror engine, served
// at /api/status and pushed to dashboard clients when they connect.
type StatusSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`

	// Configuration surface
	Mode          string   `json:"mode"` // fixed or equal
	DryRun        bool     `json:"dry_run"`
	FollowedUsers []string `json:"followed_users"`

	// Live state
	EmergencyStop  bool         `json:"emergency_stop"`
	ActiveMappings int          `json:"active_mappings"`
	Coins          []CoinStatus `json:"coins"`
}

// CoinStatus is the per-instrument view: the pending delta in Master units
// alongside the live Follower position.
type CoinStatus struct {
	Coin   string `json:"coin"`
	Symbol string `json:"symbol"`

	// Delta is the accumulated Master size not yet mirrored (sub-minimum
	// misses, risk denials, capped closes).
	Delta decimal.Decimal `json:"delta"`

	// Follower position
	Position      decimal.Decimal `json:"position"` // signed
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`

	// Resting take-profit anchor, zero when none.
	TakeProfitOrderID int64 `json:"take_profit_order_id,omitempty"`
}
