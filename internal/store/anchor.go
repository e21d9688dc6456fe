package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Anchors track the currently outstanding reduce-only take-profit order per
// coin, so the rebalancer can cancel its previous order before placing a
// replacement instead of stacking them.
type Anchors struct {
	rdb *redis.Client
}

// SetTakeProfit stores the follower order id of the active take-profit.
func (a *Anchors) SetTakeProfit(ctx context.Context, coin string, followerID int64) error {
	if err := a.rdb.Set(ctx, keyAnchor+coin, followerID, 0).Err(); err != nil {
		return fmt.Errorf("set anchor %s: %w", coin, err)
	}
	return nil
}

// TakeProfit returns the anchored follower order id for a coin.
func (a *Anchors) TakeProfit(ctx context.Context, coin string) (int64, bool, error) {
	id, err := a.rdb.Get(ctx, keyAnchor+coin).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get anchor %s: %w", coin, err)
	}
	return id, true, nil
}

// ClearTakeProfit removes the anchor. Clearing an absent anchor is not an error.
func (a *Anchors) ClearTakeProfit(ctx context.Context, coin string) error {
	if err := a.rdb.Del(ctx, keyAnchor+coin).Err(); err != nil {
		return fmt.Errorf("clear anchor %s: %w", coin, err)
	}
	return nil
}
