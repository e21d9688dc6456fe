// Package binance wraps the Follower venue's USD-M futures API: order
// placement and cancellation, order/position/account queries, one-way
// position mode setup, and the user data stream that reports executions.
//
// All REST calls go through a shared rate limiter. Mutating calls retry
// transient failures a bounded number of times. In dry-run mode mutations
// are logged instead of sent and signed reads return empty state, so the
// engine can run against a live Master feed with no Follower credentials.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"perp-mirror/internal/config"
	"perp-mirror/pkg/types"
)

const (
	retryAttempts = 3
	retryWait     = 300 * time.Millisecond
)

// Adapter is the Follower venue client.
type Adapter struct {
	client  *futures.Client
	ids     *IDGenerator
	limiter *rate.Limiter
	dryRun  bool
	dryID   atomic.Int64 // synthetic ids for dry-run placements, negative
	logger  *slog.Logger
}

// NewAdapter creates a Follower venue client from config.
func NewAdapter(cfg config.FollowerConfig, dryRun bool, logger *slog.Logger) *Adapter {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	return &Adapter{
		client:  futures.NewClient(cfg.APIKey, cfg.APISecret),
		ids:     NewIDGenerator(),
		limiter: rate.NewLimiter(rate.Limit(8), 16),
		dryRun:  dryRun,
		logger:  logger.With("component", "follower_client"),
	}
}

// VerifyAccess probes the account endpoint so credential problems surface at
// startup instead of on the first order.
func (a *Adapter) VerifyAccess(ctx context.Context) error {
	if a.dryRun {
		a.logger.Info("DRY-RUN: skipping credential check")
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.client.NewGetAccountService().Do(ctx); err != nil {
		if isAuthError(err) {
			return fmt.Errorf("API Key has no permissions or IP is not whitelisted: %w", err)
		}
		return fmt.Errorf("account probe: %w", err)
	}
	return nil
}

// EnsureOneWayMode switches the account to one-way position mode. The whole
// sync model assumes a single signed position per symbol.
func (a *Adapter) EnsureOneWayMode(ctx context.Context) error {
	if a.dryRun {
		a.logger.Info("DRY-RUN: would ensure one-way position mode")
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	err := a.client.NewChangePositionModeService().DualSide(false).Do(ctx)
	if err != nil && !isPositionModeUnchanged(err) {
		return fmt.Errorf("set one-way position mode: %w", err)
	}
	return nil
}

// PlaceLimit places a GTC limit order and returns the venue order id.
// Quantity and price must already be formatted to the instrument's precision.
func (a *Adapter) PlaceLimit(ctx context.Context, symbol string, side types.Side, qty, price string, reduceOnly bool) (int64, error) {
	clientID := a.ids.Next()
	if a.dryRun {
		id := a.dryID.Add(-1)
		a.logger.Info("DRY-RUN: would place limit order",
			"symbol", symbol, "side", side, "qty", qty, "price", price,
			"reduce_only", reduceOnly, "client_id", clientID,
		)
		return id, nil
	}

	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qty).
		Price(price).
		NewClientOrderID(clientID)
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	var orderID int64
	err := a.withRetry(ctx, "place limit", func() error {
		resp, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		orderID = resp.OrderID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("place limit %s %s %s@%s: %w", symbol, side, qty, price, err)
	}

	a.logger.Info("placed limit order",
		"symbol", symbol, "side", side, "qty", qty, "price", price,
		"reduce_only", reduceOnly, "order_id", orderID,
	)
	return orderID, nil
}

// PlaceMarket places a market order and returns the venue order id.
func (a *Adapter) PlaceMarket(ctx context.Context, symbol string, side types.Side, qty string, reduceOnly bool) (int64, error) {
	clientID := a.ids.Next()
	if a.dryRun {
		id := a.dryID.Add(-1)
		a.logger.Info("DRY-RUN: would place market order",
			"symbol", symbol, "side", side, "qty", qty,
			"reduce_only", reduceOnly, "client_id", clientID,
		)
		return id, nil
	}

	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(clientID)
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	var orderID int64
	err := a.withRetry(ctx, "place market", func() error {
		resp, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		orderID = resp.OrderID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("place market %s %s %s: %w", symbol, side, qty, err)
	}

	a.logger.Info("placed market order",
		"symbol", symbol, "side", side, "qty", qty,
		"reduce_only", reduceOnly, "order_id", orderID,
	)
	return orderID, nil
}

// Cancel cancels an order. When the venue no longer knows the order the
// returned error wraps types.ErrUnknownOrder; callers that only care that
// the order is off the book treat that as success.
func (a *Adapter) Cancel(ctx context.Context, symbol string, orderID int64) error {
	if a.dryRun {
		a.logger.Info("DRY-RUN: would cancel order", "symbol", symbol, "order_id", orderID)
		return nil
	}

	err := a.withRetry(ctx, "cancel", func() error {
		_, err := a.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
		return err
	})
	if err != nil {
		if isUnknownOrder(err) {
			return fmt.Errorf("cancel %s %d: %w", symbol, orderID, types.ErrUnknownOrder)
		}
		return fmt.Errorf("cancel %s %d: %w", symbol, orderID, err)
	}

	a.logger.Info("canceled order", "symbol", symbol, "order_id", orderID)
	return nil
}

// GetOrder fetches one order's current state. Wraps types.ErrUnknownOrder
// when the venue has no such order.
func (a *Adapter) GetOrder(ctx context.Context, symbol string, orderID int64) (types.FollowerOrder, error) {
	if a.dryRun {
		// Synthetic dry-run orders rest forever.
		return types.FollowerOrder{OrderID: orderID, Symbol: symbol, Status: types.ExecNew}, nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return types.FollowerOrder{}, err
	}

	o, err := a.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		if isUnknownOrder(err) {
			return types.FollowerOrder{}, fmt.Errorf("get order %s %d: %w", symbol, orderID, types.ErrUnknownOrder)
		}
		return types.FollowerOrder{}, fmt.Errorf("get order %s %d: %w", symbol, orderID, err)
	}
	return convertOrder(o), nil
}

// OpenOrders lists the resting orders on one symbol.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]types.FollowerOrder, error) {
	if a.dryRun {
		return nil, nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := a.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("open orders %s: %w", symbol, err)
	}
	orders := make([]types.FollowerOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}

// OpenReduceOnlyQty sums the remaining quantity of resting reduce-only
// orders on the given side. The rebalancer uses it to see how much of the
// position is already covered by take-profit orders.
func (a *Adapter) OpenReduceOnlyQty(ctx context.Context, symbol string, side types.Side) (decimal.Decimal, error) {
	orders, err := a.OpenOrders(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range orders {
		if o.ReduceOnly && o.Side == side {
			total = total.Add(o.RemainingQty)
		}
	}
	return total, nil
}

// Position returns the signed net position for one symbol. A symbol with no
// exposure returns a zero-amount position.
func (a *Adapter) Position(ctx context.Context, symbol string) (types.Position, error) {
	if a.dryRun {
		return types.Position{Symbol: symbol}, nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return types.Position{}, err
	}

	risks, err := a.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return types.Position{}, fmt.Errorf("position %s: %w", symbol, err)
	}
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		return types.Position{
			Symbol:        symbol,
			Amount:        parseDecimal(r.PositionAmt),
			EntryPrice:    parseDecimal(r.EntryPrice),
			MarkPrice:     parseDecimal(r.MarkPrice),
			UnrealizedPnL: parseDecimal(r.UnRealizedProfit),
		}, nil
	}
	return types.Position{Symbol: symbol}, nil
}

// AccountEquity returns the account's total margin balance.
func (a *Adapter) AccountEquity(ctx context.Context) (decimal.Decimal, error) {
	if a.dryRun {
		return decimal.Zero, nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account equity: %w", err)
	}
	return parseDecimal(acct.TotalMarginBalance), nil
}

// withRetry runs fn up to retryAttempts times, backing off briefly between
// transient failures. Venue rejections are returned immediately.
func (a *Adapter) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if werr := a.limiter.Wait(ctx); werr != nil {
			return werr
		}
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt < retryAttempts {
			a.logger.Warn("transient venue error, retrying",
				"op", op, "attempt", attempt, "error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryWait):
			}
		}
	}
	return err
}

// convertOrder normalizes a venue order into the shared vocabulary.
func convertOrder(o *futures.Order) types.FollowerOrder {
	orig := parseDecimal(o.OrigQuantity)
	executed := parseDecimal(o.ExecutedQuantity)
	return types.FollowerOrder{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          types.Side(o.Side),
		Price:         parseDecimal(o.Price),
		OrigQty:       orig,
		RemainingQty:  orig.Sub(executed),
		ReduceOnly:    o.ReduceOnly,
		Status:        types.ExecStatus(o.Status),
		UpdatedAt:     time.UnixMilli(o.UpdateTime),
	}
}

// parseDecimal parses venue decimal strings, treating empty or malformed
// values as zero. Wire payloads use "0" for absent numeric fields.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
