// Package hyperliquid implements the Master venue clients.
//
// The info client (Client) talks to the venue's public info endpoint for
// point-in-time snapshots:
//   - OpenOrders:         POST /info {type: "openOrders", user}
//   - ClearinghouseState: POST /info {type: "clearinghouseState", user}
//
// The WebSocket feed (Feed) subscribes to orderUpdates and userFills per
// followed account and emits typed events on buffered channels.
//
// Requests are rate-limited, automatically retried on 5xx errors, and need
// no authentication: the info API is public and accounts are addressed by
// their EVM address.
package hyperliquid

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"perp-mirror/pkg/types"
)

// Client is the Master venue info REST client.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates an info client with rate limiting and retry.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  logger.With("component", "master_client"),
	}
}

// infoRequest is the body every info query shares.
type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// wireOpenOrder is the venue's open-order snapshot shape.
type wireOpenOrder struct {
	Coin       string          `json:"coin"`
	LimitPx    decimal.Decimal `json:"limitPx"`
	Oid        int64           `json:"oid"`
	Side       string          `json:"side"`
	Sz         decimal.Decimal `json:"sz"`
	OrigSz     decimal.Decimal `json:"origSz"`
	ReduceOnly bool            `json:"reduceOnly"`
	Timestamp  int64           `json:"timestamp"`
}

// MarginSummary is the account-level margin view.
type MarginSummary struct {
	AccountValue decimal.Decimal `json:"accountValue"`
	TotalNtlPos  decimal.Decimal `json:"totalNtlPos"`
	TotalRawUsd  decimal.Decimal `json:"totalRawUsd"`
}

// PerpPosition is one open perpetual position. Szi is signed: positive long,
// negative short.
type PerpPosition struct {
	Coin          string          `json:"coin"`
	Szi           decimal.Decimal `json:"szi"`
	EntryPx       decimal.Decimal `json:"entryPx"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
}

// AssetPosition wraps a position with its margin type.
type AssetPosition struct {
	Position PerpPosition `json:"position"`
	Type     string       `json:"type"`
}

// AccountState is the clearinghouse snapshot for one Master account.
type AccountState struct {
	MarginSummary  MarginSummary   `json:"marginSummary"`
	AssetPositions []AssetPosition `json:"assetPositions"`
}

// SignedPosition returns the signed size held in the given coin, zero when
// the account has no position there.
func (s *AccountState) SignedPosition(coin string) decimal.Decimal {
	for _, ap := range s.AssetPositions {
		if ap.Position.Coin == coin {
			return ap.Position.Szi
		}
	}
	return decimal.Zero
}

// Equity returns the account value from the margin summary.
func (s *AccountState) Equity() decimal.Decimal {
	return s.MarginSummary.AccountValue
}

// OpenOrders fetches the account's current open orders, normalized to
// MasterOrderEvents with status Open.
func (c *Client) OpenOrders(ctx context.Context, user string) ([]types.MasterOrderEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	user = normalizeUser(user)

	var raw []wireOpenOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(infoRequest{Type: "openOrders", User: user}).
		SetResult(&raw).
		Post("/info")
	if err != nil {
		return nil, fmt.Errorf("open orders %s: %w", user, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("open orders %s: status %d: %s", user, resp.StatusCode(), resp.String())
	}

	orders := make([]types.MasterOrderEvent, 0, len(raw))
	for _, o := range raw {
		side, ok := types.ParseMasterSide(o.Side)
		if !ok {
			c.logger.Warn("unknown side in open order", "side", o.Side, "oid", o.Oid)
			continue
		}
		orders = append(orders, types.MasterOrderEvent{
			Oid:        o.Oid,
			Coin:       o.Coin,
			Side:       side,
			Price:      o.LimitPx,
			Size:       o.Sz,
			Status:     types.StatusOpen,
			ReduceOnly: o.ReduceOnly,
			Time:       time.UnixMilli(o.Timestamp),
			Account:    user,
		})
	}
	return orders, nil
}

// ClearinghouseState fetches the account's margin summary and positions.
func (c *Client) ClearinghouseState(ctx context.Context, user string) (*AccountState, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	user = normalizeUser(user)

	var state AccountState
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(infoRequest{Type: "clearinghouseState", User: user}).
		SetResult(&state).
		Post("/info")
	if err != nil {
		return nil, fmt.Errorf("clearinghouse state %s: %w", user, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("clearinghouse state %s: status %d: %s", user, resp.StatusCode(), resp.String())
	}
	return &state, nil
}

// normalizeUser renders a Master account in lowercase hex so snapshot and
// subscription requests always agree on the address spelling.
func normalizeUser(user string) string {
	if common.IsHexAddress(user) {
		return strings.ToLower(common.HexToAddress(user).Hex())
	}
	return user
}
