// ws.go implements the Master venue WebSocket feed.
//
// One connection carries two subscriptions per followed account:
//
//   - orderUpdates: order lifecycle transitions (open, filled, canceled,
//     triggered), the primary mirroring signal.
//
//   - userFills: trade prints. Only crossed (taker) fills are emitted;
//     maker fills are implied by an already-mirrored resting order and must
//     not be re-executed. The initial isSnapshot batch is skipped entirely.
//
// The feed auto-reconnects with exponential backoff (1s → 30s max, reset
// after a successful open) and re-subscribes to every followed account on
// reconnection. The venue expects an application-level JSON ping; a read
// deadline detects silent server failures within ~2 missed pongs.
package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

const (
	pingInterval     = 30 * time.Second // app-level {"method":"ping"} cadence
	readTimeout      = 60 * time.Second // ~2 missed pongs triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
	orderBufferSize  = 256              // buffer for order lifecycle events
	fillBufferSize   = 64               // buffer for taker fill events
)

// Feed manages the Master venue WebSocket connection: subscription setup,
// message routing into typed channels, and automatic reconnection.
type Feed struct {
	url    string
	users  []string // followed Master accounts, normalized at construction
	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes
	opened bool       // set after a successful subscribe, read by Run only

	// Typed event channels, read by consumers via accessor methods
	orderCh chan types.MasterOrderEvent
	fillCh  chan types.MasterFillEvent

	logger *slog.Logger
}

// NewFeed creates a feed following the given Master accounts.
func NewFeed(wsURL string, users []string, logger *slog.Logger) *Feed {
	normalized := make([]string, len(users))
	for i, u := range users {
		normalized[i] = normalizeUser(u)
	}
	return &Feed{
		url:     wsURL,
		users:   normalized,
		orderCh: make(chan types.MasterOrderEvent, orderBufferSize),
		fillCh:  make(chan types.MasterFillEvent, fillBufferSize),
		logger:  logger.With("component", "master_feed"),
	}
}

// OrderEvents returns a read-only channel of Master order lifecycle events.
func (f *Feed) OrderEvents() <-chan types.MasterOrderEvent { return f.orderCh }

// FillEvents returns a read-only channel of Master taker fills.
func (f *Feed) FillEvents() <-chan types.MasterFillEvent { return f.fillCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.opened {
			// Last session subscribed successfully, start the ladder over.
			f.opened = false
			backoff = time.Second
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close gracefully closes the connection.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// wsCommand is an outgoing client message: subscribe requests and pings.
type wsCommand struct {
	Method       string          `json:"method"`
	Subscription *wsSubscription `json:"subscription,omitempty"`
}

type wsSubscription struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// wsEnvelope is the server's outer frame: a channel tag plus payload.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// wsOrderUpdate is one element of the orderUpdates payload array.
type wsOrderUpdate struct {
	Order           wsOrder `json:"order"`
	Status          string  `json:"status"`
	StatusTimestamp int64   `json:"statusTimestamp"`
	User            string  `json:"user"`
}

type wsOrder struct {
	Coin       string          `json:"coin"`
	Side       string          `json:"side"`
	LimitPx    decimal.Decimal `json:"limitPx"`
	Sz         decimal.Decimal `json:"sz"`
	Oid        int64           `json:"oid"`
	Timestamp  int64           `json:"timestamp"`
	OrigSz     decimal.Decimal `json:"origSz"`
	ReduceOnly bool            `json:"reduceOnly"`
}

// wsUserFills is the userFills payload.
type wsUserFills struct {
	IsSnapshot bool     `json:"isSnapshot"`
	User       string   `json:"user"`
	Fills      []wsFill `json:"fills"`
}

type wsFill struct {
	Coin    string          `json:"coin"`
	Px      decimal.Decimal `json:"px"`
	Sz      decimal.Decimal `json:"sz"`
	Side    string          `json:"side"`
	Time    int64           `json:"time"`
	Oid     int64           `json:"oid"`
	Crossed bool            `json:"crossed"`
	Dir     string          `json:"dir"`
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendSubscriptions(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.opened = true

	f.logger.Info("websocket connected", "users", len(f.users))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	// Read loop with deadline so we reconnect if the server goes silent
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *Feed) sendSubscriptions() error {
	for _, user := range f.users {
		for _, subType := range []string{"orderUpdates", "userFills"} {
			msg := wsCommand{
				Method:       "subscribe",
				Subscription: &wsSubscription{Type: subType, User: user},
			}
			if err := f.writeJSON(msg); err != nil {
				return fmt.Errorf("%s %s: %w", subType, user, err)
			}
		}
	}
	return nil
}

func (f *Feed) dispatchMessage(data []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.Channel {
	case "orderUpdates":
		var updates []wsOrderUpdate
		if err := json.Unmarshal(envelope.Data, &updates); err != nil {
			f.logger.Error("unmarshal orderUpdates", "error", err)
			return
		}
		for _, u := range updates {
			evt, ok := convertOrderUpdate(u)
			if !ok {
				f.logger.Debug("skipping order update",
					"oid", u.Order.Oid,
					"status", u.Status,
					"side", u.Order.Side,
				)
				continue
			}
			select {
			case f.orderCh <- evt:
			default:
				f.logger.Warn("order channel full, dropping event", "oid", evt.Oid, "coin", evt.Coin)
			}
		}

	case "userFills":
		var payload wsUserFills
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			f.logger.Error("unmarshal userFills", "error", err)
			return
		}
		if payload.IsSnapshot {
			// Historical fills delivered on subscribe, already reflected in
			// the position snapshot the ledger was seeded from.
			f.logger.Debug("skipping fills snapshot", "user", payload.User, "fills", len(payload.Fills))
			return
		}
		for _, fl := range payload.Fills {
			evt, ok := convertFill(payload.User, fl)
			if !ok {
				continue
			}
			select {
			case f.fillCh <- evt:
			default:
				f.logger.Warn("fill channel full, dropping event", "coin", evt.Coin)
			}
		}

	case "subscriptionResponse":
		f.logger.Debug("subscription acknowledged")

	case "pong":
		// Keep-alive response, nothing to do

	case "error":
		f.logger.Warn("websocket error message", "data", string(envelope.Data))

	default:
		f.logger.Debug("unknown ws channel", "channel", envelope.Channel)
	}
}

// convertOrderUpdate normalizes one wire order update. Returns false for
// statuses and sides the mirror does not act on.
func convertOrderUpdate(u wsOrderUpdate) (types.MasterOrderEvent, bool) {
	status, ok := types.ParseOrderStatus(u.Status)
	if !ok {
		return types.MasterOrderEvent{}, false
	}
	side, ok := types.ParseMasterSide(u.Order.Side)
	if !ok {
		return types.MasterOrderEvent{}, false
	}
	return types.MasterOrderEvent{
		Oid:        u.Order.Oid,
		Coin:       u.Order.Coin,
		Side:       side,
		Price:      u.Order.LimitPx,
		Size:       u.Order.Sz,
		Status:     status,
		ReduceOnly: u.Order.ReduceOnly,
		Time:       time.UnixMilli(u.StatusTimestamp),
		Account:    u.User,
	}, true
}

// convertFill normalizes one wire fill. Returns false for maker fills: they
// are the counterpart of a mirrored resting order, not an independent action.
func convertFill(user string, fl wsFill) (types.MasterFillEvent, bool) {
	if !fl.Crossed {
		return types.MasterFillEvent{}, false
	}
	side, ok := types.ParseMasterSide(fl.Side)
	if !ok {
		return types.MasterFillEvent{}, false
	}
	return types.MasterFillEvent{
		Coin:    fl.Coin,
		Side:    side,
		Price:   fl.Px,
		Size:    fl.Sz,
		Time:    time.UnixMilli(fl.Time),
		Taker:   true,
		Account: user,
	}, true
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeJSON(wsCommand{Method: "ping"}); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}
