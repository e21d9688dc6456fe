// stream.go maintains the Follower venue's user data stream: a listen key
// obtained over REST, kept alive on a timer, and a WebSocket that delivers
// execution reports for every order on the account. Reports are normalized
// into types.ExecReport and handed to the engine on a buffered channel.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"perp-mirror/pkg/types"
)

const (
	reportBufferSize  = 256
	keepaliveInterval = 25 * time.Minute // venue expires idle listen keys after 60
	streamMaxBackoff  = 30 * time.Second
)

// UserStream manages the user data stream connection.
type UserStream struct {
	client  *futures.Client
	reports chan types.ExecReport
	opened  bool // set after a successful dial, read by Run only

	mu        sync.Mutex
	listenKey string

	logger *slog.Logger
}

// NewUserStream creates a user data stream sharing the adapter's client.
func NewUserStream(a *Adapter, logger *slog.Logger) *UserStream {
	return &UserStream{
		client:  a.client,
		reports: make(chan types.ExecReport, reportBufferSize),
		logger:  logger.With("component", "follower_stream"),
	}
}

// Reports returns a read-only channel of execution reports.
func (s *UserStream) Reports() <-chan types.ExecReport { return s.reports }

// Run connects and maintains the stream with auto-reconnect. A fresh listen
// key is requested on every reconnect so an expired key never strands the
// stream. Blocks until ctx is cancelled.
func (s *UserStream) Run(ctx context.Context) error {
	go s.keepaliveLoop(ctx)

	backoff := time.Second
	for {
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.opened {
			s.opened = false
			backoff = time.Second
		}

		s.logger.Warn("user data stream disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > streamMaxBackoff {
			backoff = streamMaxBackoff
		}
	}
}

func (s *UserStream) connectOnce(ctx context.Context) error {
	key, err := s.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return fmt.Errorf("listen key: %w", err)
	}
	s.setListenKey(key)

	doneC, stopC, err := futures.WsUserDataServe(key, s.handleEvent, s.handleError)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.opened = true

	s.logger.Info("user data stream connected")

	select {
	case <-ctx.Done():
		close(stopC)
		return ctx.Err()
	case <-doneC:
		return errors.New("stream closed by server")
	}
}

func (s *UserStream) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key := s.currentKey()
			if key == "" {
				continue
			}
			if err := s.client.NewKeepaliveUserStreamService().ListenKey(key).Do(ctx); err != nil {
				// Not fatal: Run requests a fresh key on the next reconnect.
				s.logger.Warn("listen key keepalive failed", "error", err)
			}
		}
	}
}

func (s *UserStream) handleEvent(ev *futures.WsUserDataEvent) {
	if ev.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return
	}
	report := convertTradeUpdate(ev.OrderTradeUpdate)
	select {
	case s.reports <- report:
	default:
		s.logger.Warn("report channel full, dropping execution report",
			"symbol", report.Symbol, "order_id", report.OrderID,
		)
	}
}

func (s *UserStream) handleError(err error) {
	s.logger.Warn("user data stream error", "error", err)
}

func (s *UserStream) setListenKey(key string) {
	s.mu.Lock()
	s.listenKey = key
	s.mu.Unlock()
}

func (s *UserStream) currentKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenKey
}

// convertTradeUpdate normalizes one ORDER_TRADE_UPDATE payload.
func convertTradeUpdate(u futures.WsOrderTradeUpdate) types.ExecReport {
	return types.ExecReport{
		OrderID:       u.ID,
		ClientOrderID: u.ClientOrderID,
		Symbol:        u.Symbol,
		Side:          types.Side(u.Side),
		Status:        types.ExecStatus(u.Status),
		LastFillPrice: parseDecimal(u.LastFilledPrice),
		LastFillQty:   parseDecimal(u.LastFilledQty),
		FilledQty:     parseDecimal(u.AccumulatedFilledQty),
		Time:          time.UnixMilli(u.TradeTime),
	}
}
