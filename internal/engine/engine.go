// Package engine is the central orchestrator of the mirror.
//
// It wires together all subsystems:
//
//  1. A Hyperliquid feed streams the Master's order lifecycle events and
//     taker fills; a REST client serves snapshots for reconciliation,
//     rebalancing and ledger seeding.
//  2. Each supported instrument gets a dedicated worker goroutine, so all
//     mapping and ledger writes for a coin pass through a single handler
//     at a time while coins proceed in parallel.
//  3. The Executor mirrors events onto the Follower venue (Binance USD-M
//     futures) through the venue adapter.
//  4. The Binance user-data stream reports Follower executions back for
//     orphan-fill accounting, mapping cleanup and anchor tracking.
//  5. Rebalancer and Validator run as background loops; the Reconciler
//     runs once at startup to align store state with both venues.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-mirror/internal/api"
	"perp-mirror/internal/binance"
	"perp-mirror/internal/config"
	"perp-mirror/internal/executor"
	"perp-mirror/internal/hyperliquid"
	"perp-mirror/internal/risk"
	"perp-mirror/internal/sizing"
	"perp-mirror/internal/store"
	"perp-mirror/pkg/types"
)

const (
	// supervisorBackoff is the pause before restarting a crashed task.
	supervisorBackoff = time.Second

	// shutdownTimeout bounds how long Stop waits for goroutines to drain.
	shutdownTimeout = 10 * time.Second

	workerOrderBuffer  = 128
	workerFillBuffer   = 64
	workerReportBuffer = 128
)

// coinWorker serializes all events for one instrument. Master order events,
// Master fills and Follower execution reports arrive on separate channels
// and are drained by a single goroutine per coin.
type coinWorker struct {
	coin    string
	orders  chan types.MasterOrderEvent
	fills   chan types.MasterFillEvent
	reports chan types.ExecReport
}

// Engine orchestrates all components of the copy-trading system.
// It owns the lifecycle of all goroutines.
type Engine struct {
	cfg    config.Config
	st     *store.Store
	master *hyperliquid.Client
	feed   *hyperliquid.Feed
	venue  *binance.Adapter
	stream *binance.UserStream // nil in dry-run: nothing executes, so nothing reports
	calc   *sizing.Calculator
	gate   *risk.Gate
	exec   *executor.Executor
	rebal  *executor.Rebalancer
	valid  *executor.Validator
	recon  *executor.Reconciler
	logger *slog.Logger

	instruments map[string]types.Instrument
	// symbolCoin maps Follower symbol → coin so execution reports (keyed by
	// symbol) can be routed to the correct worker (keyed by coin).
	symbolCoin map[string]string
	workers    map[string]*coinWorker

	// events feeds the status API hub. Nil if the API is disabled.
	events chan api.Event

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates and wires all engine components. It opens the Redis store but
// performs no venue calls; those happen in Start.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	st, err := store.Open(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	master := hyperliquid.NewClient(cfg.Master.InfoURL, logger)
	feed := hyperliquid.NewFeed(cfg.Master.WSURL, cfg.Master.FollowedUsers, logger)
	venue := binance.NewAdapter(cfg.Follower, cfg.DryRun, logger)

	var stream *binance.UserStream
	if !cfg.DryRun {
		stream = binance.NewUserStream(venue, logger)
	}

	instruments := cfg.InstrumentSet()
	symbolCoin := make(map[string]string, len(instruments))
	workers := make(map[string]*coinWorker, len(instruments))
	for coin, inst := range instruments {
		symbolCoin[inst.Symbol] = coin
		workers[coin] = &coinWorker{
			coin:    coin,
			orders:  make(chan types.MasterOrderEvent, workerOrderBuffer),
			fills:   make(chan types.MasterFillEvent, workerFillBuffer),
			reports: make(chan types.ExecReport, workerReportBuffer),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:         cfg,
		st:          st,
		master:      master,
		feed:        feed,
		venue:       venue,
		stream:      stream,
		logger:      logger.With("component", "engine"),
		instruments: instruments,
		symbolCoin:  symbolCoin,
		workers:     workers,
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.API.Enabled {
		e.events = make(chan api.Event, 100)
	}

	// Equity snapshots are only consulted in equal mode.
	var equity *sizing.EquityCache
	mode := types.TradingMode(cfg.Trading.Mode)
	if mode == types.ModeEqual {
		equity = sizing.NewEquityCache(cfg.Trading.AccountCacheTTL, venue.AccountEquity, e.masterEquity)
	}

	e.calc = sizing.NewCalculator(
		mode,
		decimal.NewFromFloat(cfg.Trading.FixedRatio),
		decimal.NewFromFloat(cfg.Trading.EqualRatio),
		equity,
		instruments,
	)
	e.gate = risk.NewGate(cfg.Risk.SupportedCoins, instruments, cfg.Risk.EmergencyStop, logger)

	profit := decimal.NewFromFloat(cfg.Rebalance.ProfitRatio)
	epsilon := decimal.NewFromFloat(cfg.Rebalance.Epsilon)

	e.rebal = executor.NewRebalancer(st, e.calc, venue, e.masterPosition, instruments, profit, epsilon, e.events, logger)
	e.exec = executor.New(st, e.calc, e.gate, venue, instruments, epsilon, e.events, e.rebal.Trigger, logger)
	e.valid = executor.NewValidator(st, venue, instruments, cfg.Validator.Interval, cfg.Validator.MaxAge, e.events, logger)
	e.recon = executor.NewReconciler(e.exec, master, cfg.Master.FollowedUsers, logger)

	return e, nil
}

// Start validates Follower account access, seeds the delta ledgers from the
// Master's current positions, reconciles store state against both venues,
// then launches all background goroutines. A verification failure is fatal;
// everything after that point is retried or repaired, never fatal.
func (e *Engine) Start() error {
	if err := e.venue.VerifyAccess(e.ctx); err != nil {
		return fmt.Errorf("verify follower access: %w", err)
	}
	if err := e.venue.EnsureOneWayMode(e.ctx); err != nil {
		return fmt.Errorf("ensure one-way position mode: %w", err)
	}

	// Ledger init only writes where no entry exists, so a failed seed is
	// retried naturally on the next restart.
	if err := e.seedLedgers(e.ctx); err != nil {
		e.logger.Error("delta ledger seeding failed", "error", err)
	}

	if err := e.recon.Run(e.ctx); err != nil {
		e.logger.Error("startup reconciliation failed", "error", err)
	}

	e.startedAt = time.Now()

	e.supervise("master_feed", e.feed.Run)
	if e.stream != nil {
		e.supervise("user_stream", e.stream.Run)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatchMasterEvents()
	}()

	if e.stream != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.dispatchExecReports()
		}()
	}

	for _, w := range e.workers {
		w := w
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runWorker(w)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.rebal.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.valid.Run(e.ctx)
	}()

	return nil
}

// Stop gracefully shuts down: cancels all goroutines, waits for them with a
// deadline, then closes the event stream and resources. Resting orders are
// left in place; mappings survive in the store and the next start reconciles.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if e.events != nil {
			close(e.events)
		}
	case <-time.After(shutdownTimeout):
		// A stuck goroutine may still hold a send on events, so the
		// channel stays open and only the process exit reclaims it.
		e.logger.Warn("shutdown timed out waiting for goroutines")
	}

	if err := e.feed.Close(); err != nil {
		e.logger.Error("feed close failed", "error", err)
	}
	if err := e.st.Close(); err != nil {
		e.logger.Error("store close failed", "error", err)
	}

	e.logger.Info("shutdown complete")
}

// supervise runs fn in a goroutine and restarts it after a short pause
// whenever it returns or panics. Background tasks log their failures; they
// never take the process down.
func (e *Engine) supervise(name string, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			err := e.runGuarded(fn)
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Error("supervised task exited, restarting",
				"task", name,
				"error", err,
			)
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(supervisorBackoff):
			}
		}
	}()
}

func (e *Engine) runGuarded(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(e.ctx)
}

// seedLedgers initializes each instrument's delta ledger to the Master's
// aggregate signed position. The Follower account is assumed empty on first
// boot, so the whole Master position starts as pending delta; on restarts
// the existing ledger entry wins.
func (e *Engine) seedLedgers(ctx context.Context) error {
	positions := make(map[string]decimal.Decimal, len(e.instruments))
	for _, user := range e.cfg.Master.FollowedUsers {
		state, err := e.master.ClearinghouseState(ctx, user)
		if err != nil {
			return fmt.Errorf("clearinghouse state for %s: %w", user, err)
		}
		for coin := range e.instruments {
			positions[coin] = positions[coin].Add(state.SignedPosition(coin))
		}
	}

	for coin, pos := range positions {
		created, err := e.st.Ledger.Init(ctx, coin, pos)
		if err != nil {
			return fmt.Errorf("init ledger for %s: %w", coin, err)
		}
		if created {
			e.logger.Info("delta ledger seeded", "coin", coin, "delta", pos)
		}
	}
	return nil
}

// dispatchMasterEvents routes feed events to the owning coin worker.
func (e *Engine) dispatchMasterEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.feed.OrderEvents():
			e.routeOrderEvent(ev)
		case ev := <-e.feed.FillEvents():
			e.routeFillEvent(ev)
		}
	}
}

func (e *Engine) routeOrderEvent(ev types.MasterOrderEvent) {
	w, ok := e.workers[ev.Coin]
	if !ok {
		return // coin not mirrored
	}
	select {
	case w.orders <- ev:
	default:
		e.logger.Warn("order channel full, dropping event", "coin", ev.Coin, "oid", ev.Oid)
	}
}

func (e *Engine) routeFillEvent(ev types.MasterFillEvent) {
	w, ok := e.workers[ev.Coin]
	if !ok {
		return
	}
	select {
	case w.fills <- ev:
	default:
		e.logger.Warn("fill channel full, dropping event", "coin", ev.Coin)
	}
}

// dispatchExecReports routes Follower execution reports to the owning coin
// worker so order-stream and report-stream handling for a coin never race.
func (e *Engine) dispatchExecReports() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case r := <-e.stream.Reports():
			coin, ok := e.symbolCoin[r.Symbol]
			if !ok {
				continue // manual trading on an unrelated symbol
			}
			w := e.workers[coin]
			select {
			case w.reports <- r:
			default:
				e.logger.Warn("report channel full, dropping report", "symbol", r.Symbol, "order_id", r.OrderID)
			}
		}
	}
}

// runWorker drains one coin's event channels. A single goroutine per
// instrument means mapping and ledger updates for a coin never interleave.
func (e *Engine) runWorker(w *coinWorker) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-w.orders:
			e.exec.HandleOrderEvent(e.ctx, ev)
		case ev := <-w.fills:
			e.exec.HandleFill(e.ctx, ev)
		case r := <-w.reports:
			e.exec.HandleExecReport(e.ctx, r)
		}
	}
}

// masterPosition sums the Master's signed position for coin across all
// followed accounts. Used by the rebalancer to compute the target.
func (e *Engine) masterPosition(ctx context.Context, coin string) (decimal.Decimal, error) {
	var total decimal.Decimal
	for _, user := range e.cfg.Master.FollowedUsers {
		state, err := e.master.ClearinghouseState(ctx, user)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("clearinghouse state for %s: %w", user, err)
		}
		total = total.Add(state.SignedPosition(coin))
	}
	return total, nil
}

// masterEquity sums account equity across all followed accounts. Fed to the
// equity cache for equal-mode sizing.
func (e *Engine) masterEquity(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	for _, user := range e.cfg.Master.FollowedUsers {
		state, err := e.master.ClearinghouseState(ctx, user)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("clearinghouse state for %s: %w", user, err)
		}
		total = total.Add(state.Equity())
	}
	return total, nil
}

// Events returns the dashboard event stream. Nil when the API is disabled.
func (e *Engine) Events() <-chan api.Event {
	return e.events
}

// Gate exposes the risk gate for the API's emergency-stop endpoint.
func (e *Engine) Gate() *risk.Gate {
	return e.gate
}

// Snapshot assembles the current engine state for /api/status and for the
// greeting frame pushed to new dashboard clients. Venue or store errors
// leave the affected fields at their zero values rather than failing the
// whole snapshot.
func (e *Engine) Snapshot(ctx context.Context) api.StatusSnapshot {
	snap := api.StatusSnapshot{
		Timestamp:     time.Now(),
		UptimeSeconds: int64(time.Since(e.startedAt).Seconds()),
		Mode:          e.cfg.Trading.Mode,
		DryRun:        e.cfg.DryRun,
		FollowedUsers: e.cfg.Master.FollowedUsers,
		EmergencyStop: e.gate.EmergencyStopActive(),
	}

	if oids, err := e.st.Mapper.ActiveOids(ctx); err == nil {
		snap.ActiveMappings = len(oids)
	}

	coins := make([]string, 0, len(e.instruments))
	for coin := range e.instruments {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	snap.Coins = make([]api.CoinStatus, 0, len(coins))
	for _, coin := range coins {
		inst := e.instruments[coin]
		cs := api.CoinStatus{Coin: coin, Symbol: inst.Symbol}
		if delta, err := e.st.Ledger.Get(ctx, coin); err == nil {
			cs.Delta = delta
		}
		if pos, err := e.venue.Position(ctx, inst.Symbol); err == nil {
			cs.Position = pos.Amount
			cs.EntryPrice = pos.EntryPrice
			cs.MarkPrice = pos.MarkPrice
			cs.UnrealizedPnL = pos.UnrealizedPnL
		}
		if oid, ok, err := e.st.Anchors.TakeProfit(ctx, coin); err == nil && ok {
			cs.TakeProfitOrderID = oid
		}
		snap.Coins = append(snap.Coins, cs)
	}
	return snap
}
