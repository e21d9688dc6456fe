// Package executor turns Master venue events into Follower venue actions.
//
// The Executor is the central state machine: it dedups events against the
// processed-order journal, serializes work per Master oid with a short-lived
// persistent lock, translates sizes through the position calculator, applies
// the risk gate, places or cancels Follower orders, and keeps the delta
// ledger consistent on every path: placements consume accumulated delta,
// skips credit it.
//
// The package also houses the three supporting loops built on the same
// collaborators: startup reconciliation (Reconciler), the exposure
// rebalancer (Rebalancer), and the periodic order validator (Validator).
package executor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"perp-mirror/internal/api"
	"perp-mirror/internal/risk"
	"perp-mirror/internal/sizing"
	"perp-mirror/internal/store"
	"perp-mirror/pkg/types"
)

// FollowerVenue is the slice of the Follower venue the executor drives.
// Quantities and prices are pre-formatted strings at the instrument's
// precision. Cancel and GetOrder wrap types.ErrUnknownOrder when the venue
// no longer knows the order.
type FollowerVenue interface {
	PlaceLimit(ctx context.Context, symbol string, side types.Side, qty, price string, reduceOnly bool) (int64, error)
	PlaceMarket(ctx context.Context, symbol string, side types.Side, qty string, reduceOnly bool) (int64, error)
	Cancel(ctx context.Context, symbol string, orderID int64) error
	GetOrder(ctx context.Context, symbol string, orderID int64) (types.FollowerOrder, error)
	OpenOrders(ctx context.Context, symbol string) ([]types.FollowerOrder, error)
	OpenReduceOnlyQty(ctx context.Context, symbol string, side types.Side) (decimal.Decimal, error)
	Position(ctx context.Context, symbol string) (types.Position, error)
}

// Executor applies Master events to the Follower account.
type Executor struct {
	st          *store.Store
	calc        *sizing.Calculator
	gate        *risk.Gate
	venue       FollowerVenue
	instruments map[string]types.Instrument
	symbolCoin  map[string]string
	epsilon     decimal.Decimal
	events      chan<- api.Event // nil when the API is disabled
	rebalance   func(coin string)
	logger      *slog.Logger
}

// New creates an Executor. rebalance is invoked (non-blocking) after each
// executed action; events and rebalance may be nil.
func New(
	st *store.Store,
	calc *sizing.Calculator,
	gate *risk.Gate,
	venue FollowerVenue,
	instruments map[string]types.Instrument,
	epsilon decimal.Decimal,
	events chan<- api.Event,
	rebalance func(coin string),
	logger *slog.Logger,
) *Executor {
	symbolCoin := make(map[string]string, len(instruments))
	for coin, inst := range instruments {
		symbolCoin[inst.Symbol] = coin
	}
	return &Executor{
		st:          st,
		calc:        calc,
		gate:        gate,
		venue:       venue,
		instruments: instruments,
		symbolCoin:  symbolCoin,
		epsilon:     epsilon,
		events:      events,
		rebalance:   rebalance,
		logger:      logger.With("component", "executor"),
	}
}

func oidEventID(oid int64) string {
	return strconv.FormatInt(oid, 10)
}

// HandleOrderEvent routes one Master order lifecycle event.
func (e *Executor) HandleOrderEvent(ctx context.Context, ev types.MasterOrderEvent) {
	switch ev.Status {
	case types.StatusOpen, types.StatusTriggered:
		// A triggered conditional order has become a live order.
		e.handleOpen(ctx, ev)
	case types.StatusCanceled:
		e.handleCanceled(ctx, ev)
	case types.StatusFilled:
		e.handleFilled(ctx, ev)
	}
}

// handleOpen mirrors a newly opened Master limit order.
func (e *Executor) handleOpen(ctx context.Context, ev types.MasterOrderEvent) {
	inst, ok := e.instruments[ev.Coin]
	if !ok {
		e.logger.Debug("open for unsupported coin", "coin", ev.Coin, "oid", ev.Oid)
		return
	}
	log := e.logger.With("oid", ev.Oid, "coin", ev.Coin)

	// An oid we already mirror means the Master modified the order in place.
	mapping, mapped, err := e.st.Mapper.LookupFollower(ctx, ev.Oid)
	if err != nil {
		log.Error("mapping lookup failed", "error", err)
		return
	}
	if mapped {
		e.handleReplace(ctx, ev, inst, mapping)
		return
	}

	eventID := oidEventID(ev.Oid)
	if seen, err := e.st.Journal.Seen(ctx, eventID); err != nil {
		log.Error("journal lookup failed", "error", err)
		return
	} else if seen {
		log.Debug("duplicate open event")
		return
	}

	release, locked, err := e.st.Locks.Acquire(ctx, ev.Oid)
	if err != nil {
		log.Error("lock acquire failed", "error", err)
		return
	}
	if !locked {
		log.Debug("oid locked by another worker")
		return
	}
	defer release()

	// Re-check under the lock: another process may have won the race.
	if seen, err := e.st.Journal.Seen(ctx, eventID); err != nil {
		log.Error("journal lookup failed", "error", err)
		return
	} else if seen {
		return
	}

	s := ev.SignedSize()
	delta, err := e.st.Ledger.Get(ctx, ev.Coin)
	if err != nil {
		log.Error("ledger read failed", "error", err)
		return
	}
	requirement := s.Add(delta) // S = s + Δ

	pos, err := e.venue.Position(ctx, inst.Symbol)
	if err != nil {
		log.Error("position read failed", "error", err)
		return
	}
	action := actionFor(pos.Amount, s)

	q, sizeOK, err := e.calc.Translate(ctx, ev.Size, ev.Coin, action)
	if err != nil {
		log.Error("size translation failed", "error", err)
		return
	}

	// Reduce-only orders may not exceed what is left of the position after
	// the take-profit quantity already resting on the book.
	var available decimal.Decimal
	if ev.ReduceOnly {
		covered, err := e.venue.OpenReduceOnlyQty(ctx, inst.Symbol, ev.Side)
		if err != nil {
			log.Error("reduce-only coverage read failed", "error", err)
			return
		}
		available = decimal.Max(decimal.Zero, pos.Amount.Abs().Sub(covered))
		if available.LessThan(inst.MinSize(action)) {
			// Nothing journaled: the event stays retryable once room frees up.
			log.Info("reduce-only order has no room, skipping",
				"position", pos.Amount, "covered", covered,
			)
			return
		}
		if sizeOK && q.GreaterThan(available) {
			q = inst.RoundSize(available)
		}
	}

	outcome := types.OutcomePlaced
	if !sizeOK || q.IsZero() {
		if delta.IsZero() {
			// Below minimum with nothing pending: account the miss.
			e.skip(ctx, eventID, ev.Coin, types.OutcomeSkippedBelowMin, ev.Side, ev.Size, s)
			log.Info("below minimum size, delta credited", "size", ev.Size)
			return
		}
		// Nonzero delta promotes the order to the venue minimum.
		q = inst.MinSize(action)
		if ev.ReduceOnly && q.GreaterThan(available) {
			q = inst.RoundSize(available)
		}
		outcome = types.OutcomeEnforced
	}

	if reason, allowed := e.gate.Allow(ev.Coin, pos.Amount, q); !allowed {
		e.skip(ctx, eventID, ev.Coin, types.OutcomeSkippedRisk, ev.Side, ev.Size, s)
		log.Info("risk gate denied open", "reason", reason, "qty", q)
		return
	}

	price := inst.SnapPrice(ev.Price)
	followerID, err := e.venue.PlaceLimit(ctx, inst.Symbol, ev.Side, inst.FormatSize(q), inst.FormatPrice(ev.Price), ev.ReduceOnly)
	if err != nil {
		// Credit the miss; a snapshot replay can still pick the order up,
		// and a later success consumes the whole delta again.
		if _, aerr := e.st.Ledger.Add(ctx, ev.Coin, s); aerr != nil {
			log.Error("delta credit after failed placement failed", "error", aerr)
		}
		log.Error("placement failed, delta credited", "error", err)
		return
	}

	if err := e.st.Mapper.Save(ctx, ev.Oid, followerID, ev.Coin); err != nil {
		log.Error("mapping save failed after placement", "follower_id", followerID, "error", err)
	}
	e.record(ctx, eventID, store.Entry{
		Outcome:      outcome,
		FollowerID:   followerID,
		MasterSize:   ev.Size,
		FollowerSize: q,
		Price:        price,
	})
	if _, err := e.st.Ledger.Consume(ctx, ev.Coin, requirement.Sub(s)); err != nil {
		log.Error("delta consume failed", "error", err)
	}

	log.Info("mirrored open",
		"outcome", outcome,
		"side", ev.Side,
		"master_size", ev.Size,
		"qty", q,
		"price", price,
		"follower_id", followerID,
	)
	e.emit(api.NewOutcomeEvent(ev.Coin, eventID, outcome, ev.Side, ev.Size, q, price, followerID))
	e.triggerRebalance(ev.Coin)
}

// handleReplace re-mirrors an already-mapped order whose price or size moved.
func (e *Executor) handleReplace(ctx context.Context, ev types.MasterOrderEvent, inst types.Instrument, mapping types.Mapping) {
	log := e.logger.With("oid", ev.Oid, "coin", ev.Coin, "follower_id", mapping.FollowerID)

	release, locked, err := e.st.Locks.Acquire(ctx, ev.Oid)
	if err != nil {
		log.Error("lock acquire failed", "error", err)
		return
	}
	if !locked {
		log.Debug("oid locked by another worker")
		return
	}
	defer release()

	current, err := e.venue.GetOrder(ctx, inst.Symbol, mapping.FollowerID)
	if err != nil {
		if errors.Is(err, types.ErrUnknownOrder) {
			// Mapping points nowhere; let the validator reap it.
			log.Warn("mapped follower order unknown to venue")
			return
		}
		log.Error("follower order lookup failed", "error", err)
		return
	}
	if current.Status.Terminal() {
		log.Debug("mapped follower order already terminal, nothing to replace")
		return
	}

	pos, err := e.venue.Position(ctx, inst.Symbol)
	if err != nil {
		log.Error("position read failed", "error", err)
		return
	}
	s := ev.SignedSize()
	q, sizeOK, err := e.calc.Translate(ctx, ev.Size, ev.Coin, actionFor(pos.Amount, s))
	if err != nil {
		log.Error("size translation failed", "error", err)
		return
	}

	price := inst.SnapPrice(ev.Price)
	if current.Price.Equal(price) && sizeOK && current.OrigQty.Equal(q) {
		return // nothing moved
	}

	// No atomic replace on the venue: cancel first, tolerate the gap.
	if err := e.venue.Cancel(ctx, inst.Symbol, mapping.FollowerID); err != nil && !errors.Is(err, types.ErrUnknownOrder) {
		log.Error("cancel before replace failed", "error", err)
		return
	}

	if !sizeOK || q.IsZero() {
		// The resized order no longer translates; drop the mirror and
		// account the miss.
		if err := e.st.Mapper.Delete(ctx, ev.Oid); err != nil {
			log.Error("mapping delete failed", "error", err)
		}
		e.skip(ctx, oidEventID(ev.Oid), ev.Coin, types.OutcomeSkippedBelowMin, ev.Side, ev.Size, s)
		log.Info("replacement below minimum, mirror dropped", "size", ev.Size)
		return
	}

	followerID, err := e.venue.PlaceLimit(ctx, inst.Symbol, ev.Side, inst.FormatSize(q), inst.FormatPrice(ev.Price), ev.ReduceOnly)
	if err != nil {
		if derr := e.st.Mapper.Delete(ctx, ev.Oid); derr != nil {
			log.Error("mapping delete failed", "error", derr)
		}
		if _, aerr := e.st.Ledger.Add(ctx, ev.Coin, s); aerr != nil {
			log.Error("delta credit after failed replace failed", "error", aerr)
		}
		log.Error("replacement placement failed, delta credited", "error", err)
		return
	}

	if err := e.st.Mapper.Save(ctx, ev.Oid, followerID, ev.Coin); err != nil {
		log.Error("mapping save failed after replace", "error", err)
	}
	e.record(ctx, oidEventID(ev.Oid), store.Entry{
		Outcome:      types.OutcomeReplaced,
		FollowerID:   followerID,
		MasterSize:   ev.Size,
		FollowerSize: q,
		Price:        price,
	})

	log.Info("replaced mirror",
		"side", ev.Side,
		"qty", q,
		"price", price,
		"new_follower_id", followerID,
	)
	e.emit(api.NewOutcomeEvent(ev.Coin, oidEventID(ev.Oid), types.OutcomeReplaced, ev.Side, ev.Size, q, price, followerID))
}

// handleCanceled mirrors a Master cancellation.
func (e *Executor) handleCanceled(ctx context.Context, ev types.MasterOrderEvent) {
	inst, ok := e.instruments[ev.Coin]
	if !ok {
		return
	}
	log := e.logger.With("oid", ev.Oid, "coin", ev.Coin)

	mapping, mapped, err := e.st.Mapper.LookupFollower(ctx, ev.Oid)
	if err != nil {
		log.Error("mapping lookup failed", "error", err)
		return
	}
	if !mapped {
		log.Debug("cancel for unmapped order")
		return
	}

	err = e.venue.Cancel(ctx, inst.Symbol, mapping.FollowerID)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrUnknownOrder):
		log.Debug("follower order already gone", "follower_id", mapping.FollowerID)
	default:
		// Keep the mapping; the validator retries the cleanup.
		log.Error("follower cancel failed", "follower_id", mapping.FollowerID, "error", err)
		return
	}

	if err := e.st.Mapper.Delete(ctx, ev.Oid); err != nil {
		log.Error("mapping delete failed", "error", err)
		return
	}
	log.Info("mirrored cancel", "follower_id", mapping.FollowerID)
	e.emit(api.NewCancelEvent(ev.Coin, ev.Oid, mapping.FollowerID))
}

// handleFilled resolves a Master maker fill: reverse any orphan pre-credit
// and drop the mapping once the Follower leg is terminal.
func (e *Executor) handleFilled(ctx context.Context, ev types.MasterOrderEvent) {
	inst, ok := e.instruments[ev.Coin]
	if !ok {
		return
	}
	log := e.logger.With("oid", ev.Oid, "coin", ev.Coin)

	orphan, found, err := e.st.Orphans.Get(ctx, ev.Oid)
	if err != nil {
		log.Error("orphan lookup failed", "error", err)
	} else if found {
		if _, err := e.st.Ledger.Add(ctx, ev.Coin, orphan.MasterEquivalent); err != nil {
			log.Error("orphan reversal failed", "error", err)
		} else {
			if err := e.st.Orphans.Delete(ctx, ev.Oid); err != nil {
				log.Error("orphan delete failed", "error", err)
			}
			log.Info("orphan fill resolved",
				"follower_size", orphan.FollowerSize,
				"master_equivalent", orphan.MasterEquivalent,
			)
			e.emit(api.NewOrphanEvent(ev.Coin, ev.Oid, orphan.FollowerSize, orphan.MasterEquivalent, true))
		}
	}

	mapping, mapped, err := e.st.Mapper.LookupFollower(ctx, ev.Oid)
	if err != nil {
		log.Error("mapping lookup failed", "error", err)
		return
	}
	if !mapped {
		return
	}

	order, err := e.venue.GetOrder(ctx, inst.Symbol, mapping.FollowerID)
	if err != nil {
		if errors.Is(err, types.ErrUnknownOrder) {
			if derr := e.st.Mapper.Delete(ctx, ev.Oid); derr != nil {
				log.Error("mapping delete failed", "error", derr)
			}
			return
		}
		log.Error("follower order lookup failed", "error", err)
		return
	}
	if !order.Status.Terminal() {
		// Still live on the Follower book; keep the mapping so duplicate
		// Master events stay suppressed. The validator reaps it later.
		log.Debug("follower order still live after master fill", "status", order.Status)
		return
	}
	if err := e.st.Mapper.Delete(ctx, ev.Oid); err != nil {
		log.Error("mapping delete failed", "error", err)
	}
}

// HandleFill mirrors a Master taker fill with a catch-up market order.
func (e *Executor) HandleFill(ctx context.Context, ev types.MasterFillEvent) {
	if !ev.Taker {
		return
	}
	inst, ok := e.instruments[ev.Coin]
	if !ok {
		e.logger.Debug("fill for unsupported coin", "coin", ev.Coin)
		return
	}
	eventID := ev.EventID()
	log := e.logger.With("event_id", eventID, "coin", ev.Coin)

	if seen, err := e.st.Journal.Seen(ctx, eventID); err != nil {
		log.Error("journal lookup failed", "error", err)
		return
	} else if seen {
		log.Debug("duplicate fill event")
		return
	}

	s := ev.SignedSize()
	delta, err := e.st.Ledger.Get(ctx, ev.Coin)
	if err != nil {
		log.Error("ledger read failed", "error", err)
		return
	}
	requirement := s.Add(delta) // S = s + Δ

	// The fill moved the Master target; if the net requirement is noise or
	// points the other way, the Follower does nothing and the miss is kept
	// on the ledger.
	if requirement.Abs().LessThan(e.epsilon) || requirement.Sign() != s.Sign() {
		e.skip(ctx, eventID, ev.Coin, types.OutcomeSkippedDirection, ev.Side, ev.Size, s)
		log.Info("fill direction mismatch, delta credited",
			"signed_size", s, "requirement", requirement,
		)
		return
	}

	pos, err := e.venue.Position(ctx, inst.Symbol)
	if err != nil {
		log.Error("position read failed", "error", err)
		return
	}
	action := actionFor(pos.Amount, s)

	// Catch-up semantics: aggressive actions absorb the accumulated delta,
	// so the whole requirement is translated, not just this fill.
	q, sizeOK, err := e.calc.Translate(ctx, requirement.Abs(), ev.Coin, action)
	if err != nil {
		log.Error("size translation failed", "error", err)
		return
	}
	if !sizeOK || q.IsZero() {
		e.skip(ctx, eventID, ev.Coin, types.OutcomeSkippedBelowMin, ev.Side, ev.Size, s)
		log.Info("fill below minimum size, delta credited", "requirement", requirement)
		return
	}

	// A close never flips the position: cap at what is actually held and
	// keep the uncovered remainder on the ledger.
	trimmed := decimal.Zero
	if action == types.ActionClose && q.GreaterThan(pos.Amount.Abs()) {
		capped := inst.RoundSize(pos.Amount.Abs())
		trimmed = q.Sub(capped)
		q = capped
		if q.LessThan(inst.MinSize(types.ActionClose)) || q.IsZero() {
			e.skip(ctx, eventID, ev.Coin, types.OutcomeSkippedBelowMin, ev.Side, ev.Size, s)
			log.Info("capped close below minimum, delta credited", "position", pos.Amount)
			return
		}
	}

	if reason, allowed := e.gate.Allow(ev.Coin, pos.Amount, q); !allowed {
		e.skip(ctx, eventID, ev.Coin, types.OutcomeSkippedRisk, ev.Side, ev.Size, s)
		log.Info("risk gate denied fill", "reason", reason, "qty", q)
		return
	}

	followerID, err := e.venue.PlaceMarket(ctx, inst.Symbol, ev.Side, inst.FormatSize(q), false)
	if err != nil {
		if _, aerr := e.st.Ledger.Add(ctx, ev.Coin, s); aerr != nil {
			log.Error("delta credit after failed market order failed", "error", aerr)
		}
		log.Error("market order failed, delta credited", "error", err)
		return
	}

	e.record(ctx, eventID, store.Entry{
		Outcome:      types.OutcomePlaced,
		FollowerID:   followerID,
		MasterSize:   ev.Size,
		FollowerSize: q,
		Price:        ev.Price,
	})
	if _, err := e.st.Ledger.Consume(ctx, ev.Coin, requirement.Sub(s)); err != nil {
		log.Error("delta consume failed", "error", err)
	}
	if trimmed.Sign() > 0 {
		// The capped remainder is exposure the Master has and we refused;
		// keep it on the books so later actions can pick it up.
		equiv, err := e.calc.MasterEquivalent(ctx, trimmed, ev.Coin)
		if err != nil {
			log.Error("trim conversion failed", "trimmed", trimmed, "error", err)
		} else if _, err := e.st.Ledger.Add(ctx, ev.Coin, ev.Side.Sign().Mul(equiv)); err != nil {
			log.Error("trim credit failed", "error", err)
		}
	}

	log.Info("mirrored taker fill",
		"side", ev.Side,
		"master_size", ev.Size,
		"requirement", requirement,
		"qty", q,
		"follower_id", followerID,
	)
	e.emit(api.NewOutcomeEvent(ev.Coin, eventID, types.OutcomePlaced, ev.Side, ev.Size, q, ev.Price, followerID))
	e.triggerRebalance(ev.Coin)
}

// HandleExecReport processes one Follower execution report: orphan
// pre-credits for fills that beat the Master's notification, eager mapping
// cleanup for terminal non-fill statuses, and take-profit anchor cleanup.
func (e *Executor) HandleExecReport(ctx context.Context, r types.ExecReport) {
	coin, ok := e.symbolCoin[r.Symbol]
	if !ok {
		return
	}
	log := e.logger.With("coin", coin, "follower_id", r.OrderID)

	if (r.Status == types.ExecFilled || r.Status == types.ExecPartiallyFilled) && r.LastFillQty.Sign() > 0 {
		oid, mapped, err := e.st.Mapper.LookupMaster(ctx, r.OrderID)
		if err != nil {
			log.Error("reverse mapping lookup failed", "error", err)
		} else if mapped {
			equiv, err := e.calc.MasterEquivalent(ctx, r.LastFillQty, coin)
			if err != nil {
				log.Error("orphan conversion failed", "error", err)
			} else {
				signedEquiv := r.Side.Sign().Mul(equiv)
				// Pre-credit the expected Master fill so it is not counted
				// twice when the Master's own Filled event lands.
				if _, err := e.st.Ledger.Add(ctx, coin, signedEquiv.Neg()); err != nil {
					log.Error("orphan pre-credit failed", "error", err)
				} else if err := e.st.Orphans.Put(ctx, oid, types.OrphanFill{
					Coin:             coin,
					Side:             r.Side,
					FollowerSize:     r.LastFillQty,
					MasterEquivalent: signedEquiv,
					FollowerID:       r.OrderID,
					ObservedAt:       r.Time,
				}); err != nil {
					log.Error("orphan record failed", "error", err)
				} else {
					log.Info("orphan fill recorded",
						"oid", oid,
						"fill_qty", r.LastFillQty,
						"master_equivalent", signedEquiv,
					)
					e.emit(api.NewOrphanEvent(coin, oid, r.LastFillQty, signedEquiv, false))
				}
			}
		}
	}

	if !r.Status.Terminal() {
		return
	}

	// Canceled, expired, or rejected mirrors can drop their mapping now.
	// Filled mirrors keep it until the Master's own Filled event confirms.
	if r.Status != types.ExecFilled {
		oid, mapped, err := e.st.Mapper.LookupMaster(ctx, r.OrderID)
		if err != nil {
			log.Error("reverse mapping lookup failed", "error", err)
		} else if mapped {
			if err := e.st.Mapper.Delete(ctx, oid); err != nil {
				log.Error("mapping delete failed", "oid", oid, "error", err)
			} else {
				log.Info("mapping dropped on terminal report", "oid", oid, "status", r.Status)
			}
		}
	}

	// A finished take-profit anchor frees its slot for the rebalancer.
	anchorID, found, err := e.st.Anchors.TakeProfit(ctx, coin)
	if err != nil {
		log.Error("anchor lookup failed", "error", err)
		return
	}
	if found && anchorID == r.OrderID {
		if err := e.st.Anchors.ClearTakeProfit(ctx, coin); err != nil {
			log.Error("anchor clear failed", "error", err)
			return
		}
		log.Info("take-profit anchor finished", "status", r.Status)
	}
}

// skip journals a non-placement outcome and credits the miss to the ledger.
func (e *Executor) skip(ctx context.Context, eventID, coin string, outcome types.Outcome, side types.Side, size, signed decimal.Decimal) {
	e.record(ctx, eventID, store.Entry{
		Outcome:    outcome,
		MasterSize: size,
	})
	if _, err := e.st.Ledger.Add(ctx, coin, signed); err != nil {
		e.logger.Error("delta credit failed", "coin", coin, "event_id", eventID, "error", err)
	}
	e.emit(api.NewOutcomeEvent(coin, eventID, outcome, side, size, decimal.Zero, decimal.Zero, 0))
}

func (e *Executor) record(ctx context.Context, eventID string, entry store.Entry) {
	entry.ProcessedAt = time.Now()
	if err := e.st.Journal.Record(ctx, eventID, entry); err != nil {
		e.logger.Error("journal write failed", "event_id", eventID, "error", err)
	}
}

func (e *Executor) emit(ev api.Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Executor) triggerRebalance(coin string) {
	if e.rebalance != nil {
		e.rebalance(coin)
	}
}

// actionFor classifies an order against the current position: trading
// against the position's sign closes it, everything else opens.
func actionFor(position, signedSize decimal.Decimal) types.ActionType {
	if position.Sign() != 0 && position.Sign() != signedSize.Sign() {
		return types.ActionClose
	}
	return types.ActionOpen
}
