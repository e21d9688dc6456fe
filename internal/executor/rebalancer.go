package executor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"perp-mirror/internal/api"
	"perp-mirror/internal/sizing"
	"perp-mirror/internal/store"
	"perp-mirror/pkg/types"
)

const rebalanceQueueSize = 64

// MasterPositionFunc returns the Master's aggregate signed position for a
// coin, summed across all followed accounts.
type MasterPositionFunc func(ctx context.Context, coin string) (decimal.Decimal, error)

// Rebalancer keeps Follower exposure anchored to the Master's. After each
// executed action it compares the Follower position against the ratio-scaled
// Master position and parks the excess behind a reduce-only take-profit
// limit slightly beyond entry. One anchor order per instrument; a new pass
// cancels and supersedes the old one.
//
// Equal mode is exposure-by-equity and has no fixed target to anchor to, so
// the rebalancer only acts in fixed mode.
type Rebalancer struct {
	st          *store.Store
	calc        *sizing.Calculator
	venue       FollowerVenue
	masterPos   MasterPositionFunc
	instruments map[string]types.Instrument
	profit      decimal.Decimal
	epsilon     decimal.Decimal
	queue       chan string
	events      chan<- api.Event
	logger      *slog.Logger
}

// NewRebalancer creates a Rebalancer. profit is the take-profit offset from
// entry (e.g. 0.0001 for one basis point), epsilon the dust threshold below
// which excess is ignored.
func NewRebalancer(
	st *store.Store,
	calc *sizing.Calculator,
	venue FollowerVenue,
	masterPos MasterPositionFunc,
	instruments map[string]types.Instrument,
	profit, epsilon decimal.Decimal,
	events chan<- api.Event,
	logger *slog.Logger,
) *Rebalancer {
	return &Rebalancer{
		st:          st,
		calc:        calc,
		venue:       venue,
		masterPos:   masterPos,
		instruments: instruments,
		profit:      profit,
		epsilon:     epsilon,
		queue:       make(chan string, rebalanceQueueSize),
		events:      events,
		logger:      logger.With("component", "rebalancer"),
	}
}

// Trigger requests an asynchronous rebalance pass for coin. Never blocks;
// a full queue drops the request, which is safe because the next executed
// action on the coin re-triggers.
func (r *Rebalancer) Trigger(coin string) {
	select {
	case r.queue <- coin:
	default:
		r.logger.Warn("rebalance queue full, dropping trigger", "coin", coin)
	}
}

// Run drains the trigger queue until ctx is canceled. Passes run
// sequentially so two triggers for one coin cannot race on the anchor.
func (r *Rebalancer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case coin := <-r.queue:
			r.rebalance(ctx, coin)
		}
	}
}

func (r *Rebalancer) rebalance(ctx context.Context, coin string) {
	if r.calc.Mode() != types.ModeFixed {
		return
	}
	inst, ok := r.instruments[coin]
	if !ok {
		return
	}
	log := r.logger.With("coin", coin)

	master, err := r.masterPos(ctx, coin)
	if err != nil {
		log.Error("master position read failed", "error", err)
		return
	}
	ratio, err := r.calc.Ratio(ctx)
	if err != nil {
		log.Error("ratio read failed", "error", err)
		return
	}
	target := master.Mul(ratio)

	pos, err := r.venue.Position(ctx, inst.Symbol)
	if err != nil {
		log.Error("position read failed", "error", err)
		return
	}
	if pos.Amount.IsZero() {
		// Flat: the venue auto-cancels any resting reduce-only anchor, and
		// its terminal report clears our anchor record.
		return
	}
	closeSide := types.SELL
	if pos.Amount.Sign() < 0 {
		closeSide = types.BUY
	}

	covered, err := r.venue.OpenReduceOnlyQty(ctx, inst.Symbol, closeSide)
	if err != nil {
		log.Error("reduce-only coverage read failed", "error", err)
		return
	}
	excess := pos.Amount.Abs().Sub(target.Abs())
	uncovered := decimal.Max(decimal.Zero, pos.Amount.Abs().Sub(covered))

	var qty decimal.Decimal
	aggressive := false
	switch {
	case inst.ReductionThreshold.Sign() > 0 && uncovered.GreaterThanOrEqual(inst.ReductionThreshold):
		// Uncovered exposure past the threshold gets halved outright, even
		// when the target says we are not oversized.
		qty = uncovered.Div(decimal.NewFromInt(2)).RoundDown(inst.SizeDecimals)
		aggressive = true
	case excess.GreaterThan(r.epsilon) && uncovered.GreaterThan(r.epsilon):
		qty = inst.RoundSize(decimal.Min(excess, uncovered))
	default:
		return
	}
	// No minimum gate: the drift this corrects is the sub-minimum excess
	// enforcement itself creates. A venue that rejects the order surfaces
	// through the placement error below.
	if qty.IsZero() {
		return
	}

	// Take profit just beyond entry: above for longs, below for shorts.
	offset := decimal.NewFromInt(1).Add(r.profit)
	if closeSide == types.BUY {
		offset = decimal.NewFromInt(1).Sub(r.profit)
	}
	price := inst.SnapPrice(pos.EntryPrice.Mul(offset))

	if oldID, found, err := r.st.Anchors.TakeProfit(ctx, coin); err != nil {
		log.Error("anchor lookup failed", "error", err)
		return
	} else if found {
		if err := r.venue.Cancel(ctx, inst.Symbol, oldID); err != nil && !errors.Is(err, types.ErrUnknownOrder) {
			log.Error("anchor cancel failed", "follower_id", oldID, "error", err)
			return
		}
		if err := r.st.Anchors.ClearTakeProfit(ctx, coin); err != nil {
			log.Error("anchor clear failed", "error", err)
			return
		}
	}

	followerID, err := r.venue.PlaceLimit(ctx, inst.Symbol, closeSide, inst.FormatSize(qty), inst.FormatPrice(price), true)
	if err != nil {
		log.Error("anchor placement failed", "error", err)
		return
	}
	if err := r.st.Anchors.SetTakeProfit(ctx, coin, followerID); err != nil {
		log.Error("anchor save failed", "follower_id", followerID, "error", err)
	}

	log.Info("take-profit anchor placed",
		"side", closeSide,
		"qty", qty,
		"price", price,
		"aggressive", aggressive,
		"follower_id", followerID,
		"excess", excess,
		"uncovered", uncovered,
	)
	r.emit(api.NewRebalanceEvent(coin, closeSide, qty, price, followerID, aggressive))
}

func (r *Rebalancer) emit(ev api.Event) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}
