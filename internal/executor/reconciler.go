package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-mirror/internal/api"
	"perp-mirror/internal/store"
	"perp-mirror/pkg/types"
)

// priceMatchTolerance is the relative tolerance for adopting a Follower
// order during price-side match recovery.
var priceMatchTolerance = decimal.NewFromFloat(1e-4)

// MasterSource supplies the Master venue's open-order snapshot.
// Implemented by the Master info client.
type MasterSource interface {
	OpenOrders(ctx context.Context, user string) ([]types.MasterOrderEvent, error)
}

// Reconciler aligns persisted mappings with the live open-order state of
// both venues. It runs once at startup, after connections are up but
// before stream processing begins.
type Reconciler struct {
	exec   *Executor
	master MasterSource
	users  []string
	logger *slog.Logger
}

// NewReconciler creates a startup reconciler over the executor's
// collaborators.
func NewReconciler(exec *Executor, master MasterSource, users []string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		exec:   exec,
		master: master,
		users:  users,
		logger: logger.With("component", "reconciler"),
	}
}

// Run performs one reconciliation pass. It returns an error only when a
// snapshot could not be fetched; with an incomplete Master set the zombie
// sweep would cancel live mirrors, so the whole pass aborts instead.
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now()

	var masterOrders []types.MasterOrderEvent
	for _, user := range r.users {
		orders, err := r.master.OpenOrders(ctx, user)
		if err != nil {
			return fmt.Errorf("master open orders for %s: %w", user, err)
		}
		masterOrders = append(masterOrders, orders...)
	}

	followerOpen := make(map[int64]types.FollowerOrder)
	byCoin := make(map[string][]types.FollowerOrder)
	for coin, inst := range r.exec.instruments {
		orders, err := r.exec.venue.OpenOrders(ctx, inst.Symbol)
		if err != nil {
			return fmt.Errorf("follower open orders for %s: %w", inst.Symbol, err)
		}
		for _, o := range orders {
			followerOpen[o.OrderID] = o
			byCoin[coin] = append(byCoin[coin], o)
		}
	}

	masterOids := make(map[int64]struct{}, len(masterOrders))
	claimed := make(map[int64]struct{})
	var synced, recovered, replayed, zombies int

	for _, ev := range masterOrders {
		masterOids[ev.Oid] = struct{}{}
		inst, ok := r.exec.instruments[ev.Coin]
		if !ok {
			continue
		}
		log := r.logger.With("oid", ev.Oid, "coin", ev.Coin)

		mapping, mapped, err := r.exec.st.Mapper.LookupFollower(ctx, ev.Oid)
		if err != nil {
			log.Error("mapping lookup failed", "error", err)
			continue
		}
		if mapped {
			if _, live := followerOpen[mapping.FollowerID]; live {
				claimed[mapping.FollowerID] = struct{}{}
				synced++
				continue
			}
			// The mapped Follower order is gone; the mapping is stale.
			if err := r.exec.st.Mapper.Delete(ctx, ev.Oid); err != nil {
				log.Error("stale mapping delete failed", "error", err)
				continue
			}
			log.Info("stale mapping dropped", "follower_id", mapping.FollowerID)
		}

		if match, ok := r.matchByPriceSide(ev, inst, byCoin[ev.Coin], claimed); ok {
			claimed[match.OrderID] = struct{}{}
			if err := r.exec.st.Mapper.Save(ctx, ev.Oid, match.OrderID, ev.Coin); err != nil {
				log.Error("recovered mapping save failed", "error", err)
				continue
			}
			r.exec.record(ctx, oidEventID(ev.Oid), store.Entry{
				Outcome:      types.OutcomeRecovered,
				FollowerID:   match.OrderID,
				MasterSize:   ev.Size,
				FollowerSize: match.OrigQty,
				Price:        match.Price,
			})
			recovered++
			log.Info("mapping recovered by price-side match",
				"follower_id", match.OrderID,
				"price", match.Price,
			)
			r.exec.emit(api.NewOutcomeEvent(ev.Coin, oidEventID(ev.Oid), types.OutcomeRecovered, ev.Side, ev.Size, match.OrigQty, match.Price, match.OrderID))
			continue
		}

		// Unknown to us: replay as a fresh open. The journal suppresses
		// oids that were already executed in a previous life.
		replayed++
		r.exec.handleOpen(ctx, ev)
	}

	// Zombie sweep: mapped Follower orders whose Master side is gone.
	for followerID, order := range followerOpen {
		oid, mapped, err := r.exec.st.Mapper.LookupMaster(ctx, followerID)
		if err != nil {
			r.logger.Error("reverse mapping lookup failed", "follower_id", followerID, "error", err)
			continue
		}
		if !mapped {
			continue // not ours to touch (take-profit anchors, manual orders)
		}
		if _, open := masterOids[oid]; open {
			continue
		}
		log := r.logger.With("oid", oid, "follower_id", followerID)
		if err := r.exec.venue.Cancel(ctx, order.Symbol, followerID); err != nil && !errors.Is(err, types.ErrUnknownOrder) {
			log.Error("zombie cancel failed", "error", err)
			continue
		}
		if err := r.exec.st.Mapper.Delete(ctx, oid); err != nil {
			log.Error("zombie mapping delete failed", "error", err)
			continue
		}
		zombies++
		log.Info("zombie order canceled")
	}

	r.logger.Info("reconciliation complete",
		"master_orders", len(masterOrders),
		"follower_orders", len(followerOpen),
		"synced", synced,
		"recovered", recovered,
		"replayed", replayed,
		"zombies", zombies,
		"elapsed", time.Since(start),
	)
	return nil
}

// matchByPriceSide scans unclaimed Follower open orders for one matching the
// Master order's side at the tick-snapped price within relative tolerance.
func (r *Reconciler) matchByPriceSide(ev types.MasterOrderEvent, inst types.Instrument, candidates []types.FollowerOrder, claimed map[int64]struct{}) (types.FollowerOrder, bool) {
	want := inst.SnapPrice(ev.Price)
	for _, o := range candidates {
		if _, taken := claimed[o.OrderID]; taken {
			continue
		}
		if o.Side != ev.Side {
			continue
		}
		if want.IsZero() {
			if o.Price.IsZero() {
				return o, true
			}
			continue
		}
		rel := o.Price.Sub(want).Abs().Div(want)
		if rel.LessThanOrEqual(priceMatchTolerance) {
			return o, true
		}
	}
	return types.FollowerOrder{}, false
}
