package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"perp-mirror/internal/api"
	"perp-mirror/internal/store"
	"perp-mirror/pkg/types"
)

// Validator periodically sweeps active mappings and reaps the ones whose
// Follower order is terminal, unknown to the venue, or older than the hard
// age limit. It is the repair loop for mappings that missed their cleanup
// event (stream gaps, crash windows).
type Validator struct {
	st          *store.Store
	venue       FollowerVenue
	instruments map[string]types.Instrument
	interval    time.Duration
	maxAge      time.Duration
	failures    map[int64]int
	events      chan<- api.Event
	logger      *slog.Logger
}

// NewValidator creates a Validator sweeping every interval; mappings older
// than maxAge are reaped regardless of venue state.
func NewValidator(
	st *store.Store,
	venue FollowerVenue,
	instruments map[string]types.Instrument,
	interval, maxAge time.Duration,
	events chan<- api.Event,
	logger *slog.Logger,
) *Validator {
	return &Validator{
		st:          st,
		venue:       venue,
		instruments: instruments,
		interval:    interval,
		maxAge:      maxAge,
		failures:    make(map[int64]int),
		events:      events,
		logger:      logger.With("component", "validator"),
	}
}

// Run sweeps on a fixed ticker until ctx is canceled.
func (v *Validator) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.sweep(ctx)
		}
	}
}

func (v *Validator) sweep(ctx context.Context) {
	oids, err := v.st.Mapper.ActiveOids(ctx)
	if err != nil {
		v.logger.Error("active mapping scan failed", "error", err)
		return
	}

	active := make(map[int64]struct{}, len(oids))
	for _, oid := range oids {
		active[oid] = struct{}{}
		v.check(ctx, oid)
	}
	// Failure counters for reaped or vanished mappings are dead weight.
	for oid := range v.failures {
		if _, ok := active[oid]; !ok {
			delete(v.failures, oid)
		}
	}
}

func (v *Validator) check(ctx context.Context, oid int64) {
	log := v.logger.With("oid", oid)

	mapping, found, err := v.st.Mapper.LookupFollower(ctx, oid)
	if err != nil {
		log.Error("mapping lookup failed", "error", err)
		return
	}
	if !found {
		return // reaped between scan and check
	}
	inst, ok := v.instruments[mapping.Coin]
	if !ok {
		// Instrument removed from config; the mapping can never act again.
		v.reap(ctx, oid, mapping, "expired")
		return
	}

	if created, ok, err := v.st.Mapper.TimestampOf(ctx, oid); err != nil {
		log.Error("mapping timestamp lookup failed", "error", err)
	} else if ok && time.Since(created) > v.maxAge {
		log.Info("mapping exceeded max age", "age", time.Since(created).Round(time.Second))
		v.reap(ctx, oid, mapping, "expired")
		return
	}

	order, err := v.venue.GetOrder(ctx, inst.Symbol, mapping.FollowerID)
	if err != nil {
		if errors.Is(err, types.ErrUnknownOrder) {
			v.reap(ctx, oid, mapping, "unknown")
			return
		}
		v.failures[oid]++
		log.Warn("order status check failed",
			"follower_id", mapping.FollowerID,
			"consecutive_failures", v.failures[oid],
			"error", err,
		)
		return
	}
	delete(v.failures, oid)

	if order.Status.Terminal() {
		v.reap(ctx, oid, mapping, "terminal")
	}
}

func (v *Validator) reap(ctx context.Context, oid int64, mapping types.Mapping, reason string) {
	if err := v.st.Mapper.Delete(ctx, oid); err != nil {
		v.logger.Error("mapping delete failed", "oid", oid, "error", err)
		return
	}
	delete(v.failures, oid)
	v.logger.Info("mapping reaped",
		"oid", oid,
		"coin", mapping.Coin,
		"follower_id", mapping.FollowerID,
		"reason", reason,
	)
	v.emit(api.NewReapEvent(mapping.Coin, oid, mapping.FollowerID, reason))
}

func (v *Validator) emit(ev api.Event) {
	if v.events == nil {
		return
	}
	select {
	case v.events <- ev:
	default:
	}
}
