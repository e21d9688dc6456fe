package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"perp-mirror/pkg/types"
)

// Orphans stores provisional fill records: the Follower leg of a mirrored
// order filled before the Master venue reported its own fill. The record
// carries the pre-credited Master-unit equivalent so the adjustment can be
// reversed when the Master's Filled event finally arrives.
type Orphans struct {
	rdb *redis.Client
}

// Put records (or extends) the orphan for a Master oid. Quantities are
// HINCRBY'd in fixed-point form, so successive partial fills accumulate
// atomically onto one record.
func (o *Orphans) Put(ctx context.Context, oid int64, f types.OrphanFill) error {
	key := oidKey(keyOrphan, oid)
	pipe := o.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"coin", f.Coin,
		"side", string(f.Side),
		"followerOrderId", strconv.FormatInt(f.FollowerID, 10),
		"observedAt", strconv.FormatInt(f.ObservedAt.UnixMilli(), 10),
	)
	pipe.HIncrBy(ctx, key, "followerSize", toScaled(f.FollowerSize))
	pipe.HIncrBy(ctx, key, "masterEquivalent", toScaled(f.MasterEquivalent))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put orphan oid=%d: %w", oid, err)
	}
	return nil
}

// Get returns the orphan record for a Master oid.
func (o *Orphans) Get(ctx context.Context, oid int64) (types.OrphanFill, bool, error) {
	fields, err := o.rdb.HGetAll(ctx, oidKey(keyOrphan, oid)).Result()
	if err != nil {
		return types.OrphanFill{}, false, fmt.Errorf("get orphan oid=%d: %w", oid, err)
	}
	if len(fields) == 0 {
		return types.OrphanFill{}, false, nil
	}

	var f types.OrphanFill
	f.Coin = fields["coin"]
	f.Side = types.Side(fields["side"])
	f.FollowerID, _ = strconv.ParseInt(fields["followerOrderId"], 10, 64)
	if n, err := strconv.ParseInt(fields["followerSize"], 10, 64); err == nil {
		f.FollowerSize = fromScaled(n)
	}
	if n, err := strconv.ParseInt(fields["masterEquivalent"], 10, 64); err == nil {
		f.MasterEquivalent = fromScaled(n)
	}
	if ms, err := strconv.ParseInt(fields["observedAt"], 10, 64); err == nil {
		f.ObservedAt = time.UnixMilli(ms)
	}
	return f, true, nil
}

// Delete removes the orphan record. Deleting an absent record is not an error.
func (o *Orphans) Delete(ctx context.Context, oid int64) error {
	if err := o.rdb.Del(ctx, oidKey(keyOrphan, oid)).Err(); err != nil {
		return fmt.Errorf("delete orphan oid=%d: %w", oid, err)
	}
	return nil
}
