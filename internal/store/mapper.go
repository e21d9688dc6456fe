package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"perp-mirror/pkg/types"
)

// Mapper is the durable bidirectional binding between Master oids and
// Follower order ids. It is the only component allowed to create or destroy
// mappings: both directions plus the creation timestamp are written and
// deleted in a single transactional pipeline, so callers never observe a
// half-present mapping.
type Mapper struct {
	rdb *redis.Client
}

// inverseRecord is the f2m value: the Master oid a Follower order mirrors.
type inverseRecord struct {
	MasterOid int64  `json:"masterOid"`
	Coin      string `json:"coin"`
}

func oidKey(prefix string, oid int64) string {
	return prefix + strconv.FormatInt(oid, 10)
}

// Save writes masterOid → followerID, followerID → masterOid, and the
// creation timestamp atomically, each with the retention TTL.
func (m *Mapper) Save(ctx context.Context, oid, followerID int64, coin string) error {
	fwd, err := json.Marshal(types.Mapping{FollowerID: followerID, Coin: coin})
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	inv, err := json.Marshal(inverseRecord{MasterOid: oid, Coin: coin})
	if err != nil {
		return fmt.Errorf("marshal inverse mapping: %w", err)
	}

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, oidKey(keyMapM2F, oid), fwd, mappingTTL)
	pipe.Set(ctx, oidKey(keyMapF2M, followerID), inv, mappingTTL)
	pipe.Set(ctx, oidKey(keyOrderTS, oid), strconv.FormatInt(time.Now().UnixMilli(), 10), mappingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save mapping oid=%d: %w", oid, err)
	}
	return nil
}

// LookupFollower returns the Follower order mirroring the given Master oid.
func (m *Mapper) LookupFollower(ctx context.Context, oid int64) (types.Mapping, bool, error) {
	raw, err := m.rdb.Get(ctx, oidKey(keyMapM2F, oid)).Result()
	if err == redis.Nil {
		return types.Mapping{}, false, nil
	}
	if err != nil {
		return types.Mapping{}, false, fmt.Errorf("lookup follower oid=%d: %w", oid, err)
	}
	var rec types.Mapping
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return types.Mapping{}, false, fmt.Errorf("decode mapping oid=%d: %w", oid, err)
	}
	return rec, true, nil
}

// LookupMaster returns the Master oid a Follower order mirrors.
func (m *Mapper) LookupMaster(ctx context.Context, followerID int64) (int64, bool, error) {
	raw, err := m.rdb.Get(ctx, oidKey(keyMapF2M, followerID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup master follower=%d: %w", followerID, err)
	}
	var rec inverseRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return 0, false, fmt.Errorf("decode inverse mapping follower=%d: %w", followerID, err)
	}
	return rec.MasterOid, true, nil
}

// Delete removes both directions and the timestamp atomically. Deleting an
// absent mapping is not an error.
func (m *Mapper) Delete(ctx context.Context, oid int64) error {
	rec, found, err := m.LookupFollower(ctx, oid)
	if err != nil {
		return err
	}

	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, oidKey(keyMapM2F, oid))
	pipe.Del(ctx, oidKey(keyOrderTS, oid))
	if found {
		pipe.Del(ctx, oidKey(keyMapF2M, rec.FollowerID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete mapping oid=%d: %w", oid, err)
	}
	return nil
}

// TimestampOf returns when the mapping was created.
func (m *Mapper) TimestampOf(ctx context.Context, oid int64) (time.Time, bool, error) {
	raw, err := m.rdb.Get(ctx, oidKey(keyOrderTS, oid)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("timestamp oid=%d: %w", oid, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse timestamp oid=%d: %w", oid, err)
	}
	return time.UnixMilli(ms), true, nil
}

// ActiveOids scans the forward mapping keyspace and returns every mapped
// Master oid. Used by the periodic validator.
func (m *Mapper) ActiveOids(ctx context.Context) ([]int64, error) {
	var oids []int64
	iter := m.rdb.Scan(ctx, 0, keyMapM2F+"*", 100).Iterator()
	for iter.Next(ctx) {
		oid, err := strconv.ParseInt(iter.Val()[len(keyMapM2F):], 10, 64)
		if err != nil {
			continue // foreign key in our prefix, skip
		}
		oids = append(oids, oid)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan mappings: %w", err)
	}
	return oids, nil
}
