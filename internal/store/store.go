// Package store provides durable engine state on Redis.
//
// Redis is the single source of truth for everything that must survive a
// restart: the bidirectional order mapping, the per-instrument delta ledger,
// the processed-order journal, orphan-fill records, per-oid execution locks,
// and rebalance anchors. Each concern is exposed as a small sub-store sharing
// one client; all mutations are atomic at the Redis level (transactional
// pipelines, INCRBY, SETNX) so no read-modify-write races exist between
// processes.
//
// The delta ledger stores fixed-point integers scaled by 1e8 rather than
// floats: INCRBY arithmetic stays exact over any number of events.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Key prefixes. The oid or coin is appended to form the full key.
const (
	keyMapM2F  = "map:m2f:"       // masterOid → {followerOrderId, coin}
	keyMapF2M  = "map:f2m:"       // followerOrderId → {masterOid, coin}
	keyOrderTS = "ts:order:"      // masterOid → creation instant (unix ms)
	keyDelta   = "pending:delta:" // coin → scaled signed delta
	keyJournal = "orderHistory:"  // eventId → outcome hash
	keyOrphan  = "orphanFill:"    // masterOid → provisional fill hash
	keyLock    = "orderLock:"     // masterOid → lock-holder token
	keyAnchor  = "rebalance:tp:"  // coin → anchored reduce-only order id
)

// Retention windows. Mappings and journal entries expire so storage stays
// bounded even if eager cleanup misses them; the ledger lives longer because
// a stale delta is still meaningful after a week of downtime.
const (
	mappingTTL = 7 * 24 * time.Hour
	journalTTL = 7 * 24 * time.Hour
	deltaTTL   = 30 * 24 * time.Hour
	lockTTL    = 10 * time.Second
)

// deltaScale is the fixed-point exponent for ledger and orphan quantities:
// values are stored as integers scaled by 10^deltaScale.
const deltaScale = 8

// toScaled converts a decimal quantity to its stored fixed-point form,
// truncating anything beyond the scale.
func toScaled(d decimal.Decimal) int64 {
	return d.Shift(deltaScale).Truncate(0).IntPart()
}

// fromScaled converts a stored fixed-point value back to a decimal.
func fromScaled(n int64) decimal.Decimal {
	return decimal.New(n, -deltaScale)
}

// Store bundles the sub-stores over one Redis client.
type Store struct {
	rdb *redis.Client

	Mapper  *Mapper
	Ledger  *Ledger
	Journal *Journal
	Orphans *Orphans
	Locks   *Locks
	Anchors *Anchors
}

// Open connects to Redis and verifies the connection with a ping.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return &Store{
		rdb:     rdb,
		Mapper:  &Mapper{rdb: rdb},
		Ledger:  &Ledger{rdb: rdb},
		Journal: &Journal{rdb: rdb},
		Orphans: &Orphans{rdb: rdb},
		Locks:   &Locks{rdb: rdb},
		Anchors: &Anchors{rdb: rdb},
	}, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
