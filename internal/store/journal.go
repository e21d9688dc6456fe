package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"perp-mirror/pkg/types"
)

// Journal is the processed-order record: an event id present here has been
// acted upon exactly once and must never be acted on again. For limit orders
// the id is the Master oid; for fills it is the synthetic fill:{coin}:{ms}:{size}
// tuple.
type Journal struct {
	rdb *redis.Client
}

// Entry captures how an event was disposed of.
type Entry struct {
	Outcome      types.Outcome
	FollowerID   int64 // zero when nothing was placed
	MasterSize   decimal.Decimal
	FollowerSize decimal.Decimal
	Price        decimal.Decimal
	ProcessedAt  time.Time
}

// Seen reports whether the event id has already been processed.
func (j *Journal) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := j.rdb.Exists(ctx, keyJournal+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("journal seen %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Record persists the outcome for an event id with the retention TTL.
func (j *Journal) Record(ctx context.Context, eventID string, e Entry) error {
	key := keyJournal + eventID
	pipe := j.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"outcome", string(e.Outcome),
		"followerOrderId", strconv.FormatInt(e.FollowerID, 10),
		"masterSize", e.MasterSize.String(),
		"followerSize", e.FollowerSize.String(),
		"price", e.Price.String(),
		"processedAt", strconv.FormatInt(e.ProcessedAt.UnixMilli(), 10),
	)
	pipe.Expire(ctx, key, journalTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal record %s: %w", eventID, err)
	}
	return nil
}

// Get returns the recorded outcome for an event id.
func (j *Journal) Get(ctx context.Context, eventID string) (Entry, bool, error) {
	fields, err := j.rdb.HGetAll(ctx, keyJournal+eventID).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("journal get %s: %w", eventID, err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	var e Entry
	e.Outcome = types.Outcome(fields["outcome"])
	e.FollowerID, _ = strconv.ParseInt(fields["followerOrderId"], 10, 64)
	e.MasterSize, _ = decimal.NewFromString(fields["masterSize"])
	e.FollowerSize, _ = decimal.NewFromString(fields["followerSize"])
	e.Price, _ = decimal.NewFromString(fields["price"])
	if ms, err := strconv.ParseInt(fields["processedAt"], 10, 64); err == nil {
		e.ProcessedAt = time.UnixMilli(ms)
	}
	return e, true, nil
}
