package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locks are short-lived per-oid execution locks. They live in Redis rather
// than in-process because they must exclude reconnection-induced replays and
// parallel replicas, not just sibling goroutines. The TTL bounds how long a
// crashed holder can block an oid; holders must finish (or give up) within it.
type Locks struct {
	rdb *redis.Client
}

// releaseScript deletes the lock only when the caller still owns it, so a
// slow holder cannot release a lock that has expired and been re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Acquire takes the per-oid lock. On success it returns a release func that
// must be called on every exit path; release is safe after the TTL has
// already expired the lock.
func (l *Locks) Acquire(ctx context.Context, oid int64) (release func(), ok bool, err error) {
	key := oidKey(keyLock, oid)
	token := uuid.NewString()

	ok, err = l.rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock oid=%d: %w", oid, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// Release must work even when the caller's context is already
		// canceled (deferred on shutdown paths), hence its own deadline.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
