package redisstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-cda-server/sessions"
)

const (
	DefaultLockPrefix = "cda:lock:principal"
	DefaultLockTTL    = 10 * time.Second
	lockPollInterval  = 20 * time.Millisecond
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLua = redis.NewScript(releaseScript)

var _ sessions.Locker = (*Locker)(nil)

// Locker serializes reconciliation per principal across processes sharing
// one Redis. The lock expires after ttl if its holder dies.
type Locker struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewLocker creates a Redis-backed principal locker.
func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locker{redis: client, prefix: DefaultLockPrefix, ttl: ttl}
}

// Lock polls SET NX until it wins or ctx is done.
func (l *Locker) Lock(ctx context.Context, principalID string) (func(), error) {
	key := l.prefix + ":" + principalID
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the request context is already cancelled.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = releaseLua.Run(releaseCtx, l.redis, []string{key}, token).Err()
		})
	}, nil
}
