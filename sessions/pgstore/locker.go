package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrsteele09/go-cda-server/sessions"
)

const lockPollInterval = 20 * time.Millisecond

var _ sessions.Locker = (*Locker)(nil)

// Locker holds a session-level advisory lock keyed by hashtext(principal).
// A held lock pins one connection of its pool until released, so the pool
// must not be the one the Store uses: holders need Store connections to
// finish their work.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker creates an advisory-lock principal locker on a dedicated pool.
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// Lock polls pg_try_advisory_lock until granted or ctx is done. Waiters
// return their connection between attempts.
func (l *Locker) Lock(ctx context.Context, principalID string) (func(), error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		conn, ok, err := l.tryLock(ctx, principalID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, unavailable(err)
		}
		if ok {
			return l.unlockFunc(ctx, conn, principalID), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryLock returns the connection holding the lock when it was granted.
func (l *Locker) tryLock(ctx context.Context, principalID string) (*pgxpool.Conn, bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var granted bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, principalID).Scan(&granted); err != nil {
		// The lock may have been granted before the error; dropping the
		// connection drops it too.
		conn.Conn().Close(context.Background())
		conn.Release()
		return nil, false, err
	}
	if !granted {
		conn.Release()
		return nil, false, nil
	}
	return conn, true, nil
}

func (l *Locker) unlockFunc(ctx context.Context, conn *pgxpool.Conn, principalID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if _, err := conn.Exec(releaseCtx, `SELECT pg_advisory_unlock(hashtext($1))`, principalID); err != nil {
				// Closing the connection drops every advisory lock it holds.
				conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}
}
