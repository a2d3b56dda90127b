package pgstore_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-cda-server/sessions"
	"github.com/jrsteele09/go-cda-server/sessions/pgstore"
	"github.com/jrsteele09/go-cda-server/sessions/storetest"
)

// Integration tests are enabled when POSTGRES_TEST_URL is set.

func mustPool(t *testing.T, opts ...pgstore.PoolOption) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("POSTGRES_TEST_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_TEST_URL is not set; skipping Postgres integration test")
	}

	pool, err := pgstore.NewPool(context.Background(), dbURL, opts...)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestStoreContract(t *testing.T) {
	pool := mustPool(t)
	store := pgstore.New(pool)
	require.NoError(t, store.EnsureSchema(context.Background()))

	storetest.Run(t, func(t *testing.T) sessions.Store {
		_, err := pool.Exec(context.Background(), `TRUNCATE cda_sessions`)
		require.NoError(t, err)
		return store
	})
}

func TestLockerSerializesPrincipal(t *testing.T) {
	pool := mustPool(t)
	locker := pgstore.NewLocker(pool)

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "pg-user-1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxSeen.Load())
}

func TestLockerHonoursContext(t *testing.T) {
	pool := mustPool(t)
	locker := pgstore.NewLocker(pool)

	unlock, err := locker.Lock(context.Background(), "pg-user-2")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "pg-user-2")
	require.Error(t, err)
}

func TestConcurrentReconcileWithSmallPools(t *testing.T) {
	storePool := mustPool(t, pgstore.WithMaxConns(2))
	lockPool := mustPool(t, pgstore.WithMaxConns(2))

	store := pgstore.New(storePool)
	require.NoError(t, store.EnsureSchema(context.Background()))
	_, err := storePool.Exec(context.Background(), `TRUNCATE cda_sessions`)
	require.NoError(t, err)

	codec, err := sessions.NewCodec("pg-test-secret")
	require.NoError(t, err)
	reconciler, err := sessions.NewReconciler(store, codec, sessions.WithLocker(pgstore.NewLocker(lockPool)))
	require.NoError(t, err)

	keys := []string{"pg-a", "pg-b", "pg-c"}
	for _, key := range keys {
		data, err := codec.Encode(sessions.Payload{AuthUserID: "pg-user-3"})
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), sessions.Session{
			Key:      key,
			Data:     data,
			ExpireAt: time.Now().Add(time.Hour),
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reconciler.Reconcile(ctx, "pg-user-3", key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
