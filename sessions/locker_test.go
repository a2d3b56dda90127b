package sessions_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-cda-server/sessions"
)

func TestKeyedMutexSerializesSamePrincipal(t *testing.T) {
	locker := sessions.NewKeyedMutex()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "1")
			if err != nil {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxSeen.Load())
	require.Equal(t, 0, locker.Len())
}

func TestKeyedMutexIndependentPrincipals(t *testing.T) {
	locker := sessions.NewKeyedMutex()

	unlock1, err := locker.Lock(context.Background(), "1")
	require.NoError(t, err)
	defer unlock1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := locker.Lock(ctx, "2")
	require.NoError(t, err)
	unlock2()
}

func TestKeyedMutexContextCancel(t *testing.T) {
	locker := sessions.NewKeyedMutex()

	unlock, err := locker.Lock(context.Background(), "1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)

	unlock()
	unlock() // second call is ignored
	require.Equal(t, 0, locker.Len())

	again, err := locker.Lock(context.Background(), "1")
	require.NoError(t, err)
	again()
}
