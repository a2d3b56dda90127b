// Package storetest holds the behaviour every sessions.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-cda-server/sessions"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) sessions.Store

// Run exercises store semantics the reconciler relies on.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	// Backends round timestamps differently; compare at millisecond precision.
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("SaveThenGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		in := sessions.Session{Key: "k1", Data: "payload-1", ExpireAt: now.Add(time.Hour)}
		require.NoError(t, store.Save(ctx, in))

		out, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, in.Key, out.Key)
		require.Equal(t, in.Data, out.Data)
		require.True(t, in.ExpireAt.Equal(out.ExpireAt), "expiry %v != %v", in.ExpireAt, out.ExpireAt)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sessions.Session{Key: "k1", Data: "old", ExpireAt: now.Add(time.Hour)}))
		require.NoError(t, store.Save(ctx, sessions.Session{Key: "k1", Data: "new", ExpireAt: now.Add(2 * time.Hour)}))

		out, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, "new", out.Data)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "nope")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("GetReturnsExpired", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sessions.Session{Key: "old", Data: "x", ExpireAt: now.Add(-time.Minute)}))
		out, err := store.Get(ctx, "old")
		require.NoError(t, err)
		require.False(t, out.Active(now))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sessions.Session{Key: "k1", Data: "x", ExpireAt: now.Add(time.Hour)}))
		require.NoError(t, store.Delete(ctx, "k1"))
		require.NoError(t, store.Delete(ctx, "k1"))
		require.NoError(t, store.Delete(ctx, "never-existed"))

		_, err := store.Get(ctx, "k1")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("ListActiveFiltersByExpiry", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sessions.Session{Key: "a", Data: "x", ExpireAt: now.Add(time.Hour)}))
		require.NoError(t, store.Save(ctx, sessions.Session{Key: "b", Data: "x", ExpireAt: now}))
		require.NoError(t, store.Save(ctx, sessions.Session{Key: "c", Data: "x", ExpireAt: now.Add(-time.Second)}))

		active, err := store.ListActive(ctx, now)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a", "b"}, keys(active))
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sessions.Session{Key: "live", Data: "x", ExpireAt: now.Add(time.Hour)}))
		require.NoError(t, store.Save(ctx, sessions.Session{Key: "dead1", Data: "x", ExpireAt: now.Add(-time.Hour)}))
		require.NoError(t, store.Save(ctx, sessions.Session{Key: "dead2", Data: "x", ExpireAt: now.Add(-time.Second)}))

		n, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		_, err = store.Get(ctx, "dead1")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
		_, err = store.Get(ctx, "live")
		require.NoError(t, err)
	})
}

func keys(list []sessions.Session) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Key)
	}
	return out
}
