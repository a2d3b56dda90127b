package sessions_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/sessions"
	"github.com/jrsteele09/go-cda-server/sessions/memstore"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testFixture struct {
	store      *memstore.Store
	codec      *sessions.Codec
	metrics    *recordingMetrics
	reconciler *sessions.Reconciler
}

func setupTestFixture(t *testing.T, opts ...sessions.ReconcilerOption) *testFixture {
	t.Helper()

	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	f := &testFixture{
		store:   memstore.New(),
		codec:   codec,
		metrics: &recordingMetrics{deleted: map[string]int{}},
	}
	opts = append([]sessions.ReconcilerOption{
		sessions.WithNowTime(func() time.Time { return fixedNow }),
		sessions.WithMetrics(f.metrics),
	}, opts...)

	f.reconciler, err = sessions.NewReconciler(f.store, codec, opts...)
	require.NoError(t, err)
	return f
}

// addSession stores an authenticated session for principal with the given expiry offset.
func (f *testFixture) addSession(t *testing.T, key, principal string, ttl time.Duration) {
	t.Helper()
	data, err := f.codec.Encode(sessions.Payload{AuthUserID: principal})
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), sessions.Session{
		Key:      key,
		Data:     data,
		ExpireAt: fixedNow.Add(ttl),
	}))
}

func (f *testFixture) addRaw(t *testing.T, key, data string) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), sessions.Session{
		Key:      key,
		Data:     data,
		ExpireAt: fixedNow.Add(time.Hour),
	}))
}

func (f *testFixture) exists(key string) bool {
	_, err := f.store.Get(context.Background(), key)
	return err == nil
}

// activeFor returns the active keys whose payload decodes to principal.
func (f *testFixture) activeFor(t *testing.T, principal string) []string {
	t.Helper()
	active, err := f.store.ListActive(context.Background(), fixedNow)
	require.NoError(t, err)

	var out []string
	for _, d := range f.codec.DecodeAll(active) {
		if d.OK() && d.Payload.AuthUserID == principal {
			out = append(out, d.Session.Key)
		}
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	deleted  map[string]int
	failures int
	forced   int
}

func (m *recordingMetrics) SessionsDeleted(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[reason] += n
}

func (m *recordingMetrics) DecodeFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures += n
}

func (m *recordingMetrics) ForcedLogout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced++
}

func TestNewReconcilerRequiresDependencies(t *testing.T) {
	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	_, err = sessions.NewReconciler(nil, codec)
	require.Error(t, err)

	_, err = sessions.NewReconciler(memstore.New(), nil)
	require.Error(t, err)
}

func TestReconcileSingleSurvivor(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// Older logins that were never cleaned up.
	f.addSession(t, "old-a", "1", time.Hour)
	f.addSession(t, "old-b", "1", 2*time.Hour)
	f.addSession(t, "current", "1", 24*time.Hour)

	result, err := f.reconciler.Reconcile(ctx, "1", "current")
	require.NoError(t, err)
	require.False(t, result.ForcedLogout)
	require.ElementsMatch(t, []string{"old-a", "old-b", "current"}, result.Belonging)
	require.ElementsMatch(t, []string{"old-a", "old-b"}, result.Deleted)

	require.Equal(t, []string{"current"}, f.activeFor(t, "1"))
	require.Equal(t, 2, f.metrics.deleted[sessions.ReasonSuperseded])
}

func TestReconcileLastLoginWins(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// Device A logs in.
	f.addSession(t, "device-a", "1", time.Hour)

	// Device B logs in; the purge removes device A's session.
	purge, err := f.reconciler.PurgeForLogin(ctx, "1", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"device-a"}, purge.Deleted)
	f.addSession(t, "device-b", "1", time.Hour)

	// Device A's session is absent from the active set on its next request.
	require.Equal(t, []string{"device-b"}, f.activeFor(t, "1"))

	result, err := f.reconciler.Reconcile(ctx, "1", "device-a")
	require.NoError(t, err)
	require.True(t, result.ForcedLogout)
	require.Equal(t, 1, f.metrics.forced)
}

func TestReconcileNoCrossPrincipalInterference(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.addSession(t, "p-old", "1", time.Hour)
	f.addSession(t, "p-cur", "1", time.Hour)
	f.addSession(t, "q-1", "2", time.Hour)
	f.addSession(t, "q-2", "2", time.Hour)
	f.addSession(t, "r-1", "11", time.Hour)

	result, err := f.reconciler.Reconcile(ctx, "1", "p-cur")
	require.NoError(t, err)
	require.Equal(t, []string{"p-old"}, result.Deleted)

	for _, key := range []string{"q-1", "q-2", "r-1", "p-cur"} {
		require.True(t, f.exists(key), "session %s must survive", key)
	}

	_, err = f.reconciler.TerminateAll(ctx, "1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"q-1", "q-2"}, f.activeFor(t, "2"))
	require.Equal(t, []string{"r-1"}, f.activeFor(t, "11"))
}

func TestReconcileDecodeFailureIsolation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	other, err := sessions.NewCodec("another-secret")
	require.NoError(t, err)
	forged, err := other.Encode(sessions.Payload{AuthUserID: "1"})
	require.NoError(t, err)

	f.addRaw(t, "garbage", "%%%not-base64%%%")
	f.addRaw(t, "forged", forged)
	f.addSession(t, "stale", "1", time.Hour)
	f.addSession(t, "current", "1", time.Hour)

	result, err := f.reconciler.Reconcile(ctx, "1", "current")
	require.NoError(t, err)
	require.False(t, result.ForcedLogout)
	require.Equal(t, []string{"stale"}, result.Deleted)
	require.Len(t, result.DecodeFailures, 2)
	require.Equal(t, 2, f.metrics.failures)

	var decodeErr *sessions.DecodeError
	require.True(t, errors.As(result.DecodeFailures[0], &decodeErr))

	require.True(t, f.exists("garbage"))
	require.True(t, f.exists("forged"))

	// Bulk termination leaves them alone too.
	all, err := f.reconciler.TerminateAll(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, []string{"current"}, all.Deleted)
	require.True(t, f.exists("garbage"))
	require.True(t, f.exists("forged"))
}

func TestTerminateAllCount(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.addSession(t, "s1", "1", time.Hour)
	f.addSession(t, "s2", "1", time.Hour)
	f.addSession(t, "s3", "1", time.Hour)
	f.addSession(t, "expired", "1", -time.Minute)
	f.addSession(t, "other", "2", time.Hour)

	result, err := f.reconciler.TerminateAll(ctx, "1")
	require.NoError(t, err)
	require.Len(t, result.Deleted, 3)
	require.Empty(t, f.activeFor(t, "1"))
	require.True(t, f.exists("other"))
	require.True(t, f.exists("expired"), "expired records are left to the sweeper")
	require.Equal(t, 3, f.metrics.deleted[sessions.ReasonTerminateAll])

	// The triggering request is logged out afterwards.
	after, err := f.reconciler.Reconcile(ctx, "1", "s1")
	require.NoError(t, err)
	require.True(t, after.ForcedLogout)
}

func TestTerminateAllRequiresPrincipal(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.reconciler.TerminateAll(context.Background(), "")
	require.Error(t, err)
}

func TestPurgeForLoginRemovesEveryDevice(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.addSession(t, "phone", "1", time.Hour)
	f.addSession(t, "laptop", "1", time.Hour)
	f.addSession(t, "colleague", "2", time.Hour)

	result, err := f.reconciler.PurgeForLogin(ctx, "1", nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"phone", "laptop"}, result.Deleted)
	require.Empty(t, f.activeFor(t, "1"))
	require.True(t, f.exists("colleague"))
	require.Equal(t, 2, f.metrics.deleted[sessions.ReasonLoginPurge])
}

func TestPurgeForLoginIssuesUnderPrincipalLock(t *testing.T) {
	locker := sessions.NewKeyedMutex()
	f := setupTestFixture(t, sessions.WithLocker(locker))
	ctx := context.Background()

	f.addSession(t, "old", "1", time.Hour)

	result, err := f.reconciler.PurgeForLogin(ctx, "1", func(ctx context.Context) error {
		// A concurrent login of the same principal must wait for the issue step
		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, lockErr := locker.Lock(waitCtx, "1")
		require.ErrorIs(t, lockErr, context.DeadlineExceeded)

		f.addSession(t, "new", "1", time.Hour)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, result.Deleted)
	require.Equal(t, []string{"new"}, f.activeFor(t, "1"))

	unlock, err := locker.Lock(ctx, "1")
	require.NoError(t, err)
	unlock()
}

func TestPurgeForLoginReturnsIssueError(t *testing.T) {
	f := setupTestFixture(t)
	issueErr := errors.New("save failed")

	_, err := f.reconciler.PurgeForLogin(context.Background(), "1", func(context.Context) error {
		return issueErr
	})
	require.ErrorIs(t, err, issueErr)
}

func TestReconcileCurrentIsSoleBelonging(t *testing.T) {
	f := setupTestFixture(t)

	f.addSession(t, "s1", "1", -time.Hour)
	f.addSession(t, "s2", "1", time.Hour)
	f.addSession(t, "s3", "2", time.Hour)

	result, err := f.reconciler.Reconcile(context.Background(), "1", "s2")
	require.NoError(t, err)
	require.False(t, result.ForcedLogout)
	require.Equal(t, []string{"s2"}, result.Belonging)
	require.Empty(t, result.Deleted)

	require.True(t, f.exists("s1"), "expired session is outside the active set")
	require.True(t, f.exists("s2"))
	require.True(t, f.exists("s3"))
}

func TestReconcileStaleCurrentKey(t *testing.T) {
	t.Run("CurrentAlreadyDeleted", func(t *testing.T) {
		f := setupTestFixture(t)

		f.addSession(t, "s2", "1", time.Hour)
		f.addSession(t, "s3", "2", time.Hour)

		result, err := f.reconciler.Reconcile(context.Background(), "1", "s4")
		require.NoError(t, err)
		require.Equal(t, []string{"s2"}, result.Deleted)
		require.True(t, result.ForcedLogout)
		require.True(t, f.exists("s3"))
	})

	t.Run("OtherIsStale", func(t *testing.T) {
		f := setupTestFixture(t)

		f.addSession(t, "s2", "1", time.Hour)
		f.addSession(t, "s4", "1", time.Hour)
		f.addSession(t, "s3", "2", time.Hour)

		result, err := f.reconciler.Reconcile(context.Background(), "1", "s2")
		require.NoError(t, err)
		require.Equal(t, []string{"s4"}, result.Deleted)
		require.False(t, result.ForcedLogout)
		require.True(t, f.exists("s2"))
		require.True(t, f.exists("s3"))
	})
}

func TestReconcileCurrentStoredButNotDecodable(t *testing.T) {
	f := setupTestFixture(t)

	// The current record still exists, so this is not a forced logout.
	f.addRaw(t, "current", "broken")
	f.addSession(t, "other-device", "1", time.Hour)

	result, err := f.reconciler.Reconcile(context.Background(), "1", "current")
	require.NoError(t, err)
	require.False(t, result.ForcedLogout)
	require.Equal(t, []string{"other-device"}, result.Deleted)
}

func TestReconcileAnonymousIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	f.addSession(t, "s1", "1", time.Hour)

	result, err := f.reconciler.Reconcile(context.Background(), "", "s1")
	require.NoError(t, err)
	require.Equal(t, sessions.Result{}, result)

	result, err = f.reconciler.Reconcile(context.Background(), "1", "")
	require.NoError(t, err)
	require.Equal(t, sessions.Result{}, result)
	require.True(t, f.exists("s1"))
}

func TestSubstringMatchFalsePositive(t *testing.T) {
	f := setupTestFixture(t, sessions.WithMatchStrategy(sessions.SubstringMatch{}))
	ctx := context.Background()

	f.addSession(t, "current", "user-7", time.Hour)
	f.addRaw(t, "unrelated", "legacy-record-user-7-notes")

	result, err := f.reconciler.Reconcile(ctx, "user-7", "current")
	require.NoError(t, err)
	require.Contains(t, result.Deleted, "unrelated")

	decoded := setupTestFixture(t)
	decoded.addSession(t, "current", "user-7", time.Hour)
	decoded.addRaw(t, "unrelated", "legacy-record-user-7-notes")

	result, err = decoded.reconciler.Reconcile(ctx, "user-7", "current")
	require.NoError(t, err)
	require.Empty(t, result.Deleted)
	require.True(t, decoded.exists("unrelated"))
}

func TestMatchStrategyByName(t *testing.T) {
	require.IsType(t, sessions.SubstringMatch{}, sessions.MatchStrategyByName("substring"))
	require.IsType(t, sessions.DecodedMatch{}, sessions.MatchStrategyByName("decoded"))
	require.IsType(t, sessions.DecodedMatch{}, sessions.MatchStrategyByName(""))
}

// failingStore fails selected operations.
type failingStore struct {
	sessions.Store
	listErr   error
	deleteErr error
	getErr    error
}

func (s *failingStore) ListActive(ctx context.Context, now time.Time) ([]sessions.Session, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.ListActive(ctx, now)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, key)
}

func (s *failingStore) Get(ctx context.Context, key string) (sessions.Session, error) {
	if s.getErr != nil {
		return sessions.Session{}, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func TestReconcilePropagatesStoreErrors(t *testing.T) {
	codec, err := sessions.NewCodec(testSecret)
	require.NoError(t, err)

	newStore := func(t *testing.T) *memstore.Store {
		mem := memstore.New()
		data, err := codec.Encode(sessions.Payload{AuthUserID: "1"})
		require.NoError(t, err)
		require.NoError(t, mem.Save(context.Background(), sessions.Session{Key: "old", Data: data, ExpireAt: fixedNow.Add(time.Hour)}))
		return mem
	}

	cases := map[string]func(mem sessions.Store) *failingStore{
		"list":   func(mem sessions.Store) *failingStore { return &failingStore{Store: mem, listErr: apperrors.ErrStoreUnavailable} },
		"delete": func(mem sessions.Store) *failingStore { return &failingStore{Store: mem, deleteErr: apperrors.ErrStoreUnavailable} },
		"get":    func(mem sessions.Store) *failingStore { return &failingStore{Store: mem, getErr: apperrors.ErrStoreUnavailable} },
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			store := build(newStore(t))
			r, err := sessions.NewReconciler(store, codec, sessions.WithNowTime(func() time.Time { return fixedNow }))
			require.NoError(t, err)

			_, err = r.Reconcile(context.Background(), "1", "missing-current")
			require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
		})
	}
}

func TestReconcileSerializedPerPrincipal(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// Two devices race; without serialization both could survive or both be forced out.
	f.addSession(t, "device-a", "1", time.Hour)
	f.addSession(t, "device-b", "1", time.Hour)

	var (
		wg      sync.WaitGroup
		results [2]sessions.Result
	)
	for i, key := range []string{"device-a", "device-b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i], _ = f.reconciler.Reconcile(ctx, "1", key)
		}(i, key)
	}
	wg.Wait()

	// The second pass finds its own key already gone.
	require.LessOrEqual(t, len(f.activeFor(t, "1")), 1)

	forced := 0
	for _, r := range results {
		if r.ForcedLogout {
			forced++
		}
	}
	require.Equal(t, 1, forced, "exactly one device is logged out")
}

func TestReconcileLockCancelled(t *testing.T) {
	locker := sessions.NewKeyedMutex()
	f := setupTestFixture(t, sessions.WithLocker(locker))
	f.addSession(t, "s1", "1", time.Hour)

	unlock, err := locker.Lock(context.Background(), "1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.reconciler.Reconcile(ctx, "1", "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, f.exists("s1"))
}
