package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/plates"
	"github.com/jrsteele09/go-cda-server/sessions"
	"github.com/jrsteele09/go-cda-server/sessions/storetest"
	"github.com/jrsteele09/go-cda-server/storage/sqlite"
	"github.com/jrsteele09/go-cda-server/users"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "db.sqlite3"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessions.Store {
		return openTestDB(t).Sessions()
	})
}

func TestSessionExpiryAgreesWithActive(t *testing.T) {
	store := openTestDB(t).Sessions()
	ctx := context.Background()
	expire := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, sessions.Session{Key: "k", Data: "d", ExpireAt: expire}))

	list, err := store.ListActive(ctx, expire)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Active(expire))

	// Half a millisecond later the session has expired for every reader
	later := expire.Add(500 * time.Microsecond)
	list, err = store.ListActive(ctx, later)
	require.NoError(t, err)
	require.Empty(t, list)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, got.Active(later))

	n, err := store.DeleteExpired(ctx, expire)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = store.DeleteExpired(ctx, later)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOpenInMemory(t *testing.T) {
	db, err := sqlite.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Users().CountByRole(users.RoleSuperusuario)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqlite.Open("", zerolog.Nop())
	require.Error(t, err)
}

func TestUserRepo(t *testing.T) {
	repo := openTestDB(t).Users()
	joined := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	u := &users.User{
		Username:     "jperez",
		PasswordHash: "hash",
		FirstName:    "Juan",
		LastName:     "Pérez",
		Role:         users.RoleInspector,
		Active:       true,
		DateJoined:   joined,
	}
	require.NoError(t, repo.Upsert(u))
	require.NotEmpty(t, u.ID)

	got, err := repo.GetByUsername("JPerez")
	require.NoError(t, err, "usernames are case-insensitive")
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, users.RoleInspector, got.Role)
	require.True(t, got.Active)
	require.True(t, joined.Equal(got.DateJoined))
	require.True(t, got.LastLogin.IsZero())

	dup := &users.User{Username: "JPEREZ", PasswordHash: "x", Role: users.RoleIngeniero}
	require.True(t, errors.Is(repo.Upsert(dup), apperrors.ErrDuplicate))

	require.NoError(t, repo.SetActive(u.ID, false))
	require.NoError(t, repo.SetPassword(u.ID, "hash2"))
	login := joined.Add(time.Hour)
	require.NoError(t, repo.SetLastLogin(u.ID, login))

	got, err = repo.GetByID(u.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, "hash2", got.PasswordHash)
	require.True(t, login.Equal(got.LastLogin))

	_, err = repo.GetByID("missing")
	require.True(t, errors.Is(err, apperrors.ErrUserNotFound))
	require.True(t, errors.Is(repo.SetActive("missing", true), apperrors.ErrUserNotFound))
}

func TestUserRepoListByRole(t *testing.T) {
	repo := openTestDB(t).Users()
	for _, u := range []*users.User{
		{Username: "carla", Role: users.RoleIngeniero},
		{Username: "admin", Role: users.RoleSuperusuario},
		{Username: "beto", Role: users.RoleInspector},
	} {
		u.PasswordHash = "hash"
		require.NoError(t, repo.Upsert(u))
	}

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "admin", all[0].Username)

	staff, err := repo.List(users.RoleInspector, users.RoleIngeniero)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	require.Equal(t, "beto", staff[0].Username)
	require.Equal(t, "carla", staff[1].Username)

	n, err := repo.CountByRole(users.RoleSuperusuario)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPlateRepo(t *testing.T) {
	repo := openTestDB(t).Plates()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older, err := plates.NewPlate("abc 123", "u1", base)
	require.NoError(t, err)
	newer, err := plates.NewPlate("XYZ789", "u1", base.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.CreatePlate(older))
	require.NoError(t, repo.CreatePlate(newer))

	dup, err := plates.NewPlate("ABC123", "u2", base)
	require.NoError(t, err)
	require.True(t, errors.Is(repo.CreatePlate(dup), apperrors.ErrDuplicate))

	list, err := repo.ListPlates()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "XYZ789", list[0].Number, "newest first")

	got, err := repo.GetPlate(older.ID)
	require.NoError(t, err)
	require.Equal(t, "ABC123", got.Number)

	_, err = repo.GetPlate("missing")
	require.True(t, errors.Is(err, apperrors.ErrPlateNotFound))
}

func TestPlatePhotos(t *testing.T) {
	repo := openTestDB(t).Plates()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p, err := plates.NewPlate("ABC123", "u1", now)
	require.NoError(t, err)
	require.NoError(t, repo.CreatePlate(p))

	first := plates.NewPhoto(p.ID, "fotos/a.jpg", "frente", "u1", now)
	second := plates.NewPhoto(p.ID, "fotos/b.jpg", "", "u1", now.Add(time.Second))
	require.NoError(t, repo.AddPhoto(second))
	require.NoError(t, repo.AddPhoto(first))

	orphan := plates.NewPhoto("missing", "fotos/c.jpg", "", "u1", now)
	require.True(t, errors.Is(repo.AddPhoto(orphan), apperrors.ErrPlateNotFound))

	photos, err := repo.ListPhotos(p.ID)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	require.Equal(t, "fotos/a.jpg", photos[0].ImagePath, "oldest first")

	counts, err := repo.Counts()
	require.NoError(t, err)
	require.Equal(t, plates.Counts{Plates: 1, Photos: 2}, counts)

	removed, err := repo.DeletePlate(p.ID)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	counts, err = repo.Counts()
	require.NoError(t, err)
	require.Equal(t, plates.Counts{}, counts, "photos cascade with their plate")

	_, err = repo.DeletePlate(p.ID)
	require.True(t, errors.Is(err, apperrors.ErrPlateNotFound))
	_, err = repo.ListPhotos(p.ID)
	require.True(t, errors.Is(err, apperrors.ErrPlateNotFound))
}
