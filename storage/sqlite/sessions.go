package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jrsteele09/go-cda-server/sessions"
)

var _ sessions.Store = (*SessionStore)(nil)

// SessionStore implements sessions.Store on the cda_sessions table.
type SessionStore struct {
	db *DB
}

// Sessions returns the session store backed by d.
func (d *DB) Sessions() *SessionStore {
	return &SessionStore{db: d}
}

// ceilMillis rounds now up to the millisecond. Expiry is stored in whole
// milliseconds, so a row is active at now exactly when expire_date >= ceilMillis(now).
func ceilMillis(now time.Time) int64 {
	ms := now.UnixMilli()
	if now.Sub(time.UnixMilli(ms)) > 0 {
		ms++
	}
	return ms
}

// ListActive returns rows whose expiry is not before now.
func (s *SessionStore) ListActive(ctx context.Context, now time.Time) ([]sessions.Session, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT session_key, session_data, expire_date
		FROM cda_sessions
		WHERE expire_date >= ?
		ORDER BY session_key
	`, ceilMillis(now))
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []sessions.Session
	for rows.Next() {
		var (
			session sessions.Session
			expire  int64
		)
		if err := rows.Scan(&session.Key, &session.Data, &expire); err != nil {
			return nil, unavailable(err)
		}
		session.ExpireAt = time.UnixMilli(expire).UTC()
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Get loads a session row by key.
func (s *SessionStore) Get(ctx context.Context, key string) (sessions.Session, error) {
	var (
		session sessions.Session
		expire  int64
	)
	err := s.db.db.QueryRowContext(ctx, `
		SELECT session_key, session_data, expire_date
		FROM cda_sessions
		WHERE session_key = ?
	`, key).Scan(&session.Key, &session.Data, &expire)
	if errors.Is(err, sql.ErrNoRows) {
		return sessions.Session{}, sessions.ErrSessionNotFound
	}
	if err != nil {
		return sessions.Session{}, unavailable(err)
	}
	session.ExpireAt = time.UnixMilli(expire).UTC()
	return session, nil
}

// Delete removes a session row. Missing rows are ignored.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM cda_sessions WHERE session_key = ?`, key); err != nil {
		return unavailable(err)
	}
	return nil
}

// Save inserts or replaces a session row.
func (s *SessionStore) Save(ctx context.Context, session sessions.Session) error {
	if session.Key == "" {
		return errors.New("session key is required")
	}
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO cda_sessions (session_key, session_data, expire_date)
		VALUES (?, ?, ?)
		ON CONFLICT (session_key) DO UPDATE
		SET session_data = excluded.session_data,
			expire_date = excluded.expire_date
	`, session.Key, session.Data, session.ExpireAt.UnixMilli())
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired removes rows whose expiry is before now.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM cda_sessions WHERE expire_date < ?`, ceilMillis(now))
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}
