// Package pgstore keeps session records in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/sessions"
)

const schema = `
CREATE TABLE IF NOT EXISTS cda_sessions (
	session_key  TEXT PRIMARY KEY,
	session_data TEXT NOT NULL,
	expire_date  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS cda_sessions_expire_date_idx ON cda_sessions (expire_date);
`

var _ sessions.Store = (*Store)(nil)

// Store implements sessions.Store on the cda_sessions table.
type Store struct {
	pool *pgxpool.Pool
}

// PoolOption adjusts the pool configuration parsed from the database URL.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the number of connections in the pool.
func WithMaxConns(n int32) PoolOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// NewPool builds a pgxpool and validates connectivity.
func NewPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[pgstore.NewPool] parse config: %w", err)
	}
	for _, opt := range opts {
		opt(pcfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, unavailable(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, unavailable(err)
	}
	return pool, nil
}

// New creates a Postgres-backed session store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the sessions table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return unavailable(err)
	}
	return nil
}

// ListActive returns sessions with expire_date >= now.
func (s *Store) ListActive(ctx context.Context, now time.Time) ([]sessions.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_key, session_data, expire_date
		FROM cda_sessions
		WHERE expire_date >= $1
		ORDER BY session_key
	`, now)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []sessions.Session
	for rows.Next() {
		var session sessions.Session
		if err := rows.Scan(&session.Key, &session.Data, &session.ExpireAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Get loads a session row by key.
func (s *Store) Get(ctx context.Context, key string) (sessions.Session, error) {
	var session sessions.Session
	err := s.pool.QueryRow(ctx, `
		SELECT session_key, session_data, expire_date
		FROM cda_sessions
		WHERE session_key = $1
	`, key).Scan(&session.Key, &session.Data, &session.ExpireAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sessions.Session{}, sessions.ErrSessionNotFound
	}
	if err != nil {
		return sessions.Session{}, unavailable(err)
	}
	return session, nil
}

// Delete removes a session row. Missing rows are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cda_sessions WHERE session_key = $1`, key); err != nil {
		return unavailable(err)
	}
	return nil
}

// Save inserts or replaces a session row.
func (s *Store) Save(ctx context.Context, session sessions.Session) error {
	if session.Key == "" {
		return errors.New("session key is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cda_sessions (session_key, session_data, expire_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_key) DO UPDATE
		SET session_data = EXCLUDED.session_data,
			expire_date = EXCLUDED.expire_date
	`, session.Key, session.Data, session.ExpireAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired removes rows with expire_date < now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cda_sessions WHERE expire_date < $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
}
