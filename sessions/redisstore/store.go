// Package redisstore keeps session records in Redis.
//
// Each session is a hash at <prefix>:<key> holding the encoded payload and the
// expiry in unix milliseconds. Redis evicts the hash a retention period after
// expiry; until then Get still returns the expired record.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/sessions"
)

// ErrRedisUnavailable wraps every transport failure from the Redis client.
var ErrRedisUnavailable = fmt.Errorf("redis: %w", apperrors.ErrStoreUnavailable)

const (
	DefaultPrefix    = "cda:session"
	DefaultRetention = 24 * time.Hour

	fieldData     = "data"
	fieldExpireAt = "expire_at"
	scanBatch     = 500
)

var _ sessions.Store = (*Store)(nil)

// Store is a sessions.Store backed by Redis.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option modifies a Store during construction.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRetention sets how long an expired record stays readable before Redis evicts it.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// New creates a session Store on the given client.
func New(client redis.UniversalClient, options ...Option) *Store {
	s := &Store{
		redis:     client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) key(sessionKey string) string {
	return s.prefix + ":" + sessionKey
}

func (s *Store) sessionKey(redisKey string) string {
	return strings.TrimPrefix(redisKey, s.prefix+":")
}

// Save writes the session hash and its eviction deadline in one transaction.
func (s *Store) Save(ctx context.Context, session sessions.Session) error {
	if session.Key == "" {
		return errors.New("session key is required")
	}
	key := s.key(session.Key)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldData, session.Data,
			fieldExpireAt, strconv.FormatInt(session.ExpireAt.UnixMilli(), 10),
		)
		pipe.PExpireAt(ctx, key, session.ExpireAt.Add(s.retention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the session for key.
func (s *Store) Get(ctx context.Context, key string) (sessions.Session, error) {
	values, err := s.redis.HMGet(ctx, s.key(key), fieldData, fieldExpireAt).Result()
	if err != nil {
		return sessions.Session{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	session, ok := parseHash(key, values)
	if !ok {
		return sessions.Session{}, sessions.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ListActive scans the namespace and returns sessions with ExpireAt >= now.
// This is O(n) in the number of stored sessions.
func (s *Store) ListActive(ctx context.Context, now time.Time) ([]sessions.Session, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]sessions.Session, 0, len(all))
	for _, session := range all {
		if session.Active(now) {
			active = append(active, session)
		}
	}
	return active, nil
}

// DeleteExpired removes every session whose ExpireAt is before now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return 0, err
	}

	var expired []string
	for _, session := range all {
		if !session.Active(now) {
			expired = append(expired, s.key(session.Key))
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	removed, err := s.redis.Del(ctx, expired...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(removed), nil
}

// Ping checks Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) scanAll(ctx context.Context) ([]sessions.Session, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HMGet(ctx, key, fieldData, fieldExpireAt)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]sessions.Session, 0, len(keys))
	for i, cmd := range cmds {
		values, err := cmd.Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		// Keys deleted between SCAN and HMGET come back as nil fields.
		if session, ok := parseHash(s.sessionKey(keys[i]), values); ok {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func parseHash(key string, values []interface{}) (sessions.Session, bool) {
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return sessions.Session{}, false
	}
	data, ok := values[0].(string)
	if !ok {
		return sessions.Session{}, false
	}
	rawExpiry, ok := values[1].(string)
	if !ok {
		return sessions.Session{}, false
	}
	ms, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return sessions.Session{}, false
	}
	return sessions.Session{Key: key, Data: data, ExpireAt: time.UnixMilli(ms)}, true
}
