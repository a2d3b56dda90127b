package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Deletion reasons reported to Metrics.
const (
	ReasonSuperseded   = "superseded"
	ReasonLoginPurge   = "login_purge"
	ReasonTerminateAll = "terminate_all"
	ReasonExpired      = "expired"
)

// Metrics receives reconciliation events.
type Metrics interface {
	SessionsDeleted(reason string, n int)
	DecodeFailures(n int)
	ForcedLogout()
}

type nopMetrics struct{}

func (nopMetrics) SessionsDeleted(string, int) {}
func (nopMetrics) DecodeFailures(int)          {}
func (nopMetrics) ForcedLogout()               {}

// Result describes one pass over the active sessions of a principal.
type Result struct {
	Belonging      []string       // Keys attributed to the principal when the pass started
	Deleted        []string       // Keys removed by this pass
	DecodeFailures []*DecodeError // Records skipped because they could not be decoded
	ForcedLogout   bool           // The current session is gone; the request must be logged out
}

// Reconciler keeps at most one active session per principal.
type Reconciler struct {
	store   Store
	codec   *Codec
	locker  Locker
	match   MatchStrategy
	metrics Metrics
	logger  zerolog.Logger
	nowTime func() time.Time
}

// ReconcilerOption modifies a Reconciler during construction.
type ReconcilerOption func(*Reconciler)

// WithLocker replaces the default in-process KeyedMutex.
func WithLocker(l Locker) ReconcilerOption {
	return func(r *Reconciler) {
		r.locker = l
	}
}

// WithMatchStrategy replaces the default DecodedMatch.
func WithMatchStrategy(m MatchStrategy) ReconcilerOption {
	return func(r *Reconciler) {
		r.match = m
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ReconcilerOption {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithLogger sets the logger used for decode failures and deletions.
func WithLogger(l zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.nowTime = nowFunc
	}
}

// NewReconciler creates a Reconciler over store, decoding payloads with codec.
func NewReconciler(store Store, codec *Codec, options ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("[NewReconciler] store is required")
	}
	if codec == nil {
		return nil, errors.New("[NewReconciler] codec is required")
	}

	r := &Reconciler{
		store:   store,
		codec:   codec,
		locker:  NewKeyedMutex(),
		match:   DecodedMatch{},
		metrics: nopMetrics{},
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Reconcile runs for every authenticated request. It deletes every session of
// principalID other than currentKey, then reports ForcedLogout when
// currentKey itself is no longer stored, meaning a later login on another
// device already superseded it.
func (r *Reconciler) Reconcile(ctx context.Context, principalID, currentKey string) (Result, error) {
	var result Result
	if principalID == "" || currentKey == "" {
		return result, nil
	}

	unlock, err := r.locker.Lock(ctx, principalID)
	if err != nil {
		return result, fmt.Errorf("[Reconciler.Reconcile] lock principal %s: %w", principalID, err)
	}
	defer unlock()

	belonging, err := r.collect(ctx, principalID, &result)
	if err != nil {
		return result, fmt.Errorf("[Reconciler.Reconcile] %w", err)
	}

	superseded := make([]string, 0, len(belonging))
	for _, key := range belonging {
		if key != currentKey {
			superseded = append(superseded, key)
		}
	}
	if err := r.delete(ctx, superseded, ReasonSuperseded, principalID, &result); err != nil {
		return result, fmt.Errorf("[Reconciler.Reconcile] %w", err)
	}

	if slices.Contains(belonging, currentKey) {
		return result, nil
	}

	_, err = r.store.Get(ctx, currentKey)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		result.ForcedLogout = true
		r.metrics.ForcedLogout()
		r.logger.Info().
			Str("principal", principalID).
			Str("session", currentKey).
			Msg("current session was superseded by another device")
	case err != nil:
		return result, fmt.Errorf("[Reconciler.Reconcile] get current session: %w", err)
	}
	return result, nil
}

// PurgeForLogin deletes every active session of principalID. It runs after
// credentials are verified. When issue is not nil it runs after the purge
// while the principal lock is still held, so the new session cannot race a
// concurrent login of the same principal.
func (r *Reconciler) PurgeForLogin(ctx context.Context, principalID string, issue func(context.Context) error) (Result, error) {
	return r.deleteAll(ctx, principalID, ReasonLoginPurge, issue)
}

// TerminateAll deletes every active session of principalID, including the
// caller's own, and reports how many were removed in Result.Deleted.
func (r *Reconciler) TerminateAll(ctx context.Context, principalID string) (Result, error) {
	return r.deleteAll(ctx, principalID, ReasonTerminateAll, nil)
}

func (r *Reconciler) deleteAll(ctx context.Context, principalID, reason string, then func(context.Context) error) (Result, error) {
	var result Result
	if principalID == "" {
		return result, errors.New("[Reconciler] principal is required")
	}

	unlock, err := r.locker.Lock(ctx, principalID)
	if err != nil {
		return result, fmt.Errorf("[Reconciler] lock principal %s: %w", principalID, err)
	}
	defer unlock()

	belonging, err := r.collect(ctx, principalID, &result)
	if err != nil {
		return result, fmt.Errorf("[Reconciler] %s: %w", reason, err)
	}
	if err := r.delete(ctx, belonging, reason, principalID, &result); err != nil {
		return result, fmt.Errorf("[Reconciler] %s: %w", reason, err)
	}
	if then != nil {
		if err := then(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// collect lists active sessions and returns the keys attributed to principalID.
func (r *Reconciler) collect(ctx context.Context, principalID string, result *Result) ([]string, error) {
	active, err := r.store.ListActive(ctx, r.nowTime())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	for _, d := range r.codec.DecodeAll(active) {
		if !d.OK() {
			result.DecodeFailures = append(result.DecodeFailures, d.Err)
			r.logger.Warn().Err(d.Err).Str("session", d.Session.Key).Msg("skipping undecodable session")
		}
		if r.match.Belongs(principalID, d) {
			result.Belonging = append(result.Belonging, d.Session.Key)
		}
	}
	if n := len(result.DecodeFailures); n > 0 {
		r.metrics.DecodeFailures(n)
	}
	return result.Belonging, nil
}

func (r *Reconciler) delete(ctx context.Context, keys []string, reason, principalID string, result *Result) error {
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil {
			r.metrics.SessionsDeleted(reason, len(result.Deleted))
			return fmt.Errorf("delete session %s: %w", key, err)
		}
		result.Deleted = append(result.Deleted, key)
		r.logger.Debug().
			Str("principal", principalID).
			Str("session", key).
			Str("reason", reason).
			Msg("deleted session")
	}
	if len(result.Deleted) > 0 {
		r.metrics.SessionsDeleted(reason, len(result.Deleted))
	}
	return nil
}
