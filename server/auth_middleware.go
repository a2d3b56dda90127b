package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-cda-server/auth"
	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/sessions"
	"github.com/jrsteele09/go-cda-server/users"
)

// Notices shown when a request loses its session
const (
	MsgForcedLogout   = "Tu sesión fue cerrada porque iniciaste sesión en otro dispositivo."
	MsgSessionExpired = "Tu sesión ha expirado. Inicia sesión nuevamente."
	MsgForbidden      = "No tienes permiso para acceder a esta página."
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated *users.User
	ContextKeyUser ContextKey = "user"
	// ContextKeySession stores the request's sessions.Session
	ContextKeySession ContextKey = "session"
)

// RequireSessionAuth is middleware for HTML routes that validates the session
// cookie and enforces the single-session rule before the handler runs.
func (s *Server) RequireSessionAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := s.sessionKey(r)
			if key == "" {
				http.Redirect(w, r, loginURL(r.URL.RequestURI()), http.StatusFound)
				return
			}

			state, err := s.auth.Resolve(ctx, key)
			if err != nil {
				s.rejectSession(w, r, key, err)
				return
			}

			start := time.Now()
			result, err := s.auth.Reconcile(ctx, state.User.ID, key)
			if s.metrics != nil {
				s.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
			}
			if err != nil {
				log.Err(err).Str("user", state.User.Username).Msg("session reconciliation failed")
				http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
				return
			}
			if result.ForcedLogout {
				clearCookie(w, s.config.GetSessionCookieName())
				redirectSuccess(w, r, RouteLogin, flashWarning(MsgForcedLogout))
				return
			}

			ctx = context.WithValue(ctx, ContextKeyUser, state.User)
			ctx = context.WithValue(ctx, ContextKeySession, state.Session)
			next(w, r.WithContext(ctx))
		}
	}
}

// rejectSession ends a request whose session cookie no longer maps to an
// active, authenticated session.
func (s *Server) rejectSession(w http.ResponseWriter, r *http.Request, key string, err error) {
	var decodeErr *sessions.DecodeError

	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		// Deleted by a newer login on another device
		clearCookie(w, s.config.GetSessionCookieName())
		redirectSuccess(w, r, RouteLogin, flashWarning(MsgForcedLogout))

	case errors.Is(err, apperrors.ErrSessionExpired):
		s.dropSession(w, r, key)
		redirectSuccess(w, r, loginURL(r.URL.RequestURI()), flashInfo(MsgSessionExpired))

	case errors.As(err, &decodeErr),
		errors.Is(err, auth.SessionUserMissingErr),
		errors.Is(err, auth.UserInactiveErr),
		errors.Is(err, apperrors.ErrUserNotFound):
		log.Warn().Err(err).Msg("rejecting session")
		s.dropSession(w, r, key)
		http.Redirect(w, r, loginURL(r.URL.RequestURI()), http.StatusFound)

	default:
		log.Err(err).Msg("failed to load session")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) dropSession(w http.ResponseWriter, r *http.Request, key string) {
	if err := s.auth.Logout(r.Context(), key); err != nil {
		log.Err(err).Msg("failed to delete session")
	}
	clearCookie(w, s.config.GetSessionCookieName())
}

// RequireRoles rejects users whose role is not listed. Superusers always pass.
// Must be chained after RequireSessionAuth.
func (s *Server) RequireRoles(roles ...users.RoleType) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if user == nil || !user.HasRole(roles...) {
				s.renderError(w, r, http.StatusForbidden, MsgForbidden)
				return
			}
			next(w, r)
		}
	}
}

func currentUser(r *http.Request) *users.User {
	u, _ := r.Context().Value(ContextKeyUser).(*users.User)
	return u
}

func currentSession(r *http.Request) sessions.Session {
	s, _ := r.Context().Value(ContextKeySession).(sessions.Session)
	return s
}
