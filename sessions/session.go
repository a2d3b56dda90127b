// Package sessions enforces the one-active-session-per-user policy.
//
// A Session record does not reference its owner directly. Ownership is
// recovered by decoding the signed payload, so every pass over the store
// decodes each active record and compares the stored principal identifier.
package sessions

import (
	"time"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
)

// ErrSessionNotFound is returned by a Store when no record exists for a key.
var ErrSessionNotFound = apperrors.ErrSessionNotFound

// Session is a persisted session record.
type Session struct {
	Key      string    // Opaque identifier issued at login, immutable
	Data     string    // Encoded payload, see Codec
	ExpireAt time.Time // Record is active while ExpireAt >= now
}

// Active reports whether the session has not expired at now.
func (s Session) Active(now time.Time) bool {
	return !s.ExpireAt.Before(now)
}

// Payload is the decoded content of Session.Data.
type Payload struct {
	AuthUserID string    `json:"_auth_user_id,omitempty"`
	UserAgent  string    `json:"_auth_user_agent,omitempty"`
	LoginAt    time.Time `json:"_auth_login_at,omitzero"`
}

// Authenticated reports whether the payload carries a principal.
func (p Payload) Authenticated() bool {
	return p.AuthUserID != ""
}
