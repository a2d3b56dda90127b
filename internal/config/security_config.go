package config

import "time"

const (
	secretKeyVar       = "SECRET_KEY"
	secretGeneratedKey = "_SECRET_KEY_GENERATED"
	cookieAgeVar       = "SESSION_COOKIE_AGE"
	cookieSecureVar    = "SESSION_COOKIE_SECURE"
	adminUsernameVar   = "ADMIN_USERNAME"
	adminPasswordVar   = "ADMIN_PASSWORD"
)

type SecurityConfig interface {
	GetSecretKey() string
	IsSecretGenerated() bool
	GetSessionCookieName() string
	GetSessionCookieAge() time.Duration
	GetSessionCookieSecure() bool
	GetAdminUsername() string
	GetAdminPassword() string
}

type Security struct {
	values lookup
}

var _ SecurityConfig = Security{}

func (s Security) GetSecretKey() string {
	return s.values.get(secretKeyVar, "")
}

// IsSecretGenerated reports whether the secret was made up for this process
func (s Security) IsSecretGenerated() bool {
	return s.values[secretGeneratedKey] == "true"
}

func (Security) GetSessionCookieName() string {
	return "sessionid"
}

func (s Security) GetSessionCookieAge() time.Duration {
	return s.values.getSeconds(cookieAgeVar, 24*time.Hour)
}

func (s Security) GetSessionCookieSecure() bool {
	return s.values.getBool(cookieSecureVar, false)
}

func (s Security) GetAdminUsername() string {
	return s.values.get(adminUsernameVar, "admin")
}

// GetAdminPassword is the bootstrap superuser password; empty means generate one
func (s Security) GetAdminPassword() string {
	return s.values.get(adminPasswordVar, "")
}
