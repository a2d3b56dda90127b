package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"
)

// InitialiseSystem creates the superuser account when none exists.
// A generated password is kept for GeneratedAdminPassword and logged once.
func (s *Server) InitialiseSystem() error {
	log.Info().Msg("🔧 Bootstrap: Checking system configuration...")

	username := s.config.GetAdminUsername()
	password := s.config.GetAdminPassword()
	generated := password == ""
	if generated {
		var err error
		if password, err = generatePassword(); err != nil {
			return err
		}
	}

	created, err := s.auth.EnsureSuperuser(username, password)
	if err != nil {
		return fmt.Errorf("failed to bootstrap superuser: %w", err)
	}
	if !created {
		log.Info().Msg("✅ Bootstrap: System already configured")
		return nil
	}

	log.Info().Msgf("✅ Bootstrap: Created superuser %q", username)
	if generated {
		s.generatedAdminPassword = password
		log.Warn().Msgf("👤 Superuser password: %s", password)
		log.Warn().Msg("   ⚠️  SAVE THIS PASSWORD - it will not be displayed again!")
	}
	return nil
}

func generatePassword() (string, error) {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(passwordBytes), nil
}
