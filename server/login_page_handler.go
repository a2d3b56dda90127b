package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-cda-server/auth"
)

// Login form messages
const (
	MsgInvalidLogin  = "Por favor, introduzca un nombre de usuario y clave correctos. Observe que ambos campos pueden ser sensibles a mayúsculas."
	MsgInactiveLogin = "Esta cuenta está inactiva."
	MsgLoggedOut     = "Has cerrado sesión."
)

// LoginPageUIHandler displays the login page (GET /accounts/login/)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "login.html", PageData{
			"Username": "",
			"Next":     r.URL.Query().Get("next"),
		})
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		next := r.FormValue("next")

		result, err := s.auth.Login(r.Context(), auth.LoginRequest{
			Username:    username,
			Password:    password,
			UserAgent:   r.UserAgent(),
			PreviousKey: s.sessionKey(r),
		})
		if err != nil {
			s.loginFailed(w, r, username, next, err)
			return
		}
		s.countLogin("success")

		log.Info().
			Str("user", result.User.Username).
			Int("purged", result.Purged).
			Msg("user logged in")

		s.setSessionCookie(w, r, result.Session.Key)
		redirectSuccess(w, r, safeNext(next))
	}
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, username, next string, err error) {
	var msg string
	switch {
	case errors.Is(err, auth.InvalidCredentialsErr):
		s.countLogin("invalid")
		msg = MsgInvalidLogin
	case errors.Is(err, auth.UserInactiveErr):
		s.countLogin("inactive")
		msg = MsgInactiveLogin
	default:
		s.countLogin("error")
		log.Err(err).Str("user", username).Msg("login failed")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, http.StatusOK, "login.html", PageData{
		"Username": username,
		"Next":     next,
		"Error":    msg,
	})
}

func (s *Server) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

// LogoutHandler ends the current session (GET or POST /accounts/logout/)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context(), s.sessionKey(r)); err != nil {
			log.Err(err).Msg("failed to delete session on logout")
		}
		clearCookie(w, s.config.GetSessionCookieName())
		redirectSuccess(w, r, RouteLogin, flashInfo(MsgLoggedOut))
	}
}

// LogoutAllPageHandler asks for confirmation before terminating every session
func (s *Server) LogoutAllPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "logout_all.html", nil)
	}
}

// LogoutAllHandler terminates every session of the current user on every device
func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		count, err := s.auth.LogoutAll(r.Context(), user.ID, currentSession(r).Key)
		if err != nil {
			log.Err(err).Str("user", user.Username).Msg("failed to terminate sessions")
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}

		log.Info().Str("user", user.Username).Int("sessions", count).Msg("terminated all sessions")
		clearCookie(w, s.config.GetSessionCookieName())
		redirectSuccess(w, r, RouteLogin, flashSuccess(fmt.Sprintf("Se cerraron %d sesiones.", count)))
	}
}
