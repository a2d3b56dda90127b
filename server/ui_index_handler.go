package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

const recentPlates = 5

// HomeHandler renders the landing page with record totals
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.plates.Counts()
		if err != nil {
			log.Err(err).Msg("failed to count plates")
			s.renderError(w, r, http.StatusInternalServerError, "No fue posible cargar el resumen.")
			return
		}
		list, err := s.plates.ListPlates()
		if err != nil {
			log.Err(err).Msg("failed to list plates")
			s.renderError(w, r, http.StatusInternalServerError, "No fue posible cargar el resumen.")
			return
		}
		if len(list) > recentPlates {
			list = list[:recentPlates]
		}

		s.render(w, r, http.StatusOK, "home.html", PageData{
			"Counts": counts,
			"Recent": list,
		})
	}
}

// DashboardHandler renders the user's session and inspection summary
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.plates.Counts()
		if err != nil {
			log.Err(err).Msg("failed to count plates")
			s.renderError(w, r, http.StatusInternalServerError, "No fue posible cargar el panel.")
			return
		}

		s.render(w, r, http.StatusOK, "dashboard.html", PageData{
			"Counts":  counts,
			"Session": currentSession(r),
		})
	}
}
