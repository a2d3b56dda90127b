package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-cda-server/auth"
	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/users"
)

// Staff administration messages
const (
	MsgEditDenied        = "No tienes permisos para editar superusuarios."
	MsgToggleDenied      = "No tienes permisos para modificar superusuarios."
	MsgStaffPasswordFail = "❌ Error al cambiar la contraseña. Verifique los datos."
	MsgOwnPasswordDone   = "Contraseña cambiada correctamente."
	MsgUserNotFound      = "El usuario solicitado no existe."
)

// AdminUsersListHandler lists the staff the current user may manage
func (s *Server) AdminUsersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staff, err := s.auth.ListStaff(currentUser(r))
		if err != nil {
			s.staffError(w, r, err, MsgForbidden)
			return
		}
		s.render(w, r, http.StatusOK, "lista_usuarios.html", PageData{"Staff": staff})
	}
}

// AdminUserCreatePageHandler shows the new user form
func (s *Server) AdminUserCreatePageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderCreateUser(w, r, auth.CreateStaffRequest{Role: string(users.RoleInspector)}, nil)
	}
}

// AdminUserCreateHandler creates a staff account with the chosen role
func (s *Server) AdminUserCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		req := auth.CreateStaffRequest{
			Username:  r.FormValue("username"),
			Password1: r.FormValue("password1"),
			Password2: r.FormValue("password2"),
			Role:      r.FormValue("grupo"),
			FirstName: r.FormValue("first_name"),
			LastName:  r.FormValue("last_name"),
			Email:     r.FormValue("email"),
		}

		actor := currentUser(r)
		created, err := s.auth.CreateStaff(actor, req)
		if err != nil {
			var validation *auth.ValidationError
			if errors.As(err, &validation) {
				s.renderCreateUser(w, r, req, validation.Fields)
				return
			}
			s.staffError(w, r, err, MsgForbidden)
			return
		}

		log.Info().Str("user", created.Username).Str("role", string(created.Role)).Str("by", actor.Username).Msg("staff created")
		redirectSuccess(w, r, RouteAdminUsers, flashSuccess(
			fmt.Sprintf("Usuario %s creado correctamente como %s.", created.Username, created.Role.Label())))
	}
}

func (s *Server) renderCreateUser(w http.ResponseWriter, r *http.Request, form auth.CreateStaffRequest, errs auth.FieldErrors) {
	form.Password1, form.Password2 = "", ""
	s.render(w, r, http.StatusOK, "crear_usuario.html", PageData{
		"Form":   form,
		"Roles":  currentUser(r).AssignableRoles(),
		"Errors": errs,
	})
}

// AdminUserEditPageHandler shows the set-password form for a staff member
func (s *Server) AdminUserEditPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := s.auth.ManageableUser(currentUser(r), r.PathValue("id"))
		if err != nil {
			s.staffError(w, r, err, MsgEditDenied)
			return
		}
		s.render(w, r, http.StatusOK, "editar_usuario.html", PageData{"Target": target})
	}
}

// AdminUserEditHandler sets a staff member's password
func (s *Server) AdminUserEditHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		target, err := s.auth.SetStaffPassword(currentUser(r), r.PathValue("id"),
			r.FormValue("new_password1"), r.FormValue("new_password2"))
		if err != nil {
			var validation *auth.ValidationError
			if errors.As(err, &validation) {
				s.render(w, r, http.StatusOK, "editar_usuario.html", PageData{
					"Target":   target,
					"Errors":   validation.Fields,
					"Messages": []FlashMessage{flashError(MsgStaffPasswordFail)},
				})
				return
			}
			s.staffError(w, r, err, MsgEditDenied)
			return
		}

		redirectSuccess(w, r, RouteAdminUsers, flashSuccess(
			fmt.Sprintf("✅ Contraseña de %s actualizada correctamente.", target.Username)))
	}
}

// AdminUserToggleHandler activates or deactivates a staff member
func (s *Server) AdminUserToggleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := currentUser(r)
		target, ended, err := s.auth.ToggleStaff(r.Context(), actor, r.PathValue("id"))
		if err != nil {
			if errors.Is(err, auth.PermissionDeniedErr) {
				redirectWithError(w, r, RouteAdminUsers, MsgToggleDenied)
				return
			}
			s.staffError(w, r, err, MsgToggleDenied)
			return
		}

		state := "activado"
		if !target.Active {
			state = "desactivado"
			log.Info().Str("user", target.Username).Int("sessions", ended).Str("by", actor.Username).Msg("staff deactivated")
		}
		redirectSuccess(w, r, RouteAdminUsers, flashSuccess(
			fmt.Sprintf("Usuario %s %s correctamente.", target.Username, state)))
	}
}

// ChangePasswordPageHandler shows the own-password form
func (s *Server) ChangePasswordPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "cambiar_contrasena.html", PageData{})
	}
}

// ChangePasswordHandler changes the current user's password
func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		err := s.auth.ChangeOwnPassword(currentUser(r),
			r.FormValue("old_password"), r.FormValue("new_password1"), r.FormValue("new_password2"))
		if err != nil {
			var validation *auth.ValidationError
			if errors.As(err, &validation) {
				s.render(w, r, http.StatusOK, "cambiar_contrasena.html", PageData{"Errors": validation.Fields})
				return
			}
			log.Err(err).Msg("failed to change own password")
			s.renderError(w, r, http.StatusInternalServerError, "No fue posible cambiar la contraseña.")
			return
		}

		redirectSuccess(w, r, RouteHome, flashSuccess(MsgOwnPasswordDone))
	}
}

// staffError maps staff service errors to a response
func (s *Server) staffError(w http.ResponseWriter, r *http.Request, err error, denied string) {
	switch {
	case errors.Is(err, auth.PermissionDeniedErr):
		s.renderError(w, r, http.StatusForbidden, denied)
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.renderError(w, r, http.StatusNotFound, MsgUserNotFound)
	default:
		log.Err(err).Str("path", r.URL.Path).Msg("staff administration failed")
		s.renderError(w, r, http.StatusInternalServerError, "Ocurrió un error inesperado.")
	}
}
