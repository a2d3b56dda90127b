package auth

import (
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/users"
)

const maxUsernameLength = 150

// Form messages shown next to the offending field
const (
	MsgFieldRequired        = "Este campo es obligatorio."
	MsgUsernameInvalid      = "Introduzca un nombre de usuario válido. Este valor solo puede contener letras, números y los caracteres @/./+/-/_."
	MsgUsernameTaken        = "Ya existe un usuario con este nombre."
	MsgRoleInvalid          = "Escoja una opción válida."
	MsgOldPasswordIncorrect = "Su contraseña antigua es incorrecta. Por favor, vuelva a introducirla."
)

// FieldErrors collects validation messages per form field
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Err returns nil when no field failed
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return &ValidationError{Fields: fe}
}

// ValidationError is returned when submitted form data is rejected
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Fields[f], " "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// validateUsername applies the account username rules
func validateUsername(fe FieldErrors, username string) {
	if username == "" {
		fe.Add("username", MsgFieldRequired)
		return
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		fe.Add("username", MsgUsernameInvalid)
		return
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			fe.Add("username", MsgUsernameInvalid)
			return
		}
	}
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("@.+-_", r):
		return true
	case r > 127:
		return strings.ContainsRune("áéíóúüñÁÉÍÓÚÜÑ", r)
	}
	return false
}

// validateNewPassword checks a password/confirmation pair against the policy.
// Messages are reported on the confirmation field.
func validateNewPassword(fe FieldErrors, user *users.User, field1, field2, password1, password2 string) {
	if password1 == "" {
		fe.Add(field1, MsgFieldRequired)
	}
	if password2 == "" {
		fe.Add(field2, MsgFieldRequired)
	}
	if password1 == "" || password2 == "" {
		return
	}
	if password1 != password2 {
		fe.Add(field2, users.MsgPasswordMismatch)
		return
	}

	err := users.ValidatePasswordFor(user, password2)
	var policyErr *users.PasswordPolicyError
	if apperrors.As(err, &policyErr) {
		for _, p := range policyErr.Problems {
			fe.Add(field2, p)
		}
	}
}
