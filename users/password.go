package users

import (
	"strings"
	"unicode"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
)

const (
	MinPasswordLength     = 8
	maxPasswordSimilarity = 0.7
)

// Password policy messages shown to staff
const (
	MsgPasswordTooSimilar = "La contraseña es demasiado similar a su información personal."
	MsgPasswordTooShort   = "La contraseña debe contener al menos 8 caracteres."
	MsgPasswordCommon     = "La contraseña es muy común y fácil de adivinar."
	MsgPasswordNumeric    = "La contraseña no puede ser completamente numérica."
	MsgPasswordMismatch   = "Las contraseñas no coinciden."
)

// commonPasswords is a short deny-list of the most frequently leaked passwords
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {}, "contraseña": {},
	"contrasena": {}, "123456789": {}, "12345678": {}, "1234567890": {}, "qwerty123": {},
	"qwertyuiop": {}, "iloveyou": {}, "sunshine": {}, "princess": {}, "football": {},
	"baseball": {}, "welcome1": {}, "trustno1": {}, "superman": {}, "starwars": {},
	"letmein1": {}, "abc12345": {}, "admin123": {}, "administrator": {}, "bienvenido": {},
	"colombia": {}, "colombia1": {}, "qazwsxedc": {}, "1q2w3e4r": {}, "1qaz2wsx": {},
	"11111111": {}, "00000000": {}, "asdfghjkl": {}, "zxcvbnm1": {}, "dragon123": {},
	"monkey123": {}, "master123": {}, "shadow123": {}, "michael1": {}, "jennifer": {},
	"inspector": {}, "ingeniero": {}, "superusuario": {}, "cda12345": {},
}

// PasswordPolicyError lists every rule a candidate password broke
type PasswordPolicyError struct {
	Problems []string
}

func (e *PasswordPolicyError) Error() string {
	return strings.Join(e.Problems, " ")
}

func (e *PasswordPolicyError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidatePassword applies the staff password policy. Attributes are the
// user's personal fields (username, names, email) the password must not resemble.
func ValidatePassword(password string, attributes ...string) error {
	var problems []string

	if similarToAny(password, attributes) {
		problems = append(problems, MsgPasswordTooSimilar)
	}
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, MsgPasswordTooShort)
	}
	if _, common := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; common {
		problems = append(problems, MsgPasswordCommon)
	}
	if password != "" && isNumeric(password) {
		problems = append(problems, MsgPasswordNumeric)
	}

	if len(problems) > 0 {
		return &PasswordPolicyError{Problems: problems}
	}
	return nil
}

// ValidatePasswordFor applies the policy using the user's own attributes
func ValidatePasswordFor(u *User, password string) error {
	return ValidatePassword(password, u.Username, u.FirstName, u.LastName, u.Email)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func similarToAny(password string, attributes []string) bool {
	password = strings.ToLower(password)
	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		parts := strings.FieldsFunc(attr, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, part := range append([]string{attr}, parts...) {
			if exceedsLengthRatio(password, part) {
				continue
			}
			if quickRatio(password, part) >= maxPasswordSimilarity {
				return true
			}
		}
	}
	return false
}

// exceedsLengthRatio skips attributes so short relative to the password that
// they cannot reach the similarity threshold.
func exceedsLengthRatio(password, value string) bool {
	pwdLen := len([]rune(password))
	valueLen := len([]rune(value))
	bound := maxPasswordSimilarity / 2 * float64(pwdLen)
	return pwdLen >= 10*valueLen && float64(valueLen) < bound
}

// quickRatio is an upper bound on sequence similarity: twice the size of the
// multiset intersection of runes over the total length.
func quickRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int, len(rb))
	for _, r := range rb {
		avail[r]++
	}
	matches := 0
	for _, r := range ra {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}
