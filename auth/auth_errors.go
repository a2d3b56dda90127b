package auth

import (
	"errors"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
)

var (
	InvalidCredentialsErr   = apperrors.ErrInvalidCredentials
	UserInactiveErr         = apperrors.ErrUserInactive
	PermissionDeniedErr     = apperrors.ErrPermissionDenied
	OldPasswordIncorrectErr = errors.New("old password incorrect")
	SessionUserMissingErr   = errors.New("session has no user")
)
