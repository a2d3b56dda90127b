package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/users"
)

// CreateStaffRequest is the new-user form
type CreateStaffRequest struct {
	Username  string
	Password1 string
	Password2 string
	Role      string
	FirstName string
	LastName  string
	Email     string
}

// ListStaff returns the users actor may see in the administration pages
func (s *Service) ListStaff(actor *users.User) ([]*users.User, error) {
	if !actor.CanManageUsers() {
		return nil, PermissionDeniedErr
	}
	list, err := s.repos.Users.List(actor.VisibleRoles()...)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ListStaff] List")
	}
	return list, nil
}

// CreateStaff validates the form and stores a new active user. The role must
// be one actor may assign.
func (s *Service) CreateStaff(actor *users.User, req CreateStaffRequest) (*users.User, error) {
	if !actor.CanManageUsers() {
		return nil, PermissionDeniedErr
	}

	fe := FieldErrors{}
	username := strings.TrimSpace(req.Username)
	validateUsername(fe, username)
	if len(fe["username"]) == 0 {
		if _, err := s.repos.Users.GetByUsername(username); err == nil {
			fe.Add("username", MsgUsernameTaken)
		} else if !errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, errors.Wrap(err, "[Service.CreateStaff] GetByUsername")
		}
	}

	role, ok := users.ParseRole(req.Role)
	if !ok || !containsRole(actor.AssignableRoles(), role) {
		fe.Add("grupo", MsgRoleInvalid)
	}

	user := &users.User{
		Username:  username,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Role:      role,
		Active:    true,
	}
	validateNewPassword(fe, user, "password1", "password2", req.Password1, req.Password2)
	if err := fe.Err(); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(req.Password1)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CreateStaff] HashPassword")
	}
	user.PasswordHash = hash
	user.DateJoined = s.nowTime()

	if err := s.repos.Users.Upsert(user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			fe.Add("username", MsgUsernameTaken)
			return nil, fe.Err()
		}
		return nil, errors.Wrap(err, "[Service.CreateStaff] Upsert")
	}
	return user, nil
}

// ManageableUser loads the user with id if actor may edit them
func (s *Service) ManageableUser(actor *users.User, id string) (*users.User, error) {
	if !actor.CanManageUsers() {
		return nil, PermissionDeniedErr
	}
	target, err := s.repos.Users.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(target) {
		return target, PermissionDeniedErr
	}
	return target, nil
}

// SetStaffPassword replaces another user's password without the old one
func (s *Service) SetStaffPassword(actor *users.User, id, password1, password2 string) (*users.User, error) {
	target, err := s.ManageableUser(actor, id)
	if err != nil {
		return target, err
	}

	fe := FieldErrors{}
	validateNewPassword(fe, target, "new_password1", "new_password2", password1, password2)
	if err := fe.Err(); err != nil {
		return target, err
	}
	if err := s.setPassword(target, password1); err != nil {
		return target, errors.Wrap(err, "[Service.SetStaffPassword]")
	}
	return target, nil
}

// ToggleStaff flips the target's active flag. Deactivating a user also ends
// all of their sessions; the number ended is returned.
func (s *Service) ToggleStaff(ctx context.Context, actor *users.User, id string) (*users.User, int, error) {
	target, err := s.ManageableUser(actor, id)
	if err != nil {
		return target, 0, err
	}

	target.Active = !target.Active
	if err := s.repos.Users.SetActive(target.ID, target.Active); err != nil {
		return target, 0, errors.Wrap(err, "[Service.ToggleStaff] SetActive")
	}
	if target.Active {
		return target, 0, nil
	}

	result, err := s.reconciler.TerminateAll(ctx, target.ID)
	if err != nil {
		return target, 0, errors.Wrap(err, "[Service.ToggleStaff] TerminateAll")
	}
	return target, len(result.Deleted), nil
}

// ChangeOwnPassword changes the user's password after checking the old one.
// The current session stays valid.
func (s *Service) ChangeOwnPassword(user *users.User, oldPassword, password1, password2 string) error {
	fe := FieldErrors{}
	if !user.CheckPassword(oldPassword) {
		fe.Add("old_password", MsgOldPasswordIncorrect)
	}
	validateNewPassword(fe, user, "new_password1", "new_password2", password1, password2)
	if err := fe.Err(); err != nil {
		return err
	}
	if err := s.setPassword(user, password1); err != nil {
		return errors.Wrap(err, "[Service.ChangeOwnPassword]")
	}
	return nil
}

// EnsureSuperuser creates a superuser named username when none exists and
// reports whether one was created.
func (s *Service) EnsureSuperuser(username, password string) (bool, error) {
	n, err := s.repos.Users.CountByRole(users.RoleSuperusuario)
	if err != nil {
		return false, errors.Wrap(err, "[Service.EnsureSuperuser] CountByRole")
	}
	if n > 0 {
		return false, nil
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return false, errors.Wrap(err, "[Service.EnsureSuperuser] HashPassword")
	}
	err = s.repos.Users.Upsert(&users.User{
		Username:     username,
		PasswordHash: hash,
		Role:         users.RoleSuperusuario,
		Active:       true,
		DateJoined:   s.nowTime(),
	})
	if err != nil {
		return false, errors.Wrap(err, "[Service.EnsureSuperuser] Upsert")
	}
	return true, nil
}

func (s *Service) setPassword(user *users.User, password string) error {
	hash, err := users.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repos.Users.SetPassword(user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

func containsRole(roles []users.RoleType, role users.RoleType) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
