package users

import "time"

// UserRepo persists staff accounts. Lookups of unknown users return
// errors.ErrUserNotFound; username collisions return errors.ErrDuplicate.
type UserRepo interface {
	Upsert(user *User) error
	GetByID(id string) (*User, error)
	GetByUsername(username string) (*User, error)
	List(roles ...RoleType) ([]*User, error)
	SetActive(id string, active bool) error
	SetPassword(id, passwordHash string) error
	SetLastLogin(id string, at time.Time) error
	CountByRole(role RoleType) (int, error)
}
