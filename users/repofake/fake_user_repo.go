package fakeuserrepo

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*users.User
	usernameIds map[string]string // lower-cased username to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		usernameIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	name := strings.ToLower(user.Username)
	if existing, ok := ur.usernameIds[name]; ok && existing != user.ID {
		return apperrors.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if prev, ok := ur.users[user.ID]; ok {
		delete(ur.usernameIds, strings.ToLower(prev.Username))
	}

	copied := *user
	ur.users[user.ID] = &copied
	ur.usernameIds[name] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (ur *FakeUserRepo) GetByUsername(username string) (*users.User, error) {
	ur.lock.RLock()
	id, ok := ur.usernameIds[strings.ToLower(username)]
	ur.lock.RUnlock()
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return ur.GetByID(id)
}

func (ur *FakeUserRepo) List(roles ...users.RoleType) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		if len(roles) > 0 && !slices.Contains(roles, v.Role) {
			continue
		}
		copied := *v
		userList = append(userList, &copied)
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].Username < userList[j].Username
	})
	return userList, nil
}

func (ur *FakeUserRepo) SetActive(id string, active bool) error {
	return ur.update(id, func(u *users.User) { u.Active = active })
}

func (ur *FakeUserRepo) SetPassword(id, passwordHash string) error {
	return ur.update(id, func(u *users.User) { u.PasswordHash = passwordHash })
}

func (ur *FakeUserRepo) SetLastLogin(id string, at time.Time) error {
	return ur.update(id, func(u *users.User) { u.LastLogin = at })
}

func (ur *FakeUserRepo) CountByRole(role users.RoleType) (int, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	n := 0
	for _, u := range ur.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (ur *FakeUserRepo) update(id string, fn func(u *users.User)) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	fn(u)
	return nil
}
