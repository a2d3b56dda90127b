package users

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents the single role a staff member holds
type RoleType string

const (
	RoleInspector    RoleType = "inspector"    // Registers plates and photographs
	RoleIngeniero    RoleType = "ingeniero"    // Inspector rights plus reports, plate deletion and staff management
	RoleSuperusuario RoleType = "superusuario" // Unrestricted
)

// AllRoles lists roles in display order
var AllRoles = []RoleType{RoleInspector, RoleIngeniero, RoleSuperusuario}

// ParseRole returns the role named s, or false when s is not a known role
func ParseRole(s string) (RoleType, bool) {
	r := RoleType(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(AllRoles, r) {
		return r, true
	}
	return "", false
}

// Label is the human readable role name
func (r RoleType) Label() string {
	switch r {
	case RoleInspector:
		return "Inspector"
	case RoleIngeniero:
		return "Ingeniero"
	case RoleSuperusuario:
		return "Super Usuario"
	}
	return string(r)
}

type User struct {
	ID           string    `json:"id,omitempty"`          // Unique identifier for the user
	Username     string    `json:"username,omitempty"`    // Unique username
	PasswordHash string    `json:"-"`                     // Hashed version of the user's password - never serialize
	FirstName    string    `json:"first_name,omitempty"`  // First name of the user
	LastName     string    `json:"last_name,omitempty"`   // Last name of the user
	Email        string    `json:"email,omitempty"`       // User's email address
	Role         RoleType  `json:"role,omitempty"`        // Staff role
	Active       bool      `json:"active"`                // Inactive users cannot log in
	DateJoined   time.Time `json:"date_joined,omitempty"` // Date and time when the user was created
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last time the user logged in
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

// IsSuperuser returns true if the user has unrestricted privileges
func (u *User) IsSuperuser() bool {
	return u.Role == RoleSuperusuario
}

// HasRole reports whether the user's role is one of roles. Superusers pass every check.
func (u *User) HasRole(roles ...RoleType) bool {
	if u.IsSuperuser() {
		return true
	}
	return slices.Contains(roles, u.Role)
}

// CanManageUsers reports whether the user may open the staff administration pages
func (u *User) CanManageUsers() bool {
	return u.HasRole(RoleIngeniero)
}

// CanManage reports whether the user may edit or (de)activate target.
// Ingenieros cannot touch superusers.
func (u *User) CanManage(target *User) bool {
	if u.IsSuperuser() {
		return true
	}
	return u.Role == RoleIngeniero && !target.IsSuperuser()
}

// AssignableRoles lists the roles the user may give to new staff
func (u *User) AssignableRoles() []RoleType {
	if u.IsSuperuser() {
		return AllRoles
	}
	if u.Role == RoleIngeniero {
		return []RoleType{RoleInspector, RoleIngeniero}
	}
	return nil
}

// VisibleRoles lists the roles whose members appear in the user's staff list
func (u *User) VisibleRoles() []RoleType {
	return u.AssignableRoles()
}

// DisplayName returns the full name, falling back to the username
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
