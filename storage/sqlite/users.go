package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/users"
)

var _ users.UserRepo = (*UserRepo)(nil)

const userColumns = `id, username, password_hash, first_name, last_name, email, role, active, date_joined, last_login`

// UserRepo implements users.UserRepo on the users table.
type UserRepo struct {
	db *DB
}

// Users returns the staff repository backed by d.
func (d *DB) Users() *UserRepo {
	return &UserRepo{db: d}
}

func (r *UserRepo) Upsert(user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}

	_, err := r.db.db.Exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			role = excluded.role,
			active = excluded.active,
			last_login = excluded.last_login
	`, user.ID, user.Username, user.PasswordHash, user.FirstName, user.LastName, user.Email,
		string(user.Role), user.Active, toMillis(user.DateJoined), toMillis(user.LastLogin))
	if isUniqueViolation(err) {
		return apperrors.Wrapf(apperrors.ErrDuplicate, "username %s", user.Username)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *UserRepo) GetByID(id string) (*users.User, error) {
	return r.getOne(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(username string) (*users.User, error) {
	return r.getOne(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepo) List(roles ...users.RoleType) ([]*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := make([]any, 0, len(roles))
	if len(roles) > 0 {
		placeholders := make([]string, len(roles))
		for i, role := range roles {
			placeholders[i] = "?"
			args = append(args, string(role))
		}
		query += ` WHERE role IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY username`

	rows, err := r.db.db.Query(query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []*users.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r *UserRepo) SetActive(id string, active bool) error {
	return r.update(`UPDATE users SET active = ? WHERE id = ?`, active, id)
}

func (r *UserRepo) SetPassword(id, passwordHash string) error {
	return r.update(`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

func (r *UserRepo) SetLastLogin(id string, at time.Time) error {
	return r.update(`UPDATE users SET last_login = ? WHERE id = ?`, toMillis(at), id)
}

func (r *UserRepo) CountByRole(role users.RoleType) (int, error) {
	var n int
	if err := r.db.db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = ?`, string(role)).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *UserRepo) getOne(query string, arg any) (*users.User, error) {
	u, err := scanUser(r.db.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return u, nil
}

func (r *UserRepo) update(query string, args ...any) error {
	res, err := r.db.db.Exec(query, args...)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*users.User, error) {
	var (
		u          users.User
		role       string
		dateJoined int64
		lastLogin  int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email,
		&role, &u.Active, &dateJoined, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.Role = users.RoleType(role)
	u.DateJoined = fromMillis(dateJoined)
	u.LastLogin = fromMillis(lastLogin)
	return &u, nil
}
