package sqlite

import (
	"database/sql"
	"errors"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/plates"
)

var _ plates.Repo = (*PlateRepo)(nil)

// PlateRepo implements plates.Repo on the plates and photos tables.
type PlateRepo struct {
	db *DB
}

// Plates returns the plate repository backed by d.
func (d *DB) Plates() *PlateRepo {
	return &PlateRepo{db: d}
}

func (r *PlateRepo) CreatePlate(p *plates.Plate) error {
	_, err := r.db.db.Exec(`
		INSERT INTO plates (id, number, created_at, created_by)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.Number, toMillis(p.CreatedAt), p.CreatedBy)
	if isUniqueViolation(err) {
		return apperrors.Wrapf(apperrors.ErrDuplicate, "plate %s", p.Number)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *PlateRepo) GetPlate(id string) (*plates.Plate, error) {
	var (
		p       plates.Plate
		created int64
	)
	err := r.db.db.QueryRow(`
		SELECT id, number, created_at, created_by FROM plates WHERE id = ?
	`, id).Scan(&p.ID, &p.Number, &created, &p.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrPlateNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

func (r *PlateRepo) ListPlates() ([]*plates.Plate, error) {
	rows, err := r.db.db.Query(`
		SELECT id, number, created_at, created_by
		FROM plates
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []*plates.Plate
	for rows.Next() {
		var (
			p       plates.Plate
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Number, &created, &p.CreatedBy); err != nil {
			return nil, unavailable(err)
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// DeletePlate removes the plate and, by cascade, its photos. The removed
// photo records are returned so their files can be cleaned up.
func (r *PlateRepo) DeletePlate(id string) ([]*plates.Photo, error) {
	tx, err := r.db.db.Begin()
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback() //nolint:errcheck

	photos, err := queryPhotos(tx, id)
	if err != nil {
		return nil, err
	}

	res, err := tx.Exec(`DELETE FROM plates WHERE id = ?`, id)
	if err != nil {
		return nil, unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.ErrPlateNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return photos, nil
}

func (r *PlateRepo) AddPhoto(p *plates.Photo) error {
	_, err := r.db.db.Exec(`
		INSERT INTO photos (id, plate_id, image_path, comment, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.PlateID, p.ImagePath, p.Comment, toMillis(p.CreatedAt), p.CreatedBy)
	if isForeignKeyViolation(err) {
		return apperrors.Wrapf(apperrors.ErrPlateNotFound, "plate %s", p.PlateID)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *PlateRepo) ListPhotos(plateID string) ([]*plates.Photo, error) {
	if _, err := r.GetPlate(plateID); err != nil {
		return nil, err
	}
	return queryPhotos(r.db.db, plateID)
}

func (r *PlateRepo) Counts() (plates.Counts, error) {
	var c plates.Counts
	err := r.db.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM plates), (SELECT COUNT(*) FROM photos)
	`).Scan(&c.Plates, &c.Photos)
	if err != nil {
		return plates.Counts{}, unavailable(err)
	}
	return c, nil
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryPhotos(q querier, plateID string) ([]*plates.Photo, error) {
	rows, err := q.Query(`
		SELECT id, plate_id, image_path, comment, created_at, created_by
		FROM photos
		WHERE plate_id = ?
		ORDER BY created_at, id
	`, plateID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []*plates.Photo
	for rows.Next() {
		var (
			p       plates.Photo
			created int64
		)
		if err := rows.Scan(&p.ID, &p.PlateID, &p.ImagePath, &p.Comment, &created, &p.CreatedBy); err != nil {
			return nil, unavailable(err)
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}
