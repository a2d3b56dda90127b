// Package plates models registered vehicles and their inspection photographs.
package plates

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
)

const MaxNumberLength = 20

// Plate is a registered license plate
type Plate struct {
	ID        string    `json:"id"`
	Number    string    `json:"numero_placa"` // Unique, upper-cased
	CreatedAt time.Time `json:"fecha_creacion"`
	CreatedBy string    `json:"creado_por"` // User ID
}

// Photo is an image attached to a plate
type Photo struct {
	ID        string    `json:"id"`
	PlateID   string    `json:"placa_id"`
	ImagePath string    `json:"imagen"` // Relative to the media root, slash separated
	Comment   string    `json:"comentario"`
	CreatedAt time.Time `json:"fecha_creacion"`
	CreatedBy string    `json:"creado_por"` // User ID
}

// NormalizeNumber trims and upper-cases a plate number
func NormalizeNumber(number string) string {
	return strings.ToUpper(strings.Join(strings.Fields(number), ""))
}

// NewPlate validates number and returns a plate with a fresh ULID
func NewPlate(number, createdBy string, now time.Time) (*Plate, error) {
	n := NormalizeNumber(number)
	if n == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "plate number is required")
	}
	if utf8.RuneCountInString(n) > MaxNumberLength {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "plate number exceeds %d characters", MaxNumberLength)
	}
	return &Plate{
		ID:        ulid.Make().String(),
		Number:    n,
		CreatedAt: now,
		CreatedBy: createdBy,
	}, nil
}

// NewPhoto returns a photo record with a fresh ULID
func NewPhoto(plateID, imagePath, comment, createdBy string, now time.Time) *Photo {
	return &Photo{
		ID:        ulid.Make().String(),
		PlateID:   plateID,
		ImagePath: imagePath,
		Comment:   comment,
		CreatedAt: now,
		CreatedBy: createdBy,
	}
}

// Counts summarises the inspection records
type Counts struct {
	Plates int
	Photos int
}
