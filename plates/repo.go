package plates

// Repo persists plates and photos. Unknown plates return errors.ErrPlateNotFound;
// a duplicate plate number returns errors.ErrDuplicate.
type Repo interface {
	CreatePlate(p *Plate) error
	GetPlate(id string) (*Plate, error)
	ListPlates() ([]*Plate, error) // Newest first
	DeletePlate(id string) ([]*Photo, error)

	AddPhoto(p *Photo) error
	ListPhotos(plateID string) ([]*Photo, error) // Oldest first
	Counts() (Counts, error)
}
