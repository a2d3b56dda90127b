package fakeplaterepo

import (
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/plates"
)

var _ plates.Repo = (*FakePlateRepo)(nil)

type FakePlateRepo struct {
	plates  map[string]*plates.Plate
	photos  map[string][]*plates.Photo // plate id -> photos
	numbers map[string]string          // number -> plate id
	lock    sync.RWMutex
}

func NewFakePlateRepo() *FakePlateRepo {
	return &FakePlateRepo{
		plates:  make(map[string]*plates.Plate),
		photos:  make(map[string][]*plates.Photo),
		numbers: make(map[string]string),
	}
}

func (r *FakePlateRepo) CreatePlate(p *plates.Plate) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.numbers[p.Number]; ok {
		return apperrors.ErrDuplicate
	}
	copied := *p
	r.plates[p.ID] = &copied
	r.numbers[p.Number] = p.ID
	return nil
}

func (r *FakePlateRepo) GetPlate(id string) (*plates.Plate, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	p, ok := r.plates[id]
	if !ok {
		return nil, apperrors.ErrPlateNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *FakePlateRepo) ListPlates() ([]*plates.Plate, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*plates.Plate, 0, len(r.plates))
	for _, p := range r.plates {
		copied := *p
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (r *FakePlateRepo) DeletePlate(id string) ([]*plates.Photo, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	p, ok := r.plates[id]
	if !ok {
		return nil, apperrors.ErrPlateNotFound
	}
	removed := r.photos[id]
	delete(r.photos, id)
	delete(r.numbers, p.Number)
	delete(r.plates, id)
	return removed, nil
}

func (r *FakePlateRepo) AddPhoto(p *plates.Photo) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.plates[p.PlateID]; !ok {
		return apperrors.ErrPlateNotFound
	}
	copied := *p
	r.photos[p.PlateID] = append(r.photos[p.PlateID], &copied)
	return nil
}

func (r *FakePlateRepo) ListPhotos(plateID string) ([]*plates.Photo, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if _, ok := r.plates[plateID]; !ok {
		return nil, apperrors.ErrPlateNotFound
	}
	list := make([]*plates.Photo, 0, len(r.photos[plateID]))
	for _, p := range r.photos[plateID] {
		copied := *p
		list = append(list, &copied)
	}
	return list, nil
}

func (r *FakePlateRepo) Counts() (plates.Counts, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	c := plates.Counts{Plates: len(r.plates)}
	for _, list := range r.photos {
		c.Photos += len(list)
	}
	return c, nil
}
