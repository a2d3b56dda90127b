// Package media stores inspection photographs on local disk.
package media

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
)

const (
	PhotoDir = "fotos"

	// MaxPhotoSize bounds a single upload or camera capture
	MaxPhotoSize = 10 << 20

	suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength   = 7
)

// Store writes photos below a media root. Paths handed out are relative to the
// root and slash separated so they can be stored and served as URLs.
type Store struct {
	root    string
	nowTime func() time.Time
}

type Option func(*Store)

// WithNowTime overrides the clock used to name camera captures
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// New prepares root and its photo directory
func New(root string, options ...Option) (*Store, error) {
	if root == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, PhotoDir), 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}

	s := &Store{root: abs, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute media directory
func (s *Store) Root() string {
	return s.root
}

// SaveUpload stores an uploaded image under its sanitized original name.
func (s *Store) SaveUpload(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return s.writePhoto(sanitizeName(filename), data)
}

// SaveCameraCapture decodes a browser camera capture and stores it as
// camara_<plateID>_<HHMMSS>.jpg.
func (s *Store) SaveCameraCapture(plateID, photoData string) (string, error) {
	data, err := DecodeCameraData(photoData)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("camara_%s_%s.jpg", plateID, s.nowTime().UTC().Format("150405"))
	return s.writePhoto(name, data)
}

// DecodeCameraData strips an optional data URL prefix up to "base64," and
// decodes the remainder.
func DecodeCameraData(photoData string) ([]byte, error) {
	encoded := photoData
	if _, after, found := strings.Cut(photoData, "base64,"); found {
		encoded = after
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "empty camera capture")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "decode camera capture: %v", err)
	}
	return data, nil
}

// Path resolves a stored relative path to a file path inside the media root
func (s *Store) Path(rel string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if clean == "/" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "empty media path")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Exists reports whether rel names a regular file in the media root
func (s *Store) Exists(rel string) bool {
	p, err := s.Path(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a stored file. Missing files are ignored.
func (s *Store) Remove(rel string) error {
	p, err := s.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

func (s *Store) writePhoto(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "empty image")
	}
	if len(data) > MaxPhotoSize {
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "image exceeds %d bytes", MaxPhotoSize)
	}
	if contentType := http.DetectContentType(data); !strings.HasPrefix(contentType, "image/") {
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "unsupported content type %s", contentType)
	}

	rel := path.Join(PhotoDir, name)
	full, _ := s.Path(rel)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		// Name taken: keep the original stem and add a random suffix
		suffix, genErr := gonanoid.Generate(suffixAlphabet, suffixLength)
		if genErr != nil {
			return "", genErr
		}
		ext := path.Ext(name)
		rel = path.Join(PhotoDir, strings.TrimSuffix(name, ext)+"_"+suffix+ext)
		full, _ = s.Path(rel)
		f, err = os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create %s: %w", rel, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", rel, err)
	}
	return rel, nil
}

func sanitizeName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		return "foto.jpg"
	}
	return name
}
