package media_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/media"
)

var jpegBytes = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF\x00\x01fake-jpeg-body")

func setupTestStore(t *testing.T) *media.Store {
	t.Helper()
	fixed := time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)
	s, err := media.New(t.TempDir(), media.WithNowTime(func() time.Time { return fixed }))
	require.NoError(t, err)
	return s
}

func TestCameraCapture(t *testing.T) {
	s := setupTestStore(t)
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)

	rel, err := s.SaveCameraCapture("01HXPLATE", dataURL)
	require.NoError(t, err)
	require.Equal(t, "fotos/camara_01HXPLATE_140309.jpg", rel)
	require.True(t, s.Exists(rel))

	stored, err := os.ReadFile(filepath.Join(s.Root(), "fotos", "camara_01HXPLATE_140309.jpg"))
	require.NoError(t, err)
	require.Equal(t, jpegBytes, stored)

	// Same second again: stored beside the first one
	rel2, err := s.SaveCameraCapture("01HXPLATE", dataURL)
	require.NoError(t, err)
	require.NotEqual(t, rel, rel2)
	require.True(t, strings.HasPrefix(rel2, "fotos/camara_01HXPLATE_140309_"))
}

func TestDecodeCameraData(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(jpegBytes)

	data, err := media.DecodeCameraData(raw)
	require.NoError(t, err, "prefix is optional")
	require.Equal(t, jpegBytes, data)

	_, err = media.DecodeCameraData("data:image/png;base64,@@@")
	require.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = media.DecodeCameraData("data:image/png;base64,")
	require.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSaveUpload(t *testing.T) {
	s := setupTestStore(t)

	rel, err := s.SaveUpload(`C:\fakepath\frente del carro.JPG`, bytes.NewReader(jpegBytes))
	require.NoError(t, err)
	require.Equal(t, "fotos/frente_del_carro.JPG", rel)

	_, err = s.SaveUpload("notes.txt", strings.NewReader("just text"))
	require.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = s.SaveUpload("empty.jpg", strings.NewReader(""))
	require.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestPathStaysInsideRoot(t *testing.T) {
	s := setupTestStore(t)

	p, err := s.Path("../../etc/passwd")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(p, s.Root()+string(filepath.Separator)))

	_, err = s.Path("/")
	require.Error(t, err)
	require.False(t, s.Exists("fotos"), "directories are not files")
}

func TestRemove(t *testing.T) {
	s := setupTestStore(t)

	rel, err := s.SaveUpload("a.jpg", bytes.NewReader(jpegBytes))
	require.NoError(t, err)
	require.NoError(t, s.Remove(rel))
	require.False(t, s.Exists(rel))
	require.NoError(t, s.Remove(rel), "removing twice is fine")
}
