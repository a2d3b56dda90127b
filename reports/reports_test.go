package reports_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-cda-server/plates"
	"github.com/jrsteele09/go-cda-server/reports"
	"github.com/jrsteele09/go-cda-server/users"
)

type recordingRenderer struct {
	html []byte
	err  error
}

func (r *recordingRenderer) Render(_ context.Context, html []byte) ([]byte, error) {
	r.html = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type fakeMedia struct {
	root  string
	files map[string]bool
}

func (m fakeMedia) Path(rel string) (string, error) {
	return filepath.Join(m.root, filepath.FromSlash(rel)), nil
}

func (m fakeMedia) Exists(rel string) bool {
	return m.files[rel]
}

type testFixture struct {
	renderer  *recordingRenderer
	media     fakeMedia
	generator *reports.Generator
	plate     *plates.Plate
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC)
	bogota := time.FixedZone("COT", -5*60*60)

	f := &testFixture{
		renderer: &recordingRenderer{},
		media:    fakeMedia{root: "/srv/media", files: map[string]bool{}},
	}
	g, err := reports.NewGenerator(f.renderer, f.media,
		reports.WithLocation(bogota),
		reports.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)
	f.generator = g

	f.plate, err = plates.NewPlate("ABC123", "u1", now)
	require.NoError(t, err)
	return f
}

func TestPlateReport(t *testing.T) {
	f := setupTestFixture(t)
	photo := plates.NewPhoto(f.plate.ID, "fotos/frente.jpg", "Vista frontal", "u1", f.plate.CreatedAt)
	f.media.files["fotos/frente.jpg"] = true

	pdf, err := f.generator.PlateReport(context.Background(), f.plate, []*plates.Photo{photo})
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fake", string(pdf))

	html := string(f.renderer.html)
	require.Contains(t, html, "Placa ABC123")
	require.Contains(t, html, `src="file:///srv/media/fotos/frente.jpg"`)
	require.Contains(t, html, "Vista frontal")
	require.Contains(t, html, "01/05/2024 12:30", "dates are printed in the configured zone")
}

func TestPlateReportMissingImage(t *testing.T) {
	f := setupTestFixture(t)
	photo := plates.NewPhoto(f.plate.ID, "fotos/perdida.jpg", "", "u1", f.plate.CreatedAt)

	_, err := f.generator.PlateReport(context.Background(), f.plate, []*plates.Photo{photo})
	var missing *reports.MissingImageError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "fotos/perdida.jpg", missing.ImagePath)
	require.Nil(t, f.renderer.html, "nothing is rendered when an image is missing")
}

func TestGeneralReport(t *testing.T) {
	f := setupTestFixture(t)
	u := &users.User{Username: "carla", FirstName: "Carla", LastName: "Ruiz", Role: users.RoleIngeniero}

	_, err := f.generator.GeneralReport(context.Background(), u, plates.Counts{Plates: 4, Photos: 9})
	require.NoError(t, err)

	html := string(f.renderer.html)
	require.Contains(t, html, "Carla Ruiz (Ingeniero)")
	require.Contains(t, html, "<td>4</td>")
	require.Contains(t, html, "<td>9</td>")
}

func TestRendererErrorPropagates(t *testing.T) {
	f := setupTestFixture(t)
	f.renderer.err = reports.ErrRendererMissing

	_, err := f.generator.PlateReport(context.Background(), f.plate, nil)
	require.True(t, errors.Is(err, reports.ErrRendererMissing))
}

func TestWkhtmltopdfMissingBinary(t *testing.T) {
	w := reports.NewWkhtmltopdf(filepath.Join(t.TempDir(), "wkhtmltopdf"))
	require.False(t, w.Available())

	_, err := w.Render(context.Background(), []byte("<html></html>"))
	require.True(t, errors.Is(err, reports.ErrRendererMissing))
}

func TestWkhtmltopdfPipesDocument(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\ncat\n"
	bin := filepath.Join(dir, "wkhtmltopdf")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	w := reports.NewWkhtmltopdf(bin)
	out, err := w.Render(context.Background(), []byte("<html>hola</html>"))
	require.NoError(t, err)
	require.Equal(t, "<html>hola</html>", string(out))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(args), "--page-size A4")
	require.Contains(t, string(args), "--margin-left 15mm")
	require.Contains(t, string(args), "--enable-local-file-access")
	require.Contains(t, string(args), "- -")
}

func TestWkhtmltopdfFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "wkhtmltopdf")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o755))

	_, err := reports.NewWkhtmltopdf(bin).Render(context.Background(), []byte("<html></html>"))
	require.ErrorContains(t, err, "boom")
}

func TestPlateReportFilename(t *testing.T) {
	require.Equal(t, "reporte_placa_ABC123.pdf", reports.PlateReportFilename("ABC123"))
}
