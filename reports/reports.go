package reports

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-cda-server/plates"
	"github.com/jrsteele09/go-cda-server/users"
)

const (
	KindPlate   = "plate"
	KindGeneral = "general"

	GeneralReportFilename = "reporte_general.pdf"
)

//go:embed templates/*.html
var templateFS embed.FS

// MediaFiles locates stored photographs on disk
type MediaFiles interface {
	Path(rel string) (string, error)
	Exists(rel string) bool
}

// MissingImageError names a photo whose file is no longer on disk
type MissingImageError struct {
	ImagePath string
}

func (e *MissingImageError) Error() string {
	return fmt.Sprintf("image %s does not exist", e.ImagePath)
}

// PlateReportFilename is the download name of a plate's report
func PlateReportFilename(number string) string {
	return fmt.Sprintf("reporte_placa_%s.pdf", number)
}

// Generator builds report documents and hands them to a Renderer
type Generator struct {
	renderer  Renderer
	media     MediaFiles
	templates *template.Template
	location  *time.Location
	nowTime   func() time.Time
}

type Option func(*Generator)

// WithLocation sets the zone dates are printed in
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Generator) {
		g.nowTime = nowFunc
	}
}

func NewGenerator(renderer Renderer, media MediaFiles, options ...Option) (*Generator, error) {
	g := &Generator{
		renderer: renderer,
		media:    media,
		location: time.UTC,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(g)
	}

	tmpl, err := template.New("reports").Funcs(template.FuncMap{
		"fecha": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(g.location).Format("02/01/2006 15:04")
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}
	g.templates = tmpl
	return g, nil
}

type photoView struct {
	*plates.Photo
	FileURL template.URL
}

// PlateReport renders the plate's report. Every photo must still exist on
// disk; the first missing one is returned as a *MissingImageError.
func (g *Generator) PlateReport(ctx context.Context, plate *plates.Plate, photos []*plates.Photo) ([]byte, error) {
	views := make([]photoView, 0, len(photos))
	for _, p := range photos {
		if !g.media.Exists(p.ImagePath) {
			return nil, &MissingImageError{ImagePath: p.ImagePath}
		}
		full, err := g.media.Path(p.ImagePath)
		if err != nil {
			return nil, err
		}
		fileURL := url.URL{Scheme: "file", Path: filepath.ToSlash(full)}
		views = append(views, photoView{Photo: p, FileURL: template.URL(fileURL.String())})
	}

	html, err := g.execute("placa_pdf.html", map[string]any{
		"Plate":     plate,
		"Photos":    views,
		"Generated": g.nowTime(),
	})
	if err != nil {
		return nil, err
	}
	return g.renderer.Render(ctx, html)
}

// GeneralReport renders the summary report requested by user
func (g *Generator) GeneralReport(ctx context.Context, user *users.User, counts plates.Counts) ([]byte, error) {
	html, err := g.execute("mi_reporte_pdf.html", map[string]any{
		"User":   user,
		"Counts": counts,
		"Now":    g.nowTime(),
	})
	if err != nil {
		return nil, err
	}
	return g.renderer.Render(ctx, html)
}

func (g *Generator) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
