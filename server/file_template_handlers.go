package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-cda-server/users"
)

//go:embed templates/*
var templateFiles embed.FS

const (
	contentTypeHTML = "text/html; charset=utf-8"
	layoutTemplate  = "base.html"
)

// PageData is the value every page template executes against
type PageData map[string]any

type pageTemplate struct {
	name string
	tmpl *template.Template
}

var templateFS = mustSub(templateFiles, "templates")

func TemplateFilesFS() fs.FS {
	return templateFS
}

// parsePages pairs every page template with the shared layout
func (s *Server) parsePages() (map[string]*pageTemplate, error) {
	names, err := fs.Glob(TemplateFilesFS(), "*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*pageTemplate, len(names))
	for _, name := range names {
		if name == layoutTemplate {
			continue
		}
		tmpl, err := template.New(layoutTemplate).
			Funcs(s.templateFuncs()).
			ParseFS(TemplateFilesFS(), layoutTemplate, name)
		if err != nil {
			return nil, err
		}
		pages[name] = &pageTemplate{name: name, tmpl: tmpl}
	}
	return pages, nil
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"fecha": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.In(s.location).Format("02/01/2006 15:04")
		},
		"withID":     withID,
		"roleLabel":  func(r users.RoleType) string { return r.Label() },
		"join":       strings.Join,
		"fieldError": fieldError,
	}
}

// render executes a page with the common layout values merged into data
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	page, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("unknown page template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = PageData{}
	}
	data["AppName"] = s.config.GetAppName()
	// Messages set by the handler are shown after the queued ones
	messages := takeFlash(w, r)
	if own, ok := data["Messages"].([]FlashMessage); ok {
		messages = append(messages, own...)
	}
	data["Messages"] = messages
	if user := currentUser(r); user != nil {
		data["User"] = user
	}

	// Render to a buffer so template errors do not leave half a page behind
	var buf bytes.Buffer
	if err := page.tmpl.ExecuteTemplate(&buf, layoutTemplate, data); err != nil {
		log.Err(err).Str("template", page.name).Msg("Failed to render template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error.html", PageData{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
}

func fieldError(errs map[string][]string, field string) string {
	return strings.Join(errs[field], " ")
}
