package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-cda-server/auth"
	"github.com/jrsteele09/go-cda-server/internal/config"
	"github.com/jrsteele09/go-cda-server/internal/metrics"
	"github.com/jrsteele09/go-cda-server/media"
	"github.com/jrsteele09/go-cda-server/plates"
	"github.com/jrsteele09/go-cda-server/reports"
	"github.com/jrsteele09/go-cda-server/users"
)

// Deps holds the services the HTTP layer is built on
type Deps struct {
	Auth    *auth.Service
	Users   users.UserRepo
	Plates  plates.Repo
	Media   *media.Store
	Reports *reports.Generator
	Metrics *metrics.Metrics // Optional
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	location *time.Location
	auth     *auth.Service
	users    users.UserRepo
	plates   plates.Repo
	media    *media.Store
	reports  *reports.Generator
	metrics  *metrics.Metrics
	pages    map[string]*pageTemplate
	nowTime  func() time.Time

	// Password of the superuser created at startup, empty when one already existed
	generatedAdminPassword string
}

func New(config config.Config, deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Users == nil || deps.Plates == nil || deps.Media == nil || deps.Reports == nil {
		return nil, fmt.Errorf("[Server New] auth, users, plates, media and reports are required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		location: config.GetLocation(),
		auth:     deps.Auth,
		users:    deps.Users,
		plates:   deps.Plates,
		media:    deps.Media,
		reports:  deps.Reports,
		metrics:  deps.Metrics,
		nowTime:  time.Now,
	}

	pages, err := s.parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}
	s.pages = pages

	// Bootstrap: ensure a superuser exists
	if err := s.InitialiseSystem(); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// GeneratedAdminPassword returns the password given to the bootstrap superuser, if one was created
func (s *Server) GeneratedAdminPassword() string {
	return s.generatedAdminPassword
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
