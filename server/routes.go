package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-cda-server/users"
)

func (s *Server) initRoutes() {
	authed := s.HTMLMiddleWare(s.RequireSessionAuth())
	engineers := s.HTMLMiddleWare(s.RequireSessionAuth(), s.RequireRoles(users.RoleIngeniero))
	staff := s.HTMLMiddleWare(s.RequireSessionAuth(), s.RequireRoles(users.RoleInspector, users.RoleIngeniero))

	// HOME
	s.RegisterRouteHandler("GET "+exact(RouteHome), ChainMiddleware(s.HomeHandler(), authed...))
	s.RegisterRouteHandler("GET "+exact(RouteDashboard), ChainMiddleware(s.DashboardHandler(), authed...))

	// LOGIN
	s.RegisterRouteHandler("GET "+exact(RouteLogin), ChainMiddleware(s.LoginPageUIHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+exact(RouteLogin), ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+exact(RouteLogout), ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+exact(RouteLogout), ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+exact(RouteLogoutAll), ChainMiddleware(s.LogoutAllPageHandler(), authed...))
	s.RegisterRouteHandler("POST "+exact(RouteLogoutAll), ChainMiddleware(s.LogoutAllHandler(), authed...))

	// PLATES
	s.RegisterRouteHandler("GET "+exact(RoutePlates), ChainMiddleware(s.PlateListHandler(), authed...))
	s.RegisterRouteHandler("GET "+exact(RoutePlateCreate), ChainMiddleware(s.PlateCreatePageHandler(), staff...))
	s.RegisterRouteHandler("POST "+exact(RoutePlateCreate), ChainMiddleware(s.PlateCreateHandler(), staff...))
	s.RegisterRouteHandler("GET "+exact(RoutePlatePhotos), ChainMiddleware(s.PhotosPageHandler(), authed...))
	s.RegisterRouteHandler("POST "+exact(RoutePlatePhotos), ChainMiddleware(s.PhotoUploadHandler(), authed...))
	s.RegisterRouteHandler("GET "+exact(RoutePlatePDF), ChainMiddleware(s.PlatePDFHandler(), engineers...))
	s.RegisterRouteHandler("GET "+exact(RoutePlateDelete), ChainMiddleware(s.PlateDeletePageHandler(), engineers...))
	s.RegisterRouteHandler("POST "+exact(RoutePlateDelete), ChainMiddleware(s.PlateDeleteHandler(), engineers...))
	s.RegisterRouteHandler("GET "+exact(RouteGeneralReport), ChainMiddleware(s.GeneralReportHandler(), engineers...))

	// STAFF ADMINISTRATION
	s.RegisterRouteHandler("GET "+exact(RouteAdminUsers), ChainMiddleware(s.AdminUsersListHandler(), engineers...))
	s.RegisterRouteHandler("GET "+exact(RouteAdminUserCreate), ChainMiddleware(s.AdminUserCreatePageHandler(), engineers...))
	s.RegisterRouteHandler("POST "+exact(RouteAdminUserCreate), ChainMiddleware(s.AdminUserCreateHandler(), engineers...))
	s.RegisterRouteHandler("GET "+exact(RouteAdminUserEdit), ChainMiddleware(s.AdminUserEditPageHandler(), engineers...))
	s.RegisterRouteHandler("POST "+exact(RouteAdminUserEdit), ChainMiddleware(s.AdminUserEditHandler(), engineers...))
	s.RegisterRouteHandler("POST "+exact(RouteAdminUserToggle), ChainMiddleware(s.AdminUserToggleHandler(), engineers...))
	s.RegisterRouteHandler("GET "+exact(RouteChangeOwnPassword), ChainMiddleware(s.ChangePasswordPageHandler(), authed...))
	s.RegisterRouteHandler("POST "+exact(RouteChangeOwnPassword), ChainMiddleware(s.ChangePasswordHandler(), authed...))
	s.RegisterRouteHandler("GET "+exact(RouteLegacyUsers), ChainMiddleware(redirectTo(RouteAdminUsers), engineers...))

	// FILES
	s.RegisterRouteHandler("GET "+RouteMedia, ChainMiddleware(s.MediaHandler(), authed...))
	s.RegisterRouteHandler("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.HTMLMiddleWare(s.CacheMiddleware, s.CompressionMiddleware)...))

	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	}
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := r.PathValue("path")
		if filePath == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		err := StreamFile(w, r, filePath)
		if err != nil {
			logError("GET", filePath, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}

func redirectTo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusFound)
	}
}

// exact anchors a slash-terminated route so it does not also match its subtree.
func exact(route string) string {
	return route + "{$}"
}

func withID(route, id string) string {
	return strings.Replace(route, "{id}", id, 1)
}
