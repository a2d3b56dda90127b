package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Home
	RouteHome      = "/"
	RouteDashboard = "/dashboard/"

	// Accounts
	RouteLogin     = "/accounts/login/"
	RouteLogout    = "/accounts/logout/"
	RouteLogoutAll = "/accounts/logout-all/"

	// Plates
	RoutePlates        = "/placas/"
	RoutePlateCreate   = "/placas/crear/"
	RoutePlatePhotos   = "/placas/{id}/fotos/"
	RoutePlatePDF      = "/placas/{id}/pdf/"
	RoutePlateDelete   = "/placas/{id}/eliminar/"
	RouteGeneralReport = "/descargar-reporte/"

	// Staff administration
	RouteAdminUsers        = "/admin/usuarios/"
	RouteAdminUserCreate   = "/admin/usuarios/crear/"
	RouteAdminUserEdit     = "/admin/usuarios/{id}/editar/"
	RouteAdminUserToggle   = "/admin/usuarios/{id}/toggle/"
	RouteChangeOwnPassword = "/admin/usuarios/cambiar-contrasena/"
	RouteLegacyUsers       = "/usuarios/"

	// Files and operations
	RouteMedia   = "/media/{path...}"
	RouteStatic  = "/static/{path...}"
	RouteMetrics = "/metrics"
)

