package intake

const (
	RouteIndex     = "/"
	RouteAuthorize = "/authorize"
	RouteDone      = "/done"

	RouteAdminRefresh = "/admin/refresh"
	RouteAdminPull    = "/admin/pull"
	RouteAdminCount   = "/admin/count"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(), s.StdMiddleware()...))

	// Authorization intake
	s.RegisterRouteFunc("GET "+RouteAuthorize, ChainMiddleware(s.AuthorizeHandler(), s.StdMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteDone, ChainMiddleware(s.DoneHandler(), s.StdMiddleware()...))

	// Batch operations
	s.RegisterRouteFunc("POST "+RouteAdminRefresh, ChainMiddleware(s.AdminRefreshHandler(), s.StdMiddleware(s.RequireAdminToken)...))
	s.RegisterRouteFunc("POST "+RouteAdminPull, ChainMiddleware(s.AdminPullHandler(), s.StdMiddleware(s.RequireAdminToken)...))
	s.RegisterRouteFunc("GET "+RouteAdminCount, ChainMiddleware(s.AdminCountHandler(), s.StdMiddleware(s.RequireAdminToken)...))
}
