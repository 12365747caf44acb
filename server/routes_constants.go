package server

// Route path constants
const (
	// Auth API
	RouteAuthLogin    = "/api/auth/login"
	RouteAuthCallback = "/api/auth/callback/cognito"
	RouteAuthLogout   = "/api/auth/logout"
	RouteAuthRefresh  = "/api/auth/refresh"
	RouteAuthStatus   = "/api/auth/status"
	RouteAuthToken    = "/api/auth/token"
	RouteAuthUser     = "/api/auth/user"

	// Operations
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"
)
