package gateway

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	RouteAuthorize = "/api/auth/authorize"
	RouteCallback  = "/api/auth/callback"
	RouteToken     = "/api/auth/token"
	RouteSession   = "/api/auth/session"
	RouteRefresh   = "/api/auth/refresh"
	RouteLogout    = "/api/auth/logout"
)

const (
	// accessCookieName holds the short-lived access token on web clients
	accessCookieName = "auth_token"
	// refreshCookieName holds the refresh token, scoped to the refresh endpoint
	refreshCookieName = "refresh_token"
)

// The internal client identifier the mobile/web app declares at authorize time
const internalClientID = "google"
