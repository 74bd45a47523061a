package constants

import "time"

// HTTP headers
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	AuthBearerPrefix    = "Bearer "
)

// Query parameter fallback for the admin channel upgrade request, since browser
// WebSocket clients cannot set custom headers.
const (
	AuthQueryParamToken = "token"
)

// HTTP server timeouts
const (
	HTTPIdleTimeout       = 120 * time.Second
	HTTPReadHeaderTimeout = 10 * time.Second
)

// MIME types
const (
	MimeTypeJSON = "application/json"
)
