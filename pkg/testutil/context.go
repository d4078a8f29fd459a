package testutil

import (
	"net/http"

	"panelmerge/pkg/requestcontext"
)

// WithActor adds an authenticated principal to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, id int64, name string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), id, name)
	return req.WithContext(ctx)
}

// WithClientMetadata adds a client IP and User-Agent to the request context,
// simulating the metadata middleware.
func WithClientMetadata(req *http.Request, ip, userAgent string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, userAgent)
	return req.WithContext(ctx)
}

// WithSession adds a session ID to the request context.
func WithSession(req *http.Request, sessionID string) *http.Request {
	ctx := requestcontext.WithSessionID(req.Context(), sessionID)
	return req.WithContext(ctx)
}
