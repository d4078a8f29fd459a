package auth

import (
	"net/http"
	"strings"

	"panelmerge/pkg/platform/httputil"
	"panelmerge/pkg/requestcontext"
)

// RequireAuth validates the bearer token and populates the request context
// with the authenticated principal. Requests without a valid session get a
// 401, which also feeds the security monitor's failed-auth tracking.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := s.Verify(r.Context(), token)
		if err != nil {
			httputil.WriteMessage(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := requestcontext.WithActor(r.Context(), claims.UserID, claims.Name)
		ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
		ctx = withRole(ctx, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a route on the admin role. Must run after RequireAuth.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if roleFrom(r.Context()) != RoleAdmin {
			httputil.WriteMessage(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
