package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "panelmerge/internal/audit/handler"
	"panelmerge/internal/auth"
	authhandler "panelmerge/internal/auth/handler"
	panelhandler "panelmerge/internal/panel/handler"
	"panelmerge/internal/secmon"
	"panelmerge/pkg/platform/httputil"
	"panelmerge/pkg/platform/middleware/metadata"
)

// Deps carries everything the router needs.
type Deps struct {
	Auth    *auth.Service
	Monitor *secmon.Monitor

	AuthHandler  *authhandler.Handler
	PanelHandler *panelhandler.Handler
	AuditHandler *audithandler.Handler

	// Health probes backing dependencies (Redis when configured). nil
	// means the process itself is the only health signal.
	Health func(ctx context.Context) error
}

// NewRouter wires the full HTTP surface. Everything except /healthz and
// /metrics runs inside the security monitor so every application request
// passes the pre and post hooks.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealth(d.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(d.Monitor.Middleware)

		d.AuthHandler.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.RequireAuth)
			d.PanelHandler.Register(r)

			r.Group(func(r chi.Router) {
				r.Use(d.Auth.RequireAdmin)
				d.AuditHandler.Register(r)
			})
		})
	})

	return r
}

func handleHealth(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
