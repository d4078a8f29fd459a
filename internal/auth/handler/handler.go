package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"panelmerge/internal/auth"
	"panelmerge/pkg/platform/httputil"
	"panelmerge/pkg/requestcontext"
)

// SecurityNotifier is the slice of the security monitor the auth handler
// needs: clearing the failed-login window after a successful login.
type SecurityNotifier interface {
	NoteLoginSuccess(ctx context.Context, ip string)
}

// Handler exposes the login/logout endpoints.
type Handler struct {
	service  *auth.Service
	notifier SecurityNotifier
	logger   *slog.Logger
}

// New constructs the auth handler.
func New(service *auth.Service, notifier SecurityNotifier, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		notifier: notifier,
		logger:   logger,
	}
}

// Register mounts the auth routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.With(h.service.RequireAuth).Post("/auth/logout", h.handleLogout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}

	session, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// 401 feeds the monitor's brute-force tracking in the post-hook.
			httputil.WriteMessage(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.ErrorContext(ctx, "login failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	if h.notifier != nil {
		h.notifier.NoteLoginSuccess(ctx, requestcontext.ClientIP(ctx))
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Username:  session.User.Username,
		Role:      string(session.User.Role),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := requestcontext.ActorID(ctx)
	h.service.Logout(ctx, userID, requestcontext.ActorName(ctx))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
