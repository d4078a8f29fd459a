package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"panelmerge/internal/audit"
	"panelmerge/pkg/platform/httputil"
)

const defaultListLimit = 100

// Handler exposes the admin-facing audit trail listing.
type Handler struct {
	service *audit.Service
	logger  *slog.Logger
}

// New constructs the audit handler.
func New(service *audit.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the audit routes. The caller is expected to wrap them
// with admin authorization.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleList)
}

type eventResponse struct {
	ID           string          `json:"id"`
	ActorID      *int64          `json:"actor_id,omitempty"`
	ActorName    string          `json:"actor_name,omitempty"`
	Action       string          `json:"action"`
	Description  string          `json:"description"`
	ClientIP     string          `json:"client_ip,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	OldValues    json.RawMessage `json:"old_values,omitempty"`
	NewValues    json.RawMessage `json:"new_values,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMS   *int64          `json:"duration_ms,omitempty"`
}

func toResponse(e audit.Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		ActorID:      e.ActorID,
		ActorName:    e.ActorName,
		Action:       string(e.Action),
		Description:  e.Description,
		ClientIP:     e.ClientIP,
		UserAgent:    e.UserAgent,
		SessionID:    e.SessionID,
		RequestID:    e.RequestID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		OldValues:    e.OldValues,
		NewValues:    e.NewValues,
		Details:      e.Details,
		Timestamp:    e.Timestamp,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		DurationMS:   e.DurationMS,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit list failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{Limit: defaultListLimit}

	if action := q.Get("action"); action != "" {
		a := audit.Action(action)
		if !a.Valid() {
			return audit.Filter{}, errInvalidParam("action")
		}
		filter.Action = a
	}
	if raw := q.Get("actor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return audit.Filter{}, errInvalidParam("actor_id")
		}
		filter.ActorID = &id
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, errInvalidParam("since")
		}
		filter.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, errInvalidParam("until")
		}
		filter.Until = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return audit.Filter{}, errInvalidParam("limit")
		}
		filter.Limit = n
	}
	return filter, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string {
	return "invalid " + string(e) + " parameter"
}
