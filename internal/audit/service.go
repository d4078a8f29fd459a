package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"panelmerge/internal/audit/metrics"
	"panelmerge/pkg/requestcontext"
)

// Service is the sole write path into the audit store. Every component that
// produces events routes through Log (directly or via a typed helper) so
// context resolution, truncation and payload serialization happen in exactly
// one place.
//
// The write path is fail-open by policy: a persistence or serialization
// failure is reported to the operator log and metrics, never to the caller.
// Logging must never crash the operation being logged.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithMetrics attaches Prometheus metrics to the write path.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the timestamp source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs the audit service.
func NewService(store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Log writes one audit event and returns the created record. A nil return
// means the event was not logged: the action was not a taxonomy member or
// the store rejected the write. Failures are reported via the operator log
// only; Log never panics and never returns an error, so callers cannot be
// broken by the audit trail.
func (s *Service) Log(ctx context.Context, entry Entry) *Event {
	if !entry.Action.Valid() {
		s.logger.ErrorContext(ctx, "audit event dropped: unknown action",
			"action", string(entry.Action),
		)
		return nil
	}

	event := s.buildEvent(ctx, entry)

	if err := s.store.Append(ctx, *event); err != nil {
		s.logger.ErrorContext(ctx, "audit event dropped: store append failed",
			"action", string(entry.Action),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.WriteFailures.Inc()
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.EventsWritten.WithLabelValues(string(event.Action)).Inc()
	}
	return event
}

// List reads events back from the store.
func (s *Service) List(ctx context.Context, filter Filter) ([]Event, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) buildEvent(ctx context.Context, entry Entry) *Event {
	event := &Event{
		ID:           uuid.NewString(),
		Action:       entry.Action,
		Description:  truncate(entry.Description, MaxDescriptionLen),
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		SessionID:    requestcontext.SessionID(ctx),
		RequestID:    s.resolveRequestID(ctx),
		UserAgent:    truncate(requestcontext.UserAgent(ctx), MaxUserAgentLen),
		Timestamp:    s.now().UTC(),
		Success:      !entry.Failed,
		ErrorMessage: truncate(entry.ErrorMessage, MaxErrorMessageLen),
	}

	// Explicit overrides win over ambient context.
	if entry.ActorID != nil {
		event.ActorID = entry.ActorID
		event.ActorName = entry.ActorName
	} else if actorID, ok := requestcontext.ActorID(ctx); ok {
		event.ActorID = &actorID
		event.ActorName = requestcontext.ActorName(ctx)
	}

	if entry.ClientIP != "" {
		event.ClientIP = entry.ClientIP
	} else {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}

	if entry.DurationMS != nil {
		ms := max(*entry.DurationMS, 0)
		event.DurationMS = &ms
	}

	// Each payload serializes in isolation: a payload that fails to marshal
	// is dropped (stored as NULL) and the event is still written.
	event.OldValues = s.marshalPayload(ctx, "old_values", entry.OldValues)
	event.NewValues = s.marshalPayload(ctx, "new_values", entry.NewValues)
	event.Details = s.marshalPayload(ctx, "details", entry.Details)

	return event
}

func (s *Service) marshalPayload(ctx context.Context, field string, payload map[string]any) []byte {
	if len(payload) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "audit payload dropped: serialization failed",
			"field", field,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.PayloadFailures.Inc()
		}
		return nil
	}
	return data
}

// resolveRequestID prefers the middleware-assigned correlation ID, falling
// back to the OTel trace ID when the context carries a valid span.
func (s *Service) resolveRequestID(ctx context.Context) string {
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		return reqID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
