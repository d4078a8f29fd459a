package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace"

	"panelmerge/pkg/requestcontext"
)

// =============================================================================
// Audit Service Test Suite
// =============================================================================
// Justification for unit tests: the audit service is the single write path for
// the whole trail. Tests verify taxonomy enforcement, context resolution,
// truncation, payload isolation, and the fail-open contract on store failures.

type fakeStore struct {
	events    []Event
	appendErr error
}

func (f *fakeStore) Append(_ context.Context, event Event) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) List(_ context.Context, _ Filter) ([]Event, error) {
	return f.events, nil
}

type AuditServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *fakeStore
	service *Service
	now     time.Time
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &fakeStore{}
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = NewService(s.store, logger, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
}

func (s *AuditServiceSuite) lastEvent() Event {
	s.Require().NotEmpty(s.store.events)
	return s.store.events[len(s.store.events)-1]
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *AuditServiceSuite) TestNewService() {
	s.Run("nil store returns error", func() {
		_, err := NewService(nil, nil)
		s.Error(err)
	})

	s.Run("nil logger falls back to default", func() {
		svc, err := NewService(&fakeStore{}, nil)
		s.NoError(err)
		s.NotNil(svc)
	})
}

// =============================================================================
// Core Write Path
// =============================================================================

func (s *AuditServiceSuite) TestLog() {
	s.Run("valid entry writes one event", func() {
		event := s.service.Log(s.ctx, Entry{
			Action:      ActionPanelCreate,
			Description: "created a panel",
		})
		s.Require().NotNil(event)
		s.Len(s.store.events, 1)
		s.Equal(ActionPanelCreate, event.Action)
		s.NotEmpty(event.ID)
		s.Equal(s.now, event.Timestamp)
	})

	s.Run("unknown action is rejected without panic", func() {
		s.store.events = nil
		event := s.service.Log(s.ctx, Entry{Action: Action("made_up")})
		s.Nil(event)
		s.Empty(s.store.events)
	})

	s.Run("zero entry records success", func() {
		event := s.service.Log(s.ctx, Entry{Action: ActionSearch})
		s.Require().NotNil(event)
		s.True(event.Success)
	})

	s.Run("failed entry records failure with message", func() {
		event := s.service.Log(s.ctx, Entry{
			Action:       ActionLoginFailed,
			Failed:       true,
			ErrorMessage: "bad password",
		})
		s.Require().NotNil(event)
		s.False(event.Success)
		s.Equal("bad password", event.ErrorMessage)
	})

	s.Run("store failure returns nil and never panics", func() {
		s.store.appendErr = errors.New("connection refused")
		event := s.service.Log(s.ctx, Entry{Action: ActionLogin})
		s.Nil(event)
		s.store.appendErr = nil
	})
}

func (s *AuditServiceSuite) TestTruncation() {
	s.Run("description is cut at the limit", func() {
		long := strings.Repeat("a", MaxDescriptionLen+100)
		event := s.service.Log(s.ctx, Entry{Action: ActionSearch, Description: long})
		s.Require().NotNil(event)
		s.Len(event.Description, MaxDescriptionLen)
	})

	s.Run("description at the limit passes unchanged", func() {
		exact := strings.Repeat("b", MaxDescriptionLen)
		event := s.service.Log(s.ctx, Entry{Action: ActionSearch, Description: exact})
		s.Require().NotNil(event)
		s.Equal(exact, event.Description)
	})

	s.Run("error message is cut at the limit", func() {
		long := strings.Repeat("e", MaxErrorMessageLen*2)
		event := s.service.Log(s.ctx, Entry{Action: ActionLoginFailed, Failed: true, ErrorMessage: long})
		s.Require().NotNil(event)
		s.Len(event.ErrorMessage, MaxErrorMessageLen)
	})

	s.Run("user agent from context is cut at the limit", func() {
		ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.1", strings.Repeat("u", 300))
		event := s.service.Log(ctx, Entry{Action: ActionSearch})
		s.Require().NotNil(event)
		s.Len(event.UserAgent, MaxUserAgentLen)
	})

	s.Run("cut never splits a multibyte rune", func() {
		// A user agent crafted so the byte limit lands inside a rune must
		// still truncate to valid UTF-8, or the store could reject the event.
		ua := strings.Repeat("a", MaxUserAgentLen-1) + "é" + strings.Repeat("x", 50)
		ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.1", ua)
		event := s.service.Log(ctx, Entry{Action: ActionSearch})
		s.Require().NotNil(event)
		s.True(utf8.ValidString(event.UserAgent))
		s.Equal(strings.Repeat("a", MaxUserAgentLen-1), event.UserAgent)
	})

	s.Run("multibyte description truncates to valid UTF-8", func() {
		long := strings.Repeat("é", MaxDescriptionLen)
		event := s.service.Log(s.ctx, Entry{Action: ActionSearch, Description: long})
		s.Require().NotNil(event)
		s.True(utf8.ValidString(event.Description))
		s.LessOrEqual(len(event.Description), MaxDescriptionLen)
	})
}

// =============================================================================
// Context Resolution
// =============================================================================

func (s *AuditServiceSuite) TestContextResolution() {
	s.Run("actor and client metadata come from context", func() {
		ctx := requestcontext.WithActor(s.ctx, 42, "rita")
		ctx = requestcontext.WithClientMetadata(ctx, "192.168.1.9", "Mozilla/5.0")
		ctx = requestcontext.WithSessionID(ctx, "sess-1")
		ctx = requestcontext.WithRequestID(ctx, "req-1")

		event := s.service.Log(ctx, Entry{Action: ActionPanelView})
		s.Require().NotNil(event)
		s.Require().NotNil(event.ActorID)
		s.Equal(int64(42), *event.ActorID)
		s.Equal("rita", event.ActorName)
		s.Equal("192.168.1.9", event.ClientIP)
		s.Equal("Mozilla/5.0", event.UserAgent)
		s.Equal("sess-1", event.SessionID)
		s.Equal("req-1", event.RequestID)
	})

	s.Run("explicit actor override wins over context", func() {
		ctx := requestcontext.WithActor(s.ctx, 42, "rita")
		override := int64(7)
		event := s.service.Log(ctx, Entry{
			Action:    ActionAdminAction,
			ActorID:   &override,
			ActorName: "system",
		})
		s.Require().NotNil(event)
		s.Require().NotNil(event.ActorID)
		s.Equal(int64(7), *event.ActorID)
		s.Equal("system", event.ActorName)
	})

	s.Run("explicit client IP override wins over context", func() {
		ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.1", "")
		event := s.service.Log(ctx, Entry{Action: ActionRateLimited, ClientIP: "203.0.113.7"})
		s.Require().NotNil(event)
		s.Equal("203.0.113.7", event.ClientIP)
	})

	s.Run("anonymous context leaves actor unset", func() {
		event := s.service.Log(s.ctx, Entry{Action: ActionSearch})
		s.Require().NotNil(event)
		s.Nil(event.ActorID)
		s.Empty(event.ActorName)
	})

	s.Run("request ID falls back to the trace ID", func() {
		traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: traceID,
			SpanID:  trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		})
		ctx := trace.ContextWithSpanContext(s.ctx, sc)

		event := s.service.Log(ctx, Entry{Action: ActionAPIAccess})
		s.Require().NotNil(event)
		s.Equal(traceID.String(), event.RequestID)
	})
}

// =============================================================================
// Payload Serialization
// =============================================================================

func (s *AuditServiceSuite) TestPayloads() {
	s.Run("payloads round-trip as JSON", func() {
		event := s.service.Log(s.ctx, Entry{
			Action:    ActionPanelUpdate,
			OldValues: map[string]any{"version": 1},
			NewValues: map[string]any{"version": 2},
			Details:   map[string]any{"reason": "rename"},
		})
		s.Require().NotNil(event)
		s.JSONEq(`{"version":1}`, string(event.OldValues))
		s.JSONEq(`{"version":2}`, string(event.NewValues))
		s.JSONEq(`{"reason":"rename"}`, string(event.Details))
	})

	s.Run("empty payloads are stored as nil", func() {
		event := s.service.Log(s.ctx, Entry{Action: ActionPanelView})
		s.Require().NotNil(event)
		s.Nil(event.OldValues)
		s.Nil(event.NewValues)
		s.Nil(event.Details)
	})

	s.Run("unserializable payload is dropped in isolation", func() {
		event := s.service.Log(s.ctx, Entry{
			Action:    ActionPanelUpdate,
			OldValues: map[string]any{"ch": make(chan int)},
			NewValues: map[string]any{"version": 2},
		})
		s.Require().NotNil(event, "event must still be written")
		s.Nil(event.OldValues)
		s.JSONEq(`{"version":2}`, string(event.NewValues))
	})
}

func (s *AuditServiceSuite) TestDuration() {
	s.Run("negative duration is clamped to zero", func() {
		neg := int64(-5)
		event := s.service.Log(s.ctx, Entry{Action: ActionPanelMerge, DurationMS: &neg})
		s.Require().NotNil(event)
		s.Require().NotNil(event.DurationMS)
		s.Equal(int64(0), *event.DurationMS)
	})

	s.Run("unset duration stays nil", func() {
		event := s.service.Log(s.ctx, Entry{Action: ActionPanelMerge})
		s.Require().NotNil(event)
		s.Nil(event.DurationMS)
	})
}

// =============================================================================
// Typed Helpers
// =============================================================================
// Justification: every helper must produce exactly one valid record; a helper
// with a typo'd action would silently drop events in production.

func (s *AuditServiceSuite) TestHelpersWriteOneValidEvent() {
	ctx := requestcontext.WithClientMetadata(s.ctx, "10.1.1.1", "Mozilla/5.0")

	calls := []struct {
		name   string
		action Action
		log    func() *Event
	}{
		{"login", ActionLogin, func() *Event { return s.service.LogLogin(ctx, 1, "rita") }},
		{"logout", ActionLogout, func() *Event { return s.service.LogLogout(ctx, 1, "rita") }},
		{"login failed", ActionLoginFailed, func() *Event { return s.service.LogLoginFailed(ctx, "rita", "bad password") }},
		{"password change", ActionPasswordChange, func() *Event { return s.service.LogPasswordChange(ctx, 1, "rita") }},
		{"panel change", ActionPanelUpdate, func() *Event {
			return s.service.LogPanelChange(ctx, ActionPanelUpdate, "p1", map[string]any{"v": 1}, map[string]any{"v": 2})
		}},
		{"search", ActionSearch, func() *Event { return s.service.LogSearch(ctx, "BRCA1", 3) }},
		{"admin action", ActionAdminAction, func() *Event { return s.service.LogAdminAction(ctx, "purge", "panel", "p1", nil) }},
		{"data export", ActionDataExport, func() *Event { return s.service.LogDataExport(ctx, "panel", 12) }},
		{"security violation", ActionSecurityViolation, func() *Event {
			return s.service.LogSecurityViolation(ctx, "sql_injection", SeverityCritical, nil)
		}},
		{"suspicious activity", ActionSuspiciousUse, func() *Event {
			return s.service.LogSuspiciousActivity(ctx, "slow_request", 25, nil)
		}},
		{"brute force", ActionBruteForce, func() *Event { return s.service.LogBruteForce(ctx, "10.1.1.1", 5, "5m0s") }},
		{"account lockout", ActionAccountLockout, func() *Event { return s.service.LogAccountLockout(ctx, "rita", "too many failures") }},
		{"access denied", ActionAccessDenied, func() *Event { return s.service.LogAccessDenied(ctx, "GET", "/audit/events", "not admin") }},
		{"mfa", ActionMFAEvent, func() *Event { return s.service.LogMFA(ctx, "challenge", true) }},
		{"api access", ActionAPIAccess, func() *Event { return s.service.LogAPIAccess(ctx, "GET", "/panels", 200) }},
		{"file access", ActionFileAccess, func() *Event { return s.service.LogFileAccess(ctx, "genes.csv", "upload", true, "") }},
		{"breach attempt", ActionBreachAttempt, func() *Event { return s.service.LogBreachAttempt(ctx, "exfiltration", nil) }},
		{"compliance", ActionCompliance, func() *Event { return s.service.LogCompliance(ctx, "panel", 1500, false) }},
		{"system security", ActionSystemSecurity, func() *Event {
			return s.service.LogSystemSecurity(ctx, "server error", SeverityError, nil)
		}},
		{"session expired", ActionSessionExpired, func() *Event { return s.service.LogSessionExpired(ctx, "sess-9") }},
		{"rate limited", ActionRateLimited, func() *Event { return s.service.LogRateLimited(ctx, "10.1.1.1", 140) }},
	}

	for _, tc := range calls {
		s.Run(tc.name, func() {
			before := len(s.store.events)
			event := tc.log()
			s.Require().NotNil(event)
			s.Equal(before+1, len(s.store.events))
			s.Equal(tc.action, event.Action)
			s.True(event.Action.Valid())
			s.NotEmpty(event.Description)
		})
	}
}

func (s *AuditServiceSuite) TestHelperFailureSemantics() {
	s.Run("login failed is marked failed", func() {
		event := s.service.LogLoginFailed(s.ctx, "rita", "bad password")
		s.Require().NotNil(event)
		s.False(event.Success)
	})

	s.Run("security violation is marked failed", func() {
		event := s.service.LogSecurityViolation(s.ctx, "path_traversal", SeverityHigh, nil)
		s.Require().NotNil(event)
		s.False(event.Success)
	})

	s.Run("suspicious activity is informational", func() {
		event := s.service.LogSuspiciousActivity(s.ctx, "off_hours_activity", 30, nil)
		s.Require().NotNil(event)
		s.True(event.Success)
	})

	s.Run("system security warning stays successful", func() {
		event := s.service.LogSystemSecurity(s.ctx, "cert expiring", SeverityWarning, nil)
		s.Require().NotNil(event)
		s.True(event.Success)
	})
}
