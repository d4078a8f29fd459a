package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"panelmerge/internal/audit"
	"panelmerge/internal/audit/store/memory"
	"panelmerge/internal/auth"
	"panelmerge/pkg/testutil"
)

// =============================================================================
// Auth Handler Test Suite
// =============================================================================
// Justification: the login endpoint's status codes drive the security
// monitor's brute-force tracking, so the 401-on-bad-credentials contract and
// the success notification are verified here.

type recordingNotifier struct {
	mu  sync.Mutex
	ips []string
}

func (n *recordingNotifier) NoteLoginSuccess(_ context.Context, ip string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ips = append(n.ips, ip)
}

type AuthHandlerSuite struct {
	suite.Suite
	router   chi.Router
	service  *auth.Service
	notifier *recordingNotifier
	store    *memory.Store
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func (s *AuthHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.New()
	auditor, err := audit.NewService(s.store, logger)
	s.Require().NoError(err)

	users := auth.NewInMemoryUserStore()
	_, err = users.Seed("rita", "Rita Levi", "correct-horse", auth.RoleUser)
	s.Require().NoError(err)

	s.service, err = auth.NewService(users, auditor, logger, "test-signing-key", time.Hour)
	s.Require().NoError(err)

	s.notifier = &recordingNotifier{}
	s.router = chi.NewRouter()
	New(s.service, s.notifier, logger).Register(s.router)
}

func (s *AuthHandlerSuite) TestLogin() {
	s.Run("valid credentials return a token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
			"username": "rita",
			"password": "correct-horse",
		})
		req = testutil.WithClientMetadata(req, "203.0.113.5", "Mozilla/5.0")

		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.NotEmpty((*resp)["token"])
		s.Equal("rita", (*resp)["username"])
		s.Equal([]string{"203.0.113.5"}, s.notifier.ips, "success clears the failure window")
	})

	s.Run("bad credentials return 401 for the monitor", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
			"username": "rita",
			"password": "wrong",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("missing fields return 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
			"username": "rita",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("malformed body returns 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", nil)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *AuthHandlerSuite) TestLogout() {
	s.Run("authenticated logout succeeds and audits", func() {
		session, err := s.service.Login(context.Background(), "rita", "correct-horse")
		s.Require().NoError(err)

		req := testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout")
		req.Header.Set("Authorization", "Bearer "+session.Token)

		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		events, err := s.store.List(context.Background(), audit.Filter{Action: audit.ActionLogout})
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("anonymous logout is rejected", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}
