package secmon

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelmerge/internal/audit"
	"panelmerge/internal/audit/store/memory"
	"panelmerge/internal/platform/config"
	"panelmerge/internal/secmon/tracker"
)

// =============================================================================
// Middleware Tests
// =============================================================================
// Justification: the middleware is the only integration point between the
// monitor and the router. Tests verify rejection short-circuiting, status
// capture for the post-hook, and the full brute-force lockout flow.

func newTestStack(t *testing.T, cfg config.SecurityConfig) (*Monitor, *memory.Store) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor, err := audit.NewService(store, logger)
	require.NoError(t, err)
	mon := New(cfg, auditor, tracker.NewMemory(), logger)
	return mon, store
}

func defaultTestConfig() config.SecurityConfig {
	return config.SecurityConfig{
		MaxFailedLogins:      5,
		FailedLoginWindow:    300 * time.Second,
		MaxRequestsPerMinute: 100,
		SlowRequestThreshold: 10 * time.Second,
		BlockDuration:        time.Hour,
		LargeQueryThreshold:  1000,
		OffHoursStart:        6,
		OffHoursEnd:          22,
	}
}

func doRequest(handler http.Handler, method, target, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = ip + ":50000"
	req.Header.Set("User-Agent", browserUA)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func countEvents(t *testing.T, store *memory.Store, action audit.Action) int {
	t.Helper()
	events, err := store.List(context.Background(), audit.Filter{Action: action})
	require.NoError(t, err)
	return len(events)
}

func TestMiddlewarePassesCleanRequests(t *testing.T) {
	mon, store := newTestStack(t, defaultTestConfig())

	var handlerCalled bool
	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	rr := doRequest(handler, http.MethodGet, "/panels", "203.0.113.1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, handlerCalled)
	assert.Equal(t, 0, store.Len())
}

func TestMiddlewareRejectsBeforeHandler(t *testing.T) {
	mon, store := newTestStack(t, defaultTestConfig())

	var handlerCalled bool
	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	rr := doRequest(handler, http.MethodGet, "/panels/search?q=%27+OR+1%3D1", "203.0.113.1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, handlerCalled, "rejected requests never reach the handler")
	assert.Equal(t, 1, countEvents(t, store, audit.ActionSecurityViolation))
}

func TestMiddlewareDefaultStatusIsOK(t *testing.T) {
	mon, store := newTestStack(t, defaultTestConfig())

	// Handler writes a body without calling WriteHeader.
	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	rr := doRequest(handler, http.MethodGet, "/panels", "203.0.113.1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, store.Len(), "implicit 200 triggers no status-driven events")
}

func TestMiddlewareBruteForceLockout(t *testing.T) {
	mon, store := newTestStack(t, defaultTestConfig())

	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	// Five failed logins from one IP cross the threshold.
	for i := 0; i < 5; i++ {
		rr := doRequest(handler, http.MethodPost, "/auth/login", "203.0.113.9")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	assert.Equal(t, 1, countEvents(t, store, audit.ActionBruteForce))

	// The sixth request is rejected before the handler runs.
	rr := doRequest(handler, http.MethodPost, "/auth/login", "203.0.113.9")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 1, countEvents(t, store, audit.ActionBruteForce), "no second event while blocked")

	// Other IPs are unaffected.
	rr = doRequest(handler, http.MethodPost, "/auth/login", "203.0.113.10")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareAccessDeniedRecorded(t *testing.T) {
	mon, store := newTestStack(t, defaultTestConfig())

	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	doRequest(handler, http.MethodGet, "/audit/events", "203.0.113.1")
	assert.Equal(t, 1, countEvents(t, store, audit.ActionAccessDenied))
}

func TestMiddlewareRateCeilingLogsOnly(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MaxRequestsPerMinute = 3
	mon, store := newTestStack(t, cfg)

	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rr := doRequest(handler, http.MethodGet, "/panels", "203.0.113.2")
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, 0, countEvents(t, store, audit.ActionRateLimited))

	rr := doRequest(handler, http.MethodGet, "/panels", "203.0.113.2")
	assert.Equal(t, http.StatusOK, rr.Code, "rate breaches are observed, not blocked")
	assert.Equal(t, 1, countEvents(t, store, audit.ActionRateLimited))
}

func TestMiddlewareFormBodyRestored(t *testing.T) {
	mon, _ := newTestStack(t, defaultTestConfig())

	var seen []byte
	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		seen, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))

	postForm := func(body string, chunked bool) {
		t.Helper()
		seen = nil
		req := httptest.NewRequest(http.MethodPost, "/panels", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", browserUA)
		req.RemoteAddr = "203.0.113.3:50000"
		if chunked {
			req.ContentLength = -1
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	t.Run("inspected body reaches the handler intact", func(t *testing.T) {
		postForm("name=cardiac&desc=ok", false)
		assert.Equal(t, "name=cardiac&desc=ok", string(seen))
	})

	t.Run("chunked body larger than the inspection bound is not truncated", func(t *testing.T) {
		body := "blob=" + strings.Repeat("a", maxInspectedFormBody+4096)
		postForm(body, true)
		assert.Len(t, seen, len(body), "handler sees the full body, not the inspected prefix")
	})
}

func TestMiddlewareForwardedForResolution(t *testing.T) {
	mon, store := newTestStack(t, defaultTestConfig())

	handler := mon.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("User-Agent", browserUA)
		req.Header.Set("X-Forwarded-For", "198.51.100.50, 10.0.0.1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}

	events, err := store.List(context.Background(), audit.Filter{Action: audit.ActionBruteForce})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "198.51.100.50", events[0].ClientIP, "tracks the forwarded client, not the proxy")
}
