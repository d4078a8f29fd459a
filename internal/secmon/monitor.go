// Package secmon is the inline security monitor: it inspects every request
// for attack signatures on the way in, watches response codes on the way
// out, and funnels every finding into the audit trail.
//
// The monitor is fail-open by policy. A fault inside a detection check must
// never block or crash a legitimate request, so every hook swallows internal
// errors (and panics) after logging them to the operator channel. Deliberate
// rejections (blocked IP, traversal, injection) are control flow, not
// errors, and short-circuit with a fixed status code.
package secmon

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"panelmerge/internal/audit"
	"panelmerge/internal/platform/config"
	"panelmerge/internal/secmon/metrics"
	"panelmerge/internal/secmon/tracker"
	"panelmerge/pkg/platform/middleware/metadata"
)

// Fixed risk scores for suspicious-activity events.
const (
	riskSuspiciousAgent = 35
	riskRateExceeded    = 40
	riskOffHours        = 30
	riskSlowRequest     = 25
)

const rateWindow = 60 * time.Second

// maxInspectedFormBody bounds how much of a form body the pre-hook will read
// for injection signatures.
const maxInspectedFormBody = 64 << 10

// Rejection is a deliberate short-circuit decision from the pre-hook.
type Rejection struct {
	Status  int
	Message string
}

// Monitor inspects requests and tracks per-client state. Construct once and
// share across the router; all state lives in the Tracker.
type Monitor struct {
	cfg     config.SecurityConfig
	auditor *audit.Service
	tracker tracker.Tracker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customizes the monitor.
type Option func(*Monitor)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mon *Monitor) {
		mon.metrics = m
	}
}

// WithClock overrides the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(mon *Monitor) {
		mon.now = now
	}
}

// New constructs a security monitor.
func New(cfg config.SecurityConfig, auditor *audit.Service, tr tracker.Tracker, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	mon := &Monitor{
		cfg:     cfg,
		auditor: auditor,
		tracker: tr,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(mon)
	}
	return mon
}

// Precheck runs the inbound inspection pipeline. A nil return means the
// request may proceed; otherwise the caller must reject it with the given
// status and must not invoke the handler.
func (m *Monitor) Precheck(r *http.Request) (rejection *Rejection) {
	defer func() {
		// A monitoring fault must never take down a legitimate request.
		if rec := recover(); rec != nil {
			m.logger.Error("security precheck panicked, failing open", "panic", rec)
			rejection = nil
		}
	}()

	ctx := r.Context()
	ip := metadata.ClientIPFromRequest(r)

	if blocked, err := m.tracker.IsBlocked(ctx, ip); err != nil {
		m.logger.Error("blocked-IP check failed, failing open", "error", err, "ip", ip)
	} else if blocked {
		m.auditor.LogSecurityViolation(ctx, "blocked_ip_access", audit.SeverityHigh, map[string]any{
			"ip":       ip,
			"endpoint": r.URL.Path,
		})
		m.countBlocked("blocked_ip")
		return &Rejection{Status: http.StatusForbidden, Message: "access denied"}
	}

	m.checkUserAgent(ctx, r, ip)

	if sig, found := m.findTraversal(r); found {
		m.auditor.LogSecurityViolation(ctx, "path_traversal", audit.SeverityHigh, map[string]any{
			"ip":        ip,
			"endpoint":  r.URL.Path,
			"signature": sig,
		})
		m.countBlocked("path_traversal")
		return &Rejection{Status: http.StatusBadRequest, Message: "invalid request"}
	}

	if sig, param, found := m.findSQLInjection(r); found {
		m.auditor.LogSecurityViolation(ctx, "sql_injection", audit.SeverityCritical, map[string]any{
			"ip":        ip,
			"endpoint":  r.URL.Path,
			"parameter": param,
			"signature": sig,
		})
		m.countBlocked("sql_injection")
		return &Rejection{Status: http.StatusBadRequest, Message: "invalid request"}
	}

	m.checkRate(ctx, ip, r.URL.Path)

	return nil
}

// Postcheck runs the outbound inspection pipeline: status-driven events and
// slow-request detection. It never alters the response.
func (m *Monitor) Postcheck(r *http.Request, status int, started time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("security postcheck panicked, failing open", "panic", rec)
		}
	}()

	ctx := r.Context()
	ip := metadata.ClientIPFromRequest(r)

	if !started.IsZero() {
		if elapsed := m.now().Sub(started); elapsed > m.cfg.SlowRequestThreshold {
			m.countSuspicious("slow_request")
			m.auditor.LogSuspiciousActivity(ctx, "slow_request", riskSlowRequest, map[string]any{
				"endpoint":    r.URL.Path,
				"method":      r.Method,
				"duration_ms": elapsed.Milliseconds(),
			})
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		m.recordAuthFailure(ctx, ip, r.URL.Path)
	case status == http.StatusForbidden:
		m.auditor.LogAccessDenied(ctx, r.Method, r.URL.Path, "forbidden response")
	case status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable:
		m.auditor.LogSystemSecurity(ctx, "server error on "+r.URL.Path, audit.SeverityError, map[string]any{
			"endpoint":    r.URL.Path,
			"method":      r.Method,
			"status_code": status,
		})
	}
}

// NoteLoginSuccess clears the failed-login window for an IP. Called by the
// auth layer after a successful authentication.
func (m *Monitor) NoteLoginSuccess(ctx context.Context, ip string) {
	if err := m.tracker.ClearFailedLogins(ctx, ip); err != nil {
		m.logger.Error("failed to clear login failures", "error", err, "ip", ip)
	}
}

// CheckOffHours flags actions outside the configured working window as
// suspicious with a moderate risk score. Returns true when flagged.
func (m *Monitor) CheckOffHours(ctx context.Context, action string) bool {
	hour := m.now().Hour()
	if hour >= m.cfg.OffHoursStart && hour <= m.cfg.OffHoursEnd {
		return false
	}
	m.countSuspicious("off_hours_activity")
	m.auditor.LogSuspiciousActivity(ctx, "off_hours_activity", riskOffHours, map[string]any{
		"action": action,
		"hour":   hour,
	})
	return true
}

// LogDataAccess emits a compliance event when access is flagged sensitive or
// exceeds the large-query threshold.
func (m *Monitor) LogDataAccess(ctx context.Context, dataType string, recordCount int, sensitive bool) {
	if !sensitive && recordCount <= m.cfg.LargeQueryThreshold {
		return
	}
	m.auditor.LogCompliance(ctx, dataType, recordCount, sensitive)
}

// -----------------------------------------------------------------------------
// Detection internals
// -----------------------------------------------------------------------------

func (m *Monitor) checkUserAgent(ctx context.Context, r *http.Request, ip string) {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		m.emitSuspiciousAgent(ctx, ip, "", "empty user agent")
		return
	}
	lowered := strings.ToLower(ua)
	if sig, found := containsAny(lowered, suspiciousAgentSignatures); found {
		m.emitSuspiciousAgent(ctx, ip, ua, "signature: "+sig)
		return
	}
	if parsed := useragent.New(ua); parsed.Bot() {
		m.emitSuspiciousAgent(ctx, ip, ua, "bot user agent")
	}
}

func (m *Monitor) emitSuspiciousAgent(ctx context.Context, ip, ua, reason string) {
	m.countSuspicious("suspicious_user_agent")
	m.auditor.LogSuspiciousActivity(ctx, "suspicious_user_agent", riskSuspiciousAgent, map[string]any{
		"ip":         ip,
		"user_agent": ua,
		"reason":     reason,
	})
}

func (m *Monitor) findTraversal(r *http.Request) (string, bool) {
	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	if sig, found := containsAny(target, pathTraversalSignatures); found {
		return sig, true
	}
	// Decoded form catches double-encoded probes the raw string hides.
	if decoded, err := url.QueryUnescape(target); err == nil {
		if sig, found := containsAny(strings.ToLower(decoded), pathTraversalSignatures); found {
			return sig, true
		}
	}
	return "", false
}

func (m *Monitor) findSQLInjection(r *http.Request) (sig, param string, found bool) {
	for key, values := range r.URL.Query() {
		for _, v := range values {
			if s, ok := containsAny(strings.ToLower(v), sqlInjectionSignatures); ok {
				return s, key, true
			}
		}
	}

	for key, values := range inspectForm(r) {
		for _, v := range values {
			if s, ok := containsAny(strings.ToLower(v), sqlInjectionSignatures); ok {
				return s, key, true
			}
		}
	}
	return "", "", false
}

func (m *Monitor) checkRate(ctx context.Context, ip, endpoint string) {
	count, err := m.tracker.RecordRequest(ctx, ip, rateWindow)
	if err != nil {
		m.logger.Error("rate tracking failed, failing open", "error", err, "ip", ip)
		return
	}
	if count > m.cfg.MaxRequestsPerMinute {
		m.countSuspicious("rate_limit_exceeded")
		m.auditor.LogRateLimited(ctx, ip, count)
		m.auditor.LogSuspiciousActivity(ctx, "rate_limit_exceeded", riskRateExceeded, map[string]any{
			"ip":                  ip,
			"endpoint":            endpoint,
			"requests_per_minute": count,
		})
	}
}

func (m *Monitor) recordAuthFailure(ctx context.Context, ip, endpoint string) {
	count, err := m.tracker.RecordFailedLogin(ctx, ip, m.cfg.FailedLoginWindow)
	if err != nil {
		m.logger.Error("failed-login tracking failed", "error", err, "ip", ip)
		return
	}
	if count < m.cfg.MaxFailedLogins {
		return
	}

	// Emit only on the crossing: once blocked, the pre-hook short-circuits
	// further requests so the event fires once per episode.
	blocked, err := m.tracker.IsBlocked(ctx, ip)
	if err != nil {
		m.logger.Error("blocked-IP check failed", "error", err, "ip", ip)
		return
	}
	if blocked {
		return
	}

	m.auditor.LogBruteForce(ctx, ip, count, m.cfg.FailedLoginWindow.String())
	if err := m.tracker.Block(ctx, ip, m.cfg.BlockDuration); err != nil {
		m.logger.Error("failed to block IP", "error", err, "ip", ip)
		return
	}
	if m.metrics != nil {
		m.metrics.BruteForceBlocks.Inc()
	}
	m.logger.Warn("IP blocked for brute-force login attempts",
		"ip", ip,
		"failed_attempts", count,
		"endpoint", endpoint,
	)
}

func (m *Monitor) countBlocked(reason string) {
	if m.metrics != nil {
		m.metrics.RequestsBlocked.WithLabelValues(reason).Inc()
		m.metrics.ViolationsDetected.WithLabelValues(reason).Inc()
	}
}

func (m *Monitor) countSuspicious(kind string) {
	if m.metrics != nil {
		m.metrics.SuspiciousActivity.WithLabelValues(kind).Inc()
	}
}
