package audit

import (
	"context"
	"fmt"
)

// Typed helpers, one per taxonomy member. Each one only shapes the
// description and the structured details payload; all writing goes through
// Log so the helpers can never diverge from the core policy.

// LogLogin records a successful authentication.
func (s *Service) LogLogin(ctx context.Context, userID int64, username string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionLogin,
		Description: fmt.Sprintf("user %q logged in", username),
		ActorID:     &userID,
		ActorName:   username,
	})
}

// LogLogout records the end of a session.
func (s *Service) LogLogout(ctx context.Context, userID int64, username string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionLogout,
		Description: fmt.Sprintf("user %q logged out", username),
		ActorID:     &userID,
		ActorName:   username,
	})
}

// LogLoginFailed records a failed authentication attempt. The attempted
// username goes into details, not the actor fields: the actor is unproven.
func (s *Service) LogLoginFailed(ctx context.Context, username, reason string) *Event {
	return s.Log(ctx, Entry{
		Action:       ActionLoginFailed,
		Description:  fmt.Sprintf("failed login for %q", username),
		Failed:       true,
		ErrorMessage: reason,
		Details: map[string]any{
			"username": username,
			"reason":   reason,
		},
	})
}

// LogPasswordChange records a credential update.
func (s *Service) LogPasswordChange(ctx context.Context, userID int64, username string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionPasswordChange,
		Description: fmt.Sprintf("password changed for %q", username),
		ActorID:     &userID,
		ActorName:   username,
	})
}

// LogPanelChange records a panel mutation with before/after snapshots.
func (s *Service) LogPanelChange(ctx context.Context, action Action, panelID string, oldValues, newValues map[string]any) *Event {
	return s.Log(ctx, Entry{
		Action:       action,
		Description:  fmt.Sprintf("%s on panel %s", action, panelID),
		ResourceType: "panel",
		ResourceID:   panelID,
		OldValues:    oldValues,
		NewValues:    newValues,
	})
}

// LogSearch records a panel/gene search.
func (s *Service) LogSearch(ctx context.Context, query string, results int) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionSearch,
		Description: fmt.Sprintf("search for %q", query),
		Details: map[string]any{
			"query":        query,
			"result_count": results,
		},
	})
}

// LogAdminAction records an administrative operation on a target resource.
func (s *Service) LogAdminAction(ctx context.Context, description, resourceType, resourceID string, details map[string]any) *Event {
	return s.Log(ctx, Entry{
		Action:       ActionAdminAction,
		Description:  description,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
}

// LogDataExport records a bulk export of user-visible data.
func (s *Service) LogDataExport(ctx context.Context, dataType string, recordCount int) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionDataExport,
		Description: fmt.Sprintf("exported %d %s records", recordCount, dataType),
		Details: map[string]any{
			"data_type":    dataType,
			"record_count": recordCount,
		},
	})
}

// -----------------------------------------------------------------------------
// Security helpers
// -----------------------------------------------------------------------------

// LogSecurityViolation records a detected attack signature.
func (s *Service) LogSecurityViolation(ctx context.Context, violationType string, severity Severity, details map[string]any) *Event {
	merged := map[string]any{
		"violation_type": violationType,
		"severity":       string(severity),
	}
	for k, v := range details {
		merged[k] = v
	}
	return s.Log(ctx, Entry{
		Action:      ActionSecurityViolation,
		Description: fmt.Sprintf("security violation: %s", violationType),
		Failed:      true,
		Details:     merged,
	})
}

// LogSuspiciousActivity records behavior that is anomalous but not blocked.
func (s *Service) LogSuspiciousActivity(ctx context.Context, activityType string, riskScore int, details map[string]any) *Event {
	merged := map[string]any{
		"activity_type": activityType,
		"risk_score":    riskScore,
	}
	for k, v := range details {
		merged[k] = v
	}
	return s.Log(ctx, Entry{
		Action:      ActionSuspiciousUse,
		Description: fmt.Sprintf("suspicious activity: %s", activityType),
		Details:     merged,
	})
}

// LogBruteForce records a brute-force detection for an IP.
func (s *Service) LogBruteForce(ctx context.Context, ip string, attempts int, window string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionBruteForce,
		Description: fmt.Sprintf("brute force detected from %s: %d failed logins in %s", ip, attempts, window),
		Failed:      true,
		ClientIP:    ip,
		Details: map[string]any{
			"failed_attempts": attempts,
			"window":          window,
		},
	})
}

// LogAccountLockout records an account being locked.
func (s *Service) LogAccountLockout(ctx context.Context, username, reason string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionAccountLockout,
		Description: fmt.Sprintf("account %q locked: %s", username, reason),
		Failed:      true,
		Details: map[string]any{
			"username": username,
			"reason":   reason,
		},
	})
}

// LogAccessDenied records an authorization failure for an endpoint.
func (s *Service) LogAccessDenied(ctx context.Context, method, endpoint, reason string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionAccessDenied,
		Description: fmt.Sprintf("access denied: %s %s", method, endpoint),
		Failed:      true,
		Details: map[string]any{
			"method":   method,
			"endpoint": endpoint,
			"reason":   reason,
		},
	})
}

// LogMFA records a multi-factor authentication event.
func (s *Service) LogMFA(ctx context.Context, eventType string, success bool) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionMFAEvent,
		Description: fmt.Sprintf("mfa %s", eventType),
		Failed:      !success,
		Details: map[string]any{
			"event_type": eventType,
		},
	})
}

// LogAPIAccess records programmatic API usage.
func (s *Service) LogAPIAccess(ctx context.Context, method, endpoint string, statusCode int) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionAPIAccess,
		Description: fmt.Sprintf("api access: %s %s -> %d", method, endpoint, statusCode),
		Details: map[string]any{
			"method":      method,
			"endpoint":    endpoint,
			"status_code": statusCode,
		},
	})
}

// LogFileAccess records a file upload/download decision.
func (s *Service) LogFileAccess(ctx context.Context, filename, operation string, allowed bool, reason string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionFileAccess,
		Description: fmt.Sprintf("file %s: %s", operation, filename),
		Failed:      !allowed,
		Details: map[string]any{
			"filename":  filename,
			"operation": operation,
			"allowed":   allowed,
			"reason":    reason,
		},
	})
}

// LogBreachAttempt records an attempted data exfiltration or injection that
// reached the data layer.
func (s *Service) LogBreachAttempt(ctx context.Context, attemptType string, details map[string]any) *Event {
	merged := map[string]any{
		"attempt_type": attemptType,
		"severity":     string(SeverityCritical),
	}
	for k, v := range details {
		merged[k] = v
	}
	return s.Log(ctx, Entry{
		Action:      ActionBreachAttempt,
		Description: fmt.Sprintf("data breach attempt: %s", attemptType),
		Failed:      true,
		Details:     merged,
	})
}

// LogCompliance records data access with regulatory significance.
func (s *Service) LogCompliance(ctx context.Context, dataType string, recordCount int, sensitive bool) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionCompliance,
		Description: fmt.Sprintf("data access: %d %s records", recordCount, dataType),
		Details: map[string]any{
			"data_type":    dataType,
			"record_count": recordCount,
			"sensitive":    sensitive,
		},
	})
}

// LogSystemSecurity records a security-relevant system condition.
func (s *Service) LogSystemSecurity(ctx context.Context, description string, severity Severity, details map[string]any) *Event {
	merged := map[string]any{
		"severity": string(severity),
	}
	for k, v := range details {
		merged[k] = v
	}
	return s.Log(ctx, Entry{
		Action:      ActionSystemSecurity,
		Description: description,
		Failed:      severity == SeverityError || severity == SeverityCritical,
		Details:     merged,
	})
}

// LogSessionExpired records an expired session being rejected.
func (s *Service) LogSessionExpired(ctx context.Context, sessionID string) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionSessionExpired,
		Description: "session expired",
		Details: map[string]any{
			"session_id": sessionID,
		},
	})
}

// LogRateLimited records a per-IP rate ceiling breach.
func (s *Service) LogRateLimited(ctx context.Context, ip string, requests int) *Event {
	return s.Log(ctx, Entry{
		Action:      ActionRateLimited,
		Description: fmt.Sprintf("rate limit exceeded from %s: %d requests/minute", ip, requests),
		ClientIP:    ip,
		Details: map[string]any{
			"requests_per_minute": requests,
		},
	})
}
