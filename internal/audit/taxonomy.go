package audit

// Action is the closed enumeration of loggable event kinds. Only defined
// actions are ever written; Service.Log rejects anything else.
type Action string

const (
	// Authentication events
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
	ActionLoginFailed    Action = "login_failed"
	ActionPasswordChange Action = "password_change"

	// Panel events
	ActionPanelView     Action = "panel_view"
	ActionPanelCreate   Action = "panel_create"
	ActionPanelUpdate   Action = "panel_update"
	ActionPanelDelete   Action = "panel_delete"
	ActionPanelMerge    Action = "panel_merge"
	ActionPanelDownload Action = "panel_download"
	ActionPanelUpload   Action = "panel_upload"
	ActionGeneAdd       Action = "gene_add"
	ActionGeneRemove    Action = "gene_remove"
	ActionSearch        Action = "search"

	// Admin events
	ActionAdminAction Action = "admin_action"
	ActionUserUpdate  Action = "user_update"
	ActionDataExport  Action = "data_export"

	// Security events
	ActionSecurityViolation Action = "security_violation"
	ActionAccessDenied      Action = "access_denied"
	ActionBruteForce        Action = "brute_force_attempt"
	ActionAccountLockout    Action = "account_lockout"
	ActionSuspiciousUse     Action = "suspicious_activity"
	ActionMFAEvent          Action = "mfa_event"
	ActionAPIAccess         Action = "api_access"
	ActionFileAccess        Action = "file_access"
	ActionBreachAttempt     Action = "data_breach_attempt"
	ActionCompliance        Action = "compliance_event"
	ActionSystemSecurity    Action = "system_security"
	ActionSessionExpired    Action = "session_expired"
	ActionRateLimited       Action = "rate_limit_exceeded"
)

var validActions = map[Action]struct{}{
	ActionLogin:             {},
	ActionLogout:            {},
	ActionLoginFailed:       {},
	ActionPasswordChange:    {},
	ActionPanelView:         {},
	ActionPanelCreate:       {},
	ActionPanelUpdate:       {},
	ActionPanelDelete:       {},
	ActionPanelMerge:        {},
	ActionPanelDownload:     {},
	ActionPanelUpload:       {},
	ActionGeneAdd:           {},
	ActionGeneRemove:        {},
	ActionSearch:            {},
	ActionAdminAction:       {},
	ActionUserUpdate:        {},
	ActionDataExport:        {},
	ActionSecurityViolation: {},
	ActionAccessDenied:      {},
	ActionBruteForce:        {},
	ActionAccountLockout:    {},
	ActionSuspiciousUse:     {},
	ActionMFAEvent:          {},
	ActionAPIAccess:         {},
	ActionFileAccess:        {},
	ActionBreachAttempt:     {},
	ActionCompliance:        {},
	ActionSystemSecurity:    {},
	ActionSessionExpired:    {},
	ActionRateLimited:       {},
}

// Valid reports whether the action is a member of the taxonomy.
func (a Action) Valid() bool {
	_, ok := validActions[a]
	return ok
}

// Actions returns every taxonomy member. Order is unspecified.
func Actions() []Action {
	out := make([]Action, 0, len(validActions))
	for a := range validActions {
		out = append(out, a)
	}
	return out
}

// Severity classifies security events for downstream filtering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)
