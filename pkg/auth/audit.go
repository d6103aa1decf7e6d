package auth

import (
	"net/http"

	"github.com/platinummonkey/tenantdesk/pkg/contextkeys"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
)

// ActionAuthFailure tags rejected authentication attempts
const ActionAuthFailure = "auth.failure"

// Status constants
const (
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditLogger records authentication events as structured log lines
type AuditLogger struct {
	logger *observability.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	if logger == nil {
		logger = observability.Nop()
	}
	return &AuditLogger{logger: logger.WithField("component", "audit")}
}

// LogFromRequest logs an audit event for r
func (al *AuditLogger) LogFromRequest(r *http.Request, action, status, subjectID string, err error) {
	fields := map[string]interface{}{
		"action":     action,
		"status":     status,
		"ip_address": getClientIP(r),
		"user_agent": r.UserAgent(),
		"path":       r.URL.Path,
	}
	if subjectID != "" {
		fields["subject_id"] = subjectID
	}
	l := al.logger
	if _, ok := r.Context().Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		l = observability.FromContext(r.Context())
	}
	l = l.WithFields(fields)
	if err != nil {
		l.WithError(err).Warn("audit")
		return
	}
	l.Info("audit")
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
