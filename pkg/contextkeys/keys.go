// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that
// producers and consumers agree on one identity per value.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantdesk/pkg/contextkeys"
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains tenancy.Principal
	// Set by: auth.Middleware (pkg/auth/middleware.go)
	// Required by: rbac.Guard, every protected endpoint
	PrincipalKey Key = "principal"

	// TenantKey contains *tenancy.TenantContext
	// Set by: rbac.Guard after resolution and authorization
	// Used by: handlers, and as the "verified" declaration source when a
	// second guard runs on the same request
	TenantKey Key = "tenant_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestID middleware
	// Used by: Logger, event payloads
	RequestIDKey Key = "request_id"

	// SubjectIDKey contains the authenticated subject id string
	// Set by: auth.Middleware
	// Used by: Logger
	SubjectIDKey Key = "subject_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability.LoggingMiddleware
	// Used by: services that log with request context
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSubjectID adds the authenticated subject id to the context
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, SubjectIDKey, subjectID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSubjectID retrieves the subject id from context
func GetSubjectID(ctx context.Context) string {
	if subjectID, ok := ctx.Value(SubjectIDKey).(string); ok {
		return subjectID
	}
	return ""
}
