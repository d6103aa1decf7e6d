package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// Middleware authenticates requests with a bearer token
type Middleware struct {
	verifier   TokenVerifier
	principals PrincipalStore
	audit      *AuditLogger
	optional   bool // If true, allow requests without auth
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(verifier TokenVerifier, principals PrincipalStore, logger *observability.Logger) *Middleware {
	return &Middleware{
		verifier:   verifier,
		principals: principals,
		audit:      NewAuditLogger(logger),
	}
}

// Optional lets requests without an Authorization header through
// unauthenticated. A present but bad token is still rejected.
func (m *Middleware) Optional() *Middleware {
	cp := *m
	cp.optional = true
	return &cp
}

// Handler wraps an HTTP handler with authentication
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		if !present {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.audit.LogFromRequest(r, ActionAuthFailure, StatusFailure, "", errors.New("missing authorization header"))
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		id, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.audit.LogFromRequest(r, ActionAuthFailure, StatusFailure, "", err)
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if id.TokenType != TokenTypeAccess {
			m.audit.LogFromRequest(r, ActionAuthFailure, StatusDenied, id.SubjectID, errors.New("refresh token used for api call"))
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		p, err := m.principals.Principal(r.Context(), id.SubjectID)
		if err != nil {
			m.audit.LogFromRequest(r, ActionAuthFailure, StatusFailure, id.SubjectID, err)
			if errors.Is(err, ErrPrincipalNotFound) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			httputil.WriteDomainError(w, err)
			return
		}

		ctx := tenancy.WithPrincipal(r.Context(), *p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		// browsers cannot set headers on websocket upgrades
		if q := r.URL.Query().Get("access_token"); q != "" && isUpgrade(r) {
			return q, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
