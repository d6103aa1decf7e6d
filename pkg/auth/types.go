package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v4"

	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ErrPrincipalNotFound means the token's subject has no user record
var ErrPrincipalNotFound = errors.New("principal not found")

// Identity is what a verified token asserts
type Identity struct {
	SubjectID string
	TokenType TokenType
}

// Claims is the JWT claim set
type Claims struct {
	TokenType TokenType `json:"token_type"`
	Email     string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks a raw token. Failures match tenancy.ErrInvalidToken.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// PrincipalStore loads the principal behind a subject id
type PrincipalStore interface {
	Principal(ctx context.Context, subjectID string) (*tenancy.Principal, error)
}
