package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/platinummonkey/tenantdesk/pkg/clock"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// JWTConfig configures the HS256 verifier
type JWTConfig struct {
	SigningKey string
	Issuer     string
	// AccessTTL is used by Issue; defaults to one hour.
	AccessTTL time.Duration
	Leeway    time.Duration
	Clock     clock.Clock
}

// JWTVerifier verifies and issues HS256 tokens
type JWTVerifier struct {
	key    []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	clock  clock.Clock
}

var _ TokenVerifier = (*JWTVerifier)(nil)

// NewJWTVerifier creates a JWTVerifier
func NewJWTVerifier(cfg JWTConfig) *JWTVerifier {
	v := &JWTVerifier{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
		leeway: cfg.Leeway,
		clock:  cfg.Clock,
	}
	if v.ttl == 0 {
		v.ttl = time.Hour
	}
	if v.clock == nil {
		v.clock = clock.Real()
	}
	return v
}

func invalid(reason string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", tenancy.ErrInvalidToken, reason, err)
	}
	return fmt.Errorf("%w: %s", tenancy.ErrInvalidToken, reason)
}

// Verify parses token and validates its signature, expiry and issuer
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, invalid("empty token", nil)
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return Identity{}, invalid("parse", err)
	}
	if !parsed.Valid {
		return Identity{}, invalid("signature", nil)
	}

	now := v.clock.Now()
	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(now.Add(-v.leeway), true) {
		return Identity{}, invalid("expired", nil)
	}
	if !claims.VerifyNotBefore(now.Add(v.leeway), false) {
		return Identity{}, invalid("not yet valid", nil)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Identity{}, invalid("issuer", nil)
	}
	if claims.Subject == "" {
		return Identity{}, invalid("missing subject", nil)
	}

	switch claims.TokenType {
	case TokenTypeAccess, TokenTypeRefresh:
	default:
		return Identity{}, invalid(fmt.Sprintf("unknown token type %q", claims.TokenType), nil)
	}
	return Identity{SubjectID: claims.Subject, TokenType: claims.TokenType}, nil
}

// Issue signs a token for subjectID. Used by tooling and tests.
func (v *JWTVerifier) Issue(subjectID string, tokenType TokenType) (string, error) {
	if subjectID == "" {
		return "", errors.New("issue token: empty subject")
	}
	now := v.clock.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
