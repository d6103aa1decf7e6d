package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/clock"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

var issuedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newVerifier(clk clock.Clock) *JWTVerifier {
	return NewJWTVerifier(JWTConfig{SigningKey: "test-secret", Issuer: "tenantdesk", AccessTTL: time.Hour, Clock: clk})
}

func sign(t *testing.T, key string, claims Claims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := newVerifier(clock.NewFake(issuedAt))

	token, err := v.Issue("user-1", TokenTypeAccess)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{SubjectID: "user-1", TokenType: TokenTypeAccess}, id)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	clk := clock.NewFake(issuedAt)
	v := newVerifier(clk)
	valid := Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "tenantdesk",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "not.a.jwt" }},
		{"wrong key", func() string { return sign(t, "other-secret", valid, jwt.SigningMethodHS256) }},
		{"wrong algorithm", func() string { return sign(t, "test-secret", valid, jwt.SigningMethodHS512) }},
		{"expired", func() string {
			c := valid
			c.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(-time.Minute))
			return sign(t, "test-secret", c, jwt.SigningMethodHS256)
		}},
		{"no expiry", func() string {
			c := valid
			c.ExpiresAt = nil
			return sign(t, "test-secret", c, jwt.SigningMethodHS256)
		}},
		{"wrong issuer", func() string {
			c := valid
			c.Issuer = "someone-else"
			return sign(t, "test-secret", c, jwt.SigningMethodHS256)
		}},
		{"missing subject", func() string {
			c := valid
			c.Subject = ""
			return sign(t, "test-secret", c, jwt.SigningMethodHS256)
		}},
		{"unknown token type", func() string {
			c := valid
			c.TokenType = "session"
			return sign(t, "test-secret", c, jwt.SigningMethodHS256)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token())
			assert.ErrorIs(t, err, tenancy.ErrInvalidToken)
		})
	}
}

func TestJWTVerifier_ExpiryFollowsClock(t *testing.T) {
	clk := clock.NewFake(issuedAt)
	v := newVerifier(clk)

	token, err := v.Issue("user-1", TokenTypeRefresh)
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, id.TokenType)

	clk.Advance(2 * time.Minute)
	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, tenancy.ErrInvalidToken)
}

func TestJWTVerifier_IssueRequiresSubject(t *testing.T) {
	_, err := newVerifier(nil).Issue("", TokenTypeAccess)
	assert.Error(t, err)
}
