// Package auth turns a bearer token into a tenancy.Principal.
//
// Tokens are HS256 JWTs carrying the subject id in "sub" and a
// "token_type" claim; only access tokens authenticate API calls. The
// subject is then loaded from a PrincipalStore, which decides whether the
// caller is a platform owner.
//
//	verifier := auth.NewJWTVerifier(auth.JWTConfig{SigningKey: key, Issuer: "tenantdesk"})
//	mw := auth.NewMiddleware(verifier, principals, logger)
//	router.Use(mw.Handler)
//
// Every verification failure surfaces as tenancy.ErrInvalidToken.
package auth
