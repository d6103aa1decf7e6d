// Package httputil provides HTTP helpers for JSON responses, request
// parsing, domain error mapping and common middleware.
//
// # Error mapping
//
//	conv, err := machine.SetState(ctx, id, target, scope)
//	if err != nil {
//		httputil.WriteDomainError(w, err)
//		return
//	}
//
// EntityNotFound maps to 404, ScopeMismatch to 400, InsufficientPermissions
// to a uniform 403, InvalidToken to 401, InvalidState and
// IllegalTransition to 422, ConcurrentModification to 409, anything else
// to 500 with a generic body.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
