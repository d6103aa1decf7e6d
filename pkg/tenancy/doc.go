// Package tenancy resolves the Platform → Account → Workspace → Department →
// Team containment hierarchy for a request.
//
// # Overview
//
// Clients declare the scope they are acting in through route parameters,
// query strings and request bodies. None of those ids are trusted. The
// resolver takes the deepest declared id, walks upward reading each parent
// id from the child entity itself, and rejects any declared parent that
// disagrees. This is what stops a caller from pairing a valid workspace id
// with an unrelated account id to probe another tenant.
//
// # Precedence
//
// Declared ids are merged with a fixed precedence:
//
//	verified context > path parameter > query parameter > body field
//
// Earlier sources are authoritative; later sources only fill gaps.
//
//	d := tenancy.Sources{
//		Verified: prior.Declared(),
//		Path:     tenancy.Declared{WorkspaceID: vars["workspace_id"]},
//		Body:     tenancy.Declared{DepartmentID: body.DepartmentID},
//	}.Merge()
//
// # Roles
//
// Platform owners are never membership rows; ownership is the account's
// ownerId column. They receive the top role of every resolved level and
// skip membership lookups entirely. Regular principals get the role of
// their Active membership at each level, or nothing.
//
//	tc, err := resolver.Resolve(ctx, principal, d)
//	switch {
//	case tenancy.IsNotFound(err):      // 404
//	case tenancy.IsScopeMismatch(err): // 400
//	}
//
// # Related Packages
//
//   - pkg/rbac: evaluates required roles against a TenantContext
//   - pkg/membership: cached department lookups implementing MembershipStore
package tenancy
