// Package membership maintains membership rows and serves the cached
// department lookups the authorizer and agent tooling depend on.
//
// Reads go through a cache.Authority. Writes delete only the enumerated
// department keys; per-subject keys such as departmentRole:{user}:{dept}
// are left to expire on their TTL.
package membership
