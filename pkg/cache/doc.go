// Package cache holds the authority cache: a read-through layer over
// derived authorization data (department roles, membership booleans,
// assignment lookups, conversation listings).
//
// Every entry lives for DefaultTTL. Keys a writer knows the identity of,
// such as department:{id}:v{n}, carry an epoch. The writer retires the
// epoch with Retire and deletes the retired keys, so a read that loaded
// before the write can only store under an epoch nobody reads again.
// Per-subject keys like isDepartmentManager:{user}:{dept} are never
// enumerated, so a membership change can take up to one TTL to show
// through them.
//
// Backends: RedisCache for shared deployments, MemoryCache for a single
// process or tests. Cache failures never fail the surrounding operation.
package cache
