// Package storage defines the persistence surface of the service.
//
// Backend composes the narrow store interfaces consumed by the tenancy
// resolver, the membership directory, the conversation state machine and
// the auth middleware. Two implementations exist:
//
//   - storage/memory: mutex-guarded maps, used for local mode and tests
//   - storage/postgres: lib/pq with conditional status updates and
//     embedded migrations
package storage
