// Package postgres stores tenancy entities, memberships, conversations and
// principals in PostgreSQL through lib/pq.
//
// Conversation status changes are conditional updates
// (UPDATE ... WHERE id = $1 AND status = $2), so a writer that read a
// stale status gets conversations.ErrConcurrentModification instead of
// overwriting a concurrent transition.
//
// Schema migrations are embedded and applied by Migrate.
package postgres
