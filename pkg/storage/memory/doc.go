// Package memory is an in-process storage.Backend backed by maps under a
// single RWMutex. It honors the same contracts as the Postgres backend,
// including the conditional status update, and can be seeded from YAML
// for local runs.
package memory
