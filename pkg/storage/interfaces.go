package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/auth"
	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Backend composes every persistence capability the service needs
type Backend interface {
	tenancy.EntityStore
	membership.Store
	membership.DepartmentCatalog
	conversations.Store
	auth.PrincipalStore
	HealthChecker

	Close() error
}

// Backend types
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
)

// Config for storage backend
type Config struct {
	Type string `yaml:"type"` // "memory" or "postgres"

	// SeedFile is a YAML fixture loaded into the memory backend.
	SeedFile string `yaml:"seed_file"`

	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
	// Migrate applies embedded migrations on startup.
	Migrate bool `yaml:"migrate"`
}

// DefaultConfig returns an in-memory configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  5 * time.Second,
		Migrate:          true,
	}
}
