// Package config loads tenantdesk configuration.
//
// Defaults are overlaid by an optional YAML file named in
// TENANTDESK_CONFIG_FILE, then by individual environment variables:
//
//	TENANTDESK_PORT="8080"
//	TENANTDESK_HEALTH_PORT="9090"
//	TENANTDESK_STORAGE_TYPE="postgres"  # memory, postgres
//	TENANTDESK_SEED_FILE="fixtures/dev.yaml"  # memory only
//	TENANTDESK_POSTGRES_URL="postgres://localhost/tenantdesk"
//	TENANTDESK_CACHE_TYPE="redis"  # memory, redis
//	TENANTDESK_CACHE_TTL="5m"
//	TENANTDESK_REDIS_URL="redis://localhost:6379/0"
//	TENANTDESK_JWT_SIGNING_KEY="..."
//	TENANTDESK_EVENTS_REDIS_FANOUT="true"
//	TENANTDESK_INVITATION_SWEEP_SCHEDULE="@hourly"
//	TENANTDESK_INVITATION_MAX_AGE="168h"
//	TENANTDESK_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTDESK_OTEL_ENABLED="true"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	storage:
//	  type: postgres
//	  postgres_url: postgres://localhost/tenantdesk
//	cache:
//	  type: redis
//	  redis_url: redis://localhost:6379/0
//	auth:
//	  signing_key: ...
package config
