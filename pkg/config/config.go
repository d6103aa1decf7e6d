package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/storage"
)

const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	// Authority cache configuration
	Cache CacheConfig `yaml:"cache"`

	Auth AuthConfig `yaml:"auth"`

	// Realtime events configuration
	Events EventsConfig `yaml:"events"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	Sweeps SweepConfig `yaml:"sweeps"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// CacheConfig selects the authority cache backend
type CacheConfig struct {
	Type            string        `yaml:"type"` // "memory" or "redis"
	TTL             time.Duration `yaml:"ttl"`
	MemorySize      int           `yaml:"memory_size"`
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RedisPoolSize   int           `yaml:"redis_pool_size"`
	RedisMaxRetries int           `yaml:"redis_max_retries"`
	KeyPrefix       string        `yaml:"key_prefix"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	Leeway     time.Duration `yaml:"leeway"`
}

// EventsConfig controls websocket fan-out. With RedisFanout set, events
// are relayed between instances over the cache's redis.
type EventsConfig struct {
	WebsocketEnabled bool   `yaml:"websocket_enabled"`
	RedisFanout      bool   `yaml:"redis_fanout"`
	ChannelPrefix    string `yaml:"channel_prefix"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"-"`
	Level    string                 `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// SweepConfig schedules the expired invitation sweep
type SweepConfig struct {
	InvitationSchedule string        `yaml:"invitation_schedule"`
	InvitationMaxAge   time.Duration `yaml:"invitation_max_age"`
}

// RateLimitConfig caps per-principal API traffic and per-workspace inbound
// ingestion. Distributed shares the counters through the redis cache.
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	Distributed      bool `yaml:"distributed"`
	PerMinute        int  `yaml:"per_minute"`
	Burst            int  `yaml:"burst"`
	InboundPerMinute int  `yaml:"inbound_per_minute"`
	InboundBurst     int  `yaml:"inbound_burst"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Cache: CacheConfig{
			Type:       CacheTypeMemory,
			TTL:        5 * time.Minute,
			MemorySize: 10000,
			KeyPrefix:  "tenantdesk:",
		},
		Auth: AuthConfig{
			Issuer:    "tenantdesk",
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
		},
		Events: EventsConfig{
			WebsocketEnabled: true,
			ChannelPrefix:    "tenantdesk:events:",
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			Level:              "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tenantdesk",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
		Sweeps: SweepConfig{
			InvitationSchedule: "@hourly",
			InvitationMaxAge:   7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			PerMinute:        1000,
			Burst:            50,
			InboundPerMinute: 600,
			InboundBurst:     60,
		},
	}
}

// LoadConfig loads configuration from TENANTDESK_CONFIG_FILE, if set,
// then applies environment overrides.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("TENANTDESK_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadServerConfig()
	cfg.loadStorageConfig()
	cfg.loadCacheConfig()
	cfg.loadAuthConfig()
	cfg.loadEventsConfig()
	cfg.loadObservabilityConfig()
	cfg.loadSweepConfig()
	cfg.loadRateLimitConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Observability.LogLevel = observability.ParseLogLevel(c.Observability.Level)
	return nil
}

// loadServerConfig loads server configuration from environment
func (c *Config) loadServerConfig() {
	s := &c.Server
	s.Host = getEnv("TENANTDESK_HOST", s.Host)
	s.Port = getEnv("TENANTDESK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TENANTDESK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TENANTDESK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TENANTDESK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TENANTDESK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("TENANTDESK_HEALTH_PORT", s.HealthPort)
}

// loadStorageConfig loads storage configuration from environment
func (c *Config) loadStorageConfig() {
	s := &c.Storage
	s.Type = getEnv("TENANTDESK_STORAGE_TYPE", s.Type)
	s.SeedFile = getEnv("TENANTDESK_SEED_FILE", s.SeedFile)
	s.PostgresURL = getEnv("TENANTDESK_POSTGRES_URL", s.PostgresURL)
	if replicaURLs := getEnv("TENANTDESK_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		s.PostgresReplicaURLs = splitList(replicaURLs)
	}
	if maxConns := getEnvInt("TENANTDESK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		s.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("TENANTDESK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		s.PostgresMinConns = minConns
	}
	s.PostgresTimeout = getEnvDuration("TENANTDESK_POSTGRES_TIMEOUT", s.PostgresTimeout)
	s.Migrate = getEnvBool("TENANTDESK_POSTGRES_MIGRATE", s.Migrate)
}

// loadCacheConfig loads authority cache configuration from environment
func (c *Config) loadCacheConfig() {
	cc := &c.Cache
	cc.Type = getEnv("TENANTDESK_CACHE_TYPE", cc.Type)
	cc.TTL = getEnvDuration("TENANTDESK_CACHE_TTL", cc.TTL)
	cc.MemorySize = getEnvInt("TENANTDESK_CACHE_MEMORY_SIZE", cc.MemorySize)
	cc.RedisURL = getEnv("TENANTDESK_REDIS_URL", cc.RedisURL)
	cc.RedisPassword = getEnv("TENANTDESK_REDIS_PASSWORD", cc.RedisPassword)
	if redisDB := getEnvInt("TENANTDESK_REDIS_DB", -1); redisDB >= 0 {
		cc.RedisDB = redisDB
	}
	cc.RedisPoolSize = getEnvInt("TENANTDESK_REDIS_POOL_SIZE", cc.RedisPoolSize)
	cc.RedisMaxRetries = getEnvInt("TENANTDESK_REDIS_MAX_RETRIES", cc.RedisMaxRetries)
	cc.KeyPrefix = getEnv("TENANTDESK_CACHE_KEY_PREFIX", cc.KeyPrefix)
}

func (c *Config) loadAuthConfig() {
	a := &c.Auth
	a.SigningKey = getEnv("TENANTDESK_JWT_SIGNING_KEY", a.SigningKey)
	a.Issuer = getEnv("TENANTDESK_JWT_ISSUER", a.Issuer)
	a.AccessTTL = getEnvDuration("TENANTDESK_JWT_ACCESS_TTL", a.AccessTTL)
	a.Leeway = getEnvDuration("TENANTDESK_JWT_LEEWAY", a.Leeway)
}

func (c *Config) loadEventsConfig() {
	e := &c.Events
	e.WebsocketEnabled = getEnvBool("TENANTDESK_WEBSOCKET_ENABLED", e.WebsocketEnabled)
	e.RedisFanout = getEnvBool("TENANTDESK_EVENTS_REDIS_FANOUT", e.RedisFanout)
	e.ChannelPrefix = getEnv("TENANTDESK_EVENTS_CHANNEL_PREFIX", e.ChannelPrefix)
}

// loadObservabilityConfig loads observability configuration from environment
func (c *Config) loadObservabilityConfig() {
	o := &c.Observability
	o.Level = getEnv("TENANTDESK_LOG_LEVEL", o.Level)
	o.LogLevel = observability.ParseLogLevel(o.Level)
	o.MetricsEnabled = getEnvBool("TENANTDESK_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TENANTDESK_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TENANTDESK_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TENANTDESK_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TENANTDESK_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TENANTDESK_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TENANTDESK_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

func (c *Config) loadSweepConfig() {
	s := &c.Sweeps
	s.InvitationSchedule = getEnv("TENANTDESK_INVITATION_SWEEP_SCHEDULE", s.InvitationSchedule)
	s.InvitationMaxAge = getEnvDuration("TENANTDESK_INVITATION_MAX_AGE", s.InvitationMaxAge)
}

func (c *Config) loadRateLimitConfig() {
	r := &c.RateLimit
	r.Enabled = getEnvBool("TENANTDESK_RATE_LIMIT_ENABLED", r.Enabled)
	r.Distributed = getEnvBool("TENANTDESK_RATE_LIMIT_DISTRIBUTED", r.Distributed)
	r.PerMinute = getEnvInt("TENANTDESK_RATE_LIMIT_PER_MINUTE", r.PerMinute)
	r.Burst = getEnvInt("TENANTDESK_RATE_LIMIT_BURST", r.Burst)
	r.InboundPerMinute = getEnvInt("TENANTDESK_INBOUND_RATE_LIMIT_PER_MINUTE", r.InboundPerMinute)
	r.InboundBurst = getEnvInt("TENANTDESK_INBOUND_RATE_LIMIT_BURST", r.InboundBurst)
}

// OTel returns the tracing settings in the form InitTracing takes
func (c *Config) OTel() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case storage.TypeMemory:
	case storage.TypePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.Storage.SeedFile != "" {
			return fmt.Errorf("seed file is only supported by memory storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	switch c.Cache.Type {
	case CacheTypeMemory:
		if c.Events.RedisFanout {
			return fmt.Errorf("redis event fan-out requires the redis cache")
		}
	case CacheTypeRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory or redis)", c.Cache.Type)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if len(c.Auth.SigningKey) < 32 {
		return fmt.Errorf("JWT signing key must be at least 32 bytes")
	}

	if c.Sweeps.InvitationSchedule != "" {
		if _, err := cron.ParseStandard(c.Sweeps.InvitationSchedule); err != nil {
			return fmt.Errorf("invalid invitation sweep schedule: %w", err)
		}
		if c.Sweeps.InvitationMaxAge <= 0 {
			return fmt.Errorf("invitation max age must be positive")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerMinute <= 0 || c.RateLimit.InboundPerMinute <= 0 {
			return fmt.Errorf("rate limits must be positive")
		}
		if c.RateLimit.Burst < 0 || c.RateLimit.InboundBurst < 0 {
			return fmt.Errorf("rate limit burst cannot be negative")
		}
		if c.RateLimit.Distributed && c.Cache.Type != CacheTypeRedis {
			return fmt.Errorf("distributed rate limiting requires the redis cache")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
