package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantdesk/pkg/api"
	"github.com/platinummonkey/tenantdesk/pkg/async"
	"github.com/platinummonkey/tenantdesk/pkg/auth"
	"github.com/platinummonkey/tenantdesk/pkg/cache"
	"github.com/platinummonkey/tenantdesk/pkg/config"
	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/events"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/middleware"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/storage"
	"github.com/platinummonkey/tenantdesk/pkg/storage/memory"
	"github.com/platinummonkey/tenantdesk/pkg/storage/postgres"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "YAML config file (overrides TENANTDESK_CONFIG_FILE)")
	sweepOnce := flag.Bool("sweep-invitations", false, "Remove expired invitations once and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *configFile != "" {
		os.Setenv("TENANTDESK_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := setupLogger(cfg.Observability.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *sweepOnce); err != nil {
		log.WithError(err).Fatal("tenantdesk exited with error")
	}
	log.Info("tenantdesk stopped")
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// backend bundles the selected store with what health checks and shutdown
// need from it.
type backend struct {
	storage.Backend
	db    *sql.DB
	conns *postgres.ConnectionManager
}

func openBackend(ctx context.Context, cfg storage.Config, logger *observability.Logger, log *logrus.Logger) (*backend, error) {
	switch cfg.Type {
	case storage.TypeMemory:
		store := memory.NewStore()
		if cfg.SeedFile != "" {
			if err := store.LoadSeedFile(cfg.SeedFile, time.Now().UTC()); err != nil {
				return nil, err
			}
			log.WithField("file", cfg.SeedFile).Info("Loaded seed data")
		}
		log.Warn("Using in-memory storage; data is lost on restart")
		return &backend{Backend: store}, nil

	case storage.TypePostgres:
		conns, err := postgres.Open(ctx, postgres.ConnectionConfig{
			PrimaryURL:  cfg.PostgresURL,
			ReplicaURLs: cfg.PostgresReplicaURLs,
			MaxConns:    cfg.PostgresMaxConns,
			MinConns:    cfg.PostgresMinConns,
			Timeout:     cfg.PostgresTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := postgres.NewStore(conns)
		if cfg.Migrate {
			applied, err := postgres.Migrate(ctx, store.DB())
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			log.WithField("applied", applied).Info("Database migrations complete")
		}
		return &backend{Backend: store, db: store.DB(), conns: conns}, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, *redis.Client, error) {
	if cfg.Type == config.CacheTypeRedis {
		client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			PoolSize:   cfg.RedisPoolSize,
			MaxRetries: cfg.RedisMaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisCache(client, cfg.KeyPrefix), client, nil
	}
	mc, err := cache.NewMemoryCache(cfg.MemorySize, nil)
	if err != nil {
		return nil, nil, err
	}
	return mc, nil, nil
}

// rateLimiters builds the per-principal and inbound limiters. In-process
// limiters are swept every window until ctx ends.
func rateLimiters(ctx context.Context, cfg config.RateLimitConfig, redisClient *redis.Client, metrics *observability.Metrics) (perPrincipal, inbound *middleware.RateLimitMiddleware) {
	principalCfg := &middleware.RateLimitConfig{RequestsPerWindow: cfg.PerMinute, WindowDuration: time.Minute, BurstSize: cfg.Burst}
	inboundCfg := &middleware.RateLimitConfig{RequestsPerWindow: cfg.InboundPerMinute, WindowDuration: time.Minute, BurstSize: cfg.InboundBurst}

	var principalLimiter, inboundLimiter middleware.Limiter
	if cfg.Distributed && redisClient != nil {
		principalLimiter = middleware.NewDistributedRateLimiter(redisClient, principalCfg, "ratelimit:principal")
		inboundLimiter = middleware.NewDistributedRateLimiter(redisClient, inboundCfg, "ratelimit:inbound")
	} else {
		pl := middleware.NewRateLimiter(principalCfg, nil)
		il := middleware.NewRateLimiter(inboundCfg, nil)
		pl.StartCleanup(ctx)
		il.StartCleanup(ctx)
		principalLimiter, inboundLimiter = pl, il
	}

	perPrincipal = middleware.NewRateLimitMiddleware("principal", principalLimiter, middleware.PrincipalKey, metrics)
	inbound = middleware.NewRateLimitMiddleware("inbound", inboundLimiter, middleware.PathKey("workspace_id"), metrics)
	return perPrincipal, inbound
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, sweepOnce bool) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	tp, err := observability.InitTracing(ctx, cfg.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store, err := openBackend(ctx, cfg.Storage, logger, log)
	if err != nil {
		return err
	}

	cacheBackend, redisClient, err := openCache(ctx, cfg.Cache)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	authority := cache.NewAuthority(cacheBackend,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
	)

	directory := membership.NewDirectory(membership.Deps{
		Store:       store,
		Departments: store,
		Entities:    store,
		Cache:       authority,
		Logger:      logger,
		Metrics:     metrics,
	})

	if sweepOnce {
		defer store.Close()
		removed, err := directory.SweepInvitations(ctx, cfg.Sweeps.InvitationMaxAge)
		if err != nil {
			return err
		}
		log.WithField("removed", removed).Info("Invitation sweep complete")
		return nil
	}

	hub := events.NewHub(logger, metrics)
	var publisher events.Publisher = hub
	var bridge *events.Bridge
	if cfg.Events.RedisFanout {
		origin := uuid.NewString()
		publisher = events.Multi{hub, events.NewRedisPublisher(redisClient, cfg.Events.ChannelPrefix, origin)}
		bridge = events.NewBridge(redisClient, cfg.Events.ChannelPrefix, origin, hub, logger)
	}

	resolver := tenancy.NewResolver(store, directory)
	tasks := async.NewGroup(logger)
	machine := conversations.NewStateMachine(conversations.Deps{
		Store:     store,
		Entities:  store,
		Cache:     authority,
		Publisher: publisher,
		Tasks:     tasks,
		Logger:    logger,
		Metrics:   metrics,
	})

	verifier := auth.NewJWTVerifier(auth.JWTConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		Leeway:     cfg.Auth.Leeway,
	})

	var redisHealth redis.UniversalClient
	if redisClient != nil {
		redisHealth = redisClient
	}
	health := observability.NewHealthChecker(store.db, redisHealth, version)

	deps := api.Deps{
		Auth:          auth.NewMiddleware(verifier, store, logger),
		Resolver:      resolver,
		Guard:         rbac.NewGuard(resolver, rbac.NewAuthorizer(metrics)),
		Conversations: machine,
		Directory:     directory,
		Health:        health,
		Logger:        logger,
	}
	if cfg.Events.WebsocketEnabled {
		deps.Hub = hub
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.RateLimit.Enabled {
		deps.RateLimit, deps.InboundLimit = rateLimiters(runCtx, cfg.RateLimit, redisClient, metrics)
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = metrics
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics get their own port for k8s
	probes := http.NewServeMux()
	probes.HandleFunc("/healthz", health.Liveness)
	probes.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		probes.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           probes,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("storage", func(context.Context) error { return store.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp, logger)
	})
	shutdown.Register("event publishes", machine.Wait)
	shutdown.Register("websocket clients", hub.Close)
	shutdown.Register("health server", healthServer.Shutdown)

	if store.conns != nil {
		store.conns.StartHealthCheckRoutine(runCtx, 30*time.Second)
	}

	if bridge != nil {
		go func() {
			defer observability.RecoverPanic(logger, "event bridge")
			if err := bridge.Run(runCtx); err != nil {
				log.WithError(err).Error("Event bridge stopped")
			}
		}()
	}

	if cfg.Sweeps.InvitationSchedule != "" {
		scheduler := cron.New(cron.WithLogger(cron.PrintfLogger(log)))
		_, err := scheduler.AddFunc(cfg.Sweeps.InvitationSchedule, func() {
			removed, err := directory.SweepInvitations(runCtx, cfg.Sweeps.InvitationMaxAge)
			if err != nil {
				log.WithError(err).Error("Invitation sweep failed")
				return
			}
			log.WithField("removed", removed).Debug("Invitation sweep complete")
		})
		if err != nil {
			return fmt.Errorf("failed to schedule invitation sweep: %w", err)
		}
		scheduler.Start()
		shutdown.Register("scheduler", func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		log.WithField("schedule", cfg.Sweeps.InvitationSchedule).Info("Invitation sweep scheduled")
	}

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{server, healthServer} {
		srv := srv
		go func() {
			log.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}()
	}

	select {
	case err := <-serveErr:
		_ = shutdown.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}
	cancel()
	return shutdown.Wait(ctx)
}
