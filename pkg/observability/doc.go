// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for tenantdesk.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("workspace_id", wsID).Info("conversation closed")
//
// Request-scoped logging picks up the request id, subject id and active
// trace from the context:
//
//	observability.FromContext(ctx).WithError(err).Warn("cache read failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("department_role", "true").Inc()
//
// # Health Checks
//
// Readiness is unhealthy only when Postgres is down. Redis backs the
// authority cache, which every read can bypass, so a Redis outage reports
// degraded.
//
// # Tracing
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/contextkeys: context keys read by FromContext
package observability
