// Package observability wires logging, Prometheus metrics, health probes and
// OpenTelemetry for the tracker service.
//
// Logging uses logrus:
//
//	logger := observability.NewLogger("info", "json", os.Stdout)
//	observability.WithTraceContext(ctx, logger).Info("Manager appointed")
//
// Metrics live on an explicit registry so tests can build isolated sets:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("manage_project", "allow").Inc()
//
// Health probes report the Postgres and Redis dependencies:
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	router.HandleFunc("/health/ready", checker.Readiness)
package observability
