// Package observability provides structured logging, Prometheus metrics, health checks and
// OpenTelemetry tracing for the IAM services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", id).Info("role updated")
//
// Loggers are logrus-backed and emit JSON. Components that take a *Logger
// accept nil and fall back to a discard logger (see OrNop).
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("deny", "PermissionDenied").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "wardend",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Spans are started with StartSpan and closed with EndSpan.
package observability
