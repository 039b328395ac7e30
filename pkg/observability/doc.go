// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, distributed tracing setup, dependency health
// checks and graceful shutdown for the Gatehouse authorization service.
//
// The Logger is a thin structured-JSON wrapper over log/slog with
// chainable field helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("resolved roles")
//
// Metrics are registered on an injected Prometheus registry so tests can
// use isolated registries:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordDecision(true, elapsed)
//
// OpenTelemetry is optional: InitOTel wires OTLP/gRPC trace and metric
// exporters when enabled and returns providers for shutdown.
package observability
