package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics exports authorization metrics through the OpenTelemetry
// meter, alongside the Prometheus registry. Both views carry the same
// counters; OTel adds the OTLP pipeline for collectors that do not
// scrape.
type OTelMetrics struct {
	decisions      metric.Int64Counter
	decisionTime   metric.Float64Histogram
	lookupTime     metric.Float64Histogram
	lookupFailures metric.Int64Counter
}

// NewOTelMetrics creates OTel instruments on the global meter provider.
// Call after InitOTel; with no provider installed the instruments are
// no-ops.
func NewOTelMetrics(serviceName string) (*OTelMetrics, error) {
	meter := otel.Meter(serviceName)

	decisions, err := meter.Int64Counter("gatehouse.authz.decisions",
		metric.WithDescription("Authorization decisions by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	decisionTime, err := meter.Float64Histogram("gatehouse.authz.decision.duration",
		metric.WithDescription("Authorization decision duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create decision duration histogram: %w", err)
	}

	lookupTime, err := meter.Float64Histogram("gatehouse.directory.lookup.duration",
		metric.WithDescription("Role directory lookup duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup duration histogram: %w", err)
	}

	lookupFailures, err := meter.Int64Counter("gatehouse.directory.lookup.failures",
		metric.WithDescription("Role directory lookup failures"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup failures counter: %w", err)
	}

	return &OTelMetrics{
		decisions:      decisions,
		decisionTime:   decisionTime,
		lookupTime:     lookupTime,
		lookupFailures: lookupFailures,
	}, nil
}

// RecordDecision records an authorization decision
func (m *OTelMetrics) RecordDecision(ctx context.Context, allowed bool, elapsed time.Duration) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.decisions.Add(ctx, 1, attrs)
	m.decisionTime.Record(ctx, elapsed.Seconds())
}

// RecordLookup records a role directory lookup
func (m *OTelMetrics) RecordLookup(ctx context.Context, operation string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.lookupTime.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.lookupFailures.Add(ctx, 1, attrs)
	}
}
