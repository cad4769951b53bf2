// Package observe provides application-wide observability primitives for
// the substrate: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all substrate metrics.
const meterName = "github.com/hearthgraph/substrate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per unit of work ---

	// TraceDuration tracks end-to-end TRACE processing latency (parse,
	// route, learn, inject).
	TraceDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding provider call latency.
	EmbeddingDuration metric.Float64Histogram

	// StimulusDuration tracks one stimulus-injection frame's latency.
	StimulusDuration metric.Float64Histogram

	// HealthTickDuration tracks one HealthMonitor snapshot pass latency.
	HealthTickDuration metric.Float64Histogram

	// --- Counters ---

	// FormationWrites counts formation-block writes by formation type and
	// outcome. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", ...)
	// where status is one of "written", "qa_task", "rejected".
	FormationWrites metric.Int64Counter

	// WriteDenials counts WriteGate cross-layer denials. Use with
	// attributes: attribute.String("expected", ...), attribute.String("got", ...)
	WriteDenials metric.Int64Counter

	// WriteNotConfirmed counts upserts that failed read-back confirmation
	// after all retries. Use with attribute.String("kind", "node"|"link").
	WriteNotConfirmed metric.Int64Counter

	// MembershipFlushes counts membership activation batches folded into
	// the fabric.
	MembershipFlushes metric.Int64Counter

	// CoactivationPairs counts COACTIVATES_WITH pairs folded per
	// working-memory event.
	CoactivationPairs metric.Int64Counter

	// HealthAlerts counts status-transition alerts emitted by the health
	// monitor. Use with attributes: attribute.String("metric", ...),
	// attribute.String("status", ...).
	HealthAlerts metric.Int64Counter

	// --- Distributions ---

	// WeightUpdateCohortSize records the number of items per weight-learning
	// cohort.
	WeightUpdateCohortSize metric.Int64Histogram

	// StimulusBudget records the computed energy budget per stimulus frame.
	StimulusBudget metric.Float64Histogram

	// StimulusMatches records the number of matched nodes per stimulus
	// frame.
	StimulusMatches metric.Int64Histogram

	// --- Gauges ---

	// ActiveGraphs tracks the number of graphs currently polled by the
	// health monitor.
	ActiveGraphs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for sub-second graph-write and embedding-call latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TraceDuration, err = m.Float64Histogram("substrate.trace.duration",
		metric.WithDescription("Latency of processing one TRACE (parse, route, learn, inject)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("substrate.embedding.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StimulusDuration, err = m.Float64Histogram("substrate.stimulus.duration",
		metric.WithDescription("Latency of one stimulus-injection frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HealthTickDuration, err = m.Float64Histogram("substrate.health.tick_duration",
		metric.WithDescription("Latency of one HealthMonitor snapshot pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FormationWrites, err = m.Int64Counter("substrate.formation.writes",
		metric.WithDescription("Total formation-block writes by type and outcome."),
	); err != nil {
		return nil, err
	}
	if met.WriteDenials, err = m.Int64Counter("substrate.writegate.denials",
		metric.WithDescription("Total cross-layer write denials by expected/got namespace."),
	); err != nil {
		return nil, err
	}
	if met.WriteNotConfirmed, err = m.Int64Counter("substrate.graph.write_not_confirmed",
		metric.WithDescription("Total upserts that failed read-back confirmation after retries."),
	); err != nil {
		return nil, err
	}
	if met.MembershipFlushes, err = m.Int64Counter("substrate.membership.flushes",
		metric.WithDescription("Total membership activation batches folded into the fabric."),
	); err != nil {
		return nil, err
	}
	if met.CoactivationPairs, err = m.Int64Counter("substrate.coactivation.pairs",
		metric.WithDescription("Total COACTIVATES_WITH pairs folded per working-memory event."),
	); err != nil {
		return nil, err
	}
	if met.HealthAlerts, err = m.Int64Counter("substrate.health.alerts",
		metric.WithDescription("Total status-transition alerts emitted by the health monitor."),
	); err != nil {
		return nil, err
	}

	// Distributions.
	if met.WeightUpdateCohortSize, err = m.Int64Histogram("substrate.weightlearn.cohort_size",
		metric.WithDescription("Number of items per weight-learning cohort."),
	); err != nil {
		return nil, err
	}
	if met.StimulusBudget, err = m.Float64Histogram("substrate.stimulus.budget",
		metric.WithDescription("Computed energy budget per stimulus frame."),
	); err != nil {
		return nil, err
	}
	if met.StimulusMatches, err = m.Int64Histogram("substrate.stimulus.matches",
		metric.WithDescription("Number of matched nodes per stimulus frame."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveGraphs, err = m.Int64UpDownCounter("substrate.health.active_graphs",
		metric.WithDescription("Number of graphs currently polled by the health monitor."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("substrate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFormationWrite is a convenience method that records a formation
// write counter increment with the standard attribute set.
func (m *Metrics) RecordFormationWrite(ctx context.Context, formationType, status string) {
	m.FormationWrites.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", formationType),
			attribute.String("status", status),
		),
	)
}

// RecordWriteDenial is a convenience method that records a WriteGate denial
// counter increment.
func (m *Metrics) RecordWriteDenial(ctx context.Context, expected, got string) {
	m.WriteDenials.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("expected", expected),
			attribute.String("got", got),
		),
	)
}

// RecordWriteNotConfirmed is a convenience method that records an
// unconfirmed-write counter increment.
func (m *Metrics) RecordWriteNotConfirmed(ctx context.Context, kind string) {
	m.WriteNotConfirmed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordHealthAlert is a convenience method that records a health-monitor
// status-transition alert.
func (m *Metrics) RecordHealthAlert(ctx context.Context, metricName, status string) {
	m.HealthAlerts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("metric", metricName),
			attribute.String("status", status),
		),
	)
}
