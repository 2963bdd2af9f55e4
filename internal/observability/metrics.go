package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the judging core.
type MetricsCollector struct {
	meter metric.Meter

	// Cycle metrics
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	cycleCost     metric.Float64Counter
	verdicts      metric.Int64Counter
	vetoes        metric.Int64Counter
	noConsensus   metric.Int64Counter

	// Analyzer metrics
	analyzerCalls   metric.Int64Counter
	analyzerLatency metric.Float64Histogram

	// Policy metrics
	policyUpdates metric.Int64Counter

	// Health metrics
	detailLevel metric.Int64Gauge

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port" mapstructure:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector. With Enabled
// false every Record method is a no-op.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("cynic")

	cycles, err := meter.Int64Counter(
		"cynic.cycles.total",
		metric.WithDescription("Total number of judgment cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycles counter: %w", err)
	}

	cycleDuration, err := meter.Float64Histogram(
		"cynic.cycle.duration",
		metric.WithDescription("End-to-end judgment cycle duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle_duration histogram: %w", err)
	}

	cycleCost, err := meter.Float64Counter(
		"cynic.cost.total",
		metric.WithDescription("Total cost of model-backed analysis"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle_cost counter: %w", err)
	}

	verdicts, err := meter.Int64Counter(
		"cynic.verdicts.total",
		metric.WithDescription("Judgment verdicts by kind"),
		metric.WithUnit("{verdict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verdicts counter: %w", err)
	}

	vetoes, err := meter.Int64Counter(
		"cynic.vetoes.total",
		metric.WithDescription("Consensus rounds ended by veto"),
		metric.WithUnit("{veto}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vetoes counter: %w", err)
	}

	noConsensus, err := meter.Int64Counter(
		"cynic.consensus.failures.total",
		metric.WithDescription("Rounds that failed to reach quorum"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consensus_failures counter: %w", err)
	}

	analyzerCalls, err := meter.Int64Counter(
		"cynic.analyzer.calls.total",
		metric.WithDescription("Analyzer invocations by analyzer and status"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer_calls counter: %w", err)
	}

	analyzerLatency, err := meter.Float64Histogram(
		"cynic.analyzer.latency",
		metric.WithDescription("Analyzer call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer_latency histogram: %w", err)
	}

	policyUpdates, err := meter.Int64Counter(
		"cynic.policy.updates.total",
		metric.WithDescription("Q-table learning updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy_updates counter: %w", err)
	}

	detailLevel, err := meter.Int64Gauge(
		"cynic.health.detail_level",
		metric.WithDescription("Current detail level (0=FULL .. 3=MINIMAL)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detail_level gauge: %w", err)
	}

	collector := &MetricsCollector{
		meter:           meter,
		cycles:          cycles,
		cycleDuration:   cycleDuration,
		cycleCost:       cycleCost,
		verdicts:        verdicts,
		vetoes:          vetoes,
		noConsensus:     noConsensus,
		analyzerCalls:   analyzerCalls,
		analyzerLatency: analyzerLatency,
		policyUpdates:   policyUpdates,
		detailLevel:     detailLevel,
	}

	return collector, nil
}

// StartPrometheusServer starts the Prometheus metrics server. The
// caller owns the lifecycle: construction never binds the port, and a
// second start is rejected so the listener cannot be orphaned.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	if m.prometheusServer != nil {
		return fmt.Errorf("prometheus server already started on %s", m.prometheusServer.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordCycle records one completed judgment cycle.
func (m *MetricsCollector) RecordCycle(ctx context.Context, domain, analysis, verdict string, consensus, veto bool, duration time.Duration, cost float64) {
	if m.cycles == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("domain", domain),
		attribute.String("analysis", analysis),
	}

	m.cycles.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	if veto {
		m.vetoes.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if !consensus {
		m.noConsensus.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if cost > 0 {
		m.cycleCost.Add(ctx, cost, metric.WithAttributes(attribute.String("domain", domain)))
	}
}

// RecordAnalyzerCall records one analyzer invocation.
func (m *MetricsCollector) RecordAnalyzerCall(ctx context.Context, analyzerID, status string, latency time.Duration) {
	if m.analyzerCalls == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("analyzer", analyzerID),
		attribute.String("status", status),
	}

	m.analyzerCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.analyzerLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("analyzer", analyzerID)))
}

// RecordPolicyUpdate records one Q-table learning update.
func (m *MetricsCollector) RecordPolicyUpdate(ctx context.Context, action string) {
	if m.policyUpdates == nil {
		return
	}
	m.policyUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordDetailLevel records the detail level chosen for a cycle.
func (m *MetricsCollector) RecordDetailLevel(ctx context.Context, level int) {
	if m.detailLevel == nil {
		return
	}
	m.detailLevel.Record(ctx, int64(level))
}
