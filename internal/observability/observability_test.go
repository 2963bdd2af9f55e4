package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCollectorIsNoop(t *testing.T) {
	c, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	// Must not panic with no instruments registered.
	c.RecordCycle(t.Context(), "CODE", "JUDGE", "WAG", true, false, 0, 0)
	c.RecordAnalyzerCall(t.Context(), "guardian", "ok", 0)
	c.RecordPolicyUpdate(t.Context(), "WAG")
	c.RecordDetailLevel(t.Context(), 0)
	require.NoError(t, c.Shutdown(t.Context()))
}

func TestScrapeServerLifecycle(t *testing.T) {
	c, err := NewMetricsCollector(MetricsConfig{Enabled: true, PrometheusPort: 19311})
	require.NoError(t, err)
	assert.Nil(t, c.prometheusServer, "construction must not start the scrape server")

	// Port 0 binds an ephemeral port so the test never collides.
	require.NoError(t, c.StartPrometheusServer(0))
	first := c.prometheusServer
	require.NotNil(t, first)

	err = c.StartPrometheusServer(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
	assert.Same(t, first, c.prometheusServer, "failed start must not replace the live server")

	require.NoError(t, c.Shutdown(t.Context()))
}

func TestNoopTracerWhenDisabled(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := tp.StartSpan(t.Context(), SpanJudgeCycle)
	assert.NotNil(t, ctx)
	span.End()
	require.NoError(t, tp.Shutdown(t.Context()))
}
