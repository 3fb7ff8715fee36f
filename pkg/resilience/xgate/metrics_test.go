package xgate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics(t *testing.T) {
	t.Run("nil provider returns nil", func(t *testing.T) {
		m, err := newMetrics(nil, func() Stats { return Stats{} })
		assert.NoError(t, err)
		assert.Nil(t, m)
		// nil 接收者安全
		m.recordAdmitted(context.Background(), time.Second)
		m.recordBlocked(context.Background())
		m.recordAbandoned(context.Background(), time.Second)
		assert.NoError(t, m.close())
	})

	t.Run("noop provider", func(t *testing.T) {
		m, err := newMetrics(noop.NewMeterProvider(), func() Stats { return Stats{} })
		require.NoError(t, err)
		assert.NotNil(t, m)
	})
}

// collect 读取一次指标，按名称索引
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func gaugeValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	g, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "metric %s is not an int64 gauge", m.Name)
	require.Len(t, g.DataPoints, 1)
	return g.DataPoints[0].Value
}

func TestGate_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	g, _ := newTestGate(t, 2, WithMeterProvider(mp))

	p := acquire(t, g, "a")
	acquire(t, g, "b")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Acquire(ctx, "c")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	p.Release()

	got := collect(t, reader)
	require.Contains(t, got, metricNameAdmittedTotal)
	assert.Equal(t, int64(2), sumValue(t, got[metricNameAdmittedTotal]))
	assert.Equal(t, int64(1), sumValue(t, got[metricNameBlockedTotal]))
	assert.Equal(t, int64(1), gaugeValue(t, got[metricNameInFlight]))
	assert.Equal(t, int64(2), gaugeValue(t, got[metricNameCapacity]))

	hist, ok := got[metricNameWaitDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	// admitted ×2 + abandoned ×1，两个 outcome 各一个数据点
	assert.Len(t, hist.DataPoints, 2)

	require.NoError(t, g.SetCapacity(context.Background(), 5, false))
	got = collect(t, reader)
	assert.Equal(t, int64(5), gaugeValue(t, got[metricNameCapacity]))
}
