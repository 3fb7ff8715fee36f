package xwindow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameReservedTotal  = "xwindow.reserved.total"
	metricNameThrottledTotal = "xwindow.throttled.total"
	metricNameTokensTotal    = "xwindow.tokens.total"
	metricNameWaitDuration   = "xwindow.wait.duration"

	attrLimiter = "limiter"
	attrBackend = "backend"
	attrBlocked = "blocked"

	instrumentationVersion = "0.1.0"
)

var waitBuckets = []float64{0.01, 0.1, 1, 5, 15, 30, 60, 300, 3600}

// Metrics 限流器指标
type Metrics struct {
	reservedTotal  metric.Int64Counter
	throttledTotal metric.Int64Counter
	tokensTotal    metric.Int64Counter
	waitDuration   metric.Float64Histogram
	base           []attribute.KeyValue
}

// newMetrics mp 为 nil 时返回 nil（不收集指标）
func newMetrics(mp metric.MeterProvider, name, backend string) (*Metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter("xwindow", metric.WithInstrumentationVersion(instrumentationVersion))
	m := &Metrics{
		base: []attribute.KeyValue{
			attribute.String(attrLimiter, name),
			attribute.String(attrBackend, backend),
		},
	}
	var err error
	if m.reservedTotal, err = meter.Int64Counter(metricNameReservedTotal,
		metric.WithDescription("放行的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.throttledTotal, err = meter.Int64Counter(metricNameThrottledTotal,
		metric.WithDescription("因窗口配额不足而等待的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.tokensTotal, err = meter.Int64Counter(metricNameTokensTotal,
		metric.WithDescription("放行请求的预估 token 总数"), metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.waitDuration, err = meter.Float64Histogram(metricNameWaitDuration,
		metric.WithDescription("Wait 的等待耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordReserved(ctx context.Context, tokens int, waited time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	opt := metric.WithAttributes(m.base...)
	m.reservedTotal.Add(ctx, 1, opt)
	m.tokensTotal.Add(ctx, int64(tokens), opt)
	m.waitDuration.Record(ctx, waited.Seconds(), opt)
}

func (m *Metrics) recordThrottled(ctx context.Context, blocked Kind) {
	if m == nil {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.String(attrBlocked, blocked.String())}, m.base...)
	m.throttledTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attrs...))
}
