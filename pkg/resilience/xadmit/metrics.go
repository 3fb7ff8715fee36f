package xadmit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameRequestsTotal = "xadmit.requests.total"
	metricNameAttempts      = "xadmit.attempts"

	attrOutcome = "outcome"

	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
	outcomeRejected = "rejected"

	instrumentationVersion = "0.1.0"
)

var attemptBuckets = []float64{1, 2, 3, 4, 5, 8}

// Metrics 控制器指标
type Metrics struct {
	requestsTotal metric.Int64Counter
	attempts      metric.Int64Histogram
}

// newMetrics mp 为 nil 时返回 nil（不收集指标）
func newMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter("xadmit", metric.WithInstrumentationVersion(instrumentationVersion))
	m := &Metrics{}
	var err error
	if m.requestsTotal, err = meter.Int64Counter(metricNameRequestsTotal,
		metric.WithDescription("经过准入控制的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.attempts, err = meter.Int64Histogram(metricNameAttempts,
		metric.WithDescription("每个请求实际调用服务商的次数"), metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(attemptBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordRequest(ctx context.Context, outcome string, attempts int) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	opt := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.requestsTotal.Add(ctx, 1, opt)
	if attempts > 0 {
		m.attempts.Record(ctx, int64(attempts), opt)
	}
}
