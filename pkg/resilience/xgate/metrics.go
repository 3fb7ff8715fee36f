package xgate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameAdmittedTotal = "xgate.admitted.total"
	metricNameBlockedTotal  = "xgate.blocked.total"
	metricNameWaitDuration  = "xgate.wait.duration"
	metricNameInFlight      = "xgate.in_flight"
	metricNameCapacity      = "xgate.capacity"

	attrOutcome = "outcome"

	instrumentationVersion = "0.1.0"
)

// 等待耗时以秒计，门控等待可以长达分钟级
var waitBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300}

// Metrics 门控指标
//
// in_flight 与 capacity 为异步 gauge，采集时读取 Stats 快照。
type Metrics struct {
	admittedTotal metric.Int64Counter
	blockedTotal  metric.Int64Counter
	waitDuration  metric.Float64Histogram
	inFlight      metric.Int64ObservableGauge
	capacity      metric.Int64ObservableGauge
	registration  metric.Registration
}

// newMetrics 创建门控指标，mp 为 nil 时返回 nil（不收集指标）
func newMetrics(mp metric.MeterProvider, snapshot func() Stats) (*Metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter("xgate", metric.WithInstrumentationVersion(instrumentationVersion))

	m := &Metrics{}
	var err error
	if m.admittedTotal, err = meter.Int64Counter(metricNameAdmittedTotal,
		metric.WithDescription("通过门控的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.blockedTotal, err = meter.Int64Counter(metricNameBlockedTotal,
		metric.WithDescription("因容量已满而等待的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.waitDuration, err = meter.Float64Histogram(metricNameWaitDuration,
		metric.WithDescription("获取许可的等待耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...)); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64ObservableGauge(metricNameInFlight,
		metric.WithDescription("当前持有许可的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.capacity, err = meter.Int64ObservableGauge(metricNameCapacity,
		metric.WithDescription("门控容量"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(m.inFlight, int64(s.InFlight))
		o.ObserveInt64(m.capacity, int64(s.Capacity))
		return nil
	}, m.inFlight, m.capacity)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// recordAdmitted 记录一次成功获取
func (m *Metrics) recordAdmitted(ctx context.Context, waited time.Duration) {
	if m == nil {
		return
	}
	// 调用方 ctx 可能已取消，指标仍需记录
	ctx = context.WithoutCancel(ctx)
	m.admittedTotal.Add(ctx, 1)
	m.waitDuration.Record(ctx, waited.Seconds(),
		metric.WithAttributes(attribute.String(attrOutcome, "admitted")))
}

// recordBlocked 记录一次进入等待
func (m *Metrics) recordBlocked(ctx context.Context) {
	if m == nil {
		return
	}
	m.blockedTotal.Add(context.WithoutCancel(ctx), 1)
}

// recordAbandoned 记录等待被取消
func (m *Metrics) recordAbandoned(ctx context.Context, waited time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.Record(context.WithoutCancel(ctx), waited.Seconds(),
		metric.WithAttributes(attribute.String(attrOutcome, "abandoned")))
}

func (m *Metrics) close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
