package xmetrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultInstrumentationName = "github.com/omeyang/xadmit/xmetrics"
	unknownComponent           = "unknown"
	unknownOperation           = "unknown"

	metricOperationTotal    = "xadmit.operation.total"
	metricOperationDuration = "xadmit.operation.duration"
	metricOperationWeight   = "xadmit.operation.weight"
)

var (
	// ErrCreateCounter 表示创建 OTel Counter 失败。
	ErrCreateCounter = errors.New("xmetrics: create counter failed")
	// ErrCreateHistogram 表示创建 OTel Histogram 失败。
	ErrCreateHistogram = errors.New("xmetrics: create histogram failed")
)

type otelConfig struct {
	instrumentationName string
	tracerProvider      trace.TracerProvider
	meterProvider       metric.MeterProvider
}

// Option 定义 OTel Observer 的配置选项。
type Option func(*otelConfig)

// WithInstrumentationName 设置 instrumentation 名称，同时作为 tracer 与 meter 的作用域。
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 provider。
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// WithMeterProvider 设置 MeterProvider，默认使用全局 provider。
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// instruments 是每个操作共用的三件指标：次数、耗时、配额消耗。
type instruments struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
	weight   metric.Int64Counter
}

func newInstruments(meter metric.Meter) (instruments, error) {
	var (
		ins instruments
		err error
	)
	if ins.total, err = meter.Int64Counter(metricOperationTotal,
		metric.WithDescription("按结果状态统计的操作次数"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return ins, fmt.Errorf("%w: %s: %w", ErrCreateCounter, metricOperationTotal, err)
	}
	if ins.weight, err = meter.Int64Counter(metricOperationWeight,
		metric.WithDescription("已结束操作占用的配额单位（预估 token）"),
		metric.WithUnit("{token}"),
	); err != nil {
		return ins, fmt.Errorf("%w: %s: %w", ErrCreateCounter, metricOperationWeight, err)
	}
	if ins.duration, err = meter.Float64Histogram(metricOperationDuration,
		metric.WithDescription("操作耗时，含准入等待"),
		metric.WithUnit("s"),
	); err != nil {
		return ins, fmt.Errorf("%w: %s: %w", ErrCreateHistogram, metricOperationDuration, err)
	}
	return ins, nil
}

// NewOTelObserver 创建基于 OpenTelemetry 的 Observer。
//
// 每个跨度结束时写一条 span，并按 component/operation/status 记录次数与耗时；
// SpanOptions.Weight 大于 0 时额外累加到配额消耗计数。
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		tracerProvider:      otel.GetTracerProvider(),
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	ins, err := newInstruments(cfg.meterProvider.Meter(cfg.instrumentationName))
	if err != nil {
		return nil, err
	}
	return &otelObserver{
		tracer: cfg.tracerProvider.Tracer(cfg.instrumentationName),
		ins:    ins,
		now:    time.Now,
	}, nil
}

type otelObserver struct {
	tracer trace.Tracer
	ins    instruments
	now    func() time.Time
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	component, operation := orUnknown(opts.Component, unknownComponent), orUnknown(opts.Operation, unknownOperation)

	spanAttrs := append([]attribute.KeyValue{
		attribute.String("component", component),
		attribute.String("operation", operation),
	}, attrsToOTel(opts.Attrs)...)
	if opts.Weight > 0 {
		spanAttrs = append(spanAttrs, attribute.Int64("weight", opts.Weight))
	}

	ctx, span := o.tracer.Start(ctx, operation,
		trace.WithSpanKind(mapSpanKind(opts.Kind)),
		trace.WithAttributes(spanAttrs...),
	)
	return ctx, &otelSpan{
		span:      span,
		ins:       o.ins,
		now:       o.now,
		ctx:       ctx,
		component: component,
		operation: operation,
		weight:    opts.Weight,
		start:     o.now(),
	}
}

func orUnknown(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

type otelSpan struct {
	span      trace.Span
	ins       instruments
	now       func() time.Time
	ctx       context.Context
	component string
	operation string
	weight    int64
	start     time.Time
	endOnce   sync.Once
}

// End 是幂等的，多次调用只记录一次。
func (s *otelSpan) End(result Result) {
	if s == nil {
		return
	}
	s.endOnce.Do(func() {
		status := resolveStatus(result)
		setSpanStatus(s.span, status, result.Err)
		if len(result.Attrs) > 0 {
			s.span.SetAttributes(attrsToOTel(result.Attrs)...)
		}
		s.span.End()
		s.record(status)
	})
}

// record 写指标，ctx 已取消时仍要落数。
func (s *otelSpan) record(status Status) {
	ctx := context.WithoutCancel(s.ctx)
	set := metric.WithAttributes(
		attribute.String("component", s.component),
		attribute.String("operation", s.operation),
		attribute.String("status", string(status)),
	)
	s.ins.total.Add(ctx, 1, set)
	s.ins.duration.Record(ctx, s.now().Sub(s.start).Seconds(), set)
	if s.weight > 0 {
		s.ins.weight.Add(ctx, s.weight, set)
	}
}

// setSpanStatus 把结果映射到 span 状态。
// canceled 不算失败，错误事件仍然记录。
func setSpanStatus(span trace.Span, status Status, err error) {
	if err != nil {
		span.RecordError(err)
	}
	switch status {
	case StatusError:
		desc := "operation failed"
		if err != nil {
			desc = err.Error()
		}
		span.SetStatus(codes.Error, desc)
	case StatusOK:
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
	}
}

func resolveStatus(result Result) Status {
	switch {
	case result.Status != "":
		return result.Status
	case result.Err != nil:
		return StatusError
	default:
		return StatusOK
	}
}

func mapSpanKind(kind Kind) trace.SpanKind {
	switch kind {
	case KindServer:
		return trace.SpanKindServer
	case KindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func attrsToOTel(attrs []Attr) []attribute.KeyValue {
	var out []attribute.KeyValue
	for _, a := range attrs {
		if kv, ok := a.keyValue(); ok {
			out = append(out, kv)
		}
	}
	return out
}

// keyValue 转为 OTel 属性；空 key 或 nil 值返回 false。
func (a Attr) keyValue() (attribute.KeyValue, bool) {
	if a.Key == "" || a.Value == nil {
		return attribute.KeyValue{}, false
	}
	k := attribute.Key(a.Key)
	switch v := a.Value.(type) {
	case string:
		return k.String(v), true
	case bool:
		return k.Bool(v), true
	case int:
		return k.Int(v), true
	case int64:
		return k.Int64(v), true
	case float64:
		return k.Float64(v), true
	case time.Duration:
		return k.Int64(v.Nanoseconds()), true
	default:
		return k.String(fmt.Sprint(v)), true
	}
}
