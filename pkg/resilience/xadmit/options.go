package xadmit

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/observability/xmetrics"
	"github.com/omeyang/xadmit/pkg/resilience/xbreaker"
	"github.com/omeyang/xadmit/pkg/resilience/xretry"
)

type options struct {
	invoker       *xretry.Invoker
	breaker       *xbreaker.Breaker
	observer      xmetrics.Observer
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	drainTimeout  time.Duration
}

// Option 配置 Controller
type Option func(*options)

func defaultOptions() options {
	return options{
		observer:     xmetrics.NoopObserver{},
		drainTimeout: 30 * time.Second,
	}
}

// WithInvoker 替换重试执行器，默认 xretry.NewInvoker()
func WithInvoker(inv *xretry.Invoker) Option {
	return func(o *options) {
		if inv != nil {
			o.invoker = inv
		}
	}
}

// WithBreaker 在服务商调用外包一层熔断器，熔断拒绝不会被重试
func WithBreaker(b *xbreaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithObserver 设置请求级 trace/metrics 观测
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger 设置日志记录器，nil 表示不输出
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeterProvider 设置指标 provider，nil 表示不收集
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithDrainTimeout 设置 Drain 的等待上限，<=0 表示只受 ctx 约束
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) {
		o.drainTimeout = d
	}
}
