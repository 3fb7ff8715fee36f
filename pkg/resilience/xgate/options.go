package xgate

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

const (
	// DefaultDrainTimeout 缩容等待排空的默认上限
	DefaultDrainTimeout = 30 * time.Second

	// DefaultBlockedWarnEvery 每累计多少次阻塞输出一次告警日志
	DefaultBlockedWarnEvery = 10
)

type options struct {
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	clock         clockwork.Clock
	drainTimeout  time.Duration
	warnEvery     uint64
}

// Option 门控配置选项
type Option func(*options)

func defaultOptions() options {
	return options{
		clock:        clockwork.NewRealClock(),
		drainTimeout: DefaultDrainTimeout,
		warnEvery:    DefaultBlockedWarnEvery,
	}
}

// WithLogger 设置日志记录器，nil 表示不输出
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeterProvider 设置 OTel MeterProvider，nil 表示不收集指标
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithClock 注入时钟，测试中可替换为 clockwork.NewFakeClock()
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithDrainTimeout 设置 SetCapacity(waitForDrain=true) 的排空等待上限。
// 超时后仍会应用新容量并输出告警。d <= 0 表示只受 ctx 约束。
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) {
		o.drainTimeout = d
	}
}

// WithBlockedWarnEvery 设置阻塞告警的采样间隔，0 关闭告警
func WithBlockedWarnEvery(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.warnEvery = uint64(n)
	}
}
