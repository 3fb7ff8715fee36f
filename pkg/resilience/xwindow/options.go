package xwindow

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

// DefaultMaxSleep 单次等待的上限。
// 等待时长按窗口到期时间计算，上限只用于兜底跨进程共享配额时的时钟偏差。
const DefaultMaxSleep = time.Second

type options struct {
	backend       Backend
	clock         clockwork.Clock
	maxSleep      time.Duration
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	name          string
}

// Option 限流器配置选项
type Option func(*options)

func defaultOptions() options {
	return options{
		clock:    clockwork.NewRealClock(),
		maxSleep: DefaultMaxSleep,
		name:     "default",
	}
}

// WithBackend 设置存储后端，默认进程内后端
func WithBackend(b Backend) Option {
	return func(o *options) {
		if b != nil {
			o.backend = b
		}
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

// WithMaxSleep 设置单次等待上限，d <= 0 表示不设上限
func WithMaxSleep(d time.Duration) Option {
	return func(o *options) {
		o.maxSleep = d
	}
}

// WithLogger 设置日志记录器
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

// WithName 设置限流器名称（日志与指标标签），通常为服务商或模型名
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}
