package xbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

// TripPolicy 熔断判定策略接口
//
// ReadyToTrip 返回 true 时熔断器从 Closed 转为 Open。
type TripPolicy interface {
	ReadyToTrip(counts Counts) bool
}

// SuccessPolicy 成功判定策略接口
type SuccessPolicy interface {
	IsSuccessful(err error) bool
}

// SuccessPolicyFunc 函数形式的 SuccessPolicy
type SuccessPolicyFunc func(err error) bool

func (f SuccessPolicyFunc) IsSuccessful(err error) bool { return f(err) }

// IgnoreCancellation 默认成功判定：调用方主动取消不计为失败
//
// 外部服务返回的 context.DeadlineExceeded 仍计为失败，
// 它通常意味着服务端响应过慢。
var IgnoreCancellation SuccessPolicy = SuccessPolicyFunc(func(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
})

// Breaker 熔断器
//
// 封装 sony/gobreaker/v2。Open 与 HalfOpen 拒绝的错误包装为 BreakerError，
// 其 Retryable() 返回 false，与 xretry 组合时不会被重试。
type Breaker struct {
	name          string
	tripPolicy    TripPolicy
	successPolicy SuccessPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	onStateChange func(name string, from, to State)
	logger        xlog.Logger

	cb *gobreaker.CircuitBreaker[any]
}

// BreakerOption 熔断器配置选项
type BreakerOption func(*Breaker)

// WithTripPolicy 设置熔断判定策略，默认连续失败 5 次
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

// WithSuccessPolicy 设置成功判定策略，默认 IgnoreCancellation
func WithSuccessPolicy(p SuccessPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.successPolicy = p
		}
	}
}

// WithTimeout 设置 Open 转 HalfOpen 的等待时间，默认 60 秒
func WithTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval 设置 Closed 状态下清零统计的周期，0 表示不清零
func WithInterval(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d >= 0 {
			b.interval = d
		}
	}
}

// WithMaxRequests 设置 HalfOpen 状态下允许通过的请求数，默认 1
func WithMaxRequests(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithOnStateChange 设置状态变化回调
func WithOnStateChange(f func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = f
	}
}

// WithLogger 设置日志记录器，状态变化时记录一条 Warn
func WithLogger(l xlog.Logger) BreakerOption {
	return func(b *Breaker) {
		b.logger = l
	}
}

// NewBreaker 创建熔断器
//
// name 用于日志和错误信息。
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:          name,
		tripPolicy:    NewConsecutiveFailures(5),
		successPolicy: IgnoreCancellation,
		timeout:       60 * time.Second,
		maxRequests:   1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.logger = xlog.OrDiscard(b.logger).With(xlog.Component("xbreaker"), slog.String("breaker", name))
	b.cb = gobreaker.NewCircuitBreaker[any](b.buildSettings())
	return b
}

func (b *Breaker) buildSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return b.tripPolicy.ReadyToTrip(counts)
		},
		IsSuccessful: func(err error) bool {
			return b.successPolicy.IsSuccessful(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn(context.Background(), "breaker state changed",
				slog.String("from", from.String()), slog.String("to", to.String()))
			if b.onStateChange != nil {
				b.onStateChange(name, from, to)
			}
		},
	}
}

// Do 执行受熔断器保护的操作
//
// ctx 已结束时直接返回 ctx 错误，不计入统计。
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b == nil {
		return ErrNilBreaker
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return wrapBreakerError(err, b.name)
}

// Execute 执行受熔断器保护的操作（泛型版本）
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return zero, ErrNilBreaker
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var result T
	_, err := b.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		result = v
		return nil, err
	})
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	return result, nil
}

// State 返回熔断器当前状态
func (b *Breaker) State() State {
	return b.cb.State()
}

// Name 返回熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// Counts 返回当前统计计数
func (b *Breaker) Counts() Counts {
	return b.cb.Counts()
}
