package xretry

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

// DefaultMaxAttempts Invoker 默认的总尝试次数（包含首次）
const DefaultMaxAttempts = 5

// AttemptFailedFunc 每次尝试失败后调用，在退避等待之前
//
// attempt 从 1 开始。最后一次失败同样会回调，此时不会再等待。
type AttemptFailedFunc func(attempt int, err error)

type invokerOptions struct {
	maxAttempts     int
	backoff         BackoffPolicy
	onAttemptFailed AttemptFailedFunc
	timer           Timer
	logger          xlog.Logger
}

// InvokerOption Invoker 配置选项
type InvokerOption func(*invokerOptions)

// WithMaxAttempts 设置总尝试次数，n < 1 时忽略
func WithMaxAttempts(n int) InvokerOption {
	return func(o *invokerOptions) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff 设置退避策略，默认 NewJitterBackoff()
func WithBackoff(p BackoffPolicy) InvokerOption {
	return func(o *invokerOptions) {
		if p != nil {
			o.backoff = p
		}
	}
}

// WithOnAttemptFailed 设置失败回调
func WithOnAttemptFailed(f AttemptFailedFunc) InvokerOption {
	return func(o *invokerOptions) {
		o.onAttemptFailed = f
	}
}

// WithInvokerTimer 替换退避等待使用的计时器
func WithInvokerTimer(t Timer) InvokerOption {
	return func(o *invokerOptions) {
		if t != nil {
			o.timer = t
		}
	}
}

// WithInvokerLogger 设置日志记录器，每次失败记录一条 Warn
func WithInvokerLogger(l xlog.Logger) InvokerOption {
	return func(o *invokerOptions) {
		o.logger = l
	}
}

var _ Executor = (*Invoker)(nil)

// Invoker 面向外部服务调用的重试器
//
// 与 Retryer 的区别：
//   - 默认 5 次尝试、加性抖动退避
//   - 每次失败（包括最后一次）都会回调，而不是只在重试前回调
//   - 用尽后返回最后一次的原始错误，不包装
//
// 标记为 PermanentError 或 Unrecoverable 的错误立即返回；
// ctx 取消时中断等待并返回 ctx 的错误。
type Invoker struct {
	retryer         *Retryer
	maxAttempts     int
	onAttemptFailed AttemptFailedFunc
	logger          xlog.Logger
}

// NewInvoker 创建 Invoker
func NewInvoker(opts ...InvokerOption) *Invoker {
	o := invokerOptions{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.backoff == nil {
		o.backoff = NewJitterBackoff()
	}

	return &Invoker{
		retryer: NewRetryer(
			WithRetryPolicy(NewFixedRetry(o.maxAttempts)),
			WithBackoffPolicy(o.backoff),
			WithTimer(o.timer),
		),
		maxAttempts:     o.maxAttempts,
		onAttemptFailed: o.onAttemptFailed,
		logger:          xlog.OrDiscard(o.logger).With(xlog.Component("xretry")),
	}
}

// MaxAttempts 返回总尝试次数
func (i *Invoker) MaxAttempts() int {
	if i == nil {
		return 0
	}
	return i.maxAttempts
}

// Do 实现 Executor，等同于 Invoke
func (i *Invoker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return i.Invoke(ctx, fn)
}

// Invoke 调用 fn，失败时按退避策略重试
func (i *Invoker) Invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	if i == nil {
		return ErrNilInvoker
	}
	if fn == nil {
		return ErrNilFunc
	}
	var attempt atomic.Int64
	return i.retryer.Do(ctx, func(ctx context.Context) error {
		n := int(attempt.Add(1))
		err := fn(ctx)
		if err != nil {
			i.attemptFailed(ctx, n, err)
		}
		return err
	})
}

// InvokeWithResult 带返回值的 Invoke
func InvokeWithResult[T any](ctx context.Context, i *Invoker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if i == nil {
		return zero, ErrNilInvoker
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	var attempt atomic.Int64
	return DoWithResult(ctx, i.retryer, func(ctx context.Context) (T, error) {
		n := int(attempt.Add(1))
		v, err := fn(ctx)
		if err != nil {
			i.attemptFailed(ctx, n, err)
		}
		return v, err
	})
}

func (i *Invoker) attemptFailed(ctx context.Context, attempt int, err error) {
	i.logger.Warn(ctx, "attempt failed",
		xlog.Attempt(attempt),
		slog.Int("max_attempts", i.maxAttempts),
		xlog.Err(err))
	if i.onAttemptFailed != nil {
		i.onAttemptFailed(attempt, err)
	}
}
