package xretry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// safeIntToUint 将 int 安全转换为 uint，负数返回 0
func safeIntToUint(n int) uint {
	if n <= 0 {
		return 0
	}
	return uint(n)
}

// safeUintToInt 将 uint 安全转换为 int，超过 MaxInt 截断
func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

var _ Executor = (*Retryer)(nil)

// Retryer 重试执行器
//
// 组合 RetryPolicy 与 BackoffPolicy，底层使用 avast/retry-go/v5。
// Retryer 本身无状态，可被多个 goroutine 共享。
type Retryer struct {
	retryPolicy   RetryPolicy
	backoffPolicy BackoffPolicy
	onRetry       func(attempt int, err error)
	timer         Timer
}

// RetryerOption 执行器配置选项
type RetryerOption func(*Retryer)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.retryPolicy = p
		}
	}
}

// WithBackoffPolicy 设置退避策略
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoffPolicy = p
		}
	}
}

// WithOnRetry 设置重试回调，只在确定要重试时调用
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// WithTimer 替换重试间隔使用的计时器，主要用于测试
func WithTimer(t Timer) RetryerOption {
	return func(r *Retryer) {
		if t != nil {
			r.timer = t
		}
	}
}

// NewRetryer 创建重试执行器
// 默认使用 FixedRetry(3) 和 ExponentialBackoff
//
// 设计决策: 返回 *Retryer 而非 Executor 接口，因为泛型函数 DoWithResult
// 需要访问内部方法。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		retryPolicy:   NewFixedRetry(3),
		backoffPolicy: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Do 执行带重试的操作，失败时返回最后一次的错误
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.buildOptions(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 执行带重试的操作（有返回值）
//
// 泛型函数，必须作为包级函数使用。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.buildOptions(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

// buildOptions 构建 retry-go 的选项
// 每次调用重建选项切片，RetryIf 闭包中的计数只属于这一次 Do。
func (r *Retryer) buildOptions(ctx context.Context) []retry.Option {
	opts := make([]retry.Option, 0, 7)
	opts = append(opts, retry.Context(ctx))

	retryPolicy := r.retryPolicy
	if retryPolicy == nil {
		retryPolicy = NewFixedRetry(3)
	}
	backoffPolicy := r.backoffPolicy
	if backoffPolicy == nil {
		backoffPolicy = NewExponentialBackoff()
	}

	// maxAttempts <= 0 视为无限重试
	if maxAttempts := retryPolicy.MaxAttempts(); maxAttempts <= 0 {
		opts = append(opts, retry.UntilSucceeded())
	} else {
		opts = append(opts, retry.Attempts(safeIntToUint(maxAttempts)))
	}

	// Attempts 是硬上限，ShouldRetry 可以提前终止。
	// attemptCount 表示已失败次数（1-based）。
	var attemptCount atomic.Int64
	opts = append(opts, retry.RetryIf(func(err error) bool {
		count := int(attemptCount.Add(1))
		if !retry.IsRecoverable(err) {
			return false
		}
		return retryPolicy.ShouldRetry(ctx, count, err)
	}))

	// retry-go v5 中 DelayType 的 n 从 1 开始，与 NextDelay 一致
	opts = append(opts, retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
		return backoffPolicy.NextDelay(safeUintToInt(n))
	}))

	if r.onRetry != nil {
		// OnRetry 的 n 从 0 开始
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			r.onRetry(safeUintToInt(n)+1, err)
		}))
	}
	if r.timer != nil {
		opts = append(opts, retry.WithTimer(r.timer))
	}

	// 原样返回最后一次错误，调用方可以直接 errors.Is
	opts = append(opts, retry.LastErrorOnly(true))
	return opts
}

// RetryPolicy 返回当前重试策略，nil 接收者返回 nil
func (r *Retryer) RetryPolicy() RetryPolicy {
	if r == nil {
		return nil
	}
	return r.retryPolicy
}

// BackoffPolicy 返回当前退避策略，nil 接收者返回 nil
func (r *Retryer) BackoffPolicy() BackoffPolicy {
	if r == nil {
		return nil
	}
	return r.backoffPolicy
}
