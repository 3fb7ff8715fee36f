package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNilBreaker 在 nil *Breaker 上调用
	ErrNilBreaker = errors.New("xbreaker: breaker cannot be nil")

	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xbreaker: context cannot be nil")

	// ErrNilFunc 传入的操作函数为 nil
	ErrNilFunc = errors.New("xbreaker: function cannot be nil")
)

// BreakerError 熔断器拒绝请求时返回的错误
//
// 熔断器打开说明下游不可用，退避重试只会延长失败时间，
// 因此 Retryable() 返回 false。
type BreakerError struct {
	Err   error  // ErrOpenState 或 ErrTooManyRequests
	Name  string // 熔断器名称
	State State  // 拒绝时的状态
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 实现 xretry.RetryableError
func (e *BreakerError) Retryable() bool {
	return false
}

// wrapBreakerError 熔断器自身的拒绝包装为 BreakerError，其余错误原样返回
//
// 状态从错误类型推导，不再查询 State()，避免与并发的状态变化竞争。
func wrapBreakerError(err error, name string) error {
	if err == nil {
		return nil
	}
	var be *BreakerError
	if errors.As(err, &be) {
		return err
	}
	// 只匹配直接返回的 sentinel，嵌套熔断器的错误不归到当前熔断器
	switch err { //nolint:errorlint // 只识别 gobreaker 直接返回的 sentinel
	case gobreaker.ErrOpenState:
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case gobreaker.ErrTooManyRequests:
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	}
	return err
}

// IsOpen 检查错误是否是熔断器打开错误
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsTooManyRequests 检查错误是否是半开状态下请求过多
func IsTooManyRequests(err error) bool {
	return errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsBreakerError 检查错误是否来自熔断器拒绝
func IsBreakerError(err error) bool {
	return IsOpen(err) || IsTooManyRequests(err)
}
