package xretry

import (
	"errors"
)

var (
	// ErrNilRetryer 在 nil *Retryer 上调用 Do
	ErrNilRetryer = errors.New("xretry: nil retryer")
	// ErrNilInvoker 在 nil *Invoker 上调用
	ErrNilInvoker = errors.New("xretry: nil invoker")
	// ErrNilContext 传入了 nil context
	ErrNilContext = errors.New("xretry: nil context")
	// ErrNilFunc 传入了 nil 函数
	ErrNilFunc = errors.New("xretry: nil function")
)

// RetryableError 可重试错误接口
// 实现此接口的错误会被自动识别为可重试或不可重试
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误（不应重试）
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// TemporaryError 临时性错误（应该重试）
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

// IsRetryable 检查错误是否可重试
// 规则：
//   - nil 错误：不需要重试（视为成功）
//   - 实现 RetryableError 接口：根据 Retryable() 返回值判断
//   - 其他错误：默认视为可重试
//
// 外部服务的失败原因（超时、限流、5xx）调用方通常无法区分，
// 因此未知错误一律重试，只有显式标记的错误才会终止。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// IsPermanent 检查错误是否被标记为永久性错误
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
