package xwindow

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrNilContext 传入 nil context
	ErrNilContext = errors.New("xwindow: nil context")

	// ErrInvalidLimits RPM、TPM、RPD 任一小于 1
	ErrInvalidLimits = errors.New("xwindow: invalid limits")

	// ErrInvalidEstimate 预估 token 数为负
	ErrInvalidEstimate = errors.New("xwindow: invalid token estimate")

	// ErrEstimateExceedsBudget 单个请求的预估 token 数超过 TPM。
	// 这样的请求永远无法放行，立即返回而不是无限等待。
	ErrEstimateExceedsBudget = errors.New("xwindow: token estimate exceeds per-minute budget")

	// ErrNilClient 传入 nil Redis 客户端
	ErrNilClient = errors.New("xwindow: redis client is nil")

	// errUnexpectedScriptResult Lua 脚本返回格式异常
	errUnexpectedScriptResult = errors.New("xwindow: unexpected script result")
)
