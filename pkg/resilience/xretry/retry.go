package xretry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// RetryPolicy 定义重试策略接口
//
// 通过 Retryer 使用时：
//   - MaxAttempts() 设置 retry-go 的 Attempts 上限
//   - ShouldRetry() 在每次失败后被调用
//   - Unrecoverable 错误会在 ShouldRetry 之前被短路拦截
type RetryPolicy interface {
	// MaxAttempts 返回最大尝试次数（包含首次尝试）
	// 返回 0 表示无限重试
	MaxAttempts() int

	// ShouldRetry 判断是否应该重试
	// attempt: 已失败次数（从 1 开始）
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 定义退避策略接口
type BackoffPolicy interface {
	// NextDelay 返回第 attempt 次失败后的等待时间（attempt 从 1 开始）
	NextDelay(attempt int) time.Duration
}

// Executor 重试执行器接口
//
// Retryer 与 Invoker 都实现此接口，调用方如需 mock 可以依赖它。
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type (
	// Option 是 retry-go 的配置选项类型
	Option = retry.Option

	// Timer 控制重试间隔的计时器，测试中可替换为立即触发的实现
	Timer = retry.Timer
)

var (
	// Unrecoverable 将错误标记为不可恢复（不再重试）
	Unrecoverable = retry.Unrecoverable

	// IsRecoverable 检查错误是否可恢复
	IsRecoverable = retry.IsRecoverable
)
