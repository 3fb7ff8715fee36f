package xwindow

import (
	"context"
	"time"
)

// Backend 滑动窗口存储
//
// 职责单一：剔除过期记录、检查三个窗口、放行时追加记录，这三步必须原子完成。
// 配额由调用方每次传入，运行时调整 Limits 不需要重建后端。
// 实现应该是并发安全的。
type Backend interface {
	// Reserve 在 now 时刻尝试为一个预估 tokens 的请求预留配额
	Reserve(ctx context.Context, now time.Time, limits Limits, tokens int) (Decision, error)

	// Usage 返回 now 时刻各窗口的用量，不消耗配额
	Usage(ctx context.Context, now time.Time) (Usage, error)

	// Type 返回后端类型标识，用于日志和指标
	Type() string
}

const (
	backendTypeLocal = "local"
	backendTypeRedis = "redis"
)
