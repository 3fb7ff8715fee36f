package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 Key
const (
	KeyError      = "error"
	KeyDuration   = "duration"
	KeyComponent  = "component"
	KeyRequestID  = "request_id"
	KeyAttempt    = "attempt"
	KeyCapacity   = "capacity"
	KeyInFlight   = "in_flight"
	KeyCount      = "count"
	KeyLimitKind  = "limit"
	KeyRetryAfter = "retry_after"
)

// Err 创建错误属性，nil 返回空属性（slog 会忽略）
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性（人类可读格式）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// RequestID 创建请求 ID 属性
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Attempt 创建尝试次数属性（从 1 开始）
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Count 创建计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}
