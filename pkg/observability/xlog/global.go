package xlog

import (
	"sync"
	"sync/atomic"
)

// =============================================================================
// 全局 Logger
//
// 定位：命令行工具等简单场景。库代码一律通过 WithLogger 注入。
// =============================================================================

var (
	globalLogger atomic.Pointer[LoggerWithLevel]
	globalMu     sync.Mutex
)

// Default 返回全局默认 Logger（惰性初始化：stderr、Info、text）
func Default() LoggerWithLevel {
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	// 默认参数不会失败
	logger, _, _ := New().Build() //nolint:errcheck // 默认配置无错误
	globalLogger.Store(&logger)
	return logger
}

// SetDefault 替换全局默认 Logger，nil 被忽略
func SetDefault(l LoggerWithLevel) {
	if l == nil {
		return
	}
	globalLogger.Store(&l)
}
