// Package xlog 基于 log/slog 的结构化日志库。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xadmit.log", xlog.Rotation{MaxSizeMB: 50}).
//		Build()
//	defer cleanup()
//
// 文件轮转使用 lumberjack，按大小切分。
//
// # 组件内使用
//
// xgate、xwindow 等组件通过 WithLogger 注入 Logger；未注入时使用 [Discard]，
// 调用方无需判空。[Default] 仅面向命令行工具。
//
// # 级别
//
// LevelDebug(-4)、LevelInfo(0)、LevelWarn(4)、LevelError(8)，可由 [ParseLevel] 解析，
// Build 返回的 Logger 支持运行时 SetLevel（配置热更新时使用）。
package xlog
