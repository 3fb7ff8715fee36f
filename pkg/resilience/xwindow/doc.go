// Package xwindow 提供面向外部模型服务的多窗口限流：RPM、TPM、RPD 同时生效。
//
// # 窗口语义
//
// 三个窗口都是滑动日志而非固定桶：
//   - RPM: 最近 60 秒内的请求数
//   - TPM: 最近 60 秒内放行请求的预估 token 总和
//   - RPD: 最近 24 小时内的请求数（滚动窗口，不在零点重置）
//
// 记录在 at <= now-window 时过期。过期记录在每次访问时惰性剔除，不需要后台清理。
//
// # 使用示例
//
//	limiter, err := xwindow.New(xwindow.Limits{RPM: 150, TPM: 2_000_000, RPD: 10_000})
//	if err != nil {
//	    return err
//	}
//	if err := limiter.Wait(ctx, estimatedTokens); err != nil {
//	    return err
//	}
//	// 调用外部服务
//
// # 后端
//
//   - NewLocalBackend: 进程内，默认
//   - NewRedisBackend: 多进程共享一份配额，剔除、检查、追加在一段 Lua 脚本中原子完成
//
// # 等待策略
//
// 未放行时后端返回所有阻塞窗口最早可能同时满足的时间，Wait 按此休眠，
// 单次休眠不超过 WithMaxSleep（默认 1s）。SetLimits 会立即唤醒等待方。
package xwindow
