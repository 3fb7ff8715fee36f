// Package xgate 提供进程级的并发门控，限制同时在途的外呼请求数。
//
// # 核心概念
//
//   - Gate: 容量可运行时调整的计数门控，由调用方显式创建并注入
//   - Permit: Acquire 返回的许可，Release 幂等，适合 defer
//   - Stats: 只读快照（容量、在途数、峰值、累计通过/阻塞次数）
//
// # 使用示例
//
//	gate, err := xgate.New(200, xgate.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	permit, err := gate.Acquire(ctx, requestID)
//	if err != nil {
//	    return err // ctx 取消
//	}
//	defer permit.Release()
//
// # 容量调整
//
// SetCapacity(ctx, n, true) 在缩容时先把准入上限降到 n，等在途请求自然回落后
// 再应用，最长等待 WithDrainTimeout 指定的时间；SetCapacity(ctx, n, false) 立即生效。
// 扩容总是立即生效并唤醒等待方。
//
// # 公平性
//
// 不保证 FIFO：名额释放时所有等待方被唤醒，先抢到锁者先通过。
//
// # 可观测性
//
// 阻塞次数每累计 10 次（WithBlockedWarnEvery）输出一条 Warn 日志。
// 配置 WithMeterProvider 后导出 xgate.admitted.total、xgate.blocked.total、
// xgate.wait.duration 以及异步 gauge xgate.in_flight、xgate.capacity。
package xgate
