// Package xrun 提供进程生命周期管理：并发运行多个服务并协调关闭。
//
// 基于 errgroup 实现，任一服务出错或收到系统信号时取消全部服务。
// 退出原因通过 context.Cause 传播，信号退出时 Wait 返回 *SignalError。
//
//	err := xrun.RunWithOptions(ctx, []xrun.Option{xrun.WithLogger(logger)},
//	    xrun.HTTPServer(statsServer, 5*time.Second),
//	    watcher.Run,
//	)
//	if err != nil && !errors.Is(err, xrun.ErrSignal) {
//	    return err
//	}
package xrun
