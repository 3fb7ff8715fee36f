package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/omeyang/xadmit/pkg/config/xconf"
	"github.com/omeyang/xadmit/pkg/lifecycle/xrun"
	"github.com/omeyang/xadmit/pkg/observability/xadmitstats"
	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/observability/xmetrics"
	"github.com/omeyang/xadmit/pkg/resilience/xadmit"
)

const shutdownTimeout = 5 * time.Second

// createServeCommand 创建 serve 子命令
func createServeCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "监听地址，默认取配置 stats_addr"},
		&cli.BoolFlag{Name: "simulate", Usage: "启动后通过控制器发送一批模拟请求"},
	}, loadFlags()...)
	return &cli.Command{
		Name:  "serve",
		Usage: "启动状态服务并监听配置文件热更新",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServe(ctx, cmd)
		},
	}
}

// statsStack serve 使用的控制器、OTel 指标出口和 HTTP 路由
type statsStack struct {
	ctrl     *xadmit.Controller
	handler  http.Handler
	provider *sdkmetric.MeterProvider
}

// newStatsStack 创建控制器并把它的快照与 OTel 指标挂到同一个 /metrics
func newStatsStack(cfg xadmit.Config, logger xlog.Logger, extra ...xadmit.Option) (*statsStack, error) {
	reg := xadmitstats.NewRegistry()
	provider, err := xadmitstats.NewMeterProvider(reg)
	if err != nil {
		return nil, err
	}
	observer, err := xmetrics.NewOTelObserver(
		xmetrics.WithMeterProvider(provider),
		xmetrics.WithInstrumentationName("xadmitctl"),
	)
	if err != nil {
		_ = provider.Shutdown(context.Background()) //nolint:errcheck // 初始化失败路径
		return nil, err
	}

	opts := append([]xadmit.Option{
		xadmit.WithLogger(logger),
		xadmit.WithMeterProvider(provider),
		xadmit.WithObserver(observer),
	}, extra...)
	ctrl, err := xadmit.NewFromConfig(cfg, opts...)
	if err != nil {
		_ = provider.Shutdown(context.Background()) //nolint:errcheck // 初始化失败路径
		return nil, err
	}

	handler, err := xadmitstats.NewHandler(ctrl, xadmitstats.WithLogger(logger), xadmitstats.WithRegistry(reg))
	if err != nil {
		_ = ctrl.Close()                            //nolint:errcheck // 初始化失败路径
		_ = provider.Shutdown(context.Background()) //nolint:errcheck // 同上
		return nil, err
	}
	return &statsStack{ctrl: ctrl, handler: handler, provider: provider}, nil
}

// Close 释放控制器资源并关闭 MeterProvider
func (s *statsStack) Close() error {
	return errors.Join(s.ctrl.Close(), s.provider.Shutdown(context.Background()))
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, src, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("addr") {
		cfg.StatsAddr = cmd.String("addr")
	}
	simulate := cmd.Bool("simulate")
	var sim simOptions
	if simulate {
		if sim, err = readSimOptions(cmd); err != nil {
			return err
		}
	}

	logger, cleanup, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup() //nolint:errcheck // stderr 无需关闭

	var extra []xadmit.Option
	if simulate {
		extra = append(extra, xadmit.WithInvoker(sim.invoker(cfg, logger)))
	}
	stack, err := newStatsStack(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer stack.Close() //nolint:errcheck // 进程即将退出

	server := &http.Server{
		Addr:              cfg.StatsAddr,
		Handler:           stack.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	services := []func(ctx context.Context) error{xrun.HTTPServer(server, shutdownTimeout)}

	// 只有文件来源的配置才能热更新
	if src.Path() != "" {
		watcher, err := xconf.Watch(src, reloadCallback(stack.ctrl, logger))
		if err != nil {
			return err
		}
		defer watcher.Close() //nolint:errcheck // Run 返回后关闭幂等
		services = append(services, watcher.Run)
	}
	if simulate {
		services = append(services, simulatedTraffic(stack.ctrl, sim, logger))
	}

	logger.Info(ctx, "serving stats", slog.String("addr", cfg.StatsAddr), slog.String("config", src.Path()),
		slog.Bool("simulate", simulate))
	err = xrun.RunWithOptions(ctx, []xrun.Option{xrun.WithLogger(logger), xrun.WithName("xadmitctl")}, services...)

	if !stack.ctrl.Drain(context.Background()) {
		logger.Warn(context.Background(), "exiting with requests still in flight")
	}
	if err != nil && !errors.Is(err, xrun.ErrSignal) {
		return err
	}
	return nil
}

// simulatedTraffic 发送一批模拟请求后返回 nil，服务继续运行
func simulatedTraffic(ctrl *xadmit.Controller, opts simOptions, logger xlog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var counters loadCounters
		err := opts.load(ctrl, &counters)(ctx)
		if !errors.Is(err, errLoadFinished) {
			return err
		}
		logger.Info(ctx, "simulated traffic finished",
			slog.Int64("succeeded", counters.succeeded.Load()),
			slog.Int64("failed", counters.failed.Load()))
		return nil
	}
}

// reloadCallback 配置文件变更时应用新的容量、配额和日志级别
//
// 解析或校验失败时保留当前配置。
func reloadCallback(ctrl *xadmit.Controller, logger xlog.LoggerWithLevel) xconf.WatchCallback {
	return func(src xconf.Config, err error) {
		ctx := context.Background()
		if err != nil {
			logger.Warn(ctx, "config reload failed, keeping current settings", xlog.Err(err))
			return
		}
		next, err := xadmit.Decode(src)
		if err != nil {
			logger.Warn(ctx, "reloaded config rejected", xlog.Err(err))
			return
		}
		if err := ctrl.Apply(ctx, next); err != nil {
			logger.Warn(ctx, "apply reloaded config failed", xlog.Err(err))
			return
		}
		if level, err := xlog.ParseLevel(next.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	}
}
