package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xadmit/pkg/lifecycle/xrun"
	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/resilience/xadmit"
	"github.com/omeyang/xadmit/pkg/resilience/xretry"
)

// errLoadFinished 负载发送完毕，用于结束 reporter
var errLoadFinished = errors.New("load finished")

type simOptions struct {
	requests     int
	workers      int
	latency      time.Duration
	failPercent  int
	outputTokens int
	attachments  int
	interval     time.Duration
	retryDelay   time.Duration
}

// createSimulateCommand 创建 simulate 子命令
func createSimulateCommand() *cli.Command {
	flags := append(loadFlags(),
		&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "状态打印间隔"},
	)
	return &cli.Command{
		Name:  "simulate",
		Usage: "用模拟的服务商调用驱动准入控制，定期打印门控和窗口状态",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := readSimOptions(cmd)
			if err != nil {
				return err
			}
			opts.interval = cmd.Duration("interval")
			if opts.interval <= 0 {
				return newUsageError("interval must be positive, got %s", opts.interval)
			}
			return runSimulation(ctx, cmd, opts)
		},
	}
}

// loadFlags simulate 与 serve --simulate 共用的负载参数
func loadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "requests", Value: 100, Usage: "请求总数"},
		&cli.IntFlag{Name: "workers", Value: 20, Usage: "并发发起请求的 worker 数"},
		&cli.DurationFlag{Name: "latency", Value: 50 * time.Millisecond, Usage: "模拟调用耗时"},
		&cli.IntFlag{Name: "fail-percent", Value: 0, Usage: "模拟调用失败的百分比 [0,100]"},
		&cli.IntFlag{Name: "output-tokens", Value: 4000, Usage: "每个请求的期望输出 token"},
		&cli.IntFlag{Name: "attachments", Value: 1, Usage: "每个请求的附件数"},
		&cli.DurationFlag{Name: "retry-delay", Usage: "固定重试间隔，0 表示默认抖动退避"},
	}
}

// readSimOptions 读取并校验负载参数
func readSimOptions(cmd *cli.Command) (simOptions, error) {
	opts := simOptions{
		requests:     cmd.Int("requests"),
		workers:      cmd.Int("workers"),
		latency:      cmd.Duration("latency"),
		failPercent:  cmd.Int("fail-percent"),
		outputTokens: cmd.Int("output-tokens"),
		attachments:  cmd.Int("attachments"),
		retryDelay:   cmd.Duration("retry-delay"),
	}
	if opts.requests < 1 || opts.workers < 1 {
		return simOptions{}, newUsageError("requests and workers must be positive")
	}
	if opts.failPercent < 0 || opts.failPercent > 100 {
		return simOptions{}, newUsageError("fail-percent must be within [0,100], got %d", opts.failPercent)
	}
	return opts, nil
}

// invoker 按 retry-delay 创建重试执行器
func (o simOptions) invoker(cfg xadmit.Config, logger xlog.Logger) *xretry.Invoker {
	invokerOpts := []xretry.InvokerOption{
		xretry.WithMaxAttempts(cfg.MaxAttempts),
		xretry.WithInvokerLogger(logger),
	}
	if o.retryDelay > 0 {
		invokerOpts = append(invokerOpts, xretry.WithBackoff(xretry.NewFixedBackoff(o.retryDelay)))
	}
	return xretry.NewInvoker(invokerOpts...)
}

// loadCounters 模拟负载的结果计数
type loadCounters struct {
	succeeded atomic.Int64
	failed    atomic.Int64
}

// load 返回发送全部模拟请求的服务函数，发送完毕返回 errLoadFinished
//
// worker 数由 errgroup.SetLimit 限定，队列满时阻塞而不是丢弃请求。
func (o simOptions) load(ctrl *xadmit.Controller, counters *loadCounters) func(ctx context.Context) error {
	provider := fakeProvider{latency: o.latency, failPercent: o.failPercent}
	tokens := xadmit.DefaultEstimator().Estimate(o.outputTokens, o.attachments)
	return func(ctx context.Context) error {
		var eg errgroup.Group
		eg.SetLimit(o.workers)
		for i := range o.requests {
			if ctx.Err() != nil {
				break
			}
			req := xadmit.Request{ID: fmt.Sprintf("sim-%d", i), Tokens: tokens}
			eg.Go(func() error {
				if err := ctrl.Do(ctx, req, provider.call); err != nil {
					counters.failed.Add(1)
					return nil
				}
				counters.succeeded.Add(1)
				return nil
			})
		}
		_ = eg.Wait() //nolint:errcheck // worker 不返回错误
		return errLoadFinished
	}
}

// fakeProvider 模拟服务商：固定耗时，按比例失败
type fakeProvider struct {
	latency     time.Duration
	failPercent int
}

func (p fakeProvider) call(ctx context.Context) error {
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.failPercent > 0 && rand.IntN(100) < p.failPercent { //nolint:gosec // 模拟失败无需安全随机数
		return errors.New("simulated 503")
	}
	return nil
}

func runSimulation(ctx context.Context, cmd *cli.Command, opts simOptions) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, cleanup, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup() //nolint:errcheck // stderr 无需关闭

	ctrl, err := xadmit.NewFromConfig(cfg,
		xadmit.WithLogger(logger),
		xadmit.WithInvoker(opts.invoker(cfg, logger)),
	)
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck // 进程即将退出

	out := writer(cmd)
	var counters loadCounters
	start := time.Now()
	report := func(ctx context.Context) error {
		printSnapshot(ctx, out, ctrl)
		return nil
	}

	err = xrun.RunWithOptions(ctx, []xrun.Option{xrun.WithLogger(logger), xrun.WithName("simulate")},
		xrun.Ticker(opts.interval, false, report),
		opts.load(ctrl, &counters),
	)
	if err != nil && !errors.Is(err, errLoadFinished) && !errors.Is(err, xrun.ErrSignal) {
		return err
	}

	fmt.Fprintf(out, "done: succeeded=%d failed=%d elapsed=%s\n",
		counters.succeeded.Load(), counters.failed.Load(), time.Since(start).Round(time.Millisecond))
	printSnapshot(context.Background(), out, ctrl)
	return nil
}

// printSnapshot 单行输出门控与窗口状态
func printSnapshot(ctx context.Context, out io.Writer, ctrl *xadmit.Controller) {
	snap, err := ctrl.Snapshot(ctx)
	g, u, l := snap.Gate, snap.Usage, snap.Limits
	fmt.Fprintf(out, "gate in_flight=%d/%d peak=%d admitted=%d blocked=%d",
		g.InFlight, g.Capacity, g.PeakInFlight, g.TotalAdmitted, g.TotalBlocked)
	if err != nil {
		fmt.Fprintf(out, " | window unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(out, " | rpm %d/%d tpm %d/%d rpd %d/%d\n",
		u.Requests, l.RPM, u.Tokens, l.TPM, u.Daily, l.RPD)
}
