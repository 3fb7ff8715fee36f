// xadmitctl 是 xadmit 准入控制的命令行工具。
//
// 用法:
//
//	xadmitctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径（YAML/JSON），为空时使用默认值 + XADMIT_* 环境变量
//
// 命令:
//
//	plan           根据工作负载计算安全的页面/文件并发
//	validate       检查工作负载配置，给出告警
//	simulate       用模拟的服务商调用压测准入控制，定期打印状态
//	serve          启动状态服务（/stats、/metrics、/healthz），监听配置文件热更新；
//	               --simulate 时通过同一个控制器发送一批模拟请求
//
// 退出码:
//
//	0: 成功
//	1: 执行失败，或 validate 判定配置无效
//	2: 参数错误
//
// 示例:
//
//	xadmitctl plan --page 50 --files 10 --rpm 100 --capacity 100
//	xadmitctl -c xadmit.yaml validate
//	xadmitctl simulate --requests 200 --workers 20 --fail-percent 10
//	XADMIT_MAX_RPM=300 xadmitctl -c xadmit.yaml serve
//	xadmitctl serve --addr :9464 --simulate --requests 500 --fail-percent 5
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args))
}

// createApp 创建 CLI 应用
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xadmitctl",
		Usage:   "出站生成请求的准入控制工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（YAML/JSON）",
			},
		},
		Commands: []*cli.Command{
			createPlanCommand(),
			createValidateCommand(),
			createSimulateCommand(),
			createServeCommand(),
		},
		// 禁止 urfave/cli 直接 os.Exit，由 run 统一映射退出码
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string) int {
	if err := createApp().Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// exitError 输出已完成，只需设置退出码
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
