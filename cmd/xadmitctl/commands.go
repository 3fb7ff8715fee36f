package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xadmit/pkg/resilience/xplan"
)

// workloadFlags plan/validate 共用的工作负载参数，未设置时取配置值
func workloadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "page", Usage: "每个文件的页面并发"},
		&cli.IntFlag{Name: "files", Usage: "同时处理的文件数"},
		&cli.IntFlag{Name: "rpm", Usage: "每分钟请求上限"},
		&cli.IntFlag{Name: "tpm", Usage: "每分钟 token 上限"},
		&cli.IntFlag{Name: "rpd", Usage: "每 24 小时请求上限"},
		&cli.IntFlag{Name: "capacity", Usage: "全局并发容量"},
	}
}

// resolveWorkload 以配置为底，用显式设置的参数覆盖
func resolveWorkload(cmd *cli.Command) (xplan.Workload, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return xplan.Workload{}, err
	}
	w := cfg.Workload()
	override := func(name string, dst *int) {
		if cmd.IsSet(name) {
			*dst = cmd.Int(name)
		}
	}
	override("page", &w.PageConcurrency)
	override("files", &w.FileCount)
	override("rpm", &w.RPM)
	override("tpm", &w.TPM)
	override("rpd", &w.RPD)
	override("capacity", &w.GlobalCapacity)
	return w, nil
}

func writer(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

// createPlanCommand 创建 plan 子命令
func createPlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "计算不超过容量和 RPM 安全余量的页面/文件并发",
		Flags: workloadFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			w, err := resolveWorkload(cmd)
			if err != nil {
				return err
			}
			plan, err := xplan.OptimalConcurrency(w.PageConcurrency, w.FileCount, w.RPM, w.GlobalCapacity)
			if err != nil {
				return newUsageError("%v", err)
			}
			out := writer(cmd)
			fmt.Fprintf(out, "requested: %d pages x %d files = %d\n",
				w.PageConcurrency, w.FileCount, w.TheoreticalMax())
			fmt.Fprintf(out, "plan:      %s\n", plan)
			return nil
		},
	}
}

// createValidateCommand 创建 validate 子命令，配置无效时退出码为 1
func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "检查工作负载是否超出全局容量，并给出配额告警",
		Flags: workloadFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			w, err := resolveWorkload(cmd)
			if err != nil {
				return err
			}
			valid, warnings := xplan.ValidateConfig(w)
			out := writer(cmd)
			if valid {
				fmt.Fprintln(out, "valid")
			} else {
				fmt.Fprintln(out, "invalid")
			}
			for _, warning := range warnings {
				fmt.Fprintf(out, "  - %s\n", warning)
			}
			if !valid {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}
