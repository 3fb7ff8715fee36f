package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xadmit/pkg/config/xconf"
	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/resilience/xadmit"
)

// loadConfig 读取 --config 指定的文件；未指定时只叠加环境变量
func loadConfig(cmd *cli.Command) (xadmit.Config, xconf.Config, error) {
	if path := cmd.String("config"); path != "" {
		return xadmit.LoadConfig(path)
	}
	src, err := xconf.NewFromBytes([]byte("{}"), xconf.FormatJSON, xconf.WithEnvPrefix(xadmit.EnvPrefix))
	if err != nil {
		return xadmit.Config{}, nil, err
	}
	cfg, err := xadmit.Decode(src)
	if err != nil {
		return xadmit.Config{}, nil, err
	}
	return cfg, src, nil
}

// buildLogger 按配置创建输出到 stderr 的日志记录器
func buildLogger(cfg xadmit.Config) (xlog.LoggerWithLevel, func() error, error) {
	return xlog.New().
		SetOutput(os.Stderr).
		SetLevelString(cfg.LogLevel).
		SetFormat(cfg.LogFormat).
		Build()
}
