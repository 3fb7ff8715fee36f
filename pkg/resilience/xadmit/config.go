package xadmit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omeyang/xadmit/pkg/config/xconf"
	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/resilience/xplan"
	"github.com/omeyang/xadmit/pkg/resilience/xwindow"
)

// EnvPrefix 环境变量覆盖前缀，例如 XADMIT_MAX_RPM=300
const EnvPrefix = "XADMIT"

// 默认配额
const (
	DefaultMaxGlobalConcurrency = 200
	DefaultMaxRPM               = 150
	DefaultMaxTPM               = 2_000_000
	DefaultMaxRPD               = 10_000
	DefaultDrainTimeout         = 30 * time.Second
	DefaultPageConcurrency      = 5
	DefaultFileCount            = 10
	DefaultBreakerTimeout       = 60 * time.Second

	maxBreakerFailures = 1_000_000
)

// Config 准入控制配置
//
// 加载顺序：DefaultConfig → 配置文件 → XADMIT_* 环境变量。
type Config struct {
	MaxGlobalConcurrency int           `json:"max_global_concurrency" koanf:"max_global_concurrency"`
	MaxRPM               int           `json:"max_rpm" koanf:"max_rpm"`
	MaxTPM               int           `json:"max_tpm" koanf:"max_tpm"`
	MaxRPD               int           `json:"max_rpd" koanf:"max_rpd"`
	DrainTimeout         time.Duration `json:"drain_timeout" koanf:"drain_timeout"`
	MaxAttempts          int           `json:"max_attempts" koanf:"max_attempts"`

	// BreakerFailures 连续失败多少次后熔断服务商调用，0 表示不启用熔断器
	BreakerFailures int           `json:"breaker_failures" koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `json:"breaker_timeout" koanf:"breaker_timeout"`

	// PageConcurrency 与 FileCount 描述批处理工作负载，供 plan/validate 使用
	PageConcurrency int `json:"page_concurrency" koanf:"page_concurrency"`
	FileCount       int `json:"file_count" koanf:"file_count"`

	LogLevel  string `json:"log_level" koanf:"log_level"`
	LogFormat string `json:"log_format" koanf:"log_format"`

	// RedisAddr 非空时窗口数据存放在 redis，多进程共享同一份配额
	RedisAddr string `json:"redis_addr" koanf:"redis_addr"`
	RedisKey  string `json:"redis_key" koanf:"redis_key"`

	// StatsAddr serve 子命令的监听地址
	StatsAddr string `json:"stats_addr" koanf:"stats_addr"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxGlobalConcurrency: DefaultMaxGlobalConcurrency,
		MaxRPM:               DefaultMaxRPM,
		MaxTPM:               DefaultMaxTPM,
		MaxRPD:               DefaultMaxRPD,
		DrainTimeout:         DefaultDrainTimeout,
		MaxAttempts:          5,
		BreakerTimeout:       DefaultBreakerTimeout,
		PageConcurrency:      DefaultPageConcurrency,
		FileCount:            DefaultFileCount,
		LogLevel:             "info",
		LogFormat:            "text",
		RedisKey:             "xadmit",
		StatsAddr:            ":9464",
	}
}

// Limits 返回限流器配额
func (c Config) Limits() xwindow.Limits {
	return xwindow.Limits{RPM: c.MaxRPM, TPM: c.MaxTPM, RPD: c.MaxRPD}
}

// Workload 返回用于并发规划的工作负载描述
func (c Config) Workload() xplan.Workload {
	return xplan.Workload{
		PageConcurrency: c.PageConcurrency,
		FileCount:       c.FileCount,
		RPM:             c.MaxRPM,
		TPM:             c.MaxTPM,
		RPD:             c.MaxRPD,
		GlobalCapacity:  c.MaxGlobalConcurrency,
	}
}

// Validate 校验配置，非法值直接拒绝，不做截断
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("max_global_concurrency", c.MaxGlobalConcurrency)
	positive("max_rpm", c.MaxRPM)
	positive("max_tpm", c.MaxTPM)
	positive("max_rpd", c.MaxRPD)
	positive("max_attempts", c.MaxAttempts)
	positive("page_concurrency", c.PageConcurrency)
	positive("file_count", c.FileCount)
	if c.BreakerFailures < 0 || c.BreakerFailures > maxBreakerFailures {
		errs = append(errs, fmt.Errorf("breaker_failures must be within [0, %d], got %d",
			maxBreakerFailures, c.BreakerFailures))
	}
	if c.BreakerTimeout < 0 {
		errs = append(errs, fmt.Errorf("breaker_timeout must not be negative, got %s", c.BreakerTimeout))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must not be negative, got %s", c.DrainTimeout))
	}
	if _, err := xlog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.RedisAddr != "" && c.RedisKey == "" {
		errs = append(errs, errors.New("redis_key must not be empty when redis_addr is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig 从文件加载配置并叠加 XADMIT_* 环境变量
//
// 同时返回底层 xconf.Config，调用方可用 xconf.Watch 监听文件变化，
// 在回调中通过 Decode 取得新配置。
func LoadConfig(path string) (Config, xconf.Config, error) {
	src, err := xconf.New(path, xconf.WithEnvPrefix(EnvPrefix))
	if err != nil {
		return Config{}, nil, err
	}
	cfg, err := Decode(src)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, src, nil
}

// Decode 以默认值为底解码配置源并校验
func Decode(src xconf.Config) (Config, error) {
	cfg := DefaultConfig()
	if err := src.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
