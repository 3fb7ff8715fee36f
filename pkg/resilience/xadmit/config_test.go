package xadmit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xadmit/pkg/config/xconf"
	"github.com/omeyang/xadmit/pkg/resilience/xplan"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xadmit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 200, cfg.MaxGlobalConcurrency)
	assert.Equal(t, 150, cfg.MaxRPM)
	assert.Equal(t, 2_000_000, cfg.MaxTPM)
	assert.Equal(t, 10_000, cfg.MaxRPD)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
	assert.Zero(t, cfg.BreakerFailures)
	assert.Equal(t, DefaultBreakerTimeout, cfg.BreakerTimeout)

	assert.Equal(t, xplan.Workload{
		PageConcurrency: 5, FileCount: 10, RPM: 150, TPM: 2_000_000, RPD: 10_000, GlobalCapacity: 200,
	}, cfg.Workload())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"zero capacity", func(c *Config) { c.MaxGlobalConcurrency = 0 }, "max_global_concurrency"},
		{"negative rpm", func(c *Config) { c.MaxRPM = -1 }, "max_rpm"},
		{"zero tpm", func(c *Config) { c.MaxTPM = 0 }, "max_tpm"},
		{"zero rpd", func(c *Config) { c.MaxRPD = 0 }, "max_rpd"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max_attempts"},
		{"negative drain", func(c *Config) { c.DrainTimeout = -time.Second }, "drain_timeout"},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, "verbose"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"negative breaker failures", func(c *Config) { c.BreakerFailures = -1 }, "breaker_failures"},
		{"huge breaker failures", func(c *Config) { c.BreakerFailures = maxBreakerFailures + 1 }, "breaker_failures"},
		{"negative breaker timeout", func(c *Config) { c.BreakerTimeout = -time.Second }, "breaker_timeout"},
		{"redis without key", func(c *Config) { c.RedisAddr = "localhost:6379"; c.RedisKey = "" }, "redis_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
max_global_concurrency: 50
max_rpm: 60
drain_timeout: 10s
log_format: json
`)
	t.Setenv("XADMIT_MAX_RPM", "300")

	cfg, src, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, 50, cfg.MaxGlobalConcurrency)
	assert.Equal(t, 300, cfg.MaxRPM)
	assert.Equal(t, 10*time.Second, cfg.DrainTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, DefaultMaxTPM, cfg.MaxTPM)
	assert.Equal(t, path, src.Path())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = LoadConfig(writeConfig(t, "max_rpm: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDecode_FromBytes(t *testing.T) {
	src, err := xconf.NewFromBytes([]byte(`{"max_tpm": 1000, "page_concurrency": 2}`), xconf.FormatJSON)
	require.NoError(t, err)
	cfg, err := Decode(src)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MaxTPM)
	assert.Equal(t, 2, cfg.PageConcurrency)
	assert.Equal(t, DefaultMaxRPM, cfg.MaxRPM)
}
