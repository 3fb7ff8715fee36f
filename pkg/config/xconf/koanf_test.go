package xconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type limitsSection struct {
	RPM int    `koanf:"rpm"`
	TPM int    `koanf:"tpm"`
	Tag string `koanf:"tag"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "limits:\n  rpm: 150\n  tpm: 2000000\n")
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, cfg.Format())
		assert.Equal(t, path, cfg.Path())
		assert.Equal(t, 150, cfg.Client().Int("limits.rpm"))
	})

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "config.json", `{"limits":{"rpm":10}}`)
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, cfg.Format())
		assert.Equal(t, 10, cfg.Client().Int("limits.rpm"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyPath)

		_, err = New("config.toml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)

		_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, ErrLoadFailed)

		_, err = New(writeFile(t, "bad.json", "{not json"))
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte("rpm: 5\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Client().Int("rpm"))
	assert.Empty(t, cfg.Path())
	assert.ErrorIs(t, cfg.Reload(), ErrNotFromFile)

	empty, err := NewFromBytes(nil, FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, empty.Client().Keys())

	_, err = NewFromBytes([]byte("x"), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestUnmarshal_KeepsDefaults(t *testing.T) {
	cfg, err := NewFromBytes([]byte("limits:\n  rpm: 300\n"), FormatYAML)
	require.NoError(t, err)

	got := limitsSection{RPM: 150, TPM: 2_000_000, Tag: "default"}
	require.NoError(t, cfg.Unmarshal("limits", &got))
	assert.Equal(t, limitsSection{RPM: 300, TPM: 2_000_000, Tag: "default"}, got)

	var bad struct {
		Limits int `koanf:"limits"`
	}
	assert.ErrorIs(t, cfg.Unmarshal("", &bad), ErrUnmarshalFailed)
	assert.Panics(t, func() { MustUnmarshal(cfg, "", &bad) })
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("XADMIT_LIMITS__RPM", "42")
	t.Setenv("XADMIT_LOG_LEVEL", "debug")
	t.Setenv("OTHER_LIMITS__RPM", "7")

	path := writeFile(t, "config.yaml", "limits:\n  rpm: 150\n  tpm: 1000\nlog_level: info\n")
	cfg, err := New(path, WithEnvPrefix("XADMIT"))
	require.NoError(t, err)

	var got limitsSection
	require.NoError(t, cfg.Unmarshal("limits", &got))
	assert.Equal(t, 42, got.RPM)
	assert.Equal(t, 1000, got.TPM)
	assert.Equal(t, "debug", cfg.Client().String("log_level"))

	// Reload 重新叠加环境变量
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  rpm: 1\n  tpm: 5\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 42, cfg.Client().Int("limits.rpm"))
	assert.Equal(t, 5, cfg.Client().Int("limits.tpm"))
}

func TestReload(t *testing.T) {
	path := writeFile(t, "config.yaml", "rpm: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)
	old := cfg.Client()

	require.NoError(t, os.WriteFile(path, []byte("rpm: 2\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 2, cfg.Client().Int("rpm"))
	assert.Equal(t, 1, old.Int("rpm"), "old snapshot stays intact")

	// 解析失败保留旧配置
	require.NoError(t, os.WriteFile(path, []byte("rpm: [\n"), 0o600))
	assert.ErrorIs(t, cfg.Reload(), ErrParseFailed)
	assert.Equal(t, 2, cfg.Client().Int("rpm"))

	require.NoError(t, os.Remove(path))
	assert.ErrorIs(t, cfg.Reload(), ErrLoadFailed)
}

func TestOptions(t *testing.T) {
	o := defaultOptions()
	WithDelim("")(o)
	WithTag("")(o)
	assert.Equal(t, ".", o.Delim)
	assert.Equal(t, "koanf", o.Tag)

	WithDelim("/")(o)
	WithTag("json")(o)
	WithEnvPrefix("APP")(o)
	assert.Equal(t, "/", o.Delim)
	assert.Equal(t, "json", o.Tag)
	assert.Equal(t, "APP_", o.EnvPrefix)

	WithEnvPrefix("APP_")(o)
	assert.Equal(t, "APP_", o.EnvPrefix)
}
