package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/resilience/xadmit"
)

// runApp 运行 CLI 并返回标准输出
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := createApp()
	app.Writer = &buf
	app.ErrWriter = &buf
	err := app.Run(context.Background(), append([]string{"xadmitctl"}, args...))
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xadmit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPlan(t *testing.T) {
	out, err := runApp(t, "plan", "--page", "50", "--files", "10", "--rpm", "100", "--capacity", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "requested: 50 pages x 10 files = 500")
	assert.Contains(t, out, "plan:      5 pages x 10 files = 50")
}

func TestPlan_FromConfigFile(t *testing.T) {
	path := writeConfig(t, "page_concurrency: 20\nfile_count: 4\nmax_rpm: 1000\nmax_global_concurrency: 40\n")
	out, err := runApp(t, "-c", path, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "plan:      10 pages x 4 files = 40")
}

func TestPlan_InvalidArgument(t *testing.T) {
	_, err := runApp(t, "plan", "--rpm", "0")
	require.Error(t, err)
	var usageErr *usageError
	assert.ErrorAs(t, err, &usageErr)

	assert.Equal(t, 2, run(context.Background(), []string{"xadmitctl", "plan", "--rpm", "0"}))
}

func TestValidate_Defaults(t *testing.T) {
	out, err := runApp(t, "validate")
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)
}

func TestValidate_OverCapacity(t *testing.T) {
	out, err := runApp(t, "validate",
		"--page", "150", "--files", "15", "--rpm", "100", "--tpm", "1000000", "--rpd", "1000", "--capacity", "100")
	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.code)
	assert.Contains(t, out, "invalid\n")
	assert.Contains(t, out, "page concurrency 150 is high")
	assert.Contains(t, out, "file count 15 is high")
	assert.Contains(t, out, "exceeds global capacity 100")
	assert.Contains(t, out, "rpm safety margin 50")
}

func TestValidate_EnvOverride(t *testing.T) {
	t.Setenv("XADMIT_MAX_RPM", "40")
	out, err := runApp(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid\n")
	assert.Contains(t, out, "rpm safety margin")
}

func TestValidate_BadConfig(t *testing.T) {
	path := writeConfig(t, "max_rpm: -1\n")
	_, err := runApp(t, "-c", path, "validate")
	assert.ErrorIs(t, err, xadmit.ErrInvalidConfig)
}

func TestSimulate(t *testing.T) {
	out, err := runApp(t, "simulate",
		"--requests", "10", "--workers", "4", "--latency", "1ms", "--interval", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, "done: succeeded=10 failed=0")
	assert.Contains(t, out, "rpm 10/150")
}

func TestSimulate_AllFail(t *testing.T) {
	out, err := runApp(t, "simulate",
		"--requests", "3", "--workers", "3", "--latency", "0s", "--fail-percent", "100",
		"--retry-delay", "1ms", "--interval", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "done: succeeded=0 failed=3")
	// 每个请求 5 次尝试都计入窗口
	assert.Contains(t, out, "rpm 15/150")
}

func TestSimulate_BadFlags(t *testing.T) {
	_, err := runApp(t, "simulate", "--fail-percent", "101")
	var usageErr *usageError
	assert.ErrorAs(t, err, &usageErr)

	_, err = runApp(t, "simulate", "--workers", "0")
	assert.ErrorAs(t, err, &usageErr)
}

func TestServe_BadSimulateFlags(t *testing.T) {
	var usageErr *usageError
	_, err := runApp(t, "serve", "--simulate", "--workers", "0")
	assert.ErrorAs(t, err, &usageErr)

	_, err = runApp(t, "serve", "--simulate", "--fail-percent", "101")
	assert.ErrorAs(t, err, &usageErr)
}

func TestStatsStack_ReflectsTraffic(t *testing.T) {
	stack, err := newStatsStack(xadmit.DefaultConfig(), xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, stack.Close()) })

	sim := simOptions{requests: 6, workers: 3, outputTokens: 100}
	require.NoError(t, simulatedTraffic(stack.ctrl, sim, xlog.Discard())(context.Background()))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		stack.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Gate struct {
			InFlight      int    `json:"in_flight"`
			TotalAdmitted uint64 `json:"total_admitted"`
		} `json:"gate"`
		Window struct {
			Requests int `json:"requests"`
			Tokens   int `json:"tokens"`
		} `json:"window"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.Gate.InFlight)
	assert.Equal(t, uint64(6), stats.Gate.TotalAdmitted)
	assert.Equal(t, 6, stats.Window.Requests)
	assert.Equal(t, 6*xadmit.DefaultEstimator().Estimate(100, 0), stats.Window.Tokens)

	body := get("/metrics").Body.String()
	assert.Contains(t, body, "xadmit_gate_admitted_total 6")
	// 控制器的 OTel 指标和观测器指标经同一个出口暴露
	assert.Contains(t, body, "xadmit_requests_total")
	assert.Contains(t, body, "xadmit_operation_total")
	assert.Contains(t, body, "xgate_admitted_total")
}

func TestReloadCallback(t *testing.T) {
	path := writeConfig(t, "max_global_concurrency: 10\nmax_rpm: 100\n")
	cfg, src, err := xadmit.LoadConfig(path)
	require.NoError(t, err)
	ctrl, err := xadmit.NewFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	logger, cleanup, err := xlog.New().SetOutput(&bytes.Buffer{}).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	reload := reloadCallback(ctrl, logger)

	require.NoError(t, os.WriteFile(path, []byte("max_global_concurrency: 25\nmax_rpm: 300\nlog_level: debug\n"), 0o600))
	require.NoError(t, src.Reload())
	reload(src, nil)
	assert.Equal(t, 25, ctrl.Gate().Stats().Capacity)
	assert.Equal(t, 300, ctrl.Limiter().Limits().RPM)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())

	// 校验失败保留当前配置
	require.NoError(t, os.WriteFile(path, []byte("max_global_concurrency: 0\n"), 0o600))
	require.NoError(t, src.Reload())
	reload(src, nil)
	assert.Equal(t, 25, ctrl.Gate().Stats().Capacity)

	reload(src, errors.New("parse failed"))
	assert.Equal(t, 25, ctrl.Gate().Stats().Capacity)
}
