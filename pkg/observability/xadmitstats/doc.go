// Package xadmitstats 通过 HTTP 暴露准入控制状态。
//
// 路由挂载在任意 http.Handler 链上：
//
//	GET  /healthz      存活检查
//	GET  /stats        JSON 快照（门控、窗口用量、配额、熔断器状态）
//	POST /stats/reset  开始新的门控统计周期
//	GET  /requests     持有许可的请求 ID
//	GET  /metrics      Prometheus 指标
//
// # 指标来源
//
// /metrics 由两部分组成：
//   - 快照 collector：每次抓取读取一次 Source.Snapshot，输出 xadmit_gate_* 与 xadmit_window_*
//   - OTel 指标：NewMeterProvider 把 xgate/xwindow/xadmit 的 OpenTelemetry 指标桥接到同一个 registry
//
// # 使用示例
//
//	reg := xadmitstats.NewRegistry()
//	mp, err := xadmitstats.NewMeterProvider(reg)
//	ctrl, err := xadmit.NewFromConfig(cfg, xadmit.WithMeterProvider(mp))
//	handler, err := xadmitstats.NewHandler(ctrl, xadmitstats.WithRegistry(reg))
//	mux.Handle("/", handler)
//
// 窗口用量读取失败（例如 redis 不可用）时，/stats 返回 503 和门控部分数据，
// /metrics 把 xadmit_window_scrape_error 置 1。
package xadmitstats
