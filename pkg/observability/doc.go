// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，支持动态级别与文件轮转
//   - xmetrics: 统一观测接口（trace + metrics），默认实现基于 OpenTelemetry
//   - xadmitstats: 准入状态的 HTTP 出口，/stats 快照与 /metrics（Prometheus）
//
// 各组件的业务指标（xgate、xwindow、xadmit）在各自包的 metrics.go 中定义，
// 通过 metric.MeterProvider 注入；nil 表示不收集。
package observability
