// Package xadmit 出站生成请求的准入控制。
//
// Controller 把进程级并发门控（xgate）、多窗口限流（xwindow）、
// 重试（xretry）和可选熔断（xbreaker）组合成一个调用入口：
//
//	ctrl, err := xadmit.NewFromConfig(cfg, xadmit.WithLogger(logger))
//	defer ctrl.Close()
//
//	tokens := xadmit.DefaultEstimator().Estimate(4000, pages)
//	err = ctrl.Do(ctx, xadmit.Request{ID: id, Tokens: tokens}, callProvider)
//
// 许可在整个重试期间持有；每次尝试都先通过限流器，重试同样占用窗口配额。
// 配置支持热更新：Apply 调整门控容量（不等待排空）和窗口配额。
//
// 配置来源依次为默认值、YAML/JSON 文件、XADMIT_* 环境变量，见 LoadConfig。
package xadmit
