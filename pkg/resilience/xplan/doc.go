// Package xplan 根据工作负载推导不会触发网关与限流器的并发配置。
//
// 批量任务通常有两层并发：同时处理的文件数与每个文件内同时处理的页数，
// 两者相乘就是最坏情况下的在途请求数。OptimalConcurrency 按全局容量与 RPM
// 依次缩减页并发，ValidateConfig 给出人类可读的建议。
//
//	plan, err := xplan.OptimalConcurrency(50, 10, 100, 100)
//	// plan.PageConcurrency == 5, plan.FileConcurrency == 10
//
// 包内只有纯函数，不持有状态。
package xplan
