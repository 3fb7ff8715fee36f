// Package xretry 提供重试策略、退避策略，以及面向外部服务调用的 Invoker。
//
// 底层使用 [avast/retry-go/v5] 实现重试循环。
//
// # Invoker
//
// Invoker 是外部服务调用的默认入口：最多 5 次尝试，第 n 次失败后等待
// 1s*1.5^(n-1) 再加 [0, 0.5s) 的随机量。每次失败都会回调
// WithOnAttemptFailed，用尽后原样返回最后一次的错误。
//
//	inv := xretry.NewInvoker(
//	    xretry.WithOnAttemptFailed(func(attempt int, err error) {
//	        log.Printf("attempt %d failed: %v", attempt, err)
//	    }),
//	)
//	resp, err := xretry.InvokeWithResult(ctx, inv, func(ctx context.Context) (*Response, error) {
//	    return client.Generate(ctx, req)
//	})
//
// # Retryer
//
// Retryer 组合任意 RetryPolicy 与 BackoffPolicy：
//
//	retryer := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//	err := retryer.Do(ctx, func(ctx context.Context) error {
//	    return doSomething()
//	})
//
// # 错误分类
//
// 未知错误一律重试。以下情况立即返回：
//   - NewPermanentError(err) 标记的错误
//   - Unrecoverable(err) 标记的错误
//   - ctx 已取消或超时
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
