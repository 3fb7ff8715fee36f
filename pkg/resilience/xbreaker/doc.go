// Package xbreaker 为外部服务调用提供熔断保护，底层使用 [sony/gobreaker/v2]。
//
// 服务商持续失败时，继续按退避重试会让每个请求都耗尽全部尝试次数。
// 熔断器打开后请求立即失败，返回的 BreakerError 不可重试，
// 与 xretry 组合时重试循环随之终止。
//
//	b := xbreaker.NewBreaker("gemini",
//	    xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
//	    xbreaker.WithTimeout(30*time.Second),
//	)
//	err := b.Do(ctx, func(ctx context.Context) error {
//	    return client.Generate(ctx, req)
//	})
//	if xbreaker.IsOpen(err) {
//	    // 快速失败
//	}
//
// 默认的 IgnoreCancellation 策略不把调用方取消计为失败。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
