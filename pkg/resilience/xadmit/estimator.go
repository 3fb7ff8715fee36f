package xadmit

const (
	// DefaultPromptOverhead 每个请求的提示词固定开销（token）
	DefaultPromptOverhead = 500

	// DefaultPerAttachment 每个附件（页面图像）的 token 开销
	DefaultPerAttachment = 258
)

// Estimator 请求 token 预估
//
// 预估值在请求前给出，事后不按实际用量修正。
type Estimator struct {
	PromptOverhead int
	PerAttachment  int
}

// DefaultEstimator 返回默认开销的预估器
func DefaultEstimator() Estimator {
	return Estimator{
		PromptOverhead: DefaultPromptOverhead,
		PerAttachment:  DefaultPerAttachment,
	}
}

// Estimate 预估一次请求的 token 数：提示词开销 + 期望输出 + 附件开销
//
// 负数输入按 0 处理，结果不会小于 0。
func (e Estimator) Estimate(expectedOutputTokens, attachments int) int {
	total := max(e.PromptOverhead, 0) +
		max(expectedOutputTokens, 0) +
		max(attachments, 0)*max(e.PerAttachment, 0)
	return total
}
