package xplan

import "fmt"

// Workload 一次批量任务的配置
type Workload struct {
	PageConcurrency int `json:"page_concurrency" koanf:"page_concurrency"`
	FileCount       int `json:"file_count" koanf:"file_count"`
	RPM             int `json:"rpm" koanf:"rpm"`
	TPM             int `json:"tpm" koanf:"tpm"`
	RPD             int `json:"rpd" koanf:"rpd"`
	GlobalCapacity  int `json:"global_capacity" koanf:"global_capacity"`
}

// TheoreticalMax 返回 page*files
func (w Workload) TheoreticalMax() int {
	return w.PageConcurrency * w.FileCount
}

// ValidateConfig 检查配置并给出建议
//
// 只有 page*files 超过全局容量才判定为无效；其余情况只产生警告。
// 参数非正时判定为无效，警告说明原因。
func ValidateConfig(w Workload) (bool, []string) {
	if w.PageConcurrency < 1 || w.FileCount < 1 || w.RPM < 1 || w.TPM < 1 || w.RPD < 1 || w.GlobalCapacity < 1 {
		return false, []string{fmt.Sprintf("all values must be positive: %+v", w)}
	}

	var warnings []string
	valid := true
	total := w.TheoreticalMax()

	if total > w.GlobalCapacity {
		valid = false
		warnings = append(warnings, fmt.Sprintf(
			"theoretical max concurrency %d (%d pages x %d files) exceeds global capacity %d",
			total, w.PageConcurrency, w.FileCount, w.GlobalCapacity))
	}
	if w.PageConcurrency > HighPageConcurrency {
		warnings = append(warnings, fmt.Sprintf(
			"page concurrency %d is high (> %d)", w.PageConcurrency, HighPageConcurrency))
	}
	if w.FileCount > HighFileCount {
		warnings = append(warnings, fmt.Sprintf(
			"file count %d is high (> %d)", w.FileCount, HighFileCount))
	}
	if rpmSafe := w.RPM / RPMSafetyDivisor; total > rpmSafe {
		warnings = append(warnings, fmt.Sprintf(
			"concurrency %d exceeds rpm safety margin %d (rpm %d / %d), requests will queue on the rate limiter",
			total, rpmSafe, w.RPM, RPMSafetyDivisor))
	}
	// 一分钟内最多放行 min(total, rpm) 个请求
	if perMinute := min(total, w.RPM) * AssumedTokensPerRequest; perMinute > w.TPM {
		warnings = append(warnings, fmt.Sprintf(
			"estimated %d tokens per minute (%d tokens per request) exceeds tpm %d",
			perMinute, AssumedTokensPerRequest, w.TPM))
	}
	if daily := w.FileCount * AssumedPagesPerFile; float64(daily) > DailyProximityRatio*float64(w.RPD) {
		warnings = append(warnings, fmt.Sprintf(
			"estimated %d requests (%d pages per file) is close to daily limit %d",
			daily, AssumedPagesPerFile, w.RPD))
	}

	return valid, warnings
}
