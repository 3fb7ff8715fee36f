package xplan

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument 输入参数不是正整数
var ErrInvalidArgument = errors.New("xplan: invalid argument")

const (
	// RPMSafetyDivisor 同时在途请求数不超过 RPM/2。
	// 按单次请求平均 2~3 秒估算，一分钟内每个并发位大约产生 20~30 个请求，
	// 留出一半余量给重试与其他调用方。
	RPMSafetyDivisor = 2

	// AssumedPagesPerFile 估算每日用量时假定的每个文件页数
	AssumedPagesPerFile = 50

	// DailyProximityRatio 预计日用量超过 RPD 的这个比例时给出警告
	DailyProximityRatio = 0.8

	// AssumedTokensPerRequest 估算 TPM 压力时假定的单次请求 token 数
	AssumedTokensPerRequest = 5000

	// HighPageConcurrency 页并发超过该值时给出警告
	HighPageConcurrency = 100

	// HighFileCount 文件数超过该值时给出警告
	HighFileCount = 10
)

// Plan 并发计划
type Plan struct {
	PageConcurrency int
	FileConcurrency int
}

// Total 返回理论最大在途请求数
func (p Plan) Total() int {
	return p.PageConcurrency * p.FileConcurrency
}

func (p Plan) String() string {
	return fmt.Sprintf("%d pages x %d files = %d", p.PageConcurrency, p.FileConcurrency, p.Total())
}

// OptimalConcurrency 根据全局容量和 RPM 计算安全的并发配置
//
// 两步依次缩减 pageConcurrency，文件并发保持不变：
//  1. page*files 超过 capacity 时按 capacity/(page*files) 缩减（硬上限）
//  2. 缩减后仍超过 rpm/2 时按 (rpm/2)/(page*files) 再缩减（吞吐启发）
//
// 每一步向下取整，最小为 1。顺序不能交换：第一步保证不超过网关容量，
// 第二步只是经验值。
//
// fileCount 本身超过 capacity 时先截断到 capacity，否则即使 page=1 也无法满足容量上限。
// fileCount 超过 rpm/2 时不截断，结果只保证 page=1。
func OptimalConcurrency(pageConcurrency, fileCount, rpmLimit, globalCapacity int) (Plan, error) {
	if pageConcurrency < 1 || fileCount < 1 || rpmLimit < 1 || globalCapacity < 1 {
		return Plan{}, fmt.Errorf("%w: page=%d files=%d rpm=%d capacity=%d",
			ErrInvalidArgument, pageConcurrency, fileCount, rpmLimit, globalCapacity)
	}

	files := min(fileCount, globalCapacity)
	page := scaleDown(pageConcurrency, files, globalCapacity)
	page = scaleDown(page, files, rpmLimit/RPMSafetyDivisor)

	return Plan{PageConcurrency: page, FileConcurrency: files}, nil
}

// scaleDown page*files 超过 limit 时按比例缩减 page，结果最小为 1
//
// floor(page * limit / (page*files)) 等于 floor(limit / files)，
// 整数运算避免浮点误差。
func scaleDown(page, files, limit int) int {
	if page*files <= limit {
		return page
	}
	return max(1, limit/files)
}
