package xwindow

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MinuteWindow RPM 与 TPM 的滑动窗口
	MinuteWindow = time.Minute

	// DayWindow RPD 的滑动窗口（滚动 24 小时，不按自然日重置）
	DayWindow = 24 * time.Hour
)

// Limits 三个窗口的配额
type Limits struct {
	RPM int `json:"rpm" koanf:"rpm"` // 每分钟请求数
	TPM int `json:"tpm" koanf:"tpm"` // 每分钟 token 数
	RPD int `json:"rpd" koanf:"rpd"` // 每 24 小时请求数
}

// Validate 三项配额都必须 >= 1
func (l Limits) Validate() error {
	if l.RPM < 1 || l.TPM < 1 || l.RPD < 1 {
		return fmt.Errorf("%w: rpm=%d tpm=%d rpd=%d", ErrInvalidLimits, l.RPM, l.TPM, l.RPD)
	}
	return nil
}

// Kind 阻塞原因位掩码
type Kind uint8

const (
	KindRPM Kind = 1 << iota
	KindTPM
	KindRPD
)

// String 返回 "rpm,tpm" 形式的名称，0 返回 "none"
func (k Kind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	if k&KindRPM != 0 {
		parts = append(parts, "rpm")
	}
	if k&KindTPM != 0 {
		parts = append(parts, "tpm")
	}
	if k&KindRPD != 0 {
		parts = append(parts, "rpd")
	}
	return strings.Join(parts, ",")
}

// Decision 单次预留的结果
type Decision struct {
	Allowed bool

	// Blocked 未放行时被哪些窗口阻塞
	Blocked Kind

	// RetryAfter 未放行时，所有阻塞窗口最早可能同时满足条件的等待时长
	RetryAfter time.Duration
}

// Usage 窗口内的当前用量（已剔除过期记录）
type Usage struct {
	Requests int // 最近 60 秒请求数
	Tokens   int // 最近 60 秒预估 token 总数
	Daily    int // 最近 24 小时请求数

	// Limits 读取用量时生效的配额，后端返回时为零值，由 Limiter.Usage 填充
	Limits Limits
}
