package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// FixedBackoff 固定延迟退避策略
type FixedBackoff struct {
	delay time.Duration
}

// NewFixedBackoff 创建固定延迟退避策略
func NewFixedBackoff(delay time.Duration) *FixedBackoff {
	if delay < 0 {
		delay = 0
	}
	return &FixedBackoff{delay: delay}
}

func (b *FixedBackoff) NextDelay(_ int) time.Duration {
	return b.delay
}

// ExponentialBackoff 指数退避策略
// delay = min(initialDelay * multiplier^(attempt-1) * (1 + rand(-1,1) * jitter), maxDelay)
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
}

// ExponentialBackoffOption 指数退避配置选项
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay 设置初始延迟，d <= 0 时忽略
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay 设置最大延迟
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier 设置乘数因子（>= 1.0），小于 1.0 的值会被忽略
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter 设置抖动因子，截断到 [0, 1]
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = math.Max(0, math.Min(1, j))
	}
}

// NewExponentialBackoff 创建指数退避策略
// 默认值：
//   - initialDelay: 100ms
//   - maxDelay: 30s
//   - multiplier: 2.0
//   - jitter: 0.1 (10%)
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	if b.jitter > 0 {
		delay *= 1.0 + (randomFloat64()*2-1)*b.jitter
	}

	// attempt 极大时 math.Pow 溢出为 +Inf，乘以 0 得到 NaN，NaN 的比较恒为 false
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.maxDelay) {
		return b.maxDelay
	}
	return time.Duration(delay)
}

// 抖动退避默认值
const (
	DefaultJitterBase   = time.Second
	DefaultJitterFactor = 1.5
	DefaultJitterMax    = 500 * time.Millisecond
)

// JitterBackoff 加性抖动的指数退避
//
//	delay = base * factor^(attempt-1) + U[0, maxJitter)
//
// 与 ExponentialBackoff 的乘性抖动不同，这里的抖动是固定量级的加项，
// 用于打散同时失败的一批调用，不设上限。默认 1s、1.5、500ms，
// 前四次等待约为 1s、1.5s、2.25s、3.375s（各自再加不到 0.5s）。
type JitterBackoff struct {
	base      time.Duration
	factor    float64
	maxJitter time.Duration
	random    func() float64
}

// JitterBackoffOption 抖动退避配置选项
type JitterBackoffOption func(*JitterBackoff)

// WithJitterBase 设置首次等待的基础时长
func WithJitterBase(d time.Duration) JitterBackoffOption {
	return func(b *JitterBackoff) {
		if d > 0 {
			b.base = d
		}
	}
}

// WithJitterFactor 设置每次失败后的增长倍数（>= 1.0）
func WithJitterFactor(f float64) JitterBackoffOption {
	return func(b *JitterBackoff) {
		if f >= 1 {
			b.factor = f
		}
	}
}

// WithJitterMax 设置随机加项的上界，0 表示不加抖动
func WithJitterMax(d time.Duration) JitterBackoffOption {
	return func(b *JitterBackoff) {
		if d >= 0 {
			b.maxJitter = d
		}
	}
}

// NewJitterBackoff 创建抖动退避策略
func NewJitterBackoff(opts ...JitterBackoffOption) *JitterBackoff {
	b := &JitterBackoff{
		base:      DefaultJitterBase,
		factor:    DefaultJitterFactor,
		maxJitter: DefaultJitterMax,
		random:    randomFloat64,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *JitterBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.base) * math.Pow(b.factor, float64(attempt-1))
	if b.maxJitter > 0 {
		delay += b.random() * float64(b.maxJitter)
	}
	if math.IsNaN(delay) || delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// NoBackoff 无延迟退避策略
type NoBackoff struct{}

// NewNoBackoff 创建无延迟退避策略
func NewNoBackoff() *NoBackoff {
	return &NoBackoff{}
}

func (b *NoBackoff) NextDelay(_ int) time.Duration {
	return 0
}

var (
	_ BackoffPolicy = (*FixedBackoff)(nil)
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
	_ BackoffPolicy = (*JitterBackoff)(nil)
	_ BackoffPolicy = (*NoBackoff)(nil)
)

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// randomFloat64 返回 [0, 1) 内的随机数，crypto/rand 失败时返回 0（即不抖动）
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
