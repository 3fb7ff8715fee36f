package xwindow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

// Limiter 多窗口限流器：每分钟请求数、每分钟 token 数、每 24 小时请求数
//
// 每个服务商配置一个实例。Wait 按窗口到期时间计算等待时长，
// SetLimits 会唤醒所有等待方重新检查。
type Limiter struct {
	mu      sync.RWMutex
	limits  Limits
	changed chan struct{}

	backend Backend
	opts    options
	logger  xlog.Logger
	metrics *Metrics
}

// New 创建限流器
func New(limits Limits, opts ...Option) (*Limiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.backend == nil {
		o.backend = NewLocalBackend()
	}

	m, err := newMetrics(o.meterProvider, o.name, o.backend.Type())
	if err != nil {
		return nil, fmt.Errorf("xwindow: init metrics: %w", err)
	}

	return &Limiter{
		limits:  limits,
		changed: make(chan struct{}),
		backend: o.backend,
		opts:    o,
		logger: xlog.OrDiscard(o.logger).With(
			xlog.Component("xwindow"), slog.String("limiter", o.name)),
		metrics: m,
	}, nil
}

// Limits 返回当前配额
func (l *Limiter) Limits() Limits {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits
}

// SetLimits 运行时调整配额并唤醒等待方。已记录的窗口数据保留。
func (l *Limiter) SetLimits(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	old := l.limits
	l.limits = limits
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()

	l.logger.Info(context.Background(), "limits updated",
		slog.Any("old", old), slog.Any("new", limits))
	return nil
}

func (l *Limiter) snapshot() (Limits, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits, l.changed
}

// Wait 阻塞直到三个窗口都能容纳这次请求，然后记入窗口
//
// 记入的是调用方给出的预估值，事后不按实际用量修正。
// 除 ctx 外没有等待上限。estimatedTokens 超过 TPM 的请求永远无法放行，
// 直接返回 ErrEstimateExceedsBudget。
func (l *Limiter) Wait(ctx context.Context, estimatedTokens int) error {
	if ctx == nil {
		return ErrNilContext
	}
	if estimatedTokens < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEstimate, estimatedTokens)
	}

	start := l.opts.clock.Now()
	throttled := false
	for {
		limits, changed := l.snapshot()
		if estimatedTokens > limits.TPM {
			return fmt.Errorf("%w: estimate=%d tpm=%d", ErrEstimateExceedsBudget, estimatedTokens, limits.TPM)
		}

		d, err := l.backend.Reserve(ctx, l.opts.clock.Now(), limits, estimatedTokens)
		if err != nil {
			return fmt.Errorf("xwindow: reserve on %s backend: %w", l.backend.Type(), err)
		}
		if d.Allowed {
			waited := l.opts.clock.Since(start)
			l.metrics.recordReserved(ctx, estimatedTokens, waited)
			if throttled {
				l.logger.Debug(ctx, "rate limit wait finished", xlog.Duration(waited))
			}
			return nil
		}

		if !throttled {
			throttled = true
			l.metrics.recordThrottled(ctx, d.Blocked)
			l.logger.Info(ctx, "rate limited, waiting",
				slog.String(xlog.KeyLimitKind, d.Blocked.String()),
				slog.String(xlog.KeyRetryAfter, d.RetryAfter.String()))
		}

		if err := l.sleep(ctx, d.RetryAfter, changed); err != nil {
			return err
		}
	}
}

// sleep 等待 d（受 maxSleep 约束）或配额变更
func (l *Limiter) sleep(ctx context.Context, d time.Duration, changed <-chan struct{}) error {
	if d <= 0 {
		d = time.Millisecond
	}
	if l.opts.maxSleep > 0 && d > l.opts.maxSleep {
		d = l.opts.maxSleep
	}
	timer := l.opts.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Usage 返回当前窗口用量和生效配额
func (l *Limiter) Usage(ctx context.Context) (Usage, error) {
	if ctx == nil {
		return Usage{}, ErrNilContext
	}
	u, err := l.backend.Usage(ctx, l.opts.clock.Now())
	if err != nil {
		return Usage{}, err
	}
	u.Limits = l.Limits()
	return u, nil
}
