package xadmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
	"github.com/omeyang/xadmit/pkg/observability/xmetrics"
	"github.com/omeyang/xadmit/pkg/resilience/xbreaker"
	"github.com/omeyang/xadmit/pkg/resilience/xgate"
	"github.com/omeyang/xadmit/pkg/resilience/xretry"
	"github.com/omeyang/xadmit/pkg/resilience/xwindow"
)

// Request 一次出站生成请求的准入参数
type Request struct {
	// ID 诊断用请求标识，为空时自动生成
	ID string

	// Tokens 预估 token 数，参见 Estimator
	Tokens int
}

// Controller 组合门控、限流、重试（可选熔断）的准入控制器
//
// 每个请求的流程：
//
//	Gate.Acquire → Invoke( Limiter.Wait → [Breaker] → call ) → Permit.Release
//
// 许可在整个重试过程中持有，无论成功失败都会释放。
// 限流检查在每次尝试内进行，重试同样计入窗口。
type Controller struct {
	gate     *xgate.Gate
	limiter  *xwindow.Limiter
	invoker  *xretry.Invoker
	breaker  *xbreaker.Breaker
	observer xmetrics.Observer
	logger   xlog.Logger
	metrics  *Metrics
	opts     options

	// closers 由 NewFromConfig 创建、由 Controller 负责关闭的资源
	closers []func() error
}

// New 用已有的门控和限流器创建控制器
//
// 调用方保留 gate 与 limiter 的所有权，Close 不会关闭它们。
func New(gate *xgate.Gate, limiter *xwindow.Limiter, opts ...Option) (*Controller, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return newController(gate, limiter, o)
}

func newController(gate *xgate.Gate, limiter *xwindow.Limiter, o options) (*Controller, error) {
	if gate == nil {
		return nil, ErrNilGate
	}
	if limiter == nil {
		return nil, ErrNilLimiter
	}
	logger := xlog.OrDiscard(o.logger).With(xlog.Component("xadmit"))
	if o.invoker == nil {
		o.invoker = xretry.NewInvoker(xretry.WithInvokerLogger(o.logger))
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xadmit: init metrics: %w", err)
	}
	return &Controller{
		gate:     gate,
		limiter:  limiter,
		invoker:  o.invoker,
		breaker:  o.breaker,
		observer: o.observer,
		logger:   logger,
		metrics:  m,
		opts:     o,
	}, nil
}

// NewFromConfig 按配置创建门控、限流器和重试执行器
//
// RedisAddr 非空时使用 redis 窗口后端。BreakerFailures 大于 0 且未通过
// WithBreaker 指定熔断器时，按连续失败次数创建熔断器。
// 返回的控制器拥有这些资源，用完需调用 Close。
func NewFromConfig(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	o.drainTimeout = cfg.DrainTimeout
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.invoker == nil {
		o.invoker = xretry.NewInvoker(
			xretry.WithMaxAttempts(cfg.MaxAttempts),
			xretry.WithInvokerLogger(o.logger),
		)
	}

	if o.breaker == nil && cfg.BreakerFailures > 0 {
		o.breaker = xbreaker.NewBreaker(cfg.RedisKey,
			xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(uint32(cfg.BreakerFailures))), //nolint:gosec // Validate 已限定范围
			xbreaker.WithTimeout(cfg.BreakerTimeout),
			xbreaker.WithLogger(o.logger),
		)
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]() //nolint:errcheck // 初始化失败路径上尽力释放
		}
	}

	gate, err := xgate.New(cfg.MaxGlobalConcurrency,
		xgate.WithLogger(o.logger),
		xgate.WithMeterProvider(o.meterProvider),
		xgate.WithDrainTimeout(cfg.DrainTimeout),
	)
	if err != nil {
		return nil, err
	}
	closers = append(closers, gate.Close)

	limiterOpts := []xwindow.Option{
		xwindow.WithLogger(o.logger),
		xwindow.WithMeterProvider(o.meterProvider),
		xwindow.WithName(cfg.RedisKey),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, rdb.Close)
		backend, err := xwindow.NewRedisBackend(rdb, cfg.RedisKey)
		if err != nil {
			closeAll()
			return nil, err
		}
		limiterOpts = append(limiterOpts, xwindow.WithBackend(backend))
	}
	limiter, err := xwindow.New(cfg.Limits(), limiterOpts...)
	if err != nil {
		closeAll()
		return nil, err
	}

	c, err := newController(gate, limiter, o)
	if err != nil {
		closeAll()
		return nil, err
	}
	c.closers = closers
	return c, nil
}

// Close 释放 NewFromConfig 创建的资源，对 New 创建的控制器是空操作
func (c *Controller) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Gate 返回门控
func (c *Controller) Gate() *xgate.Gate { return c.gate }

// Limiter 返回限流器
func (c *Controller) Limiter() *xwindow.Limiter { return c.limiter }

// Do 在准入控制下执行服务商调用
//
// call 自身不应再做重试或限流。最后一次尝试的错误原样返回。
// 以下情况不重试：ctx 结束、xretry.PermanentError、熔断拒绝，
// 以及预估值非法（xwindow.ErrInvalidEstimate / ErrEstimateExceedsBudget）。
func (c *Controller) Do(ctx context.Context, req Request, call func(ctx context.Context) error) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if call == nil {
		return ErrNilFunc
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: "xadmit",
		Operation: "admit",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String(xlog.KeyRequestID, id)},
		Weight:    int64(req.Tokens),
	})
	attempts := 0
	defer func() {
		outcome := c.outcome(ctx, err)
		c.metrics.recordRequest(ctx, outcome, attempts)
		result := xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int("attempts", attempts)}}
		if outcome == outcomeCanceled {
			result.Status = xmetrics.StatusCanceled
		}
		span.End(result)
	}()

	permit, err := c.gate.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer permit.Release()

	var precondition error
	err = c.invoker.Invoke(ctx, func(ctx context.Context) error {
		attempts++
		if werr := c.limiter.Wait(ctx, req.Tokens); werr != nil {
			if errors.Is(werr, xwindow.ErrInvalidEstimate) || errors.Is(werr, xwindow.ErrEstimateExceedsBudget) {
				precondition = werr
				return xretry.NewPermanentError(werr)
			}
			return werr
		}
		if c.breaker != nil {
			return c.breaker.Do(ctx, call)
		}
		return call(ctx)
	})
	if precondition != nil {
		// 预估值问题与服务商无关，返回限流器的原始错误
		c.logger.Warn(ctx, "request rejected by limiter",
			xlog.RequestID(id), slog.Int("tokens", req.Tokens), xlog.Err(precondition))
		return precondition
	}
	return err
}

// Execute 与 Do 相同，但返回调用结果
func Execute[T any](ctx context.Context, c *Controller, req Request, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return zero, ErrNilController
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	var result T
	err := c.Do(ctx, req, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

func (c *Controller) outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return outcomeCanceled
	case xbreaker.IsBreakerError(err):
		return outcomeRejected
	default:
		return outcomeError
	}
}

// Apply 运行时应用新配置：调整门控容量和窗口配额
//
// 容量缩到在途数以下时不等待排空，在途数随请求完成回落。
// MaxAttempts、RedisAddr 等构造期参数不在此生效。
func (c *Controller) Apply(ctx context.Context, cfg Config) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.limiter.SetLimits(cfg.Limits()); err != nil {
		return err
	}
	if err := c.gate.SetCapacity(ctx, cfg.MaxGlobalConcurrency, false); err != nil {
		return err
	}
	c.logger.Info(ctx, "config applied",
		slog.Int(xlog.KeyCapacity, cfg.MaxGlobalConcurrency),
		slog.Int("rpm", cfg.MaxRPM), slog.Int("tpm", cfg.MaxTPM), slog.Int("rpd", cfg.MaxRPD))
	return nil
}

// Drain 等待所有在途请求完成，超过排空上限或 ctx 结束返回 false
func (c *Controller) Drain(ctx context.Context) bool {
	return c.gate.Drain(ctx, c.opts.drainTimeout)
}

// ResetStats 开始新的门控统计周期
func (c *Controller) ResetStats() { c.gate.ResetStats() }

// ActiveRequests 返回持有许可的请求 ID
func (c *Controller) ActiveRequests() []string { return c.gate.ActiveRequests() }

// Snapshot 准入控制状态快照
type Snapshot struct {
	Gate    xgate.Stats
	Usage   xwindow.Usage
	Limits  xwindow.Limits
	Breaker string // 未配置熔断器时为空
}

// Snapshot 返回门控、窗口和熔断器的当前状态
//
// redis 后端不可用时返回错误，门控部分仍然有效。
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	s := Snapshot{
		Gate:   c.gate.Stats(),
		Limits: c.limiter.Limits(),
	}
	if c.breaker != nil {
		s.Breaker = c.breaker.State().String()
	}
	usage, err := c.limiter.Usage(ctx)
	if err != nil {
		return s, err
	}
	s.Usage = usage
	return s, nil
}
