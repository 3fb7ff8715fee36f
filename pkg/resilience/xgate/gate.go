package xgate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

// Gate 进程级并发门控
//
// 限制同时在途的请求数不超过 capacity。等待方挂起在广播 channel 上，
// 由 Release/SetCapacity 推送唤醒，不轮询。
//
// 设计决策: 每个进程显式创建一个 Gate 并注入到各调用方，不提供包级单例。
// 测试和多租户场景可以各自持有独立实例。
type Gate struct {
	mu            sync.Mutex
	capacity      int
	limit         int // 实际准入上限；等待排空的缩容期间低于 capacity
	inFlight      int
	peak          int
	totalAdmitted uint64
	totalBlocked  uint64
	lastReset     time.Time
	active        map[string]int
	changed       chan struct{}

	// resizeMu 串行化 SetCapacity，与 mu 分离，排空等待期间不阻塞 Acquire/Release
	resizeMu sync.Mutex

	opts    options
	logger  xlog.Logger
	metrics *Metrics
}

// Stats 门控状态快照
type Stats struct {
	Capacity       int
	InFlight       int
	PeakInFlight   int
	TotalAdmitted  uint64
	TotalBlocked   uint64
	ActiveRequests int
	LastReset      time.Time
}

// New 创建门控
func New(capacity int, opts ...Option) (*Gate, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	g := &Gate{
		capacity:  capacity,
		limit:     capacity,
		lastReset: o.clock.Now(),
		active:    make(map[string]int),
		changed:   make(chan struct{}),
		opts:      o,
		logger:    xlog.OrDiscard(o.logger).With(xlog.Component("xgate")),
	}

	m, err := newMetrics(o.meterProvider, g.Stats)
	if err != nil {
		return nil, fmt.Errorf("xgate: init metrics: %w", err)
	}
	g.metrics = m

	g.logger.Info(context.Background(), "gate created", slog.Int(xlog.KeyCapacity, capacity))
	return g, nil
}

// Close 注销异步指标回调。门控本身无后台 goroutine，不关闭也不会泄漏。
func (g *Gate) Close() error {
	return g.metrics.close()
}

// notifyLocked 唤醒所有等待方。调用方必须持有 mu。
func (g *Gate) notifyLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

// =============================================================================
// 获取与释放
// =============================================================================

// Acquire 阻塞直到有空闲名额，返回许可
//
// requestID 仅用于诊断（ActiveRequests），可以为空。
// ctx 取消时返回 ctx.Err()，门控状态不变。
// 每次需要等待的调用使 TotalBlocked 恰好加一。
func (g *Gate) Acquire(ctx context.Context, requestID string) (*Permit, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := g.opts.clock.Now()
	blocked := false

	g.mu.Lock()
	for g.inFlight >= g.limit {
		ch := g.changed
		var warn bool
		var capacity int
		var total uint64
		if !blocked {
			blocked = true
			g.totalBlocked++
			total = g.totalBlocked
			capacity = g.capacity
			warn = g.opts.warnEvery > 0 && total%g.opts.warnEvery == 0
		}
		g.mu.Unlock()

		if total > 0 {
			g.metrics.recordBlocked(ctx)
			if warn {
				g.logger.Warn(ctx, "gate saturated, requests waiting",
					slog.Int(xlog.KeyCapacity, capacity),
					slog.Uint64("total_blocked", total))
			}
		}

		select {
		case <-ch:
		case <-ctx.Done():
			g.metrics.recordAbandoned(ctx, g.opts.clock.Since(start))
			return nil, ctx.Err()
		}
		g.mu.Lock()
	}

	g.inFlight++
	g.totalAdmitted++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	if requestID != "" {
		g.active[requestID]++
	}
	g.mu.Unlock()

	waited := g.opts.clock.Since(start)
	g.metrics.recordAdmitted(ctx, waited)
	if blocked {
		g.logger.Debug(ctx, "gate admitted after wait",
			xlog.RequestID(requestID), xlog.Duration(waited))
	}
	return &Permit{gate: g, requestID: requestID}, nil
}

// Release 归还一个名额
//
// 在途数总是减一，最低为 0；requestID 仅用于诊断，持有时移除一个持有者。
// 幂等释放由 Permit.Release 保证。不会返回错误或 panic。
func (g *Gate) Release(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.active[requestID]; ok {
		if n <= 1 {
			delete(g.active, requestID)
		} else {
			g.active[requestID] = n - 1
		}
	}
	if g.inFlight > 0 {
		g.inFlight--
	}
	// 匿名释放可能使诊断集合多出持有者，在途数归零时不可能还有持有者
	if g.inFlight == 0 {
		clear(g.active)
	}
	g.notifyLocked()
}

// Permit 门控许可，Release 幂等
type Permit struct {
	gate      *Gate
	requestID string
	released  atomic.Bool
}

// RequestID 返回获取许可时传入的请求 ID
func (p *Permit) RequestID() string {
	return p.requestID
}

// Release 归还许可，多次调用只生效一次
func (p *Permit) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	p.gate.Release(p.requestID)
}

// =============================================================================
// 容量调整
// =============================================================================

// SetCapacity 运行时调整容量
//
// waitForDrain 为 true 且 n 小于在途数时，立即把准入上限降到 n，
// 等待在途数降到 n 以下后再应用；等待超过排空上限时告警并强制应用。
// ctx 取消则放弃本次调整，容量保持不变。
//
// waitForDrain 为 false 时立即应用，缩到在途数以下只告警，
// 在途数会随请求完成自然回落。
//
// 并发的 SetCapacity 串行执行。
func (g *Gate) SetCapacity(ctx context.Context, n int, waitForDrain bool) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, n)
	}
	if ctx == nil {
		return ErrNilContext
	}

	g.resizeMu.Lock()
	defer g.resizeMu.Unlock()

	g.mu.Lock()
	old, inFlight := g.capacity, g.inFlight
	if inFlight > n && waitForDrain {
		g.limit = n
		g.mu.Unlock()

		g.logger.Info(ctx, "waiting for in-flight requests to drain before shrinking",
			slog.Int("old_capacity", old), slog.Int("new_capacity", n), slog.Int(xlog.KeyInFlight, inFlight))

		drained, err := g.waitUntil(ctx, g.opts.drainTimeout, func() bool { return g.inFlight <= n })
		if err != nil {
			g.mu.Lock()
			g.limit = g.capacity
			g.notifyLocked()
			g.mu.Unlock()
			return err
		}
		if !drained {
			g.logger.Warn(ctx, "drain timed out, applying capacity anyway",
				slog.Int("new_capacity", n), xlog.Duration(g.opts.drainTimeout))
		}
		g.mu.Lock()
	} else if inFlight > n {
		g.logger.Warn(ctx, "capacity set below in-flight count",
			slog.Int("new_capacity", n), slog.Int(xlog.KeyInFlight, inFlight))
	}

	g.capacity = n
	g.limit = n
	inFlight = g.inFlight
	g.notifyLocked()
	g.mu.Unlock()

	g.logger.Info(ctx, "gate capacity updated",
		slog.Int("old_capacity", old), slog.Int("new_capacity", n), slog.Int(xlog.KeyInFlight, inFlight))
	return nil
}

// Drain 等待所有在途请求完成
//
// 超时或 ctx 取消返回 false。timeout <= 0 表示只受 ctx 约束。
func (g *Gate) Drain(ctx context.Context, timeout time.Duration) bool {
	if ctx == nil {
		return false
	}
	drained, err := g.waitUntil(ctx, timeout, func() bool { return g.inFlight == 0 })
	if err != nil || !drained {
		g.logger.Warn(ctx, "gate drain incomplete",
			slog.Int(xlog.KeyInFlight, g.Stats().InFlight), xlog.Err(err))
		return false
	}
	return true
}

// waitUntil 等待 cond 成立。cond 在持有 mu 时调用。
// 返回 (true, nil) 表示条件成立，(false, nil) 表示超时，(false, err) 表示 ctx 结束。
func (g *Gate) waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) (bool, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := g.opts.clock.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.Chan()
	}
	for {
		g.mu.Lock()
		if cond() {
			g.mu.Unlock()
			return true, nil
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ch:
		case <-expired:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// =============================================================================
// 诊断
// =============================================================================

// Stats 返回状态快照
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Capacity:       g.capacity,
		InFlight:       g.inFlight,
		PeakInFlight:   g.peak,
		TotalAdmitted:  g.totalAdmitted,
		TotalBlocked:   g.totalBlocked,
		ActiveRequests: len(g.active),
		LastReset:      g.lastReset,
	}
}

// ResetStats 开始新的统计周期：峰值回落到当前在途数，累计计数清零
func (g *Gate) ResetStats() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peak = g.inFlight
	g.totalAdmitted = 0
	g.totalBlocked = 0
	g.lastReset = g.opts.clock.Now()
}

// ActiveRequests 返回当前持有许可的请求 ID（已排序）
func (g *Gate) ActiveRequests() []string {
	g.mu.Lock()
	ids := make([]string, 0, len(g.active))
	for id := range g.active {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	slices.Sort(ids)
	return ids
}
