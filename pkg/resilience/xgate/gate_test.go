package xgate

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

// syncBuffer 并发安全的日志缓冲区
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestGate(t *testing.T, capacity int, opts ...Option) (*Gate, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	logger, cleanup, err := xlog.New().SetOutput(out).SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	g, err := New(capacity, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, g.Close()) })
	return g, out
}

func acquire(t *testing.T, g *Gate, id string) *Permit {
	t.Helper()
	p, err := g.Acquire(context.Background(), id)
	require.NoError(t, err)
	return p
}

func admitLimit(g *Gate) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// waitBlocked 等待累计阻塞次数达到 n
func waitBlocked(t *testing.T, g *Gate, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return g.Stats().TotalBlocked >= n
	}, time.Second, time.Millisecond)
}

// =============================================================================
// 构造
// =============================================================================

func TestNew_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := New(c)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestNew_NilOption(t *testing.T) {
	g, err := New(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Stats().Capacity)
	assert.False(t, g.Stats().LastReset.IsZero())
}

// =============================================================================
// 获取与释放
// =============================================================================

func TestGate_AcquireRelease(t *testing.T) {
	g, _ := newTestGate(t, 2)

	p1 := acquire(t, g, "req-b")
	p2 := acquire(t, g, "req-a")

	s := g.Stats()
	assert.Equal(t, 2, s.InFlight)
	assert.Equal(t, 2, s.PeakInFlight)
	assert.Equal(t, uint64(2), s.TotalAdmitted)
	assert.Equal(t, uint64(0), s.TotalBlocked)
	assert.Equal(t, 2, s.ActiveRequests)
	assert.Equal(t, []string{"req-a", "req-b"}, g.ActiveRequests())
	assert.Equal(t, "req-b", p1.RequestID())

	p1.Release()
	p2.Release()

	s = g.Stats()
	assert.Equal(t, 0, s.InFlight)
	assert.Equal(t, 2, s.PeakInFlight)
	assert.Empty(t, g.ActiveRequests())
}

func TestGate_AcquireBlocksUntilRelease(t *testing.T) {
	g, _ := newTestGate(t, 2)
	p1 := acquire(t, g, "a")
	acquire(t, g, "b")

	admitted := make(chan *Permit)
	go func() {
		p, err := g.Acquire(context.Background(), "c")
		if assert.NoError(t, err) {
			admitted <- p
		}
	}()

	waitBlocked(t, g, 1)
	select {
	case <-admitted:
		t.Fatal("third request admitted while gate full")
	default:
	}

	p1.Release()
	select {
	case p := <-admitted:
		assert.Equal(t, "c", p.RequestID())
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by release")
	}

	s := g.Stats()
	assert.Equal(t, 2, s.InFlight)
	assert.Equal(t, uint64(1), s.TotalBlocked)
	assert.Equal(t, uint64(3), s.TotalAdmitted)
}

func TestGate_NeverExceedsCapacity(t *testing.T) {
	const capacity, workers = 5, 50
	g, _ := newTestGate(t, capacity)

	var cur, maxSeen atomic.Int64
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p, err := g.Acquire(context.Background(), fmt.Sprintf("req-%d", id))
			if !assert.NoError(t, err) {
				return
			}
			defer p.Release()

			n := cur.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			assert.LessOrEqual(t, g.Stats().InFlight, capacity)
			time.Sleep(time.Millisecond)
			cur.Add(-1)
		}(i)
	}
	wg.Wait()

	s := g.Stats()
	assert.LessOrEqual(t, maxSeen.Load(), int64(capacity))
	assert.LessOrEqual(t, s.PeakInFlight, capacity)
	assert.Equal(t, 0, s.InFlight)
	assert.Equal(t, uint64(workers), s.TotalAdmitted)
	assert.GreaterOrEqual(t, s.TotalAdmitted, uint64(s.InFlight))
}

func TestGate_AcquireCancelled(t *testing.T) {
	g, _ := newTestGate(t, 1)
	p := acquire(t, g, "holder")
	defer p.Release()

	t.Run("timeout while waiting", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := g.Acquire(ctx, "waiter")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		s := g.Stats()
		assert.Equal(t, 1, s.InFlight)
		assert.Equal(t, uint64(1), s.TotalAdmitted)
		assert.Equal(t, []string{"holder"}, g.ActiveRequests())
	})

	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := g.Acquire(ctx, "late")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, g.Stats().InFlight)
	})

	t.Run("nil context", func(t *testing.T) {
		_, err := g.Acquire(nil, "x") //nolint:staticcheck // 测试 nil ctx
		assert.ErrorIs(t, err, ErrNilContext)
	})
}

func TestGate_ReleaseIdempotent(t *testing.T) {
	g, _ := newTestGate(t, 3)

	t.Run("same request id twice floors at zero", func(t *testing.T) {
		acquire(t, g, "dup")
		g.Release("dup")
		g.Release("dup")
		assert.Equal(t, 0, g.Stats().InFlight)
		assert.Empty(t, g.ActiveRequests())
	})

	t.Run("permit released twice", func(t *testing.T) {
		p := acquire(t, g, "p")
		acquire(t, g, "q")
		p.Release()
		p.Release()
		assert.Equal(t, 1, g.Stats().InFlight)
		assert.Equal(t, []string{"q"}, g.ActiveRequests())
		g.Release("q")
	})

	t.Run("floors at zero", func(t *testing.T) {
		g.Release("")
		g.Release("")
		assert.Equal(t, 0, g.Stats().InFlight)
	})

	t.Run("nil permit", func(t *testing.T) {
		var p *Permit
		assert.NotPanics(t, p.Release)
	})
}

func TestGate_ReleaseIgnoresRequestID(t *testing.T) {
	t.Run("unknown id still frees the slot", func(t *testing.T) {
		g, _ := newTestGate(t, 1)
		acquire(t, g, "")
		g.Release("never-acquired")
		assert.Equal(t, 0, g.Stats().InFlight)

		// 名额已归还，下一次获取不阻塞
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p, err := g.Acquire(ctx, "next")
		require.NoError(t, err)
		p.Release()
	})

	t.Run("anonymous releases clear held ids", func(t *testing.T) {
		g, _ := newTestGate(t, 3)
		acquire(t, g, "a")
		acquire(t, g, "b")
		g.Release("")
		assert.Equal(t, 1, g.Stats().InFlight)
		g.Release("")
		g.Release("")

		s := g.Stats()
		assert.Equal(t, 0, s.InFlight)
		assert.Equal(t, 0, s.ActiveRequests)
		assert.Empty(t, g.ActiveRequests())
	})

	t.Run("duplicate ids release one holder", func(t *testing.T) {
		g, _ := newTestGate(t, 3)
		acquire(t, g, "x")
		acquire(t, g, "x")
		acquire(t, g, "y")
		g.Release("x")
		assert.Equal(t, 2, g.Stats().InFlight)
		assert.Equal(t, []string{"x", "y"}, g.ActiveRequests())
		g.Release("x")
		assert.Equal(t, []string{"y"}, g.ActiveRequests())
		g.Release("y")
	})
}

func TestGate_BlockedWarning(t *testing.T) {
	g, out := newTestGate(t, 1, WithBlockedWarnEvery(10))
	p := acquire(t, g, "holder")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Acquire(ctx, "")
			assert.ErrorIs(t, err, context.Canceled)
		}()
	}
	waitBlocked(t, g, 10)
	cancel()
	wg.Wait()
	p.Release()

	assert.Equal(t, 1, strings.Count(out.String(), "gate saturated"))
	assert.Contains(t, out.String(), "total_blocked=10")
}

// =============================================================================
// 统计
// =============================================================================

func TestGate_PeakAndReset(t *testing.T) {
	g, _ := newTestGate(t, 4)
	before := g.Stats().LastReset

	ps := []*Permit{acquire(t, g, "1"), acquire(t, g, "2"), acquire(t, g, "3")}
	ps[0].Release()
	ps[1].Release()
	assert.Equal(t, 3, g.Stats().PeakInFlight)

	acquire(t, g, "4")
	// 峰值不随在途数回落
	assert.Equal(t, 3, g.Stats().PeakInFlight)

	time.Sleep(time.Millisecond)
	g.ResetStats()
	s := g.Stats()
	assert.Equal(t, 2, s.PeakInFlight)
	assert.Equal(t, 2, s.InFlight)
	assert.Zero(t, s.TotalAdmitted)
	assert.Zero(t, s.TotalBlocked)
	assert.True(t, s.LastReset.After(before))
}

// =============================================================================
// 容量调整
// =============================================================================

func TestGate_SetCapacity_Invalid(t *testing.T) {
	g, _ := newTestGate(t, 2)
	err := g.SetCapacity(context.Background(), 0, false)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	assert.Equal(t, 2, g.Stats().Capacity)
}

func TestGate_SetCapacity_GrowWakesWaiters(t *testing.T) {
	g, _ := newTestGate(t, 1)
	acquire(t, g, "a")

	admitted := make(chan struct{})
	go func() {
		if _, err := g.Acquire(context.Background(), "b"); assert.NoError(t, err) {
			close(admitted)
		}
	}()
	waitBlocked(t, g, 1)

	require.NoError(t, g.SetCapacity(context.Background(), 2, true))
	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by capacity growth")
	}
	assert.Equal(t, 2, g.Stats().Capacity)
	assert.Equal(t, 2, g.Stats().InFlight)
}

func TestGate_SetCapacity_ShrinkImmediate(t *testing.T) {
	g, out := newTestGate(t, 3)
	ps := []*Permit{acquire(t, g, "a"), acquire(t, g, "b"), acquire(t, g, "c")}

	require.NoError(t, g.SetCapacity(context.Background(), 1, false))
	assert.Equal(t, 1, g.Stats().Capacity)
	assert.Equal(t, 3, g.Stats().InFlight)
	assert.Contains(t, out.String(), "capacity set below in-flight count")

	// 在途数回落到容量以下之前不放行新请求
	ps[0].Release()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Acquire(ctx, "d")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ps[1].Release()
	ps[2].Release()
	acquire(t, g, "e")
	assert.Equal(t, 1, g.Stats().InFlight)
}

func TestGate_SetCapacity_WaitForDrain(t *testing.T) {
	g, _ := newTestGate(t, 3, WithDrainTimeout(5*time.Second))
	ps := []*Permit{acquire(t, g, "a"), acquire(t, g, "b"), acquire(t, g, "c")}

	done := make(chan error, 1)
	go func() {
		done <- g.SetCapacity(context.Background(), 1, true)
	}()

	require.Eventually(t, func() bool { return admitLimit(g) == 1 }, time.Second, time.Millisecond)

	// 排空期间准入上限已降到 1，释放一个后新请求仍然等待
	ps[0].Release()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Acquire(ctx, "new")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, g.Stats().Capacity, "capacity applied before drain")

	ps[1].Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SetCapacity did not return after drain")
	}
	s := g.Stats()
	assert.Equal(t, 1, s.Capacity)
	assert.Equal(t, 1, s.InFlight)
	assert.LessOrEqual(t, s.InFlight, s.Capacity)
	ps[2].Release()
}

func TestGate_SetCapacity_DrainTimeout(t *testing.T) {
	g, out := newTestGate(t, 2, WithDrainTimeout(20*time.Millisecond))
	acquire(t, g, "a")
	acquire(t, g, "b")

	require.NoError(t, g.SetCapacity(context.Background(), 1, true))
	assert.Equal(t, 1, g.Stats().Capacity)
	assert.Equal(t, 2, g.Stats().InFlight)
	assert.Contains(t, out.String(), "drain timed out")
}

func TestGate_SetCapacity_Cancelled(t *testing.T) {
	g, _ := newTestGate(t, 3, WithDrainTimeout(0))
	acquire(t, g, "a")
	acquire(t, g, "b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.SetCapacity(ctx, 1, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 放弃调整后容量与准入上限都恢复
	assert.Equal(t, 3, g.Stats().Capacity)
	acquire(t, g, "c")
	assert.Equal(t, 3, g.Stats().InFlight)
}

func TestGate_SetCapacity_Serialized(t *testing.T) {
	g, _ := newTestGate(t, 4)
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, g.SetCapacity(context.Background(), n, true))
		}(i)
	}
	wg.Wait()
	c := g.Stats().Capacity
	assert.GreaterOrEqual(t, c, 1)
	assert.LessOrEqual(t, c, 8)
}

// =============================================================================
// Drain
// =============================================================================

func TestGate_Drain(t *testing.T) {
	g, out := newTestGate(t, 2)

	assert.True(t, g.Drain(context.Background(), time.Second))

	p := acquire(t, g, "a")
	assert.False(t, g.Drain(context.Background(), 10*time.Millisecond))
	assert.Contains(t, out.String(), "gate drain incomplete")

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Release()
	}()
	assert.True(t, g.Drain(context.Background(), time.Second))
	assert.False(t, g.Drain(nil, time.Second)) //nolint:staticcheck // 测试 nil ctx
}
