package xwindow

import (
	"context"
	"sync"
	"time"
)

var _ Backend = (*localBackend)(nil)

type tokenEvent struct {
	at time.Time
	n  int
}

// localBackend 进程内滑动日志
//
// 三个切片按时间递增，过期记录从头部剔除。
// 记录在 at <= now-window 时视为过期，不再计入。
type localBackend struct {
	mu       sync.Mutex
	requests []time.Time
	tokens   []tokenEvent
	tokenSum int
	daily    []time.Time
}

// NewLocalBackend 创建进程内后端
func NewLocalBackend() Backend {
	return &localBackend{}
}

func (b *localBackend) Type() string { return backendTypeLocal }

// pruneLocked 剔除过期记录。调用方必须持有 mu。
func (b *localBackend) pruneLocked(now time.Time) {
	minuteCutoff := now.Add(-MinuteWindow)
	dayCutoff := now.Add(-DayWindow)

	b.requests = dropExpired(b.requests, minuteCutoff)
	b.daily = dropExpired(b.daily, dayCutoff)

	i := 0
	for i < len(b.tokens) && !b.tokens[i].at.After(minuteCutoff) {
		b.tokenSum -= b.tokens[i].n
		i++
	}
	b.tokens = b.tokens[i:]
}

func dropExpired(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// Reserve 剔除、检查、追加在同一把锁内完成
func (b *localBackend) Reserve(_ context.Context, now time.Time, limits Limits, tokens int) (Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(now)

	var d Decision
	if n := len(b.requests); n >= limits.RPM {
		d.Blocked |= KindRPM
		d.RetryAfter = max(d.RetryAfter, b.requests[n-limits.RPM].Add(MinuteWindow).Sub(now))
	}
	if excess := b.tokenSum + tokens - limits.TPM; excess > 0 {
		d.Blocked |= KindTPM
		freed := 0
		for _, ev := range b.tokens {
			freed += ev.n
			if freed >= excess {
				d.RetryAfter = max(d.RetryAfter, ev.at.Add(MinuteWindow).Sub(now))
				break
			}
		}
	}
	if n := len(b.daily); n >= limits.RPD {
		d.Blocked |= KindRPD
		d.RetryAfter = max(d.RetryAfter, b.daily[n-limits.RPD].Add(DayWindow).Sub(now))
	}
	if d.Blocked != 0 {
		return d, nil
	}

	b.requests = append(b.requests, now)
	b.tokens = append(b.tokens, tokenEvent{at: now, n: tokens})
	b.tokenSum += tokens
	b.daily = append(b.daily, now)
	return Decision{Allowed: true}, nil
}

// Usage 返回剔除过期记录后的用量
func (b *localBackend) Usage(_ context.Context, now time.Time) (Usage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(now)
	return Usage{
		Requests: len(b.requests),
		Tokens:   b.tokenSum,
		Daily:    len(b.daily),
	}, nil
}
