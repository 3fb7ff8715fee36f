package xwindow

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Backend = (*redisBackend)(nil)

// redisBackend 基于 Redis 有序集合的共享滑动日志
//
// 多个进程共用同一个 name 时共享一份配额。时间戳由调用方传入，
// 各进程的时钟需要同步（NTP 级别误差对分钟窗口可以忽略）。
type redisBackend struct {
	client redis.UniversalClient
	keys   []string
}

// NewRedisBackend 创建 Redis 后端
//
// name 标识一份配额（通常是服务商 + 模型），键名带 hash tag，Cluster 下三个键落在同一 slot。
func NewRedisBackend(client redis.UniversalClient, name string) (Backend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if strings.TrimSpace(name) == "" {
		name = "default"
	}
	prefix := "xwindow:{" + name + "}:"
	return &redisBackend{
		client: client,
		keys:   []string{prefix + "req", prefix + "tok", prefix + "day"},
	}, nil
}

func (b *redisBackend) Type() string { return backendTypeRedis }

// Reserve 由一段 Lua 脚本原子完成剔除、检查与追加
func (b *redisBackend) Reserve(ctx context.Context, now time.Time, limits Limits, tokens int) (Decision, error) {
	val, err := reserveScript.Run(ctx, b.client, b.keys,
		now.UnixMilli(), limits.RPM, limits.TPM, limits.RPD, tokens, uuid.NewString()).Result()
	if err != nil {
		return Decision{}, err
	}
	res, err := convertScriptResult(val)
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 3 {
		return Decision{}, fmt.Errorf("%w: got %d elements, want 3", errUnexpectedScriptResult, len(res))
	}
	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Blocked:    Kind(res[2]),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

// Usage 统计分数落在 (now-window, now] 的成员
func (b *redisBackend) Usage(ctx context.Context, now time.Time) (Usage, error) {
	ms := now.UnixMilli()
	minuteMin := "(" + strconv.FormatInt(ms-MinuteWindow.Milliseconds(), 10)
	dayMin := "(" + strconv.FormatInt(ms-DayWindow.Milliseconds(), 10)

	pipe := b.client.Pipeline()
	reqCmd := pipe.ZCount(ctx, b.keys[0], minuteMin, "+inf")
	tokCmd := pipe.ZRangeByScore(ctx, b.keys[1], &redis.ZRangeBy{Min: minuteMin, Max: "+inf"})
	dayCmd := pipe.ZCount(ctx, b.keys[2], dayMin, "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return Usage{}, err
	}

	sum := 0
	for _, m := range tokCmd.Val() {
		i := strings.LastIndexByte(m, ':')
		if i < 0 {
			continue
		}
		n, err := strconv.Atoi(m[i+1:])
		if err != nil {
			continue
		}
		sum += n
	}
	return Usage{
		Requests: int(reqCmd.Val()),
		Tokens:   sum,
		Daily:    int(dayCmd.Val()),
	}, nil
}

// convertScriptResult 将 Lua 脚本返回值安全转换为 []int64
func convertScriptResult(val any) ([]int64, error) {
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", errUnexpectedScriptResult, val)
	}
	out := make([]int64, len(arr))
	for i, v := range arr {
		switch n := v.(type) {
		case int64:
			out[i] = n
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%w: element %d is non-integer %g", errUnexpectedScriptResult, i, n)
			}
			out[i] = int64(n)
		default:
			return nil, fmt.Errorf("%w: element %d is %T", errUnexpectedScriptResult, i, v)
		}
	}
	return out, nil
}
