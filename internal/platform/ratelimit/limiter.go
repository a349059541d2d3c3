package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// 滑动窗口：ZSET 里每个成员是一次请求，score 为毫秒时间戳
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

if count <= limit then
  return {1, 0}
end

redis.call("ZREM", key, member)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  local retry = (tonumber(oldest[2]) + window) - now
  if retry < 0 then retry = 0 end
  return {0, retry}
end
return {0, window}
`)

// Decision 是一次限流判定的结果，RetryAfter 只在 !Allowed 时有意义
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter struct {
	client redis.Scripter
	seq    atomic.Uint64
	now    func() time.Time
}

func NewLimiter(client redis.Scripter) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now()
	// member 每次请求唯一，否则 ZADD 会覆盖；纳秒时间戳在部分虚拟化环境会重复，所以拼上序列号
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	res, err := slidingWindow.Run(ctx, l.client, []string{key}, now.UnixMilli(), window.Milliseconds(), limit, member).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", key, err)
	}
	return parseResult(res)
}

func parseResult(res any) (Decision, error) {
	arr, ok := res.([]any)
	if !ok || len(arr) < 2 {
		return Decision{}, fmt.Errorf("unexpected ratelimit result: %T %v", res, res)
	}
	allowed, _ := arr[0].(int64)
	var retryMS int64
	switch v := arr[1].(type) {
	case int64:
		retryMS = v
	case string:
		retryMS, _ = strconv.ParseInt(v, 10, 64)
	}
	return Decision{Allowed: allowed == 1, RetryAfter: time.Duration(retryMS) * time.Millisecond}, nil
}
