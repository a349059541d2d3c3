package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"sqidlink.local/internal/platform/metrics"
)

// 负缓存哨兵，不能用空串，否则分不清未命中和命中空值
const notFoundSentinel = "__nil__"

// RedisClient 是 *redis.Client 的子集
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Loader 回源查询；found=false 表示确认不存在，会写负缓存
type Loader func(ctx context.Context) (url string, found bool, err error)

// ShortlinkCache: L1 ristretto -> L2 redis(sl:<code>) -> 回源，回源按 code 合并
type ShortlinkCache struct {
	client   RedisClient
	local    *LocalCache
	group    singleflight.Group
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewShortlinkCache(client RedisClient, local *LocalCache) *ShortlinkCache {
	return &ShortlinkCache{
		client:   client,
		local:    local,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
}

func key(code string) string { return "sl:" + code }

type loadResult struct {
	url   string
	found bool
}

// Load 依次查 L1、L2，都没有时调用 load。redis 出错只记日志，继续回源。
func (c *ShortlinkCache) Load(ctx context.Context, code string, load Loader) (string, bool, error) {
	if c.local != nil {
		if url, found, hit := c.local.Get(code); hit {
			if found {
				metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			} else {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
			}
			return url, found, nil
		}
	}

	res, err := c.client.Get(ctx, key(code)).Result()
	switch {
	case err == nil:
		if res == notFoundSentinel {
			metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
			if c.local != nil {
				c.local.SetNotFound(code)
			}
			return "", false, nil
		}
		metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
		if c.local != nil {
			c.local.Set(code, res)
		}
		return res, true, nil
	case errors.Is(err, redis.Nil):
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
	default:
		slog.Error("shortlink cache get failed", "code", code, "err", err)
	}

	v, err, _ := c.group.Do(code, func() (any, error) {
		url, found, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if found {
			_ = c.Set(ctx, code, url)
		} else {
			_ = c.SetNotFound(ctx, code)
		}
		return loadResult{url: url, found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := v.(loadResult)
	return r.url, r.found, nil
}

// Set 同时写 L1 和 L2，会覆盖负缓存
func (c *ShortlinkCache) Set(ctx context.Context, code, url string) error {
	if c.local != nil {
		c.local.Set(code, url)
	}
	if err := c.client.Set(ctx, key(code), url, c.ttl).Err(); err != nil {
		slog.Error("shortlink cache set failed", "code", code, "err", err)
		return err
	}
	return nil
}

func (c *ShortlinkCache) SetNotFound(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.SetNotFound(code)
	}
	if err := c.client.Set(ctx, key(code), notFoundSentinel, c.emptyTTL).Err(); err != nil {
		slog.Error("shortlink cache set negative failed", "code", code, "err", err)
		return err
	}
	return nil
}

func (c *ShortlinkCache) Delete(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.Del(code)
	}
	return c.client.Del(ctx, key(code)).Err()
}

func (c *ShortlinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
