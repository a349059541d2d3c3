package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 是进程内 L1，TTL 比 redis 短，多实例下靠过期收敛
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache maxItems 决定计数器数量，maxCost 按条目数计（每条 cost=1）
func NewLocalCache(maxItems, maxCost int64) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxCost,
		BufferItems: 64,

		// cost 就是条目数，不叠加内部结构体开销
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: c, ttl: 5 * time.Minute, emptyTTL: 10 * time.Second}, nil
}

// Get hit 表示 L1 是否有这条记录；命中负缓存时 found 为 false
func (l *LocalCache) Get(code string) (url string, found, hit bool) {
	v, ok := l.cache.Get(code)
	if !ok {
		return "", false, false
	}
	s, _ := v.(string)
	if s == notFoundSentinel {
		return "", false, true
	}
	return s, true, true
}

func (l *LocalCache) Set(code, url string) {
	l.cache.SetWithTTL(code, url, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(code string) {
	l.cache.SetWithTTL(code, notFoundSentinel, 1, l.emptyTTL)
}

func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

// Wait 等待缓冲区里的写入生效
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
