package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqidlink.local/internal/platform/metrics"
)

// memRedis 只实现 Get/Set/Del，不处理过期
type memRedis struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func loaderReturning(url string, found bool, calls *atomic.Int32) Loader {
	return func(context.Context) (string, bool, error) {
		calls.Add(1)
		return url, found, nil
	}
}

func TestShortlinkCache_LoadWritesBack(t *testing.T) {
	rdb := newMemRedis()
	c := NewShortlinkCache(rdb, nil)
	ctx := context.Background()
	var calls atomic.Int32

	url, found, err := c.Load(ctx, "Uk", loaderReturning("https://example.com", true, &calls))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, "https://example.com", rdb.data["sl:Uk"])
	assert.Equal(t, time.Hour, rdb.ttls["sl:Uk"])

	// 第二次命中 L2，不回源
	url, found, err = c.Load(ctx, "Uk", loaderReturning("other", true, &calls))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, int32(1), calls.Load())
}

func TestShortlinkCache_NegativeCaching(t *testing.T) {
	rdb := newMemRedis()
	c := NewShortlinkCache(rdb, nil)
	ctx := context.Background()
	var calls atomic.Int32

	_, found, err := c.Load(ctx, "nope", loaderReturning("", false, &calls))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, notFoundSentinel, rdb.data["sl:nope"])
	assert.Equal(t, 30*time.Second, rdb.ttls["sl:nope"])

	_, found, err = c.Load(ctx, "nope", loaderReturning("https://late.example", true, &calls))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int32(1), calls.Load())

	// 创建后 Set 覆盖负缓存
	require.NoError(t, c.Set(ctx, "nope", "https://late.example"))
	url, found, err := c.Load(ctx, "nope", loaderReturning("", false, &calls))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://late.example", url)
}

func TestShortlinkCache_RedisErrorFallsThrough(t *testing.T) {
	rdb := newMemRedis()
	rdb.getErr = errors.New("connection refused")
	c := NewShortlinkCache(rdb, nil)
	var calls atomic.Int32

	url, found, err := c.Load(context.Background(), "Uk", loaderReturning("https://example.com", true, &calls))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, int32(1), calls.Load())
}

func TestShortlinkCache_LoaderError(t *testing.T) {
	c := NewShortlinkCache(newMemRedis(), nil)
	boom := errors.New("db down")
	_, _, err := c.Load(context.Background(), "Uk", func(context.Context) (string, bool, error) {
		return "", false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestShortlinkCache_SingleflightCollapsesLoads(t *testing.T) {
	c := NewShortlinkCache(newMemRedis(), nil)
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (string, bool, error) {
		calls.Add(1)
		<-release
		return "https://example.com", true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, found, err := c.Load(context.Background(), "hot", load)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "https://example.com", url)
		}()
	}
	// 给 goroutine 时间进入 singleflight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestShortlinkCache_LocalLayer(t *testing.T) {
	local, err := NewLocalCache(1000, 1000)
	require.NoError(t, err)
	defer local.Close()

	rdb := newMemRedis()
	c := NewShortlinkCache(rdb, local)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "Uk", "https://example.com"))
	local.Wait()

	// L2 被清掉后 L1 仍然能命中
	delete(rdb.data, "sl:Uk")
	var calls atomic.Int32
	url, found, err := c.Load(ctx, "Uk", loaderReturning("", false, &calls))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com", url)
	assert.Zero(t, calls.Load())

	require.NoError(t, c.Delete(ctx, "Uk"))
	local.Wait()
	_, _, hit := local.Get("Uk")
	assert.False(t, hit)
}

func TestLocalCache_Negative(t *testing.T) {
	local, err := NewLocalCache(100, 100)
	require.NoError(t, err)
	defer local.Close()

	local.SetNotFound("gone")
	local.Wait()
	url, found, hit := local.Get("gone")
	assert.True(t, hit)
	assert.False(t, found)
	assert.Empty(t, url)
}

func TestBloomFilter(t *testing.T) {
	b := NewBloomFilter(1000, 0.01)
	// 预热前不做判断
	assert.True(t, b.MightExist("anything"))

	b.Add("Uk")
	b.Add("86Rf07")
	b.MarkReady()

	assert.True(t, b.MightExist("Uk"))
	assert.True(t, b.MightExist("86Rf07"))
	assert.False(t, b.MightExist("definitely-not-added-code"))
	assert.InDelta(t, 2, float64(b.Count()), 1)
	assert.Equal(t, float64(b.Count()), testutil.ToFloat64(metrics.BloomApproxItems))
}
