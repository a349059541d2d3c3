package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"sqidlink.local/internal/platform/metrics"
)

// BloomFilter 记录所有签发过的短码。MightExist 返回 false 时短码一定不存在。
type BloomFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	ready  bool
}

// NewBloomFilter fpRate 一般取 0.01
func NewBloomFilter(expectedItems uint, fpRate float64) *BloomFilter {
	return &BloomFilter{filter: bloom.NewWithEstimates(expectedItems, fpRate)}
}

func (b *BloomFilter) Add(code string) {
	b.mu.Lock()
	b.filter.AddString(code)
	b.mu.Unlock()
}

// MarkReady 在全量预热完成后调用；预热前 MightExist 一律返回 true
func (b *BloomFilter) MarkReady() {
	b.mu.Lock()
	b.ready = true
	metrics.BloomApproxItems.Set(float64(b.filter.ApproximatedSize()))
	b.mu.Unlock()
}

func (b *BloomFilter) MightExist(code string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready {
		return true
	}
	return b.filter.TestString(code)
}

// Count 是估算值
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
