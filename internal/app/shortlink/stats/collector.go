package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"sqidlink.local/internal/platform/metrics"
)

// ClickEvent 是一次跳转
type ClickEvent struct {
	Code      string    `json:"code"`
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// Collector 不能阻塞跳转请求
type Collector interface {
	Collect(event ClickEvent)
	Close()
}

// ChannelCollector 进程内缓冲，满了直接丢
type ChannelCollector struct {
	mu      sync.RWMutex
	ch      chan ClickEvent
	closed  bool
	dropped atomic.Uint64
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{ch: make(chan ClickEvent, bufferSize)}
}

func (c *ChannelCollector) Collect(event ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
		metrics.ClickEventsDropped.Inc()
	}
}

// Dropped 返回因缓冲区满被丢弃的事件数
func (c *ChannelCollector) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *ChannelCollector) Events() <-chan ClickEvent {
	return c.ch
}

// Close 可重复调用；关闭后 Collect 变成空操作，消费者读完剩余事件后退出
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
