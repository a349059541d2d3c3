package stats

import (
	"context"
	"log/slog"
	"time"
)

// Consumer 消费 ChannelCollector 的事件写库
type Consumer struct {
	db        Beginner
	events    <-chan ClickEvent
	batchSize int
	interval  time.Duration
}

func NewConsumer(db Beginner, collector *ChannelCollector) *Consumer {
	return &Consumer{
		db:        db,
		events:    collector.Events(),
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
}

// Run 阻塞到 ctx 结束或 collector 关闭
func (c *Consumer) Run(ctx context.Context) {
	runBatches(ctx, c.events, c.batchSize, c.interval, func(batch []ClickEvent) {
		if err := flushClicks(c.db, batch); err != nil {
			slog.Error("click stats: flush failed", "count", len(batch), "err", err)
		}
	})
}
