package stats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const consumerGroup = "click-stats-consumer"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaCollector 异步写 topic，按短码分区保证同一短码的事件有序
type KafkaCollector struct {
	writer messageWriter
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
			Async:    true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					slog.Error("kafka write failed", "count", len(msgs), "err", err)
				}
			},
		},
	}
}

func (k *KafkaCollector) Collect(event ClickEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal click event failed", "code", event.Code, "err", err)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(event.Code), Value: data}); err != nil {
		slog.Error("kafka write failed", "code", event.Code, "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}

// KafkaConsumer 从 topic 读事件，批量写库
type KafkaConsumer struct {
	reader    messageReader
	db        Beginner
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, db Beginner) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  consumerGroup,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		db:        db,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
}

// Run 阻塞到 ctx 结束
func (k *KafkaConsumer) Run(ctx context.Context) {
	events := make(chan ClickEvent, k.batchSize)
	go k.read(ctx, events)
	runBatches(ctx, events, k.batchSize, k.interval, func(batch []ClickEvent) {
		if err := flushClicks(k.db, batch); err != nil {
			slog.Error("kafka consumer: flush failed", "count", len(batch), "err", err)
		}
	})
}

// read 把消息解码后送进 out，ctx 结束或 reader 关闭时关闭 out
func (k *KafkaConsumer) read(ctx context.Context, out chan<- ClickEvent) {
	defer close(out)
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			slog.Error("kafka read failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		var e ClickEvent
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			slog.Error("unmarshal click event failed", "offset", msg.Offset, "err", err)
			continue
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return
		}
	}
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
