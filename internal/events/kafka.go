package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/order-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 1024
	defaultBatchSize = 100
	defaultFlushTick = time.Second
	drainTimeout     = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers   []string
	Topic     string
	QueueSize int
	FlushTick time.Duration
}

// KafkaPublisher queues events in memory and flushes them to Kafka from Run.
// Events are dropped when the queue is full.
type KafkaPublisher struct {
	writer    messageWriter
	queue     chan Event
	batchSize int
	flushTick time.Duration
	logger    *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Logger:                 logger.NewPrintf(log),
		ErrorLogger:            logger.NewErrorPrintf(log),
	}
	return newKafkaPublisher(w, cfg, log)
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	tick := cfg.FlushTick
	if tick <= 0 {
		tick = defaultFlushTick
	}
	return &KafkaPublisher{
		writer:    w,
		queue:     make(chan Event, size),
		batchSize: defaultBatchSize,
		flushTick: tick,
		logger:    log,
	}
}

func (p *KafkaPublisher) Publish(_ context.Context, e Event) {
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)))
	}
}

// Run flushes queued events until ctx is done, then drains what is left.
func (p *KafkaPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flushTick)
	defer ticker.Stop()

	batch := make([]Event, 0, p.batchSize)
	for {
		select {
		case e := <-p.queue:
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			p.drain(batch)
			return
		}
	}
}

func (p *KafkaPublisher) drain(batch []Event) {
loop:
	for {
		select {
		case e := <-p.queue:
			batch = append(batch, e)
		default:
			break loop
		}
	}
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	p.flush(ctx, batch)
}

func (p *KafkaPublisher) flush(ctx context.Context, batch []Event) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		value, err := json.Marshal(e)
		if err != nil {
			p.logger.Error("failed to marshal event", zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish events", zap.Int("count", len(msgs)), zap.Error(err))
		return
	}
	p.logger.Debug("published events", zap.Int("count", len(msgs)))
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
