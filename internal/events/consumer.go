package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/order-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readBackoff = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler applies one consumed event.
type Handler func(ctx context.Context, e Event) error

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads lifecycle events back from Kafka so that every engine
// instance sees checkouts completed on the others.
type Consumer struct {
	reader  messageReader
	handler Handler
	logger  *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, handler Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
		Logger:      logger.NewPrintf(log),
		ErrorLogger: logger.NewErrorPrintf(log),
	})
	return newConsumer(r, handler, log)
}

func newConsumer(r messageReader, handler Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: r, handler: handler, logger: log}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := c.consumeOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("event consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readBackoff):
			}
		}
	}
}

// consumeOne reads and applies a single message. Undecodable messages are
// logged and skipped.
func (c *Consumer) consumeOne(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	var e Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		c.logger.Warn("skipping undecodable event",
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		return nil
	}
	if e.Type == "" {
		c.logger.Warn("skipping event without type", zap.Int64("offset", m.Offset))
		return nil
	}

	if err := c.handler(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("event handler failed",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err))
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
