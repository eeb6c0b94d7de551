package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageHandler processes one message. A returned error is logged and the
// consumer moves on; messages are not redelivered.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer reads from the event topic inside a consumer group.
type Consumer struct {
	reader *kafka.Reader
	log    *logrus.Entry
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{
		reader: reader,
		log:    logrus.WithFields(logrus.Fields{"component": "kafka", "topic": topic, "group": groupID}),
	}
}

// Consume reads messages until the context is canceled.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.WithError(err).Error("read message")
				continue
			}

			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				c.log.WithError(err).WithField("key", string(msg.Key)).Error("handle message")
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
