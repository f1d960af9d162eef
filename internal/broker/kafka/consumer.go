package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader

	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		// новая группа читает с начала: исходы, опубликованные до первого старта, не теряются
		StartOffset: kafka.FirstOffset,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg))
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, attempts: 3, backoff: 150 * time.Millisecond}
}

// WithRetry sets how many times a failing handler is called for one message.
func (c *Consumer) WithRetry(attempts int, backoff time.Duration) *Consumer {
	if attempts > 0 {
		c.attempts = attempts
	}
	if backoff > 0 {
		c.backoff = backoff
	}
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands messages to handler one by one and commits each after handler succeeds.
// When handler keeps failing Consume stops without committing, so the message is redelivered.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, msg, handler); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(key, value []byte) error) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if err = handler(msg.Key, msg.Value); err == nil {
			return nil
		}
		slog.Warn("kafka handler failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"attempt", i+1, "error", err.Error())
		if i == c.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(i+1)):
		}
	}
	return errors.Wrapf(err, "handle message at offset %d", msg.Offset)
}
