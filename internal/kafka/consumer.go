package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer tails a set of topics in one consumer group, sequentially, with
// manual commits. Failed messages are not committed and come back on the
// next fetch.
type Consumer struct {
	r   *kafka.Reader
	log zerolog.Logger
}

func NewConsumer(brokers []string, group string, topics []string, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return &Consumer{r: r, log: log}
}

func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := h(ctx, m); err != nil {
			c.log.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("handler failed, not committing")
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			c.log.Error().Err(err).Str("topic", m.Topic).Msg("commit failed")
		}
	}
}
