package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cargodesk_events_consumed_total",
	Help: "Domain events read from kafka, by result.",
}, []string{"result"})

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r     messageReader
	group string
}

// NewConsumer reads topic as a member of groupID; an empty groupID reads the
// topic directly without committed offsets.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{r: kafka.NewReader(cfg), group: groupID}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands every message to handler and commits it once the handler
// succeeds. A handler or commit error stops consumption and leaves the
// message uncommitted, so the group redelivers it. Cancelling ctx returns
// ctx.Err().
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			eventsConsumed.WithLabelValues("handler_error").Inc()
			slog.Error("event handler failed", c.logAttrs(msg, err)...)
			return errors.Wrapf(err, "handle message %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			eventsConsumed.WithLabelValues("commit_error").Inc()
			slog.Error("event commit failed", c.logAttrs(msg, err)...)
			return errors.Wrapf(err, "commit message %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		eventsConsumed.WithLabelValues("ok").Inc()
	}
}

func (c *Consumer) logAttrs(msg kafka.Message, err error) []any {
	return []any{
		"topic", msg.Topic,
		"group", c.group,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"err", err,
	}
}
