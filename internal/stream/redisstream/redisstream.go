// Package redisstream implements the change-notification stream on
// Redis Streams. One stream carries every change event; each pipeline
// stage reads it through its own consumer group, giving independent
// cursors and at-least-once delivery (entries are acknowledged only
// after the handler returns, and stale pending entries are reclaimed).
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jeovahfialho/stock-tracker/internal/stream"
	"github.com/jeovahfialho/stock-tracker/pkg/metrics"
	"go.uber.org/zap"
)

const eventField = "event"

type Publisher struct {
	client *redis.Client
	name   string
}

func NewPublisher(client *redis.Client, name string) *Publisher {
	return &Publisher{client: client, name: name}
}

func (p *Publisher) Publish(ctx context.Context, event stream.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.name,
		Values: map[string]interface{}{eventField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	Block    time.Duration
	// MinIdle is how long a pending entry may sit unacknowledged before
	// it is reclaimed from a dead consumer.
	MinIdle time.Duration
}

type Consumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	filter  stream.Filter
	handler stream.Handler
	log     *zap.Logger
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig, filter stream.Filter, handler stream.Handler, log *zap.Logger) *Consumer {
	if cfg.Batch <= 0 {
		cfg.Batch = 16
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 30 * time.Second
	}

	return &Consumer{
		client:  client,
		cfg:     cfg,
		filter:  filter,
		handler: handler,
		log:     log,
	}
}

// Run blocks consuming the stream until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.reclaim(ctx)

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Batch,
			Block:    c.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.log.Warn("stream read failed",
				zap.String("group", c.cfg.Group),
				zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, entries := range res {
			c.process(ctx, entries.Messages)
		}
	}
}

func (c *Consumer) process(ctx context.Context, messages []redis.XMessage) {
	for _, msg := range messages {
		event, err := decode(msg)
		if err != nil {
			// Unparseable entries can never succeed; drop them.
			c.log.Error("dropping undecodable stream entry",
				zap.String("id", msg.ID),
				zap.Error(err))
			c.ack(ctx, msg.ID)
			continue
		}

		if !c.filter.Match(event) {
			c.ack(ctx, msg.ID)
			continue
		}

		if err := c.handler(ctx, event); err != nil {
			// Left pending; redelivered via reclaim.
			c.log.Warn("handler failed, leaving entry pending",
				zap.String("id", msg.ID),
				zap.String("key", event.Keys.String()),
				zap.Error(err))
			continue
		}

		c.ack(ctx, msg.ID)
	}
}

// reclaim takes over entries that have been pending longer than MinIdle,
// e.g. after a consumer crash or an invocation timeout.
func (c *Consumer) reclaim(ctx context.Context) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.MinIdle,
		Start:    "0-0",
		Count:    c.cfg.Batch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("failed to reclaim pending entries",
				zap.String("group", c.cfg.Group),
				zap.Error(err))
		}
		return
	}

	if len(messages) > 0 {
		metrics.StreamPending.WithLabelValues(c.cfg.Group).Set(float64(len(messages)))
		c.process(ctx, messages)
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.log.Warn("failed to ack stream entry",
			zap.String("id", id),
			zap.Error(err))
	}
}

func decode(msg redis.XMessage) (stream.Event, error) {
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		return stream.Event{}, fmt.Errorf("entry %s has no event field", msg.ID)
	}

	var event stream.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return stream.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}

	return event, nil
}
