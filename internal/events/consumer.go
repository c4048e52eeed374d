package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/danudenny/geoapi-saas/internal/core/observability"
)

type ConsumerConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	RetryBackoff        time.Duration
}

func DefaultConsumerConfig(brokers []string, topic, group string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		RetryBackoff:     2 * time.Second,
	}
}

// HandlerFunc receives every decoded analysis event. Returning an error
// leaves the offset unmarked so the message is redelivered.
type HandlerFunc func(context.Context, Event) error

type Consumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger
	handle HandlerFunc
}

func NewConsumer(cfg ConsumerConfig, logger *slog.Logger, handle HandlerFunc) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, handle: handle}
}

// Start joins the consumer group and blocks until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.handle == nil {
		return errors.New("events: consumer has no handler")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("events: create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("analysis event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if ctx.Err() != nil {
			c.logger.Info("analysis event consumer shutting down")
			return nil
		}
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("consumer error", "err", err, "topic", c.cfg.Topic)
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
	}
}

// ProcessOne decodes one message and hands it to the handler. Events of
// other types on the same topic are skipped and still marked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncEventConsumed("decode_error")
		c.logger.Error("kafka decode error",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("json decode: %w", err)
	}
	if ev.Type != TypeAnalysisCompleted {
		obs.IncEventConsumed("skipped")
		c.logger.Debug("skipping event", "type", ev.Type, "offset", msg.Offset)
		return nil
	}
	if err := c.handle(ctx, ev); err != nil {
		obs.IncEventConsumed("handler_error")
		return fmt.Errorf("handle %s: %w", ev.Fingerprint, err)
	}
	obs.IncEventConsumed("ok")
	return nil
}

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	process messageProcessor
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks an offset only after its message was processed, so a
// failure stops the claim and the message is read again after rebalance.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
