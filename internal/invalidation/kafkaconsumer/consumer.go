// Package kafkaconsumer applies dataset refresh events from Kafka to the result cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	"github.com/mohammed-shakir/freeze-risk-map/internal/invalidation"
	mylog "github.com/mohammed-shakir/freeze-risk-map/internal/logger"
	"github.com/mohammed-shakir/freeze-risk-map/pkg/invalidation/refresh"
)

// Invalidator retires cached results for a table. *featurecache.Cache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, table string) (int64, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target Invalidator
	seen   *refresh.Dedupe
	zlog   *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, target Invalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		target: target,
		seen:   refresh.NewDedupe(256),
		zlog:   zl,
	}
}

// Start consumes refresh events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing invalidation target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
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
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka refresh consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			obs.IncKafkaConsumerError("consume")
			c.zlog.Error().Err(err).
				Strs("brokers", c.cfg.Brokers).
				Str("topic", c.cfg.Topic).
				Msg("kafka consumer error")
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka refresh consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single message. Malformed messages are logged and
// skipped so they cannot wedge the partition; a failed invalidation is
// returned so the offset is not marked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	zl := mylog.FromContext(mylog.WithComponent(ctx, "kafka_consumer"), c.zlog)

	ev, err := invalidation.Decode(msg.Value)
	if err != nil {
		obs.IncKafkaConsumerError("decode")
		zl.Error().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}

	if !c.seen.Fresh(ev.Table, ev.Version) {
		c.logger.Debug("skipping replayed refresh", "table", ev.Table, "version", ev.Version)
		return nil
	}

	gen, err := c.target.Invalidate(ctx, ev.Table)
	obs.ObserveInvalidation(ev.Table, err)
	if err != nil {
		obs.IncKafkaConsumerError("invalidate")
		zl.Error().Err(err).
			Str("kind", "invalidate").
			Str("table", ev.Table).
			Uint64("version", ev.Version).
			Msg("kafka error")
		return fmt.Errorf("invalidate %s: %w", ev.Table, err)
	}
	c.seen.Record(ev.Table, ev.Version)

	zl.Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Str("table", ev.Table).
		Uint64("version", ev.Version).
		Int64("generation", gen).
		Msg("table generation bumped")
	return nil
}
