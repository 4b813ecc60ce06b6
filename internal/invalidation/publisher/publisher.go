// Package publisher announces dataset refreshes on the invalidation topic.
package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/freeze-risk-map/internal/invalidation"
)

type Publisher struct {
	prod  sarama.SyncProducer
	topic string
	now   func() time.Time
}

// NewConfig is the producer configuration: every send waits for all in-sync
// replicas so a refresh is never reported before it is durable.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return cfg
}

func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("publisher: no brokers")
	}
	prod, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return NewWithProducer(prod, topic), nil
}

// NewWithProducer wraps an existing producer; the publisher takes ownership.
func NewWithProducer(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{prod: prod, topic: topic, now: time.Now}
}

// Publish sends ev keyed by table so every refresh of one table lands on the
// same partition and is consumed in order. A zero TS is stamped with now.
func (p *Publisher) Publish(ev invalidation.Event) (partition int32, offset int64, err error) {
	if ev.TS.IsZero() {
		ev.TS = p.now().UTC()
	}
	ev.Table = strings.TrimSpace(ev.Table)
	if err := ev.Validate(); err != nil {
		return 0, 0, fmt.Errorf("invalid event: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("encode event: %w", err)
	}
	partition, offset, err = p.prod.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Table),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("send message: %w", err)
	}
	return partition, offset, nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("producer close: %w", err)
	}
	return nil
}
