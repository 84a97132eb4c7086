package repository

import (
	"context"
	"fmt"

	domrepo "StagAlgo/internal/domain/repository"
	pkgkafka "StagAlgo/pkg/kafka"
)

// KafkaPublisher writes each kind to its own topic, <prefix>.<kind>, keyed
// by symbol so per-symbol order holds.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	prefix   string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, prefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: prefix}
}

// Topic returns the topic of kind.
func (p *KafkaPublisher) Topic(kind string) string {
	if p.prefix == "" {
		return kind
	}
	return p.prefix + "." + kind
}

func (p *KafkaPublisher) Publish(ctx context.Context, kind, key string, payload interface{}) error {
	return p.producer.Publish(ctx, p.Topic(kind), []byte(key), payload)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, kind string, keys []string, payloads []interface{}) error {
	if len(keys) != len(payloads) {
		return fmt.Errorf("publish batch: %d keys for %d payloads", len(keys), len(payloads))
	}
	msgs := make([]pkgkafka.Message, len(keys))
	for i := range keys {
		msgs[i] = pkgkafka.Message{Key: []byte(keys[i]), Value: payloads[i]}
	}
	return p.producer.PublishBatch(ctx, p.Topic(kind), msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)
