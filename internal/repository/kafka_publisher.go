package repository

import (
	"context"

	"OptionPulse/internal/domain/models"
	domrepo "OptionPulse/internal/domain/repository"
	pkgkafka "OptionPulse/pkg/kafka"
)

// KafkaSnapshotPublisher streams published snapshots to Kafka, keyed by
// username so one user's snapshots stay ordered within a partition.
type KafkaSnapshotPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSnapshotPublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, snap *models.PublishedSnapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(snap.Username), snap)
}

func (p *KafkaSnapshotPublisher) PublishBatch(ctx context.Context, snaps []*models.PublishedSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(snaps))
	for i, snap := range snaps {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(snap.Username),
			Value: snap,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaLogSink publishes aggregated error-log batches to the ops topic. It
// satisfies the logger collector's Publisher contract.
type KafkaLogSink struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogSink(producer *pkgkafka.Producer) *KafkaLogSink {
	return &KafkaLogSink{producer: producer}
}

func (s *KafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}
