package repository

import (
	"context"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
	pkgkafka "StreamCast/pkg/kafka"
)

// Producer is the slice of *pkgkafka.Producer the publishers need.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaResultPublisher republishes tick results keyed by run id.
type KafkaResultPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaResultPublisher(producer Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.TickResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.RunID), r)
}

func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, results []*models.TickResult) error {
	if len(results) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(r.RunID), Value: r})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the shared producer is closed by its owner.
func (p *KafkaResultPublisher) Close() error {
	return nil
}

type recordPayload struct {
	Source string  `json:"source,omitempty"`
	Value  float64 `json:"value"`
	TS     int64   `json:"ts,omitempty"`
}

// KafkaRecordPublisher writes raw samples onto the ingest topic in the JSON
// form the metric handler reads back.
type KafkaRecordPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaRecordPublisher(producer Producer, topic string) *KafkaRecordPublisher {
	return &KafkaRecordPublisher{producer: producer, topic: topic}
}

func (p *KafkaRecordPublisher) Publish(ctx context.Context, r *models.MetricRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Source), recordPayload{
		Source: r.Source,
		Value:  r.Value,
		TS:     r.Timestamp,
	})
}

func (p *KafkaRecordPublisher) Close() error {
	return nil
}

var (
	_ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)
	_ domrepo.RecordPublisher = (*KafkaRecordPublisher)(nil)
)
