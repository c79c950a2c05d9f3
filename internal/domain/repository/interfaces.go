package repository

import (
	"context"
	"errors"
	"time"

	"StreamCast/internal/domain/models"
)

var ErrUnsupportedBackend = errors.New("unsupported backend")

// MetricStream is an upstream feed of raw samples.
type MetricStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MetricRecord, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// RecordPublisher forwards raw samples onto the ingest topic.
type RecordPublisher interface {
	Publish(ctx context.Context, r *models.MetricRecord) error
	Close() error
}

type ResultPublisher interface {
	Publish(ctx context.Context, r *models.TickResult) error
	PublishBatch(ctx context.Context, results []*models.TickResult) error
	Close() error
}

type ResultStorage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, r *models.TickResult) error
	StoreBatch(ctx context.Context, results []*models.TickResult) error
	Query(ctx context.Context, runID string, from, to time.Time, limit int) ([]*models.TickResult, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotStore persists model snapshots by key.
type SnapshotStore interface {
	Save(ctx context.Context, s models.Snapshot) error
	Load(ctx context.Context, key string) (models.Snapshot, bool, error)
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, source string)
	RecordError(kind string)
	RecordLastValue(source string, value float64)
	RecordLatency(op string, seconds float64)
	RecordHorizonError(horizon int, meanError float64)
	RecordAnomaly(score float64)
	RecordTick(tick int64)
	RecordQueueDepth(queue string, depth int)
}
