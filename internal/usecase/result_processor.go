package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StreamCast/internal/domain/models"
	drepo "StreamCast/internal/domain/repository"
)

// Backend values for ResultProcessor.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendBoth       = "both"
	BackendNone       = "none"
)

// ResultProcessor routes tick results to the configured backend.
type ResultProcessor struct {
	pub     drepo.ResultPublisher
	store   drepo.ResultStorage
	metrics drepo.Metrics
	backend string
}

// NewResultProcessor checks that the backend has what it routes to.
func NewResultProcessor(
	pub drepo.ResultPublisher,
	store drepo.ResultStorage,
	metrics drepo.Metrics,
	backend string,
) (*ResultProcessor, error) {
	switch backend {
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("backend %q needs a publisher", backend)
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("backend %q needs a storage", backend)
		}
	case BackendBoth:
		if pub == nil || store == nil {
			return nil, fmt.Errorf("backend %q needs a publisher and a storage", backend)
		}
	case BackendNone:
	default:
		return nil, fmt.Errorf("result backend %q: %w", backend, drepo.ErrUnsupportedBackend)
	}
	return &ResultProcessor{pub: pub, store: store, metrics: metrics, backend: backend}, nil
}

func (p *ResultProcessor) Backend() string { return p.backend }

// Process routes a single result.
func (p *ResultProcessor) Process(ctx context.Context, r *models.TickResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if p.backend == BackendNone {
		return nil
	}

	start := time.Now()
	var errs []error
	if p.publishes() {
		if err := p.pub.Publish(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		} else {
			p.metrics.RecordMessageSent(BackendKafka, r.RunID)
		}
	}
	if p.stores() {
		if err := p.store.Store(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		} else {
			p.metrics.RecordMessageSent(BackendClickHouse, r.RunID)
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process result: %w", err)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes several results with one call per backend.
func (p *ResultProcessor) ProcessBatch(ctx context.Context, results []*models.TickResult) error {
	if len(results) == 0 || p.backend == BackendNone {
		return nil
	}

	start := time.Now()
	var errs []error
	if p.publishes() {
		if err := p.pub.PublishBatch(ctx, results); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		} else {
			for _, r := range results {
				p.metrics.RecordMessageSent(BackendKafka, r.RunID)
			}
		}
	}
	if p.stores() {
		if err := p.store.StoreBatch(ctx, results); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		} else {
			for _, r := range results {
				p.metrics.RecordMessageSent(BackendClickHouse, r.RunID)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

func (p *ResultProcessor) publishes() bool {
	return p.backend == BackendKafka || p.backend == BackendBoth
}

func (p *ResultProcessor) stores() bool {
	return p.backend == BackendClickHouse || p.backend == BackendBoth
}

// Close closes underlying resources if available.
func (p *ResultProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
