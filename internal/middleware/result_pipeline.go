package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, r *models.TickResult) error
	ProcessBatch(ctx context.Context, rs []*models.TickResult) error
}

// ResultPipeline sits between the model runner and the result backends.
// It validates results and buffers them while downstream is unavailable.
type ResultPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	bufSize   int
	batchSize int
	batchWait time.Duration
	minWait   time.Duration
	maxWait   time.Duration
	bufCh     chan *models.TickResult
	stopCh    chan struct{}
	done      chan struct{}
	started   bool
	mu        sync.Mutex
}

type PipelineOption func(*ResultPipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets how many buffered results are flushed together and how long
// the flusher waits to fill a batch.
func WithBatch(size int, wait time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if wait > 0 {
			p.batchWait = wait
		}
	}
}

// WithBackoff bounds the retry delay after a failed flush.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if min > 0 {
			p.minWait = min
		}
		if max >= p.minWait {
			p.maxWait = max
		}
	}
}

// NewResultPipeline creates a new pipeline.
func NewResultPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ResultPipeline {
	p := &ResultPipeline{
		proc:      proc,
		metrics:   metrics,
		bufSize:   1000,
		batchSize: 100,
		batchWait: 200 * time.Millisecond,
		minWait:   50 * time.Millisecond,
		maxWait:   2 * time.Second,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.TickResult, p.bufSize)
	return p
}

// Start launches background flushing of buffered results.
func (p *ResultPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *ResultPipeline) flushLoop(ctx context.Context) {
	defer close(p.done)
	backoff := p.minWait
	for {
		var first *models.TickResult
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case first = <-p.bufCh:
		}

		batch := p.collect(first)
		for {
			err := p.proc.ProcessBatch(ctx, batch)
			if err == nil {
				backoff = p.minWait
				break
			}
			p.metrics.RecordError("pipeline_flush")
			// exponential backoff with cap
			if !p.sleep(ctx, backoff) {
				p.requeue(batch)
				return
			}
			if backoff < p.maxWait {
				backoff = min(backoff*2, p.maxWait)
			}
		}
		p.metrics.RecordQueueDepth("result_pipeline", len(p.bufCh))
	}
}

// collect fills a batch from the buffer, waiting at most batchWait.
func (p *ResultPipeline) collect(first *models.TickResult) []*models.TickResult {
	batch := []*models.TickResult{first}
	timer := time.NewTimer(p.batchWait)
	defer timer.Stop()
	for len(batch) < p.batchSize {
		select {
		case r := <-p.bufCh:
			batch = append(batch, r)
		case <-timer.C:
			return batch
		case <-p.stopCh:
			return batch
		}
	}
	return batch
}

func (p *ResultPipeline) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// requeue puts results back; drop otherwise.
func (p *ResultPipeline) requeue(batch []*models.TickResult) {
	for _, r := range batch {
		select {
		case p.bufCh <- r:
		default:
			p.metrics.RecordError("pipeline_buffer_drop")
		}
	}
}

// Stop ends background flushing and makes one last attempt to deliver what is
// still buffered.
func (p *ResultPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	rest := make([]*models.TickResult, 0, len(p.bufCh))
	for len(p.bufCh) > 0 {
		rest = append(rest, <-p.bufCh)
	}
	if len(rest) == 0 {
		return nil
	}
	if err := p.proc.ProcessBatch(ctx, rest); err != nil {
		p.metrics.RecordError("pipeline_buffer_drop")
		return fmt.Errorf("pipeline drain: %d results lost: %w", len(rest), err)
	}
	return nil
}

// Buffered returns the number of results waiting for redelivery.
func (p *ResultPipeline) Buffered() int { return len(p.bufCh) }

// Process validates and forwards a result, buffering on downstream errors.
func (p *ResultPipeline) Process(ctx context.Context, r *models.TickResult) error {
	start := time.Now()
	if err := validateResult(r); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.proc.Process(ctx, r); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- r:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

var ErrInvalidResult = errors.New("invalid tick result")

func validateResult(r *models.TickResult) error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidResult)
	}
	if r.RunID == "" {
		return fmt.Errorf("%w: run id empty", ErrInvalidResult)
	}
	if r.Tick <= 0 {
		return fmt.Errorf("%w: tick %d", ErrInvalidResult, r.Tick)
	}
	k := len(r.Predictions)
	if k == 0 || len(r.Due) != k || len(r.MeanError) != k {
		return fmt.Errorf("%w: horizon vectors disagree", ErrInvalidResult)
	}
	if math.IsNaN(r.Actual) || math.IsInf(r.Actual, 0) {
		return fmt.Errorf("%w: actual %v", ErrInvalidResult, r.Actual)
	}
	return nil
}
