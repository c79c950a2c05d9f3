package usecase

import (
	"context"
	"sync"

	"StreamCast/internal/domain/models"
	drepo "StreamCast/internal/domain/repository"
	"StreamCast/pkg/logger"
)

// MetricCollector forwards samples from an upstream feed onto the ingest topic
// so the consumer side sees one ordered stream.
type MetricCollector struct {
	stream  drepo.MetricStream
	pub     drepo.RecordPublisher
	metrics drepo.Metrics
	log     *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMetricCollector creates a new MetricCollector instance.
func NewMetricCollector(stream drepo.MetricStream, pub drepo.RecordPublisher, metrics drepo.Metrics, log *logger.Logger) *MetricCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &MetricCollector{stream: stream, pub: pub, metrics: metrics, log: log}
}

// IsConnected returns true if the upstream feed is connected.
func (c *MetricCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *MetricCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx)
	}()
	return nil
}

func (c *MetricCollector) consume(ctx context.Context) {
	for ctx.Err() == nil {
		recCh, errCh := c.stream.Read(ctx)
		c.drain(ctx, recCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		for ctx.Err() == nil {
			err := c.stream.Reconnect(ctx)
			if err == nil {
				break
			}
			c.metrics.RecordError("stream_reconnect")
			c.log.Warn("feed reconnect failed", logger.Error(err))
		}
	}
}

// drain forwards records until the read loop ends.
func (c *MetricCollector) drain(ctx context.Context, recCh <-chan *models.MetricRecord, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.log.Warn("feed read failed", logger.Error(err))
			}
			if !ok {
				errCh = nil
			}
		case r, ok := <-recCh:
			if !ok {
				return
			}
			if err := c.pub.Publish(ctx, r); err != nil {
				c.metrics.RecordError("feed_publish")
				c.log.Error("feed publish failed", logger.String("source", r.Source), logger.Error(err))
				continue
			}
			c.metrics.RecordMessageSent("kafka", r.Source)
			c.metrics.RecordLastValue(r.Source, r.Value)
		}
	}
}

// Shutdown stops forwarding and closes the stream.
func (c *MetricCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
