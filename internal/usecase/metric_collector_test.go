package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StreamCast/internal/domain/models"
)

// scriptedStream serves one batch of records per connection.
type scriptedStream struct {
	mu         sync.Mutex
	batches    [][]float64
	reads      int
	reconnects int
	connected  bool
}

func (s *scriptedStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedStream) Subscribe(context.Context) error { return nil }

func (s *scriptedStream) Read(ctx context.Context) (<-chan *models.MetricRecord, <-chan error) {
	s.mu.Lock()
	var batch []float64
	if s.reads < len(s.batches) {
		batch = s.batches[s.reads]
	}
	s.reads++
	s.mu.Unlock()

	recs := make(chan *models.MetricRecord, len(batch))
	errs := make(chan error, 1)
	go func() {
		defer close(recs)
		defer close(errs)
		if batch == nil {
			<-ctx.Done()
			return
		}
		for _, v := range batch {
			recs <- &models.MetricRecord{Source: "cpu", Value: v}
		}
		errs <- errors.New("connection reset")
	}()
	return recs, errs
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type recordPub struct {
	mu     sync.Mutex
	values []float64
}

func (p *recordPub) Publish(_ context.Context, r *models.MetricRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, r.Value)
	return nil
}

func (p *recordPub) Close() error { return nil }

func (p *recordPub) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

func TestMetricCollectorForwardsAcrossReconnects(t *testing.T) {
	stream := &scriptedStream{batches: [][]float64{{1, 2}, {3}}}
	pub := &recordPub{}
	c := NewMetricCollector(stream, pub, newFakeMetrics(), nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := pub.snapshot()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected forwarded values %v", got)
	}

	// third read idles until shutdown
	for time.Now().Before(deadline) {
		stream.mu.Lock()
		reads := stream.reads
		stream.mu.Unlock()
		if reads >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.reconnects != 2 {
		t.Fatalf("expected 2 reconnects, got %d", stream.reconnects)
	}
}
