package kafka

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type orderHandler struct {
	mu   sync.Mutex
	seen map[int][]int64
}

func (h *orderHandler) Topic() string { return "cpu" }

func (h *orderHandler) Handle(_ context.Context, data []byte) error {
	parts := strings.SplitN(string(data), ":", 2)
	p, _ := strconv.Atoi(parts[0])
	off, _ := strconv.ParseInt(parts[1], 10, 64)
	time.Sleep(50 * time.Microsecond)
	h.mu.Lock()
	h.seen[p] = append(h.seen[p], off)
	h.mu.Unlock()
	return nil
}

func TestConsumerKeepsPartitionOrderAcrossWorkers(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerWorkers(4),
		WithConsumerBufferSize(16),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	h := &orderHandler{seen: make(map[int][]int64)}
	c.RegisterHandler(h)
	for _, q := range c.queues {
		c.workWg.Add(1)
		go c.messageWorker(q)
	}

	const perPartition = 200
	for off := int64(0); off < perPartition; off++ {
		for p := 0; p < 3; p++ {
			msg := kafka.Message{Partition: p, Offset: off, Value: []byte(strconv.Itoa(p) + ":" + strconv.FormatInt(off, 10))}
			if !c.enqueue("cpu", msg) {
				t.Fatalf("enqueue refused")
			}
		}
	}
	for _, q := range c.queues {
		close(q)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := waitFor(ctx, &c.workWg); err != nil {
		t.Fatalf("workers: %v", err)
	}

	for p := 0; p < 3; p++ {
		got := h.seen[p]
		if len(got) != perPartition {
			t.Fatalf("partition %d: handled %d of %d", p, len(got), perPartition)
		}
		for i, off := range got {
			if off != int64(i) {
				t.Fatalf("partition %d: offset %d handled at position %d", p, off, i)
			}
		}
	}
}

func TestQueueForIsStablePerPartition(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(3))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if len(c.queues) != 3 {
		t.Fatalf("expected 3 worker queues, got %d", len(c.queues))
	}
	for p := 0; p < 8; p++ {
		if c.queueFor("cpu", p) != c.queueFor("cpu", p) {
			t.Fatalf("partition %d mapped to different queues", p)
		}
	}
}
