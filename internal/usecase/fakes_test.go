package usecase

import (
	"context"
	"errors"
	"sync"

	"StreamCast/internal/domain/models"
)

type fakeMetrics struct {
	mu       sync.Mutex
	errors   map[string]int
	sent     map[string]int
	horizon  map[int]float64
	anomaly  float64
	lastTick int64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		errors:  map[string]int{},
		sent:    map[string]int{},
		horizon: map[int]float64{},
	}
}

func (m *fakeMetrics) RecordMessageSent(backend, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLastValue(source string, value float64) {}

func (m *fakeMetrics) RecordLatency(op string, seconds float64) {}

func (m *fakeMetrics) RecordHorizonError(h int, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.horizon[h] = v
}

func (m *fakeMetrics) RecordAnomaly(score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomaly = score
}

func (m *fakeMetrics) RecordQueueDepth(queue string, depth int) {}

func (m *fakeMetrics) RecordTick(tick int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTick = tick
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *fakeMetrics) sentCount(backend string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[backend]
}

// echoPredictor forecasts value+h for horizon h.
type echoPredictor struct {
	k     int
	fail  bool
	steps int
}

func (p *echoPredictor) Horizons() int { return p.k }

func (p *echoPredictor) Step(_ context.Context, value float64) (models.Forecast, error) {
	if p.fail {
		return models.Forecast{}, errors.New("engine down")
	}
	p.steps++
	preds := make([]float64, p.k)
	for i := range preds {
		preds[i] = value + float64(i+1)
	}
	return models.Forecast{Actual: value, Predictions: preds, AnomalyScore: 0.25}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []*models.TickResult
	err     error
}

func (s *recordingSink) Process(_ context.Context, r *models.TickResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}
