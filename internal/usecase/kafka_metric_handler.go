package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
	pkgkafka "StreamCast/pkg/kafka"
)

var ErrNoValue = errors.New("metric payload has no value")

// RecordRunner is the part of ModelRunner the handler drives.
type RecordRunner interface {
	RunRecord(ctx context.Context, rec *models.MetricRecord) (models.TickResult, error)
}

// MetricHandler feeds messages from the ingest topic into the model.
type MetricHandler struct {
	topic   string
	runner  RecordRunner
	metrics domrepo.Metrics
}

func NewMetricHandler(topic string, runner RecordRunner, metrics domrepo.Metrics) *MetricHandler {
	return &MetricHandler{topic: topic, runner: runner, metrics: metrics}
}

func (h *MetricHandler) Topic() string { return h.topic }

// Handle accepts a bare number ("54.2") or {"value"|"cpu": 54.2, "ts": ..., "source": ...}.
func (h *MetricHandler) Handle(ctx context.Context, b []byte) error {
	rec, err := ParseMetricPayload(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if rec.Timestamp > 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(rec.Timestamp, 0)).Seconds())
	}

	start := time.Now()
	if _, err := h.runner.RunRecord(ctx, rec); err != nil {
		h.metrics.RecordError("consumer_model")
		return err
	}
	if t0, ok := pkgkafka.StartTimeFrom(ctx); ok {
		h.metrics.RecordLatency("consumer_handle_seconds", time.Since(t0).Seconds())
	} else {
		h.metrics.RecordLatency("consumer_handle_seconds", time.Since(start).Seconds())
	}
	return nil
}

// ParseMetricPayload decodes one ingest message. Millisecond timestamps are
// normalised to seconds.
func ParseMetricPayload(b []byte) (*models.MetricRecord, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrNoValue
	}

	rec := &models.MetricRecord{}
	if b[0] == '{' {
		var m struct {
			Value  *float64 `json:"value"`
			CPU    *float64 `json:"cpu"`
			TS     int64    `json:"ts"`
			Source string   `json:"source"`
		}
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode metric: %w", err)
		}
		switch {
		case m.Value != nil:
			rec.Value = *m.Value
		case m.CPU != nil:
			rec.Value = *m.CPU
		default:
			return nil, ErrNoValue
		}
		rec.Timestamp = m.TS
		rec.Source = m.Source
	} else {
		v, err := strconv.ParseFloat(string(bytes.Trim(b, `"`)), 64)
		if err != nil {
			return nil, fmt.Errorf("decode metric: %w", err)
		}
		rec.Value = v
	}

	if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) {
		return nil, fmt.Errorf("decode metric: non-finite value %v", rec.Value)
	}
	if rec.Timestamp > 1e11 { // ms
		rec.Timestamp /= 1000
	}
	return rec, nil
}

var _ pkgkafka.MessageHandler = (*MetricHandler)(nil)
