package usecase

import (
	"context"
	"errors"
	"testing"

	"StreamCast/internal/domain/models"
	pkgkafka "StreamCast/pkg/kafka"
)

func TestParseMetricPayload(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		value  float64
		ts     int64
		source string
	}{
		{"bare", "54.2", 54.2, 0, ""},
		{"bare padded", " 7\n", 7, 0, ""},
		{"quoted", `"12.5"`, 12.5, 0, ""},
		{"json value", `{"value": 3.5, "ts": 1700000000}`, 3.5, 1700000000, ""},
		{"json cpu", `{"cpu": 81, "source": "host-1"}`, 81, 0, "host-1"},
		{"millis", `{"value": 1, "ts": 1700000000123}`, 1, 1700000000, ""},
		{"zero", `{"value": 0}`, 0, 0, ""},
	}
	for _, tc := range cases {
		rec, err := ParseMetricPayload([]byte(tc.in))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if rec.Value != tc.value || rec.Timestamp != tc.ts || rec.Source != tc.source {
			t.Fatalf("%s: unexpected record %+v", tc.name, rec)
		}
	}
}

func TestParseMetricPayloadRejects(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", `{"ts": 5}`, `{"value": "x"}`, "NaN", "+Inf"} {
		if _, err := ParseMetricPayload([]byte(in)); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
	if _, err := ParseMetricPayload([]byte(`{}`)); !errors.Is(err, ErrNoValue) {
		t.Fatalf("expected ErrNoValue, got %v", err)
	}
}

type stubRunner struct {
	got []*models.MetricRecord
	err error
}

func (s *stubRunner) RunRecord(_ context.Context, rec *models.MetricRecord) (models.TickResult, error) {
	if s.err != nil {
		return models.TickResult{}, s.err
	}
	s.got = append(s.got, rec)
	return models.TickResult{Tick: int64(len(s.got))}, nil
}

func TestMetricHandlerFeedsRunner(t *testing.T) {
	run := &stubRunner{}
	m := newFakeMetrics()
	h := NewMetricHandler("cpu_metric", run, m)
	if h.Topic() != "cpu_metric" {
		t.Fatalf("unexpected topic %q", h.Topic())
	}
	ctx := pkgkafka.WithTraceID(context.Background(), "abc")
	for _, p := range []string{"1", "2", `{"cpu": 3}`} {
		if err := h.Handle(ctx, []byte(p)); err != nil {
			t.Fatalf("handle %s: %v", p, err)
		}
	}
	if len(run.got) != 3 || run.got[2].Value != 3 {
		t.Fatalf("runner saw %+v", run.got)
	}

	if err := h.Handle(ctx, []byte("bogus")); err == nil {
		t.Fatalf("expected decode error")
	}
	if m.errorCount("consumer_unmarshal") != 1 || len(run.got) != 3 {
		t.Fatalf("bad payload reached the runner")
	}

	run.err = errors.New("predictor down")
	if err := h.Handle(ctx, []byte("4")); err == nil {
		t.Fatalf("expected runner error to surface for retry")
	}
	if m.errorCount("consumer_model") != 1 {
		t.Fatalf("runner error not counted")
	}
}
