package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func TestRecorderHorizonErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)
	r.RecordHorizonError(1, 0.5)
	r.RecordHorizonError(2, 1.25)
	r.RecordAnomaly(0.9)
	r.RecordTick(42)
	r.RecordQueueDepth("result_pipeline", 7)

	mfs := gather(t, reg)
	he := mfs["streamcast_horizon_mean_abs_error"]
	if he == nil || len(he.GetMetric()) != 2 {
		t.Fatalf("expected two horizon series, got %v", he)
	}
	for _, m := range he.GetMetric() {
		h := m.GetLabel()[0].GetValue()
		v := m.GetGauge().GetValue()
		if (h == "1" && v != 0.5) || (h == "2" && v != 1.25) {
			t.Fatalf("horizon %s: unexpected value %v", h, v)
		}
	}
	if v := mfs["streamcast_model_tick"].GetMetric()[0].GetGauge().GetValue(); v != 42 {
		t.Fatalf("unexpected tick gauge %v", v)
	}
	if v := mfs["streamcast_queue_depth"].GetMetric()[0].GetGauge().GetValue(); v != 7 {
		t.Fatalf("unexpected queue depth gauge %v", v)
	}
	if v := mfs["streamcast_anomaly_score"].GetMetric()[0].GetGauge().GetValue(); v != 0.9 {
		t.Fatalf("unexpected anomaly gauge %v", v)
	}
}

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)
	r.RecordMessageSent("kafka", "cpu")
	r.RecordMessageSent("kafka", "cpu")
	r.RecordError("snapshot")
	r.RecordLatency("model_step", 0.01)

	mfs := gather(t, reg)
	if v := mfs["streamcast_messages_sent_total"].GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Fatalf("expected 2 messages, got %v", v)
	}
	if v := mfs["streamcast_errors_total"].GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Fatalf("expected 1 error, got %v", v)
	}
	if c := mfs["streamcast_operation_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); c != 1 {
		t.Fatalf("expected 1 latency sample, got %v", c)
	}
}
