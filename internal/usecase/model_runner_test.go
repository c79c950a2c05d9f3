package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"StreamCast/internal/domain/models"
	"StreamCast/internal/repository"
	"StreamCast/internal/services/predictor"
	"StreamCast/internal/tracker"
	"StreamCast/pkg/cache"
	"StreamCast/pkg/logger"
)

func memorySnapshots() *repository.CacheSnapshotStore {
	return repository.NewCacheSnapshotStore(cache.NewMemoryCache())
}

func TestModelRunnerScoresForecasts(t *testing.T) {
	sink := &recordingSink{}
	m := newFakeMetrics()
	r, err := NewModelRunner(&echoPredictor{k: 2}, nil, sink, m, logger.Nop(), RunnerConfig{Key: "cpu"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	first, err := r.Run(ctx, 10)
	if err != nil {
		t.Fatalf("tick1: %v", err)
	}
	if first.Tick != 1 || first.Due[0] != nil || first.Due[1] != nil {
		t.Fatalf("tick1: unexpected result %+v", first)
	}
	if _, err := r.Run(ctx, 20); err != nil {
		t.Fatalf("tick2: %v", err)
	}
	res, err := r.Run(ctx, 30)
	if err != nil {
		t.Fatalf("tick3: %v", err)
	}
	if res.Due[0] == nil || *res.Due[0] != 21 || res.Due[1] == nil || *res.Due[1] != 12 {
		t.Fatalf("tick3: unexpected due %v", res.Due)
	}
	if math.Abs(res.MeanError[0]-6) > 1e-9 || math.Abs(res.MeanError[1]-6) > 1e-9 {
		t.Fatalf("tick3: unexpected mean error %v", res.MeanError)
	}
	if res.RunID == "" || res.RunID != r.RunID() {
		t.Fatalf("run id not stamped: %q", res.RunID)
	}
	if sink.count() != 3 {
		t.Fatalf("expected 3 results in sink, got %d", sink.count())
	}
	if m.lastTick != 3 || m.anomaly != 0.25 || math.Abs(m.horizon[2]-6) > 1e-9 {
		t.Fatalf("metrics not exported: tick=%d anomaly=%v horizon=%v", m.lastTick, m.anomaly, m.horizon)
	}

	latest, ok := r.Latest()
	if !ok || latest.Tick != 3 {
		t.Fatalf("latest: ok=%v tick=%d", ok, latest.Tick)
	}
	errs := r.Errors()
	if errs.Tick != 3 || errs.Horizons != 2 || errs.Policy != string(tracker.PerTick) || errs.Scored[0] != 2 {
		t.Fatalf("unexpected errors view %+v", errs)
	}
}

func TestModelRunnerPredictorFailureDoesNotAdvance(t *testing.T) {
	pred := &echoPredictor{k: 3}
	m := newFakeMetrics()
	r, _ := NewModelRunner(pred, nil, nil, m, nil, RunnerConfig{})
	if _, err := r.Run(context.Background(), 1); err != nil {
		t.Fatalf("run: %v", err)
	}
	pred.fail = true
	if _, err := r.Run(context.Background(), 2); err == nil {
		t.Fatalf("expected step error")
	}
	if got := r.Errors().Tick; got != 1 {
		t.Fatalf("failed step advanced the tracker to %d", got)
	}
	if m.errorCount("model_step") != 1 {
		t.Fatalf("step error not counted")
	}
}

func TestModelRunnerSinkFailureIsNotFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("clickhouse down")}
	m := newFakeMetrics()
	r, _ := NewModelRunner(&echoPredictor{k: 1}, nil, sink, m, logger.Nop(), RunnerConfig{})
	res, err := r.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("sink failure must not fail the tick: %v", err)
	}
	if res.Tick != 1 || m.errorCount("result_sink") != 1 {
		t.Fatalf("tick=%d sink errors=%d", res.Tick, m.errorCount("result_sink"))
	}
}

func TestModelRunnerUsesRecordTimestamp(t *testing.T) {
	r, _ := NewModelRunner(&echoPredictor{k: 1}, nil, nil, newFakeMetrics(), nil, RunnerConfig{})
	res, err := r.RunRecord(context.Background(), &models.MetricRecord{Source: "host-1", Timestamp: 1700000000, Value: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp %v", res.Timestamp)
	}
	if _, err := r.RunRecord(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestModelRunnerRejectsSmallRing(t *testing.T) {
	_, err := NewModelRunner(&echoPredictor{k: 4}, nil, nil, newFakeMetrics(), nil, RunnerConfig{RingSize: 4})
	if !errors.Is(err, tracker.ErrRingTooSmall) {
		t.Fatalf("expected ErrRingTooSmall, got %v", err)
	}
}

func TestModelRunnerSnapshotsAndRestores(t *testing.T) {
	ctx := context.Background()
	snaps := memorySnapshots()
	cfg := RunnerConfig{Key: "cpu", SaveFrequency: 2, ErrorPolicy: tracker.PerScored}

	predA, _ := predictor.NewLocalPredictor(3)
	a, err := NewModelRunner(predA, snaps, nil, newFakeMetrics(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	predRef, _ := predictor.NewLocalPredictor(3)
	ref, _ := NewModelRunner(predRef, nil, nil, newFakeMetrics(), nil, cfg)

	series := []float64{10, 12, 15, 13, 18, 21, 19, 24}
	for _, v := range series[:5] {
		if _, err := a.Run(ctx, v); err != nil {
			t.Fatalf("run: %v", err)
		}
		_, _ = ref.Run(ctx, v)
	}

	snap, ok, err := snaps.Load(ctx, "cpu")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if snap.Tick != 4 || snap.RunID != a.RunID() || len(snap.Predictor) == 0 {
		t.Fatalf("unexpected snapshot tick=%d run=%q", snap.Tick, snap.RunID)
	}

	// b resumes at tick 4 and replays the fifth value
	predB, _ := predictor.NewLocalPredictor(3)
	b, _ := NewModelRunner(predB, snaps, nil, newFakeMetrics(), logger.Nop(), cfg)
	restored, err := b.Restore(ctx)
	if err != nil || !restored {
		t.Fatalf("restore: ok=%v err=%v", restored, err)
	}
	if b.RunID() != a.RunID() || b.Errors().Tick != 4 {
		t.Fatalf("restored run=%q tick=%d", b.RunID(), b.Errors().Tick)
	}

	got, err := b.Run(ctx, series[4])
	if err != nil {
		t.Fatalf("run after restore: %v", err)
	}
	for _, v := range series[5:] {
		got, _ = b.Run(ctx, v)
	}
	var want models.TickResult
	for _, v := range series[5:] {
		want, _ = ref.Run(ctx, v)
	}
	if got.Tick != want.Tick {
		t.Fatalf("tick diverged: %d vs %d", got.Tick, want.Tick)
	}
	for i := range want.MeanError {
		if math.Abs(got.MeanError[i]-want.MeanError[i]) > 1e-9 || math.Abs(got.Predictions[i]-want.Predictions[i]) > 1e-9 {
			t.Fatalf("restored run diverged: %v vs %v", got, want)
		}
	}
}

func TestModelRunnerRestoreHorizonMismatch(t *testing.T) {
	ctx := context.Background()
	snaps := memorySnapshots()
	a, _ := NewModelRunner(&echoPredictor{k: 2}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu"})
	_, _ = a.Run(ctx, 1)
	if err := a.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, _ := NewModelRunner(&echoPredictor{k: 3}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu"})
	if _, err := b.Restore(ctx); err == nil {
		t.Fatalf("expected horizon mismatch error")
	}
	c, _ := NewModelRunner(&echoPredictor{k: 3}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "mem"})
	if ok, err := c.Restore(ctx); ok || err != nil {
		t.Fatalf("missing snapshot: ok=%v err=%v", ok, err)
	}
}

func TestModelRunnerRestoreAppliesConfiguredPolicy(t *testing.T) {
	ctx := context.Background()
	snaps := memorySnapshots()
	a, _ := NewModelRunner(&echoPredictor{k: 2}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu", ErrorPolicy: tracker.PerTick})
	for i := 0; i < 4; i++ {
		_, _ = a.Run(ctx, float64(i))
	}
	if err := a.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	b, _ := NewModelRunner(&echoPredictor{k: 2}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu", ErrorPolicy: tracker.PerScored})
	if ok, err := b.Restore(ctx); !ok || err != nil {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	got := b.Errors()
	if got.Policy != string(tracker.PerScored) || got.Tick != 4 {
		t.Fatalf("after restore policy=%s tick=%d", got.Policy, got.Tick)
	}
}

func TestModelRunnerRestoreRingMismatch(t *testing.T) {
	ctx := context.Background()
	snaps := memorySnapshots()
	a, _ := NewModelRunner(&echoPredictor{k: 2}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu"})
	_, _ = a.Run(ctx, 1)
	if err := a.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, _ := NewModelRunner(&echoPredictor{k: 2}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu", RingSize: 6})
	if _, err := b.Restore(ctx); err == nil {
		t.Fatalf("expected ring size mismatch error")
	}
	if b.Errors().Tick != 0 {
		t.Fatalf("failed restore must keep the fresh tracker, tick=%d", b.Errors().Tick)
	}
}

func TestModelRunnerNoSnapshotsWhenTrainingDisabled(t *testing.T) {
	ctx := context.Background()
	snaps := memorySnapshots()
	r, _ := NewModelRunner(&echoPredictor{k: 1}, snaps, nil, newFakeMetrics(), nil, RunnerConfig{Key: "cpu", SaveFrequency: 1, DisableTraining: true})
	for i := 0; i < 3; i++ {
		_, _ = r.Run(ctx, float64(i))
	}
	if _, ok, _ := snaps.Load(ctx, "cpu"); ok {
		t.Fatalf("snapshot written with training disabled")
	}
}
