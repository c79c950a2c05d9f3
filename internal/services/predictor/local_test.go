package predictor

import (
	"context"
	"math"
	"testing"
)

func TestLocalPredictorFirstStepRepeatsValue(t *testing.T) {
	p, err := NewLocalPredictor(3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f, err := p.Step(context.Background(), 42)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if f.Actual != 42 || len(f.Predictions) != 3 {
		t.Fatalf("unexpected forecast %+v", f)
	}
	for _, v := range f.Predictions {
		if v != 42 {
			t.Fatalf("expected flat forecast, got %v", f.Predictions)
		}
	}
	if f.AnomalyScore != 0 {
		t.Fatalf("expected zero anomaly on first step, got %v", f.AnomalyScore)
	}
}

func TestLocalPredictorFollowsLinearTrend(t *testing.T) {
	p, _ := NewLocalPredictor(4, WithAlpha(0.9), WithBeta(0.9))
	var preds []float64
	for i := 0; i < 200; i++ {
		f, err := p.Step(context.Background(), float64(2*i))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		preds = f.Predictions
	}
	last := float64(2 * 199)
	for h, v := range preds {
		want := last + float64(2*(h+1))
		if math.Abs(v-want) > 1e-3 {
			t.Fatalf("horizon %d: got %v want %v", h+1, v, want)
		}
	}
}

func TestLocalPredictorFlagsSpike(t *testing.T) {
	p, _ := NewLocalPredictor(2, WithAnomalyWindow(20))
	ctx := context.Background()
	var quiet float64
	for i := 0; i < 50; i++ {
		v := 10 + 0.1*math.Sin(float64(i))
		f, _ := p.Step(ctx, v)
		quiet = math.Max(quiet, f.AnomalyScore)
	}
	spike, _ := p.Step(ctx, 100)
	if spike.AnomalyScore != 1 {
		t.Fatalf("expected saturated anomaly score for spike, got %v", spike.AnomalyScore)
	}
	if quiet >= 1 {
		t.Fatalf("quiet series should not saturate, max score %v", quiet)
	}
}

func TestLocalPredictorDisableTrainingFreezesTrend(t *testing.T) {
	p, _ := NewLocalPredictor(2, WithDisableTraining(true))
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = p.Step(ctx, float64(i*5))
	}
	f, _ := p.Step(ctx, 50)
	if f.Predictions[0] != 50 || f.Predictions[1] != 50 {
		t.Fatalf("frozen model should forecast the current value, got %v", f.Predictions)
	}
}

func TestLocalPredictorRejectsNonFinite(t *testing.T) {
	p, _ := NewLocalPredictor(1)
	if _, err := p.Step(context.Background(), math.NaN()); err == nil {
		t.Fatalf("expected error for NaN input")
	}
	if _, err := p.Step(context.Background(), math.Inf(1)); err == nil {
		t.Fatalf("expected error for Inf input")
	}
}

func TestLocalPredictorStateRoundTripContinues(t *testing.T) {
	ctx := context.Background()
	a, _ := NewLocalPredictor(3)
	b, _ := NewLocalPredictor(3)
	for i := 0; i < 30; i++ {
		v := float64(i%7) * 1.5
		_, _ = a.Step(ctx, v)
		_, _ = b.Step(ctx, v)
	}
	raw, err := a.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	c, _ := NewLocalPredictor(3)
	if err := c.Restore(raw); err != nil {
		t.Fatalf("restore: %v", err)
	}
	want, _ := b.Step(ctx, 4)
	got, _ := c.Step(ctx, 4)
	for i := range want.Predictions {
		if want.Predictions[i] != got.Predictions[i] {
			t.Fatalf("predictions diverged: %v vs %v", got.Predictions, want.Predictions)
		}
	}
	if want.AnomalyScore != got.AnomalyScore {
		t.Fatalf("anomaly diverged: %v vs %v", got.AnomalyScore, want.AnomalyScore)
	}

	other, _ := NewLocalPredictor(5)
	if err := other.Restore(raw); err == nil {
		t.Fatalf("expected horizon mismatch error")
	}
}

func TestNewPredictorKinds(t *testing.T) {
	if _, err := New(Settings{Kind: "local", Horizons: 3}); err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, err := New(Settings{Kind: "http", Horizons: 3}); err == nil {
		t.Fatalf("http without url should fail")
	}
	if _, err := New(Settings{Kind: "htm", Horizons: 3}); err == nil {
		t.Fatalf("unknown kind should fail")
	}
}
