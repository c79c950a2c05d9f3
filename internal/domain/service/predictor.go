package service

import (
	"context"

	"StreamCast/internal/domain/models"
)

// Predictor turns the next input value into per-horizon forecasts and an
// anomaly score. It is the only capability the model runner needs from the
// forecasting engine.
type Predictor interface {
	Horizons() int
	Step(ctx context.Context, value float64) (models.Forecast, error)
}

// StatefulPredictor is implemented by predictors whose state can be snapshotted.
type StatefulPredictor interface {
	Predictor
	State() ([]byte, error)
	Restore(state []byte) error
}
