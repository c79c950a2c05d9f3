package predictor

import (
	"fmt"
	"time"

	domrepo "StreamCast/internal/domain/repository"
	domsvc "StreamCast/internal/domain/service"
)

// Settings is the predictor-relevant slice of the model config.
type Settings struct {
	Kind            string
	Horizons        int
	DisableTraining bool
	URL             string
	Timeout         time.Duration
	Attempts        int
	Alpha           float64
	Beta            float64
	AnomalyWindow   int
}

// New builds the configured predictor.
func New(s Settings) (domsvc.Predictor, error) {
	switch s.Kind {
	case "", "local":
		return NewLocalPredictor(s.Horizons,
			WithAlpha(s.Alpha),
			WithBeta(s.Beta),
			WithAnomalyWindow(s.AnomalyWindow),
			WithDisableTraining(s.DisableTraining),
		)
	case "http":
		return NewHTTPPredictor(s.URL, s.Horizons, s.Timeout, !s.DisableTraining, s.Attempts)
	default:
		return nil, fmt.Errorf("predictor %q: %w", s.Kind, domrepo.ErrUnsupportedBackend)
	}
}
