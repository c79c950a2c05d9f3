package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"StreamCast/internal/domain/models"
	domsvc "StreamCast/internal/domain/service"

	"gonum.org/v1/gonum/stat"
)

// LocalOption configures LocalPredictor.
type LocalOption func(*LocalConfig)

// LocalConfig holds smoother parameters.
type LocalConfig struct {
	Horizons        int
	Alpha           float64 // level smoothing (0-1]
	Beta            float64 // trend smoothing [0-1]
	AnomalyWindow   int     // residuals kept for the anomaly z-score
	DisableTraining bool
}

// WithAlpha sets level smoothing.
func WithAlpha(a float64) LocalOption {
	return func(c *LocalConfig) {
		if a > 0 && a <= 1 {
			c.Alpha = a
		}
	}
}

// WithBeta sets trend smoothing.
func WithBeta(b float64) LocalOption {
	return func(c *LocalConfig) {
		if b >= 0 && b <= 1 {
			c.Beta = b
		}
	}
}

// WithAnomalyWindow sets how many one-step residuals feed the anomaly score.
func WithAnomalyWindow(n int) LocalOption {
	return func(c *LocalConfig) {
		if n >= 2 {
			c.AnomalyWindow = n
		}
	}
}

// WithDisableTraining freezes the learned trend.
func WithDisableTraining(disabled bool) LocalOption {
	return func(c *LocalConfig) {
		c.DisableTraining = disabled
	}
}

// LocalPredictor is an in-process Holt (level + trend) smoother. It forecasts
// level + h*trend for every horizon and scores anomalies by how far the latest
// one-step residual sits from the recent residual distribution.
type LocalPredictor struct {
	cfg LocalConfig

	mu        sync.Mutex
	level     float64
	trend     float64
	samples   int64
	lastOne   float64 // one-step forecast made on the previous tick
	residuals []float64
	resIdx    int
	resCount  int
}

// NewLocalPredictor creates a smoother for the given horizon count.
func NewLocalPredictor(horizons int, opts ...LocalOption) (*LocalPredictor, error) {
	cfg := LocalConfig{
		Horizons:      horizons,
		Alpha:         0.5,
		Beta:          0.1,
		AnomalyWindow: 100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Horizons <= 0 {
		return nil, fmt.Errorf("local predictor: horizons must be positive, got %d", cfg.Horizons)
	}
	return &LocalPredictor{
		cfg:       cfg,
		residuals: make([]float64, cfg.AnomalyWindow),
	}, nil
}

func (p *LocalPredictor) Horizons() int { return p.cfg.Horizons }

// Step feeds the next value and returns forecasts for ticks +1..+K.
func (p *LocalPredictor) Step(ctx context.Context, value float64) (models.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return models.Forecast{}, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return models.Forecast{}, fmt.Errorf("local predictor: non-finite input %v", value)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	anomaly := 0.0
	if p.samples == 0 {
		p.level = value
		p.trend = 0
	} else {
		residual := math.Abs(value - p.lastOne)
		anomaly = p.anomalyScore(residual)
		p.pushResidual(residual)

		if p.cfg.DisableTraining {
			p.level = value
		} else {
			prev := p.level
			p.level = p.cfg.Alpha*value + (1-p.cfg.Alpha)*(prev+p.trend)
			p.trend = p.cfg.Beta*(p.level-prev) + (1-p.cfg.Beta)*p.trend
		}
	}
	p.samples++

	preds := make([]float64, p.cfg.Horizons)
	for i := range preds {
		preds[i] = p.level + float64(i+1)*p.trend
	}
	p.lastOne = preds[0]

	return models.Forecast{
		Actual:       value,
		Predictions:  preds,
		AnomalyScore: anomaly,
	}, nil
}

// anomalyScore maps the residual's z-score against the window to [0,1].
func (p *LocalPredictor) anomalyScore(residual float64) float64 {
	if p.resCount < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(p.window(), nil)
	if std == 0 {
		if residual > mean {
			return 1
		}
		return 0
	}
	z := (residual - mean) / std
	if z <= 0 {
		return 0
	}
	return math.Min(z/3, 1)
}

func (p *LocalPredictor) pushResidual(r float64) {
	p.residuals[p.resIdx] = r
	p.resIdx = (p.resIdx + 1) % len(p.residuals)
	if p.resCount < len(p.residuals) {
		p.resCount++
	}
}

func (p *LocalPredictor) window() []float64 {
	if p.resCount < len(p.residuals) {
		return p.residuals[:p.resCount]
	}
	return p.residuals
}

type localState struct {
	Horizons  int       `json:"horizons"`
	Level     float64   `json:"level"`
	Trend     float64   `json:"trend"`
	Samples   int64     `json:"samples"`
	LastOne   float64   `json:"last_one"`
	Residuals []float64 `json:"residuals"`
	ResIdx    int       `json:"res_idx"`
	ResCount  int       `json:"res_count"`
}

// State serialises the smoother for snapshots.
func (p *LocalPredictor) State() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]float64, len(p.residuals))
	copy(res, p.residuals)
	return json.Marshal(localState{
		Horizons:  p.cfg.Horizons,
		Level:     p.level,
		Trend:     p.trend,
		Samples:   p.samples,
		LastOne:   p.lastOne,
		Residuals: res,
		ResIdx:    p.resIdx,
		ResCount:  p.resCount,
	})
}

// Restore loads state produced by State.
func (p *LocalPredictor) Restore(b []byte) error {
	var st localState
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode local predictor state: %w", err)
	}
	if st.Horizons != p.cfg.Horizons {
		return fmt.Errorf("local predictor state has %d horizons, want %d", st.Horizons, p.cfg.Horizons)
	}
	if len(st.Residuals) == 0 || st.ResIdx < 0 || st.ResIdx >= len(st.Residuals) || st.ResCount > len(st.Residuals) {
		return fmt.Errorf("local predictor state has an invalid residual window")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = st.Level
	p.trend = st.Trend
	p.samples = st.Samples
	p.lastOne = st.LastOne
	p.residuals = st.Residuals
	p.resIdx = st.ResIdx
	p.resCount = st.ResCount
	return nil
}

var _ domsvc.StatefulPredictor = (*LocalPredictor)(nil)
