package predictor

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"StreamCast/internal/domain/models"
	domsvc "StreamCast/internal/domain/service"
	xhttp "StreamCast/pkg/http"
)

// IdempotencyHeader carries "<session>-<seq>" on every /step call. Retries of
// one step reuse the key so the engine can skip a step it already applied.
const IdempotencyHeader = "Idempotency-Key"

// HTTPPredictor calls an out-of-process model service (e.g. the HTM engine)
// once per tick.
type HTTPPredictor struct {
	horizons int
	learn    bool
	session  string
	seq      atomic.Uint64
	client   *xhttp.Client
}

// NewHTTPPredictor builds a client for baseURL with the given timeout.
func NewHTTPPredictor(baseURL string, horizons int, timeout time.Duration, learn bool, attempts int) (*HTTPPredictor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("http predictor: model url is required")
	}
	if horizons <= 0 {
		return nil, fmt.Errorf("http predictor: horizons must be positive, got %d", horizons)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPPredictor{
		horizons: horizons,
		learn:    learn,
		session:  uuid.NewString(),
		client: xhttp.NewClient(
			xhttp.WithBaseURL(baseURL),
			xhttp.WithTimeout(timeout),
			xhttp.WithRetry(attempts, 50*time.Millisecond),
		),
	}, nil
}

type stepReq struct {
	Value   float64 `json:"value"`
	Learn   bool    `json:"learn"`
	Session string  `json:"session"`
	Seq     uint64  `json:"seq"`
}

type stepResp struct {
	Actual       *float64  `json:"actual"`
	Predictions  []float64 `json:"predictions"`
	AnomalyScore float64   `json:"anomaly_score"`
}

func (p *HTTPPredictor) Horizons() int { return p.horizons }

// Step posts the value to /step and validates the response shape.
func (p *HTTPPredictor) Step(ctx context.Context, value float64) (models.Forecast, error) {
	seq := p.seq.Add(1)
	req := stepReq{Value: value, Learn: p.learn, Session: p.session, Seq: seq}
	headers := map[string]string{IdempotencyHeader: p.session + "-" + strconv.FormatUint(seq, 10)}

	var resp stepResp
	if err := p.client.PostJSON(ctx, "/step", headers, req, &resp); err != nil {
		return models.Forecast{}, fmt.Errorf("http predictor: %w", err)
	}
	if len(resp.Predictions) != p.horizons {
		return models.Forecast{}, fmt.Errorf("http predictor: got %d predictions, want %d", len(resp.Predictions), p.horizons)
	}
	actual := value
	if resp.Actual != nil {
		actual = *resp.Actual
	}
	return models.Forecast{
		Actual:       actual,
		Predictions:  resp.Predictions,
		AnomalyScore: resp.AnomalyScore,
	}, nil
}

var _ domsvc.Predictor = (*HTTPPredictor)(nil)
