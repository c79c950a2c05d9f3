package tracker

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidHorizons  = errors.New("tracker: horizon count must be positive")
	ErrRingTooSmall     = errors.New("tracker: ring size must exceed horizon count")
	ErrPredictionLength = errors.New("tracker: prediction vector length mismatch")
	ErrNonFinite        = errors.New("tracker: value must be finite")
)

// Empty marks a due-prediction slot for which nothing was filed.
var Empty = math.NaN()

// IsEmpty reports whether v is the Empty marker.
func IsEmpty(v float64) bool { return math.IsNaN(v) }

// ErrorPolicy selects the denominator of the running mean error.
type ErrorPolicy string

const (
	// PerTick divides each horizon's error sum by the total tick count.
	// Horizon h is only scored from tick h+1 on, so larger horizons read low.
	PerTick ErrorPolicy = "per_tick"
	// PerScored divides by the number of predictions actually scored for the horizon.
	PerScored ErrorPolicy = "per_scored"
)

// ParseErrorPolicy maps a config string to a policy; empty selects PerTick.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PerTick:
		return PerTick, nil
	case PerScored:
		return PerScored, nil
	default:
		return "", fmt.Errorf("tracker: unknown error policy %q", s)
	}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRingSize overrides the default ring size of K+1.
func WithRingSize(n int) Option {
	return func(t *Tracker) { t.ring = n }
}

// WithErrorPolicy sets the running mean denominator.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(t *Tracker) { t.policy = p }
}

// Result is what a single Observe call reports.
type Result struct {
	Tick      int64
	MeanError []float64
	Due       []float64
	Scored    []int
}

// Tracker files multi-horizon predictions into the tick slot they target and
// scores them against the actual value when that tick arrives.
//
// Ticks are inferred from call order: Observe must be called once per record,
// in order, with no gaps. A Tracker is not safe for concurrent use.
type Tracker struct {
	k      int
	ring   int
	policy ErrorPolicy
	tick   int64

	// cells[slot*k + h-1]
	cells  []float64
	filled []bool

	errSum []float64
	scored []int
}

// New creates a tracker for k horizons (1..k).
func New(k int, opts ...Option) (*Tracker, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHorizons, k)
	}
	t := &Tracker{
		k:      k,
		ring:   k + 1,
		policy: PerTick,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ring < k+1 {
		return nil, fmt.Errorf("%w: ring %d, horizons %d", ErrRingTooSmall, t.ring, k)
	}
	if _, err := ParseErrorPolicy(string(t.policy)); err != nil {
		return nil, err
	}
	t.cells = make([]float64, t.ring*k)
	t.filled = make([]bool, t.ring*k)
	t.errSum = make([]float64, k)
	t.scored = make([]int, k)
	return t, nil
}

// Observe advances one tick. actual is the value realised at this tick and
// predictions[h-1] is the forecast made now for tick+h.
func (t *Tracker) Observe(actual float64, predictions []float64) (Result, error) {
	if len(predictions) != t.k {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrPredictionLength, len(predictions), t.k)
	}
	if !finite(actual) {
		return Result{}, fmt.Errorf("%w: actual %v", ErrNonFinite, actual)
	}
	for i, p := range predictions {
		if !finite(p) {
			return Result{}, fmt.Errorf("%w: prediction h=%d is %v", ErrNonFinite, i+1, p)
		}
	}

	t.tick++
	ring := int64(t.ring)
	s := int(t.tick % ring)

	due := make([]float64, t.k)
	for i := 0; i < t.k; i++ {
		h := i + 1
		cur := s*t.k + i
		if t.filled[cur] {
			v := t.cells[cur]
			due[i] = v
			t.errSum[i] += math.Abs(v - actual)
			t.scored[i]++
			t.filled[cur] = false
		} else {
			due[i] = Empty
		}

		// a stale unconsumed value here is overwritten on purpose
		r := int((t.tick + int64(h)) % ring)
		dst := r*t.k + i
		t.cells[dst] = predictions[i]
		t.filled[dst] = true
	}

	scored := make([]int, t.k)
	copy(scored, t.scored)
	return Result{
		Tick:      t.tick,
		MeanError: t.MeanError(),
		Due:       due,
		Scored:    scored,
	}, nil
}

// MeanError returns the running mean absolute error per horizon.
func (t *Tracker) MeanError() []float64 {
	out := make([]float64, t.k)
	for i := range out {
		switch t.policy {
		case PerScored:
			if t.scored[i] > 0 {
				out[i] = t.errSum[i] / float64(t.scored[i])
			}
		default:
			if t.tick > 0 {
				out[i] = t.errSum[i] / float64(t.tick)
			}
		}
	}
	return out
}

// Scored returns how many predictions have been scored per horizon.
func (t *Tracker) Scored() []int {
	out := make([]int, t.k)
	copy(out, t.scored)
	return out
}

// Horizons returns K.
func (t *Tracker) Horizons() int { return t.k }

// RingSize returns the number of tick slots in the ring.
func (t *Tracker) RingSize() int { return t.ring }

// Tick returns the number of accepted Observe calls.
func (t *Tracker) Tick() int64 { return t.tick }

// Policy returns the denominator used by MeanError.
func (t *Tracker) Policy() ErrorPolicy { return t.policy }

// SetPolicy switches the mean error denominator. Sums and counts are kept,
// so the change applies to past ticks as well.
func (t *Tracker) SetPolicy(p ErrorPolicy) error {
	if _, err := ParseErrorPolicy(string(p)); err != nil {
		return err
	}
	t.policy = p
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
