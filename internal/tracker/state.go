package tracker

import "fmt"

// State is the serialisable form of a Tracker used for model snapshots.
// Pending holds the filed cells as row-major [slot][horizon]; nil entries are empty.
type State struct {
	Horizons int          `json:"horizons"`
	RingSize int          `json:"ring_size"`
	Policy   ErrorPolicy  `json:"policy"`
	Tick     int64        `json:"tick"`
	Pending  [][]*float64 `json:"pending"`
	ErrSum   []float64    `json:"err_sum"`
	Scored   []int        `json:"scored"`
}

// Snapshot captures the tracker's current state.
func (t *Tracker) Snapshot() State {
	pending := make([][]*float64, t.ring)
	for s := 0; s < t.ring; s++ {
		row := make([]*float64, t.k)
		for i := 0; i < t.k; i++ {
			idx := s*t.k + i
			if t.filled[idx] {
				v := t.cells[idx]
				row[i] = &v
			}
		}
		pending[s] = row
	}
	errSum := make([]float64, t.k)
	copy(errSum, t.errSum)
	return State{
		Horizons: t.k,
		RingSize: t.ring,
		Policy:   t.policy,
		Tick:     t.tick,
		Pending:  pending,
		ErrSum:   errSum,
		Scored:   t.Scored(),
	}
}

// Restore rebuilds a tracker from a snapshot.
func Restore(st State) (*Tracker, error) {
	t, err := New(st.Horizons, WithRingSize(st.RingSize), WithErrorPolicy(st.Policy))
	if err != nil {
		return nil, fmt.Errorf("restore tracker: %w", err)
	}
	if st.Tick < 0 {
		return nil, fmt.Errorf("restore tracker: negative tick %d", st.Tick)
	}
	if len(st.Pending) != t.ring || len(st.ErrSum) != t.k || len(st.Scored) != t.k {
		return nil, fmt.Errorf("restore tracker: state dimensions do not match %d horizons, ring %d", t.k, t.ring)
	}
	for s, row := range st.Pending {
		if len(row) != t.k {
			return nil, fmt.Errorf("restore tracker: pending row %d has %d cells, want %d", s, len(row), t.k)
		}
		for i, v := range row {
			if v != nil {
				t.cells[s*t.k+i] = *v
				t.filled[s*t.k+i] = true
			}
		}
	}
	t.tick = st.Tick
	copy(t.errSum, st.ErrSum)
	copy(t.scored, st.Scored)
	return t, nil
}
