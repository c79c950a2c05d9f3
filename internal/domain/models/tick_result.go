package models

import (
	"encoding/json"
	"time"

	"StreamCast/internal/tracker"
)

// TickResult is the outcome of running one record through the model.
type TickResult struct {
	RunID        string     `json:"run_id"`
	Tick         int64      `json:"tick"`
	Timestamp    time.Time  `json:"ts"`
	Actual       float64    `json:"actual"`
	Predictions  []float64  `json:"predictions"`
	Due          []*float64 `json:"due"`
	MeanError    []float64  `json:"mean_error"`
	Scored       []int      `json:"scored"`
	AnomalyScore float64    `json:"anomaly_score"`
}

// Snapshot is the persisted model state written every save_frequency ticks.
type Snapshot struct {
	Key       string          `json:"key"`
	RunID     string          `json:"run_id"`
	Tick      int64           `json:"tick"`
	SavedAt   time.Time       `json:"saved_at"`
	Tracker   tracker.State   `json:"tracker"`
	Predictor json.RawMessage `json:"predictor,omitempty"`
}
