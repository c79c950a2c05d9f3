package models

import "math"

// MetricRecord is one raw input sample for the model.
type MetricRecord struct {
	Source    string
	Timestamp int64 // unix seconds, 0 when the producer did not stamp it
	Value     float64
}

// Forecast is what a Predictor produces for a single tick.
type Forecast struct {
	Actual       float64
	Predictions  []float64 // index h-1 targets tick+h
	AnomalyScore float64
}

// NullableFloats converts NaN entries to nil so they encode as JSON null.
func NullableFloats(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) {
			continue
		}
		out[i] = &v
	}
	return out
}
