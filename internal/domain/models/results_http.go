package models

// Requests for the results HTTP endpoints.

type ResultsRequest struct {
	RunID string `query:"run_id" json:"run_id"`
	From  string `query:"from" json:"from"`
	To    string `query:"to" json:"to"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

// ErrorsResponse reports the tracker's running accuracy.
type ErrorsResponse struct {
	RunID     string    `json:"run_id"`
	Tick      int64     `json:"tick"`
	Horizons  int       `json:"horizons"`
	Policy    string    `json:"policy"`
	MeanError []float64 `json:"mean_error"`
	Scored    []int     `json:"scored"`
}

// HealthResponse reports dependency checks; Status is "ok" or "degraded".
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
