package metrics

import "time"

type ActionMetrics struct {
	ActionType  string    `json:"action_type"`
	Integration string    `json:"integration,omitempty"`
	Priority    int       `json:"priority"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMs  int64     `json:"duration_ms"`
	Inferred    []string  `json:"inferred,omitempty"`
	Success     bool      `json:"success"`
	Err         string    `json:"err,omitempty"`
}

type RequestMetrics struct {
	RequestID  string          `json:"request_id"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	DurationMs int64           `json:"duration_ms"`
	Planned    int             `json:"planned"`
	Status     string          `json:"status"`
	Actions    []ActionMetrics `json:"actions"`
}

// Compute derived fields for an action.
func (a *ActionMetrics) Finalize() {
	a.DurationMs = a.End.Sub(a.Start).Milliseconds()
}

func (r *RequestMetrics) Finalize() {
	r.DurationMs = r.End.Sub(r.Start).Milliseconds()
}
