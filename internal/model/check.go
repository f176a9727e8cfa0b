package model

import "time"

// CheckStatus is the outcome class of a single alert check.
type CheckStatus string

const (
	CheckOK       CheckStatus = "ok"
	CheckInactive CheckStatus = "inactive"
	CheckSkipped  CheckStatus = "skipped" // definition changed while the check was in flight
	CheckError    CheckStatus = "error"
)

// CheckResult is returned for every alert evaluated by the engine.
type CheckResult struct {
	AlertID   string      `json:"alert_id"`
	Status    CheckStatus `json:"status"`
	Triggered bool        `json:"triggered"`
	Value     *float64    `json:"value,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
	Err       error       `json:"-"`
}

// OK reports whether the check completed without error.
func (r CheckResult) OK() bool { return r.Status != CheckError }

// TriggerEvent describes one fired alert. It is the payload handed to
// notification channels and event publishers.
type TriggerEvent struct {
	AlertID      string    `json:"alert_id"`
	Symbol       string    `json:"symbol"`
	Indicator    string    `json:"indicator"`
	Output       string    `json:"indicator_output,omitempty"`
	Condition    Condition `json:"condition"`
	Threshold    float64   `json:"threshold"`
	CurrentValue float64   `json:"current_value"`
	Timeframe    string    `json:"timeframe"`
	TriggeredAt  time.Time `json:"triggered_at"`
}
