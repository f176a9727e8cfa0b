// Package alerting evaluates alerts against market data, runs the periodic
// sweep and exposes the control surface used by the HTTP API and the CLI.
package alerting

import (
	"math"

	"trading-alerts/internal/model"
)

// Evaluate applies c to the current value v against threshold t. prev is
// the value stored by the previous successful check; crossings need it.
// A NaN value never triggers.
func Evaluate(c model.Condition, prev *float64, v, t float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch c {
	case model.GreaterThan:
		return v > t
	case model.LessThan:
		return v < t
	case model.CrossesAbove:
		return prev != nil && *prev < t && v >= t
	case model.CrossesBelow:
		return prev != nil && *prev > t && v <= t
	}
	return false
}
