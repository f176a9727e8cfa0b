// Package notification delivers trigger events to the in-app inbox, email,
// webhooks, Telegram and downstream event publishers.
package notification

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"trading-alerts/internal/model"
)

// FormatValue renders an indicator value with at most four decimals and no
// trailing zeros.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Round(4).String()
}

// Title is the one-line summary used as email subject and message heading.
func Title(ev model.TriggerEvent) string {
	return fmt.Sprintf("Alert: %s - %s", ev.Symbol, indicatorLabel(ev))
}

// Message is the plain-text description of a trigger.
func Message(ev model.TriggerEvent) string {
	return fmt.Sprintf("%s %s %s %s (current %s, %s)",
		ev.Symbol, indicatorLabel(ev), conditionText(ev.Condition),
		FormatValue(ev.Threshold), FormatValue(ev.CurrentValue), ev.Timeframe)
}

func indicatorLabel(ev model.TriggerEvent) string {
	if ev.Output != "" {
		return ev.Indicator + "." + ev.Output
	}
	return ev.Indicator
}

func conditionText(c model.Condition) string {
	switch c {
	case model.GreaterThan:
		return "above"
	case model.LessThan:
		return "below"
	case model.CrossesAbove:
		return "crossed above"
	case model.CrossesBelow:
		return "crossed below"
	}
	return string(c)
}
