package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Condition selects how an indicator value is compared against a threshold.
type Condition string

const (
	GreaterThan  Condition = "greater_than"
	LessThan     Condition = "less_than"
	CrossesAbove Condition = "crosses_above"
	CrossesBelow Condition = "crosses_below"
)

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	switch c {
	case GreaterThan, LessThan, CrossesAbove, CrossesBelow:
		return true
	}
	return false
}

// Crossing reports whether c needs the previous value to be evaluated.
func (c Condition) Crossing() bool {
	return c == CrossesAbove || c == CrossesBelow
}

// NotificationChannels lists the enabled channels of an alert and their
// destinations. Every entry is optional.
type NotificationChannels struct {
	App      bool   `json:"app"`
	Email    string `json:"email,omitempty"`
	Webhook  string `json:"webhook,omitempty"`  // URL, or "default" for the configured default
	Telegram string `json:"telegram,omitempty"` // chat id, or "default"
}

// Any reports whether at least one channel is enabled.
func (n NotificationChannels) Any() bool {
	return n.App || n.Email != "" || n.Webhook != "" || n.Telegram != ""
}

// Alert is a user-defined condition on an indicator of a symbol, plus the
// runtime state the evaluation engine keeps between checks.
type Alert struct {
	ID              string               `json:"id"`
	Symbol          string               `json:"symbol"`
	Indicator       string               `json:"indicator"`
	IndicatorParams map[string]float64   `json:"indicator_params"`
	IndicatorOutput string               `json:"indicator_output,omitempty"`
	Condition       Condition            `json:"condition"`
	Threshold       float64              `json:"threshold"`
	Timeframe       string               `json:"timeframe"`
	Channels        NotificationChannels `json:"notification_channels"`
	Active          bool                 `json:"active"`

	// Runtime state
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastCheck   *time.Time `json:"last_check"`
	LastValue   *float64   `json:"last_value"`
	Triggered   bool       `json:"triggered"`
	LastTrigger *time.Time `json:"last_trigger"`
	AppNotified bool       `json:"app_notified"`
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() Alert {
	c := *a
	if a.IndicatorParams != nil {
		c.IndicatorParams = make(map[string]float64, len(a.IndicatorParams))
		for k, v := range a.IndicatorParams {
			c.IndicatorParams[k] = v
		}
	}
	c.LastCheck = cloneTime(a.LastCheck)
	c.LastTrigger = cloneTime(a.LastTrigger)
	if a.LastValue != nil {
		v := *a.LastValue
		c.LastValue = &v
	}
	return c
}

// DefinitionKey identifies the series an alert is evaluated on. Two alerts
// with the same key compute the same value from the same bars.
func (a *Alert) DefinitionKey() string {
	keys := make([]string, 0, len(a.IndicatorParams))
	for k := range a.IndicatorParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(a.Symbol)
	sb.WriteByte('|')
	sb.WriteString(a.Timeframe)
	sb.WriteByte('|')
	sb.WriteString(a.Indicator)
	sb.WriteByte('|')
	sb.WriteString(a.IndicatorOutput)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(a.IndicatorParams[k], 'g', -1, 64))
	}
	return sb.String()
}

// Describe renders a one-line human description, e.g. "AAPL RSI less_than 30".
func (a *Alert) Describe() string {
	return fmt.Sprintf("%s %s %s %g", a.Symbol, a.Indicator, a.Condition, a.Threshold)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
