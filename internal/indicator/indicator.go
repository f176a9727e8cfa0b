// Package indicator provides technical indicator calculations over bar series.
//
// Every indicator is a pure function from an ascending OHLCV series and a
// parameter set to a small map of named outputs, evaluated at the last bar.
// Missing history and undefined ratios are reported as NaN, never as zero.
// Indicators are registered once in a Registry, validated at startup.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"trading-alerts/internal/model"
)

var (
	// ErrUnknownIndicator is returned for a name that is not registered.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrInvalidParam is returned for an unknown or out-of-range parameter.
	ErrInvalidParam = errors.New("invalid indicator parameter")

	// ErrUnknownOutput is returned when selecting a component the indicator does not produce.
	ErrUnknownOutput = errors.New("unknown indicator output")
)

// ParamType is the numeric type of an indicator parameter.
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
)

// ParamSpec declares one indicator parameter. The same schema drives UI
// generation and validation.
type ParamSpec struct {
	Name    string    `json:"name"`
	Type    ParamType `json:"type"`
	Default float64   `json:"default"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
}

func (ps ParamSpec) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrInvalidParam, ps.Name)
	}
	if ps.Type == ParamInt && v != math.Trunc(v) {
		return fmt.Errorf("%w: %s must be an integer, got %g", ErrInvalidParam, ps.Name, v)
	}
	if v < ps.Min || v > ps.Max {
		return fmt.Errorf("%w: %s=%g outside [%g, %g]", ErrInvalidParam, ps.Name, v, ps.Min, ps.Max)
	}
	return nil
}

// Params is a resolved parameter set: every declared parameter is present.
type Params map[string]float64

// Int returns the named parameter as an int.
func (p Params) Int(name string) int { return int(p[name]) }

// Float returns the named parameter.
func (p Params) Float(name string) float64 { return p[name] }

// Output maps component names to their value at the last bar.
type Output map[string]float64

// Func computes an indicator. It must not mutate bars.
type Func func(bars []model.Bar, p Params) Output

// Spec describes a registered indicator.
type Spec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Aliases     []string    `json:"aliases,omitempty"`
	Params      []ParamSpec `json:"parameters"`
	Outputs     []string    `json:"outputs"` // first entry is the primary output

	Compute Func `json:"-"`

	// Warmup returns the number of bars needed before every output is
	// available.
	Warmup func(p Params) int `json:"-"`
}

// Primary returns the name of the default output.
func (s Spec) Primary() string { return s.Outputs[0] }

// HasOutput reports whether name is one of the declared outputs.
func (s Spec) HasOutput(name string) bool {
	for _, o := range s.Outputs {
		if o == name {
			return true
		}
	}
	return false
}

// Resolve validates raw parameters against the schema and fills defaults.
// Unknown keys are rejected.
func (s Spec) Resolve(raw map[string]float64) (Params, error) {
	declared := make(map[string]ParamSpec, len(s.Params))
	for _, ps := range s.Params {
		declared[ps.Name] = ps
	}

	unknown := make([]string, 0)
	for k := range raw {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s does not accept %v", ErrInvalidParam, s.Name, unknown)
	}

	p := make(Params, len(s.Params))
	for _, ps := range s.Params {
		v, ok := raw[ps.Name]
		if !ok {
			v = ps.Default
		}
		if err := ps.check(v); err != nil {
			return nil, err
		}
		p[ps.Name] = v
	}
	return p, nil
}

// Select picks a component out of an Output. An empty name selects the
// primary output.
func (s Spec) Select(out Output, name string) (float64, error) {
	if name == "" {
		name = s.Primary()
	}
	if !s.HasOutput(name) {
		return math.NaN(), fmt.Errorf("%w: %s has no output %q", ErrUnknownOutput, s.Name, name)
	}
	v, ok := out[name]
	if !ok {
		return math.NaN(), nil
	}
	return v, nil
}

// Validate checks the spec itself. Called when building a Registry.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New("indicator: empty name")
	}
	if s.Compute == nil {
		return fmt.Errorf("indicator %s: nil compute function", s.Name)
	}
	if s.Warmup == nil {
		return fmt.Errorf("indicator %s: nil warmup function", s.Name)
	}
	if len(s.Outputs) == 0 {
		return fmt.Errorf("indicator %s: no outputs declared", s.Name)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, ps := range s.Params {
		if seen[ps.Name] {
			return fmt.Errorf("indicator %s: duplicate parameter %s", s.Name, ps.Name)
		}
		seen[ps.Name] = true
		if ps.Type != ParamInt && ps.Type != ParamFloat {
			return fmt.Errorf("indicator %s: parameter %s has unknown type %q", s.Name, ps.Name, ps.Type)
		}
		if ps.Min > ps.Max {
			return fmt.Errorf("indicator %s: parameter %s has min > max", s.Name, ps.Name)
		}
		if err := ps.check(ps.Default); err != nil {
			return fmt.Errorf("indicator %s: default: %w", s.Name, err)
		}
	}
	return nil
}
