package indicator

import (
	"fmt"
	"strings"

	"trading-alerts/internal/model"
)

// Registry is the static name → indicator table.
type Registry struct {
	specs   map[string]Spec
	aliases map[string]string
	order   []string
}

// NewRegistry validates specs and builds a registry. Names and aliases are
// matched case-insensitively and must be unique.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs:   make(map[string]Spec, len(specs)),
		aliases: make(map[string]string),
	}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		key := normalize(s.Name)
		if _, dup := r.specs[key]; dup {
			return nil, fmt.Errorf("indicator %s: registered twice", s.Name)
		}
		if _, dup := r.aliases[key]; dup {
			return nil, fmt.Errorf("indicator %s: name collides with an alias", s.Name)
		}
		r.specs[key] = s
		r.order = append(r.order, key)
		for _, a := range s.Aliases {
			ak := normalize(a)
			if _, dup := r.specs[ak]; dup {
				return nil, fmt.Errorf("indicator %s: alias %q collides with a name", s.Name, a)
			}
			if _, dup := r.aliases[ak]; dup {
				return nil, fmt.Errorf("indicator %s: alias %q registered twice", s.Name, a)
			}
			r.aliases[ak] = key
		}
	}
	return r, nil
}

// Builtin returns the registry of every indicator shipped with the engine.
// It panics if the builtin table is inconsistent, which is a programming error.
func Builtin() *Registry {
	r, err := NewRegistry(builtinSpecs()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the spec registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (Spec, error) {
	key := normalize(name)
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	s, ok := r.specs[key]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	return s, nil
}

// Specs returns all registered specs in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.specs[k])
	}
	return out
}

// Evaluate resolves params, computes the indicator over bars and returns the
// selected output at the last bar.
func (r *Registry) Evaluate(name string, bars []model.Bar, raw map[string]float64, output string) (float64, error) {
	spec, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}
	p, err := spec.Resolve(raw)
	if err != nil {
		return 0, err
	}
	return spec.Select(spec.Compute(bars, p), output)
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
