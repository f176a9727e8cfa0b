package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// PatchRules controls ApplyPatch.
type PatchRules struct {
	// Allowed lists the top-level keys that may be changed. Empty allows all.
	Allowed []string
	// Replace lists object keys that are replaced wholesale instead of merged.
	Replace []string
}

// ApplyPatch returns cur with the JSON-named fields of patch applied.
// Unknown and disallowed keys are ignored. Nested objects are merged key by
// key unless listed in rules.Replace. A value of the wrong type, or null for
// a field that cannot hold null, is an ErrInvalid error and leaves cur
// untouched.
func ApplyPatch[T any](cur T, patch map[string]any, rules PatchRules) (T, error) {
	var zero T

	raw, err := json.Marshal(cur)
	if err != nil {
		return zero, fmt.Errorf("patch: encode: %w", err)
	}
	var base map[string]any
	if err := json.Unmarshal(raw, &base); err != nil {
		return zero, fmt.Errorf("patch: decode: %w", err)
	}

	allowed := toSet(rules.Allowed)
	replace := toSet(rules.Replace)
	for k, v := range patch {
		// Unknown keys fall through and are dropped by json.Unmarshal.
		if len(allowed) > 0 && !allowed[k] {
			continue
		}
		if err := checkNulls(reflect.TypeOf(cur), k, v); err != nil {
			return zero, err
		}
		if replace[k] {
			base[k] = v
			continue
		}
		base[k] = mergeValue(base[k], v)
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, nil
}

func mergeValue(dst, src any) any {
	dm, ok1 := dst.(map[string]any)
	sm, ok2 := src.(map[string]any)
	if !ok1 || !ok2 {
		return src
	}
	for k, v := range sm {
		dm[k] = mergeValue(dm[k], v)
	}
	return dm
}

// checkNulls rejects null for the field named key of struct type t, and for
// any field below it, unless that field is a pointer, map, slice or interface.
func checkNulls(t reflect.Type, key string, v any) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	ft, ok := jsonField(t, key)
	if !ok {
		return nil
	}
	if v == nil {
		switch ft.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			return nil
		}
		return fmt.Errorf("%w: %s must not be null", ErrInvalid, key)
	}
	if nested, ok := v.(map[string]any); ok {
		for k, nv := range nested {
			if err := checkNulls(ft, k, nv); err != nil {
				return fmt.Errorf("%w (in %s)", err, key)
			}
		}
	}
	return nil
}

func jsonField(t reflect.Type, key string) (reflect.Type, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if name == key {
			return f.Type, true
		}
	}
	return nil, false
}

func toSet(keys []string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}
