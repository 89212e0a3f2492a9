package models

import (
	"reflect"
	"strings"
)

// Condition is a comparison (or an all/any composite of comparisons) resolved
// against a context mapping. Evaluation is total: malformed or unresolvable
// input degrades to false (or to a null value for the path lookup), never to
// an error.
type Condition struct {
	All   []Condition `json:"all,omitempty"`
	Any   []Condition `json:"any,omitempty"`
	Path  string      `json:"path,omitempty"`
	Op    string      `json:"op,omitempty"`
	Value any         `json:"value,omitempty"`
}

var conditionOps = map[string]bool{
	"==": true, "!=": true, "in": true,
	">": true, ">=": true, "<": true, "<=": true,
	"contains": true,
}

// KnownOp reports whether op is one of the supported comparison operators.
func KnownOp(op string) bool {
	return conditionOps[op]
}

// Evaluate resolves the condition against the context. A nil condition or one
// with no path (an "always" transition) evaluates to true.
func (c *Condition) Evaluate(context map[string]any) bool {
	if c == nil {
		return true
	}

	if len(c.All) > 0 {
		for i := range c.All {
			if !c.All[i].Evaluate(context) {
				return false
			}
		}

		return true
	}

	if len(c.Any) > 0 {
		for i := range c.Any {
			if c.Any[i].Evaluate(context) {
				return true
			}
		}

		return false
	}

	if c.Path == "" {
		return true
	}

	resolved, _ := ResolvePath(context, c.Path)

	switch c.Op {
	case "==":
		return equalValues(resolved, c.Value)
	case "!=":
		return !equalValues(resolved, c.Value)
	case "in":
		return containsElement(c.Value, resolved)
	case ">", ">=", "<", "<=":
		return compareNumeric(c.Op, resolved, c.Value)
	case "contains":
		return containsValue(resolved, c.Value)
	default:
		return false
	}
}

// ResolvePath walks a dot-separated path through nested mappings. A missing
// segment or a non-mapping intermediate yields (nil, false) rather than an
// error.
func ResolvePath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = data

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// equalValues compares by value, with null equal only to null and numeric
// values compared across Go numeric types (JSON decoding yields float64,
// definitions built in code often carry int).
func equalValues(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	if lok && rok {
		return lf == rf
	}

	return reflect.DeepEqual(left, right)
}

// containsElement reports whether container (condition value) holds element
// (the resolved value). False when container is not a sequence.
func containsElement(container, element any) bool {
	rv := reflect.ValueOf(container)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}

	for i := range rv.Len() {
		if equalValues(rv.Index(i).Interface(), element) {
			return true
		}
	}

	return false
}

// containsValue reports whether the resolved value (a string or a sequence)
// contains the condition value. False for any other resolved type.
func containsValue(resolved, value any) bool {
	switch typed := resolved.(type) {
	case string:
		needle, ok := value.(string)
		if !ok {
			return false
		}

		return strings.Contains(typed, needle)
	default:
		return containsElement(resolved, value)
	}
}

func compareNumeric(op string, left, right any) bool {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	if !lok || !rok {
		return false
	}

	switch op {
	case ">":
		return lf > rf
	case ">=":
		return lf >= rf
	case "<":
		return lf < rf
	case "<=":
		return lf <= rf
	}

	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}

	return 0, false
}
