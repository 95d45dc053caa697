package tundra

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// scope holds the names visible to expressions during one render.
type scope struct {
	vars map[string]any
}

// newScope builds the environment of one render. Helpers come first, then the
// context fields unless scoping is on; data always names the whole context.
func newScope(data any, helpers map[string]any, scoping bool) (*scope, error) {
	fields, err := contextFields(data)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]any, len(helpers)+len(fields)+1)
	for name, fn := range helpers {
		vars[name] = fn
	}
	if !scoping {
		for k, v := range fields {
			vars[k] = v
		}
	}
	vars["data"] = fields
	return &scope{vars: vars}, nil
}

// save snapshots the given names and returns a func restoring them.
func (s *scope) save(names ...string) func() {
	type prev struct {
		v  any
		ok bool
	}
	saved := make(map[string]prev, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		v, ok := s.vars[n]
		saved[n] = prev{v, ok}
	}
	return func() {
		for n, p := range saved {
			if p.ok {
				s.vars[n] = p.v
			} else {
				delete(s.vars, n)
			}
		}
	}
}

// contextFields normalizes render data into a string-keyed map.
func contextFields(data any) (map[string]any, error) {
	switch t := data.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	}

	rv := reflect.Indirect(reflect.ValueOf(data))
	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
	default:
		return nil, fmt.Errorf("render data must be a map or struct, got %T", data)
	}

	out := map[string]any{}
	if err := mapstructure.Decode(data, &out); err != nil {
		return nil, fmt.Errorf("decoding render data: %w", err)
	}
	return out, nil
}

// arith applies a compound assignment operator. Strings concatenate with +.
func arith(op string, a, b any) (any, error) {
	if op == "+" {
		if sa, ok := a.(string); ok {
			return sa + toString(b), nil
		}
	}
	ia, aInt := asInt(a)
	ib, bInt := asInt(b)
	if aInt && bInt && op != "/" {
		switch op {
		case "+":
			return ia + ib, nil
		case "-":
			return ia - ib, nil
		case "*":
			return ia * ib, nil
		}
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("operator %s= not defined on %T and %T", op, a, b)
	}
	switch op {
	case "+":
		return fa + fb, nil
	case "-":
		return fa - fb, nil
	case "*":
		return fa * fb, nil
	case "/":
		if fb == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return fa / fb, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	}
	return 0, false
}

// toFloat converts numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case bool:
		return 0, false
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32:
		return rv.Float(), true
	}
	return 0, false
}
