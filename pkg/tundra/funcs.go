package tundra

import (
	"math"
	"reflect"
)

// defaultHelpers returns the helper functions every engine starts with.
// Names avoid the expression language's builtins (sum, join, round, repeat,
// max, min and friends stay available as builtins).
func defaultHelpers() map[string]any {
	return map[string]any{
		// Strings & formatting (from funcs_strings.go)
		"total":      total,
		"subtract":   subtract,
		"average":    average,
		"escape":     escape,
		"strBefore":  strBefore,
		"strAfter":   strAfter,
		"remove":     remove,
		"titleCase":  titleCase,
		"capitalize": capitalize,
		"glue":       glue,
		"roundTo":    roundTo,
		"url":        url,

		// Logic & control (from funcs_logic.go)
		"seq":          seq,
		"times":        times,
		"list":         list,
		"randomChoice": randomChoice,
		"randomInt":    randomInt,

		// Simple (from funcs_simple.go)
		"add":   add,
		"sub":   sub,
		"div":   div,
		"mult":  mult,
		"mod":   mod,
		"inc":   inc,
		"dec":   dec,
		"isSet": isSet,
	}
}

// toInt converts numbers and numeric strings, truncating fractions.
func toInt(v any) int {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// toSlice returns the elements of a slice or array, nil for anything else.
func toSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
