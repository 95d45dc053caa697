package tundra

import "reflect"

// add returns a + b.
func add(a, b any) int {
	return toInt(a) + toInt(b)
}

// sub returns a - b.
func sub(a, b any) int {
	return toInt(a) - toInt(b)
}

// div returns a / b (integer division). Returns 0 if b is 0.
func div(a, b any) int {
	d := toInt(b)
	if d == 0 {
		return 0
	}
	return toInt(a) / d
}

// mult returns a * b.
func mult(a, b any) int {
	return toInt(a) * toInt(b)
}

// mod returns a % b.
func mod(a, b any) int {
	d := toInt(b)
	if d == 0 {
		return 0
	}
	return toInt(a) % d
}

// inc returns i + 1.
func inc(i any) int {
	return toInt(i) + 1
}

// dec returns i - 1.
func dec(i any) int {
	return toInt(i) - 1
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}
