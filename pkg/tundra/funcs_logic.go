package tundra

import (
	"math/rand/v2"
	"strings"
)

// seq returns the integers from start to end inclusive, advancing by step
// (default 1). It is empty when start > end or step is not positive.
func seq(start, end any, step ...any) []int {
	from, to, by := toInt(start), toInt(end), 1
	if len(step) > 0 {
		by = toInt(step[0])
	}
	if from > to || by <= 0 {
		return []int{}
	}
	s := make([]int, 0, (to-from)/by+1)
	for i := from; i <= to; i += by {
		s = append(s, i)
	}
	return s
}

// times returns s repeated count times.
func times(s any, count any) string {
	n := toInt(count)
	if n <= 0 {
		return ""
	}
	return strings.Repeat(toString(s), n)
}

// list returns a slice containing all the arguments passed to it.
func list(args ...any) []any {
	return args
}

// randomChoice selects and returns a single random element from a slice.
func randomChoice(slice any) any {
	items := toSlice(slice)
	if len(items) == 0 {
		// Fail silently, helpers have no logger
		return nil
	}
	return items[rand.IntN(len(items))]
}

// randomInt returns a random integer within the range [min, max).
func randomInt(min, max any) int {
	lo, hi := toInt(min), toInt(max)
	if lo >= hi {
		return lo
	}
	return rand.IntN(hi-lo) + lo
}
