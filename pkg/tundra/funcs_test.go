package tundra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHelperFunctions validates the behavior of each category of helper functions.
func TestHelperFunctions(t *testing.T) {
	t.Run("SimpleFuncs", func(t *testing.T) {
		assert.Equal(t, 5, add(2, 3))
		assert.Equal(t, 5, add(2.9, "3"))
		assert.Equal(t, -1, sub(2, 3))
		assert.Equal(t, 3, div(7, 2))
		assert.Equal(t, 0, div(7, 0))
		assert.Equal(t, 12, mult(3, 4))
		assert.Equal(t, 1, mod(7, 3))
		assert.Equal(t, 0, mod(7, 0))
		assert.Equal(t, 4, inc(3))
		assert.Equal(t, 2, dec(3))
		assert.True(t, isSet("x"))
		assert.False(t, isSet(""))
		assert.False(t, isSet(nil))
	})

	t.Run("LogicFuncs", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3}, seq(1, 3))
		assert.Equal(t, []int{1, 3, 5}, seq(1, 5, 2))
		assert.Empty(t, seq(3, 1))
		assert.Empty(t, seq(1, 3, 0))
		assert.Equal(t, "ababab", times("ab", 3))
		assert.Equal(t, "", times("ab", -1))
		assert.Equal(t, []any{1, "a"}, list(1, "a"))
		assert.Nil(t, randomChoice(nil))
		assert.Nil(t, randomChoice([]any{}))
		assert.Nil(t, randomChoice("not a slice"))
		assert.Contains(t, []any{"x", "y"}, randomChoice([]string{"x", "y"}))
		for i := 0; i < 20; i++ {
			n := randomInt(2, 5)
			assert.GreaterOrEqual(t, n, 2)
			assert.Less(t, n, 5)
		}
		assert.Equal(t, 7, randomInt(7, 7))
	})

	t.Run("StringFuncs", func(t *testing.T) {
		assert.Equal(t, 6.5, total(1, "2.5", 3))
		assert.Equal(t, 2.0, subtract(10, 3, 5))
		assert.Equal(t, 0.0, subtract())
		assert.Equal(t, "2.00", average([]any{1, 2, 3}))
		assert.Equal(t, "2.5", average([]int{2, 3}, 1))
		assert.Equal(t, "&lt;a href=&quot;x&quot;&gt;&amp;", escape(`<a href="x">&`))
		assert.Equal(t, "a.b", strBefore("a.b.c", "."))
		assert.Equal(t, "c", strAfter("a.b.c", "."))
		assert.Equal(t, "", strBefore("abc", "."))
		assert.Equal(t, "abc", strAfter("abc", "."))
		assert.Equal(t, "heo", remove("hello", "l"))
		assert.Equal(t, "Hello world", titleCase("  hello world "))
		assert.Equal(t, "Hello Big World", capitalize("hello big world"))
		assert.Equal(t, "a, b and c", glue([]any{"a", "b", "c"}, ", ", " and "))
		assert.Equal(t, "a, b, c", glue([]string{"a", "b", "c"}, ", "))
		assert.Equal(t, "a", glue([]any{"a"}, ", "))
		assert.Equal(t, 3.14, roundTo(3.14159))
		assert.Equal(t, 3.1, roundTo("3.14159", 1))
		assert.Equal(t, "https://example.com/about", url(map[string]any{"host": "example.com", "secure": true}, "about"))
		assert.Equal(t, "http://example.com/", url(map[string]any{"host": "example.com"}, "/"))
		assert.Equal(t, "/x", url(nil, "x"))
	})
}

func TestHelpersInTemplates(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`{{ total(1, 2) }}`, "3"},
		{`{{ capitalize("a b") }}`, "A B"},
		{`{% for i in seq(1, 3): %}{{ i }}{% end %}`, "123"},
		{`{{ sum([1, 2, 3]) }}`, "6"},
		{`{{ join(["a", "b"], "-") }}`, "a-b"},
		{`{{ escape("<") }}`, "&amp;lt;"},
		{`{! escape("<") !}`, "&lt;"},
		{`{{ add(inc(1), 3) }}`, "5"},
		{`{{ times("=", 3) }}`, "==="},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			x := bindSource(t, tt.src, false)
			got, err := x.Execute(nil)
			if assert.NoError(t, err) {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
