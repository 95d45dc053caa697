package tundra

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// total returns the sum of its arguments, parsed as numbers. Non-numeric
// arguments count as zero.
func total(args ...any) float64 {
	var result float64
	for _, a := range args {
		if f, ok := toFloat(a); ok {
			result += f
		}
	}
	return result
}

// subtract returns the first argument minus all the others.
func subtract(args ...any) float64 {
	if len(args) == 0 {
		return 0
	}
	result, _ := toFloat(args[0])
	for _, a := range args[1:] {
		if f, ok := toFloat(a); ok {
			result -= f
		}
	}
	return result
}

// average returns the mean of numbers formatted with the given decimal places
// (default 2).
func average(numbers any, decimals ...any) string {
	items := toSlice(numbers)
	places := 2
	if len(decimals) > 0 {
		places = toInt(decimals[0])
	}
	if len(items) == 0 {
		return strconv.FormatFloat(0, 'f', places, 64)
	}
	return strconv.FormatFloat(total(items...)/float64(len(items)), 'f', places, 64)
}

// escape replaces &, ", < and > with HTML entities.
func escape(v any) string {
	return escapeHTML(toString(v))
}

// strBefore returns everything before the last occurrence of substr.
func strBefore(s, substr any) string {
	str, sub := toString(s), toString(substr)
	i := strings.LastIndex(str, sub)
	if i < 0 {
		return ""
	}
	return str[:i]
}

// strAfter returns everything after the last occurrence of substr.
func strAfter(s, substr any) string {
	str, sub := toString(s), toString(substr)
	i := strings.LastIndex(str, sub)
	if i < 0 {
		return str
	}
	return str[i+len(sub):]
}

// remove deletes every occurrence of substr.
func remove(s, substr any) string {
	return strings.ReplaceAll(toString(s), toString(substr), "")
}

// titleCase trims s and upper-cases its first letter.
func titleCase(s any) string {
	return upperFirst(strings.TrimSpace(toString(s)))
}

// capitalize upper-cases the first letter of every space-separated word.
func capitalize(s any) string {
	words := strings.Split(toString(s), " ")
	for i, w := range words {
		words[i] = upperFirst(w)
	}
	return strings.Join(words, " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// glue joins items with sep, using last between the final two when given.
func glue(items any, sep any, last ...any) string {
	parts := toSlice(items)
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = toString(p)
	}
	if len(strs) <= 1 {
		return strings.Join(strs, "")
	}
	lastSep := toString(sep)
	if len(last) > 0 && toString(last[0]) != "" {
		lastSep = toString(last[0])
	}
	return strings.Join(strs[:len(strs)-1], toString(sep)) + lastSep + strs[len(strs)-1]
}

// roundTo rounds n to the given decimal places (default 2).
func roundTo(n any, decimals ...any) float64 {
	f, _ := toFloat(n)
	places := 2
	if len(decimals) > 0 {
		places = toInt(decimals[0])
	}
	pow := math.Pow(10, float64(places))
	return math.Round(f*pow) / pow
}

// url builds an absolute URL for route from request data holding "host" and,
// optionally, a truthy "secure".
func url(req any, route any) string {
	r := toString(route)
	if !strings.HasPrefix(r, "/") {
		r = "/" + r
	}
	fields, err := contextFields(req)
	if err != nil {
		return r
	}
	host := toString(fields["host"])
	if host == "" {
		return r
	}
	scheme := "http"
	if truthy(fields["secure"]) {
		scheme = "https"
	}
	return scheme + "://" + host + r
}
