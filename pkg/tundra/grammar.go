package tundra

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TagKind classifies a tag recognized by the grammar.
type TagKind string

const (
	KindLiteral    TagKind = "literal"
	KindComment    TagKind = "comment"
	KindPrint      TagKind = "print"
	KindPrintPlain TagKind = "print_plain"
	KindCode       TagKind = "code"
	KindCodeBegin  TagKind = "code_begin"
	KindCodeEnd    TagKind = "code_end"
	KindBlock      TagKind = "block"
	KindEndBlock   TagKind = "endblock"
	KindParent     TagKind = "parent"
	KindSpread     TagKind = "spread"
	KindEndSpread  TagKind = "endspread"
	KindExtends    TagKind = "extends"
	KindRequire    TagKind = "require"
	KindRaw        TagKind = "raw"
)

// configurable lists the kinds callers may redefine through Configure.
var configurable = map[TagKind]bool{
	KindPrint:      true,
	KindPrintPlain: true,
	KindCode:       true,
	KindRaw:        true,
	KindComment:    true,
}

// scanOrder is the priority used when two openers start at the same offset.
var scanOrder = []TagKind{KindComment, KindCode, KindPrint, KindPrintPlain}

// Structural openers are fixed, only the escape marker in front of them varies.
var structuralOpeners = []string{"{[", "@extends(", "@require(", "@spread("}

// TagDefinition is the delimiter pair of one tag kind.
type TagDefinition struct {
	Kind  TagKind `json:"kind"`
	Open  string  `json:"open"`
	Close string  `json:"close"`
}

// Grammar owns the delimiter pairs per tag kind and the matchers derived from
// them. It is not safe for concurrent mutation; the Engine guards it.
type Grammar struct {
	defs map[TagKind]TagDefinition

	scan     []TagDefinition
	unescape *strings.Replacer

	reBlock       *regexp.Regexp
	reParent      *regexp.Regexp
	reSpreadBlock *regexp.Regexp
	reSpreadRef   *regexp.Regexp
	reExtends     *regexp.Regexp
	reRequire     *regexp.Regexp
}

// NewGrammar returns a Grammar holding the default delimiters.
func NewGrammar() *Grammar {
	g := &Grammar{defs: map[TagKind]TagDefinition{
		KindComment:    {Kind: KindComment, Open: "{#", Close: "#}"},
		KindPrint:      {Kind: KindPrint, Open: "{{", Close: "}}"},
		KindPrintPlain: {Kind: KindPrintPlain, Open: "{!", Close: "!}"},
		KindCode:       {Kind: KindCode, Open: "{%", Close: "%}"},
		KindRaw:        {Kind: KindRaw, Open: "~"},
		KindBlock:      {Kind: KindBlock, Open: "{[", Close: "]}"},
		KindParent:     {Kind: KindParent, Open: "{[", Close: "]}"},
		KindSpread:     {Kind: KindSpread, Open: "{[", Close: "]}"},
		KindExtends:    {Kind: KindExtends, Open: "@extends(", Close: ")"},
		KindRequire:    {Kind: KindRequire, Open: "@require(", Close: ")"},
	}}
	g.derive()
	return g
}

// Configure replaces the delimiters of one configurable kind and regenerates
// every derived matcher. For the raw kind, open is the escape marker and close
// is ignored. On error the previous configuration is kept.
func (g *Grammar) Configure(kind, open, close string) error {
	k := TagKind(kind)
	if !configurable[k] {
		return &ConfigurationError{Kind: kind, Message: "unknown or non-configurable tag kind"}
	}
	if open == "" {
		return &ConfigurationError{Kind: kind, Message: "opening delimiter must not be empty"}
	}
	if k == KindRaw {
		close = ""
	} else if close == "" {
		return &ConfigurationError{Kind: kind, Message: "closing delimiter must not be empty"}
	}
	for _, other := range scanOrder {
		if other != k && g.defs[other].Open == open {
			return &ConfigurationError{Kind: kind, Message: fmt.Sprintf("opening delimiter %q already used by %s", open, other)}
		}
	}

	next := make(map[TagKind]TagDefinition, len(g.defs))
	for key, def := range g.defs {
		next[key] = def
	}
	next[k] = TagDefinition{Kind: k, Open: open, Close: close}

	g.defs = next
	g.derive()
	return nil
}

// Definition returns the current definition of kind.
func (g *Grammar) Definition(kind TagKind) (TagDefinition, bool) {
	def, ok := g.defs[kind]
	return def, ok
}

// Definitions returns every definition sorted by kind.
func (g *Grammar) Definitions() []TagDefinition {
	out := make([]TagDefinition, 0, len(g.defs))
	for _, def := range g.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// EscapeMarker returns the marker that suppresses the next opener.
func (g *Grammar) EscapeMarker() string {
	return g.defs[KindRaw].Open
}

// Clone returns an independent copy, used to snapshot the grammar for one compile.
func (g *Grammar) Clone() *Grammar {
	c := &Grammar{defs: make(map[TagKind]TagDefinition, len(g.defs))}
	for k, def := range g.defs {
		c.defs[k] = def
	}
	c.derive()
	return c
}

func (g *Grammar) derive() {
	g.scan = make([]TagDefinition, 0, len(scanOrder))
	for _, k := range scanOrder {
		g.scan = append(g.scan, g.defs[k])
	}

	marker := g.EscapeMarker()
	pairs := make([]string, 0, 2*(len(g.scan)+len(structuralOpeners)))
	for _, def := range g.scan {
		pairs = append(pairs, marker+def.Open, def.Open)
	}
	for _, op := range structuralOpeners {
		pairs = append(pairs, marker+op, op)
	}
	g.unescape = strings.NewReplacer(pairs...)

	esc := "(" + regexp.QuoteMeta(marker) + ")?"
	g.reBlock = regexp.MustCompile(esc + `\{\[\s*block\s+([^\]\}]*?)\s*\]\}([\s\S]*?)\{\[\s*endblock\s*\]\}`)
	g.reParent = regexp.MustCompile(esc + `\{\[\s*parent\s+([^\]\}]*?)\s*\]\}`)
	g.reSpreadBlock = regexp.MustCompile(esc + `\{\[\s*spread\s+([^\]\}]*?)\s*\]\}([\s\S]*?)\{\[\s*endspread\s*\]\}`)
	g.reSpreadRef = regexp.MustCompile(esc + `@spread\(([^)\n]*)\)`)
	g.reExtends = regexp.MustCompile(esc + `@extends\(([^)\n]*)\)`)
	g.reRequire = regexp.MustCompile(esc + `@require\(([^)\n]*)\)`)
}

// replaceDirective rewrites every non-escaped match of re in s with the result
// of fn, which receives the submatches after the escape group.
func replaceDirective(re *regexp.Regexp, s string, fn func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		last = m[1]
		if m[2] != -1 {
			sb.WriteString(s[m[0]:m[1]])
			continue
		}
		groups := make([]string, 0, len(m)/2-2)
		for i := 4; i < len(m); i += 2 {
			if m[i] == -1 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, s[m[i]:m[i+1]])
		}
		sb.WriteString(fn(groups))
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// findDirective returns the submatches of the first non-escaped match of re
// in s whose first group, trimmed, equals name.
func findDirective(re *regexp.Regexp, s, name string) ([]string, bool) {
	for _, m := range re.FindAllStringSubmatchIndex(s, -1) {
		if m[2] != -1 || m[4] == -1 {
			continue
		}
		if strings.TrimSpace(s[m[4]:m[5]]) != name {
			continue
		}
		groups := make([]string, 0, len(m)/2-2)
		for i := 4; i < len(m); i += 2 {
			if m[i] == -1 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, s[m[i]:m[i+1]])
		}
		return groups, true
	}
	return nil, false
}
