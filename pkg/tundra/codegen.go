package tundra

import (
	"fmt"
	"strings"
)

// Op is the instruction kind of a program node.
type Op string

const (
	OpLiteral   Op = "literal"   // append Text verbatim
	OpEscaped   Op = "escaped"   // append HTML-escaped value of Text
	OpRaw       Op = "raw"       // append value of Text unescaped
	OpOpen      Op = "open"      // open a control block headed by Text
	OpClose     Op = "close"     // close the innermost control block
	OpStatement Op = "statement" // run Text as an inline statement
)

// Node is one instruction of the intermediate representation.
type Node struct {
	Op     Op     `json:"op"`
	Text   string `json:"text,omitempty"`
	Offset int    `json:"offset"`
}

// Program is a compiled template: an ordered list of instructions that Bind
// turns into an Executable. It is immutable once stored in a cache.
type Program struct {
	Key     string `json:"key"`
	Scoping bool   `json:"scoping"`
	Nodes   []Node `json:"nodes"`

	// Problems holds the resolution reports of the compile that produced the
	// program. They are not persisted by cache backends.
	Problems []error `json:"-"`
}

// Generate converts classified segments into a Program. Block balance is not
// checked here; it surfaces when the program is bound.
func Generate(key string, g *Grammar, segs []Segment, scoping bool) *Program {
	p := &Program{Key: key, Scoping: scoping, Nodes: make([]Node, 0, len(segs))}
	for _, seg := range segs {
		switch seg.Kind {
		case KindComment:
			continue
		case KindLiteral:
			p.Nodes = append(p.Nodes, Node{Op: OpLiteral, Text: seg.Text, Offset: seg.Offset})
		case KindPrint:
			p.Nodes = append(p.Nodes, Node{Op: OpEscaped, Text: seg.Body, Offset: seg.Offset})
		case KindPrintPlain:
			p.Nodes = append(p.Nodes, Node{Op: OpRaw, Text: seg.Body, Offset: seg.Offset})
		case KindCodeBegin:
			p.Nodes = append(p.Nodes, Node{Op: OpOpen, Text: seg.Body, Offset: seg.Offset})
		case KindCodeEnd:
			p.Nodes = append(p.Nodes, Node{Op: OpClose, Offset: seg.Offset})
		case KindCode:
			p.Nodes = append(p.Nodes, Node{Op: OpStatement, Text: seg.Body, Offset: seg.Offset})
		}
	}

	// escape markers are only meaningful in literal text
	for i := range p.Nodes {
		if p.Nodes[i].Op == OpLiteral {
			p.Nodes[i].Text = g.unescape.Replace(p.Nodes[i].Text)
		}
	}
	return p
}

// String returns a readable listing of the program.
func (p *Program) String() string {
	var sb strings.Builder
	indent := 0
	line := func(format string, args ...any) {
		sb.WriteString(strings.Repeat("  ", indent))
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	if p.Scoping {
		line("scope data")
	} else {
		line("scope data, fields")
	}
	line("buf = []")
	for _, n := range p.Nodes {
		switch n.Op {
		case OpLiteral:
			line("append %q", n.Text)
		case OpEscaped:
			line("append escape(%s)", n.Text)
		case OpRaw:
			line("append %s", n.Text)
		case OpOpen:
			line("%s {", n.Text)
			indent++
		case OpClose:
			if indent > 0 {
				indent--
			}
			line("}")
		case OpStatement:
			line("%s", n.Text)
		}
	}
	line("return join(buf)")
	return sb.String()
}
