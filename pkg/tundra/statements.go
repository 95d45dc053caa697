package tundra

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

var (
	reFor    = regexp.MustCompile(`^for\s+([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))?\s+in\s+(.+)$`)
	reLet    = regexp.MustCompile(`^let\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
	reAssign = regexp.MustCompile(`^([A-Za-z_]\w*)\s*([-+*/]?)=\s*([^=].*)$`)
)

// expression is an embedded expression compiled once per bind.
type expression struct {
	src    string
	offset int
	prog   *vm.Program
	names  []string // free identifiers that must resolve in the scope
}

func compileExpression(src string, offset int) (*expression, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression at offset %d", offset)
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing %q at offset %d: %w", src, offset, err)
	}
	prog, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compiling %q at offset %d: %w", src, offset, err)
	}
	return &expression{src: src, offset: offset, prog: prog, names: freeNames(tree.Node)}, nil
}

func (e *expression) eval(s *scope) (any, error) {
	for _, name := range e.names {
		if _, ok := s.vars[name]; !ok {
			return nil, fmt.Errorf("undefined name %q in %q at offset %d", name, e.src, e.offset)
		}
	}
	out, err := expr.Run(e.prog, s.vars)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q at offset %d: %w", e.src, e.offset, err)
	}
	return out, nil
}

// nameCollector gathers identifiers, minus the ones declared by let.
type nameCollector struct {
	seen     map[string]bool
	names    []string
	declared map[string]bool
}

func (c *nameCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if strings.HasPrefix(n.Value, "$") || c.seen[n.Value] {
			return
		}
		c.seen[n.Value] = true
		c.names = append(c.names, n.Value)
	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	}
}

func freeNames(root ast.Node) []string {
	c := &nameCollector{seen: map[string]bool{}, declared: map[string]bool{}}
	ast.Walk(&root, c)
	out := c.names[:0]
	for _, name := range c.names {
		if !c.declared[name] {
			out = append(out, name)
		}
	}
	return out
}

// compileStatement builds the instruction for an inline code tag.
func compileStatement(src string, offset int) (instr, error) {
	if m := reLet.FindStringSubmatch(src); m != nil {
		ex, err := compileExpression(m[2], offset)
		if err != nil {
			return nil, err
		}
		return &assignInstr{name: m[1], value: ex}, nil
	}
	if m := reAssign.FindStringSubmatch(src); m != nil {
		ex, err := compileExpression(m[3], offset)
		if err != nil {
			return nil, err
		}
		return &assignInstr{name: m[1], op: m[2], value: ex}, nil
	}
	ex, err := compileExpression(src, offset)
	if err != nil {
		return nil, err
	}
	return &evalInstr{value: ex}, nil
}

// blockFrame is an open control block while linking.
type blockFrame struct {
	head   string
	offset int
	cond   *ifInstr
	body   *[]instr
	closed bool // an else branch was opened
}

// link turns the flat node list into an instruction tree. Unbalanced or
// misplaced block tags are reported here.
func link(nodes []Node) ([]instr, error) {
	var root []instr
	var stack []*blockFrame

	target := func() *[]instr {
		if len(stack) == 0 {
			return &root
		}
		return stack[len(stack)-1].body
	}

	for _, n := range nodes {
		switch n.Op {
		case OpLiteral:
			if n.Text != "" {
				*target() = append(*target(), literalInstr(n.Text))
			}
		case OpEscaped, OpRaw:
			ex, err := compileExpression(n.Text, n.Offset)
			if err != nil {
				return nil, err
			}
			*target() = append(*target(), &printInstr{value: ex, escape: n.Op == OpEscaped})
		case OpStatement:
			in, err := compileStatement(n.Text, n.Offset)
			if err != nil {
				return nil, err
			}
			*target() = append(*target(), in)
		case OpClose:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected end at offset %d", n.Offset)
			}
			stack = stack[:len(stack)-1]
		case OpOpen:
			frame, err := openBlock(n, stack, target())
			if err != nil {
				return nil, err
			}
			if frame != nil {
				stack = append(stack, frame)
			}
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, fmt.Errorf("unclosed %s block opened at offset %d", top.head, top.offset)
	}
	return root, nil
}

// openBlock handles a block-opening tag. It returns the frame to push, or nil
// when the tag continues the current if block.
func openBlock(n Node, stack []*blockFrame, into *[]instr) (*blockFrame, error) {
	head := n.Text
	keyword, rest, _ := strings.Cut(head, " ")
	rest = strings.TrimSpace(rest)

	if keyword == "else" && strings.HasPrefix(rest, "if ") {
		keyword, rest = "elif", strings.TrimSpace(strings.TrimPrefix(rest, "if "))
	}

	switch keyword {
	case "if":
		cond, err := compileExpression(rest, n.Offset)
		if err != nil {
			return nil, err
		}
		in := &ifInstr{branches: []*branch{{cond: cond}}}
		*into = append(*into, in)
		return &blockFrame{head: "if", offset: n.Offset, cond: in, body: &in.branches[0].body}, nil

	case "elif", "else":
		if len(stack) == 0 || stack[len(stack)-1].cond == nil {
			return nil, fmt.Errorf("%s without if at offset %d", keyword, n.Offset)
		}
		frame := stack[len(stack)-1]
		if frame.closed {
			return nil, fmt.Errorf("%s after else at offset %d", keyword, n.Offset)
		}
		if keyword == "else" {
			if rest != "" {
				return nil, fmt.Errorf("unexpected %q after else at offset %d", rest, n.Offset)
			}
			frame.closed = true
			frame.body = &frame.cond.otherwise
			return nil, nil
		}
		cond, err := compileExpression(rest, n.Offset)
		if err != nil {
			return nil, err
		}
		b := &branch{cond: cond}
		frame.cond.branches = append(frame.cond.branches, b)
		frame.body = &b.body
		return nil, nil

	case "for":
		m := reFor.FindStringSubmatch(head)
		if m == nil {
			return nil, fmt.Errorf("malformed for %q at offset %d, want: for NAME[, NAME] in EXPR", head, n.Offset)
		}
		iter, err := compileExpression(m[3], n.Offset)
		if err != nil {
			return nil, err
		}
		in := &forInstr{first: m[1], second: m[2], iter: iter}
		*into = append(*into, in)
		return &blockFrame{head: "for", offset: n.Offset, body: &in.body}, nil

	case "while":
		cond, err := compileExpression(rest, n.Offset)
		if err != nil {
			return nil, err
		}
		in := &whileInstr{cond: cond}
		*into = append(*into, in)
		return &blockFrame{head: "while", offset: n.Offset, body: &in.body}, nil
	}
	return nil, fmt.Errorf("unsupported block statement %q at offset %d", head, n.Offset)
}
