package tundra

import (
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Executable is a Program bound to a helper set, ready to render. It holds no
// per-render state and may be executed concurrently.
type Executable struct {
	key     string
	scoping bool
	helpers map[string]any
	body    []instr
}

// Bind compiles every embedded expression of p and links its control blocks.
// Syntax errors and unbalanced blocks are returned as a *RenderError.
func Bind(p *Program, helpers map[string]any) (*Executable, error) {
	body, err := link(p.Nodes)
	if err != nil {
		return nil, &RenderError{Key: p.Key, Err: err}
	}
	hs := make(map[string]any, len(helpers))
	for name, fn := range helpers {
		hs[name] = fn
	}
	return &Executable{key: p.Key, scoping: p.Scoping, helpers: hs, body: body}, nil
}

// Key returns the identity of the program this executable was bound from.
func (x *Executable) Key() string { return x.key }

// Execute renders the program against data, which must be nil, a map with
// string keys, or a struct.
func (x *Executable) Execute(data any) (string, error) {
	var sb strings.Builder
	if err := x.run(data, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ExecuteTo renders into w. Nothing is written when rendering fails.
func (x *Executable) ExecuteTo(w io.Writer, data any) error {
	var sb strings.Builder
	if err := x.run(data, &sb); err != nil {
		return err
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (x *Executable) run(data any, sb *strings.Builder) error {
	s, err := newScope(data, x.helpers, x.scoping)
	if err != nil {
		return &RenderError{Key: x.key, Err: err}
	}
	if err := runBody(x.body, s, sb); err != nil {
		return &RenderError{Key: x.key, Err: err}
	}
	return nil
}

type instr interface {
	exec(s *scope, sb *strings.Builder) error
}

func runBody(body []instr, s *scope, sb *strings.Builder) error {
	for _, in := range body {
		if err := in.exec(s, sb); err != nil {
			return err
		}
	}
	return nil
}

type literalInstr string

func (l literalInstr) exec(_ *scope, sb *strings.Builder) error {
	sb.WriteString(string(l))
	return nil
}

type printInstr struct {
	value  *expression
	escape bool
}

func (p *printInstr) exec(s *scope, sb *strings.Builder) error {
	v, err := p.value.eval(s)
	if err != nil {
		return err
	}
	if p.escape {
		sb.WriteString(escapeHTML(toString(v)))
	} else {
		sb.WriteString(toString(v))
	}
	return nil
}

type evalInstr struct {
	value *expression
}

func (e *evalInstr) exec(s *scope, _ *strings.Builder) error {
	_, err := e.value.eval(s)
	return err
}

// assignInstr implements let and plain or compound assignment.
type assignInstr struct {
	name  string
	op    string
	value *expression
}

func (a *assignInstr) exec(s *scope, _ *strings.Builder) error {
	v, err := a.value.eval(s)
	if err != nil {
		return err
	}
	if a.op == "" {
		s.vars[a.name] = v
		return nil
	}
	cur, ok := s.vars[a.name]
	if !ok {
		return fmt.Errorf("undefined name %q in compound assignment", a.name)
	}
	next, err := arith(a.op, cur, v)
	if err != nil {
		return fmt.Errorf("assigning %s: %w", a.name, err)
	}
	s.vars[a.name] = next
	return nil
}

type branch struct {
	cond *expression
	body []instr
}

type ifInstr struct {
	branches  []*branch
	otherwise []instr
}

func (in *ifInstr) exec(s *scope, sb *strings.Builder) error {
	for _, b := range in.branches {
		v, err := b.cond.eval(s)
		if err != nil {
			return err
		}
		if truthy(v) {
			return runBody(b.body, s, sb)
		}
	}
	return runBody(in.otherwise, s, sb)
}

type whileInstr struct {
	cond *expression
	body []instr
}

func (in *whileInstr) exec(s *scope, sb *strings.Builder) error {
	for {
		v, err := in.cond.eval(s)
		if err != nil {
			return err
		}
		if !truthy(v) {
			return nil
		}
		if err := runBody(in.body, s, sb); err != nil {
			return err
		}
	}
}

// forInstr iterates slices, arrays, maps (in key order), strings and counts.
// With one name a slice yields values and a map yields keys; with two names
// both yield index or key first.
type forInstr struct {
	first  string
	second string
	iter   *expression
	body   []instr
}

func (in *forInstr) exec(s *scope, sb *strings.Builder) error {
	v, err := in.iter.eval(s)
	if err != nil {
		return err
	}
	restore := s.save(in.first, in.second)
	defer restore()

	return iterate(v, func(k, val any) error {
		if in.second == "" {
			s.vars[in.first] = val
		} else {
			s.vars[in.first] = k
			s.vars[in.second] = val
		}
		return runBody(in.body, s, sb)
	}, in.second == "")
}

func iterate(v any, fn func(k, val any) error, mapKeysOnly bool) error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := fn(i, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			val := rv.MapIndex(k).Interface()
			if mapKeysOnly {
				val = k.Interface()
			}
			if err := fn(k.Interface(), val); err != nil {
				return err
			}
		}
	case reflect.String:
		i := 0
		for _, r := range rv.String() {
			if err := fn(i, string(r)); err != nil {
				return err
			}
			i++
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		for i := int64(0); i < rv.Int(); i++ {
			if err := fn(int(i), int(i)); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		n := rv.Float()
		if n != math.Trunc(n) {
			return fmt.Errorf("cannot iterate over non-integer %v", n)
		}
		for i := 0; i < int(n); i++ {
			if err := fn(i, i); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot iterate over %T", v)
	}
	return nil
}

// truthy follows the usual scripting rules: nil, false, zero, the empty
// string and empty collections are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// toString formats a value for output. nil renders as nothing.
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}
	return fmt.Sprint(v)
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
