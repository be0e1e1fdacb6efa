package signal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kestrelsec/kestrel/event"
)

// MacroPrefix marks a string parameter as a macro expression.
const MacroPrefix = "#MACRO#"

// Param is a compiled per-edge parameter template, evaluated against the
// signal context at trigger time.
//
// Three forms exist: a literal scalar, a single macro, and a list whose
// elements mix literals and macros. Raw returns the template as written in
// the rule description; the sharing detector compares edges by raw value.
type Param interface {
	Eval(context any) (any, error)
	Raw() any
}

// MacroError reports a malformed macro expression or an evaluation that
// does not fit the current context shape.
type MacroError struct {
	Expr    string
	Message string
}

func (e *MacroError) Error() string {
	return fmt.Sprintf("macro %q: %s", e.Expr, e.Message)
}

// literal is a parameter passed through unchanged.
type literal struct{ v any }

// Literal wraps a fixed value as a Param.
func Literal(v any) Param { return literal{v: v} }

func (l literal) Eval(any) (any, error) { return l.v, nil }
func (l literal) Raw() any              { return l.v }

// listParam evaluates each element against the context.
type listParam struct {
	raw   []any
	elems []Param
}

func (p listParam) Eval(context any) (any, error) {
	out := make([]any, len(p.elems))
	for i, e := range p.elems {
		v, err := e.Eval(context)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p listParam) Raw() any { return p.raw }

// macroExpr is a parsed macro. Property ids are resolved once, at parse
// time, through the meta event; evaluation is a pure path walk.
type macroExpr struct {
	src      string
	path     []int // Contexts[...] indices, empty for Context.Event form
	rootList bool  // Contexts form vs Context.Event form
	propName string
	propID   int // -1 when the expression yields the leaf itself
}

func (m *macroExpr) Raw() any { return MacroPrefix + m.src }

func (m *macroExpr) Eval(context any) (any, error) {
	cur := context
	if m.rootList {
		for _, idx := range m.path {
			list, ok := cur.([]any)
			if !ok {
				return nil, &MacroError{Expr: m.src, Message: "context is not a list"}
			}
			if idx < 0 || idx >= len(list) {
				return nil, &MacroError{Expr: m.src,
					Message: fmt.Sprintf("index %d out of range (len %d)", idx, len(list))}
			}
			cur = list[idx]
		}
		if m.propID < 0 {
			return cur, nil
		}
	}
	ev, ok := cur.(event.Event)
	if !ok {
		return nil, &MacroError{Expr: m.src, Message: "context is not an event"}
	}
	return ev.Get(m.propID), nil
}

// Compile turns a raw rule-description parameter into a Param. Macros are
// parsed and their property names resolved against meta; a malformed macro
// or unknown property fails here, at rule load time.
func Compile(raw any, meta event.Event) (Param, error) {
	switch v := raw.(type) {
	case string:
		if expr, ok := strings.CutPrefix(v, MacroPrefix); ok {
			return parseMacro(expr, meta)
		}
		return Literal(v), nil
	case []any:
		elems := make([]Param, len(v))
		for i, item := range v {
			p, err := Compile(item, meta)
			if err != nil {
				return nil, err
			}
			elems[i] = p
		}
		return listParam{raw: v, elems: elems}, nil
	default:
		return Literal(v), nil
	}
}

func parseMacro(expr string, meta event.Event) (Param, error) {
	if rest, ok := strings.CutPrefix(expr, "Context.Event."); ok {
		id, err := resolveProperty(expr, rest, meta)
		if err != nil {
			return nil, err
		}
		return &macroExpr{src: expr, propName: rest, propID: id}, nil
	}

	rest, ok := strings.CutPrefix(expr, "Contexts")
	if !ok {
		return nil, &MacroError{Expr: expr,
			Message: "must start with Context.Event. or Contexts["}
	}

	m := &macroExpr{src: expr, rootList: true, propID: -1}
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, &MacroError{Expr: expr, Message: "unterminated index"}
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil || idx < 0 {
			return nil, &MacroError{Expr: expr,
				Message: fmt.Sprintf("invalid index %q", rest[1:end])}
		}
		m.path = append(m.path, idx)
		rest = rest[end+1:]
	}
	if len(m.path) == 0 {
		return nil, &MacroError{Expr: expr, Message: "Contexts requires at least one index"}
	}

	if rest == "" {
		return m, nil
	}
	prop, ok := strings.CutPrefix(rest, ".Event.")
	if !ok {
		return nil, &MacroError{Expr: expr,
			Message: fmt.Sprintf("unexpected trailing %q", rest)}
	}
	id, err := resolveProperty(expr, prop, meta)
	if err != nil {
		return nil, err
	}
	m.propName = prop
	m.propID = id
	return m, nil
}

func resolveProperty(expr, name string, meta event.Event) (int, error) {
	if name == "" {
		return -1, &MacroError{Expr: expr, Message: "empty property name"}
	}
	id := meta.PropertyID(name)
	if id < 0 {
		return -1, &MacroError{Expr: expr,
			Message: fmt.Sprintf("unknown event property %q", name)}
	}
	return id, nil
}
