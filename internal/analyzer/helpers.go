package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

func posOf(n *parsetree.Node) parsetree.Pos {
	if n == nil {
		return parsetree.Pos{}
	}
	return n.Pos
}

func errAt(n *parsetree.Node, code diagnostics.ErrorCode, format string, args ...interface{}) error {
	return diagnostics.NewError(code, posOf(n), fmt.Sprintf(format, args...))
}

// at positions err at n unless it already carries a position.
func at(err error, n *parsetree.Node) error {
	return diagnostics.At(err, posOf(n))
}

func (an *Analyzer) add(n ast.Node) ast.NodeID { return an.arena.Add(n) }

func (an *Analyzer) typeOf(id ast.NodeID) typesystem.Type { return an.arena.Type(id) }

// base builds the common part of a node.
func base(n *parsetree.Node, t typesystem.Type) ast.Base {
	return ast.Base{At: posOf(n), Type: t}
}

// ----------------------------------------------------------------------------
// Children
// ----------------------------------------------------------------------------

// operands returns exactly count children of n.
func operands(n *parsetree.Node, count int) ([]*parsetree.Node, error) {
	if len(n.Children) != count {
		return nil, errAt(n, diagnostics.ErrS001, "'%s' needs %d operands, got %d", n.Kind, count, len(n.Children))
	}
	return n.Children, nil
}

// wrapped returns the single expression inside a wrapper node such as
// default or condition.
func wrapped(n *parsetree.Node) (*parsetree.Node, error) {
	if len(n.Children) != 1 {
		return nil, errAt(n, diagnostics.ErrS001, "'%s' needs one expression", n.Kind)
	}
	return n.Children[0], nil
}

// exprChild returns the first child that is not one of the given marker
// kinds.
func exprChild(n *parsetree.Node, markers ...string) *parsetree.Node {
next:
	for _, c := range n.Children {
		for _, m := range markers {
			if c.Kind == m {
				continue next
			}
		}
		return c
	}
	return nil
}

// ----------------------------------------------------------------------------
// Types
// ----------------------------------------------------------------------------

// parseType reads a type node. Enum arrays are limited to one dimension.
func (an *Analyzer) parseType(n *parsetree.Node) (typesystem.Type, error) {
	if n == nil || n.Kind != parsetree.KindType {
		return typesystem.Type{}, errAt(n, diagnostics.ErrS001, "Missing type")
	}
	t, err := typesystem.ParsePortType(n.Text, an.cat)
	if err != nil {
		return typesystem.Type{}, at(err, n)
	}
	if t.ArrayDim() > 1 {
		if _, ok := an.cat.Enum(t.Innermost().Tag()); ok {
			return typesystem.Type{}, errAt(n, diagnostics.ErrT001, "Enum arrays of more than one dimension are not supported: '%s'", t)
		}
	}
	return t, nil
}

// typeChild parses the type child of n.
func (an *Analyzer) typeChild(n *parsetree.Node) (typesystem.Type, error) {
	t := n.Child(parsetree.KindType)
	if t == nil {
		return typesystem.Type{}, errAt(n, diagnostics.ErrS001, "Missing type for '%s'", n.Text)
	}
	return an.parseType(t)
}

// validateCast checks that a value of type value may be stored into
// target without an explicit conversion. port names the receiving port in
// messages.
func validateCast(n *parsetree.Node, value, target typesystem.Type, port string) error {
	if target.IsAuto() || target.IsZero() {
		return nil
	}
	value = value.Unwrap()
	compat := typesystem.Compatibility(target, value)
	if compat == 0 {
		return nil
	}
	if port != "" {
		port = " [" + port + "]"
	}
	switch {
	case compat.Has(typesystem.ArrayDimMismatch):
		return errAt(n, diagnostics.ErrT004, "Array dimension missmatch%s: '%s' <> '%s'", port, value, target)
	case compat.Has(typesystem.IncompatibleTypes):
		return errAt(n, diagnostics.ErrT001, "Incompatible type assignment%s: '%s' -> '%s'", port, value, target)
	case compat.Has(typesystem.NumericLossyConversion):
		return errAt(n, diagnostics.ErrT002, "Use explicit cast for lossy conversion%s: '%s' -> '%s'", port, value, target)
	case compat.Has(typesystem.MatrixDimIncompatible):
		return errAt(n, diagnostics.ErrT001, "Incompatible matrix dimensions%s: '%s' -> '%s'", port, value, target)
	}
	return nil
}

// bundle builds the node type of a call or scope from its outputs.
func bundle(names []string, types []typesystem.Type) (typesystem.Type, error) {
	ports := make([]typesystem.Port, len(names))
	for i, name := range names {
		ports[i] = typesystem.Port{Name: name, Type: types[i]}
	}
	return typesystem.NewBundle(ports)
}

func sameTypes(a, b []typesystem.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func tags(types []typesystem.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.Tag()
	}
	return out
}

func quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = "'" + n + "'"
	}
	return "[" + strings.Join(q, ", ") + "]"
}

// ----------------------------------------------------------------------------
// Terminal flags
// ----------------------------------------------------------------------------

var terminalOrder = map[rune]int{'F': 0, 'P': 1, 'D': 2}

// terminalFlags reads the terminal child of n: any combination of F, P
// and D, returned deduplicated in that order.
func terminalFlags(n *parsetree.Node) (string, error) {
	t := n.Child(parsetree.KindTerminal)
	if t == nil {
		return "", nil
	}
	text := strings.ToUpper(strings.Trim(t.Text, "<> "))
	seen := make(map[rune]bool)
	for _, r := range text {
		if _, ok := terminalOrder[r]; !ok {
			return "", errAt(t, diagnostics.ErrT001, "Invalid terminal flags. Use any combination of F, P, and D")
		}
		seen[r] = true
	}
	flags := make([]rune, 0, len(seen))
	for r := range seen {
		flags = append(flags, r)
	}
	sort.Slice(flags, func(i, j int) bool { return terminalOrder[flags[i]] < terminalOrder[flags[j]] })
	return string(flags), nil
}

// ----------------------------------------------------------------------------
// Frames
// ----------------------------------------------------------------------------

// inFrame runs fn in a fresh static frame.
func (an *Analyzer) inFrame(fn func() error) error {
	an.mem.Push()
	err := fn()
	if perr := an.mem.Pop(); err == nil {
		err = perr
	}
	return err
}

// inLoop runs fn with the feedback lock held.
func (an *Analyzer) inLoop(fn func() error) error {
	an.loopDepth++
	defer func() { an.loopDepth-- }()
	return fn()
}
