package analyzer

import (
	"strconv"
	"strings"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

var (
	boolType   = typesystem.Of(typesystem.Bool)
	longType   = typesystem.Of(typesystem.Long)
	stringType = typesystem.Of(typesystem.String)
	objectType = typesystem.Of(typesystem.Object)
)

// expr builds an expression node.
func (an *Analyzer) expr(n *parsetree.Node) (ast.NodeID, error) {
	if n == nil {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Missing expression")
	}
	switch n.Kind {
	case parsetree.KindNumber:
		return an.number(n)
	case parsetree.KindString:
		return an.add(&ast.Value{Base: base(n, stringType), Literal: n.Text}), nil
	case parsetree.KindBool:
		return an.boolean(n)
	case parsetree.KindVariable:
		return an.variable(n)
	case parsetree.KindBinary:
		return an.binary(n)
	case parsetree.KindCompare:
		return an.compare(n)
	case parsetree.KindLogic:
		return an.logic(n)
	case parsetree.KindUnary:
		return an.unary(n)
	case parsetree.KindCall:
		return an.call(n)
	case parsetree.KindArray:
		return an.array(n)
	case parsetree.KindEmptyArray:
		return an.emptyArray(n)
	case parsetree.KindVector:
		return an.vector(n)
	case parsetree.KindMatrix:
		return an.matrix(n)
	case parsetree.KindObject:
		return an.object(n)
	case parsetree.KindEnum:
		return an.enum(n)
	case parsetree.KindAccess:
		return an.access(n)
	case parsetree.KindPortAccess:
		return an.portAccess(n)
	case parsetree.KindScope:
		return an.scopeExpr(n)
	case parsetree.KindForEach, parsetree.KindIterate, parsetree.KindDoWhile:
		return an.loop(n)
	}
	return ast.NoNode, errAt(n, diagnostics.ErrS001, "Unexpected '%s' in expression", n.Kind)
}

// ----------------------------------------------------------------------------
// Literals
// ----------------------------------------------------------------------------

func isSuffixLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// number reads a numeric literal with an optional type suffix: 1, 2.5,
// 3ul, 4f. Unsuffixed integers are int, unsuffixed fractions float.
func (an *Analyzer) number(n *parsetree.Node) (ast.NodeID, error) {
	text := n.Text
	i := len(text)
	for i > 0 && isSuffixLetter(text[i-1]) {
		i--
	}
	digits, suffix := text[:i], strings.ToLower(text[i:])
	if digits == "" {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Invalid number '%s'", text)
	}
	fraction := strings.ContainsAny(digits, ".eE")

	var t typesystem.Type
	switch {
	case suffix != "":
		hint, err := typesystem.LiteralHint(suffix)
		if err != nil {
			return ast.NoNode, at(err, n)
		}
		t = hint
	case fraction:
		t = typesystem.Of(typesystem.Float)
	default:
		t = typesystem.Of(typesystem.Int)
	}

	switch {
	case t.IsBool():
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return ast.NoNode, errAt(n, diagnostics.ErrS001, "Invalid number '%s'", text)
		}
		digits = strconv.FormatBool(v != 0)
	case t.IsFraction():
		if _, err := strconv.ParseFloat(digits, 64); err != nil {
			return ast.NoNode, errAt(n, diagnostics.ErrS001, "Invalid number '%s'", text)
		}
	case fraction:
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Fractional literal '%s' for integer type '%s'", text, t)
	case t.IsUnsigned():
		if _, err := strconv.ParseUint(digits, 10, t.NumericSize()*8); err != nil {
			return ast.NoNode, errAt(n, diagnostics.ErrS001, "Literal '%s' out of range for '%s'", text, t)
		}
	default:
		if _, err := strconv.ParseInt(digits, 10, t.NumericSize()*8); err != nil {
			return ast.NoNode, errAt(n, diagnostics.ErrS001, "Literal '%s' out of range for '%s'", text, t)
		}
	}
	return an.add(&ast.Value{Base: base(n, t), Literal: digits}), nil
}

func (an *Analyzer) boolean(n *parsetree.Node) (ast.NodeID, error) {
	v, err := strconv.ParseBool(n.Text)
	if err != nil {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Invalid bool '%s'", n.Text)
	}
	return an.add(&ast.Value{Base: base(n, boolType), Literal: strconv.FormatBool(v)}), nil
}

// ----------------------------------------------------------------------------
// Variables
// ----------------------------------------------------------------------------

func (an *Analyzer) variable(n *parsetree.Node) (ast.NodeID, error) {
	name := n.Text
	s, ok := an.mem.Lookup(name)
	if !ok {
		switch name {
		case "#":
			return ast.NoNode, errAt(n, diagnostics.ErrE002, "'Current index' (#) only available within loop scopes")
		case graph.MaxIterations:
			return ast.NoNode, errAt(n, diagnostics.ErrE002, "Variable 'max_iterations' only available in loops with max iterations setting")
		}
		return ast.NoNode, errAt(n, diagnostics.ErrN001, "Variable '%s' referenced before assignment", name)
	}
	if s.WriteOnly {
		return ast.NoNode, errAt(n, diagnostics.ErrE002, "Cant read '%s' output variable", name)
	}
	return an.add(&ast.Variable{Base: base(n, s.Type), Name: name}), nil
}

// ----------------------------------------------------------------------------
// Operators
// ----------------------------------------------------------------------------

func (an *Analyzer) binary(n *parsetree.Node) (ast.NodeID, error) {
	ops, err := operands(n, 2)
	if err != nil {
		return ast.NoNode, err
	}
	l, err := an.expr(ops[0])
	if err != nil {
		return ast.NoNode, err
	}
	r, err := an.expr(ops[1])
	if err != nil {
		return ast.NoNode, err
	}
	t, err := typesystem.MathOpType(an.typeOf(l), an.typeOf(r), n.Text, true)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.MathOp{Base: base(n, t), Op: n.Text, Left: l, Right: r}), nil
}

// compare builds a comparison chain: expr (operator expr)...
func (an *Analyzer) compare(n *parsetree.Node) (ast.NodeID, error) {
	if len(n.Children) < 3 || len(n.Children)%2 == 0 {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Malformed comparison")
	}
	var (
		ids   []ast.NodeID
		types []typesystem.Type
		ops   []string
	)
	for i, c := range n.Children {
		if i%2 == 1 {
			if c.Kind != parsetree.KindOperator {
				return ast.NoNode, errAt(c, diagnostics.ErrS001, "Expected a comparison operator, got '%s'", c.Kind)
			}
			ops = append(ops, c.Text)
			continue
		}
		id, err := an.expr(c)
		if err != nil {
			return ast.NoNode, err
		}
		ids = append(ids, id)
		types = append(types, an.typeOf(id))
	}
	t, err := typesystem.CompareChainType(types, ops)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.Compare{Base: base(n, t), Operands: ids, Ops: ops}), nil
}

func (an *Analyzer) logic(n *parsetree.Node) (ast.NodeID, error) {
	ops, err := operands(n, 2)
	if err != nil {
		return ast.NoNode, err
	}
	l, err := an.expr(ops[0])
	if err != nil {
		return ast.NoNode, err
	}
	r, err := an.expr(ops[1])
	if err != nil {
		return ast.NoNode, err
	}
	t, err := typesystem.LogicType(an.typeOf(l), an.typeOf(r), n.Text)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.Logic{Base: base(n, t), Op: n.Text, Left: l, Right: r}), nil
}

// unary builds +x, -x and !x. Negating a numeric literal folds into a new
// literal.
func (an *Analyzer) unary(n *parsetree.Node) (ast.NodeID, error) {
	ops, err := operands(n, 1)
	if err != nil {
		return ast.NoNode, err
	}
	v, err := an.expr(ops[0])
	if err != nil {
		return ast.NoNode, err
	}
	vt := an.typeOf(v)
	switch n.Text {
	case "+":
		return v, nil
	case "!":
		t, err := typesystem.NotType(vt)
		if err != nil {
			return ast.NoNode, at(err, n)
		}
		return an.add(&ast.Not{Base: base(n, t), Value: v}), nil
	case "-":
		t, err := typesystem.NegateType(vt)
		if err != nil {
			return ast.NoNode, at(err, n)
		}
		if lit, ok := an.arena.Get(v).(*ast.Value); ok && vt.IsNumeric() && t.Equal(vt) {
			return an.add(&ast.Value{Base: base(n, t), Literal: negateLiteral(lit.Literal)}), nil
		}
		return an.add(&ast.Negate{Base: base(n, t), Value: v}), nil
	}
	return ast.NoNode, errAt(n, diagnostics.ErrS001, "Unknown unary operator '%s'", n.Text)
}

func negateLiteral(s string) string {
	if strings.HasPrefix(s, "-") {
		return s[1:]
	}
	return "-" + s
}

// ----------------------------------------------------------------------------
// Composite literals
// ----------------------------------------------------------------------------

func (an *Analyzer) exprs(nodes []*parsetree.Node) ([]ast.NodeID, []typesystem.Type, error) {
	ids := make([]ast.NodeID, len(nodes))
	types := make([]typesystem.Type, len(nodes))
	for i, c := range nodes {
		id, err := an.expr(c)
		if err != nil {
			return nil, nil, err
		}
		ids[i], types[i] = id, an.typeOf(id)
	}
	return ids, types, nil
}

func (an *Analyzer) array(n *parsetree.Node) (ast.NodeID, error) {
	ids, types, err := an.exprs(n.Children)
	if err != nil {
		return ast.NoNode, err
	}
	elem, err := typesystem.ArrayLiteralType(types)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	if elem.ArrayDim() >= typesystem.MaxArrayDim {
		return ast.NoNode, errAt(n, diagnostics.ErrT004, "Max array dimension is %d", typesystem.MaxArrayDim)
	}
	return an.add(&ast.Array{Base: base(n, elem.Wrap(1)), Items: ids}), nil
}

// emptyArray builds float[] or float[n].
func (an *Analyzer) emptyArray(n *parsetree.Node) (ast.NodeID, error) {
	elem, err := an.typeChild(n)
	if err != nil {
		return ast.NoNode, err
	}
	if elem.IsAuto() {
		return ast.NoNode, errAt(n, diagnostics.ErrT001, "Empty arrays need an element type")
	}
	if elem.ArrayDim() >= typesystem.MaxArrayDim {
		return ast.NoNode, errAt(n, diagnostics.ErrT004, "Max array dimension is %d", typesystem.MaxArrayDim)
	}
	count := ast.NoNode
	if c := exprChild(n, parsetree.KindType); c != nil {
		if count, err = an.expr(c); err != nil {
			return ast.NoNode, err
		}
		if ct := an.typeOf(count).Unwrap(); ct.IsArray() || !ct.IsInteger() {
			return ast.NoNode, errAt(c, diagnostics.ErrT001, "Array size must be integer type. Got '%s'", ct)
		}
	}
	return an.add(&ast.EmptyArray{Base: base(n, elem.Wrap(1)), Count: count}), nil
}

// componentType reads the scalar base of a vector or matrix literal from
// its suffix. The default is float.
func componentType(n *parsetree.Node) (typesystem.Type, error) {
	if n.Text == "" {
		return typesystem.Of(typesystem.Float), nil
	}
	t, err := typesystem.LiteralHint(strings.ToLower(n.Text))
	if err != nil {
		return typesystem.Type{}, at(err, n)
	}
	if !t.IsNumeric() {
		return typesystem.Type{}, errAt(n, diagnostics.ErrT001, "Vector components must be numeric, not '%s'", t)
	}
	return t, nil
}

func (an *Analyzer) vector(n *parsetree.Node) (ast.NodeID, error) {
	comp, err := componentType(n)
	if err != nil {
		return ast.NoNode, err
	}
	ids, types, err := an.exprs(n.Children)
	if err != nil {
		return ast.NoNode, err
	}
	for i, t := range types {
		if !t.Unwrap().IsArray() {
			if err := validateCast(n.Children[i], t, comp, ast.VectorMember(min(i, 3))); err != nil {
				return ast.NoNode, err
			}
		}
	}
	t, err := typesystem.VectorLiteralType(types, comp.Tag())
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.Vector{Base: base(n, t), Components: ids}), nil
}

func (an *Analyzer) matrix(n *parsetree.Node) (ast.NodeID, error) {
	comp, err := componentType(n)
	if err != nil {
		return ast.NoNode, err
	}
	cols := make([][]ast.NodeID, len(n.Children))
	types := make([][]typesystem.Type, len(n.Children))
	for j, col := range n.Children {
		if col.Kind != parsetree.KindColumn {
			return ast.NoNode, errAt(col, diagnostics.ErrS001, "Expected a matrix column, got '%s'", col.Kind)
		}
		if cols[j], types[j], err = an.exprs(col.Children); err != nil {
			return ast.NoNode, err
		}
	}
	t, err := typesystem.MatrixLiteralType(types, comp.Tag())
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.Matrix{Base: base(n, t), Columns: cols}), nil
}

func (an *Analyzer) object(n *parsetree.Node) (ast.NodeID, error) {
	var keys, values []ast.NodeID
	for _, e := range n.Children {
		kv, err := operands(e, 2)
		if err != nil {
			return ast.NoNode, err
		}
		k, err := an.expr(kv[0])
		if err != nil {
			return ast.NoNode, err
		}
		if kt := an.typeOf(k).Unwrap(); !kt.Equal(stringType) {
			return ast.NoNode, errAt(kv[0], diagnostics.ErrT001, "Key must be of type 'string', not '%s'", kt)
		}
		v, err := an.expr(kv[1])
		if err != nil {
			return ast.NoNode, err
		}
		if vt := an.typeOf(v); vt.IsBundle() && len(vt.Ports()) != 1 {
			return ast.NoNode, errAt(kv[1], diagnostics.ErrT001, "Values of type 'NODE' cannot be used in OBJECTs")
		}
		keys, values = append(keys, k), append(values, v)
	}
	return an.add(&ast.Object{Base: base(n, objectType), Keys: keys, Values: values}), nil
}

// enum reads Type.Value of a catalog enum.
func (an *Analyzer) enum(n *parsetree.Node) (ast.NodeID, error) {
	i := strings.LastIndex(n.Text, ".")
	if i <= 0 {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Malformed enum value '%s'", n.Text)
	}
	name, member := n.Text[:i], n.Text[i+1:]
	canonical, ok := an.cat.Canonical(name)
	if !ok {
		return ast.NoNode, errAt(n, diagnostics.ErrN001, "Unknown enum '%s'", name)
	}
	e, ok := an.cat.Enum(canonical)
	if !ok {
		return ast.NoNode, errAt(n, diagnostics.ErrN001, "'%s' is not an enum", name)
	}
	for _, v := range e.Values {
		if v.Name == member {
			return an.add(&ast.Enum{Base: base(n, typesystem.Of(e.Name)), Member: member, Value: v.Value}), nil
		}
	}
	return ast.NoNode, errAt(n, diagnostics.ErrN003, "Enum '%s' has no value '%s'", name, member)
}
