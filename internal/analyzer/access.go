package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

var vectorIndex = map[string]int{"x": 0, "y": 1, "z": 2, "w": 3}

// memberType follows a dotted member path into t. Arrays map the path over
// their innermost type.
func (an *Analyzer) memberType(t typesystem.Type, members []string) (typesystem.Type, bool) {
	dim := t.ArrayDim()
	cur := t.Innermost()
	for i := 0; i < len(members); i++ {
		m := members[i]
		switch {
		case cur.IsVector():
			idx, ok := vectorIndex[m]
			if !ok || idx >= cur.VectorDim() {
				return typesystem.Type{}, false
			}
			cur = cur.BaseType()
		case cur.IsMatrix():
			rows, cols := cur.MatrixDim()
			col, err := strconv.Atoi(strings.TrimPrefix(m, "c"))
			if !strings.HasPrefix(m, "c") || err != nil || col < 0 || col >= cols {
				return typesystem.Type{}, false
			}
			cur = typesystem.WithShape(cur.BaseType().Tag(), rows, -1)
		default:
			td, ok := an.cat.Type(cur.Tag())
			if !ok {
				return typesystem.Type{}, false
			}
			// Catalog types may declare nested members under dotted names.
			found := false
			for j := len(members); j > i; j-- {
				mem, ok := td.Member(strings.Join(members[i:j], "."))
				if !ok {
					continue
				}
				mt, err := typesystem.ParsePortType(mem.Type, an.cat)
				if err != nil {
					return typesystem.Type{}, false
				}
				cur, i, found = mt, j-1, true
				break
			}
			if !found {
				return typesystem.Type{}, false
			}
		}
	}
	return cur.Wrap(dim), true
}

// ----------------------------------------------------------------------------
// Read access
// ----------------------------------------------------------------------------

// access builds a chain of accessors, left to right.
func (an *Analyzer) access(n *parsetree.Node) (ast.NodeID, error) {
	if len(n.Children) < 2 {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Access needs a value and an accessor")
	}
	cur, err := an.expr(n.Children[0])
	if err != nil {
		return ast.NoNode, err
	}
	for _, acc := range n.Children[1:] {
		switch acc.Kind {
		case parsetree.KindMember:
			cur, err = an.readMember(acc, cur)
		case parsetree.KindIndex:
			cur, err = an.readIndex(acc, cur)
		case parsetree.KindKeyDefault:
			cur, err = an.readKey(acc, cur)
		case parsetree.KindSlice:
			cur, err = an.slice(acc, cur)
		default:
			err = errAt(acc, diagnostics.ErrS001, "Unexpected accessor '%s'", acc.Kind)
		}
		if err != nil {
			return ast.NoNode, err
		}
	}
	return cur, nil
}

// valueType is the type an accessor sees: a bundle must have exactly one
// output.
func (an *Analyzer) valueType(n *parsetree.Node, id ast.NodeID) (typesystem.Type, error) {
	t := an.typeOf(id)
	if t.IsBundle() {
		if len(t.Ports()) != 1 {
			return typesystem.Type{}, errAt(n, diagnostics.ErrT005, "Select an output of '%s' with '->' first", ast.Describe(an.arena, id))
		}
		return t.Unwrap(), nil
	}
	return t, nil
}

func (an *Analyzer) readMember(n *parsetree.Node, value ast.NodeID) (ast.NodeID, error) {
	vt, err := an.valueType(n, value)
	if err != nil {
		return ast.NoNode, err
	}
	if vt.IsObject() {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Use object[key, type_or_value] to access an Object!")
	}
	members := strings.Split(n.Text, ".")
	mt, ok := an.memberType(vt, members)
	if !ok {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Type '%s' has no accessor '%s'", vt, n.Text)
	}
	// Members of a vector literal read the component directly.
	if vec, ok := an.arena.Get(value).(*ast.Vector); ok && len(members) == 1 {
		if idx, ok := vectorIndex[members[0]]; ok && idx < len(vec.Components) {
			if _, ok := an.arena.Get(vec.Components[idx]).(*ast.Value); ok {
				return vec.Components[idx], nil
			}
		}
	}
	return an.add(&ast.AccessRHS{Base: base(n, mt), Kind: ast.AccessMember, Value: value, Member: n.Text}), nil
}

// indexExpr builds an integer scalar index.
func (an *Analyzer) indexExpr(n *parsetree.Node) (ast.NodeID, error) {
	idx, err := an.expr(n)
	if err != nil {
		return ast.NoNode, err
	}
	if it := an.typeOf(idx).Unwrap(); it.IsArray() || !it.IsInteger() {
		return ast.NoNode, errAt(n, diagnostics.ErrT001, "Index must be integer type. Got '%s'", it)
	}
	return idx, nil
}

func (an *Analyzer) readIndex(n *parsetree.Node, value ast.NodeID) (ast.NodeID, error) {
	vt, err := an.valueType(n, value)
	if err != nil {
		return ast.NoNode, err
	}
	if vt.IsObject() && !vt.IsArray() {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Use object[key, type_or_value] to access an Object!")
	}
	if !vt.IsArray() && !vt.Equal(stringType) {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Can only access 'array<?>' or 'string' via expression!")
	}
	inner, err := wrapped(n)
	if err != nil {
		return ast.NoNode, err
	}
	idx, err := an.indexExpr(inner)
	if err != nil {
		return ast.NoNode, err
	}
	t := stringType
	if vt.IsArray() {
		t = vt.Element()
	}
	return an.add(&ast.AccessRHS{Base: base(n, t), Kind: ast.AccessIndex, Value: value, Index: idx}), nil
}

// readKey builds object[key, default] where default is a value or a type.
func (an *Analyzer) readKey(n *parsetree.Node, value ast.NodeID) (ast.NodeID, error) {
	vt, err := an.valueType(n, value)
	if err != nil {
		return ast.NoNode, err
	}
	if !vt.Equal(objectType) {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Can only access Object with default value/type")
	}
	kv, err := operands(n, 2)
	if err != nil {
		return ast.NoNode, err
	}
	key, err := an.expr(kv[0])
	if err != nil {
		return ast.NoNode, err
	}
	if kt := an.typeOf(key).Unwrap(); !kt.Equal(stringType) {
		return ast.NoNode, errAt(kv[0], diagnostics.ErrT001, "Key must be of type 'string', not '%s'", kt)
	}
	node := &ast.AccessRHS{Kind: ast.AccessKey, Value: value, Index: key}
	if kv[1].Kind == parsetree.KindType {
		if node.DefaultType, err = an.parseType(kv[1]); err != nil {
			return ast.NoNode, err
		}
		if node.DefaultType.IsAuto() {
			return ast.NoNode, errAt(kv[1], diagnostics.ErrT001, "Object access needs a concrete type")
		}
	} else {
		if node.Default, err = an.expr(kv[1]); err != nil {
			return ast.NoNode, err
		}
		if node.DefaultType, err = an.valueType(kv[1], node.Default); err != nil {
			return ast.NoNode, err
		}
	}
	node.Base = base(n, node.DefaultType)
	return an.add(node), nil
}

// slice builds value[start:stop:step]. The result keeps the type of the
// value.
func (an *Analyzer) slice(n *parsetree.Node, value ast.NodeID) (ast.NodeID, error) {
	vt, err := an.valueType(n, value)
	if err != nil {
		return ast.NoNode, err
	}
	if !vt.IsArray() && !vt.Equal(stringType) {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Can only access 'array<?>' or 'string' via expression!")
	}
	node := &ast.Slice{Base: base(n, vt), Value: value}
	parts := map[string]*ast.NodeID{
		parsetree.KindStart: &node.Start,
		parsetree.KindStop:  &node.Stop,
		parsetree.KindStep:  &node.Step,
	}
	for _, c := range n.Children {
		slot, ok := parts[c.Kind]
		if !ok {
			return ast.NoNode, errAt(c, diagnostics.ErrS001, "Malformed slice")
		}
		if *slot != ast.NoNode {
			return ast.NoNode, errAt(c, diagnostics.ErrS001, "Duplicate slice part '%s'", c.Kind)
		}
		inner, err := wrapped(c)
		if err != nil {
			return ast.NoNode, err
		}
		id, err := an.expr(inner)
		if err != nil {
			return ast.NoNode, err
		}
		pt := an.typeOf(id).Unwrap()
		switch {
		case pt.IsArray():
			return ast.NoNode, errAt(inner, diagnostics.ErrT001, "Slice value cannot be array")
		case !pt.IsInteger():
			return ast.NoNode, errAt(inner, diagnostics.ErrT001, "Slice value must be integer scalar")
		}
		*slot = id
	}
	return an.add(node), nil
}

// portAccess builds value->port.member.
func (an *Analyzer) portAccess(n *parsetree.Node) (ast.NodeID, error) {
	inner, err := wrapped(n)
	if err != nil {
		return ast.NoNode, err
	}
	value, err := an.expr(inner)
	if err != nil {
		return ast.NoNode, err
	}
	vt := an.typeOf(value)
	if !vt.IsBundle() {
		return ast.NoNode, errAt(n, diagnostics.ErrT005, "Only NODE values have output ports, not '%s'", vt)
	}
	path := strings.Split(n.Text, ".")
	pt, ok := vt.Port(path[0])
	if !ok {
		return ast.NoNode, errAt(n, diagnostics.ErrN003, "Unrecognized port '%s'. Chose from %s", path[0], quoteList(vt.PortNames()))
	}
	if len(path) > 1 {
		if pt, ok = an.memberType(pt, path[1:]); !ok {
			return ast.NoNode, errAt(n, diagnostics.ErrT005, "Type '%s' has no accessor '%s'", pt, strings.Join(path[1:], "."))
		}
	}
	return an.add(&ast.AccessPort{Base: base(n, pt), Value: value, Port: path[0], Sub: path[1:]}), nil
}

// ----------------------------------------------------------------------------
// Write access
// ----------------------------------------------------------------------------

// accessTarget builds an assignment target writing into part of a
// variable. It returns the node and the type a value stored through it
// must have; Object targets accept any value and report the zero type.
func (an *Analyzer) accessTarget(n *parsetree.Node) (ast.NodeID, typesystem.Type, error) {
	name := n.Text
	s, ok := an.mem.Lookup(name)
	if !ok {
		return ast.NoNode, typesystem.Type{}, errAt(n, diagnostics.ErrN001, "Unknown variable: '%s'", name)
	}
	if s.WriteOnly {
		return ast.NoNode, typesystem.Type{}, errAt(n, diagnostics.ErrE002, "Cant access result '%s'", name)
	}
	vt := s.Type
	if vt.IsBundle() {
		return ast.NoNode, typesystem.Type{}, errAt(n, diagnostics.ErrT005, "Cannot assign to '%s' via '%s'", vt, name)
	}
	node := &ast.AccessLHS{Base: base(n, vt), Name: name}

	if m := n.Child(parsetree.KindMember); m != nil {
		members := strings.Split(m.Text, ".")
		mt, ok := an.memberType(vt, members)
		if !ok || vt.IsArray() {
			return ast.NoNode, typesystem.Type{}, errAt(m, diagnostics.ErrT005, "Cannot assign to '%s' via '%s'", vt, m.Text)
		}
		node.Method, node.Members = ast.WriteMember, members
		return an.add(node), mt, nil
	}

	idxNode := n.Child(parsetree.KindIndex)
	if idxNode == nil {
		return ast.NoNode, typesystem.Type{}, errAt(n, diagnostics.ErrS001, "Access target needs a member or an index")
	}
	inner, err := wrapped(idxNode)
	if err != nil {
		return ast.NoNode, typesystem.Type{}, err
	}
	idx, err := an.expr(inner)
	if err != nil {
		return ast.NoNode, typesystem.Type{}, err
	}
	it := an.typeOf(idx).Unwrap()
	node.Index = idx

	var elem typesystem.Type
	switch {
	case vt.Equal(stringType) || vt.IsArray():
		if it.IsArray() || !it.IsInteger() {
			return ast.NoNode, typesystem.Type{}, errAt(inner, diagnostics.ErrT001, "Must assign to string and array via single integer, not '%s'", it)
		}
		if vt.IsArray() {
			node.Method, elem = ast.WriteArray, vt.Element()
		} else {
			node.Method, elem = ast.WriteString, stringType
		}
	case vt.Equal(objectType):
		if !it.Equal(stringType) {
			return ast.NoNode, typesystem.Type{}, errAt(inner, diagnostics.ErrT001, "Must assign to object via single string, not '%s'", it)
		}
		node.Method = ast.WriteObject
	default:
		return ast.NoNode, typesystem.Type{}, errAt(n, diagnostics.ErrT005, "Cannot assign to '%s' via '%s'", vt, fmt.Sprintf("%s[%s]", name, it))
	}
	return an.add(node), elem, nil
}
