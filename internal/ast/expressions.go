package ast

import (
	"fmt"
	"strings"

	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Value is a literal constant.
type Value struct {
	Base
	Literal string
}

func (n *Value) IsConstant(*Arena) bool       { return true }
func (n *Value) clone(func(NodeID) NodeID) Node { cp := *n; return &cp }

func (n *Value) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return c.ConstValue(n.Type, n.Literal)
}

// Variable reads a named value of the current scope.
type Variable struct {
	Base
	Name string
}

func (n *Variable) clone(func(NodeID) NodeID) Node { cp := *n; return &cp }

func (n *Variable) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return c.Memory().Get(n.Name)
}

func (n *Variable) assign(a *Arena, c *lowering.Context, _ NodeID, value graph.PortRef) error {
	return c.Assign(n.Name, n.Type, value)
}

// MathOp is a binary arithmetic operation. String typed additions are
// concatenations.
type MathOp struct {
	Base
	Op          string
	Left, Right NodeID
}

func (n *MathOp) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Left, cp.Right = m(n.Left), m(n.Right)
	return &cp
}

func (n *MathOp) isConcat() bool { return n.Op == "+" && n.Type.Innermost().IsString() }

func (n *MathOp) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	if n.isConcat() {
		var parts []lowering.StringPart
		if err := n.concatParts(a, c, &parts); err != nil {
			return graph.PortRef{}, err
		}
		return c.BuildString(n.Type, parts...)
	}
	l, err := lowerChar(a, c, n.Left)
	if err != nil {
		return graph.PortRef{}, err
	}
	r, err := lowerChar(a, c, n.Right)
	if err != nil {
		return graph.PortRef{}, err
	}
	return c.MathOp(n.Op, l, r)
}

// concatParts flattens a chain of concatenations into one build_string.
func (n *MathOp) concatParts(a *Arena, c *lowering.Context, parts *[]lowering.StringPart) error {
	for _, id := range []NodeID{n.Left, n.Right} {
		if inner, ok := a.Get(id).(*MathOp); ok && inner.isConcat() && !a.Lowered(id) {
			if err := inner.concatParts(a, c, parts); err != nil {
				return err
			}
			continue
		}
		p, err := a.Lower(id, c)
		if err != nil {
			return err
		}
		*parts = append(*parts, lowering.StringPart{Port: p, Type: a.Type(id)})
	}
	return nil
}

// lowerChar lowers an arithmetic operand; bool operands become chars.
func lowerChar(a *Arena, c *lowering.Context, id NodeID) (graph.PortRef, error) {
	p, err := a.Lower(id, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	return asChar(c, p, a.Type(id), typesystem.Type{})
}

// Compare is a comparison chain: a < b <= c is (a < b) && (b <= c).
type Compare struct {
	Base
	Operands []NodeID
	Ops      []string
}

func (n *Compare) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Operands = mapIDs(n.Operands, m)
	cp.Ops = append([]string(nil), n.Ops...)
	return &cp
}

func (n *Compare) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	ports := make([]graph.PortRef, len(n.Operands))
	for i, id := range n.Operands {
		p, err := a.Lower(id, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		ports[i] = p
	}
	var out graph.PortRef
	for i, op := range n.Ops {
		l, r := ports[i], ports[i+1]
		if op != "==" && op != "!=" {
			var err error
			if l, err = asChar(c, l, a.Type(n.Operands[i]), typesystem.Type{}); err != nil {
				return graph.PortRef{}, err
			}
			if r, err = asChar(c, r, a.Type(n.Operands[i+1]), typesystem.Type{}); err != nil {
				return graph.PortRef{}, err
			}
		}
		cmp, err := c.Compare(op, l, r)
		if err != nil {
			return graph.PortRef{}, err
		}
		if i == 0 {
			out = cmp
			continue
		}
		if out, err = c.Logic("&&", out, cmp); err != nil {
			return graph.PortRef{}, err
		}
	}
	return out, nil
}

// Logic is a binary boolean operation: && || or ^.
type Logic struct {
	Base
	Op          string
	Left, Right NodeID
}

func (n *Logic) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Left, cp.Right = m(n.Left), m(n.Right)
	return &cp
}

func (n *Logic) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	l, err := a.Lower(n.Left, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	r, err := a.Lower(n.Right, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	return c.Logic(n.Op, l, r)
}

// Not inverts a bool or integer value.
type Not struct {
	Base
	Value NodeID
}

func (n *Not) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Value = m(n.Value); return &cp }

func (n *Not) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	v, err := a.Lower(n.Value, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	return c.Not(v)
}

// Negate flips the sign of a numeric value.
type Negate struct {
	Base
	Value NodeID
}

func (n *Negate) IsConstant(a *Arena) bool     { return a.IsConstant(n.Value) }
func (n *Negate) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Value = m(n.Value); return &cp }

func (n *Negate) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	v, err := lowerChar(a, c, n.Value)
	if err != nil {
		return graph.PortRef{}, err
	}
	return c.Negate(v)
}

// Argument is a call argument, optionally given by port name.
type Argument struct {
	Base
	Name  string
	Value NodeID
}

func (n *Argument) IsConstant(a *Arena) bool     { return a.IsConstant(n.Value) }
func (n *Argument) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Value = m(n.Value); return &cp }

func (n *Argument) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return a.Lower(n.Value, c)
}

var vectorMembers = []string{"x", "y", "z", "w"}

// VectorMember names the i-th component of a vector.
func VectorMember(i int) string { return vectorMembers[i] }

// MatrixMember names the component at row and column of a matrix.
func MatrixMember(row, col int) string { return fmt.Sprintf("c%d.%s", col, vectorMembers[row]) }

// Vector is a vector literal {x, y, z}.
type Vector struct {
	Base
	Components []NodeID
}

func (n *Vector) IsConstant(a *Arena) bool { return allConstant(a, n.Components) }

func (n *Vector) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Components = mapIDs(n.Components, m)
	return &cp
}

func (n *Vector) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.ValueNode(n.Type)
	if err != nil {
		return graph.PortRef{}, err
	}
	for i, id := range n.Components {
		if err := setMember(a, c, node, VectorMember(i), id); err != nil {
			return graph.PortRef{}, err
		}
	}
	return lowering.Out(node, graph.ValueOutput), nil
}

// Matrix is a matrix literal given column by column. A column with a
// single entry fills the whole column.
type Matrix struct {
	Base
	Columns [][]NodeID
}

func (n *Matrix) IsConstant(a *Arena) bool {
	for _, col := range n.Columns {
		if !allConstant(a, col) {
			return false
		}
	}
	return true
}

func (n *Matrix) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Columns = make([][]NodeID, len(n.Columns))
	for i, col := range n.Columns {
		cp.Columns[i] = mapIDs(col, m)
	}
	return &cp
}

func (n *Matrix) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.ValueNode(n.Type)
	if err != nil {
		return graph.PortRef{}, err
	}
	for j, col := range n.Columns {
		if len(col) == 1 {
			if err := setMember(a, c, node, fmt.Sprintf("c%d", j), col[0]); err != nil {
				return graph.PortRef{}, err
			}
			continue
		}
		for i, id := range col {
			if err := setMember(a, c, node, MatrixMember(i, j), id); err != nil {
				return graph.PortRef{}, err
			}
		}
	}
	return lowering.Out(node, graph.ValueOutput), nil
}

// setMember feeds a sub-port of a value node, as a literal when the value
// is a plain constant.
func setMember(a *Arena, c *lowering.Context, node graph.NodeID, member string, id NodeID) error {
	port := graph.ValueInput + "." + member
	if v, ok := a.Get(id).(*Value); ok {
		return c.Builder().SetLiteral(node, port, v.Literal)
	}
	p, err := a.Lower(id, c)
	if err != nil {
		return err
	}
	return c.Connect(p, graph.PortRef{Node: node, Port: port})
}

// Array is an array literal [a, b, c]. Type is the array type.
type Array struct {
	Base
	Items []NodeID
}

func (n *Array) IsConstant(a *Arena) bool { return allConstant(a, n.Items) }

func (n *Array) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Items = mapIDs(n.Items, m)
	return &cp
}

func (n *Array) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.Node(lowering.OpBuildArray)
	if err != nil {
		return graph.PortRef{}, err
	}
	elem := n.Type.Element()
	for i, id := range n.Items {
		name := ItemPort(i, "")
		if err := c.Builder().AddInputPort(node, name, elem); err != nil {
			return graph.PortRef{}, err
		}
		p, err := a.Lower(id, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		if err := c.Connect(p, graph.PortRef{Node: node, Port: name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	return lowering.Out(node, "array"), nil
}

// ItemPort names the i-th input of an associative operator.
func ItemPort(i int, name string) string {
	if name == "" {
		return fmt.Sprintf("item%d", i)
	}
	return fmt.Sprintf("item%d_%s", i, name)
}

// EmptyArray is type[] or type[count].
type EmptyArray struct {
	Base
	Count NodeID
}

func (n *EmptyArray) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Count = m(n.Count); return &cp }

func (n *EmptyArray) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.ValueNode(n.Type)
	if err != nil {
		return graph.PortRef{}, err
	}
	out := lowering.Out(node, graph.ValueOutput)
	if n.Count == NoNode {
		return out, nil
	}
	count, err := a.Lower(n.Count, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	return c.Apply(lowering.OpResizeArray, "resized", out, count)
}

// Object is an object literal {"key": value, ...}.
type Object struct {
	Base
	Keys   []NodeID
	Values []NodeID
}

func (n *Object) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Keys, cp.Values = mapIDs(n.Keys, m), mapIDs(n.Values, m)
	return &cp
}

func (n *Object) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.ValueNode(n.Type)
	if err != nil {
		return graph.PortRef{}, err
	}
	out := lowering.Out(node, graph.ValueOutput)
	for i := range n.Keys {
		key, err := a.Lower(n.Keys[i], c)
		if err != nil {
			return graph.PortRef{}, err
		}
		value, err := a.Lower(n.Values[i], c)
		if err != nil {
			return graph.PortRef{}, err
		}
		if out, err = c.Apply(lowering.OpSetProperty, "out_object", out, key, value); err != nil {
			return graph.PortRef{}, err
		}
	}
	return out, nil
}

// Enum is a member of a catalog enum, Namespace::Enum.Member.
type Enum struct {
	Base
	Member string
	Value  int
}

func (n *Enum) IsConstant(*Arena) bool         { return true }
func (n *Enum) clone(func(NodeID) NodeID) Node { cp := *n; return &cp }

func (n *Enum) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return c.ConstValue(n.Type, fmt.Sprint(n.Value))
}

// Describe renders a short form of a node for diagnostics and debugging.
func Describe(a *Arena, id NodeID) string {
	switch n := a.Get(id).(type) {
	case nil:
		return "<none>"
	case *Value:
		return n.Literal
	case *Variable:
		return n.Name
	case *MathOp:
		return Describe(a, n.Left) + " " + n.Op + " " + Describe(a, n.Right)
	case *CallNative:
		return n.Op + "(...)"
	case *CallScope:
		return n.Name + "(...)"
	}
	t := fmt.Sprintf("%T", a.Get(id))
	return strings.TrimPrefix(t, "*ast.")
}
