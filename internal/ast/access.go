package ast

import (
	"strings"

	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/typesystem"
)

// AccessKind selects how an accessor reaches into its base.
type AccessKind int

const (
	// AccessMember reads a vector, matrix or catalog type member: v.x
	AccessMember AccessKind = iota
	// AccessIndex reads an array element or a string character: a[i]
	AccessIndex
	// AccessKey reads an object property with a default: o["k", 0.0]
	AccessKey
)

// AccessRHS reads one accessor of a value. Chains nest: a.b[1] is an
// index access whose base is a member access.
type AccessRHS struct {
	Base
	Kind   AccessKind
	Value  NodeID
	Member string
	Index  NodeID
	// Default is the fallback of a key access. Without one, DefaultType
	// selects the property type.
	Default     NodeID
	DefaultType typesystem.Type
}

func (n *AccessRHS) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Value, cp.Index, cp.Default = m(n.Value), m(n.Index), m(n.Default)
	return &cp
}

func (n *AccessRHS) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	base, err := a.Lower(n.Value, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	switch n.Kind {
	case AccessMember:
		return graph.PortRef{Node: base.Node, Port: base.Port + "." + n.Member}, nil
	case AccessIndex:
		idx, err := a.Lower(n.Index, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		if a.Type(n.Value).Unwrap().IsString() {
			return c.Apply(lowering.OpGetChar, "character", base, idx)
		}
		return c.Apply(lowering.OpGetFromArray, "value", base, idx)
	case AccessKey:
		key, err := a.Lower(n.Index, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		var def graph.PortRef
		if n.Default != NoNode {
			def, err = a.Lower(n.Default, c)
		} else {
			var node graph.NodeID
			node, err = c.ValueNode(n.DefaultType)
			def = lowering.Out(node, graph.ValueOutput)
		}
		if err != nil {
			return graph.PortRef{}, err
		}
		return c.Apply(lowering.OpGetProperty, "value", base, key, def)
	}
	return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrE001, "Unknown accessor kind %d", n.Kind)
}

// Slice reads a range of an array or string: a[start:stop:step]. Missing
// bounds are NoNode.
type Slice struct {
	Base
	Value             NodeID
	Start, Stop, Step NodeID
}

func (n *Slice) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Value, cp.Start, cp.Stop, cp.Step = m(n.Value), m(n.Start), m(n.Stop), m(n.Step)
	return &cp
}

func (n *Slice) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	base, err := a.Lower(n.Value, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	bounds := make([]graph.PortRef, 3)
	for i, id := range []NodeID{n.Start, n.Stop, n.Step} {
		if id == NoNode {
			continue
		}
		if bounds[i], err = a.Lower(id, c); err != nil {
			return graph.PortRef{}, err
		}
	}
	onString := a.Type(n.Value).Unwrap().IsString()
	var size graph.PortRef
	if onString {
		size, err = c.Apply(lowering.OpStringLength, "length", base)
	} else {
		size, err = c.Apply(lowering.OpArraySize, "size", base)
	}
	if err != nil {
		return graph.PortRef{}, err
	}
	s, err := c.SliceIndices(size, bounds[0], bounds[1], bounds[2])
	if err != nil {
		return graph.PortRef{}, err
	}
	if onString {
		return c.Apply(lowering.OpGetChars, "characters", base, s.Indices)
	}
	return c.Apply(lowering.OpGatherArray, "gathered", base, s.Indices)
}

// AccessMethod is the way an assignment writes through an accessor.
type AccessMethod int

const (
	WriteMember AccessMethod = iota
	WriteString
	WriteArray
	WriteObject
)

// AccessLHS is an assignment target that writes into part of a variable:
// v.x = 1, a[i] = 2, o["k"] = 3, s[0] = "c". The value is bound once
// through SetRHS after the right hand side is analyzed.
type AccessLHS struct {
	Base
	Name    string
	Method  AccessMethod
	Members []string
	Index   NodeID
	RHS     NodeID
}

// SetRHS binds the assigned value.
func (n *AccessLHS) SetRHS(id NodeID) error {
	if n.RHS != NoNode {
		return diagnostics.Newf(diagnostics.ErrE001, "Value of '%s' is already bound", n.Name)
	}
	n.RHS = id
	return nil
}

func (n *AccessLHS) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Members = append([]string(nil), n.Members...)
	cp.Index, cp.RHS = m(n.Index), m(n.RHS)
	return &cp
}

func (n *AccessLHS) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	if n.RHS == NoNode {
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrE001, "No value bound to '%s'", n.Name)
	}
	value, err := a.Lower(n.RHS, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	cur, err := c.Memory().Get(n.Name)
	if err != nil {
		return graph.PortRef{}, err
	}
	var out graph.PortRef
	switch n.Method {
	case WriteMember:
		node, err := c.ValueNode(n.Type)
		if err != nil {
			return graph.PortRef{}, err
		}
		if err := c.Connect(cur, graph.PortRef{Node: node, Port: graph.ValueInput}); err != nil {
			return graph.PortRef{}, err
		}
		member := graph.ValueInput + "." + strings.Join(n.Members, ".")
		if err := c.Connect(value, graph.PortRef{Node: node, Port: member}); err != nil {
			return graph.PortRef{}, err
		}
		out = lowering.Out(node, graph.ValueOutput)
	default:
		idx, err := a.Lower(n.Index, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		switch n.Method {
		case WriteString:
			out, err = c.Apply(lowering.OpReplaceChar, "out_string", cur, idx, value)
		case WriteArray:
			out, err = c.Apply(lowering.OpSetInArray, "out_array", cur, idx, value)
		default:
			out, err = c.Apply(lowering.OpSetProperty, "out_object", cur, idx, value)
		}
		if err != nil {
			return graph.PortRef{}, err
		}
	}
	return out, c.Memory().Set(n.Name, out)
}

// assign lowers the target itself; the bound right hand side already
// carries the value.
func (n *AccessLHS) assign(a *Arena, c *lowering.Context, self NodeID, _ graph.PortRef) error {
	_, err := a.Lower(self, c)
	return err
}

// AccessPort selects one output of a node valued expression: n->port.
// Sub may continue into members of that port.
type AccessPort struct {
	Base
	Value NodeID
	Port  string
	Sub   []string
}

func (n *AccessPort) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Value = m(n.Value)
	cp.Sub = append([]string(nil), n.Sub...)
	return &cp
}

func (n *AccessPort) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	v, err := a.Lower(n.Value, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	name := n.Port
	if len(n.Sub) > 0 {
		name += "." + strings.Join(n.Sub, ".")
	}
	return port(v, name), nil
}
