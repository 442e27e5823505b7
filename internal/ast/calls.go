package ast

import (
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Binding connects an argument to an input port.
type Binding struct {
	Port string
	Type typesystem.Type
	Arg  NodeID
}

func mapBindings(bs []Binding, m func(NodeID) NodeID) []Binding {
	out := make([]Binding, len(bs))
	for i, b := range bs {
		out[i] = b
		out[i].Arg = m(b.Arg)
	}
	return out
}

// connectBindings lowers every bound argument into node.
func connectBindings(a *Arena, c *lowering.Context, node graph.NodeID, bs []Binding) error {
	for _, b := range bs {
		p, err := a.Lower(b.Arg, c)
		if err != nil {
			return err
		}
		if p, err = asChar(c, p, a.Type(b.Arg), b.Type); err != nil {
			return err
		}
		if err := c.Connect(p, graph.PortRef{Node: node, Port: b.Port}); err != nil {
			return err
		}
	}
	return nil
}

// firstPort addresses the first output of a bundle typed node.
func firstPort(node graph.NodeID, t typesystem.Type) graph.PortRef {
	names := t.PortNames()
	if len(names) == 0 {
		return graph.PortRef{Node: node}
	}
	return graph.PortRef{Node: node, Port: names[0]}
}

// CallNative calls a catalog operator. Type is the bundle of its resolved
// outputs.
type CallNative struct {
	Base
	Op       string
	Inputs   []Binding
	Terminal string
}

func (n *CallNative) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Inputs = mapBindings(n.Inputs, m)
	return &cp
}

func (n *CallNative) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.Node(n.Op)
	if err != nil {
		return graph.PortRef{}, err
	}
	if err := connectBindings(a, c, node, n.Inputs); err != nil {
		return graph.PortRef{}, err
	}
	if err := markTerminal(c, node, n.Terminal); err != nil {
		return graph.PortRef{}, err
	}
	return firstPort(node, n.Type), nil
}

// CallAssociative calls an operator that takes any number of items, such
// as build_array. Every item gets its own input port.
type CallAssociative struct {
	Base
	Op       string
	Items    []Binding
	Output   string
	Terminal string
}

func (n *CallAssociative) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Items = mapBindings(n.Items, m)
	return &cp
}

func (n *CallAssociative) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.Node(n.Op)
	if err != nil {
		return graph.PortRef{}, err
	}
	for _, it := range n.Items {
		if err := c.Builder().AddInputPort(node, it.Port, it.Type); err != nil {
			return graph.PortRef{}, err
		}
	}
	if err := connectBindings(a, c, node, n.Items); err != nil {
		return graph.PortRef{}, err
	}
	if err := markTerminal(c, node, n.Terminal); err != nil {
		return graph.PortRef{}, err
	}
	return lowering.Out(node, n.Output), nil
}

// CallScope calls a user function. Scope is this call's private copy of
// the function body; parameters left unbound use their defaults.
type CallScope struct {
	Base
	Name     string
	Scope    NodeID
	Inputs   []Binding
	Terminal string
}

func (n *CallScope) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Scope = m(n.Scope)
	cp.Inputs = mapBindings(n.Inputs, m)
	return &cp
}

func (n *CallScope) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	scope, ok := a.Get(n.Scope).(*Scope)
	if !ok {
		return graph.PortRef{}, errNotScope(n.Name)
	}
	out, err := a.Lower(n.Scope, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	if err := connectBindings(a, c, out.Node, n.Inputs); err != nil {
		return graph.PortRef{}, err
	}
	bound := make(map[string]bool, len(n.Inputs))
	for _, b := range n.Inputs {
		bound[b.Port] = true
	}
	for _, id := range scope.Params {
		p := a.Get(id).(*ScopeParameter)
		if bound[p.Name] || p.Default == NoNode {
			continue
		}
		v, err := a.Lower(id, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		if err := c.Connect(v, graph.PortRef{Node: out.Node, Port: p.Name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	if err := markTerminal(c, out.Node, n.Terminal); err != nil {
		return graph.PortRef{}, err
	}
	return out, nil
}

// CallType constructs a catalog type from its members.
type CallType struct {
	Base
	Members []Binding
}

func (n *CallType) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Members = mapBindings(n.Members, m)
	return &cp
}

func (n *CallType) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	node, err := c.ValueNode(n.Type)
	if err != nil {
		return graph.PortRef{}, err
	}
	for _, b := range n.Members {
		if err := setMember(a, c, node, b.Port, b.Arg); err != nil {
			return graph.PortRef{}, err
		}
	}
	return lowering.Out(node, graph.ValueOutput), nil
}
