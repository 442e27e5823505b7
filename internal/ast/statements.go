package ast

import (
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
)

// AssignTypeName is a declaring assignment target: float x = ...
type AssignTypeName struct {
	Base
	Name string
}

func (n *AssignTypeName) clone(func(NodeID) NodeID) Node { cp := *n; return &cp }

func (n *AssignTypeName) Lower(*Arena, *lowering.Context) (graph.PortRef, error) {
	return graph.PortRef{}, nil
}

func (n *AssignTypeName) assign(a *Arena, c *lowering.Context, _ NodeID, value graph.PortRef) error {
	return c.Memory().Define(n.Name, n.Type, value)
}

// Assignment stores a value into its targets. With Outputs set, target i
// receives output Outputs[i] of a node valued right hand side; otherwise
// every target receives the value itself. NoNode targets are ignored.
type Assignment struct {
	Base
	Targets []NodeID
	Outputs []string
	Value   NodeID
}

func (n *Assignment) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Targets = mapIDs(n.Targets, m)
	cp.Outputs = append([]string(nil), n.Outputs...)
	cp.Value = m(n.Value)
	return &cp
}

func (n *Assignment) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	v, err := a.Lower(n.Value, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	for i, id := range n.Targets {
		if id == NoNode {
			continue
		}
		t, ok := a.Get(id).(Target)
		if !ok {
			return graph.PortRef{}, diagnostics.New(diagnostics.ErrE001, "Invalid assignment target")
		}
		value := v
		if i < len(n.Outputs) && n.Outputs[i] != "" {
			value = port(v, n.Outputs[i])
		}
		if err := t.assign(a, c, id, value); err != nil {
			return graph.PortRef{}, diagnostics.At(err, t.Position())
		}
	}
	return graph.PortRef{}, nil
}

// Using makes every output of a node valued expression a variable named
// after the port.
type Using struct {
	Base
	Value NodeID
}

func (n *Using) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Value = m(n.Value); return &cp }

func (n *Using) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	v, err := a.Lower(n.Value, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	for _, p := range a.Type(n.Value).Ports() {
		if err := c.Assign(p.Name, p.Type, port(v, p.Name)); err != nil {
			return graph.PortRef{}, err
		}
	}
	return graph.PortRef{}, nil
}

// ScopeStatement is an inline compound. Its parameters read the enclosing
// variables of the same name and its results are assigned back to them.
type ScopeStatement struct {
	Base
	Scope  NodeID
	Inputs []Binding
}

func (n *ScopeStatement) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Scope = m(n.Scope)
	cp.Inputs = mapBindings(n.Inputs, m)
	return &cp
}

func (n *ScopeStatement) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	out, err := a.Lower(n.Scope, c)
	if err != nil {
		return graph.PortRef{}, err
	}
	if err := connectBindings(a, c, out.Node, n.Inputs); err != nil {
		return graph.PortRef{}, err
	}
	for _, p := range a.Type(n.Scope).Ports() {
		if err := c.Assign(p.Name, p.Type, port(out, p.Name)); err != nil {
			return graph.PortRef{}, err
		}
	}
	return graph.PortRef{}, nil
}

// Program is the root of a compilation unit.
type Program struct {
	Base
	Statements []NodeID
}

func (n *Program) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Statements = mapIDs(n.Statements, m)
	return &cp
}

// Lower opens the graph, lowers every statement and closes it again.
func (n *Program) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	b := c.Builder()
	if err := b.Open(); err != nil {
		return graph.PortRef{}, err
	}
	if err := a.LowerAll(n.Statements, c); err != nil {
		return graph.PortRef{}, err
	}
	if pending := c.Memory().Pending(); len(pending) > 0 {
		c.Logger().Debug("unconnected outputs", "names", pending)
	}
	return graph.PortRef{}, b.Close()
}
