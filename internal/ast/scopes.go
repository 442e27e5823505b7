package ast

import (
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/typesystem"
)

var longType = typesystem.Of(typesystem.Long)

func errNotScope(name string) error {
	return diagnostics.Newf(diagnostics.ErrE001, "'%s' has no body", name)
}

// LoopParameter is a loop input. Iteration targets are arrays outside the
// loop and their element inside. Without a default the parameter reads the
// enclosing variable of the same name.
type LoopParameter struct {
	Base
	Name            string
	Inner           typesystem.Type
	IterationTarget bool
	Default         NodeID
}

func (n *LoopParameter) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Default = m(n.Default); return &cp }

// Lower produces the value flowing into the loop, in the enclosing scope.
func (n *LoopParameter) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	if n.Default != NoNode {
		return a.Lower(n.Default, c)
	}
	return c.Memory().Get(n.Name)
}

// LoopResult is a loop output. State names the parameter that receives
// the result on the next iteration.
type LoopResult struct {
	Base
	Name            string
	Inner           typesystem.Type
	IterationTarget bool
	State           string
}

func (n *LoopResult) clone(func(NodeID) NodeID) Node { cp := *n; return &cp }

func (n *LoopResult) Lower(*Arena, *lowering.Context) (graph.PortRef, error) {
	return graph.PortRef{}, nil
}

// LoopIndex is the current_index setting of a loop: the start index and
// the name the body reads it by, besides '#'.
type LoopIndex struct {
	Base
	Name  string
	Value NodeID
}

func (n *LoopIndex) clone(m func(NodeID) NodeID) Node { cp := *n; cp.Value = m(n.Value); return &cp }

// Lower produces the start index, in the enclosing scope.
func (n *LoopIndex) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return a.Lower(n.Value, c)
}

// Loop is the part all loop kinds share. Type is the bundle of the
// results as seen from outside.
type Loop struct {
	Base
	Name          string
	Params        []NodeID
	Results       []NodeID
	MaxIterations NodeID
	Index         NodeID
	Body          []NodeID
	Terminal      string
}

func (l Loop) cloneLoop(m func(NodeID) NodeID) Loop {
	cp := l
	cp.Params, cp.Results = mapIDs(l.Params, m), mapIDs(l.Results, m)
	cp.MaxIterations, cp.Index = m(l.MaxIterations), m(l.Index)
	cp.Body = mapIDs(l.Body, m)
	return cp
}

// lower emits the container. tail runs inside it after the body
// statements.
func (l *Loop) lower(a *Arena, c *lowering.Context, kind string, tail func() error) (graph.PortRef, error) {
	b := c.Builder()
	ins := make([]graph.PortRef, len(l.Params))
	for i, id := range l.Params {
		p, err := a.Lower(id, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		ins[i] = p
	}
	var maxIt, start graph.PortRef
	if l.MaxIterations != NoNode {
		p, err := a.Lower(l.MaxIterations, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		maxIt = p
	}
	if l.Index != NoNode {
		p, err := a.Lower(l.Index, c)
		if err != nil {
			return graph.PortRef{}, err
		}
		start = p
	}

	name := l.Name
	if name == "" {
		name = kind
	}
	loop, err := b.CreateContainer(kind, name)
	if err != nil {
		return graph.PortRef{}, err
	}
	for i, id := range l.Params {
		p := a.Get(id).(*LoopParameter)
		if err := b.AddInputPort(loop, p.Name, p.Type); err != nil {
			return graph.PortRef{}, err
		}
		if p.IterationTarget {
			if err := b.SetMetadata(loop, graph.PortMetadataKey(p.Name, graph.MetaIterationTarget), "true"); err != nil {
				return graph.PortRef{}, err
			}
		}
		if err := b.Connect(ins[i], graph.PortRef{Node: loop, Port: p.Name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	for _, id := range l.Results {
		r := a.Get(id).(*LoopResult)
		if err := b.AddOutputPort(loop, r.Name, r.Type); err != nil {
			return graph.PortRef{}, err
		}
		if r.IterationTarget {
			if err := b.SetMetadata(loop, graph.PortMetadataKey(r.Name, graph.MetaIterationTarget), "true"); err != nil {
				return graph.PortRef{}, err
			}
		}
		if r.State != "" {
			if err := b.SetMetadata(loop, graph.PortMetadataKey(r.Name, graph.MetaStatePort), r.State); err != nil {
				return graph.PortRef{}, err
			}
		}
	}
	if l.MaxIterations != NoNode {
		err = b.Connect(maxIt, graph.PortRef{Node: loop, Port: graph.MaxIterations})
	} else {
		err = b.RemovePort(loop, graph.MaxIterations)
	}
	if err != nil {
		return graph.PortRef{}, err
	}
	if l.Index != NoNode {
		if err := b.Connect(start, graph.PortRef{Node: loop, Port: graph.CurrentIndex}); err != nil {
			return graph.PortRef{}, err
		}
	}

	if err := c.Push(loop); err != nil {
		return graph.PortRef{}, err
	}
	mem := c.Memory()
	for _, id := range l.Params {
		p := a.Get(id).(*LoopParameter)
		if err := mem.Define(p.Name, p.Inner, graph.PortRef{Node: loop, Port: p.Name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	if err := mem.Define("#", longType, graph.PortRef{Node: loop, Port: graph.CurrentIndex}); err != nil {
		return graph.PortRef{}, err
	}
	if l.MaxIterations != NoNode {
		if err := mem.Define(graph.MaxIterations, longType, graph.PortRef{Node: loop, Port: graph.MaxIterations}); err != nil {
			return graph.PortRef{}, err
		}
	}
	if l.Index != NoNode {
		name := a.Get(l.Index).(*LoopIndex).Name
		if err := mem.Define(name, longType, graph.PortRef{Node: loop, Port: graph.CurrentIndex}); err != nil {
			return graph.PortRef{}, err
		}
	}
	for _, id := range l.Results {
		r := a.Get(id).(*LoopResult)
		if err := mem.DefineSetOnly(r.Name, r.Inner, graph.PortRef{Node: loop, Port: r.Name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	if err := a.LowerAll(l.Body, c); err != nil {
		return graph.PortRef{}, err
	}
	if tail != nil {
		if err := tail(); err != nil {
			return graph.PortRef{}, err
		}
	}
	if err := c.Pop(); err != nil {
		return graph.PortRef{}, err
	}
	if err := markTerminal(c, loop, l.Terminal); err != nil {
		return graph.PortRef{}, err
	}
	return firstPort(loop, l.Type), nil
}

// LoopForEach runs its body once per element of its iteration targets.
type LoopForEach struct{ Loop }

func (n *LoopForEach) clone(m func(NodeID) NodeID) Node {
	return &LoopForEach{Loop: n.cloneLoop(m)}
}

func (n *LoopForEach) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return n.lower(a, c, graph.ForEach, nil)
}

// LoopIterate runs its body max_iterations times, feeding state results
// back into their parameters.
type LoopIterate struct{ Loop }

func (n *LoopIterate) clone(m func(NodeID) NodeID) Node {
	return &LoopIterate{Loop: n.cloneLoop(m)}
}

func (n *LoopIterate) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return n.lower(a, c, graph.Iterate, nil)
}

// LoopDoWhile runs its body until Condition, evaluated after the body, is
// false.
type LoopDoWhile struct {
	Loop
	Condition NodeID
}

func (n *LoopDoWhile) clone(m func(NodeID) NodeID) Node {
	return &LoopDoWhile{Loop: n.cloneLoop(m), Condition: m(n.Condition)}
}

func (n *LoopDoWhile) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	return n.lower(a, c, graph.DoWhile, func() error {
		cond, err := a.Lower(n.Condition, c)
		if err != nil {
			return err
		}
		return c.Connect(cond, graph.PortRef{Node: c.Container(), Port: graph.LoopingCondition})
	})
}

// ScopeParameter is a compound input. Default is lowered in the caller.
type ScopeParameter struct {
	Base
	Name    string
	Default NodeID
}

func (n *ScopeParameter) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Default = m(n.Default)
	return &cp
}

func (n *ScopeParameter) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	if n.Default == NoNode {
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrE001, "Parameter '%s' has no default", n.Name)
	}
	return a.Lower(n.Default, c)
}

// ScopeResult is a compound output. Feedback names the parameter it is
// fed back into.
type ScopeResult struct {
	Base
	Name     string
	Feedback string
}

func (n *ScopeResult) clone(func(NodeID) NodeID) Node { cp := *n; return &cp }

func (n *ScopeResult) Lower(*Arena, *lowering.Context) (graph.PortRef, error) {
	return graph.PortRef{}, nil
}

// Scope is a compound: a function body or an inline scope. Type is the
// bundle of its results.
type Scope struct {
	Base
	Name     string
	Params   []NodeID
	Results  []NodeID
	Body     []NodeID
	Terminal string
}

func (n *Scope) clone(m func(NodeID) NodeID) Node {
	cp := *n
	cp.Params, cp.Results, cp.Body = mapIDs(n.Params, m), mapIDs(n.Results, m), mapIDs(n.Body, m)
	return &cp
}

func (n *Scope) Lower(a *Arena, c *lowering.Context) (graph.PortRef, error) {
	b := c.Builder()
	name := n.Name
	if name == "" {
		name = "unnamed"
	}
	comp, err := b.CreateContainer(graph.Compound, name)
	if err != nil {
		return graph.PortRef{}, err
	}
	for _, id := range n.Params {
		p := a.Get(id).(*ScopeParameter)
		if err := b.AddInputPort(comp, p.Name, p.Type); err != nil {
			return graph.PortRef{}, err
		}
	}
	for _, id := range n.Results {
		r := a.Get(id).(*ScopeResult)
		if err := b.AddOutputPort(comp, r.Name, r.Type); err != nil {
			return graph.PortRef{}, err
		}
		if r.Feedback != "" {
			if err := b.SetMetadata(comp, graph.PortMetadataKey(r.Name, graph.MetaFeedbackPort), r.Feedback); err != nil {
				return graph.PortRef{}, err
			}
		}
	}

	if err := c.Push(comp); err != nil {
		return graph.PortRef{}, err
	}
	mem := c.Memory()
	for _, id := range n.Params {
		p := a.Get(id).(*ScopeParameter)
		if err := mem.Define(p.Name, p.Type, graph.PortRef{Node: comp, Port: p.Name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	for _, id := range n.Results {
		r := a.Get(id).(*ScopeResult)
		if err := mem.DefineSetOnly(r.Name, r.Type, graph.PortRef{Node: comp, Port: r.Name}); err != nil {
			return graph.PortRef{}, err
		}
	}
	if err := a.LowerAll(n.Body, c); err != nil {
		return graph.PortRef{}, err
	}
	if err := c.Pop(); err != nil {
		return graph.PortRef{}, err
	}
	if err := b.Rename(comp, name); err != nil {
		return graph.PortRef{}, err
	}
	if err := markTerminal(c, comp, n.Terminal); err != nil {
		return graph.PortRef{}, err
	}
	return firstPort(comp, n.Type), nil
}
