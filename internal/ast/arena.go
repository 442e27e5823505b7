// Package ast is the typed intermediate representation between the parse
// tree and the graph. Nodes live in an Arena and refer to each other by
// NodeID; the arena owns the one-shot lowering memo of every node.
package ast

import (
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

// NodeID is the handle of a node in its arena.
type NodeID int32

// NoNode is the absent node.
const NoNode NodeID = 0

// Node is implemented by every AST variant of this package.
type Node interface {
	Position() parsetree.Pos
	ValueType() typesystem.Type
	IsConstant(a *Arena) bool
	// Lower emits the node into c and returns the port carrying its value.
	// Statements return the zero port. Use Arena.Lower, which memoizes.
	Lower(a *Arena, c *lowering.Context) (graph.PortRef, error)
	clone(m func(NodeID) NodeID) Node
}

// Target is a node an assignment can store a value into.
type Target interface {
	Node
	assign(a *Arena, c *lowering.Context, self NodeID, value graph.PortRef) error
}

// Base carries the position and value type of a node.
type Base struct {
	At   parsetree.Pos
	Type typesystem.Type
}

func (b *Base) Position() parsetree.Pos    { return b.At }
func (b *Base) ValueType() typesystem.Type { return b.Type }
func (b *Base) IsConstant(*Arena) bool     { return false }

type memo struct {
	done bool
	out  graph.PortRef
}

// Arena owns the nodes of one compilation.
type Arena struct {
	nodes []Node
	memo  []memo
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: []Node{nil}, memo: []memo{{}}}
}

// Add stores n and returns its id.
func (a *Arena) Add(n Node) NodeID {
	a.nodes = append(a.nodes, n)
	a.memo = append(a.memo, memo{})
	return NodeID(len(a.nodes) - 1)
}

// Get returns the node with the given id, or nil.
func (a *Arena) Get(id NodeID) Node {
	if id <= NoNode || int(id) >= len(a.nodes) {
		return nil
	}
	return a.nodes[id]
}

// Len is the number of nodes.
func (a *Arena) Len() int { return len(a.nodes) - 1 }

// Type returns the value type of a node. The absent node has the zero type.
func (a *Arena) Type(id NodeID) typesystem.Type {
	if n := a.Get(id); n != nil {
		return n.ValueType()
	}
	return typesystem.Type{}
}

// IsConstant reports whether a node is a compile time constant.
func (a *Arena) IsConstant(id NodeID) bool {
	if n := a.Get(id); n != nil {
		return n.IsConstant(a)
	}
	return false
}

// Lowered reports whether a node has been lowered.
func (a *Arena) Lowered(id NodeID) bool {
	return id > NoNode && int(id) < len(a.memo) && a.memo[id].done
}

// Lower emits a node once. Later calls return the first result and emit
// nothing.
func (a *Arena) Lower(id NodeID, c *lowering.Context) (graph.PortRef, error) {
	n := a.Get(id)
	if n == nil {
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrE001, "Invalid node id %d", id)
	}
	if m := a.memo[id]; m.done {
		return m.out, nil
	}
	out, err := n.Lower(a, c)
	if err != nil {
		return graph.PortRef{}, diagnostics.At(err, n.Position())
	}
	a.memo[id] = memo{done: true, out: out}
	return out, nil
}

// LowerAll lowers ids in order.
func (a *Arena) LowerAll(ids []NodeID, c *lowering.Context) error {
	for _, id := range ids {
		if _, err := a.Lower(id, c); err != nil {
			return err
		}
	}
	return nil
}

// Copy duplicates the subtree rooted at id. remap maps original ids to
// their copies; nodes reached twice are copied once, so shared subtrees
// stay shared inside the copy. Copies start with an empty memo.
func (a *Arena) Copy(id NodeID, remap map[NodeID]NodeID) NodeID {
	if id == NoNode {
		return NoNode
	}
	if cp, ok := remap[id]; ok {
		return cp
	}
	n := a.Get(id)
	if n == nil {
		return NoNode
	}
	cp := a.Add(n.clone(func(child NodeID) NodeID { return a.Copy(child, remap) }))
	remap[id] = cp
	return cp
}

func mapIDs(ids []NodeID, m func(NodeID) NodeID) []NodeID {
	if ids == nil {
		return nil
	}
	out := make([]NodeID, len(ids))
	for i, id := range ids {
		out[i] = m(id)
	}
	return out
}

func allConstant(a *Arena, ids []NodeID) bool {
	for _, id := range ids {
		if !a.IsConstant(id) {
			return false
		}
	}
	return true
}

// port returns another output of the node behind ref.
func port(ref graph.PortRef, name string) graph.PortRef {
	return graph.PortRef{Node: ref.Node, Port: name}
}

// markTerminal applies terminal flags to a lowered node.
func markTerminal(c *lowering.Context, node graph.NodeID, flags string) error {
	if flags == "" {
		return nil
	}
	return c.Builder().MarkTerminal(node, flags)
}

// asChar converts a bool valued port for an input that is not bool.
func asChar(c *lowering.Context, ref graph.PortRef, value, target typesystem.Type) (graph.PortRef, error) {
	if !value.Unwrap().BaseType().IsBool() || (!target.IsZero() && target.BaseType().IsBool()) {
		return ref, nil
	}
	return c.ToChar(ref)
}
