// Package symbols is the static scope memory of the analyzer: a stack of
// frames mapping names to their types while the AST is being built.
//
// Frames are closed. A lookup only sees the innermost frame, so values
// enter a scope or a loop body through its declared parameters.
package symbols

import (
	"sort"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Symbol is one binding of a frame.
type Symbol struct {
	Name string
	Type typesystem.Type
	// Value is the node that produced a bundle. Bundles are looked through
	// by port access, so their producing node must be known statically.
	Value ast.NodeID
	// WriteOnly marks result bindings. They may be assigned to once but
	// never read.
	WriteOnly bool
	// Consumed is set once a write-only binding has been assigned.
	Consumed bool
}

type frame struct {
	data      map[string]Symbol
	writeOnly map[string]Symbol
}

func newFrame() *frame {
	return &frame{
		data:      make(map[string]Symbol),
		writeOnly: make(map[string]Symbol),
	}
}

func (f *frame) lookup(name string) (Symbol, bool) {
	if s, ok := f.data[name]; ok {
		return s, true
	}
	s, ok := f.writeOnly[name]
	return s, ok
}

// Memory is the frame stack. The root frame always exists.
type Memory struct {
	frames []*frame
}

// New returns a memory holding only the root frame.
func New() *Memory {
	return &Memory{frames: []*frame{newFrame()}}
}

func (m *Memory) top() *frame { return m.frames[len(m.frames)-1] }

// Depth is the number of frames, the root included.
func (m *Memory) Depth() int { return len(m.frames) }

// Push opens a new innermost frame.
func (m *Memory) Push() { m.frames = append(m.frames, newFrame()) }

// Pop drops the innermost frame with all its bindings.
func (m *Memory) Pop() error {
	if len(m.frames) == 1 {
		return diagnostics.New(diagnostics.ErrE001, "Cannot pop the root scope")
	}
	m.frames[len(m.frames)-1] = nil
	m.frames = m.frames[:len(m.frames)-1]
	return nil
}

// Define binds name in the innermost frame. Bundles need the node that
// produces them.
func (m *Memory) Define(name string, t typesystem.Type, value ast.NodeID, writeOnly bool) error {
	if t.IsBundle() && value == ast.NoNode {
		return diagnostics.New(diagnostics.ErrE001, "NODE type values need a producing node")
	}
	f := m.top()
	if _, ok := f.lookup(name); ok {
		return diagnostics.Newf(diagnostics.ErrN002, "Redefinition: '%s' already exists!", name)
	}
	s := Symbol{Name: name, Type: t, Value: value, WriteOnly: writeOnly}
	if writeOnly {
		f.writeOnly[name] = s
	} else {
		f.data[name] = s
	}
	return nil
}

// Set rebinds an existing name of the innermost frame to a new type. The
// write-only flag of the binding is kept. Unknown names are defined.
func (m *Memory) Set(name string, t typesystem.Type, value ast.NodeID) error {
	if t.IsBundle() && value == ast.NoNode {
		return diagnostics.New(diagnostics.ErrE001, "NODE type values need a producing node")
	}
	f := m.top()
	if s, ok := f.writeOnly[name]; ok {
		s.Type, s.Value = t, value
		f.writeOnly[name] = s
		return nil
	}
	f.data[name] = Symbol{Name: name, Type: t, Value: value}
	return nil
}

// Consume marks the write-only binding name as assigned. A second
// assignment is a redefinition.
func (m *Memory) Consume(name string) error {
	f := m.top()
	s, ok := f.writeOnly[name]
	if !ok {
		return diagnostics.Newf(diagnostics.ErrN001, "Unknown output variable: '%s'", name)
	}
	if s.Consumed {
		return diagnostics.Newf(diagnostics.ErrN002, "Output variable '%s' is already assigned", name)
	}
	s.Consumed = true
	f.writeOnly[name] = s
	return nil
}

// Lookup returns the binding of name in the innermost frame. Normal
// bindings shadow write-only ones.
func (m *Memory) Lookup(name string) (Symbol, bool) {
	return m.top().lookup(name)
}

// Type returns the type bound to name in the innermost frame.
func (m *Memory) Type(name string) (typesystem.Type, bool) {
	s, ok := m.Lookup(name)
	return s.Type, ok
}

// IsWriteOnly reports whether name is only bound as a result.
func (m *Memory) IsWriteOnly(name string) bool {
	f := m.top()
	if _, ok := f.data[name]; ok {
		return false
	}
	_, ok := f.writeOnly[name]
	return ok
}

// Value returns the producing node of a bundle binding.
func (m *Memory) Value(name string) (ast.NodeID, bool) {
	s, ok := m.Lookup(name)
	if !ok || s.Value == ast.NoNode {
		return ast.NoNode, false
	}
	return s.Value, true
}

// Names lists the readable names of the innermost frame, sorted.
func (m *Memory) Names() []string {
	f := m.top()
	names := make([]string, 0, len(f.data))
	for n := range f.data {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len is the number of bindings across all frames.
func (m *Memory) Len() int {
	n := 0
	for _, f := range m.frames {
		n += len(f.data) + len(f.writeOnly)
	}
	return n
}
