package lowering

import (
	"sort"

	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Binding is a lowered variable: the port currently carrying its value, or
// for output variables the port that still has to be driven.
type Binding struct {
	Port graph.PortRef
	Type typesystem.Type
}

// Memory maps variable names to ports inside one container.
type Memory struct {
	values   map[string]Binding
	setOnly  map[string]Binding
	consumed map[string]bool
}

// NewMemory returns an empty frame memory.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]Binding),
		setOnly:  make(map[string]Binding),
		consumed: make(map[string]bool),
	}
}

// Define binds a fresh variable to the port producing its value.
func (m *Memory) Define(name string, t typesystem.Type, port graph.PortRef) error {
	if m.IsDefined(name) || m.IsSetOnly(name) || m.IsConsumed(name) {
		return diagnostics.Newf(diagnostics.ErrN002, "Variable already defined: '%s'", name)
	}
	m.values[name] = Binding{Port: port, Type: t}
	return nil
}

// DefineSetOnly declares an output variable. Assigning it connects the
// value to target.
func (m *Memory) DefineSetOnly(name string, t typesystem.Type, target graph.PortRef) error {
	if m.IsDefined(name) || m.IsSetOnly(name) || m.IsConsumed(name) {
		return diagnostics.Newf(diagnostics.ErrN002, "Output variable already defined: '%s'", name)
	}
	m.setOnly[name] = Binding{Port: target, Type: t}
	return nil
}

func (m *Memory) IsDefined(name string) bool {
	_, ok := m.values[name]
	return ok
}

func (m *Memory) IsSetOnly(name string) bool {
	_, ok := m.setOnly[name]
	return ok
}

// IsConsumed reports whether name was an output variable that has been
// connected already.
func (m *Memory) IsConsumed(name string) bool { return m.consumed[name] }

// Get returns the port carrying the value of name.
func (m *Memory) Get(name string) (graph.PortRef, error) {
	b, ok := m.values[name]
	if !ok {
		if m.IsSetOnly(name) || m.IsConsumed(name) {
			return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrE002, "Cant read '%s' output variable", name)
		}
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrN001, "Unknown variable: '%s'", name)
	}
	return b.Port, nil
}

// Type returns the type of a value or output variable.
func (m *Memory) Type(name string) (typesystem.Type, bool) {
	if b, ok := m.values[name]; ok {
		return b.Type, true
	}
	b, ok := m.setOnly[name]
	return b.Type, ok
}

// GetSetOnly consumes an output variable and returns the port it drives.
func (m *Memory) GetSetOnly(name string) (Binding, error) {
	b, ok := m.setOnly[name]
	if !ok {
		return Binding{}, diagnostics.Newf(diagnostics.ErrN001, "Unknown output variable: '%s'", name)
	}
	delete(m.setOnly, name)
	m.consumed[name] = true
	return b, nil
}

// Set rebinds a defined variable to a new port.
func (m *Memory) Set(name string, port graph.PortRef) error {
	if m.IsSetOnly(name) {
		return diagnostics.Newf(diagnostics.ErrE002, "Output variable '%s' must be connected, not set", name)
	}
	b, ok := m.values[name]
	if !ok {
		return diagnostics.Newf(diagnostics.ErrN001, "Unknown variable: '%s'", name)
	}
	b.Port = port
	m.values[name] = b
	return nil
}

// Pending lists the output variables nothing has been connected to yet.
func (m *Memory) Pending() []string {
	var names []string
	for n := range m.setOnly {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
