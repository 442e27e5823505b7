// Package catalog holds the operator catalog: every native operator and
// compound the target runtime offers, with its ports, port suggestions and
// overload list, plus the struct-like types and enums the runtime defines.
//
// Catalogs are YAML documents. The default catalog is embedded from
// data/*.yaml; extra files are merged over it with later definitions
// replacing earlier ones.
package catalog

import (
	"sort"
	"strings"

	"github.com/funvibe/flowc/internal/typesystem"
)

// Port is one input or output port of an operator.
type Port struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type,omitempty"`
	FanIn       bool     `yaml:"fan_in,omitempty"`
	Suggestions []string `yaml:"suggestions,omitempty"`
}

// IsAuto reports whether the port type is inferred per call site.
func (p Port) IsAuto() bool { return p.Type == typesystem.AutoTag }

// Signature is one overload: a type tag per input and per output port.
type Signature struct {
	In  []string `yaml:"in,flow"`
	Out []string `yaml:"out,flow"`
}

// Key is the dash-joined input list, the overload identity.
func (s Signature) Key() string { return strings.Join(s.In, "-") }

// HasAuto reports whether any port of the signature is still auto.
func (s Signature) HasAuto() bool {
	for _, t := range s.In {
		if t == typesystem.AutoTag {
			return true
		}
	}
	for _, t := range s.Out {
		if t == typesystem.AutoTag {
			return true
		}
	}
	return false
}

func (s Signature) clone() Signature {
	return Signature{
		In:  append([]string{}, s.In...),
		Out: append([]string{}, s.Out...),
	}
}

// Operator is a native operator or compound.
type Operator struct {
	Name      string      `yaml:"name"`
	Compound  bool        `yaml:"compound,omitempty"`
	Inputs    []Port      `yaml:"inputs,omitempty"`
	Outputs   []Port      `yaml:"outputs,omitempty"`
	Overloads []Signature `yaml:"overloads,omitempty"`
	Default   *Signature  `yaml:"default,omitempty"`
}

// InputNames returns the input port names in order.
func (op *Operator) InputNames() []string { return portNames(op.Inputs) }

// OutputNames returns the output port names in order.
func (op *Operator) OutputNames() []string { return portNames(op.Outputs) }

func portNames(ports []Port) []string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return names
}

// Input returns the index of the named input port, or -1.
func (op *Operator) Input(name string) int {
	for i, p := range op.Inputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Output returns the index of the named output port, or -1.
func (op *Operator) Output(name string) int {
	for i, p := range op.Outputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Primary is the first overload. The resolver only ever considers this one
// when inferring auto ports.
func (op *Operator) Primary() Signature {
	if len(op.Overloads) == 0 {
		return Signature{}
	}
	return op.Overloads[0]
}

// Suggestions returns the suggested types of every input port.
func (op *Operator) Suggestions() [][]string {
	out := make([][]string, len(op.Inputs))
	for i, p := range op.Inputs {
		out[i] = append([]string{}, p.Suggestions...)
	}
	return out
}

// Associative reports whether the operator takes a dynamic list of
// item{i} inputs and produces one auto output (build_array and friends).
func (op *Operator) Associative() bool {
	if len(op.Inputs) != 0 || len(op.Outputs) != 1 {
		return false
	}
	return op.Outputs[0].IsAuto()
}

// Overload returns the overload with the given key.
func (op *Operator) Overload(key string) (Signature, bool) {
	for _, s := range op.Overloads {
		if s.Key() == key {
			return s, true
		}
	}
	return Signature{}, false
}

// Clone returns a deep copy. The resolver rewrites overload lists of its
// own copy of the catalog.
func (op *Operator) Clone() *Operator {
	cp := *op
	cp.Inputs = clonePorts(op.Inputs)
	cp.Outputs = clonePorts(op.Outputs)
	cp.Overloads = make([]Signature, len(op.Overloads))
	for i, s := range op.Overloads {
		cp.Overloads[i] = s.clone()
	}
	if op.Default != nil {
		d := op.Default.clone()
		cp.Default = &d
	}
	return &cp
}

func clonePorts(ports []Port) []Port {
	out := make([]Port, len(ports))
	for i, p := range ports {
		p.Suggestions = append([]string{}, p.Suggestions...)
		out[i] = p
	}
	return out
}

// Member is one member port of a catalog type. Dotted names address nested
// members and are not constructor ports.
type Member struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// TypeDef is a struct-like runtime type.
type TypeDef struct {
	Name    string   `yaml:"name"`
	Alias   string   `yaml:"alias,omitempty"`
	Members []Member `yaml:"members,omitempty"`
}

// ConstructorPorts are the members a type-constructor call may bind.
func (t *TypeDef) ConstructorPorts() []Member {
	var out []Member
	for _, m := range t.Members {
		if !strings.Contains(m.Name, ".") {
			out = append(out, m)
		}
	}
	return out
}

// Member looks a member up by name.
func (t *TypeDef) Member(name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// EnumValue is a named enum constant.
type EnumValue struct {
	Name  string `yaml:"name"`
	Value int    `yaml:"value"`
}

// Enum is a runtime enum type.
type Enum struct {
	Name   string      `yaml:"name"`
	Values []EnumValue `yaml:"values"`
}

// Has reports whether the enum defines the named value.
func (e *Enum) Has(name string) bool {
	for _, v := range e.Values {
		if v.Name == name {
			return true
		}
	}
	return false
}

// File is the on-disk shape of one catalog document.
type File struct {
	Namespace string     `yaml:"namespace,omitempty"`
	Types     []TypeDef  `yaml:"types,omitempty"`
	Enums     []Enum     `yaml:"enums,omitempty"`
	Operators []Operator `yaml:"operators,omitempty"`
}

// Catalog is the merged, queryable catalog. Operator declaration order is
// preserved; it decides suffix lookups.
type Catalog struct {
	order   []string
	ops     map[string]*Operator
	types   map[string]*TypeDef
	aliases map[string]string
	enums   map[string]*Enum
	sources map[string]string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		ops:     make(map[string]*Operator),
		types:   make(map[string]*TypeDef),
		aliases: make(map[string]string),
		enums:   make(map[string]*Enum),
		sources: make(map[string]string),
	}
}

// Add registers an operator, replacing any previous definition of the same
// name in place.
func (c *Catalog) Add(op *Operator) {
	if _, ok := c.ops[op.Name]; !ok {
		c.order = append(c.order, op.Name)
	}
	c.ops[op.Name] = op
}

// AddType registers a type and its alias.
func (c *Catalog) AddType(t *TypeDef) {
	c.types[t.Name] = t
	if t.Alias != "" {
		c.aliases[t.Alias] = t.Name
	}
}

// AddEnum registers an enum.
func (c *Catalog) AddEnum(e *Enum) { c.enums[e.Name] = e }

// Merge copies every definition of o into c. Definitions of o win.
func (c *Catalog) Merge(o *Catalog) {
	for _, name := range o.order {
		c.Add(o.ops[name])
		if src, ok := o.sources[name]; ok {
			c.sources[name] = src
		}
	}
	for _, t := range o.types {
		c.AddType(t)
	}
	for _, e := range o.enums {
		c.AddEnum(e)
	}
}

// Clone returns a deep copy of the operator table. Types and enums are
// shared; nothing mutates them after loading.
func (c *Catalog) Clone() *Catalog {
	cp := New()
	for _, name := range c.order {
		cp.Add(c.ops[name].Clone())
	}
	for k, v := range c.sources {
		cp.sources[k] = v
	}
	for _, t := range c.types {
		cp.AddType(t)
	}
	for _, e := range c.enums {
		cp.AddEnum(e)
	}
	return cp
}

// Len is the number of operators.
func (c *Catalog) Len() int { return len(c.order) }

// Operators returns the operator names in declaration order.
func (c *Catalog) Operators() []string {
	return append([]string{}, c.order...)
}

// Lookup returns the operator with exactly this name.
func (c *Catalog) Lookup(name string) (*Operator, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// Resolve maps a possibly short name to the fully qualified operator name:
// the exact name if known, else the first operator in declaration order
// whose name ends with "::"+name.
func (c *Catalog) Resolve(name string) (string, bool) {
	if _, ok := c.ops[name]; ok {
		return name, true
	}
	suffix := "::" + name
	for _, n := range c.order {
		if strings.HasSuffix(n, suffix) {
			return n, true
		}
	}
	return "", false
}

// Operator resolves name like Resolve and returns the operator.
func (c *Catalog) Operator(name string) (*Operator, bool) {
	full, ok := c.Resolve(name)
	if !ok {
		return nil, false
	}
	return c.ops[full], true
}

// Source reports the file an operator was read from.
func (c *Catalog) Source(name string) string { return c.sources[name] }

// Type returns a catalog type by name or alias.
func (c *Catalog) Type(name string) (*TypeDef, bool) {
	if full, ok := c.aliases[name]; ok {
		name = full
	}
	t, ok := c.types[name]
	return t, ok
}

// Enum returns a catalog enum by name.
func (c *Catalog) Enum(name string) (*Enum, bool) {
	e, ok := c.enums[name]
	return e, ok
}

// Canonical implements typesystem.Registry for catalog types, their aliases
// and enums.
func (c *Catalog) Canonical(base string) (string, bool) {
	if full, ok := c.aliases[base]; ok {
		return full, true
	}
	if _, ok := c.types[base]; ok {
		return base, true
	}
	if _, ok := c.enums[base]; ok {
		return base, true
	}
	return "", false
}

// TypeNames returns the names of every catalog type and enum, sorted.
func (c *Catalog) TypeNames() []string {
	names := make([]string, 0, len(c.types)+len(c.enums))
	for n := range c.types {
		names = append(names, n)
	}
	for n := range c.enums {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sets builds the named port type sets over the builtin bases plus every
// catalog type and enum.
func (c *Catalog) Sets() *typesystem.Sets {
	bases := append(typesystem.BuiltinBases(), c.TypeNames()...)
	return typesystem.NewSets(bases)
}
