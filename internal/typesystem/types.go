// Package typesystem implements the port type algebra: scalar, vector,
// matrix, array (depth <= 3), object, field and bundle types, their
// compatibility relation and the operator typing rules.
//
// Types are identified by their canonical tag, the same textual form the
// operator catalog uses ("float", "array<Math::float3>", "Math::double4x4").
// All tag string inspection lives in this package.
package typesystem

import (
	"strings"

	"github.com/funvibe/flowc/internal/diagnostics"
)

// MaxArrayDim is the deepest array nesting a port type may have.
const MaxArrayDim = 3

const (
	AutoTag   = "auto"
	BundleTag = "__NODE"

	arrayOpen  = "array<"
	mathPrefix = "Math::"
)

// Scalar base names.
const (
	Bool        = "bool"
	Char        = "char"
	UChar       = "uchar"
	Short       = "short"
	UShort      = "ushort"
	Int         = "int"
	UInt        = "uint"
	Long        = "long"
	ULong       = "ulong"
	Float       = "float"
	Double      = "double"
	String      = "string"
	Object      = "Object"
	ScalarField = "Core::Fields::ScalarField"
	VectorField = "Core::Fields::VectorField"
)

// NumericScalars are the numeric scalar bases in promotion order.
var NumericScalars = []string{Char, UChar, Short, UShort, Int, UInt, Long, ULong, Float, Double}

// Auto is the unresolved placeholder type.
var Auto = Type{tag: AutoTag}

// Port is one named output of a bundle type.
type Port struct {
	Name string
	Type Type
}

// Type is an immutable port type. Equality is tag equality; the port list
// only exists on bundle types.
type Type struct {
	tag   string
	ports []Port
}

// Registry resolves base names that are not built in: catalog types,
// enums and short aliases.
type Registry interface {
	// Canonical maps a base name or alias to its canonical tag.
	Canonical(base string) (string, bool)
}

// Of wraps a tag without validation. Use it for tags that are known to be
// canonical (catalog data, derived tags).
func Of(tag string) Type {
	return Type{tag: tag}
}

// Make validates and canonicalises tag. The innermost base must be built in
// or known to reg, and the array depth may not exceed MaxArrayDim.
func Make(tag string, reg Registry) (Type, error) {
	dim := strings.Count(tag, ">")
	base := innermostTag(tag)
	if dim > MaxArrayDim {
		return Type{}, diagnostics.New(diagnostics.ErrT004, "Arrays are currently limited to 3 dimensions!")
	}
	switch base {
	case "*", "[]", "[1]", "[2]", "[3]":
		base = AutoTag
	}
	if base == BundleTag {
		return Type{}, diagnostics.New(diagnostics.ErrE001, "bundle type requires port data")
	}
	canonical, ok := canonicalBase(base, reg)
	if !ok {
		return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Unknown type: '%s'", tag)
	}
	return Of(canonical).Wrap(dim), nil
}

// ParsePortType reads a declared port type. Either form is accepted:
// "float[][]" or "array<array<float>>".
func ParsePortType(s string, reg Registry) (Type, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "[") && !strings.HasPrefix(s, arrayOpen) {
		dim := strings.Count(s, "[")
		base := strings.TrimRight(s, "[]")
		if dim > MaxArrayDim {
			return Type{}, diagnostics.New(diagnostics.ErrT004, "Arrays are currently limited to 3 dimensions!")
		}
		s = strings.Repeat(arrayOpen, dim) + base + strings.Repeat(">", dim)
	}
	return Make(s, reg)
}

func canonicalBase(base string, reg Registry) (string, bool) {
	if reg != nil {
		if c, ok := reg.Canonical(base); ok {
			return c, true
		}
	}
	if base == AutoTag || IsBuiltinBase(base) {
		return base, true
	}
	return "", false
}

// NewBundle builds the bundle marker type for a multi-output call.
func NewBundle(ports []Port) (Type, error) {
	if ports == nil {
		return Type{}, diagnostics.New(diagnostics.ErrE001, "bundle type requires port data")
	}
	cp := make([]Port, len(ports))
	copy(cp, ports)
	return Type{tag: BundleTag, ports: cp}, nil
}

func (t Type) String() string { return t.tag }

// Tag returns the canonical tag.
func (t Type) Tag() string { return t.tag }

// IsZero reports whether t is the zero Type.
func (t Type) IsZero() bool { return t.tag == "" }

func (t Type) Equal(o Type) bool { return t.tag == o.tag }

func (t Type) IsAuto() bool   { return t.tag == AutoTag }
func (t Type) IsBundle() bool { return t.tag == BundleTag }

// Ports returns a fresh copy of a bundle's outputs.
func (t Type) Ports() []Port {
	if t.ports == nil {
		return nil
	}
	cp := make([]Port, len(t.ports))
	copy(cp, t.ports)
	return cp
}

// PortNames returns the bundle output names in declaration order.
func (t Type) PortNames() []string {
	names := make([]string, len(t.ports))
	for i, p := range t.ports {
		names[i] = p.Name
	}
	return names
}

// Port returns the type of a bundle output.
func (t Type) Port(name string) (Type, bool) {
	for _, p := range t.ports {
		if p.Name == name {
			return p.Type, true
		}
	}
	return Type{}, false
}

// Unwrap returns the single output of a one-port bundle, otherwise t.
func (t Type) Unwrap() Type {
	if t.IsBundle() && len(t.ports) == 1 {
		return t.ports[0].Type
	}
	return t
}

// ----------------------------------------------------------------------------
// Structure
// ----------------------------------------------------------------------------

func (t Type) IsArray() bool { return strings.HasPrefix(t.tag, arrayOpen) }

func (t Type) ArrayDim() int { return strings.Count(t.tag, "<") }

// Element strips one array level.
func (t Type) Element() Type {
	if !t.IsArray() {
		return t
	}
	return Type{tag: t.tag[len(arrayOpen) : len(t.tag)-1], ports: t.ports}
}

// Innermost strips every array level.
func (t Type) Innermost() Type {
	for t.IsArray() {
		t = t.Element()
	}
	return t
}

// Wrap nests t into depth array levels.
func (t Type) Wrap(depth int) Type {
	if depth <= 0 {
		return t
	}
	return Type{tag: strings.Repeat(arrayOpen, depth) + t.tag + strings.Repeat(">", depth), ports: t.ports}
}

// BaseType strips every array level for arrays, the vector or matrix suffix
// for non-array vectors and matrices, and is the identity otherwise.
func (t Type) BaseType() Type {
	switch {
	case t.IsArray():
		return t.Innermost()
	case t.IsMatrix():
		s := t.tag[strings.LastIndex(t.tag, "::")+2:]
		return Type{tag: s[:len(s)-3], ports: t.ports}
	case t.IsVector():
		s := t.tag[strings.LastIndex(t.tag, "::")+2:]
		return Type{tag: s[:len(s)-1], ports: t.ports}
	}
	return t
}

// Scalar strips both the array levels and the vector or matrix suffix.
func (t Type) Scalar() Type {
	return t.Innermost().BaseType()
}

func (t Type) IsVector() bool {
	n := len(t.tag)
	if n < 2 || !strings.Contains(t.tag, "::") {
		return false
	}
	return isDim(t.tag[n-1]) && !t.IsMatrix()
}

func (t Type) IsMatrix() bool {
	n := len(t.tag)
	if n < 3 {
		return false
	}
	return isDim(t.tag[n-3]) && t.tag[n-2] == 'x' && isDim(t.tag[n-1])
}

// VectorDim returns the component count, or -1.
func (t Type) VectorDim() int {
	if !t.IsVector() {
		return -1
	}
	return int(t.tag[len(t.tag)-1] - '0')
}

// MatrixDim returns (rows, cols), or (-1, -1).
func (t Type) MatrixDim() (int, int) {
	if !t.IsMatrix() {
		return -1, -1
	}
	n := len(t.tag)
	return int(t.tag[n-3] - '0'), int(t.tag[n-1] - '0')
}

// shape returns (rows, cols) with vectors as (n, -1) and scalars as (-1, -1).
func (t Type) shape() (int, int) {
	if t.IsMatrix() {
		return t.MatrixDim()
	}
	return t.VectorDim(), -1
}

func isDim(c byte) bool { return c == '2' || c == '3' || c == '4' }

// ----------------------------------------------------------------------------
// Classification
// ----------------------------------------------------------------------------

func (t Type) base() string { return t.BaseType().tag }

func (t Type) IsBool() bool { return t.base() == Bool }

func (t Type) IsString() bool { return t.base() == String }

func (t Type) IsObject() bool { return t.base() == Object }

func (t Type) IsFraction() bool {
	b := t.base()
	return b == Float || b == Double
}

func (t Type) IsInteger() bool {
	switch t.base() {
	case Char, UChar, Short, UShort, Int, UInt, Long, ULong:
		return true
	}
	return false
}

func (t Type) IsUnsigned() bool {
	switch t.base() {
	case UChar, UShort, UInt, ULong:
		return true
	}
	return false
}

func (t Type) IsBig() bool {
	switch t.base() {
	case Long, ULong, Double:
		return true
	}
	return false
}

func (t Type) IsField() bool {
	b := t.base()
	return b == ScalarField || b == VectorField
}

func (t Type) IsVectorField() bool { return t.base() == VectorField }

// IsNumeric is true for non-array bool, integer and fraction types,
// including vectors and matrices.
func (t Type) IsNumeric() bool {
	return (t.IsBool() || t.IsInteger() || t.IsFraction()) && !t.IsArray()
}

// NumericSize is the byte width of the scalar base, or -1.
func (t Type) NumericSize() int {
	switch t.Scalar().tag {
	case Bool, Char, UChar:
		return 1
	case Short, UShort:
		return 2
	case Int, UInt, Float:
		return 4
	case Long, ULong, Double:
		return 8
	}
	return -1
}

// WithScalar replaces the scalar base, keeping vector or matrix shape and
// array depth.
func (t Type) WithScalar(scalar string) Type {
	dim := t.ArrayDim()
	inner := t.Innermost()
	switch {
	case inner.IsVector():
		scalar = mathPrefix + scalar + inner.tag[len(inner.tag)-1:]
	case inner.IsMatrix():
		scalar = mathPrefix + scalar + inner.tag[len(inner.tag)-3:]
	}
	return Of(scalar).Wrap(dim)
}

// WithShape builds the vector or matrix form of a scalar base. rows or cols
// of -1 drop that dimension.
func WithShape(scalar string, rows, cols int) Type {
	switch {
	case rows > 0 && cols > 0:
		return Of(mathPrefix + scalar + string(rune('0'+rows)) + "x" + string(rune('0'+cols)))
	case rows > 0:
		return Of(mathPrefix + scalar + string(rune('0'+rows)))
	}
	return Of(scalar)
}

func innermostTag(tag string) string {
	s := tag[strings.LastIndex(tag, "<")+1:]
	if i := strings.Index(s, ">"); i >= 0 {
		s = s[:i]
	}
	return s
}

// ----------------------------------------------------------------------------
// Built-in vocabulary
// ----------------------------------------------------------------------------

var builtinBases = buildBuiltinBases()

func buildBuiltinBases() []string {
	scalars := append([]string{Bool}, NumericScalars...)
	out := append([]string{}, scalars...)
	out = append(out, String, Object, ScalarField, VectorField)
	for _, s := range scalars {
		for n := 2; n <= 4; n++ {
			out = append(out, WithShape(s, n, -1).tag)
		}
	}
	for _, s := range scalars {
		for r := 2; r <= 4; r++ {
			for c := 2; c <= 4; c++ {
				out = append(out, WithShape(s, r, c).tag)
			}
		}
	}
	return out
}

var builtinIndex = func() map[string]bool {
	m := make(map[string]bool, len(builtinBases))
	for _, b := range builtinBases {
		m[b] = true
	}
	return m
}()

// BuiltinBases lists every built-in non-array tag.
func BuiltinBases() []string {
	return append([]string(nil), builtinBases...)
}

func IsBuiltinBase(s string) bool { return builtinIndex[s] }
