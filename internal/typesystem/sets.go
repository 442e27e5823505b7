package typesystem

import "strings"

// TypeSet is an ordered, duplicate free set of types.
type TypeSet struct {
	items []Type
	index map[string]struct{}
}

// NewTypeSet builds a set from the given types, keeping the first
// occurrence of each tag.
func NewTypeSet(types ...Type) TypeSet {
	s := TypeSet{index: make(map[string]struct{}, len(types))}
	for _, t := range types {
		s.add(t)
	}
	return s
}

// SetOf builds a set from tags.
func SetOf(tags ...string) TypeSet {
	s := TypeSet{index: make(map[string]struct{}, len(tags))}
	for _, tag := range tags {
		s.add(Of(tag))
	}
	return s
}

func (s *TypeSet) add(t Type) {
	if _, ok := s.index[t.tag]; ok {
		return
	}
	s.index[t.tag] = struct{}{}
	s.items = append(s.items, Of(t.tag))
}

func (s TypeSet) Contains(t Type) bool {
	_, ok := s.index[t.tag]
	return ok
}

func (s TypeSet) Len() int { return len(s.items) }

// Types returns the members in insertion order.
func (s TypeSet) Types() []Type {
	return append([]Type(nil), s.items...)
}

func (s TypeSet) Union(o TypeSet) TypeSet {
	out := NewTypeSet(s.items...)
	for _, t := range o.items {
		out.add(t)
	}
	return out
}

func (s TypeSet) Intersect(o TypeSet) TypeSet {
	return s.Filter(o.Contains)
}

func (s TypeSet) Minus(o TypeSet) TypeSet {
	return s.Filter(func(t Type) bool { return !o.Contains(t) })
}

// Filter keeps the members for which keep returns true.
func (s TypeSet) Filter(keep func(Type) bool) TypeSet {
	out := NewTypeSet()
	for _, t := range s.items {
		if keep(t) {
			out.add(t)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Named sets
// ----------------------------------------------------------------------------

// Sets holds the named port type sets over one type universe.
type Sets struct {
	All          TypeSet
	Array        TypeSet
	Array1       TypeSet
	Array2       TypeSet
	Array3       TypeSet
	Simple       TypeSet
	Bool         TypeSet
	String       TypeSet
	Object       TypeSet
	Vector       TypeSet
	Vector2      TypeSet
	Vector3      TypeSet
	Vector4      TypeSet
	Matrix       TypeSet
	MatrixSquare TypeSet
	Float        TypeSet
	Double       TypeSet
	Floating     TypeSet
	Unsigned     TypeSet
	Integer      TypeSet
	Big          TypeSet
	Long         TypeSet
	Int          TypeSet
	Numeric      TypeSet
	Field        TypeSet
	Field3       TypeSet
	Fields       TypeSet
	AutoScalar   TypeSet
	AutoVector   TypeSet

	matrices map[[2]int]TypeSet
}

// MatrixOf returns the rows x cols matrix set (every scalar base, every
// array depth).
func (s *Sets) MatrixOf(rows, cols int) TypeSet {
	return s.matrices[[2]int{rows, cols}]
}

// NewSets expands the non-array bases to every array depth and partitions
// the result.
func NewSets(bases []string) *Sets {
	var universe []Type
	for depth := 0; depth <= MaxArrayDim; depth++ {
		for _, b := range bases {
			universe = append(universe, Of(b).Wrap(depth))
		}
	}
	all := NewTypeSet(universe...)

	s := &Sets{All: all, matrices: make(map[[2]int]TypeSet)}
	s.Array = all.Filter(Type.IsArray)
	s.Array1 = all.Filter(func(t Type) bool { return t.ArrayDim() == 1 })
	s.Array2 = all.Filter(func(t Type) bool { return t.ArrayDim() == 2 })
	s.Array3 = all.Filter(func(t Type) bool { return t.ArrayDim() == 3 })
	s.Simple = all.Filter(func(t Type) bool { return !strings.Contains(t.tag, "::") })
	s.Bool = all.Filter(func(t Type) bool { return t.Scalar().tag == Bool })
	s.String = all.Filter(Type.IsString)
	s.Object = all.Filter(Type.IsObject)

	inner := func(pred func(Type) bool) TypeSet {
		return all.Filter(func(t Type) bool { return pred(t.Innermost()) })
	}
	s.Vector = inner(Type.IsVector)
	s.Vector2 = inner(func(t Type) bool { return t.VectorDim() == 2 })
	s.Vector3 = inner(func(t Type) bool { return t.VectorDim() == 3 })
	s.Vector4 = inner(func(t Type) bool { return t.VectorDim() == 4 })
	s.Matrix = inner(Type.IsMatrix)
	for r := 2; r <= 4; r++ {
		for c := 2; c <= 4; c++ {
			s.matrices[[2]int{r, c}] = inner(func(t Type) bool {
				tr, tc := t.MatrixDim()
				return tr == r && tc == c
			})
		}
	}
	s.MatrixSquare = s.MatrixOf(2, 2).Union(s.MatrixOf(3, 3)).Union(s.MatrixOf(4, 4))

	s.Float = inner(func(t Type) bool { return t.BaseType().tag == Float })
	s.Double = inner(func(t Type) bool { return t.BaseType().tag == Double })
	s.Floating = s.Float.Union(s.Double)
	s.Unsigned = all.Filter(func(t Type) bool { return t.Scalar().IsUnsigned() })
	s.Integer = all.Filter(func(t Type) bool { return t.Scalar().IsInteger() })
	s.Big = all.Filter(func(t Type) bool { return t.Scalar().IsBig() })
	s.Long = inner(func(t Type) bool {
		b := t.BaseType().tag
		return b == Long || b == ULong
	})
	s.Int = inner(func(t Type) bool {
		b := t.BaseType().tag
		return b == Int || b == UInt
	})
	s.Numeric = s.Floating.Union(s.Integer)

	s.Field = inner(func(t Type) bool { return t.tag == ScalarField })
	s.Field3 = inner(func(t Type) bool { return t.tag == VectorField })
	s.Fields = s.Field.Union(s.Field3)

	s.AutoScalar = SetOf(Float, "array<float>", "array<bool>", "array<long>", String).Union(s.Field.Minus(s.Array))
	s.AutoVector = SetOf(Float, "Math::float3", "array<Math::float3>", String).Union(s.Fields.Minus(s.Array))
	return s
}
