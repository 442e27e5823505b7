package resolver

import (
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

// ----------------------------------------------------------------------------
// Shared helpers
// ----------------------------------------------------------------------------

func typeErr(format string, args ...interface{}) error {
	return diagnostics.Newf(diagnostics.ErrT001, format, args...)
}

// promoteEach moves every argument into set, promoting where needed.
func promoteEach(names []string, args []typesystem.Type, set typesystem.TypeSet) ([]typesystem.Type, error) {
	out := append([]typesystem.Type{}, args...)
	for i, t := range out {
		if set.Contains(t) {
			continue
		}
		if t.IsAuto() {
			return nil, typeErr("Missing required parameter '%s'", portName(names, i))
		}
		p, ok := typesystem.PromotableToOneOf(t, set)
		if !ok {
			return nil, typeErr("'%s' with type '%s' unsupported", portName(names, i), t)
		}
		out[i] = p
	}
	return out, nil
}

// fold combines types left to right with the arithmetic typing rule.
func fold(types []typesystem.Type) (typesystem.Type, error) {
	if len(types) == 0 {
		return typesystem.Type{}, diagnostics.New(diagnostics.ErrE001, "nothing to combine")
	}
	acc := types[0]
	for _, t := range types[1:] {
		var err error
		if acc, err = typesystem.MathOpType(acc, t, "?", false); err != nil {
			return typesystem.Type{}, err
		}
	}
	return acc, nil
}

// multiSame promotes every argument into set and folds them into one
// common type. With toFloat a non-field result is widened to a fraction.
func multiSame(names []string, args []typesystem.Type, set typesystem.TypeSet, toFloat bool) ([]typesystem.Type, typesystem.Type, error) {
	in, err := promoteEach(names, args, set)
	if err != nil {
		return nil, typesystem.Type{}, err
	}
	res, err := fold(in)
	if err != nil {
		return nil, typesystem.Type{}, err
	}
	if toFloat && !res.Innermost().IsField() {
		if res, err = typesystem.MathOpType(res, typesystem.Of(typesystem.Float), "?", false); err != nil {
			return nil, typesystem.Type{}, err
		}
	}
	return in, res, nil
}

// commonArrayDim returns the array depth shared by every array argument.
func commonArrayDim(args []typesystem.Type) (int, error) {
	dim := 0
	for _, t := range args {
		if !t.IsArray() {
			continue
		}
		if dim != 0 && t.ArrayDim() != dim {
			return 0, diagnostics.New(diagnostics.ErrT004, "Array dimension missmatch")
		}
		dim = t.ArrayDim()
	}
	return dim, nil
}

func innermostAll(args []typesystem.Type) []typesystem.Type {
	out := make([]typesystem.Type, len(args))
	for i, t := range args {
		out[i] = t.Innermost()
	}
	return out
}

func one(t typesystem.Type) []typesystem.Type { return []typesystem.Type{t} }

// ----------------------------------------------------------------------------
// Resolver functions
// ----------------------------------------------------------------------------

// sameAll promotes into set and returns the folded type for every output.
func sameAll(set typesystem.TypeSet, toFloat bool) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := multiSame(c.InputNames, c.Args, set, toFloat)
		if err != nil {
			return nil, nil, err
		}
		return in, one(res), nil
	}
}

// arithmetic types the two operand arithmetic operators. Both inputs and the
// output take the combined type, so a scalar broadcasts into an array port.
func arithmetic(op string) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		for i, t := range c.Args {
			if t.IsAuto() {
				return nil, nil, typeErr("Missing required parameter '%s'", portName(c.InputNames, i))
			}
		}
		acc := c.Args[0]
		for _, t := range c.Args[1:] {
			var err error
			if acc, err = typesystem.MathOpType(acc, t, op, false); err != nil {
				return nil, nil, err
			}
		}
		in := make([]typesystem.Type, len(c.Args))
		for i := range in {
			in[i] = acc
		}
		return in, one(acc), nil
	}
}

func compare(op string) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		res, err := typesystem.CompareType(c.Args[0], c.Args[1], op)
		if err != nil {
			return nil, nil, err
		}
		return c.Args, one(res), nil
	}
}

func logic(op string) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		res, err := typesystem.LogicType(c.Args[0], c.Args[1], op)
		if err != nil {
			return nil, nil, err
		}
		return c.Args, one(res), nil
	}
}

func negate(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
	res, err := typesystem.NegateType(c.Args[0])
	if err != nil {
		return nil, nil, err
	}
	return c.Args, one(res), nil
}

func power(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
	res, err := typesystem.MathOpType(c.Args[0], c.Args[1], "**", false)
	if err != nil {
		return nil, nil, err
	}
	return c.Args, one(res), nil
}

func ifResolver(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
	dim, err := commonArrayDim(c.Args)
	if err != nil {
		return nil, nil, err
	}
	base := innermostAll(c.Args)
	if base[0].Tag() != typesystem.Bool {
		return nil, nil, typeErr("BOOL or BOOL[] required as condition")
	}
	numericOrField := func(t typesystem.Type) bool { return t.IsNumeric() || t.IsField() }
	if !numericOrField(base[1]) || !numericOrField(base[2]) {
		if base[1].Equal(base[2]) {
			return c.Args, one(base[1].Wrap(dim)), nil
		}
		return nil, nil, typeErr("Type missmatch '%s' <> '%s'", c.Args[1], c.Args[2])
	}
	res, err := typesystem.MathOpType(base[1], base[2], "if", false)
	if err != nil {
		return nil, nil, err
	}
	return c.Args, one(res.Wrap(dim)), nil
}

func membersIf(s *typesystem.Sets) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		dim, err := commonArrayDim(c.Args)
		if err != nil {
			return nil, nil, err
		}
		base := innermostAll(c.Args)
		if base[0].Scalar().Tag() != typesystem.Bool {
			return nil, nil, typeErr("Some form of BOOL required as condition")
		}
		in, res, err := multiSame(c.InputNames[1:], base[1:], s.All, false)
		if err != nil {
			return nil, nil, err
		}
		res, err = typesystem.MathOpType(base[0], res, "members_if", false)
		if err != nil {
			return nil, nil, err
		}
		for i := range in {
			in[i] = in[i].Wrap(c.Args[i+1].ArrayDim())
		}
		return append(one(c.Args[0]), in...), one(res.Wrap(dim)), nil
	}
}

// members types the per-member comparisons: the result has the argument
// shape with a bool base.
func members(s *typesystem.Sets) ResolverFunc {
	set := s.Numeric.Union(s.Bool)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, err := promoteEach(c.InputNames, c.Args[:2], set)
		if err != nil {
			return nil, nil, err
		}
		res, err := typesystem.MathOpType(in[0], in[1], "?", false)
		if err != nil {
			return nil, nil, err
		}
		dim := res.ArrayDim()
		inner := res.Innermost()
		var out typesystem.Type
		switch {
		case inner.IsMatrix():
			r, cols := inner.MatrixDim()
			out = typesystem.WithShape(typesystem.Bool, r, cols)
		case inner.IsVector():
			out = typesystem.WithShape(typesystem.Bool, inner.VectorDim(), -1)
		default:
			out = typesystem.Of(typesystem.Bool)
		}
		return append(in, c.Args[2:]...), one(out.Wrap(dim)), nil
	}
}

func toField(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
	arg := c.Args[0]
	inner := arg.Innermost()
	if inner.IsField() {
		return c.Args, one(arg), nil
	}
	dim := arg.ArrayDim()
	if !inner.IsNumeric() || inner.IsMatrix() || inner.VectorDim() == 4 {
		return nil, nil, typeErr("Cant convert '%s' to field", inner)
	}
	if inner.IsVector() {
		return c.Args, one(typesystem.Of(typesystem.VectorField).Wrap(dim)), nil
	}
	return c.Args, one(typesystem.Of(typesystem.ScalarField).Wrap(dim)), nil
}

func switchFields(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
	if _, err := commonArrayDim(c.Args); err != nil {
		return nil, nil, err
	}
	base := innermostAll(c.Args)
	if base[0].Tag() != typesystem.ScalarField {
		return nil, nil, typeErr("FIELD or FIELD[] required as condition")
	}
	if !base[1].IsField() || !base[2].IsField() {
		return nil, nil, typeErr("Type missmatch '%s' <> '%s'", c.Args[1], c.Args[2])
	}
	res, err := typesystem.MathOpType(c.Args[1], c.Args[2], "?", false)
	if err != nil {
		return nil, nil, err
	}
	return c.Args, one(res), nil
}

// expectCompare types the compound test operators: the compared values
// promote to a common fraction type, tolerance is a float and the message
// a string. Element wise checks report one message per element.
func expectCompare(s *typesystem.Sets, tolerance, elementWise bool) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		msg := 2
		if tolerance {
			msg = 3
		}
		if c.Args[msg].Tag() != typesystem.String {
			return nil, nil, typeErr("'%s' must be a string", portName(c.InputNames, msg))
		}
		values := c.Args[:2]
		dim, err := commonArrayDim(values)
		if err != nil {
			return nil, nil, err
		}
		in, _, err := multiSame(c.InputNames, innermostAll(values), s.Floating, true)
		if err != nil {
			return nil, nil, err
		}
		for i := range in {
			in[i] = in[i].Wrap(values[i].ArrayDim())
		}
		if tolerance {
			tol, _, err := multiSame(c.InputNames[2:3], c.Args[2:3], typesystem.SetOf(typesystem.Float), true)
			if err != nil {
				return nil, nil, err
			}
			in = append(in, tol...)
		}
		in = append(in, typesystem.Of(typesystem.String))
		if !elementWise {
			dim = 0
		}
		return in, one(typesystem.Of(typesystem.String).Wrap(dim)), nil
	}
}

func distance(s *typesystem.Sets) ResolverFunc {
	set := s.Floating.Intersect(s.Vector3)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := multiSame(c.InputNames, c.Args, set, true)
		if err != nil {
			return nil, nil, err
		}
		return in, one(typesystem.ToScalar.Apply(res)), nil
	}
}

func dot(s *typesystem.Sets) ResolverFunc {
	set := s.Numeric.Intersect(s.Vector).Union(s.Field3)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := multiSame(c.InputNames, c.Args, set, false)
		if err != nil {
			return nil, nil, err
		}
		return in, one(res.Scalar().Wrap(res.ArrayDim())), nil
	}
}

// splitSame runs multiSame over consecutive argument ranges with their own
// candidate sets and returns the promoted inputs plus the first range's
// folded type. toFloat only applies to the first range.
func splitSame(c *Call, ranges []int, sets []typesystem.TypeSet, toFloat bool) ([]typesystem.Type, typesystem.Type, error) {
	var in []typesystem.Type
	var first typesystem.Type
	start := 0
	for i, end := range ranges {
		if end > len(c.Args) {
			end = len(c.Args)
		}
		if end <= start {
			continue
		}
		part, res, err := multiSame(c.InputNames[start:end], c.Args[start:end], sets[i], toFloat && i == 0)
		if err != nil {
			return nil, typesystem.Type{}, err
		}
		if i == 0 {
			first = res
		}
		in = append(in, part...)
		start = end
	}
	return in, first, nil
}

// randomValue folds the bounds into the value type. Seed and id stay
// plain longs.
func randomValue(s *typesystem.Sets) ResolverFunc {
	bounds := s.Float.Minus(s.Matrix).Union(s.Double.Intersect(s.Simple)).Union(s.Int).Union(s.Long)
	ids := s.Long.Intersect(s.Simple)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		if len(c.Args) != 4 {
			return nil, nil, typeErr("'%s' takes 4 inputs, got %d", c.Op, len(c.Args))
		}
		keys, err := promoteEach([]string{portName(c.InputNames, 0), portName(c.InputNames, 3)},
			[]typesystem.Type{c.Args[0], c.Args[3]}, ids)
		if err != nil {
			return nil, nil, err
		}
		mid, res, err := multiSame(c.InputNames[1:3], c.Args[1:3], bounds, false)
		if err != nil {
			return nil, nil, err
		}
		in := []typesystem.Type{keys[0], mid[0], mid[1], keys[1]}
		return in, one(res), nil
	}
}

func changeRange(s *typesystem.Sets) ResolverFunc {
	flags := s.Bool.Intersect(s.Simple)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := splitSame(c, []int{5, 6}, []typesystem.TypeSet{s.Numeric, flags}, false)
		if err != nil {
			return nil, nil, err
		}
		return in, one(res), nil
	}
}

func withinBounds(s *typesystem.Sets) ResolverFunc {
	flags := s.Bool.Intersect(s.Simple)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := splitSame(c, []int{3, len(c.Args)}, []typesystem.TypeSet{s.Numeric, flags}, false)
		if err != nil {
			return nil, nil, err
		}
		return in, one(typesystem.Of(typesystem.Bool).Wrap(res.ArrayDim())), nil
	}
}

// scalarToVector packs n scalars into a vector of their common base. With
// fields a three component pack makes a vector field.
func scalarToVector(s *typesystem.Sets, n int) ResolverFunc {
	set := s.Numeric.Minus(s.Matrix).Minus(s.Vector)
	if n == 3 {
		set = set.Union(s.Field)
	}
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := multiSame(c.InputNames, c.Args, set, false)
		if err != nil {
			return nil, nil, err
		}
		dim := res.ArrayDim()
		if res.Innermost().IsField() {
			return in, one(typesystem.Of(typesystem.VectorField).Wrap(dim)), nil
		}
		return in, one(typesystem.WithShape(res.Scalar().Tag(), n, -1).Wrap(dim)), nil
	}
}

func vector3ToVector4(s *typesystem.Sets) ResolverFunc {
	set := s.Numeric.Minus(s.Matrix).Minus(s.Vector4)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, err := promoteEach(c.InputNames, c.Args, set)
		if err != nil {
			return nil, nil, err
		}
		res, err := typesystem.MathOpType(in[0], in[1], "?", false)
		if err != nil {
			return nil, nil, err
		}
		return in, one(typesystem.WithShape(res.Scalar().Tag(), 4, -1).Wrap(res.ArrayDim())), nil
	}
}

// quaternionOf promotes every input into vectors and produces a quaternion
// of their common base.
func quaternionOf(vectors typesystem.TypeSet) ResolverFunc {
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		in, res, err := multiSame(c.InputNames, c.Args, vectors, true)
		if err != nil {
			return nil, nil, err
		}
		return in, one(typesystem.WithShape(res.Scalar().Tag(), 4, -1).Wrap(res.ArrayDim())), nil
	}
}

func axisAngleToQuaternion(s *typesystem.Sets) ResolverFunc {
	axes := s.Numeric.Minus(s.Vector4).Minus(s.Matrix)
	return func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		axis, err := promoteEach(c.InputNames[:1], c.Args[:1], axes)
		if err != nil {
			return nil, nil, err
		}
		angle, err := promoteEach(c.InputNames[1:2], c.Args[1:2], s.Numeric)
		if err != nil {
			return nil, nil, err
		}
		res, err := typesystem.MathOpType(axis[0], angle[0], "?", false)
		if err != nil {
			return nil, nil, err
		}
		dim := res.ArrayDim()
		scalar := typesystem.NumericBaseType(res.Scalar(), typesystem.Of(typesystem.Float), false)
		in := append(append(axis, angle...), c.Args[2:]...)
		return in, one(typesystem.WithShape(scalar.Tag(), 4, -1).Wrap(dim)), nil
	}
}
