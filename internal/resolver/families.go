package resolver

import (
	"fmt"

	"github.com/funvibe/flowc/internal/typesystem"
)

// Operator namespaces of the builtin catalog.
const (
	nsArray      = "Core::Array::"
	nsConstants  = "Core::Constants::"
	nsConversion = "Core::Conversion::"
	nsFields     = "Core::Fields::"
	nsLogic      = "Core::Logic::"
	nsMath       = "Core::Math::"
	nsObject     = "Core::Object::"
	nsRandom     = "Core::Randomization::"
	nsString     = "Core::String::"
	nsTests      = "Core::Compound_Tests::"
	nsTypeConv   = "Core::Type_Conversion::"
	nsGeoCommon  = "Geometry::Common::"
	nsGeoProps   = "Geometry::Properties::"
	nsGeoQuery   = "Geometry::Query::"
)

// family collects the registrations of one operator family. The first
// error stops the family in strict mode; otherwise failures are logged and
// counted as skipped.
type family struct {
	r    *Resolver
	name string
	err  error
}

func (f *family) record(op string, err error) {
	if err == nil || f.err != nil {
		return
	}
	if !f.r.strict {
		f.r.logger.Warn("skipping overload registration", "family", f.name, "op", op, "err", err)
		f.r.skipped = append(f.r.skipped, op)
		return
	}
	f.err = fmt.Errorf("%s overloads: %s: %w", f.name, op, err)
}

func (f *family) force(op string, ports ...string) {
	if f.err == nil {
		f.record(op, f.r.ForceAuto(op, ports...))
	}
}

func (f *family) define(op string, groups ...Group) {
	if f.err == nil {
		f.record(op, f.r.Define(op, groups...))
	}
}

func (f *family) resolver(op string, fn ResolverFunc) {
	if f.err == nil {
		f.record(op, f.r.DefineResolver(op, fn))
	}
}

// registerAll runs every family in catalog order, then lists the suggested
// overloads of the operators nothing registered.
func (r *Resolver) registerAll() error {
	families := []struct {
		name string
		fn   func(*family)
	}{
		{"graph", r.graphFamily},
		{"conversion", r.conversionFamily},
		{"array", r.arrayFamily},
		{"object", r.objectFamily},
		{"string", r.stringFamily},
		{"math", r.mathFamily},
		{"constants", r.constantsFamily},
		{"logic", r.logicFamily},
		{"random", r.randomFamily},
		{"geometry", r.geometryFamily},
		{"field", r.fieldFamily},
	}
	for _, fam := range families {
		f := &family{r: r, name: fam.name}
		fam.fn(f)
		if f.err != nil {
			return f.err
		}
		r.logger.Debug("overload family registered", "family", fam.name)
	}
	r.loadSuggestedOverloads()
	return nil
}

// ----------------------------------------------------------------------------
// Families
// ----------------------------------------------------------------------------

func (r *Resolver) graphFamily(f *family) {
	s := r.sets
	for _, op := range []string{"Core::Graph::pass", "Core::Error::error", "Core::Logging::log_message"} {
		f.define(op, G(s.All, typesystem.Same))
	}
	f.define(nsTests+"expect_type", G(s.All), G(s.All, typesystem.Literal(typesystem.String)))
	f.resolver(nsTests+"expect_equal", expectCompare(s, false, true))
	f.resolver(nsTests+"expect_almost_equal", expectCompare(s, true, true))
	f.resolver(nsTests+"expect_arrays_equal", expectCompare(s, true, false))
}

func (r *Resolver) conversionFamily(f *family) {
	s := r.sets
	f.define(nsTypeConv+"to_type_any", G(s.All))
	f.define(nsTypeConv+"from_type_any", G(s.All, typesystem.Same))

	convertible := s.Floating.Union(s.Integer).Union(s.Bool)
	targets := []struct{ op, scalar string }{
		{"to_bool", typesystem.Bool},
		{"to_char", typesystem.Char},
		{"to_unsigned_char", typesystem.UChar},
		{"to_short", typesystem.Short},
		{"to_unsigned_short", typesystem.UShort},
		{"to_int", typesystem.Int},
		{"to_unsigned_int", typesystem.UInt},
		{"to_long", typesystem.Long},
		{"to_unsigned_long", typesystem.ULong},
		{"to_float", typesystem.Float},
		{"to_double", typesystem.Double},
	}
	for _, t := range targets {
		f.define(nsTypeConv+t.op, G(convertible, typesystem.ReplaceBase(t.scalar)))
	}

	angles := s.Floating.Intersect(s.Simple.Union(s.Vector2).Union(s.Vector3))
	f.define(nsConversion+"degrees_to_radians", G(angles, typesystem.Same))
	f.define(nsConversion+"radians_to_degrees", G(angles, typesystem.Same))

	f.force(nsString+"number_to_string", "string")
	f.define(nsString+"number_to_string",
		G(s.Numeric.Union(s.Bool).Intersect(s.Simple), typesystem.ReplaceFullBase(typesystem.String)))

	ts := typesystem.ToScalar
	f.define(nsConversion+"vector2_to_scalar", G(s.Numeric.Intersect(s.Vector2), ts, ts))
	f.define(nsConversion+"vector3_to_scalar", G(s.Numeric.Intersect(s.Vector3), ts, ts, ts))
	sf := typesystem.ReplaceFullBase(typesystem.ScalarField)
	f.define(nsConversion+"vector3_to_scalar", G(s.Field3, sf, sf, sf))
	f.define(nsConversion+"vector4_to_scalar", G(s.Numeric.Intersect(s.Vector4), ts, ts, ts, ts))
	f.define(nsConversion+"vector4_to_vector3", G(s.Numeric.Intersect(s.Vector4), typesystem.ToVec3, ts))

	f.resolver(nsConversion+"scalar_to_vector2", scalarToVector(s, 2))
	f.resolver(nsConversion+"scalar_to_vector3", scalarToVector(s, 3))
	f.resolver(nsConversion+"scalar_to_vector4", scalarToVector(s, 4))
	f.resolver(nsConversion+"vector3_to_vector4", vector3ToVector4(s))
}

func (r *Resolver) arrayFamily(f *family) {
	s := r.sets
	same, down := typesystem.Same, typesystem.ArrDown

	for _, op := range []string{"all_true", "any_true"} {
		f.force(nsArray+op+"_in_array", "array", op)
		f.define(nsArray+op+"_in_array", G(s.Array.Intersect(s.Bool), down))
	}
	f.define(nsArray+"array_size", G(s.Array))
	f.define(nsArray+"array_is_empty", G(s.Array, typesystem.Literal(typesystem.Bool)))
	f.define(nsArray+"empty_array", G(s.All.Minus(s.Array3), typesystem.ArrUp))
	f.define(nsArray+"filter_array", G(s.Array, same, typesystem.Literal("array<long>")))
	for _, op := range []string{"find_in_array", "first_in_array", "last_in_array", "get_from_array", "sum_array"} {
		groups := G(s.Array, down)
		if op == "sum_array" {
			groups = G(s.Array.Intersect(s.Simple).Intersect(s.Integer.Union(s.Floating).Union(s.String)), down)
		}
		f.define(nsArray+op, groups)
	}
	f.define(nsArray+"flatten_nested_array", G(s.Array, typesystem.ArrFlat))
	f.define(nsArray+"get_array_indices", G(s.Array), G(s.Integer, typesystem.ArrUp))
	for _, op := range []string{"remove_from_array", "reverse_array", "slice_array"} {
		f.define(nsArray+op, G(s.Array, same))
	}
	f.define(nsArray+"resize_array", G(s.Array, down, same))
	f.define(nsArray+"set_in_array", G(s.Array, down, same))
	f.define(nsArray+"sequence_array", G(s.Floating.Union(s.Integer).Minus(s.Array), same, typesystem.ArrUp))
	f.define(nsArray+"sort_array", G(s.Array.Intersect(s.Simple).Intersect(s.Integer.Union(s.Floating).Union(s.String)), same))
	f.define(nsMath+"get_from_interpolated_array", G(s.Array, typesystem.Literal(typesystem.Float), down))
}

func (r *Resolver) objectFamily(f *family) {
	s := r.sets
	f.define(nsObject+"set_property", G(s.All))
	f.force(nsObject+"get_property", "default_and_type", "value")
	f.define(nsObject+"get_property", G(s.All, typesystem.Same))
}

func (r *Resolver) stringFamily(f *family) {
	s := r.sets
	f.define(nsString+"string_to_number", G(s.Numeric.Minus(s.Array), typesystem.Same))
}

func (r *Resolver) mathFamily(f *family) {
	s := r.sets
	same := typesystem.Same
	rfb := typesystem.ReplaceFullBase
	rb := typesystem.ReplaceBase

	arith := []struct{ op, sym string }{
		{"add", "+"}, {"subtract", "-"}, {"multiply", "*"}, {"divide", "/"},
		{"min", "min"}, {"max", "max"}, {"modulo", "%"}, {"remainder", "%"},
	}
	for _, a := range arith {
		f.resolver(nsMath+a.op, arithmetic(a.sym))
	}

	f.define(nsMath+"absolute_value", G(s.Numeric.Minus(s.Unsigned), same))
	f.define(nsMath+"absolute_value", G(s.Long.Intersect(s.Unsigned), rb(typesystem.Double)))
	f.define(nsMath+"absolute_value", G(s.Int.Intersect(s.Unsigned), rb(typesystem.Float)))
	f.define(nsMath+"split_fraction", G(s.Floating.Minus(s.Matrix), same, same))

	for _, op := range []string{
		"truncate", "square_root", "cube_root", "one_over",
		"round_to_ceiling", "round_to_floor", "round_to_nearest",
		"log_base_e", "log_base_two", "log_base_ten", "exponential",
	} {
		f.define(nsMath+op, G(s.Floating, same))
	}
	for _, op := range []string{"twice_of", "two_to_power_of", "half_of", "increment", "decrement"} {
		f.define(nsMath+op, G(s.Numeric, same))
	}

	lerp := func(c *Call) ([]typesystem.Type, []typesystem.Type, error) {
		values := s.Floating.Minus(s.Matrix).Union(s.Field)
		in, res, err := splitSame(c, []int{3, len(c.Args)}, []typesystem.TypeSet{values, s.Bool.Intersect(s.Simple)}, true)
		if err != nil {
			return nil, nil, err
		}
		return in, one(res), nil
	}
	f.resolver(nsMath+"lerp", lerp)
	f.resolver(nsMath+"linear_interpolate", lerp)
	f.define(nsMath+"get_member", G(s.Numeric.Union(s.Bool), typesystem.ToScalar))

	small := s.Floating.Intersect(s.Vector).Minus(s.Big)
	big := s.Floating.Intersect(s.Vector).Intersect(s.Big)
	f.define(nsMath+"normalize", G(small, same))
	f.define(nsMath+"normalize", G(big, same))
	f.define(nsMath+"normalize", G(s.Field3, rb(typesystem.ScalarField)))
	for _, op := range []string{"length", "length_squared"} {
		f.define(nsMath+op, G(small, rfb(typesystem.Float)))
		f.define(nsMath+op, G(big, rfb(typesystem.Double)))
		f.define(nsMath+op, G(s.Field3, rb(typesystem.ScalarField)))
	}
	f.define(nsMath+"direction_and_length", G(small, same, rfb(typesystem.Float)))
	f.define(nsMath+"direction_and_length", G(big, same, rfb(typesystem.Double)))
	f.define(nsMath+"direction_and_length", G(s.Field3, same, rfb(typesystem.ScalarField)))

	f.resolver(nsMath+"distance", distance(s))
	f.resolver(nsMath+"cross", sameAll(s.Floating.Intersect(s.Vector3).Union(s.Field3), true))
	f.resolver(nsMath+"dot", dot(s))
	f.resolver(nsMath+"change_range", changeRange(s))
	f.resolver(nsMath+"within_bounds", withinBounds(s))

	f.define(nsMath+"euler_to_rotation_vector", G(s.Float.Intersect(s.Vector3), same))
	f.define(nsMath+"euler_to_rotation_vector", G(s.Field3, same))
	f.define(nsMath+"euler_to_quaternion", G(s.Float.Intersect(s.Vector3), typesystem.ToVec4))
	f.resolver(nsMath+"multiply_quaternions", sameAll(s.Floating.Intersect(s.Vector4), true))
	f.resolver(nsMath+"rotation_between_vectors", quaternionOf(s.Floating.Intersect(s.Vector3)))

	f.define(nsMath+"project_vector", G(s.Floating.Minus(s.Big).Intersect(s.Vector3), same, same, same))
	f.define(nsMath+"project_vector", G(s.Floating.Intersect(s.Big).Intersect(s.Vector3), same, same, same))
	f.define(nsMath+"project_vector", G(s.Field3, same, same, same))

	for _, fn := range []string{"sin", "cos", "tan"} {
		for _, op := range []string{fn, fn + "_hyperbolic", "a" + fn, "a" + fn + "_hyperbolic"} {
			f.define(nsMath+op, G(s.Numeric.Minus(s.Big), rb(typesystem.Float)))
			f.define(nsMath+op, G(s.Numeric.Intersect(s.Big), rb(typesystem.Double)))
		}
	}
	f.resolver(nsMath+"atan_2D", sameAll(s.Numeric.Minus(s.Matrix), true))
	f.resolver(nsMath+"power", power)
	f.resolver(nsMath+"negate", negate)
	f.resolver(nsMath+"copy_sign", sameAll(s.Numeric, false))

	f.define(nsMath+"transpose_matrix", G(s.Matrix, typesystem.Transpose))
	f.define(nsMath+"inverse_matrix", G(s.Floating.Intersect(s.MatrixSquare), same))
	f.define(nsMath+"matrix_determinant", G(s.MatrixSquare.Minus(s.Big), rfb(typesystem.Float)))
	f.define(nsMath+"matrix_determinant", G(s.MatrixSquare.Intersect(s.Big), rfb(typesystem.Double)))
	f.define(nsMath+"matrix_is_identity", G(s.Matrix, rfb(typesystem.Bool)))

	m33 := s.Floating.Intersect(s.MatrixOf(3, 3))
	m44 := s.Floating.Intersect(s.MatrixOf(4, 4))
	quat := s.Floating.Intersect(s.Vector4)
	vec3 := s.Floating.Intersect(s.Vector3)
	v3, v4 := typesystem.ToVec3, typesystem.ToVec4
	f.define(nsMath+"matrix_to_quaternion", G(m33, v4))
	f.define(nsMath+"matrix_to_SRT", G(m44, v3, v3, v4, v3))
	f.define(nsMath+"quaternion_to_matrix", G(quat, typesystem.ToMtx3x3))
	f.define(nsMath+"quaternion_to_axis_angle", G(quat, v3, typesystem.ToScalar))
	f.define(nsMath+"quaternion_to_rotation_vector", G(quat, v3))
	f.define(nsMath+"quaternion_to_euler", G(quat, v3))
	f.define(nsMath+"rotation_vector_to_quaternion", G(vec3, v4))
	f.define(nsMath+"transform_to_rotation_matrix", G(m44, typesystem.ToMtx3x3))
	f.resolver(nsMath+"axis_angle_to_quaternion", axisAngleToQuaternion(s))
	f.define(nsMath+"find_orthogonal_vectors", G(vec3, same, same))
	f.define(nsMath+"quaternion_invert", G(quat, same))

	f.resolver(nsMath+"clamp", sameAll(s.Numeric, false))
	f.define(nsMath+"bitwise_not", G(s.Integer, same))
	for _, op := range []string{
		"bitwise_and", "bitwise_or", "bitwise_xor",
		"bitwise_shift_left", "bitwise_shift_right",
		"bitwise_circular_shift_left", "bitwise_circular_shift_right",
	} {
		f.resolver(nsMath+op, sameAll(s.Integer, false))
	}
}

func (r *Resolver) constantsFamily(f *family) {
	s := r.sets
	same := typesystem.Same
	f.define(nsConstants+"identity", G(s.Numeric.Intersect(s.Matrix), same))
	f.define(nsConstants+"identity", G(s.Floating.Intersect(s.Vector4), same))
	f.define(nsConstants+"default_value", G(s.All, same))
	for _, op := range []string{"zero", "one", "golden_ratio", "e", "pi", "tau"} {
		f.define(nsConstants+op, G(s.Numeric, same))
	}
	f.define(nsConstants+"numeric_min", G(s.Numeric.Union(s.Bool), same))
	f.define(nsConstants+"numeric_max", G(s.Numeric.Union(s.Bool), same))
	f.define(nsConstants+"numeric_small", G(s.Numeric, typesystem.ToFloat))
}

func (r *Resolver) randomFamily(f *family) {
	s := r.sets
	f.resolver(nsRandom+"random_value", randomValue(s))
	f.define(nsRandom+"random_value_array", G(s.Numeric.Union(s.Bool), typesystem.ArrUp))

	positions := s.Long.Union(s.Float)
	f.force(nsRandom+"fractal_noise", "noise")
	f.define(nsRandom+"fractal_noise", G(positions, typesystem.ReplaceFullBase(typesystem.Float)))
	f.force(nsRandom+"fractal_turbulence", "noise")
	f.define(nsRandom+"fractal_turbulence", G(positions, typesystem.ReplaceFullBase("Math::float3")))
	f.define(nsRandom+"simplex_noise", G(s.Floating.Minus(s.Matrix), typesystem.ToScalar))
}

func (r *Resolver) logicFamily(f *family) {
	s := r.sets
	f.resolver(nsLogic+"if", ifResolver)
	f.resolver(nsLogic+"members_if", membersIf(s))

	compares := []struct{ op, sym string }{
		{"equal", "=="},
		{"not_equal", "!="},
		{"greater_or_equal", ">="},
		{"less_or_equal", "<="},
		{"greater", ">"},
		{"less", "<"},
	}
	for _, c := range compares {
		f.resolver(nsLogic+c.op, compare(c.sym))
	}
	tolerant := s.Floating.Minus(s.Matrix).Union(s.Floating.Intersect(s.MatrixSquare))
	f.define(nsLogic+"almost_equal", G(tolerant, typesystem.Same, typesystem.Same))

	for _, op := range []string{"and", "or", "xor"} {
		f.resolver(nsLogic+op, logic(op))
	}
	f.define(nsLogic+"not", G(s.Bool, typesystem.Same))

	for _, op := range []string{"all_members_true", "any_members_true"} {
		f.force(nsLogic+op, "output")
		f.define(nsLogic+op, G(s.Bool.Intersect(s.Vector.Union(s.Matrix)), typesystem.ReplaceFullBase(typesystem.Bool)))
	}
	for _, op := range []string{
		"members_equal", "members_not_equal",
		"members_greater", "members_greater_or_equal",
		"members_less", "members_less_or_equal",
	} {
		f.resolver(nsLogic+op, members(s))
	}
}

func (r *Resolver) geometryFamily(f *family) {
	s := r.sets
	loc := nsGeoCommon + "GeoLocation"
	f.define(nsGeoQuery+"sample_property", G(s.Floating.Minus(s.Array), typesystem.ArrUp))
	f.define(nsGeoProps+"get_geo_property", G(s.Array, typesystem.Same, typesystem.ArrDown))
	f.define(nsGeoProps+"set_geo_property", G(s.Array1, typesystem.ArrDown))
	f.define(nsGeoQuery+"get_closest_locations",
		G(s.Float.Intersect(s.Vector3).Minus(s.Array2).Minus(s.Array3),
			typesystem.ReplaceFullBase(loc), typesystem.ReplaceFullBase(typesystem.Bool)))
	f.define(nsGeoCommon+"interpret_auto_port_as_scalar", G(s.AutoScalar))
	f.define(nsGeoCommon+"interpret_auto_port_as_vector", G(s.AutoVector))
}

func (r *Resolver) fieldFamily(f *family) {
	s := r.sets
	f.resolver(nsFields+"to_field", toField)
	f.resolver(nsFields+"switch_fields", switchFields)

	f.force(nsFields+"field_is_empty", "output")
	f.define(nsFields+"field_is_empty", G(s.Fields, typesystem.ReplaceFullBase(typesystem.Bool)))
	for _, op := range []string{"advect_field", "rotate_field", "scale_field", "translate_field", "transform_field", "warp_field"} {
		f.define(nsFields+op, G(s.Fields, typesystem.Same))
	}
	noise := s.Float.Union(s.Field)
	f.force(nsFields+"fractal_noise_field", "noise_field")
	f.define(nsFields+"fractal_noise_field", G(noise, typesystem.ReplaceFullBase(typesystem.ScalarField)))
	f.force(nsFields+"curl_noise_field", "noise_field")
	f.define(nsFields+"curl_noise_field", G(noise, typesystem.ReplaceFullBase(typesystem.VectorField)))
	f.define(nsFields+"sample_field", G(s.Field, typesystem.ReplaceFullBase(typesystem.Float)))
	f.define(nsFields+"sample_field", G(s.Field3, typesystem.ReplaceFullBase("Math::float3")))
}
