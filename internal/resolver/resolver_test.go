package resolver

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	r, err := New(cat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func emptyResolver(t *testing.T, src string) *Resolver {
	t.Helper()
	cat, err := catalog.Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("catalog.Parse: %v", err)
	}
	return NewEmpty(cat)
}

func types(tags ...string) []typesystem.Type {
	out := make([]typesystem.Type, len(tags))
	for i, tag := range tags {
		out[i] = typesystem.Of(tag)
	}
	return out
}

func joinTags(ts []typesystem.Type) string {
	tags := make([]string, len(ts))
	for i, t := range ts {
		tags[i] = t.Tag()
	}
	return strings.Join(tags, ", ")
}

func assertCode(t *testing.T, err error, want diagnostics.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := diagnostics.CodeOf(err); got != want {
		t.Fatalf("expected code %s, got %s (%v)", want, got, err)
	}
}

type resolveCase struct {
	name    string
	op      string
	args    []string
	wantIn  string
	wantOut string
	wantErr diagnostics.ErrorCode
}

func runResolve(t *testing.T, r *Resolver, tests []resolveCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, err := r.Resolve(tt.op, types(tt.args...))
			if tt.wantErr != "" {
				assertCode(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%s, %v): %v", tt.op, tt.args, err)
			}
			if got := joinTags(in); got != tt.wantIn {
				t.Errorf("inputs = [%s], want [%s]", got, tt.wantIn)
			}
			if got := joinTags(out); got != tt.wantOut {
				t.Errorf("outputs = [%s], want [%s]", got, tt.wantOut)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Builtin registrations
// ----------------------------------------------------------------------------

func TestNewRunsEveryFamily(t *testing.T) {
	var buf bytes.Buffer
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(cat, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	passed, _ := r.Checked()
	if passed < 100 {
		t.Errorf("only %d registrations passed their self check", passed)
	}
	if !strings.Contains(buf.String(), "overload registration done") {
		t.Errorf("missing registration summary in log: %s", buf.String())
	}
}

func TestArithmetic(t *testing.T) {
	r := newResolver(t)
	runResolve(t, r, []resolveCase{
		{name: "promotes to the wider fraction", op: "add", args: []string{"int", "float"}, wantIn: "float, float", wantOut: "float"},
		{name: "scalar broadcasts into array", op: "add", args: []string{"array<int>", "int"}, wantIn: "array<int>, array<int>", wantOut: "array<int>"},
		{name: "vector with scalar", op: "Core::Math::multiply", args: []string{"Math::float3", "float"}, wantIn: "Math::float3, Math::float3", wantOut: "Math::float3"},
		{name: "array depth mismatch", op: "subtract", args: []string{"array<int>", "array<array<int>>"}, wantErr: diagnostics.ErrT004},
		{name: "missing operand", op: "add", args: []string{"int"}, wantErr: diagnostics.ErrT001},
		{name: "modulo", op: "modulo", args: []string{"long", "int"}, wantIn: "long, long", wantOut: "long"},
		{name: "power", op: "power", args: []string{"int", "double"}, wantIn: "int, double", wantOut: "double"},
		{name: "negate", op: "negate", args: []string{"Math::float3"}, wantIn: "Math::float3", wantOut: "Math::float3"},
	})
}

func TestDeclarativeSets(t *testing.T) {
	r := newResolver(t)
	runResolve(t, r, []resolveCase{
		{name: "exact", op: "sin", args: []string{"float"}, wantIn: "float", wantOut: "float"},
		{name: "integer input float output", op: "sin", args: []string{"int"}, wantIn: "int", wantOut: "float"},
		{name: "big input", op: "sin", args: []string{"double"}, wantIn: "double", wantOut: "double"},
		{name: "length of float vector", op: "length", args: []string{"Math::float3"}, wantIn: "Math::float3", wantOut: "float"},
		{name: "length of double vector", op: "length", args: []string{"Math::double3"}, wantIn: "Math::double3", wantOut: "double"},
		{name: "length of field", op: "length", args: []string{"Core::Fields::VectorField"}, wantIn: "Core::Fields::VectorField", wantOut: "Core::Fields::ScalarField"},
		{name: "unsigned absolute value", op: "absolute_value", args: []string{"uint"}, wantIn: "uint", wantOut: "float"},
		{name: "array element", op: "get_from_array", args: []string{"array<Math::float3>", "long"}, wantIn: "array<Math::float3>, long", wantOut: "Math::float3"},
		{name: "index promotes", op: "get_from_array", args: []string{"array<float>", "int"}, wantIn: "array<float>, long", wantOut: "float"},
		{name: "lossy index", op: "get_from_array", args: []string{"array<float>", "double"}, wantErr: diagnostics.ErrT002},
		{name: "not an array", op: "get_from_array", args: []string{"float", "long"}, wantErr: diagnostics.ErrT001},
		{name: "dependent input", op: "set_in_array", args: []string{"array<float>", "long", "int"}, wantIn: "array<float>, long, float", wantOut: "array<float>"},
		{name: "two required ports", op: "get_array_indices", args: []string{"array<Math::float3>", "int"}, wantIn: "array<Math::float3>, int", wantOut: "array<int>"},
		{name: "transpose", op: "transpose_matrix", args: []string{"Math::double2x4"}, wantIn: "Math::double2x4", wantOut: "Math::double4x2"},
		{name: "matrix decomposition", op: "matrix_to_SRT", args: []string{"Math::double4x4"}, wantIn: "Math::double4x4", wantOut: "Math::double3, Math::double3, Math::double4, Math::double3"},
		{name: "bool widens to char", op: "bitwise_not", args: []string{"bool"}, wantIn: "char", wantOut: "char"},
		{name: "fraction is not an integer", op: "bitwise_not", args: []string{"float"}, wantErr: diagnostics.ErrT001},
		{name: "suggested default", op: "zero", args: nil, wantIn: "float", wantOut: "float"},
		{name: "constant of type", op: "pi", args: []string{"double"}, wantIn: "double", wantOut: "double"},
		{name: "random array", op: "random_value_array", args: []string{"long", "long", "bool"}, wantIn: "long, long, bool", wantOut: "array<bool>"},
		{name: "simplex", op: "simplex_noise", args: []string{"Math::double2", "long"}, wantIn: "Math::double2, long", wantOut: "double"},
		{name: "simplex on matrix", op: "simplex_noise", args: []string{"Math::float3x3", "long"}, wantErr: diagnostics.ErrT001},
		{name: "geometry", op: "get_closest_locations", args: []string{"Object", "array<Math::float3>"}, wantIn: "Object, array<Math::float3>", wantOut: "array<Geometry::Common::GeoLocation>, array<bool>"},
	})
}

func TestForcedAutoPorts(t *testing.T) {
	r := newResolver(t)
	runResolve(t, r, []resolveCase{
		{name: "property type follows the default", op: "get_property", args: []string{"Object", "string", "array<long>"}, wantIn: "Object, string, array<long>", wantOut: "array<long>, bool"},
		{name: "number to string", op: "number_to_string", args: []string{"array<int>"}, wantIn: "array<int>", wantOut: "array<string>"},
		{name: "all members", op: "all_members_true", args: []string{"Math::bool4x4"}, wantIn: "Math::bool4x4", wantOut: "bool"},
		{name: "noise", op: "fractal_noise_field", args: []string{"array<float>"}, wantIn: "array<float>", wantOut: "array<Core::Fields::ScalarField>"},
		{name: "noise from long", op: "fractal_noise", args: []string{"long", "float", "int", "long"}, wantIn: "long, float, int, long", wantOut: "float"},
		{name: "noise over points", op: "fractal_noise", args: []string{"array<Math::float3>", "float", "int", "long"}, wantIn: "array<Math::float3>, float, int, long", wantOut: "array<float>"},
		{name: "turbulence", op: "fractal_turbulence", args: []string{"Math::float2", "float", "int", "long"}, wantIn: "Math::float2, float, int, long", wantOut: "Math::float3"},
	})
}

func TestConversionsNarrowExplicitly(t *testing.T) {
	if typesystem.Promotable(typesystem.Of("double"), typesystem.Of("float")) {
		t.Fatal("double must not promote to float implicitly")
	}
	r := newResolver(t)
	runResolve(t, r, []resolveCase{
		{name: "double to float", op: "to_float", args: []string{"double"}, wantIn: "double", wantOut: "float"},
		{name: "ulong to long", op: "to_long", args: []string{"ulong"}, wantIn: "ulong", wantOut: "long"},
		{name: "keeps the shape", op: "to_int", args: []string{"array<Math::double3>"}, wantIn: "array<Math::double3>", wantOut: "array<Math::int3>"},
		{name: "bool", op: "to_bool", args: []string{"long"}, wantIn: "long", wantOut: "bool"},
		{name: "string is not numeric", op: "to_float", args: []string{"string"}, wantErr: diagnostics.ErrT001},
	})
}

func TestCustomResolvers(t *testing.T) {
	r := newResolver(t)
	runResolve(t, r, []resolveCase{
		{name: "compare", op: "greater", args: []string{"int", "float"}, wantIn: "int, float", wantOut: "bool"},
		{name: "compare arrays", op: "Core::Logic::equal", args: []string{"array<int>", "int"}, wantIn: "array<int>, int", wantOut: "array<bool>"},
		{name: "ordering vectors", op: "less", args: []string{"Math::float3", "Math::float3"}, wantErr: diagnostics.ErrT001},
		{name: "logic", op: "and", args: []string{"bool", "array<bool>"}, wantIn: "bool, array<bool>", wantOut: "array<bool>"},
		{name: "if", op: "if", args: []string{"bool", "int", "float"}, wantIn: "bool, int, float", wantOut: "float"},
		{name: "if over arrays", op: "if", args: []string{"array<bool>", "float", "float"}, wantIn: "array<bool>, float, float", wantOut: "array<float>"},
		{name: "if on strings", op: "if", args: []string{"bool", "string", "string"}, wantIn: "bool, string, string", wantOut: "string"},
		{name: "if type mismatch", op: "if", args: []string{"bool", "string", "float"}, wantErr: diagnostics.ErrT001},
		{name: "if needs bool", op: "if", args: []string{"int", "float", "float"}, wantErr: diagnostics.ErrT001},
		{name: "if dimension mismatch", op: "if", args: []string{"array<bool>", "array<array<float>>", "float"}, wantErr: diagnostics.ErrT004},
		{name: "members", op: "members_greater", args: []string{"Math::int3", "Math::float3"}, wantIn: "Math::int3, Math::float3", wantOut: "Math::bool3"},
		{name: "distance", op: "distance", args: []string{"Math::int3", "Math::float3"}, wantIn: "Math::float3, Math::float3", wantOut: "float"},
		{name: "dot", op: "dot", args: []string{"Math::double3", "Math::double3"}, wantIn: "Math::double3, Math::double3", wantOut: "double"},
		{name: "pack vector", op: "scalar_to_vector3", args: []string{"int", "float", "int"}, wantIn: "int, float, int", wantOut: "Math::float3"},
		{name: "pack field", op: "scalar_to_vector3", args: []string{"Core::Fields::ScalarField", "Core::Fields::ScalarField", "Core::Fields::ScalarField"}, wantIn: "Core::Fields::ScalarField, Core::Fields::ScalarField, Core::Fields::ScalarField", wantOut: "Core::Fields::VectorField"},
		{name: "field from vector", op: "to_field", args: []string{"Math::float3"}, wantIn: "Math::float3", wantOut: "Core::Fields::VectorField"},
		{name: "field from matrix", op: "to_field", args: []string{"Math::float3x3"}, wantErr: diagnostics.ErrT001},
		{name: "lerp", op: "lerp", args: []string{"int", "int", "float"}, wantIn: "float, float, float", wantOut: "float"},
		{name: "expect equal", op: "expect_equal", args: []string{"int", "double", "string"}, wantIn: "float, double, string", wantOut: "string"},
		{name: "expect message", op: "expect_equal", args: []string{"float", "float", "int"}, wantErr: diagnostics.ErrT001},
		{name: "random value", op: "random_value", args: []string{"int", "int", "float", "int"}, wantIn: "long, int, float, long", wantOut: "float"},
		{name: "random double", op: "Core::Randomization::random_value", args: []string{"long", "double", "double", "long"}, wantIn: "long, double, double, long", wantOut: "double"},
		{name: "random matrix bounds", op: "random_value", args: []string{"long", "Math::float3x3", "Math::float3x3", "long"}, wantErr: diagnostics.ErrT001},
		{name: "random string seed", op: "random_value", args: []string{"string", "float", "float", "long"}, wantErr: diagnostics.ErrT001},
		{name: "quaternion", op: "axis_angle_to_quaternion", args: []string{"Math::double3", "float"}, wantIn: "Math::double3, float", wantOut: "Math::double4"},
	})
}

func TestResolveErrors(t *testing.T) {
	r := newResolver(t)
	runResolve(t, r, []resolveCase{
		{name: "unknown operator", op: "no_such_operator", args: []string{"int"}, wantErr: diagnostics.ErrN003},
		{name: "too many arguments", op: "sin", args: []string{"float", "float"}, wantErr: diagnostics.ErrE001},
	})
}

func TestBundleArgumentsUnwrap(t *testing.T) {
	r := newResolver(t)
	bundle, err := typesystem.NewBundle([]typesystem.Port{{Name: "length", Type: typesystem.Of("float")}})
	if err != nil {
		t.Fatal(err)
	}
	in, out, err := r.Resolve("add", []typesystem.Type{bundle, typesystem.Of("int")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if joinTags(in) != "float, float" || joinTags(out) != "float" {
		t.Errorf("got [%s] -> [%s]", joinTags(in), joinTags(out))
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := newResolver(t)
	calls := [][]string{
		{"add", "int", "float"},
		{"length", "Math::double3"},
		{"get_property", "Object", "string", "long"},
		{"if", "array<bool>", "int", "long"},
	}
	for _, c := range calls {
		in1, out1, err1 := r.Resolve(c[0], types(c[1:]...))
		in2, out2, err2 := r.Resolve(c[0], types(c[1:]...))
		if err1 != nil || err2 != nil {
			t.Fatalf("%s: %v / %v", c[0], err1, err2)
		}
		if joinTags(in1) != joinTags(in2) || joinTags(out1) != joinTags(out2) {
			t.Errorf("%s resolved differently: [%s]->[%s] vs [%s]->[%s]", c[0],
				joinTags(in1), joinTags(out1), joinTags(in2), joinTags(out2))
		}
	}
}

// ----------------------------------------------------------------------------
// Registration
// ----------------------------------------------------------------------------

const registrationCatalog = `
namespace: Test
operators:
  - name: widen
    inputs: [{name: value}]
    outputs: [{name: widened}]
    default: {in: [float], out: [double]}

  - name: shape
    inputs: [{name: value}]
    outputs: [{name: shaped}]
    default: {in: ["Math::float2"], out: ["Math::float2"]}

  - name: fixed
    inputs: [{name: value, type: float}]
    outputs: [{name: out, type: float}]

  - name: hinted
    inputs: [{name: value, suggestions: [float, int]}]
    outputs: [{name: out, type: long}]

  - name: unhinted
    inputs: [{name: value}]
    outputs: [{name: out, type: long}]

  - name: pair
    inputs: [{name: a}, {name: b}]
    outputs: [{name: out}]
    default: {in: [float, float], out: [float]}

  - name: get
    inputs: [{name: object, type: Object}, {name: type, type: float}]
    outputs: [{name: value, type: float}]
`

func TestDefineSelfCheck(t *testing.T) {
	r := emptyResolver(t, registrationCatalog)
	s := r.Sets()

	err := r.Define("Test::widen", G(s.Floating, typesystem.Same))
	assertCode(t, err, diagnostics.ErrC001)
	if !strings.Contains(err.Error(), "missmatch in outputs") {
		t.Errorf("unexpected message: %v", err)
	}
	// the failed set was rolled back
	_, _, err = r.Resolve("Test::widen", types("float"))
	assertCode(t, err, diagnostics.ErrN003)

	if err := r.Define("Test::widen", G(s.Floating, typesystem.ReplaceBase(typesystem.Double))); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if passed, _ := r.Checked(); passed != 1 {
		t.Errorf("passed = %d, want 1", passed)
	}
}

func TestDefineValidation(t *testing.T) {
	r := emptyResolver(t, registrationCatalog)
	s := r.Sets()

	assertCode(t, r.Define("Test::missing", G(s.All)), diagnostics.ErrC001)
	assertCode(t, r.Define("Test::fixed", G(s.All)), diagnostics.ErrC001)
	assertCode(t, r.Define("Test::pair", G(s.All)), diagnostics.ErrC001)
	assertCode(t, r.Define("Test::pair", G(typesystem.NewTypeSet(), typesystem.Same, typesystem.Same)), diagnostics.ErrC001)
	assertCode(t, r.DefineResolver("Test::pair", nil), diagnostics.ErrC001)
}

func TestAmbiguousPromotion(t *testing.T) {
	r := emptyResolver(t, registrationCatalog)
	if err := r.Define("Test::shape", G(typesystem.SetOf("Math::float2"), typesystem.Same)); err != nil {
		t.Fatal(err)
	}
	if err := r.Define("Test::shape", G(typesystem.SetOf("Math::float3"), typesystem.Same)); err != nil {
		t.Fatal(err)
	}

	_, _, err := r.Resolve("Test::shape", types("float"))
	assertCode(t, err, diagnostics.ErrT003)

	in, _, err := r.Resolve("Test::shape", types("Math::float3"))
	if err != nil || joinTags(in) != "Math::float3" {
		t.Errorf("exact match should win: [%s] %v", joinTags(in), err)
	}
}

func TestForceAuto(t *testing.T) {
	r := emptyResolver(t, registrationCatalog)

	err := r.ForceAuto("Test::get", "nope")
	assertCode(t, err, diagnostics.ErrC001)
	if !strings.Contains(err.Error(), "'object', 'type', 'value'") {
		t.Errorf("error should list the ports: %v", err)
	}

	if err := r.ForceAuto("Test::get", "type", "value"); err != nil {
		t.Fatal(err)
	}
	op, _ := r.Catalog().Lookup("Test::get")
	if got := op.Primary().Key(); got != "Object-auto" {
		t.Errorf("primary = %q, want Object-auto", got)
	}
	if len(op.Overloads) != 2 {
		t.Errorf("the concrete overload should follow the forced one: %+v", op.Overloads)
	}
	if err := r.Define("Test::get", G(r.Sets().All, typesystem.Same)); err != nil {
		t.Fatalf("Define after ForceAuto: %v", err)
	}
	_, out, err := r.Resolve("Test::get", types("Object", "string"))
	if err != nil || joinTags(out) != "string" {
		t.Errorf("got [%s] %v, want [string]", joinTags(out), err)
	}
}

func TestSuggestions(t *testing.T) {
	r := emptyResolver(t, registrationCatalog)
	runResolve(t, r, []resolveCase{
		{name: "argument is a suggestion", op: "Test::hinted", args: []string{"int"}, wantIn: "int", wantOut: "long"},
		{name: "first suggestion", op: "Test::hinted", args: nil, wantIn: "float", wantOut: "long"},
		{name: "promotes into the first suggestion", op: "Test::hinted", args: []string{"short"}, wantIn: "float", wantOut: "long"},
		{name: "lossy into the first suggestion", op: "Test::hinted", args: []string{"double"}, wantErr: diagnostics.ErrT002},
		{name: "no hints", op: "Test::unhinted", args: []string{"int"}, wantErr: diagnostics.ErrN003},
		{name: "fixed port", op: "Test::fixed", args: []string{"int"}, wantIn: "float", wantOut: "float"},
		{name: "fixed port lossy", op: "Test::fixed", args: []string{"double"}, wantErr: diagnostics.ErrT002},
	})

	r.loadSuggestedOverloads()
	op, _ := r.Catalog().Lookup("Test::hinted")
	if _, ok := op.Overload("int"); !ok {
		t.Errorf("suggested overloads not listed: %+v", op.Overloads)
	}
}

func TestNonStrictSkipsMissingOperators(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if _, err := New(catalog.New()); err == nil {
		t.Fatal("strict construction over an empty catalog should fail")
	}

	r, err := New(catalog.New(), WithStrict(false), WithLogger(logger))
	if err != nil {
		t.Fatalf("non-strict New: %v", err)
	}
	passed, skipped := r.Checked()
	if passed != 0 || skipped == 0 {
		t.Errorf("passed=%d skipped=%d", passed, skipped)
	}
	if !strings.Contains(buf.String(), "skipping overload registration") {
		t.Error("skipped registrations should be logged")
	}
}
