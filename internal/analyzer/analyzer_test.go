package analyzer

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/resolver"
	"github.com/funvibe/flowc/internal/typesystem"
)

var (
	sharedOnce sync.Once
	sharedRes  *resolver.Resolver
	sharedErr  error
)

func testResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	sharedOnce.Do(func() {
		cat, err := catalog.Default()
		if err != nil {
			sharedErr = err
			return
		}
		sharedRes, sharedErr = resolver.New(cat)
	})
	if sharedErr != nil {
		t.Fatalf("resolver: %v", sharedErr)
	}
	return sharedRes
}

// ----------------------------------------------------------------------------
// Tree construction
// ----------------------------------------------------------------------------

func nd(kind, text string, children ...*parsetree.Node) *parsetree.Node {
	return &parsetree.Node{Kind: kind, Text: text, Children: children}
}

func num(text string) *parsetree.Node { return nd(parsetree.KindNumber, text) }
func vr(name string) *parsetree.Node  { return nd(parsetree.KindVariable, name) }
func typ(tag string) *parsetree.Node  { return nd(parsetree.KindType, tag) }
func body(stmts ...*parsetree.Node) *parsetree.Node {
	return nd(parsetree.KindBody, "", stmts...)
}

func decl(tag, name string) *parsetree.Node { return nd(parsetree.KindDeclare, name, typ(tag)) }

// set builds "targets = value".
func set(value *parsetree.Node, targets ...*parsetree.Node) *parsetree.Node {
	return nd(parsetree.KindAssignment, "=", nd(parsetree.KindTargets, "", targets...), value)
}

// unpack builds "targets := value".
func unpack(value *parsetree.Node, targets ...*parsetree.Node) *parsetree.Node {
	return nd(parsetree.KindAssignment, ":=", nd(parsetree.KindTargets, "", targets...), value)
}

func call(name string, args ...*parsetree.Node) *parsetree.Node {
	wrapped := make([]*parsetree.Node, len(args))
	for i, a := range args {
		wrapped[i] = nd(parsetree.KindArgument, "", a)
	}
	return nd(parsetree.KindCall, name, wrapped...)
}

func program(stmts ...*parsetree.Node) *parsetree.Node {
	root := nd(parsetree.KindProgram, "", stmts...)
	parsetree.Walk(root, func(n *parsetree.Node) bool {
		n.Pos = parsetree.Pos{File: "test.flow", Line: 1}
		return true
	})
	return root
}

func build(t *testing.T, stmts ...*parsetree.Node) (*Analyzer, ast.NodeID, error) {
	t.Helper()
	an := New(testResolver(t))
	id, err := an.Build(program(stmts...))
	return an, id, err
}

func mustBuild(t *testing.T, stmts ...*parsetree.Node) (*Analyzer, *ast.Program) {
	t.Helper()
	an, id, err := build(t, stmts...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return an, an.Arena().Get(id).(*ast.Program)
}

func assertCode(t *testing.T, err error, want diagnostics.ErrorCode, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := diagnostics.CodeOf(err); got != want {
		t.Fatalf("expected code %s, got %s (%v)", want, got, err)
	}
	if msg != "" && !strings.Contains(err.Error(), msg) {
		t.Fatalf("error %q does not contain %q", err, msg)
	}
}

func assertVar(t *testing.T, an *Analyzer, name, tag string) {
	t.Helper()
	got, ok := an.Memory().Type(name)
	if !ok {
		t.Fatalf("variable %s is not defined", name)
	}
	if got.Unwrap().Tag() != tag {
		t.Fatalf("%s: type = %s, want %s", name, got, tag)
	}
}

// ----------------------------------------------------------------------------
// Assignments
// ----------------------------------------------------------------------------

func TestDeclarations(t *testing.T) {
	an, prog := mustBuild(t,
		set(num("5"), decl("long", "x")),
		set(vr("x"), decl("double", "d")),
		set(num("1.5"), decl("auto", "f")),
	)
	if len(prog.Statements) != 3 {
		t.Fatalf("statements = %d, want 3", len(prog.Statements))
	}
	assertVar(t, an, "x", "long")
	assertVar(t, an, "d", "double")
	assertVar(t, an, "f", "float")
}

func TestLossyAssignment(t *testing.T) {
	_, _, err := build(t,
		set(num("5"), decl("long", "x")),
		set(vr("x"), decl("uint", "y")),
	)
	assertCode(t, err, diagnostics.ErrT002, "lossy")
	if d, ok := diagnostics.As(err); !ok || d.Pos.File != "test.flow" {
		t.Errorf("error is not positioned: %v", err)
	}
}

func TestAssignmentErrors(t *testing.T) {
	tests := []struct {
		name  string
		stmts []*parsetree.Node
		code  diagnostics.ErrorCode
		msg   string
	}{
		{
			name:  "undefined",
			stmts: []*parsetree.Node{set(vr("nope"), decl("int", "x"))},
			code:  diagnostics.ErrN001,
			msg:   "referenced before assignment",
		},
		{
			name:  "index outside loop",
			stmts: []*parsetree.Node{set(vr("#"), decl("long", "i"))},
			code:  diagnostics.ErrE002,
			msg:   "only available within loop scopes",
		},
		{
			name: "redefinition",
			stmts: []*parsetree.Node{
				set(num("1"), decl("int", "x")),
				set(num("2"), decl("int", "x")),
			},
			code: diagnostics.ErrN002,
			msg:  "Redefinition",
		},
		{
			name:  "array dimension",
			stmts: []*parsetree.Node{set(num("1.0"), decl("float[]", "a"))},
			code:  diagnostics.ErrT004,
		},
		{
			name:  "incompatible",
			stmts: []*parsetree.Node{set(nd(parsetree.KindString, "hi"), decl("float", "a"))},
			code:  diagnostics.ErrT001,
		},
		{
			name:  "unknown operator",
			stmts: []*parsetree.Node{set(call("frobnicate", num("1")), decl("auto", "a"))},
			code:  diagnostics.ErrN003,
			msg:   "frobnicate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := build(t, tt.stmts...)
			assertCode(t, err, tt.code, tt.msg)
		})
	}
}

func TestUnpack(t *testing.T) {
	vec := nd(parsetree.KindVector, "", num("1.0"), num("2.0"))
	an, prog := mustBuild(t,
		unpack(call("vector2_to_scalar", vec), decl("auto", "a"), decl("float", "b")),
	)
	assertVar(t, an, "a", "float")
	assertVar(t, an, "b", "float")
	asg := an.Arena().Get(prog.Statements[0]).(*ast.Assignment)
	if strings.Join(asg.Outputs, ",") != "x,y" {
		t.Errorf("outputs = %v, want [x y]", asg.Outputs)
	}

	vec = nd(parsetree.KindVector, "", num("1.0"), num("2.0"))
	_, _, err := build(t,
		unpack(call("vector2_to_scalar", vec), decl("auto", "a"), decl("auto", "b"), decl("auto", "c")),
	)
	assertCode(t, err, diagnostics.ErrE001, "Cannot unpack")
}

func TestIgnoreTarget(t *testing.T) {
	vec := nd(parsetree.KindVector, "", num("1.0"), num("2.0"))
	an, _ := mustBuild(t,
		unpack(call("vector2_to_scalar", vec), nd(parsetree.KindIgnore, "_"), decl("auto", "y")),
	)
	if _, ok := an.Memory().Type("_"); ok {
		t.Error("'_' must not define a variable")
	}
	assertVar(t, an, "y", "float")
}

// ----------------------------------------------------------------------------
// Calls and access
// ----------------------------------------------------------------------------

func TestNativeCallPromotes(t *testing.T) {
	an, prog := mustBuild(t, set(call("add", num("1"), num("2.5")), decl("float", "x")))
	asg := an.Arena().Get(prog.Statements[0]).(*ast.Assignment)
	c, ok := an.Arena().Get(asg.Value).(*ast.CallNative)
	if !ok {
		t.Fatalf("value is %T, want *ast.CallNative", an.Arena().Get(asg.Value))
	}
	if c.Op != "Core::Math::add" || len(c.Inputs) != 2 {
		t.Fatalf("call = %+v", c)
	}
	for _, b := range c.Inputs {
		if b.Type.Tag() != typesystem.Float {
			t.Errorf("port %s: %s, want float", b.Port, b.Type)
		}
	}
}

func TestKeywordArguments(t *testing.T) {
	kw := nd(parsetree.KindCall, "subtract",
		nd(parsetree.KindArgument, "second", num("1.0")),
		nd(parsetree.KindArgument, "first", num("3.0")),
	)
	an, prog := mustBuild(t, set(kw, decl("float", "x")))
	asg := an.Arena().Get(prog.Statements[0]).(*ast.Assignment)
	c := an.Arena().Get(asg.Value).(*ast.CallNative)
	if c.Inputs[0].Port != "first" || c.Inputs[1].Port != "second" {
		t.Errorf("bindings = %+v", c.Inputs)
	}

	bad := nd(parsetree.KindCall, "subtract",
		nd(parsetree.KindArgument, "first", num("1.0")),
		nd(parsetree.KindArgument, "", num("3.0")),
	)
	_, _, err := build(t, set(bad, decl("float", "x")))
	assertCode(t, err, diagnostics.ErrS001, "")
}

func TestSliceKeepsType(t *testing.T) {
	arr := nd(parsetree.KindArray, "", num("1.0"), num("2.0"), num("3.0"))
	slice := nd(parsetree.KindAccess, "", vr("arr"),
		nd(parsetree.KindSlice, "", nd(parsetree.KindStart, "", num("1"))))
	an, _ := mustBuild(t,
		set(arr, decl("float[]", "arr")),
		set(slice, decl("auto", "tail")),
	)
	assertVar(t, an, "tail", "array<float>")
}

func TestIndexAndMember(t *testing.T) {
	arr := nd(parsetree.KindArray, "", num("1"), num("2"))
	vec := nd(parsetree.KindVector, "", num("1.0"), num("2.0"), num("3.0"))
	an, _ := mustBuild(t,
		set(arr, decl("auto", "arr")),
		set(nd(parsetree.KindAccess, "", vr("arr"), nd(parsetree.KindIndex, "", num("0"))), decl("auto", "first")),
		set(vec, decl("auto", "v")),
		set(nd(parsetree.KindAccess, "", vr("v"), nd(parsetree.KindMember, "y")), decl("auto", "y")),
	)
	assertVar(t, an, "arr", "array<int>")
	assertVar(t, an, "first", "int")
	assertVar(t, an, "y", "float")

	_, _, err := build(t,
		set(num("1.0"), decl("float", "s")),
		set(nd(parsetree.KindAccess, "", vr("s"), nd(parsetree.KindIndex, "", num("0"))), decl("auto", "x")),
	)
	assertCode(t, err, diagnostics.ErrT005, "Can only access")
}

func TestDebugIntrinsic(t *testing.T) {
	var buf bytes.Buffer
	an := New(testResolver(t), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	id, err := an.Build(program(set(call("__debug::type", num("1.0"), num("2")), decl("auto", "s"))))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	prog := an.Arena().Get(id).(*ast.Program)
	asg := an.Arena().Get(prog.Statements[0]).(*ast.Assignment)
	v, ok := an.Arena().Get(asg.Value).(*ast.Value)
	if !ok || v.Literal != "float, int" {
		t.Fatalf("debug value = %+v", an.Arena().Get(asg.Value))
	}
	if !strings.Contains(buf.String(), "debug") {
		t.Errorf("debug intrinsic was not logged: %q", buf.String())
	}

	_, _, err = build(t, set(call("__debug::nothing"), decl("auto", "s")))
	assertCode(t, err, diagnostics.ErrN003, "Unknown debug function")
}

// ----------------------------------------------------------------------------
// Scopes and loops
// ----------------------------------------------------------------------------

func TestDuplicateResults(t *testing.T) {
	sc := nd(parsetree.KindScope, "",
		nd(parsetree.KindResults, "",
			nd(parsetree.KindResult, "a", typ("float")),
			nd(parsetree.KindResult, "a", typ("float"))),
		body(),
	)
	_, _, err := build(t, sc)
	assertCode(t, err, diagnostics.ErrN002, "Duplicate result names found")
}

func TestInlineScope(t *testing.T) {
	sc := nd(parsetree.KindScope, "",
		nd(parsetree.KindParameters, "", nd(parsetree.KindParameter, "x", typ("float"))),
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "y", typ("float"))),
		body(set(call("multiply", vr("x"), num("2.0")), vr("y"))),
	)
	an, prog := mustBuild(t, set(num("1.5"), decl("float", "x")), sc)
	assertVar(t, an, "y", "float")
	st, ok := an.Arena().Get(prog.Statements[1]).(*ast.ScopeStatement)
	if !ok || len(st.Inputs) != 1 || st.Inputs[0].Port != "x" {
		t.Fatalf("scope statement = %+v", an.Arena().Get(prog.Statements[1]))
	}
}

func TestScopeBodyIsClosed(t *testing.T) {
	sc := nd(parsetree.KindScope, "",
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "y", typ("float"))),
		body(set(vr("outer"), vr("y"))),
	)
	_, _, err := build(t, set(num("1.0"), decl("float", "outer")), sc)
	assertCode(t, err, diagnostics.ErrN001, "outer")
}

func TestResultAssignedOnce(t *testing.T) {
	sc := nd(parsetree.KindScope, "",
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "y", typ("float"))),
		body(set(num("1.0"), vr("y")), set(num("2.0"), vr("y"))),
	)
	_, _, err := build(t, sc)
	assertCode(t, err, diagnostics.ErrN002, "'y' is already assigned")
	if d, ok := diagnostics.As(err); !ok || d.Pos.IsZero() {
		t.Errorf("error should carry the second write's position: %v", err)
	}

	vec := nd(parsetree.KindVector, "", num("1.0"), num("2.0"))
	unpacked := nd(parsetree.KindScope, "",
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "x", typ("float")), nd(parsetree.KindResult, "y", typ("float"))),
		body(unpack(call("vector2_to_scalar", vec), vr("x"), vr("y")), set(num("3.0"), vr("x"))),
	)
	_, _, err = build(t, unpacked)
	assertCode(t, err, diagnostics.ErrN002, "'x' is already assigned")

	inner := nd(parsetree.KindScope, "",
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "y", typ("float"))),
		body(set(num("1.0"), vr("y"))),
	)
	merged := nd(parsetree.KindScope, "",
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "y", typ("float"))),
		body(inner, set(num("2.0"), vr("y"))),
	)
	_, _, err = build(t, merged)
	assertCode(t, err, diagnostics.ErrN002, "'y' is already assigned")
}

func TestForEachNeedsLimit(t *testing.T) {
	loop := nd(parsetree.KindForEach, "",
		nd(parsetree.KindLoopParameter, "v", typ("float"), num("1.0")),
		body(),
	)
	_, _, err := build(t, loop)
	assertCode(t, err, diagnostics.ErrE001, "Either max_iterations or an iteration target is required")
}

func TestForEachIterationTarget(t *testing.T) {
	arr := nd(parsetree.KindArray, "", num("1.0"), num("2.0"))
	loop := nd(parsetree.KindForEach, "",
		nd(parsetree.KindLoopParameter, "arr", nd(parsetree.KindIterationTarget, "")),
		nd(parsetree.KindLoopResult, "out", typ("float[]")),
		body(set(call("multiply", vr("arr"), num("2.0")), vr("out"))),
	)
	an, prog := mustBuild(t, set(arr, decl("auto", "arr")), loop)
	assertVar(t, an, "out", "array<float>")
	u := an.Arena().Get(prog.Statements[1]).(*ast.Using)
	fe, ok := an.Arena().Get(u.Value).(*ast.LoopForEach)
	if !ok {
		t.Fatalf("loop statement wraps %T", an.Arena().Get(u.Value))
	}
	p := an.Arena().Get(fe.Params[0]).(*ast.LoopParameter)
	if !p.IterationTarget || p.Inner.Tag() != typesystem.Float {
		t.Errorf("parameter = %+v", p)
	}
}

func TestDoWhileNeedsLimit(t *testing.T) {
	loop := nd(parsetree.KindDoWhile, "",
		nd(parsetree.KindLoopParameter, "v", typ("float"), num("1.0")),
		body(),
		nd(parsetree.KindCondition, "", nd(parsetree.KindBool, "true")),
	)
	_, _, err := build(t, loop)
	assertCode(t, err, diagnostics.ErrS001, "nolimit")
}

func TestStatePorts(t *testing.T) {
	loop := func(state, resultType string) *parsetree.Node {
		return nd(parsetree.KindIterate, "",
			nd(parsetree.KindLoopSettings, "", nd(parsetree.KindMaxIterations, "", num("10"))),
			nd(parsetree.KindLoopParameter, "acc", typ("float"), num("0.0")),
			nd(parsetree.KindLoopResult, "total", typ(resultType), nd(parsetree.KindState, state)),
			body(set(call("add", vr("acc"), num("1.0")), vr("total"))),
		)
	}
	an, _ := mustBuild(t, loop("acc", "float"))
	assertVar(t, an, "total", "float")

	_, _, err := build(t, loop("missing", "float"))
	assertCode(t, err, diagnostics.ErrN001, "missing")
	_, _, err = build(t, loop("acc", "int"))
	assertCode(t, err, diagnostics.ErrT001, "State port types dont match")
}

// ----------------------------------------------------------------------------
// Functions, overloads and imports
// ----------------------------------------------------------------------------

func doubler(name string) *parsetree.Node {
	return nd(parsetree.KindFunction, name,
		nd(parsetree.KindParameters, "", nd(parsetree.KindParameter, "x", typ("float"))),
		nd(parsetree.KindResults, "", nd(parsetree.KindResult, "y", typ("float"))),
		body(set(call("multiply", vr("x"), num("2.0")), vr("y"))),
	)
}

func TestFunctionCall(t *testing.T) {
	an, prog := mustBuild(t,
		doubler("double_it"),
		set(call("double_it", num("3.0")), decl("float", "r")),
	)
	fn, ok := an.Function("double_it")
	if !ok {
		t.Fatal("function was not registered")
	}
	asg := an.Arena().Get(prog.Statements[0]).(*ast.Assignment)
	cs, ok := an.Arena().Get(asg.Value).(*ast.CallScope)
	if !ok {
		t.Fatalf("value is %T", an.Arena().Get(asg.Value))
	}
	if cs.Scope == fn.Scope {
		t.Error("the call must lower its own copy of the function body")
	}

	_, _, err := build(t, doubler("f"), doubler("f"))
	assertCode(t, err, diagnostics.ErrN002, "already defined")
	_, _, err = build(t, doubler("f"), set(call("f"), decl("float", "r")))
	assertCode(t, err, diagnostics.ErrE001, "Missing argument")
}

func TestFunctionOverload(t *testing.T) {
	ov := nd(parsetree.KindOverload, "double_it",
		nd(parsetree.KindOverloadInput, "", typ("double")),
		nd(parsetree.KindOverloadResult, "", typ("double")),
	)
	an, prog := mustBuild(t,
		doubler("double_it"),
		ov,
		set(call("double_it", num("3.0d")), decl("double", "r")),
	)
	fn, _ := an.Function("double_it")
	if len(fn.Overloads) != 2 {
		t.Fatalf("overloads = %d, want 2", len(fn.Overloads))
	}
	asg := an.Arena().Get(prog.Statements[0]).(*ast.Assignment)
	if got := an.Arena().Type(asg.Value).Unwrap().Tag(); got != typesystem.Double {
		t.Errorf("call type = %s, want double", got)
	}

	_, _, err := build(t, nd(parsetree.KindOverload, "nothing_here"))
	assertCode(t, err, diagnostics.ErrN001, "No function")
}

func writeTree(t *testing.T, path string, root *parsetree.Node) {
	t.Helper()
	data, err := yaml.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, filepath.Join(dir, "mathlib.yaml"), nd(parsetree.KindProgram, "", doubler("twice")))

	root := program(
		nd(parsetree.KindImport, "mathlib.yaml"),
		set(call("mathlib::twice", num("2.0")), decl("float", "r")),
	)
	root.Pos.File = filepath.Join(dir, "main.yaml")
	an := New(testResolver(t))
	if _, err := an.Build(root); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := an.Function("mathlib::twice"); !ok {
		t.Errorf("functions = %v", an.Functions())
	}
	assertVar(t, an, "r", "float")
}

func TestImportSearchPath(t *testing.T) {
	lib := t.TempDir()
	writeTree(t, filepath.Join(lib, "shapes.yaml"), nd(parsetree.KindProgram, "", doubler("grow")))

	root := program(nd(parsetree.KindImport, "shapes.yaml", nd(parsetree.KindName, "sh")))
	root.Pos.File = filepath.Join(t.TempDir(), "main.yaml")
	an := New(testResolver(t), WithSearchPath(lib))
	if _, err := an.Build(root); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := an.Function("sh::grow"); !ok {
		t.Errorf("functions = %v", an.Functions())
	}
}

func TestImportErrors(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, filepath.Join(dir, "a.yaml"), nd(parsetree.KindProgram, "", nd(parsetree.KindImport, "b.yaml")))
	writeTree(t, filepath.Join(dir, "b.yaml"), nd(parsetree.KindProgram, "", nd(parsetree.KindImport, "a.yaml")))

	tests := []struct {
		name string
		node *parsetree.Node
		code diagnostics.ErrorCode
		msg  string
	}{
		{"missing", nd(parsetree.KindImport, "nowhere.yaml"), diagnostics.ErrN001, "Could not find"},
		{"cycle", nd(parsetree.KindImport, "a.yaml"), diagnostics.ErrE001, "Circular import"},
		{"namespace", nd(parsetree.KindImport, "a.yaml", nd(parsetree.KindName, "1bad")), diagnostics.ErrS001, "Invalid namespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := program(tt.node)
			root.Pos.File = filepath.Join(dir, "main.yaml")
			_, err := New(testResolver(t)).Build(root)
			assertCode(t, err, tt.code, tt.msg)
		})
	}
}

func TestBuildRejectsNonProgram(t *testing.T) {
	_, err := New(testResolver(t)).Build(nd(parsetree.KindBody, ""))
	assertCode(t, err, diagnostics.ErrS001, "Expected a program")
}
