package ast

import (
	"testing"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/typesystem"
)

var (
	tFloat    = typesystem.Of(typesystem.Float)
	tString   = typesystem.Of(typesystem.String)
	tBool     = typesystem.Of(typesystem.Bool)
	tFloatArr = typesystem.Of("array<float>")
)

type env struct {
	a   *Arena
	rec *graph.Recorder
	c   *lowering.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	rec := graph.NewRecorder(cat)
	return &env{a: NewArena(), rec: rec, c: lowering.NewContext(rec, cat)}
}

func (e *env) value(t typesystem.Type, lit string) NodeID {
	return e.a.Add(&Value{Base: Base{Type: t}, Literal: lit})
}

func (e *env) variable(name string, t typesystem.Type) NodeID {
	return e.a.Add(&Variable{Base: Base{Type: t}, Name: name})
}

func (e *env) declare(name string, t typesystem.Type, value NodeID) NodeID {
	target := e.a.Add(&AssignTypeName{Base: Base{Type: t}, Name: name})
	return e.a.Add(&Assignment{Targets: []NodeID{target}, Value: value})
}

func (e *env) run(t *testing.T, stmts ...NodeID) *graph.Snapshot {
	t.Helper()
	prog := e.a.Add(&Program{Statements: stmts})
	if _, err := e.a.Lower(prog, e.c); err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return e.rec.Snapshot()
}

func bundle(t *testing.T, ports ...typesystem.Port) typesystem.Type {
	t.Helper()
	if ports == nil {
		ports = []typesystem.Port{}
	}
	b, err := typesystem.NewBundle(ports)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// ----------------------------------------------------------------------------
// Arena
// ----------------------------------------------------------------------------

func TestLowerIsIdempotent(t *testing.T) {
	e := newEnv(t)
	sum := e.a.Add(&MathOp{Base: Base{Type: tFloat}, Op: "+", Left: e.value(tFloat, "1"), Right: e.value(tFloat, "2")})
	e.run(t, e.declare("z", tFloat, sum))

	nodes, edges := e.rec.Stats()
	if nodes != 3 || edges != 2 {
		t.Fatalf("Stats() = %d nodes, %d edges, want 3 and 2", nodes, edges)
	}
	first, _ := e.a.Lower(sum, e.c)
	again, err := e.a.Lower(sum, e.c)
	if err != nil || again != first {
		t.Fatalf("second Lower = %v, %v; want %v", again, err, first)
	}
	if n, m := e.rec.Stats(); n != nodes || m != edges {
		t.Errorf("second Lower emitted: %d nodes, %d edges", n-nodes, m-edges)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	e := newEnv(t)
	one := e.value(tFloat, "1")
	sum := e.a.Add(&MathOp{Base: Base{Type: tFloat}, Op: "+", Left: one, Right: one})

	remap := map[NodeID]NodeID{}
	cp := e.a.Copy(sum, remap)
	if cp == sum || len(remap) != 2 {
		t.Fatalf("Copy = %d with %d entries", cp, len(remap))
	}
	op := e.a.Get(cp).(*MathOp)
	if op.Left != op.Right || op.Left == one {
		t.Errorf("shared operand should be copied once: %+v", op)
	}

	e.run(t, e.declare("a", tFloat, sum), e.declare("b", tFloat, cp))
	if got := len(e.rec.Snapshot().NodesOfType(lowering.OpAdd)); got != 2 {
		t.Errorf("add nodes = %d, want 2", got)
	}
}

func TestInvalidID(t *testing.T) {
	e := newEnv(t)
	if _, err := e.a.Lower(42, e.c); diagnostics.CodeOf(err) != diagnostics.ErrE001 {
		t.Errorf("Lower(42) = %v", err)
	}
	if e.a.Get(NoNode) != nil || e.a.Copy(NoNode, map[NodeID]NodeID{}) != NoNode {
		t.Error("NoNode must stay absent")
	}
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

func TestConcatFlattens(t *testing.T) {
	e := newEnv(t)
	ab := e.a.Add(&MathOp{Base: Base{Type: tString}, Op: "+", Left: e.value(tString, "a"), Right: e.value(tString, "b")})
	abc := e.a.Add(&MathOp{Base: Base{Type: tString}, Op: "+", Left: ab, Right: e.value(tString, "c")})
	snap := e.run(t, e.declare("s", tString, abc))

	joins := snap.NodesOfType(lowering.OpBuildString)
	if len(joins) != 1 {
		t.Fatalf("build_string nodes = %d, want 1", len(joins))
	}
	if got := len(snap.EdgesTo(joins[0].ID)); got != 3 {
		t.Errorf("joined parts = %d, want 3", got)
	}
}

func TestConcatArrayIsElementWise(t *testing.T) {
	e := newEnv(t)
	tStrings := typesystem.Of("array<string>")
	arr := e.a.Add(&Array{Base: Base{Type: tStrings}, Items: []NodeID{e.value(tString, "a"), e.value(tString, "b")}})
	cat := e.a.Add(&MathOp{Base: Base{Type: tStrings}, Op: "+", Left: arr, Right: e.value(tString, "c")})
	snap := e.run(t, e.declare("s", tStrings, cat))

	joins := snap.NodesOfType(lowering.OpBuildString)
	if len(joins) != 1 {
		t.Fatalf("build_string nodes = %d, want 1", len(joins))
	}
	wrapper, ok := snap.Node(joins[0].Parent)
	if !ok || wrapper.Name != lowering.BuildStringCompound {
		t.Fatalf("build_string should sit in a %s compound, parent = %+v", lowering.BuildStringCompound, wrapper)
	}
	types := map[string]string{}
	for _, p := range wrapper.Inputs {
		types[p.Name] = p.Type
	}
	if types["string0"] != "array<string>" || types["string1"] != "string" {
		t.Errorf("wrapper inputs = %+v", wrapper.Inputs)
	}
	if len(wrapper.Outputs) != 1 || wrapper.Outputs[0].Type != "array<string>" {
		t.Errorf("wrapper outputs = %+v", wrapper.Outputs)
	}
	iterated := map[string]bool{}
	for _, m := range wrapper.Metadata {
		iterated[m.Key] = m.Value == "true"
	}
	for port, want := range map[string]bool{"string0": true, "string1": false, "output": true} {
		if got := iterated[graph.PortMetadataKey(port, graph.MetaIterationTarget)]; got != want {
			t.Errorf("port %s iterated = %v, want %v", port, got, want)
		}
	}

	fromArray := false
	for _, edge := range snap.EdgesTo(wrapper.ID) {
		if src, ok := snap.Node(edge.From.Node); ok && src.Type == lowering.OpBuildArray && edge.To.Port == "string0" {
			fromArray = true
		}
	}
	if !fromArray {
		t.Error("the array operand must feed string0 of the wrapper")
	}
	if got := len(snap.EdgesTo(joins[0].ID)); got != 2 {
		t.Errorf("build_string inputs = %d, want 2", got)
	}
}

func TestCompareChain(t *testing.T) {
	e := newEnv(t)
	cmp := e.a.Add(&Compare{
		Base:     Base{Type: tBool},
		Operands: []NodeID{e.value(tFloat, "1"), e.value(tFloat, "2"), e.value(tFloat, "3")},
		Ops:      []string{"<", "<="},
	})
	snap := e.run(t, e.declare("ok", tBool, cmp))

	if len(snap.NodesOfType("Core::Logic::less")) != 1 || len(snap.NodesOfType("Core::Logic::less_or_equal")) != 1 {
		t.Error("expected one less and one less_or_equal")
	}
	if len(snap.NodesOfType("Core::Logic::and")) != 1 {
		t.Error("comparisons should be joined with and")
	}
}

func TestBoolOperandsBecomeChars(t *testing.T) {
	e := newEnv(t)
	sum := e.a.Add(&MathOp{Base: Base{Type: typesystem.Of(typesystem.Char)}, Op: "+", Left: e.value(tBool, "true"), Right: e.value(tBool, "false")})
	snap := e.run(t, e.declare("n", typesystem.Of(typesystem.Char), sum))
	if got := len(snap.NodesOfType(lowering.OpToChar)); got != 2 {
		t.Errorf("to_char nodes = %d, want 2", got)
	}
}

func TestVectorLiterals(t *testing.T) {
	e := newEnv(t)
	x := e.variable("x", tFloat)
	vec := e.a.Add(&Vector{
		Base:       Base{Type: typesystem.Of("Math::float3")},
		Components: []NodeID{x, e.value(tFloat, "2"), e.value(tFloat, "3")},
	})
	snap := e.run(t, e.declare("x", tFloat, e.value(tFloat, "1")), e.declare("v", e.a.Type(vec), vec))

	values := snap.NodesOfType(graph.ValueNodeType)
	last := values[len(values)-1]
	if len(last.Literals) != 2 || last.Literals[0].Port != "value.y" {
		t.Errorf("constant components should be literals: %+v", last.Literals)
	}
	in := snap.EdgesTo(last.ID)
	if len(in) != 1 || in[0].To.Port != "value.x" {
		t.Errorf("variable component should be connected: %+v", in)
	}
}

func TestEmptyArrayResizes(t *testing.T) {
	e := newEnv(t)
	arr := e.a.Add(&EmptyArray{Base: Base{Type: tFloatArr}, Count: e.value(typesystem.Of(typesystem.Long), "4")})
	snap := e.run(t, e.declare("a", tFloatArr, arr))
	if len(snap.NodesOfType(lowering.OpResizeArray)) != 1 {
		t.Error("sized empty array should use resize_array")
	}
}

// ----------------------------------------------------------------------------
// Access
// ----------------------------------------------------------------------------

func TestAccessLHSBindsOnce(t *testing.T) {
	e := newEnv(t)
	lhs := &AccessLHS{Base: Base{Type: tFloatArr}, Name: "a", Method: WriteArray, Index: e.value(typesystem.Of(typesystem.Long), "0")}
	if err := lhs.SetRHS(e.value(tFloat, "5")); err != nil {
		t.Fatal(err)
	}
	if err := lhs.SetRHS(e.value(tFloat, "6")); err == nil {
		t.Fatal("second SetRHS should fail")
	}

	arr := e.a.Add(&Array{Base: Base{Type: tFloatArr}, Items: []NodeID{e.value(tFloat, "1")}})
	target := e.a.Add(lhs)
	write := e.a.Add(&Assignment{Targets: []NodeID{target}, Value: lhs.RHS})
	snap := e.run(t, e.declare("a", tFloatArr, arr), write)

	if len(snap.NodesOfType(lowering.OpSetInArray)) != 1 {
		t.Fatal("expected one set_in_array")
	}
	ref, err := e.c.Memory().Get("a")
	if err != nil || ref.Port != "out_array" {
		t.Errorf("variable should be rebound to the write: %v, %v", ref, err)
	}
}

func TestSliceLowering(t *testing.T) {
	e := newEnv(t)
	arr := e.a.Add(&Array{Base: Base{Type: tFloatArr}, Items: []NodeID{e.value(tFloat, "1"), e.value(tFloat, "2")}})
	slice := e.a.Add(&Slice{Base: Base{Type: tFloatArr}, Value: arr, Start: e.value(typesystem.Of(typesystem.Long), "1")})
	snap := e.run(t, e.declare("tail", tFloatArr, slice))

	for _, typ := range []string{lowering.OpArraySize, lowering.OpGatherArray} {
		if len(snap.NodesOfType(typ)) != 1 {
			t.Errorf("expected one %s node", typ)
		}
	}
	compounds := 0
	for _, n := range snap.NodesOfType(graph.Compound) {
		if n.Name == lowering.SliceCompound {
			compounds++
		}
	}
	if compounds != 1 {
		t.Errorf("%s compounds = %d, want 1", lowering.SliceCompound, compounds)
	}
}

// ----------------------------------------------------------------------------
// Loops and scopes
// ----------------------------------------------------------------------------

func TestForEachLowering(t *testing.T) {
	e := newEnv(t)
	arr := e.a.Add(&Array{Base: Base{Type: tFloatArr}, Items: []NodeID{e.value(tFloat, "1"), e.value(tFloat, "2")}})
	param := e.a.Add(&LoopParameter{Base: Base{Type: tFloatArr}, Name: "values", Inner: tFloat, IterationTarget: true})
	result := e.a.Add(&LoopResult{Base: Base{Type: tFloatArr}, Name: "doubled", Inner: tFloat, IterationTarget: true})
	double := e.a.Add(&MathOp{Base: Base{Type: tFloat}, Op: "*", Left: e.variable("values", tFloat), Right: e.value(tFloat, "2")})
	body := e.a.Add(&Assignment{Targets: []NodeID{e.variable("doubled", tFloat)}, Value: double})
	loop := e.a.Add(&LoopForEach{Loop{
		Base:    Base{Type: bundle(t, typesystem.Port{Name: "doubled", Type: tFloatArr})},
		Params:  []NodeID{param},
		Results: []NodeID{result},
		Body:    []NodeID{body},
	}})
	snap := e.run(t, e.declare("values", tFloatArr, arr), e.declare("out", tFloatArr, loop))

	loops := snap.NodesOfType(graph.ForEach)
	if len(loops) != 1 {
		t.Fatalf("for_each containers = %d, want 1", len(loops))
	}
	n := loops[0]
	for _, p := range n.Inputs {
		if p.Name == graph.MaxIterations {
			t.Error("max_iterations should be removed without a setting")
		}
	}
	meta := map[string]string{}
	for _, m := range n.Metadata {
		meta[m.Key] = m.Value
	}
	if meta[graph.PortMetadataKey("values", graph.MetaIterationTarget)] != "true" ||
		meta[graph.PortMetadataKey("doubled", graph.MetaIterationTarget)] != "true" {
		t.Errorf("iteration target metadata missing: %v", meta)
	}
	inside := snap.Children(n.ID)
	if len(inside) != 2 {
		t.Errorf("loop body nodes = %d, want 2 (constant and multiply)", len(inside))
	}
	if len(snap.EdgesTo(n.ID)) != 2 {
		t.Errorf("loop edges in = %d, want the parameter and the result", len(snap.EdgesTo(n.ID)))
	}
	ref, _ := e.c.Memory().Get("out")
	if ref.Node != n.ID || ref.Port != "doubled" {
		t.Errorf("out = %v", ref)
	}
}

func TestDoWhileCondition(t *testing.T) {
	e := newEnv(t)
	long := typesystem.Of(typesystem.Long)
	cond := e.a.Add(&Compare{Base: Base{Type: tBool}, Operands: []NodeID{e.variable("#", long), e.value(long, "10")}, Ops: []string{"<"}})
	loop := e.a.Add(&LoopDoWhile{
		Loop: Loop{
			Base:          Base{Type: bundle(t)},
			MaxIterations: e.value(long, "100"),
		},
		Condition: cond,
	})
	snap := e.run(t, loop)

	n := snap.NodesOfType(graph.DoWhile)[0]
	var fed bool
	for _, edge := range snap.EdgesTo(n.ID) {
		if edge.To.Port == graph.LoopingCondition {
			fed = true
		}
	}
	if !fed {
		t.Error("looping_condition is not connected")
	}
}

func TestCallScopeDefaults(t *testing.T) {
	e := newEnv(t)
	p := e.a.Add(&ScopeParameter{Base: Base{Type: tFloat}, Name: "x", Default: e.value(tFloat, "3")})
	r := e.a.Add(&ScopeResult{Base: Base{Type: tFloat}, Name: "y"})
	body := e.a.Add(&Assignment{Targets: []NodeID{e.variable("y", tFloat)}, Value: e.variable("x", tFloat)})
	scope := e.a.Add(&Scope{
		Base:    Base{Type: bundle(t, typesystem.Port{Name: "y", Type: tFloat})},
		Name:    "ident",
		Params:  []NodeID{p},
		Results: []NodeID{r},
		Body:    []NodeID{body},
	})

	calls := make([]NodeID, 2)
	for i := range calls {
		cp := e.a.Copy(scope, map[NodeID]NodeID{})
		call := e.a.Add(&CallScope{Base: Base{Type: e.a.Type(cp)}, Name: "ident", Scope: cp})
		calls[i] = e.declare([]string{"a", "b"}[i], tFloat, call)
	}
	snap := e.run(t, calls...)

	comps := snap.NodesOfType(graph.Compound)
	if len(comps) != 2 {
		t.Fatalf("compounds = %d, want one per call", len(comps))
	}
	for _, comp := range comps {
		if comp.Name != "ident" {
			t.Errorf("compound name = %q", comp.Name)
		}
		if got := len(snap.EdgesTo(comp.ID)); got != 2 {
			t.Errorf("edges into %s = %d, want default and result", comp.ID, got)
		}
	}
}

func TestUsingDefinesOutputs(t *testing.T) {
	e := newEnv(t)
	out := bundle(t, typesystem.Port{Name: "value", Type: tFloat}, typesystem.Port{Name: "found", Type: tBool})
	obj := e.a.Add(&Object{Base: Base{Type: typesystem.Of(typesystem.Object)}})
	call := e.a.Add(&CallNative{
		Base: Base{Type: out},
		Op:   lowering.OpGetProperty,
		Inputs: []Binding{
			{Port: "object", Arg: obj},
			{Port: "key", Arg: e.value(tString, "k")},
			{Port: "default_and_type", Arg: e.value(tFloat, "0")},
		},
	})
	e.run(t, e.a.Add(&Using{Value: call}))

	for _, name := range []string{"value", "found"} {
		ref, err := e.c.Memory().Get(name)
		if err != nil || ref.Port != name {
			t.Errorf("%s = %v, %v", name, ref, err)
		}
	}
}
