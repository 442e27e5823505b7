package lowering

import (
	"strings"
	"testing"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/typesystem"
)

func newContext(t *testing.T) (*Context, *graph.Recorder) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	rec := graph.NewRecorder(cat)
	if err := rec.Open(); err != nil {
		t.Fatal(err)
	}
	return NewContext(rec, cat), rec
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

var tFloat = typesystem.Of(typesystem.Float)

// ----------------------------------------------------------------------------
// Memory
// ----------------------------------------------------------------------------

func TestMemory(t *testing.T) {
	m := NewMemory()
	a := graph.PortRef{Node: "a", Port: "output"}
	b := graph.PortRef{Node: "b", Port: "output"}

	must(t, m.Define("x", tFloat, a))
	if err := m.Define("x", tFloat, b); diagnostics.CodeOf(err) != diagnostics.ErrN002 {
		t.Errorf("redefinition = %v", err)
	}
	must(t, m.DefineSetOnly("out", tFloat, b))
	if err := m.DefineSetOnly("out", tFloat, b); diagnostics.CodeOf(err) != diagnostics.ErrN002 || !strings.Contains(err.Error(), "Output variable already defined") {
		t.Errorf("output redefinition = %v", err)
	}
	if err := m.Define("out", tFloat, b); err == nil {
		t.Error("a value may not shadow an output")
	}

	if got, _ := m.Get("x"); got != a {
		t.Errorf("Get(x) = %v", got)
	}
	if _, err := m.Get("out"); diagnostics.CodeOf(err) != diagnostics.ErrE002 {
		t.Errorf("reading an output = %v", err)
	}
	if _, err := m.Get("nope"); diagnostics.CodeOf(err) != diagnostics.ErrN001 {
		t.Errorf("unknown variable = %v", err)
	}
	if err := m.Set("out", a); diagnostics.CodeOf(err) != diagnostics.ErrE002 {
		t.Errorf("setting an output = %v", err)
	}
	must(t, m.Set("x", b))
	if got, _ := m.Get("x"); got != b {
		t.Errorf("Set did not rebind: %v", got)
	}

	if p := m.Pending(); len(p) != 1 || p[0] != "out" {
		t.Errorf("Pending = %v", p)
	}
	target, err := m.GetSetOnly("out")
	must(t, err)
	if target.Port != b || !target.Type.Equal(tFloat) {
		t.Errorf("GetSetOnly = %+v", target)
	}
	if _, err := m.GetSetOnly("out"); err == nil {
		t.Error("output variables are consumed")
	}
}

// ----------------------------------------------------------------------------
// Context
// ----------------------------------------------------------------------------

func TestAssign(t *testing.T) {
	c, rec := newContext(t)
	v1, err := c.ConstValue(tFloat, "1")
	must(t, err)
	v2, err := c.ConstValue(tFloat, "2")
	must(t, err)

	comp, err := rec.CreateContainer(graph.Compound, "f")
	must(t, err)
	must(t, rec.AddOutputPort(comp, "result", tFloat))
	must(t, c.Push(comp))
	must(t, c.Memory().DefineSetOnly("result", tFloat, graph.PortRef{Node: comp, Port: "result"}))

	inner, err := c.ConstValue(tFloat, "3")
	must(t, err)
	must(t, c.Assign("x", tFloat, inner))
	must(t, c.Assign("x", tFloat, inner))
	must(t, c.Assign("result", tFloat, inner))
	if c.Memory().IsSetOnly("result") {
		t.Error("assigning an output consumes it")
	}
	must(t, c.Pop())
	if err := c.Pop(); err == nil {
		t.Error("leaving the root must fail")
	}

	must(t, c.Assign("y", tFloat, v1))
	must(t, c.Assign("y", tFloat, v2))
	if got, _ := c.Memory().Get("y"); got != v2 {
		t.Errorf("y = %v, want %v", got, v2)
	}
	if _, ok := c.Memory().Type("x"); ok {
		t.Error("inner variables leaked into the root frame")
	}
	if len(rec.Snapshot().EdgesTo(comp)) != 1 {
		t.Error("the output was not connected")
	}
}

func TestOutputAssignedOnce(t *testing.T) {
	c, rec := newContext(t)
	sink, err := c.ValueNode(tFloat)
	must(t, err)
	must(t, c.Memory().DefineSetOnly("out", tFloat, graph.PortRef{Node: sink, Port: graph.ValueInput}))

	first, err := c.ConstValue(tFloat, "1")
	must(t, err)
	second, err := c.ConstValue(tFloat, "2")
	must(t, err)
	must(t, c.Assign("out", tFloat, first))
	if err := c.Assign("out", tFloat, second); diagnostics.CodeOf(err) != diagnostics.ErrN002 {
		t.Fatalf("second write = %v, want N002", err)
	}
	if c.Memory().IsDefined("out") {
		t.Error("a consumed output must not turn into a local")
	}
	if _, err := c.Memory().Get("out"); diagnostics.CodeOf(err) != diagnostics.ErrE002 {
		t.Errorf("reading a consumed output = %v", err)
	}
	if edges := rec.Snapshot().EdgesTo(sink); len(edges) != 1 || edges[0].From != first {
		t.Errorf("sink edges = %+v", edges)
	}
}

func TestHelpers(t *testing.T) {
	c, rec := newContext(t)
	a, err := c.ConstValue(tFloat, "1")
	must(t, err)
	b, err := c.ConstValue(tFloat, "2")
	must(t, err)

	for _, op := range []string{"+", "-", "*", "/", "%", "**"} {
		if _, err := c.MathOp(op, a, b); err != nil {
			t.Errorf("MathOp(%s): %v", op, err)
		}
	}
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if _, err := c.Compare(op, a, b); err != nil {
			t.Errorf("Compare(%s): %v", op, err)
		}
	}
	if _, err := c.MathOp("<<", a, b); err == nil {
		t.Error("unknown math operator")
	}

	snap := rec.Snapshot()
	if n := snap.NodesOfType("Core::Logic::less_or_equal"); len(n) != 1 {
		t.Errorf("<= must emit less_or_equal, got %d nodes", len(n))
	}
	if n := snap.NodesOfType("Core::Logic::greater"); len(n) != 1 {
		t.Errorf("> must emit greater, got %d nodes", len(n))
	}
	mod := snap.NodesOfType(OpModulo)[0]
	if edges := snap.EdgesTo(mod.ID); len(edges) != 2 || edges[1].To.Port != "divisor" {
		t.Errorf("modulo wiring = %+v", edges)
	}

	tString := typesystem.Of(typesystem.String)
	s1, err := c.ConstValue(tString, "a")
	must(t, err)
	part := StringPart{Port: s1, Type: tString}
	joined, err := c.BuildString(tString, part, part)
	must(t, err)
	if joined.Port != "output" || c.Depth() != 1 {
		t.Errorf("BuildString output = %v at depth %d", joined, c.Depth())
	}
	if wrapper, ok := rec.Snapshot().Node(joined.Node); !ok || wrapper.Name != BuildStringCompound || len(wrapper.Inputs) != 2 {
		t.Errorf("BuildString wrapper = %+v", wrapper)
	}
	if _, err := c.Node("no_such_operator"); diagnostics.CodeOf(err) != diagnostics.ErrN003 {
		t.Errorf("unknown operator = %v", err)
	}
}

func TestSliceIndices(t *testing.T) {
	c, rec := newContext(t)
	size, err := c.ConstValue(typesystem.Of(typesystem.Long), "10")
	must(t, err)
	start, err := c.ConstValue(typesystem.Of(typesystem.Long), "1")
	must(t, err)

	s, err := c.SliceIndices(size, start, graph.PortRef{}, graph.PortRef{})
	must(t, err)
	if c.Depth() != 1 {
		t.Fatalf("SliceIndices left %d frames open", c.Depth())
	}
	must(t, rec.Close())

	snap := rec.Snapshot()
	comp, ok := snap.Node(s.Node)
	if !ok || comp.Name != SliceCompound {
		t.Fatalf("compound = %+v", comp)
	}
	if len(comp.Inputs) != 7 || len(comp.Outputs) != 5 {
		t.Errorf("compound ports = %d in, %d out", len(comp.Inputs), len(comp.Outputs))
	}
	lits := map[string]string{}
	for _, l := range comp.Literals {
		lits[l.Port] = l.Value
	}
	if lits["start_is_none"] != "false" || lits["stop_is_none"] != "true" || lits["step_is_none"] != "true" {
		t.Errorf("none flags = %v", lits)
	}

	var loop *graph.Node
	for _, n := range snap.Children(s.Node) {
		if n.Kind == graph.ForEach {
			loop = n
		}
	}
	if loop == nil {
		t.Fatal("no index loop inside the compound")
	}
	if len(snap.EdgesTo(loop.ID)) != 4 {
		t.Errorf("index loop inputs = %+v", snap.EdgesTo(loop.ID))
	}
	if s.Indices.Port != SliceOutIndices || s.Count.Port != SliceOutCount {
		t.Errorf("slice outputs = %+v", s)
	}
}
