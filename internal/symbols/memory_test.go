package symbols

import (
	"testing"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

var (
	tInt   = typesystem.Of(typesystem.Int)
	tFloat = typesystem.Of(typesystem.Float)
)

func mustDefine(t *testing.T, m *Memory, name string, typ typesystem.Type, writeOnly bool) {
	t.Helper()
	if err := m.Define(name, typ, ast.NoNode, writeOnly); err != nil {
		t.Fatalf("Define(%s): %v", name, err)
	}
}

func TestDefineAndLookup(t *testing.T) {
	m := New()
	mustDefine(t, m, "x", tInt, false)
	mustDefine(t, m, "out", tFloat, true)

	if typ, ok := m.Type("x"); !ok || !typ.Equal(tInt) {
		t.Errorf("Type(x) = %v, %v", typ, ok)
	}
	if typ, ok := m.Type("out"); !ok || !typ.Equal(tFloat) {
		t.Errorf("write-only bindings still have a type: %v, %v", typ, ok)
	}
	if m.IsWriteOnly("x") || !m.IsWriteOnly("out") {
		t.Error("write-only flags are wrong")
	}
	if got := m.Names(); len(got) != 1 || got[0] != "x" {
		t.Errorf("Names() = %v, want only readable names", got)
	}

	err := m.Define("x", tFloat, ast.NoNode, false)
	if diagnostics.CodeOf(err) != diagnostics.ErrN002 {
		t.Errorf("redefinition error = %v", err)
	}
	err = m.Define("out", tFloat, ast.NoNode, false)
	if diagnostics.CodeOf(err) != diagnostics.ErrN002 {
		t.Errorf("redefinition of a result = %v", err)
	}
}

func TestSetKeepsWriteOnly(t *testing.T) {
	m := New()
	mustDefine(t, m, "out", typesystem.Auto, true)
	if err := m.Set("out", tFloat, ast.NoNode); err != nil {
		t.Fatal(err)
	}
	if !m.IsWriteOnly("out") {
		t.Error("Set dropped the write-only flag")
	}
	if typ, _ := m.Type("out"); !typ.Equal(tFloat) {
		t.Errorf("Set did not retype: %v", typ)
	}

	if err := m.Set("fresh", tInt, ast.NoNode); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Lookup("fresh"); !ok {
		t.Error("Set should define unknown names")
	}
}

func TestBundleNeedsValue(t *testing.T) {
	bundle, err := typesystem.NewBundle([]typesystem.Port{{Name: "a", Type: tInt}})
	if err != nil {
		t.Fatal(err)
	}
	m := New()
	if err := m.Define("b", bundle, ast.NoNode, false); err == nil {
		t.Fatal("bundle without value must fail")
	}
	if err := m.Define("b", bundle, ast.NodeID(7), false); err != nil {
		t.Fatal(err)
	}
	if v, ok := m.Value("b"); !ok || v != 7 {
		t.Errorf("Value(b) = %v, %v", v, ok)
	}
	if _, ok := m.Value("missing"); ok {
		t.Error("Value of an unknown name")
	}
}

// ----------------------------------------------------------------------------
// Frames
// ----------------------------------------------------------------------------

func TestFramesAreClosed(t *testing.T) {
	m := New()
	mustDefine(t, m, "outer", tInt, false)
	m.Push()
	if _, ok := m.Lookup("outer"); ok {
		t.Error("inner frame sees outer bindings")
	}
	mustDefine(t, m, "outer", tFloat, false)
	if err := m.Pop(); err != nil {
		t.Fatal(err)
	}
	if typ, _ := m.Type("outer"); !typ.Equal(tInt) {
		t.Errorf("shadowing leaked out of the frame: %v", typ)
	}
}

func TestStackDiscipline(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		m := New()
		for i := 0; i < n; i++ {
			m.Push()
			mustDefine(t, m, "v", tInt, false)
			mustDefine(t, m, "r", tInt, true)
		}
		for i := 0; i < n; i++ {
			if err := m.Pop(); err != nil {
				t.Fatal(err)
			}
		}
		if m.Depth() != 1 || m.Len() != 0 {
			t.Errorf("n=%d: depth %d, %d bindings left", n, m.Depth(), m.Len())
		}
		if _, ok := m.Lookup("v"); ok {
			t.Errorf("n=%d: popped binding still visible", n)
		}
	}
}

func TestPopRoot(t *testing.T) {
	m := New()
	if err := m.Pop(); err == nil {
		t.Fatal("popping the root frame must fail")
	}
	if m.Depth() != 1 {
		t.Errorf("Depth() = %d", m.Depth())
	}
}
