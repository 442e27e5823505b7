package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/parsetree"
)

func nd(kind, text string, children ...*parsetree.Node) *parsetree.Node {
	return &parsetree.Node{Kind: kind, Text: text, Children: children}
}

// program is "float x = add(1.0, <operand>)" with operand a variable.
func program(operand *parsetree.Node) *parsetree.Node {
	return nd(parsetree.KindProgram, "",
		nd(parsetree.KindAssignment, "=",
			nd(parsetree.KindTargets, "", nd(parsetree.KindDeclare, "x", nd(parsetree.KindType, "float"))),
			nd(parsetree.KindCall, "add",
				nd(parsetree.KindArgument, "", nd(parsetree.KindNumber, "1.0")),
				nd(parsetree.KindArgument, "", operand))))
}

func writeTree(t *testing.T, dir string, root *parsetree.Node) string {
	t.Helper()
	data, err := yaml.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "prog.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// ----------------------------------------------------------------------------
// Commands
// ----------------------------------------------------------------------------

func TestUsage(t *testing.T) {
	if code, _, stderr := runCLI(); code != 2 || !strings.Contains(stderr, "Usage:") {
		t.Errorf("no args: code %d, stderr %q", code, stderr)
	}
	if code, stdout, _ := runCLI("help"); code != 0 || !strings.Contains(stdout, "flowc build") {
		t.Errorf("help: code %d, stdout %q", code, stdout)
	}
	if code, _, stderr := runCLI("frobnicate"); code != 2 || !strings.Contains(stderr, `Unknown command "frobnicate"`) {
		t.Errorf("unknown: code %d, stderr %q", code, stderr)
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, program(nd(parsetree.KindNumber, "2.0")))
	out := filepath.Join(dir, "out.graph.json")

	code, stdout, stderr := runCLI("build", "-o", out, "-format", "json", tree)
	if code != 0 {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != out {
		t.Errorf("stdout = %q, want %q", stdout, out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := graph.DecodeYAML(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.NodesOfType(lowering.OpAdd)) != 1 {
		t.Errorf("graph has no add node: %s", data)
	}
}

func TestBareTreeBuildsNextToInput(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, program(nd(parsetree.KindNumber, "2.0")))
	if code, _, stderr := runCLI(tree); code != 0 {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "prog.graph.yaml")); err != nil {
		t.Errorf("default output missing: %v", err)
	}
}

func TestCheckWritesNothing(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, program(nd(parsetree.KindNumber, "2.0")))
	code, stdout, stderr := runCLI("check", tree)
	if code != 0 {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, ": ok (") {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, "prog.graph.yaml")); !os.IsNotExist(err) {
		t.Error("check must not write a graph")
	}
}

func TestBuildReportsErrors(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, program(nd(parsetree.KindVariable, "missing")))
	code, _, stderr := runCLI("build", tree)
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "NameError: Variable 'missing' referenced before assignment") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestErrorExcerpt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.flow")
	text := "float x = add(1.0, missing)\n"
	if err := os.WriteFile(src, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	start := strings.Index(text, "missing")
	operand := nd(parsetree.KindVariable, "missing")
	operand.Pos = parsetree.Pos{File: src, Line: 1, Start: start, End: start + len("missing")}
	tree := writeTree(t, dir, program(operand))

	code, _, stderr := runCLI("check", tree)
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	for _, want := range []string{`File "` + src + `", line 1`, "    " + strings.TrimSpace(text), "^^^^^^^", ">> Variable 'missing'"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestBuildFlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", []string{"build"}},
		{"two inputs", []string{"build", "a.yaml", "b.yaml"}},
		{"unknown flag", []string{"build", "-zzz", "a.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCLI(tt.args...); code != 2 {
				t.Errorf("code = %d, want 2", code)
			}
		})
	}
}

func TestSQLiteThenShow(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, program(nd(parsetree.KindNumber, "2.0")))
	db := filepath.Join(dir, "graphs.db")
	code, stdout, stderr := runCLI("build", "-format", "sqlite", "-o", db, tree)
	if code != 0 {
		t.Fatalf("build: code %d, stderr %q", code, stderr)
	}
	where := strings.TrimSpace(stdout)
	id := where[strings.LastIndex(where, "#")+1:]

	code, stdout, stderr = runCLI("show", db)
	if code != 0 || strings.TrimSpace(stdout) != id {
		t.Fatalf("show list: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	code, stdout, stderr = runCLI("show", db, id)
	if code != 0 {
		t.Fatalf("show: code %d, stderr %q", code, stderr)
	}
	snap, err := graph.DecodeYAML([]byte(stdout))
	if err != nil {
		t.Fatal(err)
	}
	if snap.ID != id {
		t.Errorf("id = %q, want %q", snap.ID, id)
	}
}

func TestCatalogCommand(t *testing.T) {
	code, stdout, _ := runCLI("catalog")
	if code != 0 || !strings.Contains(stdout, "(first, second) -> (output)") {
		t.Errorf("list: code %d", code)
	}
	code, stdout, _ = runCLI("catalog", "add")
	if code != 0 || !strings.HasPrefix(stdout, lowering.OpAdd+" (first, second) -> (output)") {
		t.Errorf("detail: code %d, stdout %q", code, stdout)
	}
	if code, _, stderr := runCLI("catalog", "no_such_op"); code != 1 || !strings.Contains(stderr, "no_such_op") {
		t.Errorf("unknown: code %d, stderr %q", code, stderr)
	}
}
