package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
	"github.com/funvibe/flowc/internal/utils"
)

var namespacePattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*::)*[A-Za-z_][A-Za-z0-9_]*$`)

// ----------------------------------------------------------------------------
// Imports
// ----------------------------------------------------------------------------

// findImport locates an imported document: absolute paths as given,
// otherwise next to the importing file, then in every search directory.
func (an *Analyzer) findImport(spec string) (string, bool) {
	for _, c := range utils.ImportCandidates(an.file, spec, an.searchPath) {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// importFile builds another document with a fresh analyzer and registers
// its functions as namespace::name.
func (an *Analyzer) importFile(n *parsetree.Node) error {
	spec := strings.Trim(n.Text, `"`)
	path, ok := an.findImport(spec)
	if !ok {
		return errAt(n, diagnostics.ErrN001, "Could not find a '%s' to import", spec)
	}

	ns := utils.ExtractNamespace(spec)
	if name := n.Child(parsetree.KindName); name != nil {
		ns = strings.Trim(name.Text, `"`)
	}
	if !namespacePattern.MatchString(ns) {
		return errAt(n, diagnostics.ErrS001, "Invalid namespace name '%s'", ns)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("importing %s: %w", spec, err)
	}
	if an.importing[abs] {
		return errAt(n, diagnostics.ErrE001, "Circular import of '%s'", spec)
	}
	an.importing[abs] = true
	defer delete(an.importing, abs)

	tree, err := parsetree.Load(path)
	if err != nil {
		if _, ok := diagnostics.As(err); ok {
			return err
		}
		return fmt.Errorf("importing %s: %w", spec, err)
	}
	sub := an.sub()
	if _, err := sub.Build(tree); err != nil {
		return err
	}
	for _, name := range sub.Functions() {
		full := ns + "::" + name
		if _, exists := an.functions[full]; exists {
			return errAt(n, diagnostics.ErrN002, "Function '%s' already defined!", full)
		}
		fn := sub.functions[name]
		an.functions[full] = &Function{Name: full, Scope: fn.Scope, Overloads: append([]Overload(nil), fn.Overloads...)}
	}
	an.logger.Info("imported", "path", path, "namespace", ns, "functions", len(sub.functions))
	return nil
}

// ----------------------------------------------------------------------------
// Functions
// ----------------------------------------------------------------------------

// function defines a named scope. Parameter defaults are built in an empty
// frame: they are lowered at every call site and may not read variables.
func (an *Analyzer) function(n *parsetree.Node) error {
	name := n.Text
	if name == "" {
		return errAt(n, diagnostics.ErrS001, "Functions need a name")
	}
	if _, exists := an.functions[name]; exists {
		return errAt(n, diagnostics.ErrN002, "Function '%s' already defined!", name)
	}
	var id ast.NodeID
	err := an.inFrame(func() error {
		var err error
		id, err = an.scope(n, name)
		return err
	})
	if err != nil {
		return err
	}
	sc := an.arena.Get(id).(*ast.Scope)
	ov := Overload{}
	for _, pid := range sc.Params {
		ov.In = append(ov.In, an.typeOf(pid))
	}
	for _, rid := range sc.Results {
		ov.Out = append(ov.Out, an.typeOf(rid))
	}
	an.functions[name] = &Function{Name: name, Scope: id, Overloads: []Overload{ov}}
	an.logger.Debug("function", "name", name, "in", tags(ov.In), "out", tags(ov.Out))
	return nil
}

// ----------------------------------------------------------------------------
// Overloads
// ----------------------------------------------------------------------------

// portSlot maps the i-th overload entry to a port: positional entries to
// the leading ports, named entries by name.
func portSlot(n *parsetree.Node, i int, names []string, keyword *bool, target string) (int, error) {
	if n.Text == "" {
		if *keyword {
			return -1, errAt(n, diagnostics.ErrS001, "Positional arguments cant follow keyword arguments")
		}
		return i, nil
	}
	*keyword = true
	for j, name := range names {
		if name == n.Text {
			return j, nil
		}
	}
	return -1, errAt(n, diagnostics.ErrN003, "Unrecognized port name '%s' of '%s'. Chose from %s", n.Text, target, quoteList(names))
}

// overload adds signatures to a function or a catalog operator. Every
// input entry may list several types; one signature is added per
// combination.
func (an *Analyzer) overload(n *parsetree.Node) error {
	target := n.Text
	var (
		fn                *Function
		full              string
		inNames, outNames []string
		inTypes, outTypes []typesystem.Type
	)
	if f, ok := an.functions[target]; ok {
		fn = f
		sc := an.arena.Get(f.Scope).(*ast.Scope)
		for _, id := range sc.Params {
			inNames = append(inNames, an.arena.Get(id).(*ast.ScopeParameter).Name)
		}
		for _, id := range sc.Results {
			outNames = append(outNames, an.arena.Get(id).(*ast.ScopeResult).Name)
		}
		inTypes = append(inTypes, f.Overloads[0].In...)
		outTypes = append(outTypes, f.Overloads[0].Out...)
	} else if name, ok := an.cat.Resolve(target); ok {
		full = name
		op, _ := an.cat.Lookup(full)
		inNames, outNames = op.InputNames(), op.OutputNames()
		sig := op.Primary()
		inTypes = declared(sig.In, len(inNames))
		outTypes = declared(sig.Out, len(outNames))
	} else {
		return errAt(n, diagnostics.ErrN001, "No function '%s' found", target)
	}

	inputs := n.ChildrenOf(parsetree.KindOverloadInput)
	outputs := n.ChildrenOf(parsetree.KindOverloadResult)
	switch {
	case len(outputs) > 0 && len(outNames) == 0:
		return errAt(n, diagnostics.ErrE001, "Operator/compound '%s()' does not return anything", target)
	case len(inputs) > len(inNames):
		return errAt(n, diagnostics.ErrE001, "Cant overload operator '%s()' with different in port count: %d", target, len(inNames))
	case len(outputs) > len(outNames):
		return errAt(n, diagnostics.ErrE001, "Cant overload operator '%s()' with different out port count: %d", target, len(outNames))
	}

	keyword := false
	for i, o := range outputs {
		idx, err := portSlot(o, i, outNames, &keyword, target)
		if err != nil {
			return err
		}
		types := o.ChildrenOf(parsetree.KindType)
		if len(types) != 1 {
			return errAt(o, diagnostics.ErrE001, "Results must not be ambiguous for out port '%s'", outNames[idx])
		}
		if outTypes[idx], err = an.parseType(types[0]); err != nil {
			return err
		}
	}

	keyword = false
	slots := make([]int, len(inputs))
	choices := make([][]typesystem.Type, len(inputs))
	for i, in := range inputs {
		idx, err := portSlot(in, i, inNames, &keyword, target)
		if err != nil {
			return err
		}
		slots[i] = idx
		for _, tn := range in.ChildrenOf(parsetree.KindType) {
			t, err := an.parseType(tn)
			if err != nil {
				return err
			}
			choices[i] = append(choices[i], t)
		}
		if len(choices[i]) == 0 {
			return errAt(in, diagnostics.ErrS001, "Overload of '%s' needs a type for '%s'", target, inNames[idx])
		}
	}

	added := 0
	product(choices, func(combo []typesystem.Type) {
		in := append([]typesystem.Type(nil), inTypes...)
		for k, t := range combo {
			in[slots[k]] = t
		}
		ov := Overload{In: in, Out: append([]typesystem.Type(nil), outTypes...)}
		added++
		if fn != nil {
			if j := fn.overload(in); j >= 0 {
				fn.Overloads[j] = ov
			} else {
				fn.Overloads = append(fn.Overloads, ov)
			}
			return
		}
		if an.opOverload[full] == nil {
			an.opOverload[full] = make(map[string]Overload)
		}
		an.opOverload[full][strings.Join(tags(in), "-")] = ov
	})
	an.logger.Debug("overload", "target", target, "signatures", added)
	return nil
}

// declared reads the declared port types of a catalog signature. Missing
// entries are auto.
func declared(sig []string, count int) []typesystem.Type {
	out := make([]typesystem.Type, count)
	for i := range out {
		out[i] = typesystem.Auto
		if i < len(sig) && sig[i] != "" {
			out[i] = typesystem.Of(sig[i])
		}
	}
	return out
}

// product calls fn with every combination of one type per entry.
func product(choices [][]typesystem.Type, fn func([]typesystem.Type)) {
	combo := make([]typesystem.Type, len(choices))
	var rec func(i int)
	rec = func(i int) {
		if i == len(choices) {
			fn(combo)
			return
		}
		for _, t := range choices[i] {
			combo[i] = t
			rec(i + 1)
		}
	}
	rec(0)
}
