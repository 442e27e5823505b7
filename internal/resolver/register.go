package resolver

import (
	"fmt"
	"strings"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

func (r *Resolver) operator(name string) (*catalog.Operator, error) {
	op, ok := r.cat.Lookup(name)
	if !ok {
		return nil, diagnostics.Newf(diagnostics.ErrC001, "Operator or compound '%s' does not exist!", name)
	}
	return op, nil
}

// ForceAuto turns the named ports of op's first overload into auto ports.
// The rewritten signature becomes the first overload; an existing overload
// with the same key is dropped.
func (r *Resolver) ForceAuto(name string, ports ...string) error {
	op, err := r.operator(name)
	if err != nil {
		return err
	}
	names := append(op.InputNames(), op.OutputNames()...)
	for _, p := range ports {
		if op.Input(p) < 0 && op.Output(p) < 0 {
			return diagnostics.Newf(diagnostics.ErrC001, "Invalid port '%s'. Chose from %s", p, quoteList(names))
		}
	}

	force := make(map[string]bool, len(ports))
	for _, p := range ports {
		force[p] = true
	}
	first := op.Primary()
	sig := catalog.Signature{
		In:  append([]string{}, first.In...),
		Out: append([]string{}, first.Out...),
	}
	for i, p := range op.Inputs {
		if force[p.Name] && i < len(sig.In) {
			sig.In[i] = typesystem.AutoTag
		}
	}
	for i, p := range op.Outputs {
		if force[p.Name] && i < len(sig.Out) {
			sig.Out[i] = typesystem.AutoTag
		}
	}

	rest := make([]catalog.Signature, 0, len(op.Overloads)+1)
	rest = append(rest, sig)
	for _, s := range op.Overloads {
		if s.Key() != sig.Key() {
			rest = append(rest, s)
		}
	}
	op.Overloads = rest
	return nil
}

// Define registers a declarative overload set for op. Every group consumes
// one required auto input plus one auto port per dependent derivation; the
// groups must account for every auto port of the first overload.
func (r *Resolver) Define(name string, groups ...Group) error {
	op, err := r.operator(name)
	if err != nil {
		return err
	}
	first := op.Primary()
	if !containsAuto(first.In) {
		return diagnostics.Newf(diagnostics.ErrC001, "Operator or compound '%s' has no auto ports!", name)
	}
	autoCount := countAuto(first.In) + countAuto(first.Out)

	count := 0
	for _, g := range groups {
		if g.Candidates.Len() == 0 {
			return diagnostics.New(diagnostics.ErrC001, "Valid types are empty!")
		}
		if count >= len(op.Inputs) {
			return diagnostics.Newf(diagnostics.ErrC001, "Output types must be given through type func: '%s'", name)
		}
		count += 1 + len(g.Dependents)
	}
	if count != autoCount {
		return diagnostics.Newf(diagnostics.ErrC001, "'%s' has %d auto ports but got %d", name, autoCount, count)
	}

	return r.register(name, op, overloadSet{groups: groups}, true)
}

// DefineResolver registers a custom resolver function for op.
func (r *Resolver) DefineResolver(name string, fn ResolverFunc) error {
	op, err := r.operator(name)
	if err != nil {
		return err
	}
	if fn == nil {
		return diagnostics.New(diagnostics.ErrC001, "Did you mean Define()?")
	}
	return r.register(name, op, overloadSet{fn: fn}, false)
}

// register appends set and runs the consistency checks. A set that fails
// them is removed again.
func (r *Resolver) register(name string, op *catalog.Operator, set overloadSet, permutations bool) error {
	prev := r.overloads[name]
	r.overloads[name] = append(prev[:len(prev):len(prev)], set)

	tested, err := r.selfCheck(name, op)
	if err == nil && tested && permutations {
		err = r.permutationCheck(name, op)
	}
	if err != nil {
		if len(prev) == 0 {
			delete(r.overloads, name)
		} else {
			r.overloads[name] = prev
		}
		return err
	}
	if tested {
		r.passed = append(r.passed, name)
	}
	return nil
}

// selfCheck resolves the catalog default inputs of op and requires the
// result to reproduce the default overload. Defaults with auto inputs are
// skipped.
func (r *Resolver) selfCheck(name string, op *catalog.Operator) (bool, error) {
	if op.Default == nil || containsAuto(op.Default.In) {
		r.skipped = append(r.skipped, name)
		return false, nil
	}
	in, out, err := r.Resolve(name, tagsOf(op.Default.In))
	if err != nil {
		return false, err
	}
	if diff := compareTags(in, op.Default.In); diff != "" {
		return false, diagnostics.Newf(diagnostics.ErrC001, "'%s' missmatch in inputs:\n    %s", name, diff)
	}
	if diff := compareTags(out, op.Default.Out); diff != "" {
		return false, diagnostics.Newf(diagnostics.ErrC001, "'%s' missmatch in outputs:\n    %s", name, diff)
	}
	return true, nil
}

// permutationCheck resolves every combination of suggested input types when
// exactly one input carries several suggestions. Each one must resolve to
// itself.
func (r *Resolver) permutationCheck(name string, op *catalog.Operator) error {
	suggestions := op.Suggestions()
	several := 0
	for _, s := range suggestions {
		if len(s) == 0 {
			return nil
		}
		if len(s) > 1 {
			several++
		}
	}
	if several != 1 {
		return nil
	}
	for _, perm := range product(suggestions) {
		in, _, err := r.Resolve(name, tagsOf(perm))
		if err != nil {
			return err
		}
		if diff := compareTags(in, perm); diff != "" {
			return diagnostics.Newf(diagnostics.ErrC001, "'%s' missmatch on suggested inputs:\n    %s", name, diff)
		}
	}
	return nil
}

// loadSuggestedOverloads lists every suggestion combination as an explicit
// overload for operators that have a single auto overload, no registered
// sets and concrete outputs. It does not make the resolver smarter; it
// gives callers that iterate overloads something to iterate.
func (r *Resolver) loadSuggestedOverloads() {
	for _, name := range r.cat.Operators() {
		op, _ := r.cat.Lookup(name)
		if len(op.Overloads) != 1 || !containsAuto(op.Overloads[0].In) {
			continue
		}
		if _, ok := r.overloads[name]; ok {
			continue
		}
		first := op.Overloads[0]
		if containsAuto(first.Out) {
			continue
		}
		suggestions := op.Suggestions()
		several := false
		complete := true
		for _, s := range suggestions {
			if len(s) == 0 {
				complete = false
			}
			if len(s) > 1 {
				several = true
			}
		}
		if !several || !complete {
			continue
		}
		for _, perm := range product(suggestions) {
			sig := catalog.Signature{In: perm, Out: append([]string{}, first.Out...)}
			if _, dup := op.Overload(sig.Key()); !dup {
				op.Overloads = append(op.Overloads, sig)
			}
		}
	}
}

func product(lists [][]string) [][]string {
	out := [][]string{{}}
	for _, l := range lists {
		var next [][]string
		for _, prefix := range out {
			for _, s := range l {
				p := append(append([]string{}, prefix...), s)
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

func containsAuto(tags []string) bool { return countAuto(tags) > 0 }

func countAuto(tags []string) int {
	n := 0
	for _, t := range tags {
		if t == typesystem.AutoTag {
			n++
		}
	}
	return n
}

func compareTags(got []typesystem.Type, want []string) string {
	mismatch := len(got) != len(want)
	var lines []string
	for i := 0; i < len(got) || i < len(want); i++ {
		g, w := "<none>", "<none>"
		if i < len(got) {
			g = got[i].Tag()
		}
		if i < len(want) {
			w = want[i]
		}
		if g != w {
			mismatch = true
		}
		lines = append(lines, fmt.Sprintf("%s <> %s", g, w))
	}
	if !mismatch {
		return ""
	}
	return strings.Join(lines, "\n    ")
}
