package analyzer

import (
	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

// reserved port names of loop containers.
var reserved = map[string]bool{
	graph.MaxIterations:    true,
	graph.CurrentIndex:     true,
	graph.LoopingCondition: true,
	"#":                    true,
}

// ----------------------------------------------------------------------------
// Scopes
// ----------------------------------------------------------------------------

// scopeParams builds the parameters of a scope. Defaults are built in the
// current frame.
func (an *Analyzer) scopeParams(n *parsetree.Node) ([]ast.NodeID, error) {
	list := n.Child(parsetree.KindParameters)
	if list == nil {
		return nil, nil
	}
	seen := make(map[string]bool)
	var ids []ast.NodeID
	for _, p := range list.Children {
		if seen[p.Text] {
			return nil, errAt(p, diagnostics.ErrN002, "Duplicate parameter names found")
		}
		seen[p.Text] = true
		t, err := an.typeChild(p)
		if err != nil {
			return nil, err
		}
		def := ast.NoNode
		if d := p.Child(parsetree.KindDefault); d != nil {
			inner, err := wrapped(d)
			if err != nil {
				return nil, err
			}
			if def, err = an.expr(inner); err != nil {
				return nil, err
			}
			dt := an.typeOf(def)
			if dt.IsBundle() && len(dt.Ports()) != 1 {
				return nil, errAt(inner, diagnostics.ErrT001, "Can't pass NODE type variables through scopes!")
			}
			if t.IsAuto() {
				t = dt.Unwrap()
			} else if err := validateCast(inner, dt, t, p.Text); err != nil {
				return nil, err
			}
		}
		if t.IsAuto() {
			return nil, errAt(p, diagnostics.ErrT001, "Parameter '%s' needs a type or a default", p.Text)
		}
		ids = append(ids, an.add(&ast.ScopeParameter{Base: base(p, t), Name: p.Text, Default: def}))
	}
	return ids, nil
}

// scopeResults builds the results of a scope and checks their feedback
// ports against params.
func (an *Analyzer) scopeResults(n *parsetree.Node, params []ast.NodeID) ([]ast.NodeID, error) {
	list := n.Child(parsetree.KindResults)
	if list == nil {
		return nil, nil
	}
	inputs := make(map[string]typesystem.Type, len(params))
	for _, id := range params {
		p := an.arena.Get(id).(*ast.ScopeParameter)
		inputs[p.Name] = p.Type
	}
	seen := make(map[string]bool)
	fed := make(map[string]bool)
	var ids []ast.NodeID
	for _, r := range list.Children {
		if seen[r.Text] {
			return nil, errAt(r, diagnostics.ErrN002, "Duplicate result names found")
		}
		seen[r.Text] = true
		if _, clash := inputs[r.Text]; clash {
			return nil, errAt(r, diagnostics.ErrN002, "Results cannot have the same name as arguments: '%s'", r.Text)
		}
		t, err := an.typeChild(r)
		if err != nil {
			return nil, err
		}
		if t.IsAuto() {
			return nil, errAt(r, diagnostics.ErrT001, "Result '%s' needs a concrete type", r.Text)
		}
		feedback := ""
		if fb := r.Child(parsetree.KindFeedback); fb != nil {
			if an.loopDepth > 0 {
				return nil, errAt(fb, diagnostics.ErrE002, "Feedback ports in looping constructs are not allowed")
			}
			pt, ok := inputs[fb.Text]
			switch {
			case !ok:
				return nil, errAt(fb, diagnostics.ErrN001, "Unknown feedback port '%s'", fb.Text)
			case fed[fb.Text]:
				return nil, errAt(fb, diagnostics.ErrN002, "Duplicate feedback port: '%s'", fb.Text)
			case !pt.Equal(t):
				return nil, errAt(fb, diagnostics.ErrT001, "Feedback port types dont match: '%s[%s]@%s[%s]'", fb.Text, pt, r.Text, t)
			}
			fed[fb.Text] = true
			feedback = fb.Text
		}
		ids = append(ids, an.add(&ast.ScopeResult{Base: base(r, t), Name: r.Text, Feedback: feedback}))
	}
	return ids, nil
}

// scope builds a scope definition. Its body sees the parameters and the
// write-only results, nothing else.
func (an *Analyzer) scope(n *parsetree.Node, name string) (ast.NodeID, error) {
	terminal, err := terminalFlags(n)
	if err != nil {
		return ast.NoNode, err
	}
	params, err := an.scopeParams(n)
	if err != nil {
		return ast.NoNode, err
	}
	results, err := an.scopeResults(n, params)
	if err != nil {
		return ast.NoNode, err
	}

	var body []ast.NodeID
	err = an.inFrame(func() error {
		for _, id := range params {
			p := an.arena.Get(id).(*ast.ScopeParameter)
			if err := an.mem.Define(p.Name, p.Type, ast.NoNode, false); err != nil {
				return at(err, n)
			}
		}
		for _, id := range results {
			r := an.arena.Get(id).(*ast.ScopeResult)
			if err := an.mem.Define(r.Name, r.Type, ast.NoNode, true); err != nil {
				return at(err, n)
			}
		}
		var err error
		body, err = an.body(n)
		return err
	})
	if err != nil {
		return ast.NoNode, err
	}

	names := make([]string, len(results))
	types := make([]typesystem.Type, len(results))
	for i, id := range results {
		r := an.arena.Get(id).(*ast.ScopeResult)
		names[i], types[i] = r.Name, r.Type
	}
	t, err := bundle(names, types)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.Scope{Base: base(n, t), Name: name, Params: params, Results: results, Body: body, Terminal: terminal}), nil
}

// inlineInputs binds every parameter of an inline scope to the enclosing
// variable of the same name, or to its default.
func (an *Analyzer) inlineInputs(n *parsetree.Node, id ast.NodeID) ([]ast.Binding, error) {
	sc := an.arena.Get(id).(*ast.Scope)
	var inputs []ast.Binding
	for _, pid := range sc.Params {
		p := an.arena.Get(pid).(*ast.ScopeParameter)
		s, ok := an.mem.Lookup(p.Name)
		switch {
		case ok && !s.WriteOnly:
			if err := validateCast(n, s.Type, p.Type, p.Name); err != nil {
				return nil, err
			}
			v := an.add(&ast.Variable{Base: base(n, s.Type), Name: p.Name})
			inputs = append(inputs, ast.Binding{Port: p.Name, Type: p.Type, Arg: v})
		case p.Default != ast.NoNode:
			inputs = append(inputs, ast.Binding{Port: p.Name, Type: p.Type, Arg: p.Default})
		default:
			return nil, errAt(n, diagnostics.ErrN001, "Variable '%s' referenced before assignment", p.Name)
		}
	}
	return inputs, nil
}

// scopeStatement builds an inline scope whose results become variables of
// the enclosing frame.
func (an *Analyzer) scopeStatement(n *parsetree.Node) (ast.NodeID, error) {
	id, err := an.scope(n, n.Text)
	if err != nil {
		return ast.NoNode, err
	}
	inputs, err := an.inlineInputs(n, id)
	if err != nil {
		return ast.NoNode, err
	}
	t := an.typeOf(id)
	if err := an.merge(n, t); err != nil {
		return ast.NoNode, err
	}
	return an.add(&ast.ScopeStatement{Base: base(n, t), Scope: id, Inputs: inputs}), nil
}

// scopeExpr builds an inline scope used as a value.
func (an *Analyzer) scopeExpr(n *parsetree.Node) (ast.NodeID, error) {
	id, err := an.scope(n, n.Text)
	if err != nil {
		return ast.NoNode, err
	}
	inputs, err := an.inlineInputs(n, id)
	if err != nil {
		return ast.NoNode, err
	}
	t := an.typeOf(id)
	return an.add(&ast.CallScope{Base: base(n, t), Name: n.Text, Scope: id, Inputs: inputs}), nil
}

// ----------------------------------------------------------------------------
// Loops
// ----------------------------------------------------------------------------

// loopSettings builds max_iterations and the current index. The index
// defaults to current_index starting at 0.
func (an *Analyzer) loopSettings(n *parsetree.Node) (maxIt, index ast.NodeID, err error) {
	settings := n.Child(parsetree.KindLoopSettings)
	indexName := graph.CurrentIndex
	var start ast.NodeID
	indexAt := n

	if settings != nil {
		if m := settings.Child(parsetree.KindMaxIterations); m != nil {
			inner, err := wrapped(m)
			if err != nil {
				return ast.NoNode, ast.NoNode, err
			}
			if maxIt, err = an.expr(inner); err != nil {
				return ast.NoNode, ast.NoNode, err
			}
			if err := validateCast(inner, an.typeOf(maxIt), longType, graph.MaxIterations); err != nil {
				return ast.NoNode, ast.NoNode, err
			}
		}
		if ci := settings.Child(parsetree.KindCurrentIndex); ci != nil {
			inner, err := wrapped(ci)
			if err != nil {
				return ast.NoNode, ast.NoNode, err
			}
			if start, err = an.expr(inner); err != nil {
				return ast.NoNode, ast.NoNode, err
			}
			if err := validateCast(inner, an.typeOf(start), longType, graph.CurrentIndex); err != nil {
				return ast.NoNode, ast.NoNode, err
			}
			if ci.Text != "" {
				indexName = ci.Text
			}
			indexAt = ci
		}
	}
	if start == ast.NoNode {
		start = an.add(&ast.Value{Base: base(n, longType), Literal: "0"})
	}
	index = an.add(&ast.LoopIndex{Base: base(indexAt, longType), Name: indexName, Value: start})
	return maxIt, index, nil
}

// loopParam builds "name = value", "type name = value" or a bare name
// reading the enclosing variable. Iteration targets must be arrays.
func (an *Analyzer) loopParam(n *parsetree.Node) (*ast.LoopParameter, error) {
	name := n.Text
	if reserved[name] {
		return nil, errAt(n, diagnostics.ErrE001, "Invalid port name: '%s'!", name)
	}
	iter := n.Has(parsetree.KindIterationTarget)
	p := &ast.LoopParameter{Name: name, IterationTarget: iter}

	var t typesystem.Type
	if tn := n.Child(parsetree.KindType); tn != nil {
		var err error
		if t, err = an.parseType(tn); err != nil {
			return nil, err
		}
		vn := exprChild(n, parsetree.KindType, parsetree.KindIterationTarget)
		if vn == nil {
			return nil, errAt(n, diagnostics.ErrS001, "Loop parameter '%s' needs a value", name)
		}
		if p.Default, err = an.expr(vn); err != nil {
			return nil, err
		}
		vt := an.typeOf(p.Default)
		if vt.IsBundle() && len(vt.Ports()) != 1 {
			return nil, errAt(vn, diagnostics.ErrE001, "Can't pass NODE type variables through scopes!")
		}
		if t.IsAuto() {
			t = vt.Unwrap()
		} else if err := validateCast(vn, vt, t, name); err != nil {
			return nil, err
		}
	} else {
		s, ok := an.mem.Lookup(name)
		switch {
		case !ok:
			return nil, errAt(n, diagnostics.ErrN001, "Variable '%s' referenced before assignment!", name)
		case s.WriteOnly:
			return nil, errAt(n, diagnostics.ErrE002, "Cant read '%s' output variable", name)
		case s.Type.IsBundle() && len(s.Type.Ports()) != 1:
			return nil, errAt(n, diagnostics.ErrE001, "Can't pass NODE type variables through scopes!")
		}
		t = s.Type.Unwrap()
	}

	inner := t
	if iter {
		if !t.IsArray() {
			return nil, errAt(n, diagnostics.ErrE001, "Iteration targets must be at least 1D arrays!")
		}
		inner = t.Element()
	}
	p.Base, p.Inner = base(n, t), inner
	return p, nil
}

// loopResult builds a loop result. for_each results always accumulate one
// element per iteration.
func (an *Analyzer) loopResult(n *parsetree.Node, kind string) (*ast.LoopResult, error) {
	name := n.Text
	if reserved[name] {
		return nil, errAt(n, diagnostics.ErrE001, "Invalid port name: '%s'!", name)
	}
	t, err := an.typeChild(n)
	if err != nil {
		return nil, err
	}
	if t.IsAuto() {
		return nil, errAt(n, diagnostics.ErrT001, "Result '%s' needs a concrete type", name)
	}
	iter := kind == parsetree.KindForEach || n.Has(parsetree.KindIterationTarget)
	state := ""
	if st := n.Child(parsetree.KindState); st != nil {
		switch {
		case kind == parsetree.KindForEach:
			return nil, errAt(st, diagnostics.ErrS001, "for_each results have no state ports")
		case iter:
			return nil, errAt(st, diagnostics.ErrS001, "Result '%s' cannot be an iteration target and a state port", name)
		}
		state = st.Text
	}
	if kind == parsetree.KindDoWhile && iter {
		return nil, errAt(n, diagnostics.ErrS001, "do_while results cannot be iteration targets")
	}
	inner := t
	if iter {
		if !t.IsArray() {
			return nil, errAt(n, diagnostics.ErrE001, "Iteration targets must be at least 1D arrays!")
		}
		inner = t.Element()
	}
	return &ast.LoopResult{Base: base(n, t), Name: name, Inner: inner, IterationTarget: iter, State: state}, nil
}

// loop builds a for_each, iterate or do_while loop. Its type is the bundle
// of its results.
func (an *Analyzer) loop(n *parsetree.Node) (ast.NodeID, error) {
	terminal, err := terminalFlags(n)
	if err != nil {
		return ast.NoNode, err
	}
	maxIt, index, err := an.loopSettings(n)
	if err != nil {
		return ast.NoNode, err
	}

	var params []*ast.LoopParameter
	byName := make(map[string]*ast.LoopParameter)
	hasTarget := false
	for _, c := range n.ChildrenOf(parsetree.KindLoopParameter) {
		p, err := an.loopParam(c)
		if err != nil {
			return ast.NoNode, err
		}
		if byName[p.Name] != nil {
			return ast.NoNode, errAt(c, diagnostics.ErrN002, "Duplicate parameter names found")
		}
		byName[p.Name] = p
		hasTarget = hasTarget || p.IterationTarget
		params = append(params, p)
	}

	var results []*ast.LoopResult
	seen := make(map[string]bool)
	stated := make(map[string]bool)
	for _, c := range n.ChildrenOf(parsetree.KindLoopResult) {
		r, err := an.loopResult(c, n.Kind)
		if err != nil {
			return ast.NoNode, err
		}
		if seen[r.Name] {
			return ast.NoNode, errAt(c, diagnostics.ErrN002, "Duplicate result names found")
		}
		seen[r.Name] = true
		if byName[r.Name] != nil {
			return ast.NoNode, errAt(c, diagnostics.ErrN002, "Results cannot have the same name as arguments: '%s'", r.Name)
		}
		if r.State != "" {
			p := byName[r.State]
			switch {
			case an.loopDepth > 0:
				return ast.NoNode, errAt(c, diagnostics.ErrE002, "State ports in nested loops are not allowed")
			case p == nil:
				return ast.NoNode, errAt(c, diagnostics.ErrN001, "Unknown state port '%s'", r.State)
			case stated[r.State]:
				return ast.NoNode, errAt(c, diagnostics.ErrN002, "Duplicate state port: '%s'", r.State)
			case !p.Type.Equal(r.Type):
				return ast.NoNode, errAt(c, diagnostics.ErrT001, "State port types dont match: '%s[%s]@%s[%s]'", r.State, p.Type, r.Name, r.Type)
			}
			stated[r.State] = true
		}
		results = append(results, r)
	}

	switch {
	case n.Kind == parsetree.KindDoWhile:
		if maxIt == ast.NoNode && !hasTarget && !n.Has(parsetree.KindNoLimit) {
			return ast.NoNode, errAt(n, diagnostics.ErrS001, "Missing max_iterations setting or 'nolimit' keyword")
		}
	case maxIt == ast.NoNode && !hasTarget:
		return ast.NoNode, errAt(n, diagnostics.ErrE001, "Either max_iterations or an iteration target is required!")
	}

	l := ast.Loop{Name: n.Text, MaxIterations: maxIt, Index: index, Terminal: terminal}
	for _, p := range params {
		l.Params = append(l.Params, an.add(p))
	}
	for _, r := range results {
		l.Results = append(l.Results, an.add(r))
	}

	condition := ast.NoNode
	err = an.inFrame(func() error {
		define := func(name string, t typesystem.Type, writeOnly bool) error {
			if err := an.mem.Define(name, t, ast.NoNode, writeOnly); err != nil {
				return at(err, n)
			}
			return nil
		}
		if err := define("#", longType, false); err != nil {
			return err
		}
		if err := define(an.arena.Get(index).(*ast.LoopIndex).Name, longType, false); err != nil {
			return err
		}
		if maxIt != ast.NoNode {
			if err := define(graph.MaxIterations, longType, false); err != nil {
				return err
			}
		}
		for _, p := range params {
			if err := define(p.Name, p.Inner, false); err != nil {
				return err
			}
		}
		for _, r := range results {
			if err := define(r.Name, r.Inner, true); err != nil {
				return err
			}
		}
		err := an.inLoop(func() error {
			var err error
			l.Body, err = an.body(n)
			return err
		})
		if err != nil || n.Kind != parsetree.KindDoWhile {
			return err
		}
		cn := n.Child(parsetree.KindCondition)
		if cn == nil {
			return errAt(n, diagnostics.ErrS001, "do_while needs a condition")
		}
		inner, err := wrapped(cn)
		if err != nil {
			return err
		}
		if condition, err = an.expr(inner); err != nil {
			return err
		}
		return validateCast(inner, an.typeOf(condition), boolType, graph.LoopingCondition)
	})
	if err != nil {
		return ast.NoNode, err
	}

	names := make([]string, len(results))
	types := make([]typesystem.Type, len(results))
	for i, r := range results {
		names[i], types[i] = r.Name, r.Type
	}
	if l.Type, err = bundle(names, types); err != nil {
		return ast.NoNode, at(err, n)
	}
	l.At = n.Pos

	switch n.Kind {
	case parsetree.KindForEach:
		return an.add(&ast.LoopForEach{Loop: l}), nil
	case parsetree.KindIterate:
		return an.add(&ast.LoopIterate{Loop: l}), nil
	}
	return an.add(&ast.LoopDoWhile{Loop: l, Condition: condition}), nil
}

// loopStatement builds a loop whose results become variables of the
// enclosing frame.
func (an *Analyzer) loopStatement(n *parsetree.Node) (ast.NodeID, error) {
	id, err := an.loop(n)
	if err != nil {
		return ast.NoNode, err
	}
	t := an.typeOf(id)
	if err := an.merge(n, t); err != nil {
		return ast.NoNode, err
	}
	return an.add(&ast.Using{Base: base(n, t), Value: id}), nil
}
