package analyzer

import (
	"strings"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

const debugPrefix = "__debug::"

// argument is one analyzed call argument.
type argument struct {
	name string
	node *parsetree.Node
	id   ast.NodeID
}

// arguments analyzes the argument children of a call. Keyword arguments
// must come last.
func (an *Analyzer) arguments(n *parsetree.Node) ([]argument, error) {
	var args []argument
	keyword := false
	for _, c := range n.Children {
		switch c.Kind {
		case parsetree.KindTerminal, parsetree.KindType:
			continue
		case parsetree.KindArgument:
		default:
			return nil, errAt(c, diagnostics.ErrS001, "Expected an argument, got '%s'", c.Kind)
		}
		if c.Text == "" && keyword {
			return nil, errAt(c, diagnostics.ErrS001, "Positional arguments cant follow keyword arguments")
		}
		keyword = keyword || c.Text != ""
		inner, err := wrapped(c)
		if err != nil {
			return nil, err
		}
		id, err := an.expr(inner)
		if err != nil {
			return nil, err
		}
		if t := an.typeOf(id); t.IsBundle() && len(t.Ports()) != 1 {
			return nil, errAt(inner, diagnostics.ErrT001, "'%s' has %d outputs; select one with '->'", ast.Describe(an.arena, id), len(t.Ports()))
		}
		args = append(args, argument{name: c.Text, node: c, id: id})
	}
	return args, nil
}

// bind assigns arguments to ports: positional arguments to the leading
// ports, keyword arguments by name. Unbound slots are nil.
func bind(call string, ports []string, args []argument) ([]*argument, error) {
	slots := make([]*argument, len(ports))
	for i := range args {
		a := &args[i]
		idx := i
		if a.name != "" {
			idx = -1
			for j, p := range ports {
				if p == a.name {
					idx = j
					break
				}
			}
			if idx < 0 {
				return nil, errAt(a.node, diagnostics.ErrN003, "Unrecognized port '%s' of '%s'. Chose from %s", a.name, call, quoteList(ports))
			}
		} else if idx >= len(ports) {
			return nil, errAt(a.node, diagnostics.ErrE001, "Too many arguments for '%s': takes %d, got %d", call, len(ports), len(args))
		}
		if slots[idx] != nil {
			return nil, errAt(a.node, diagnostics.ErrN002, "Port '%s' of '%s' is bound twice", ports[idx], call)
		}
		slots[idx] = a
	}
	return slots, nil
}

// call dispatches a call node: debug intrinsics, type constructors, user
// functions and catalog operators, in that order.
func (an *Analyzer) call(n *parsetree.Node) (ast.NodeID, error) {
	if t := n.Child(parsetree.KindType); t != nil {
		return an.typeCall(n, t)
	}
	name := n.Text
	if strings.HasPrefix(name, debugPrefix) {
		return an.debug(n, strings.TrimPrefix(name, debugPrefix))
	}
	terminal, err := terminalFlags(n)
	if err != nil {
		return ast.NoNode, err
	}
	args, err := an.arguments(n)
	if err != nil {
		return ast.NoNode, err
	}
	if fn, ok := an.functions[name]; ok {
		return an.scopeCall(n, fn, args, terminal)
	}
	full, ok := an.cat.Resolve(name)
	if !ok {
		return ast.NoNode, errAt(n, diagnostics.ErrN003, "Unknown operator or compound: '%s'", name)
	}
	op, _ := an.cat.Lookup(full)
	if op.Associative() {
		return an.associativeCall(n, full, op.Outputs[0].Name, args, terminal)
	}
	return an.nativeCall(n, full, args, terminal)
}

func (an *Analyzer) nativeCall(n *parsetree.Node, full string, args []argument, terminal string) (ast.NodeID, error) {
	op, _ := an.cat.Lookup(full)
	names := op.InputNames()
	slots, err := bind(full, names, args)
	if err != nil {
		return ast.NoNode, err
	}
	primary := op.Primary()
	argTypes := make([]typesystem.Type, len(slots))
	for i, a := range slots {
		switch {
		case a != nil:
			argTypes[i] = an.typeOf(a.id).Unwrap()
		case i < len(primary.In) && primary.In[i] != "":
			argTypes[i] = typesystem.Of(primary.In[i])
		default:
			argTypes[i] = typesystem.Auto
		}
	}

	var in, out []typesystem.Type
	if ov, ok := an.opOverload[full][strings.Join(tags(argTypes), "-")]; ok {
		in, out = ov.In, ov.Out
	} else if in, out, err = an.res.Resolve(full, argTypes); err != nil {
		return ast.NoNode, at(err, n)
	}
	if len(in) < len(slots) || len(out) != len(op.Outputs) {
		return ast.NoNode, errAt(n, diagnostics.ErrE001, "Resolved signature of '%s' does not match its ports", full)
	}

	var inputs []ast.Binding
	for i, a := range slots {
		if a == nil {
			continue
		}
		if err := validateCast(a.node, argTypes[i], in[i], names[i]); err != nil {
			return ast.NoNode, err
		}
		inputs = append(inputs, ast.Binding{Port: names[i], Type: in[i], Arg: a.id})
	}
	t, err := bundle(op.OutputNames(), out)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.CallNative{Base: base(n, t), Op: full, Inputs: inputs, Terminal: terminal}), nil
}

// associativeCall gives every argument its own item port. Keyword
// arguments name the item: item0_name.
func (an *Analyzer) associativeCall(n *parsetree.Node, full, output string, args []argument, terminal string) (ast.NodeID, error) {
	types := make([]typesystem.Type, len(args))
	for i, a := range args {
		types[i] = an.typeOf(a.id).Unwrap()
	}
	elem, err := typesystem.ArrayLiteralType(types)
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	items := make([]ast.Binding, len(args))
	for i, a := range args {
		port := ast.ItemPort(i, a.name)
		if err := validateCast(a.node, types[i], elem, port); err != nil {
			return ast.NoNode, err
		}
		items[i] = ast.Binding{Port: port, Type: elem, Arg: a.id}
	}
	t, err := bundle([]string{output}, []typesystem.Type{elem.Wrap(1)})
	if err != nil {
		return ast.NoNode, at(err, n)
	}
	return an.add(&ast.CallAssociative{Base: base(n, t), Op: full, Items: items, Output: output, Terminal: terminal}), nil
}

// scopeCall calls a user function. The first overload every bound
// argument promotes into is taken, and the call gets its own copy of the
// function body typed for that overload.
func (an *Analyzer) scopeCall(n *parsetree.Node, fn *Function, args []argument, terminal string) (ast.NodeID, error) {
	scope := an.arena.Get(fn.Scope).(*ast.Scope)
	params := make([]*ast.ScopeParameter, len(scope.Params))
	names := make([]string, len(scope.Params))
	for i, id := range scope.Params {
		params[i] = an.arena.Get(id).(*ast.ScopeParameter)
		names[i] = params[i].Name
	}
	slots, err := bind(fn.Name, names, args)
	if err != nil {
		return ast.NoNode, err
	}
	for i, a := range slots {
		if a == nil && params[i].Default == ast.NoNode {
			return ast.NoNode, errAt(n, diagnostics.ErrE001, "Missing argument '%s' for '%s'", names[i], fn.Name)
		}
	}

	chosen := -1
	for k, ov := range fn.Overloads {
		ok := true
		for i, a := range slots {
			if a != nil && !typesystem.Promotable(an.typeOf(a.id).Unwrap(), ov.In[i]) {
				ok = false
				break
			}
		}
		if ok {
			chosen = k
			break
		}
	}
	if chosen < 0 {
		var got []string
		for _, a := range args {
			got = append(got, an.typeOf(a.id).Unwrap().Tag())
		}
		return ast.NoNode, errAt(n, diagnostics.ErrT001, "No overload of '%s' takes (%s)", fn.Name, strings.Join(got, ", "))
	}
	ov := fn.Overloads[chosen]

	cp := an.arena.Copy(fn.Scope, make(map[ast.NodeID]ast.NodeID))
	sc := an.arena.Get(cp).(*ast.Scope)
	for i, id := range sc.Params {
		an.arena.Get(id).(*ast.ScopeParameter).Type = ov.In[i]
	}
	resultNames := make([]string, len(sc.Results))
	for i, id := range sc.Results {
		r := an.arena.Get(id).(*ast.ScopeResult)
		r.Type = ov.Out[i]
		resultNames[i] = r.Name
	}
	if sc.Type, err = bundle(resultNames, ov.Out); err != nil {
		return ast.NoNode, at(err, n)
	}

	var inputs []ast.Binding
	for i, a := range slots {
		if a != nil {
			inputs = append(inputs, ast.Binding{Port: names[i], Type: ov.In[i], Arg: a.id})
		}
	}
	return an.add(&ast.CallScope{Base: base(n, sc.Type), Name: fn.Name, Scope: cp, Inputs: inputs, Terminal: terminal}), nil
}

// typeCall constructs a catalog type from its members: Type(a, b=1).
func (an *Analyzer) typeCall(n, typeNode *parsetree.Node) (ast.NodeID, error) {
	t, err := an.parseType(typeNode)
	if err != nil {
		return ast.NoNode, err
	}
	td, ok := an.cat.Type(t.Tag())
	if !ok || t.IsArray() {
		return ast.NoNode, errAt(typeNode, diagnostics.ErrT001, "'%s' has no constructor", t)
	}
	members := td.ConstructorPorts()
	if len(members) == 0 {
		return ast.NoNode, errAt(n, diagnostics.ErrE001, "No members found for type. Use default assignment")
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	args, err := an.arguments(n)
	if err != nil {
		return ast.NoNode, err
	}
	slots, err := bind(td.Name, names, args)
	if err != nil {
		return ast.NoNode, err
	}
	var bindings []ast.Binding
	for i, a := range slots {
		if a == nil {
			continue
		}
		mt, err := typesystem.ParsePortType(members[i].Type, an.cat)
		if err != nil {
			return ast.NoNode, at(err, a.node)
		}
		if err := validateCast(a.node, an.typeOf(a.id), mt, names[i]); err != nil {
			return ast.NoNode, err
		}
		bindings = append(bindings, ast.Binding{Port: names[i], Type: mt, Arg: a.id})
	}
	return an.add(&ast.CallType{Base: base(n, t), Members: bindings}), nil
}
