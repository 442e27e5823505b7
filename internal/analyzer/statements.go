package analyzer

import (
	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/typesystem"
)

// statement builds one statement of a body. Empty statements return
// NoNode.
func (an *Analyzer) statement(n *parsetree.Node) (ast.NodeID, error) {
	switch n.Kind {
	case parsetree.KindStatement:
		switch len(n.Children) {
		case 0:
			return ast.NoNode, nil
		case 1:
			return an.statement(n.Children[0])
		}
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "A statement holds one construct, got %d", len(n.Children))
	case parsetree.KindAssignment:
		return an.assignment(n)
	case parsetree.KindUsing:
		return an.using(n)
	case parsetree.KindScope:
		return an.scopeStatement(n)
	case parsetree.KindForEach, parsetree.KindIterate, parsetree.KindDoWhile:
		return an.loopStatement(n)
	case parsetree.KindCall:
		return an.expr(n)
	case parsetree.KindImport, parsetree.KindFunction, parsetree.KindOverload:
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "'%s' is only allowed at the top level", n.Kind)
	}
	return ast.NoNode, errAt(n, diagnostics.ErrS001, "Unexpected '%s' statement", n.Kind)
}

// body builds the statements of a body node.
func (an *Analyzer) body(n *parsetree.Node) ([]ast.NodeID, error) {
	b := n.Child(parsetree.KindBody)
	if b == nil {
		return nil, errAt(n, diagnostics.ErrS001, "'%s' needs a body", n.Kind)
	}
	var ids []ast.NodeID
	for _, c := range b.Children {
		id, err := an.statement(c)
		if err != nil {
			return nil, err
		}
		if id != ast.NoNode {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ----------------------------------------------------------------------------
// Assignment
// ----------------------------------------------------------------------------

// assignment builds "targets = value" and "targets := value". The value is
// built first. With more than one target, or with ":=", the value must be
// a NODE whose outputs are unpacked into the targets in order.
func (an *Analyzer) assignment(n *parsetree.Node) (ast.NodeID, error) {
	targets := n.Child(parsetree.KindTargets)
	valueNode := exprChild(n, parsetree.KindTargets)
	if targets == nil || len(targets.Children) == 0 || valueNode == nil {
		return ast.NoNode, errAt(n, diagnostics.ErrS001, "Malformed assignment")
	}
	value, err := an.expr(valueNode)
	if err != nil {
		return ast.NoNode, err
	}
	vt := an.typeOf(value)

	unpack := len(targets.Children) > 1 || n.Text == ":="
	var ports []typesystem.Port
	switch {
	case unpack:
		if !vt.IsBundle() {
			return ast.NoNode, errAt(valueNode, diagnostics.ErrT001, "Can only unpack NODE values, not '%s'", vt)
		}
		ports = vt.Ports()
		if len(ports) != len(targets.Children) {
			return ast.NoNode, errAt(n, diagnostics.ErrE001, "Cannot unpack %d outputs of '%s' into %d targets",
				len(ports), ast.Describe(an.arena, value), len(targets.Children))
		}
	case vt.IsBundle() && len(vt.Ports()) == 0:
		return ast.NoNode, errAt(valueNode, diagnostics.ErrE001, "'%s' does not return anything.", ast.Describe(an.arena, value))
	}

	node := &ast.Assignment{Base: base(n, typesystem.Type{}), Value: value}
	for i, tn := range targets.Children {
		src, port := vt, ""
		if unpack {
			src, port = ports[i].Type, ports[i].Name
		}
		id, err := an.target(tn, src, value, port)
		if err != nil {
			return ast.NoNode, err
		}
		node.Targets = append(node.Targets, id)
		if unpack {
			node.Outputs = append(node.Outputs, port)
		}
	}
	return an.add(node), nil
}

// target builds one assignment target receiving a value of type src. port
// is the unpacked output of value, or "".
func (an *Analyzer) target(n *parsetree.Node, src typesystem.Type, value ast.NodeID, port string) (ast.NodeID, error) {
	switch n.Kind {
	case parsetree.KindIgnore:
		return ast.NoNode, nil

	case parsetree.KindDeclare:
		t, err := an.typeChild(n)
		if err != nil {
			return ast.NoNode, err
		}
		if _, exists := an.mem.Lookup(n.Text); exists {
			return ast.NoNode, errAt(n, diagnostics.ErrN002, "Redefinition: '%s' already exists!", n.Text)
		}
		if t.IsAuto() {
			t = src
		} else if err := validateCast(n, src, t, ""); err != nil {
			return ast.NoNode, err
		}
		if err := an.mem.Define(n.Text, t, producer(t, value), false); err != nil {
			return ast.NoNode, at(err, n)
		}
		return an.add(&ast.AssignTypeName{Base: base(n, t), Name: n.Text}), nil

	case parsetree.KindVariable:
		s, ok := an.mem.Lookup(n.Text)
		if !ok {
			return ast.NoNode, errAt(n, diagnostics.ErrN001, "Unknown variable: '%s'", n.Text)
		}
		t := s.Type
		if t.IsBundle() && src.IsBundle() && !s.WriteOnly {
			t = src
			if err := an.mem.Set(n.Text, t, value); err != nil {
				return ast.NoNode, at(err, n)
			}
		} else if err := validateCast(n, src, t, ""); err != nil {
			return ast.NoNode, err
		}
		if s.WriteOnly {
			if err := an.mem.Consume(n.Text); err != nil {
				return ast.NoNode, at(err, n)
			}
		}
		return an.add(&ast.Variable{Base: base(n, t), Name: n.Text}), nil

	case parsetree.KindAccessLHS:
		id, elem, err := an.accessTarget(n)
		if err != nil {
			return ast.NoNode, err
		}
		if src.IsBundle() && len(src.Ports()) != 1 {
			if an.typeOf(id).Equal(objectType) {
				return ast.NoNode, errAt(n, diagnostics.ErrT001, "Cant assign NODE to object")
			}
			return ast.NoNode, errAt(n, diagnostics.ErrT001, "Cant assign NODE to '%s'", n.Text)
		}
		if !elem.IsZero() {
			if err := validateCast(n, src, elem, ""); err != nil {
				return ast.NoNode, err
			}
		}
		rhs := value
		if port != "" {
			rhs = an.add(&ast.AccessPort{Base: base(n, src), Value: value, Port: port})
		}
		if err := an.arena.Get(id).(*ast.AccessLHS).SetRHS(rhs); err != nil {
			return ast.NoNode, at(err, n)
		}
		return id, nil
	}
	return ast.NoNode, errAt(n, diagnostics.ErrS001, "Cannot assign to '%s'", n.Kind)
}

// producer is the node a binding of type t must remember: bundles are
// looked through by port access.
func producer(t typesystem.Type, value ast.NodeID) ast.NodeID {
	if t.IsBundle() {
		return value
	}
	return ast.NoNode
}

// ----------------------------------------------------------------------------
// Using
// ----------------------------------------------------------------------------

func (an *Analyzer) using(n *parsetree.Node) (ast.NodeID, error) {
	inner, err := wrapped(n)
	if err != nil {
		return ast.NoNode, err
	}
	value, err := an.expr(inner)
	if err != nil {
		return ast.NoNode, err
	}
	t := an.typeOf(value)
	if !t.IsBundle() {
		return ast.NoNode, errAt(inner, diagnostics.ErrT001, "'using' needs a NODE value, not '%s'", t)
	}
	if err := an.merge(n, t); err != nil {
		return ast.NoNode, err
	}
	return an.add(&ast.Using{Base: base(n, t), Value: value}), nil
}

// merge binds every output of t in the current frame under its port name.
// Pending results take the output; existing variables must have the same
// type.
func (an *Analyzer) merge(n *parsetree.Node, t typesystem.Type) error {
	for _, p := range t.Ports() {
		s, ok := an.mem.Lookup(p.Name)
		switch {
		case !ok:
			if err := an.mem.Define(p.Name, p.Type, ast.NoNode, false); err != nil {
				return at(err, n)
			}
		case s.WriteOnly:
			if err := validateCast(n, p.Type, s.Type, p.Name); err != nil {
				return err
			}
			if err := an.mem.Consume(p.Name); err != nil {
				return at(err, n)
			}
		case !s.Type.Equal(p.Type):
			return errAt(n, diagnostics.ErrN002, "A variable named '%s' of a different type already exists!", p.Name)
		}
	}
	return nil
}
