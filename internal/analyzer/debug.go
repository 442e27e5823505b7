package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
)

var debugFuncs = map[string]func(an *Analyzer, args []argument) string{
	"type":    debugType,
	"outputs": debugOutputs,
	"inputs":  debugInputs,
	"dir":     debugDir,
}

// debug evaluates a __debug:: intrinsic at build time. The result is a
// string literal, also written to the logger.
func (an *Analyzer) debug(n *parsetree.Node, fn string) (ast.NodeID, error) {
	f, ok := debugFuncs[fn]
	if !ok {
		names := make([]string, 0, len(debugFuncs))
		for k := range debugFuncs {
			names = append(names, k)
		}
		sort.Strings(names)
		return ast.NoNode, errAt(n, diagnostics.ErrN003, "Unknown debug function: '%s'. Chose from %s", fn, quoteList(names))
	}
	args, err := an.arguments(n)
	if err != nil {
		return ast.NoNode, err
	}
	text := f(an, args)
	an.logger.Info("debug", "fn", fn, "at", n.Pos.String(), "value", text)
	return an.add(&ast.Value{Base: base(n, stringType), Literal: text}), nil
}

func debugType(an *Analyzer, args []argument) string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = an.typeOf(a.id).String()
	}
	return strings.Join(out, ", ")
}

func debugOutputs(an *Analyzer, args []argument) string {
	var out []string
	for _, a := range args {
		t := an.typeOf(a.id)
		if !t.IsBundle() {
			out = append(out, "output: "+t.String())
			continue
		}
		for _, p := range t.Ports() {
			out = append(out, fmt.Sprintf("%s: %s", p.Name, p.Type))
		}
	}
	return strings.Join(out, ", ")
}

func debugInputs(an *Analyzer, args []argument) string {
	var out []string
	for _, a := range args {
		var bs []ast.Binding
		switch n := an.arena.Get(a.id).(type) {
		case *ast.CallNative:
			bs = n.Inputs
		case *ast.CallScope:
			bs = n.Inputs
		case *ast.CallAssociative:
			bs = n.Items
		case *ast.CallType:
			bs = n.Members
		}
		for _, b := range bs {
			out = append(out, fmt.Sprintf("%s: %s", b.Port, b.Type))
		}
	}
	return strings.Join(out, ", ")
}

func debugDir(an *Analyzer, _ []argument) string {
	names := an.mem.Names()
	out := make([]string, 0, len(names))
	for _, name := range names {
		t, _ := an.mem.Type(name)
		out = append(out, fmt.Sprintf("%s: %s", name, t))
	}
	return strings.Join(out, ", ")
}
