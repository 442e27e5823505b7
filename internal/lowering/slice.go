package lowering

import (
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/typesystem"
)

// SliceCompound is the name of the compound SliceIndices emits.
const SliceCompound = "slice_indices"

// Slice compound ports.
const (
	SliceSize       = "size"
	SliceStart      = "start"
	SliceStop       = "stop"
	SliceStep       = "step"
	SliceOutStart   = "out_start"
	SliceOutStop    = "out_stop"
	SliceOutStep    = "out_step"
	SliceOutCount   = "out_count"
	SliceOutIndices = "out_indices"
)

// Slice is the result of SliceIndices.
type Slice struct {
	Node    graph.NodeID
	Start   graph.PortRef
	Stop    graph.PortRef
	Step    graph.PortRef
	Count   graph.PortRef
	Indices graph.PortRef
}

var (
	longType    = typesystem.Of(typesystem.Long)
	boolType    = typesystem.Of(typesystem.Bool)
	indicesType = typesystem.Of("array<long>")
)

func isNone(part string) string { return part + "_is_none" }

// SliceIndices emits a compound computing the indices selected by
// [start:stop:step] on a sequence of the given size. Omitted parts are
// zero port references. Negative bounds count from the end, bounds are
// clamped to the sequence and a missing or zero step is 1.
func (c *Context) SliceIndices(size, start, stop, step graph.PortRef) (Slice, error) {
	comp, err := c.b.CreateContainer(graph.Compound, SliceCompound)
	if err != nil {
		return Slice{}, err
	}
	e := &emitter{c: c}
	e.input(comp, SliceSize, longType)
	for _, part := range []struct {
		name string
		src  graph.PortRef
	}{{SliceStart, start}, {SliceStop, stop}, {SliceStep, step}} {
		e.input(comp, isNone(part.name), boolType)
		e.input(comp, part.name, longType)
		if part.src.Node == "" {
			e.literal(comp, isNone(part.name), "true")
			e.literal(comp, part.name, "0")
		} else {
			e.literal(comp, isNone(part.name), "false")
			e.connect(part.src, graph.PortRef{Node: comp, Port: part.name})
		}
	}
	e.connect(size, graph.PortRef{Node: comp, Port: SliceSize})
	for _, out := range []string{SliceOutStart, SliceOutStop, SliceOutStep, SliceOutCount} {
		e.output(comp, out, longType)
	}
	e.output(comp, SliceOutIndices, indicesType)
	if e.err != nil {
		return Slice{}, e.err
	}

	if err := c.Push(comp); err != nil {
		return Slice{}, err
	}
	in := func(name string) graph.PortRef { return graph.PortRef{Node: comp, Port: name} }
	zero := e.constant("0")
	one := e.constant("1")
	minusOne := e.constant("-1")
	n := in(SliceSize)

	useOne := e.logic("||", in(isNone(SliceStep)), e.compare("==", in(SliceStep), zero))
	stepv := e.ifElse(useOne, one, in(SliceStep))
	neg := e.compare("<", stepv, zero)
	last := e.math("-", n, one)
	lo := e.ifElse(neg, minusOne, zero)
	hi := e.ifElse(neg, last, n)

	bound := func(part string, def graph.PortRef) graph.PortRef {
		x := in(part)
		wrapped := e.ifElse(e.compare("<", x, zero), e.math("+", x, n), x)
		clamped := e.max(lo, e.min(wrapped, hi))
		return e.ifElse(in(isNone(part)), def, clamped)
	}
	startv := bound(SliceStart, e.ifElse(neg, last, zero))
	stopv := bound(SliceStop, e.ifElse(neg, minusOne, n))

	sign := e.ifElse(neg, minusOne, one)
	span := e.math("-", e.math("+", e.math("-", stopv, startv), stepv), sign)
	count := e.max(e.math("/", span, stepv), zero)

	e.connect(startv, in(SliceOutStart))
	e.connect(stopv, in(SliceOutStop))
	e.connect(stepv, in(SliceOutStep))
	e.connect(count, in(SliceOutCount))
	if e.err != nil {
		return Slice{}, e.err
	}

	loop, err := c.IteratorNode("indices", count)
	if err != nil {
		return Slice{}, err
	}
	e.input(loop, SliceStart, longType)
	e.input(loop, SliceStep, longType)
	e.output(loop, "indices", indicesType)
	e.meta(loop, graph.PortMetadataKey("indices", graph.MetaIterationTarget), "true")
	e.connect(startv, graph.PortRef{Node: loop, Port: SliceStart})
	e.connect(stepv, graph.PortRef{Node: loop, Port: SliceStep})
	if e.err != nil {
		return Slice{}, e.err
	}
	if err := c.Push(loop); err != nil {
		return Slice{}, err
	}
	offset := e.math("*", graph.PortRef{Node: loop, Port: SliceStep}, graph.PortRef{Node: loop, Port: graph.CurrentIndex})
	index := e.math("+", graph.PortRef{Node: loop, Port: SliceStart}, offset)
	e.connect(index, graph.PortRef{Node: loop, Port: "indices"})
	if e.err != nil {
		return Slice{}, e.err
	}
	if err := c.Pop(); err != nil {
		return Slice{}, err
	}
	e.connect(graph.PortRef{Node: loop, Port: "indices"}, in(SliceOutIndices))
	if e.err != nil {
		return Slice{}, e.err
	}
	if err := c.Pop(); err != nil {
		return Slice{}, err
	}

	return Slice{
		Node:    comp,
		Start:   Out(comp, SliceOutStart),
		Stop:    Out(comp, SliceOutStop),
		Step:    Out(comp, SliceOutStep),
		Count:   Out(comp, SliceOutCount),
		Indices: Out(comp, SliceOutIndices),
	}, nil
}

// IteratorNode creates a for_each container that runs count times.
func (c *Context) IteratorNode(name string, count graph.PortRef) (graph.NodeID, error) {
	loop, err := c.b.CreateContainer(graph.ForEach, name)
	if err != nil {
		return "", err
	}
	if err := c.b.Connect(count, graph.PortRef{Node: loop, Port: graph.MaxIterations}); err != nil {
		return "", err
	}
	return loop, nil
}

// emitter chains builder calls and keeps the first error.
type emitter struct {
	c   *Context
	err error
}

func (e *emitter) input(node graph.NodeID, name string, t typesystem.Type) {
	if e.err == nil {
		e.err = e.c.b.AddInputPort(node, name, t)
	}
}

func (e *emitter) output(node graph.NodeID, name string, t typesystem.Type) {
	if e.err == nil {
		e.err = e.c.b.AddOutputPort(node, name, t)
	}
}

func (e *emitter) literal(node graph.NodeID, port, value string) {
	if e.err == nil {
		e.err = e.c.b.SetLiteral(node, port, value)
	}
}

func (e *emitter) meta(node graph.NodeID, key, value string) {
	if e.err == nil {
		e.err = e.c.b.SetMetadata(node, key, value)
	}
}

func (e *emitter) connect(src, dst graph.PortRef) {
	if e.err == nil {
		e.err = e.c.b.Connect(src, dst)
	}
}

func (e *emitter) port(fn func() (graph.PortRef, error)) graph.PortRef {
	if e.err != nil {
		return graph.PortRef{}
	}
	p, err := fn()
	e.err = err
	return p
}

func (e *emitter) constant(v string) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.ConstValue(longType, v) })
}

func (e *emitter) math(op string, a, b graph.PortRef) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.MathOp(op, a, b) })
}

func (e *emitter) compare(op string, a, b graph.PortRef) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.Compare(op, a, b) })
}

func (e *emitter) logic(op string, a, b graph.PortRef) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.Logic(op, a, b) })
}

func (e *emitter) ifElse(cond, a, b graph.PortRef) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.If(cond, a, b) })
}

func (e *emitter) min(a, b graph.PortRef) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.Min(a, b) })
}

func (e *emitter) max(a, b graph.PortRef) graph.PortRef {
	return e.port(func() (graph.PortRef, error) { return e.c.Max(a, b) })
}
