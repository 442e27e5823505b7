package lowering

import (
	"fmt"

	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Catalog operators the lowering pass emits on its own.
const (
	OpAdd          = "Core::Math::add"
	OpSubtract     = "Core::Math::subtract"
	OpMultiply     = "Core::Math::multiply"
	OpDivide       = "Core::Math::divide"
	OpModulo       = "Core::Math::modulo"
	OpPower        = "Core::Math::power"
	OpNegate       = "Core::Math::negate"
	OpMin          = "Core::Math::min"
	OpMax          = "Core::Math::max"
	OpNot          = "Core::Logic::not"
	OpIf           = "Core::Logic::if"
	OpBuildString  = "Core::String::build_string"
	OpBuildArray   = "Core::Array::build_array"
	OpToChar       = "Core::Type_Conversion::to_char"
	OpGetFromArray = "Core::Array::get_from_array"
	OpSetInArray   = "Core::Array::set_in_array"
	OpGatherArray  = "Core::Array::gather_array"
	OpResizeArray  = "Core::Array::resize_array"
	OpArraySize    = "Core::Array::array_size"
	OpGetProperty  = "Core::Object::get_property"
	OpSetProperty  = "Core::Object::set_property"
	OpGetChar      = "Core::String::get_character"
	OpGetChars     = "Core::String::get_characters"
	OpReplaceChar  = "Core::String::replace_character"
	OpStringLength = "Core::String::string_length"
)

var mathOps = map[string]struct{ op, out string }{
	"+":  {OpAdd, "output"},
	"-":  {OpSubtract, "output"},
	"*":  {OpMultiply, "output"},
	"/":  {OpDivide, "output"},
	"%":  {OpModulo, "remainder"},
	"**": {OpPower, "power"},
}

var compareOps = map[string]string{
	"==": "Core::Logic::equal",
	"!=": "Core::Logic::not_equal",
	">=": "Core::Logic::greater_or_equal",
	"<=": "Core::Logic::less_or_equal",
	">":  "Core::Logic::greater",
	"<":  "Core::Logic::less",
}

var logicOps = map[string]string{
	"&&": "Core::Logic::and",
	"||": "Core::Logic::or",
	"^":  "Core::Logic::xor",
}

// Call creates a node of op and connects args to its inputs in port
// order. Zero port references leave the input unconnected.
func (c *Context) Call(op string, args ...graph.PortRef) (graph.NodeID, error) {
	o, ok := c.cat.Operator(op)
	if !ok {
		return "", diagnostics.Newf(diagnostics.ErrN003, "Unknown operator or compound: '%s'", op)
	}
	if len(args) > len(o.Inputs) {
		return "", diagnostics.Newf(diagnostics.ErrE001, "Too many arguments for '%s'", o.Name)
	}
	node, err := c.b.CreateNode(o.Name)
	if err != nil {
		return "", err
	}
	for i, a := range args {
		if a.Node == "" {
			continue
		}
		if err := c.b.Connect(a, graph.PortRef{Node: node, Port: o.Inputs[i].Name}); err != nil {
			return "", err
		}
	}
	return node, nil
}

// Apply is Call returning the named output.
func (c *Context) Apply(op, out string, args ...graph.PortRef) (graph.PortRef, error) {
	node, err := c.Call(op, args...)
	if err != nil {
		return graph.PortRef{}, err
	}
	return Out(node, out), nil
}

// ValueNode creates a value node holding a t.
func (c *Context) ValueNode(t typesystem.Type) (graph.NodeID, error) {
	node, err := c.b.CreateNode(graph.ValueNodeType)
	if err != nil {
		return "", err
	}
	if err := c.b.SetMetadata(node, graph.MetaValueType, t.Tag()); err != nil {
		return "", err
	}
	return node, nil
}

// ConstValue creates a value node holding a constant.
func (c *Context) ConstValue(t typesystem.Type, literal string) (graph.PortRef, error) {
	node, err := c.ValueNode(t)
	if err != nil {
		return graph.PortRef{}, err
	}
	if err := c.b.SetLiteral(node, graph.ValueInput, literal); err != nil {
		return graph.PortRef{}, err
	}
	return Out(node, graph.ValueOutput), nil
}

// MathOp emits an arithmetic operator: + - * / % or **.
func (c *Context) MathOp(op string, a, b graph.PortRef) (graph.PortRef, error) {
	m, ok := mathOps[op]
	if !ok {
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrN003, "Unknown math operator '%s'", op)
	}
	return c.Apply(m.op, m.out, a, b)
}

func (c *Context) Add(a, b graph.PortRef) (graph.PortRef, error)      { return c.MathOp("+", a, b) }
func (c *Context) Subtract(a, b graph.PortRef) (graph.PortRef, error) { return c.MathOp("-", a, b) }
func (c *Context) Multiply(a, b graph.PortRef) (graph.PortRef, error) { return c.MathOp("*", a, b) }
func (c *Context) Divide(a, b graph.PortRef) (graph.PortRef, error)   { return c.MathOp("/", a, b) }
func (c *Context) Modulo(a, b graph.PortRef) (graph.PortRef, error)   { return c.MathOp("%", a, b) }
func (c *Context) Power(a, b graph.PortRef) (graph.PortRef, error)    { return c.MathOp("**", a, b) }

func (c *Context) Min(a, b graph.PortRef) (graph.PortRef, error) {
	return c.Apply(OpMin, "output", a, b)
}

func (c *Context) Max(a, b graph.PortRef) (graph.PortRef, error) {
	return c.Apply(OpMax, "output", a, b)
}

func (c *Context) Negate(a graph.PortRef) (graph.PortRef, error) {
	return c.Apply(OpNegate, "negated", a)
}

func (c *Context) Not(a graph.PortRef) (graph.PortRef, error) {
	return c.Apply(OpNot, "output", a)
}

// Compare emits a comparison: == != >= <= > or <.
func (c *Context) Compare(op string, a, b graph.PortRef) (graph.PortRef, error) {
	name, ok := compareOps[op]
	if !ok {
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrN003, "Unknown comparison '%s'", op)
	}
	return c.Apply(name, "output", a, b)
}

// Logic emits a logical connective: && || or ^.
func (c *Context) Logic(op string, a, b graph.PortRef) (graph.PortRef, error) {
	name, ok := logicOps[op]
	if !ok {
		return graph.PortRef{}, diagnostics.Newf(diagnostics.ErrN003, "Unknown logic operator '%s'", op)
	}
	return c.Apply(name, "output", a, b)
}

func (c *Context) If(cond, whenTrue, whenFalse graph.PortRef) (graph.PortRef, error) {
	return c.Apply(OpIf, "output", cond, whenTrue, whenFalse)
}

// ToChar converts a bool to its one byte integer form.
func (c *Context) ToChar(a graph.PortRef) (graph.PortRef, error) {
	return c.Apply(OpToChar, "char", a)
}

// BuildStringCompound is the name of the compound BuildString emits.
const BuildStringCompound = "build_string2"

// StringPart is one operand of BuildString.
type StringPart struct {
	Port graph.PortRef
	Type typesystem.Type
}

// BuildString joins parts with a build_string wrapped in a compound. Every
// part enters through its own string{i} port; array parts are iterated, so
// the joined output is an array whenever result is.
func (c *Context) BuildString(result typesystem.Type, parts ...StringPart) (graph.PortRef, error) {
	comp, err := c.b.CreateContainer(graph.Compound, BuildStringCompound)
	if err != nil {
		return graph.PortRef{}, err
	}
	e := &emitter{c: c}
	in := func(name string) graph.PortRef { return graph.PortRef{Node: comp, Port: name} }
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = fmt.Sprintf("string%d", i)
		e.input(comp, names[i], p.Type)
		if p.Type.IsArray() {
			e.meta(comp, graph.PortMetadataKey(names[i], graph.MetaIterationTarget), "true")
		}
		e.connect(p.Port, in(names[i]))
	}
	e.output(comp, "output", result)
	if result.IsArray() {
		e.meta(comp, graph.PortMetadataKey("output", graph.MetaIterationTarget), "true")
	}
	if e.err != nil {
		return graph.PortRef{}, e.err
	}

	if err := c.Push(comp); err != nil {
		return graph.PortRef{}, err
	}
	node, err := c.Call(OpBuildString)
	if err != nil {
		return graph.PortRef{}, err
	}
	for _, name := range names {
		e.connect(in(name), graph.PortRef{Node: node, Port: "strings"})
	}
	e.connect(Out(node, "joined"), in("output"))
	if e.err != nil {
		return graph.PortRef{}, e.err
	}
	if err := c.Pop(); err != nil {
		return graph.PortRef{}, err
	}
	return Out(comp, "output"), nil
}
