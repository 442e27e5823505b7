// Package lowering drives a graph.Builder on behalf of the AST. A Context
// keeps one frame per open container: the container itself and the memory
// mapping variable names to the ports that carry their values.
package lowering

import (
	"io"
	"log/slog"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/typesystem"
)

type frame struct {
	container graph.NodeID
	mem       *Memory
}

// Context is the lowering state of one compilation.
type Context struct {
	b      graph.Builder
	cat    *catalog.Catalog
	logger *slog.Logger
	frames []frame
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// NewContext returns a context whose root frame is the graph root.
func NewContext(b graph.Builder, cat *catalog.Catalog, opts ...Option) *Context {
	c := &Context{
		b:      b,
		cat:    cat,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		frames: []frame{{container: graph.Root, mem: NewMemory()}},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Builder is the graph sink.
func (c *Context) Builder() graph.Builder { return c.b }

// Catalog is the operator catalog node types are looked up in.
func (c *Context) Catalog() *catalog.Catalog { return c.cat }

// Logger is the context logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Memory is the memory of the innermost frame.
func (c *Context) Memory() *Memory { return c.frames[len(c.frames)-1].mem }

// Container is the container of the innermost frame.
func (c *Context) Container() graph.NodeID { return c.frames[len(c.frames)-1].container }

// Depth is the number of open frames, the root included.
func (c *Context) Depth() int { return len(c.frames) }

// Push enters container with an empty memory.
func (c *Context) Push(container graph.NodeID) error {
	if err := c.b.PushContext(container); err != nil {
		return err
	}
	c.frames = append(c.frames, frame{container: container, mem: NewMemory()})
	return nil
}

// Pop leaves the innermost container.
func (c *Context) Pop() error {
	if len(c.frames) == 1 {
		return diagnostics.New(diagnostics.ErrE001, "Cannot leave the root container")
	}
	if err := c.b.PopContext(); err != nil {
		return err
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

// Assign stores a value under name in the innermost frame. Output
// variables are connected and consumed, defined variables are rebound and
// unknown names are defined. A consumed output can not be assigned again.
func (c *Context) Assign(name string, t typesystem.Type, port graph.PortRef) error {
	mem := c.Memory()
	switch {
	case mem.IsConsumed(name):
		return diagnostics.Newf(diagnostics.ErrN002, "Output variable '%s' is already assigned", name)
	case mem.IsSetOnly(name):
		out, err := mem.GetSetOnly(name)
		if err != nil {
			return err
		}
		return c.b.Connect(port, out.Port)
	case mem.IsDefined(name):
		return mem.Set(name, port)
	}
	return mem.Define(name, t, port)
}

// Connect wires src into dst.
func (c *Context) Connect(src, dst graph.PortRef) error { return c.b.Connect(src, dst) }

// Node creates a node of a catalog operator. Short names are resolved by
// their unique suffix.
func (c *Context) Node(op string) (graph.NodeID, error) {
	full, ok := c.cat.Resolve(op)
	if !ok {
		return "", diagnostics.Newf(diagnostics.ErrN003, "Unknown operator or compound: '%s'", op)
	}
	return c.b.CreateNode(full)
}

// Out addresses an output port.
func Out(node graph.NodeID, port string) graph.PortRef {
	return graph.PortRef{Node: node, Port: port}
}
