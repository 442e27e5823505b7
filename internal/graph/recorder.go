package graph

import (
	"github.com/google/uuid"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Recorder is an in-memory Builder. It checks every call the way the host
// runtime would and keeps a Snapshot of the result.
type Recorder struct {
	cat   *catalog.Catalog
	newID func() string

	open   bool
	snap   Snapshot
	index  map[NodeID]int
	stack  []NodeID
	driven map[PortRef]bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIDs replaces the uuid node id generator.
func WithIDs(fn func() string) RecorderOption {
	return func(r *Recorder) { r.newID = fn }
}

// WithSource records the source file name in the snapshot.
func WithSource(path string) RecorderOption {
	return func(r *Recorder) { r.snap.Source = path }
}

// NewRecorder returns an empty recorder. Native node ports come from cat.
func NewRecorder(cat *catalog.Catalog, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		cat:    cat,
		newID:  uuid.NewString,
		index:  make(map[NodeID]int),
		stack:  []NodeID{Root},
		driven: make(map[PortRef]bool),
	}
	r.snap.ID = uuid.NewString()
	for _, o := range opts {
		o(r)
	}
	return r
}

// Snapshot returns a deep copy of everything recorded so far.
func (r *Recorder) Snapshot() *Snapshot {
	s := &Snapshot{
		ID:     r.snap.ID,
		Source: r.snap.Source,
		Nodes:  make([]Node, len(r.snap.Nodes)),
		Edges:  append([]Edge{}, r.snap.Edges...),
	}
	for i, n := range r.snap.Nodes {
		n.Inputs = append([]Port(nil), n.Inputs...)
		n.Outputs = append([]Port(nil), n.Outputs...)
		n.Literals = append([]Literal(nil), n.Literals...)
		n.Metadata = append([]Metadata(nil), n.Metadata...)
		s.Nodes[i] = n
	}
	return s
}

// Stats returns the number of recorded nodes and edges.
func (r *Recorder) Stats() (nodes, edges int) { return len(r.snap.Nodes), len(r.snap.Edges) }

// Context is the container new nodes are placed in.
func (r *Recorder) Context() NodeID { return r.stack[len(r.stack)-1] }

func (r *Recorder) Open() error {
	if r.open {
		return diagnostics.New(diagnostics.ErrE001, "Graph is already open")
	}
	r.open = true
	return nil
}

func (r *Recorder) Close() error {
	if !r.open {
		return diagnostics.New(diagnostics.ErrE001, "Graph is not open")
	}
	if len(r.stack) > 1 {
		return diagnostics.Newf(diagnostics.ErrE001, "Unbalanced contexts: %d containers still pushed", len(r.stack)-1)
	}
	r.open = false
	return nil
}

func (r *Recorder) check() error {
	if !r.open {
		return diagnostics.New(diagnostics.ErrE001, "Graph is not open")
	}
	return nil
}

func (r *Recorder) node(id NodeID) (*Node, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	i, ok := r.index[id]
	if !ok {
		return nil, diagnostics.Newf(diagnostics.ErrN003, "Unknown node '%s'", id)
	}
	return &r.snap.Nodes[i], nil
}

func (r *Recorder) add(n Node) NodeID {
	n.ID = NodeID(r.newID())
	n.Parent = r.Context()
	r.index[n.ID] = len(r.snap.Nodes)
	r.snap.Nodes = append(r.snap.Nodes, n)
	return n.ID
}

func (r *Recorder) CreateNode(typ string) (NodeID, error) {
	if err := r.check(); err != nil {
		return "", err
	}
	if typ == ValueNodeType {
		return r.add(Node{
			Type:    ValueNodeType,
			Inputs:  []Port{{Name: ValueInput, Type: typesystem.AutoTag}},
			Outputs: []Port{{Name: ValueOutput, Type: typesystem.AutoTag}},
		}), nil
	}
	op, ok := r.cat.Lookup(typ)
	if !ok {
		return "", diagnostics.Newf(diagnostics.ErrN003, "Unknown node type '%s'", typ)
	}
	n := Node{Type: op.Name}
	for i, p := range op.Inputs {
		n.Inputs = append(n.Inputs, Port{Name: p.Name, Type: portType(op, i, true), FanIn: p.FanIn})
	}
	for i, p := range op.Outputs {
		n.Outputs = append(n.Outputs, Port{Name: p.Name, Type: portType(op, i, false)})
	}
	return r.add(n), nil
}

// portType is the type every overload agrees on for a port, or auto.
func portType(op *catalog.Operator, i int, input bool) string {
	tag := ""
	for _, sig := range op.Overloads {
		tags := sig.Out
		if input {
			tags = sig.In
		}
		if i >= len(tags) || tags[i] == typesystem.AutoTag {
			return typesystem.AutoTag
		}
		if tag != "" && tag != tags[i] {
			return typesystem.AutoTag
		}
		tag = tags[i]
	}
	if tag == "" {
		return typesystem.AutoTag
	}
	return tag
}

func (r *Recorder) CreateContainer(kind, name string) (NodeID, error) {
	if err := r.check(); err != nil {
		return "", err
	}
	n := Node{Type: kind, Kind: kind, Name: name}
	switch kind {
	case Compound:
	case ForEach, Iterate, DoWhile:
		n.Inputs = []Port{
			{Name: MaxIterations, Type: typesystem.Long},
			{Name: CurrentIndex, Type: typesystem.Long},
		}
		if kind == DoWhile {
			n.Outputs = []Port{{Name: LoopingCondition, Type: typesystem.Bool}}
		}
	default:
		return "", diagnostics.Newf(diagnostics.ErrE001, "Unknown container kind '%s'", kind)
	}
	return r.add(n), nil
}

func hasPort(ports []Port, name string) (int, bool) {
	for i, p := range ports {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (r *Recorder) addPort(id NodeID, name string, t typesystem.Type, input bool) error {
	n, err := r.node(id)
	if err != nil {
		return err
	}
	if name == "" {
		return diagnostics.New(diagnostics.ErrE001, "Port name must not be empty")
	}
	for _, ports := range [][]Port{n.Inputs, n.Outputs} {
		if _, ok := hasPort(ports, name); ok {
			return diagnostics.Newf(diagnostics.ErrN002, "Port '%s' already exists on '%s'", name, n.Type)
		}
	}
	p := Port{Name: name, Type: t.Tag()}
	if t.IsZero() {
		p.Type = typesystem.AutoTag
	}
	if input {
		n.Inputs = append(n.Inputs, p)
	} else {
		n.Outputs = append(n.Outputs, p)
	}
	return nil
}

func (r *Recorder) AddInputPort(node NodeID, name string, t typesystem.Type) error {
	return r.addPort(node, name, t, true)
}

func (r *Recorder) AddOutputPort(node NodeID, name string, t typesystem.Type) error {
	return r.addPort(node, name, t, false)
}

func (r *Recorder) RemovePort(node NodeID, name string) error {
	n, err := r.node(node)
	if err != nil {
		return err
	}
	for _, e := range r.snap.Edges {
		if (e.From.Node == node && e.From.Root() == name) || (e.To.Node == node && e.To.Root() == name) {
			return diagnostics.Newf(diagnostics.ErrE001, "Port '%s' is connected", name)
		}
	}
	for _, ports := range []*[]Port{&n.Inputs, &n.Outputs} {
		if i, ok := hasPort(*ports, name); ok {
			*ports = append((*ports)[:i], (*ports)[i+1:]...)
			lits := n.Literals[:0]
			for _, l := range n.Literals {
				if l.Port != name {
					lits = append(lits, l)
				}
			}
			n.Literals = lits
			return nil
		}
	}
	return diagnostics.Newf(diagnostics.ErrN003, "Unknown port '%s' on '%s'", name, n.Type)
}

// source finds the port a connection reads from. Containers expose their
// inputs to the nodes they hold.
func source(n *Node, name string) (Port, bool) {
	if i, ok := hasPort(n.Outputs, name); ok {
		return n.Outputs[i], true
	}
	if n.IsContainer() {
		if i, ok := hasPort(n.Inputs, name); ok {
			return n.Inputs[i], true
		}
	}
	return Port{}, false
}

// sink finds the port a connection drives. Containers are driven from
// inside through their outputs.
func sink(n *Node, name string) (Port, bool) {
	if i, ok := hasPort(n.Inputs, name); ok {
		return n.Inputs[i], true
	}
	if n.IsContainer() {
		if i, ok := hasPort(n.Outputs, name); ok {
			return n.Outputs[i], true
		}
	}
	return Port{}, false
}

func isOutput(n *Node, name string) bool {
	_, ok := hasPort(n.Outputs, name)
	return ok
}

// innerType is the type a container port has for the nodes inside it:
// iteration targets carry one element per iteration.
func innerType(n *Node, port, tag string) string {
	key := PortMetadataKey(port, MetaIterationTarget)
	for _, m := range n.Metadata {
		if m.Key == key && m.Value == "true" {
			return typesystem.Of(tag).Element().Tag()
		}
	}
	return tag
}

func (r *Recorder) Connect(src, dst PortRef) error {
	from, err := r.node(src.Node)
	if err != nil {
		return err
	}
	to, err := r.node(dst.Node)
	if err != nil {
		return err
	}
	sp, ok := source(from, src.Root())
	if !ok {
		return diagnostics.Newf(diagnostics.ErrN003, "Unknown source port '%s' on '%s'", src.Port, from.Type)
	}
	dp, ok := sink(to, dst.Root())
	if !ok {
		return diagnostics.Newf(diagnostics.ErrN003, "Unknown destination port '%s' on '%s'", dst.Port, to.Type)
	}
	if r.driven[dst] && !dp.FanIn {
		return diagnostics.Newf(diagnostics.ErrE001, "Port '%s' on '%s' is already connected", dst.Port, to.Type)
	}
	st, dt := sp.Type, dp.Type
	if from.IsContainer() && !isOutput(from, src.Root()) {
		st = innerType(from, src.Root(), st)
	}
	if to.IsContainer() && isOutput(to, dst.Root()) {
		dt = innerType(to, dst.Root(), dt)
	}
	if !src.IsSubPort() && !dst.IsSubPort() && st != typesystem.AutoTag && dt != typesystem.AutoTag {
		if !typesystem.Promotable(typesystem.Of(st), typesystem.Of(dt)) {
			return diagnostics.Newf(diagnostics.ErrT001, "Cannot connect '%s' (%s) to '%s' (%s)", src, st, dst, dt)
		}
	}
	r.driven[dst] = true
	r.snap.Edges = append(r.snap.Edges, Edge{From: src, To: dst})
	return nil
}

func (r *Recorder) SetLiteral(node NodeID, port, value string) error {
	n, err := r.node(node)
	if err != nil {
		return err
	}
	ref := PortRef{Node: node, Port: port}
	if _, ok := hasPort(n.Inputs, ref.Root()); !ok {
		return diagnostics.Newf(diagnostics.ErrN003, "Unknown input port '%s' on '%s'", port, n.Type)
	}
	for i := range n.Literals {
		if n.Literals[i].Port == port {
			n.Literals[i].Value = value
			return nil
		}
	}
	n.Literals = append(n.Literals, Literal{Port: port, Value: value})
	return nil
}

func (r *Recorder) SetMetadata(node NodeID, key, value string) error {
	n, err := r.node(node)
	if err != nil {
		return err
	}
	if key == MetaValueType && n.Type == ValueNodeType {
		n.Inputs[0].Type = value
		n.Outputs[0].Type = value
	}
	for i := range n.Metadata {
		if n.Metadata[i].Key == key {
			n.Metadata[i].Value = value
			return nil
		}
	}
	n.Metadata = append(n.Metadata, Metadata{Key: key, Value: value})
	return nil
}

func (r *Recorder) PushContext(container NodeID) error {
	n, err := r.node(container)
	if err != nil {
		return err
	}
	if !n.IsContainer() {
		return diagnostics.Newf(diagnostics.ErrE001, "'%s' is not a container", n.Type)
	}
	r.stack = append(r.stack, container)
	return nil
}

func (r *Recorder) PopContext() error {
	if err := r.check(); err != nil {
		return err
	}
	if len(r.stack) == 1 {
		return diagnostics.New(diagnostics.ErrE001, "Cannot pop the root context")
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

func (r *Recorder) MarkTerminal(node NodeID, flags string) error {
	n, err := r.node(node)
	if err != nil {
		return err
	}
	n.Terminal = flags
	return nil
}

func (r *Recorder) Rename(node NodeID, name string) error {
	n, err := r.node(node)
	if err != nil {
		return err
	}
	n.Name = name
	return nil
}

var _ Builder = (*Recorder)(nil)
