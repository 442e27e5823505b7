// Package graph is the sink side of lowering: the Builder capability the
// lowering pass drives, an in-memory Recorder implementing it, and the
// snapshot formats a finished recording is exported to.
package graph

import (
	"strings"

	"github.com/funvibe/flowc/internal/typesystem"
)

// NodeID identifies a node or container of a graph.
type NodeID string

// Root is the top level container every graph starts in.
const Root NodeID = "root"

// ValueNodeType is the node type of a typed value holder. Its "value"
// input accepts a literal or a connection and its "output" output carries
// the value. Members of composite values are addressed as sub-ports
// ("value.x").
const ValueNodeType = "value"

// Value node port names.
const (
	ValueInput  = "value"
	ValueOutput = "output"
)

// Container kinds.
const (
	Compound = "compound"
	ForEach  = "for_each"
	Iterate  = "iterate"
	DoWhile  = "do_while"
)

// Loop container ports.
const (
	MaxIterations    = "max_iterations"
	CurrentIndex     = "current_index"
	LoopingCondition = "looping_condition"
)

// Metadata keys understood by the recorder and the host runtime.
const (
	MetaValueType       = "valuenode_type"
	MetaIterationTarget = "iterationTarget"
	MetaStatePort       = "statePort"
	MetaFeedbackPort    = "feedbackPort"
)

// PortRef addresses a port of a node. Port may be a dotted sub-port of a
// composite value port.
type PortRef struct {
	Node NodeID `yaml:"node" json:"node"`
	Port string `yaml:"port" json:"port"`
}

// Root returns the port name without its sub-port path.
func (p PortRef) Root() string {
	if i := strings.IndexByte(p.Port, '.'); i >= 0 {
		return p.Port[:i]
	}
	return p.Port
}

// IsSubPort reports whether the reference addresses a member of a port.
func (p PortRef) IsSubPort() bool { return strings.IndexByte(p.Port, '.') >= 0 }

func (p PortRef) String() string { return string(p.Node) + "." + p.Port }

// PortMetadataKey builds the metadata key that annotates a port of a node.
func PortMetadataKey(port, key string) string { return "ports/" + port + "/" + key }

// Builder is the graph building capability of the target runtime.
//
// Every structural call must happen between Open and Close. New nodes are
// placed in the container on top of the context stack.
type Builder interface {
	Open() error
	Close() error

	CreateNode(typ string) (NodeID, error)
	CreateContainer(kind, name string) (NodeID, error)
	AddInputPort(node NodeID, name string, t typesystem.Type) error
	AddOutputPort(node NodeID, name string, t typesystem.Type) error
	RemovePort(node NodeID, name string) error
	Connect(src, dst PortRef) error
	SetLiteral(node NodeID, port, value string) error
	SetMetadata(node NodeID, key, value string) error

	PushContext(container NodeID) error
	PopContext() error

	MarkTerminal(node NodeID, flags string) error
	Rename(node NodeID, name string) error
}
