package graph

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Port is a recorded port.
type Port struct {
	Name  string `yaml:"name" json:"name"`
	Type  string `yaml:"type" json:"type"`
	FanIn bool   `yaml:"fan_in,omitempty" json:"fan_in,omitempty"`
}

// Literal is a constant set on an input port.
type Literal struct {
	Port  string `yaml:"port" json:"port"`
	Value string `yaml:"value" json:"value"`
}

// Metadata is one key/value annotation of a node.
type Metadata struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Node is a recorded node or container.
type Node struct {
	ID     NodeID `yaml:"id" json:"id"`
	Type   string `yaml:"type" json:"type"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Parent NodeID `yaml:"parent" json:"parent"`
	// Kind is set on containers only.
	Kind     string     `yaml:"kind,omitempty" json:"kind,omitempty"`
	Terminal string     `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Inputs   []Port     `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs  []Port     `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Literals []Literal  `yaml:"literals,omitempty" json:"literals,omitempty"`
	Metadata []Metadata `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// IsContainer reports whether the node holds other nodes.
func (n *Node) IsContainer() bool { return n.Kind != "" }

// Edge is a connection between two ports.
type Edge struct {
	From PortRef `yaml:"from" json:"from"`
	To   PortRef `yaml:"to" json:"to"`
}

// Snapshot is everything a Recorder received, in creation order.
type Snapshot struct {
	ID     string `yaml:"id" json:"id"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	Nodes  []Node `yaml:"nodes" json:"nodes"`
	Edges  []Edge `yaml:"edges" json:"edges"`
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id NodeID) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// NodesOfType returns the nodes of a node type, in creation order.
func (s *Snapshot) NodesOfType(typ string) []*Node {
	var out []*Node
	for i := range s.Nodes {
		if s.Nodes[i].Type == typ {
			out = append(out, &s.Nodes[i])
		}
	}
	return out
}

// Children returns the nodes placed directly in a container.
func (s *Snapshot) Children(parent NodeID) []*Node {
	var out []*Node
	for i := range s.Nodes {
		if s.Nodes[i].Parent == parent {
			out = append(out, &s.Nodes[i])
		}
	}
	return out
}

// EdgesTo returns the connections driving a node.
func (s *Snapshot) EdgesTo(id NodeID) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.To.Node == id {
			out = append(out, e)
		}
	}
	return out
}

// EncodeYAML encodes the snapshot as YAML.
func (s *Snapshot) EncodeYAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// EncodeJSON encodes the snapshot as indented JSON.
func (s *Snapshot) EncodeJSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeYAML reads a snapshot written by EncodeYAML. JSON input is
// accepted as well.
func DecodeYAML(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}
