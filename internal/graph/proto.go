package graph

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"
)

//go:embed graph.proto
var graphProto string

// ProtoFile is the name the wire schema is registered under.
const ProtoFile = "flowc/graph.proto"

// Fully qualified names from the wire schema.
const (
	SnapshotMessage = "flowc.graph.Snapshot"
	ReplyMessage    = "flowc.graph.SubmitReply"
	HostService     = "flowc.graph.GraphHost"
	SubmitMethod    = "/flowc.graph.GraphHost/Submit"
)

var (
	schemaOnce sync.Once
	schema     *desc.FileDescriptor
	schemaErr  error
)

// Schema parses the embedded wire schema once.
func Schema() (*desc.FileDescriptor, error) {
	schemaOnce.Do(func() {
		parser := protoparse.Parser{
			Accessor: protoparse.FileContentsFromMap(map[string]string{ProtoFile: graphProto}),
		}
		fds, err := parser.ParseFiles(ProtoFile)
		if err != nil {
			schemaErr = fmt.Errorf("parsing %s: %w", ProtoFile, err)
			return
		}
		schema = fds[0]
	})
	return schema, schemaErr
}

// NewMessage returns an empty dynamic message of the wire schema.
func NewMessage(name string) (*dynamic.Message, error) {
	fd, err := Schema()
	if err != nil {
		return nil, err
	}
	md := fd.FindMessage(name)
	if md == nil {
		return nil, fmt.Errorf("message %s not found in %s", name, ProtoFile)
	}
	return dynamic.NewMessage(md), nil
}

// Service returns the GraphHost service descriptor.
func Service() (*desc.ServiceDescriptor, error) {
	fd, err := Schema()
	if err != nil {
		return nil, err
	}
	sd := fd.FindService(HostService)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in %s", HostService, ProtoFile)
	}
	return sd, nil
}

// EncodeProto encodes the snapshot in the protobuf wire format.
func (s *Snapshot) EncodeProto() ([]byte, error) {
	msg, err := s.Message()
	if err != nil {
		return nil, err
	}
	data, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeProto reads a snapshot written by EncodeProto.
func DecodeProto(data []byte) (*Snapshot, error) {
	msg, err := NewMessage(SnapshotMessage)
	if err != nil {
		return nil, err
	}
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return FromMessage(msg), nil
}

// Message converts the snapshot into a flowc.graph.Snapshot message.
func (s *Snapshot) Message() (*dynamic.Message, error) {
	msg, err := NewMessage(SnapshotMessage)
	if err != nil {
		return nil, err
	}
	if err := fillMessage(msg, snapshotRecord(s)); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return msg, nil
}

// FromMessage converts a flowc.graph.Snapshot message back.
func FromMessage(msg *dynamic.Message) *Snapshot {
	return recordSnapshot(messageRecord(msg))
}

// ----------------------------------------------------------------------------
// Records
// ----------------------------------------------------------------------------

// record is a message as a field name map; repeated fields hold
// []interface{} and nested messages hold records.
type record map[string]interface{}

func portRecords(ports []Port) []interface{} {
	out := make([]interface{}, len(ports))
	for i, p := range ports {
		out[i] = record{"name": p.Name, "type": p.Type, "fan_in": p.FanIn}
	}
	return out
}

func snapshotRecord(s *Snapshot) record {
	nodes := make([]interface{}, len(s.Nodes))
	for i, n := range s.Nodes {
		lits := make([]interface{}, len(n.Literals))
		for j, l := range n.Literals {
			lits[j] = record{"port": l.Port, "value": l.Value}
		}
		meta := make([]interface{}, len(n.Metadata))
		for j, m := range n.Metadata {
			meta[j] = record{"key": m.Key, "value": m.Value}
		}
		nodes[i] = record{
			"id":       string(n.ID),
			"type":     n.Type,
			"name":     n.Name,
			"parent":   string(n.Parent),
			"kind":     n.Kind,
			"terminal": n.Terminal,
			"inputs":   portRecords(n.Inputs),
			"outputs":  portRecords(n.Outputs),
			"literals": lits,
			"metadata": meta,
		}
	}
	edges := make([]interface{}, len(s.Edges))
	for i, e := range s.Edges {
		edges[i] = record{
			"from_node": string(e.From.Node),
			"from_port": e.From.Port,
			"to_node":   string(e.To.Node),
			"to_port":   e.To.Port,
		}
	}
	return record{"id": s.ID, "source": s.Source, "nodes": nodes, "edges": edges}
}

func (r record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r record) list(key string) []record {
	items, _ := r[key].([]interface{})
	out := make([]record, 0, len(items))
	for _, it := range items {
		if rec, ok := it.(record); ok {
			out = append(out, rec)
		}
	}
	return out
}

func recordPorts(recs []record) []Port {
	var out []Port
	for _, r := range recs {
		fanIn, _ := r["fan_in"].(bool)
		out = append(out, Port{Name: r.str("name"), Type: r.str("type"), FanIn: fanIn})
	}
	return out
}

func recordSnapshot(r record) *Snapshot {
	s := &Snapshot{ID: r.str("id"), Source: r.str("source")}
	for _, n := range r.list("nodes") {
		node := Node{
			ID:       NodeID(n.str("id")),
			Type:     n.str("type"),
			Name:     n.str("name"),
			Parent:   NodeID(n.str("parent")),
			Kind:     n.str("kind"),
			Terminal: n.str("terminal"),
			Inputs:   recordPorts(n.list("inputs")),
			Outputs:  recordPorts(n.list("outputs")),
		}
		for _, l := range n.list("literals") {
			node.Literals = append(node.Literals, Literal{Port: l.str("port"), Value: l.str("value")})
		}
		for _, m := range n.list("metadata") {
			node.Metadata = append(node.Metadata, Metadata{Key: m.str("key"), Value: m.str("value")})
		}
		s.Nodes = append(s.Nodes, node)
	}
	for _, e := range r.list("edges") {
		s.Edges = append(s.Edges, Edge{
			From: PortRef{Node: NodeID(e.str("from_node")), Port: e.str("from_port")},
			To:   PortRef{Node: NodeID(e.str("to_node")), Port: e.str("to_port")},
		})
	}
	return s
}

// ----------------------------------------------------------------------------
// Dynamic messages
// ----------------------------------------------------------------------------

func fillMessage(msg *dynamic.Message, rec record) error {
	for name, val := range rec {
		fd := msg.GetMessageDescriptor().FindFieldByName(name)
		if fd == nil {
			return fmt.Errorf("unknown field %s in %s", name, msg.GetMessageDescriptor().GetFullyQualifiedName())
		}
		v, err := protoValue(val, fd)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if v == nil {
			continue
		}
		if err := msg.TrySetField(fd, v); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

func protoValue(val interface{}, fd *desc.FieldDescriptor) (interface{}, error) {
	if !fd.IsRepeated() {
		return protoSingleValue(val, fd)
	}
	items, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list for repeated field")
	}
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]interface{}, 0, len(items))
	for _, it := range items {
		v, err := protoSingleValue(it, fd)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func protoSingleValue(val interface{}, fd *desc.FieldDescriptor) (interface{}, error) {
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", val)
		}
		return s, nil
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", val)
		}
		return b, nil
	case descriptorpb.FieldDescriptorProto_TYPE_INT32:
		switch n := val.(type) {
		case int:
			return int32(n), nil
		case int32:
			return n, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", val)
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		rec, ok := val.(record)
		if !ok {
			return nil, fmt.Errorf("expected message, got %T", val)
		}
		msg := dynamic.NewMessage(fd.GetMessageType())
		if err := fillMessage(msg, rec); err != nil {
			return nil, err
		}
		return msg, nil
	}
	return nil, fmt.Errorf("unsupported field type %v", fd.GetType())
}

func messageRecord(msg *dynamic.Message) record {
	rec := make(record)
	for _, fd := range msg.GetMessageDescriptor().GetFields() {
		rec[fd.GetName()] = recordValue(msg.GetField(fd), fd)
	}
	return rec
}

func recordValue(val interface{}, fd *desc.FieldDescriptor) interface{} {
	if fd.IsRepeated() {
		items, _ := val.([]interface{})
		out := make([]interface{}, 0, len(items))
		for _, it := range items {
			out = append(out, recordSingleValue(it))
		}
		return out
	}
	return recordSingleValue(val)
}

func recordSingleValue(val interface{}) interface{} {
	switch v := val.(type) {
	case *dynamic.Message:
		return messageRecord(v)
	case int32:
		return int(v)
	}
	return val
}
