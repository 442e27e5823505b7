// Package parsetree holds the generic tree the external flow parser hands to
// the compiler. A tree is a plain document (YAML or JSON): every node carries
// a syntactic kind, optional terminal text, ordered children and a source
// position used for diagnostics.
package parsetree

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Pos is a source span. Lines are 1-based, Start/End are byte offsets
// into the source text.
type Pos struct {
	File    string `yaml:"file,omitempty" json:"file,omitempty"`
	Line    int    `yaml:"line,omitempty" json:"line,omitempty"`
	EndLine int    `yaml:"end_line,omitempty" json:"end_line,omitempty"`
	Start   int    `yaml:"start,omitempty" json:"start,omitempty"`
	End     int    `yaml:"end,omitempty" json:"end,omitempty"`
}

func (p Pos) IsZero() bool {
	return p.Line == 0 && p.File == ""
}

// LastLine returns the final line covered by the span.
func (p Pos) LastLine() int {
	if p.EndLine > p.Line {
		return p.EndLine
	}
	return p.Line
}

func (p Pos) String() string {
	if p.IsZero() {
		return "<unknown>"
	}
	s := p.File
	if s == "" {
		s = "<input>"
	}
	s += ":" + strconv.Itoa(p.Line)
	if p.EndLine > p.Line {
		s += "-" + strconv.Itoa(p.EndLine)
	}
	return s
}

// Node is one element of the parse tree.
type Node struct {
	Kind     string  `yaml:"kind" json:"kind"`
	Text     string  `yaml:"text,omitempty" json:"text,omitempty"`
	Children []*Node `yaml:"children,omitempty" json:"children,omitempty"`
	Pos      Pos     `yaml:"pos,omitempty" json:"pos,omitempty"`
}

// Child returns the first direct child of the given kind, or nil.
func (n *Node) Child(kind string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c != nil && c.Kind == kind {
			return c
		}
	}
	return nil
}

// ChildrenOf returns every direct child of the given kind in order.
func (n *Node) ChildrenOf(kind string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c != nil && c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether a direct child of the given kind exists.
func (n *Node) Has(kind string) bool {
	return n.Child(kind) != nil
}

// First returns the first child regardless of kind.
func (n *Node) First() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Last returns the last child regardless of kind.
func (n *Node) Last() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.Text != "" {
		return fmt.Sprintf("%s(%q)", n.Kind, n.Text)
	}
	return n.Kind
}

// Decode reads a parse-tree document. JSON documents are accepted as well
// since YAML is a superset. Positions without a file are stamped with file.
func Decode(data []byte, file string) (*Node, error) {
	var root Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding parse tree %s: %w", file, err)
	}
	if root.Kind == "" {
		return nil, fmt.Errorf("decoding parse tree %s: root node has no kind", file)
	}
	if root.Kind != KindProgram {
		return nil, fmt.Errorf("decoding parse tree %s: root kind is %q, want %q", file, root.Kind, KindProgram)
	}
	stamp(&root, file)
	return &root, nil
}

// Load reads and decodes a parse-tree document from disk.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parse tree %s: %w", path, err)
	}
	return Decode(data, path)
}

func stamp(n *Node, file string) {
	if n == nil {
		return
	}
	if n.Pos.File == "" {
		n.Pos.File = file
	}
	for _, c := range n.Children {
		stamp(c, file)
	}
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the current node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
