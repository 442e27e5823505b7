package catalog

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

//go:embed data/*.yaml
var defaultData embed.FS

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns a fresh copy of the embedded catalog. The files are
// merged in file name order.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = loadEmbedded()
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultCat.Clone(), nil
}

func loadEmbedded() (*Catalog, error) {
	entries, err := defaultData.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalog: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	cat := New()
	for _, name := range names {
		p := path.Join("data", name)
		data, err := defaultData.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading embedded catalog: %w", err)
		}
		part, err := Parse(data, p)
		if err != nil {
			return nil, err
		}
		cat.Merge(part)
	}
	return cat, nil
}

// Load reads and parses a catalog file.
func Load(file string) (*Catalog, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", file, err)
	}
	return Parse(data, file)
}

// Parse parses one catalog document. The file argument is used for error
// messages and Source.
func Parse(data []byte, file string) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	cat := New()
	for i := range f.Types {
		t := f.Types[i]
		if t.Name == "" {
			return nil, diagnostics.Newf(diagnostics.ErrC001, "%s: types[%d]: name is required", file, i)
		}
		cat.AddType(&t)
	}
	for i := range f.Enums {
		e := f.Enums[i]
		if e.Name == "" {
			return nil, diagnostics.Newf(diagnostics.ErrC001, "%s: enums[%d]: name is required", file, i)
		}
		cat.AddEnum(&e)
	}
	for i := range f.Operators {
		op := f.Operators[i]
		if op.Name == "" {
			return nil, diagnostics.Newf(diagnostics.ErrC001, "%s: operators[%d]: name is required", file, i)
		}
		if f.Namespace != "" && !strings.Contains(op.Name, "::") {
			op.Name = f.Namespace + "::" + op.Name
		}
		if err := normalize(&op); err != nil {
			return nil, diagnostics.Newf(diagnostics.ErrC001, "%s: %s: %s", file, op.Name, err)
		}
		if _, dup := cat.ops[op.Name]; dup {
			return nil, diagnostics.Newf(diagnostics.ErrC001, "%s: operator %s defined twice", file, op.Name)
		}
		cat.Add(&op)
		cat.sources[op.Name] = file
	}
	return cat, nil
}

// normalize fills the implied parts of an operator entry: port types from
// suggestions, the first overload from the port types and the default
// overload from the first one.
func normalize(op *Operator) error {
	seen := make(map[string]bool)
	for _, ports := range [][]Port{op.Inputs, op.Outputs} {
		for i := range ports {
			p := &ports[i]
			if p.Name == "" {
				return fmt.Errorf("port without name")
			}
			if seen[p.Name] {
				return fmt.Errorf("duplicate port %q", p.Name)
			}
			seen[p.Name] = true
			switch {
			case p.Type == "":
				p.Type = typesystem.AutoTag
			case p.Type != typesystem.AutoTag && len(p.Suggestions) == 0:
				p.Suggestions = []string{p.Type}
			}
		}
	}

	if len(op.Overloads) == 0 {
		sig := Signature{
			In:  make([]string, len(op.Inputs)),
			Out: make([]string, len(op.Outputs)),
		}
		for i, p := range op.Inputs {
			sig.In[i] = p.Type
		}
		for i, p := range op.Outputs {
			sig.Out[i] = p.Type
		}
		op.Overloads = []Signature{sig}
	}
	keys := make(map[string]bool)
	for _, s := range op.Overloads {
		if len(s.In) != len(op.Inputs) || len(s.Out) != len(op.Outputs) {
			return fmt.Errorf("overload %q does not match %d inputs and %d outputs", s.Key(), len(op.Inputs), len(op.Outputs))
		}
		if keys[s.Key()] {
			return fmt.Errorf("overload %q listed twice", s.Key())
		}
		keys[s.Key()] = true
	}
	if op.Default == nil {
		d := op.Overloads[0].clone()
		op.Default = &d
	} else if len(op.Default.In) != len(op.Inputs) || len(op.Default.Out) != len(op.Outputs) {
		return fmt.Errorf("default overload does not match the ports")
	}
	return nil
}
