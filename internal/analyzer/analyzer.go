package analyzer

import (
	"io"
	"log/slog"
	"sort"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/resolver"
	"github.com/funvibe/flowc/internal/symbols"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Overload is one input signature of a function with its output types.
type Overload struct {
	In  []typesystem.Type
	Out []typesystem.Type
}

// Function is a named top level scope. Calls copy Scope and pick the
// first overload their arguments are compatible with.
type Function struct {
	Name      string
	Scope     ast.NodeID
	Overloads []Overload
}

func (f *Function) overload(in []typesystem.Type) int {
	for i, ov := range f.Overloads {
		if sameTypes(ov.In, in) {
			return i
		}
	}
	return -1
}

// shared is the state one analyzer hands to the analyzers of its imports.
type shared struct {
	arena      *ast.Arena
	importing  map[string]bool
	opOverload map[string]map[string]Overload
}

// Analyzer turns one parse tree into AST nodes.
type Analyzer struct {
	*shared
	res        *resolver.Resolver
	cat        *catalog.Catalog
	mem        *symbols.Memory
	functions  map[string]*Function
	logger     *slog.Logger
	searchPath []string
	file       string

	// loopDepth counts the loop bodies being built. Feedback and state
	// ports are not allowed inside them.
	loopDepth int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger for imports and debug intrinsics.
func WithLogger(l *slog.Logger) Option {
	return func(an *Analyzer) {
		if l != nil {
			an.logger = l
		}
	}
}

// WithSearchPath adds directories searched for imports that are not found
// next to the importing file.
func WithSearchPath(dirs ...string) Option {
	return func(an *Analyzer) { an.searchPath = append(an.searchPath, dirs...) }
}

// WithArena builds into an existing arena.
func WithArena(a *ast.Arena) Option {
	return func(an *Analyzer) { an.arena = a }
}

// New returns an analyzer resolving calls through res.
func New(res *resolver.Resolver, opts ...Option) *Analyzer {
	an := &Analyzer{
		shared: &shared{
			arena:      ast.NewArena(),
			importing:  make(map[string]bool),
			opOverload: make(map[string]map[string]Overload),
		},
		res:       res,
		cat:       res.Catalog(),
		mem:       symbols.New(),
		functions: make(map[string]*Function),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(an)
	}
	return an
}

// sub returns a fresh analyzer for an imported file. It shares the arena,
// the resolver and the operator overloads, nothing else.
func (an *Analyzer) sub() *Analyzer {
	return &Analyzer{
		shared:     an.shared,
		res:        an.res,
		cat:        an.cat,
		mem:        symbols.New(),
		functions:  make(map[string]*Function),
		logger:     an.logger,
		searchPath: an.searchPath,
	}
}

// Arena holds every node built so far.
func (an *Analyzer) Arena() *ast.Arena { return an.arena }

// Memory is the static scope memory. After Build it holds the top level
// variables of the program.
func (an *Analyzer) Memory() *symbols.Memory { return an.mem }

// Function returns a defined or imported function.
func (an *Analyzer) Function(name string) (*Function, bool) {
	f, ok := an.functions[name]
	return f, ok
}

// Functions lists the function names, sorted.
func (an *Analyzer) Functions() []string {
	names := make([]string, 0, len(an.functions))
	for n := range an.functions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build analyzes a program tree and returns its Program node.
func (an *Analyzer) Build(root *parsetree.Node) (ast.NodeID, error) {
	if root == nil || root.Kind != parsetree.KindProgram {
		kind := "nothing"
		if root != nil {
			kind = root.Kind
		}
		return ast.NoNode, errAt(root, diagnostics.ErrS001, "Expected a program, got '%s'", kind)
	}
	an.file = root.Pos.File

	var stmts []ast.NodeID
	for _, child := range root.Children {
		id, err := an.topLevel(child)
		if err != nil {
			return ast.NoNode, err
		}
		if id != ast.NoNode {
			stmts = append(stmts, id)
		}
	}
	return an.arena.Add(&ast.Program{Base: ast.Base{At: root.Pos}, Statements: stmts}), nil
}

func (an *Analyzer) topLevel(n *parsetree.Node) (ast.NodeID, error) {
	switch n.Kind {
	case parsetree.KindStatement:
		if len(n.Children) == 1 {
			return an.topLevel(n.Children[0])
		}
	case parsetree.KindImport:
		return ast.NoNode, an.importFile(n)
	case parsetree.KindFunction:
		return ast.NoNode, an.function(n)
	case parsetree.KindOverload:
		return ast.NoNode, an.overload(n)
	}
	return an.statement(n)
}
