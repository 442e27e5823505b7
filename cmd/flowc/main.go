package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/funvibe/flowc/internal/analyzer"
	"github.com/funvibe/flowc/internal/backend"
	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/config"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/pipeline"
)

const usageText = `Usage:
  flowc build [flags] <tree>     compile a parse-tree document into a graph
  flowc check [flags] <tree>     analyze and lower without writing anything
  flowc catalog [name]           list catalog operators, or show one
  flowc show <db> [id]           list stored snapshots, or print one as YAML
  flowc help

Build flags:
  -o path         output file ("-" for stdout)
  -format f       yaml, json, proto or sqlite
  -publish addr   submit the graph to a GraphHost at addr instead of writing it
  -source path    flow source the tree was parsed from, for error excerpts
  -catalog file   extra catalog file (repeatable)
  -I dir          import search directory (repeatable)
  -v              debug logging
`

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			os.Exit(1)
		}
	}()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	switch args[0] {
	case "build":
		return handleBuild(args[1:], stdout, stderr, true)
	case "check":
		return handleBuild(args[1:], stdout, stderr, false)
	case "catalog":
		return handleCatalog(args[1:], stdout, stderr)
	case "show":
		return handleShow(args[1:], stdout, stderr)
	case "help", "-help", "--help", "-h":
		fmt.Fprint(stdout, usageText)
		return 0
	}
	if isTreeFile(args[0]) {
		return handleBuild(args, stdout, stderr, true)
	}
	fmt.Fprintf(stderr, "Unknown command %q\n\n%s", args[0], usageText)
	return 2
}

// isTreeFile checks if a file has a recognized parse-tree extension
func isTreeFile(path string) bool {
	for _, ext := range config.TreeFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }

// ----------------------------------------------------------------------------
// build / check
// ----------------------------------------------------------------------------

func handleBuild(args []string, stdout, stderr io.Writer, write bool) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		output   = fs.String("o", "", "output file")
		format   = fs.String("format", "", "output format")
		publish  = fs.String("publish", "", "GraphHost address")
		source   = fs.String("source", "", "flow source file")
		verbose  = fs.Bool("v", false, "debug logging")
		catalogs listFlag
		dirs     listFlag
	)
	fs.Var(&catalogs, "catalog", "extra catalog file")
	fs.Var(&dirs, "I", "import search directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "Expected one parse-tree document, got %d\n", fs.NArg())
		return 2
	}
	path := fs.Arg(0)

	settings, err := config.Discover(filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	settings.Catalog = append(settings.Catalog, catalogs...)
	settings.SearchPath = append(dirs, settings.SearchPath...)
	if *output != "" {
		settings.Output = *output
	}
	if *format != "" {
		settings.Format = *format
	}
	if *verbose {
		settings.LogLevel = "debug"
	}

	ctx := pipeline.NewContext(path, settings)
	ctx.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: settings.Level()}))

	stages := []pipeline.Processor{
		&analyzer.CatalogProcessor{},
		&analyzer.TreeLoaderProcessor{},
		&analyzer.SemanticAnalyzerProcessor{},
		&backend.LoweringProcessor{},
	}
	if write {
		var (
			b      backend.Backend
			target string
		)
		if *publish != "" {
			b, target = &backend.Publisher{}, *publish
		} else {
			if b, err = backend.ForFormat(settings.Format); err != nil {
				fmt.Fprintf(stderr, "Error: %s\n", err)
				return 2
			}
			target = settings.OutputPath(path)
		}
		stages = append(stages, backend.NewEmitProcessor(b, target))
	}

	ctx = pipeline.New(stages...).Run(ctx)
	if ctx.Failed() {
		reportErrors(ctx, *source, stderr)
		return 1
	}
	if write {
		for _, out := range ctx.Outputs {
			if out != "stdout" {
				fmt.Fprintln(stdout, out)
			}
		}
	} else {
		fmt.Fprintf(stdout, "%s: ok (%d nodes, %d edges)\n", path, len(ctx.Snapshot.Nodes), len(ctx.Snapshot.Edges))
	}
	return 0
}

func reportErrors(ctx *pipeline.PipelineContext, sourcePath string, stderr io.Writer) {
	f := diagnostics.Formatter{}
	if file, ok := stderr.(*os.File); ok {
		f.Color = diagnostics.ColorEnabled(ctx.Settings.Color, file)
	}
	for _, err := range ctx.Errors {
		fmt.Fprintln(stderr, f.Format(err, sourceFor(err, sourcePath)))
	}
}

// sourceFor returns the flow source an error points into: the -source file,
// or the file named by the error position unless that is a tree document.
func sourceFor(err error, sourcePath string) string {
	path := sourcePath
	if path == "" {
		d, ok := diagnostics.As(err)
		if !ok || d.Pos.File == "" || isTreeFile(d.Pos.File) {
			return ""
		}
		path = d.Pos.File
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return ""
	}
	return string(data)
}

// ----------------------------------------------------------------------------
// catalog
// ----------------------------------------------------------------------------

func handleCatalog(args []string, stdout, stderr io.Writer) int {
	settings, err := config.Discover(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	cat, err := catalog.Default()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	for _, file := range settings.Catalog {
		extra, err := catalog.Load(file)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
		cat.Merge(extra)
	}

	if len(args) == 0 {
		for _, name := range cat.Operators() {
			op, _ := cat.Lookup(name)
			fmt.Fprintf(stdout, "%-50s %s\n", name, signature(op.InputNames(), op.OutputNames()))
		}
		return 0
	}
	name, ok := cat.Resolve(args[0])
	if !ok {
		fmt.Fprintf(stderr, "Unknown operator or compound: '%s'\n", args[0])
		return 1
	}
	op, _ := cat.Lookup(name)
	fmt.Fprintf(stdout, "%s %s\n", name, signature(op.InputNames(), op.OutputNames()))
	if src := cat.Source(name); src != "" {
		fmt.Fprintf(stdout, "  defined in %s\n", src)
	}
	for _, ov := range op.Overloads {
		fmt.Fprintf(stdout, "  (%s) -> (%s)\n", strings.Join(ov.In, ", "), strings.Join(ov.Out, ", "))
	}
	return 0
}

func signature(in, out []string) string {
	return "(" + strings.Join(in, ", ") + ") -> (" + strings.Join(out, ", ") + ")"
}

// ----------------------------------------------------------------------------
// show
// ----------------------------------------------------------------------------

func handleShow(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	store, err := graph.OpenStore(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	if len(args) == 1 {
		ids, err := store.List(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
		for _, id := range ids {
			fmt.Fprintln(stdout, id)
		}
		return 0
	}
	snap, err := store.Load(ctx, args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	data, err := snap.EncodeYAML()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	stdout.Write(data)
	return 0
}
