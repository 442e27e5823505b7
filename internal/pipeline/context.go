package pipeline

import (
	"io"
	"log/slog"

	"github.com/funvibe/flowc/internal/ast"
	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/config"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/resolver"
)

// PipelineContext carries one compilation through the stages. The catalog
// and the resolver are built once and may be shared between contexts;
// everything below them belongs to this run.
type PipelineContext struct {
	FilePath string
	Settings *config.Settings
	Logger   *slog.Logger

	Catalog  *catalog.Catalog
	Resolver *resolver.Resolver

	Tree    *parsetree.Node
	Arena   *ast.Arena
	Program ast.NodeID

	Snapshot *graph.Snapshot
	// Outputs lists what the emit stages wrote: file paths or publish
	// targets.
	Outputs []string

	Errors []error
}

// NewContext returns a context for the document at path.
func NewContext(path string, settings *config.Settings) *PipelineContext {
	if settings == nil {
		settings = config.Defaults()
	}
	return &PipelineContext{
		FilePath: path,
		Settings: settings,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Failed reports whether a stage recorded an error.
func (ctx *PipelineContext) Failed() bool { return len(ctx.Errors) > 0 }

// Fail records err.
func (ctx *PipelineContext) Fail(err error) *PipelineContext {
	ctx.Errors = append(ctx.Errors, err)
	return ctx
}

// Err returns the first recorded error.
func (ctx *PipelineContext) Err() error {
	if len(ctx.Errors) == 0 {
		return nil
	}
	return ctx.Errors[0]
}
