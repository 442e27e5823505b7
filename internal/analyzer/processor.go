package analyzer

import (
	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/parsetree"
	"github.com/funvibe/flowc/internal/pipeline"
	"github.com/funvibe/flowc/internal/resolver"
)

// CatalogProcessor loads the operator catalog and builds the resolver.
// Contexts that already carry a resolver are left alone, so one resolver
// can serve many compilations.
type CatalogProcessor struct{}

func (cp *CatalogProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Failed() || ctx.Resolver != nil {
		return ctx
	}
	if ctx.Catalog == nil {
		cat, err := catalog.Default()
		if err != nil {
			return ctx.Fail(err)
		}
		for _, file := range ctx.Settings.Catalog {
			extra, err := catalog.Load(file)
			if err != nil {
				return ctx.Fail(err)
			}
			cat.Merge(extra)
			ctx.Logger.Debug("catalog merged", "file", file, "operators", extra.Len())
		}
		ctx.Catalog = cat
	}
	res, err := resolver.New(ctx.Catalog,
		resolver.WithLogger(ctx.Logger),
		resolver.WithStrict(ctx.Settings.Strict()))
	if err != nil {
		return ctx.Fail(err)
	}
	ctx.Resolver = res
	return ctx
}

// TreeLoaderProcessor reads the parse-tree document at ctx.FilePath.
type TreeLoaderProcessor struct{}

func (tp *TreeLoaderProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Failed() || ctx.Tree != nil {
		return ctx
	}
	tree, err := parsetree.Load(ctx.FilePath)
	if err != nil {
		return ctx.Fail(err)
	}
	ctx.Tree = tree
	return ctx
}

// SemanticAnalyzerProcessor builds the typed AST of ctx.Tree.
type SemanticAnalyzerProcessor struct{}

func (sap *SemanticAnalyzerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Failed() || ctx.Tree == nil || ctx.Resolver == nil {
		return ctx
	}
	opts := []Option{WithLogger(ctx.Logger), WithSearchPath(ctx.Settings.SearchPath...)}
	if ctx.Arena != nil {
		opts = append(opts, WithArena(ctx.Arena))
	}
	an := New(ctx.Resolver, opts...)
	program, err := an.Build(ctx.Tree)
	if err != nil {
		return ctx.Fail(err)
	}
	ctx.Arena = an.Arena()
	ctx.Program = program
	ctx.Logger.Debug("analyzed", "file", ctx.FilePath, "nodes", an.Arena().Len(), "functions", len(an.functions))
	return ctx
}
