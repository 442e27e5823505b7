package backend

import (
	"context"

	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/graph"
	"github.com/funvibe/flowc/internal/lowering"
	"github.com/funvibe/flowc/internal/pipeline"
)

// LoweringProcessor lowers the analyzed program into a graph.Recorder and
// keeps its snapshot.
type LoweringProcessor struct {
	// Options are passed to the recorder, for example fixed node ids.
	Options []graph.RecorderOption
}

func (p *LoweringProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Failed() || ctx.Arena == nil || ctx.Resolver == nil {
		return ctx
	}
	cat := ctx.Resolver.Catalog()
	opts := append([]graph.RecorderOption{graph.WithSource(ctx.FilePath)}, p.Options...)
	rec := graph.NewRecorder(cat, opts...)
	lc := lowering.NewContext(rec, cat, lowering.WithLogger(ctx.Logger))
	if _, err := ctx.Arena.Lower(ctx.Program, lc); err != nil {
		return ctx.Fail(err)
	}
	ctx.Snapshot = rec.Snapshot()
	nodes, edges := rec.Stats()
	ctx.Logger.Debug("lowered", "file", ctx.FilePath, "nodes", nodes, "edges", edges)
	return ctx
}

// EmitProcessor hands the snapshot to a backend.
type EmitProcessor struct {
	Backend Backend
	Target  string
	Context context.Context
}

// NewEmitProcessor creates a new pipeline step for the given backend.
func NewEmitProcessor(b Backend, target string) *EmitProcessor {
	return &EmitProcessor{Backend: b, Target: target, Context: context.Background()}
}

func (p *EmitProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	if ctx.Snapshot == nil {
		return ctx.Fail(diagnostics.New(diagnostics.ErrE001, "Nothing to emit: the program was not lowered"))
	}
	where, err := p.Backend.Emit(p.Context, ctx.Snapshot, p.Target)
	if err != nil {
		return ctx.Fail(err)
	}
	ctx.Outputs = append(ctx.Outputs, where)
	ctx.Logger.Info("written", "backend", p.Backend.Name(), "to", where, "nodes", len(ctx.Snapshot.Nodes))
	return ctx
}
