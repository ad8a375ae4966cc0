// Package pipeline chains the stages a script runs through before its
// instruction stream reaches the VM: resolving its virtual path to a
// physical file, then preprocessing it. Stages keep running even after one
// reports a diagnostic, the way a host that wants every error in a batch
// (not just the first) needs them to.
package pipeline

import (
	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/fileio"
)

// PipelineContext threads a script through successive stages. Done lets a
// stage short-circuit the rest (e.g. the root file could not be resolved
// at all, so there is nothing left for a preprocess stage to do).
type PipelineContext struct {
	Virtual     string
	Resolved    fileio.PathInfo
	Source      string
	Diagnostics []diagnostics.Diagnostic
	Done        bool
}

// Processor is one pipeline stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline is a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline, stopping early only if a stage sets Done.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		if ctx.Done {
			break
		}
		ctx = processor.Process(ctx)
	}
	return ctx
}
