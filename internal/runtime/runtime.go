// Package runtime wires the virtual filesystem, preprocessor, VM, and
// scheduler into the single object a host embeds: it loads a configuration,
// mounts its directories, and exposes Spawn/Execute/Tick the way the
// teacher's own top-level pipeline wires lexer → parser → compiler → vm.
package runtime

import (
	"fmt"

	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/fileio"
	"github.com/arclattice/sqfvm/internal/pipeline"
	"github.com/arclattice/sqfvm/internal/preprocessor"
	"github.com/arclattice/sqfvm/internal/runtimecfg"
	"github.com/arclattice/sqfvm/internal/scheduler"
	"github.com/arclattice/sqfvm/internal/vm"
)

// Runtime is one embeddable instance: its own mount tree, macro table,
// namespaces, operator registry, and scheduler. Nothing here is shared
// across Runtime instances, so a host can run several independently.
type Runtime struct {
	Config runtimecfg.Config
	Logger diagnostics.Logger

	Resolver  *fileio.Resolver
	Machine   *vm.Machine
	Scheduler *scheduler.Scheduler

	Mission *vm.Namespace
	UI      *vm.Namespace
	Parsing *vm.Namespace
	Profile *vm.Namespace
}

// New builds a Runtime from cfg, mounting every configured directory and
// installing the default operator set.
func New(cfg runtimecfg.Config, logger diagnostics.Logger) *Runtime {
	resolver := fileio.NewResolver(cfg.CaseSensitivePaths)
	for _, mount := range cfg.Mounts {
		resolver.AddMapping(mount.Physical, mount.Virtual)
	}

	machine := vm.New(vm.DefaultOperatorRegistry(), logger)
	machine.StrictMode = cfg.StrictMode
	sched := scheduler.New(machine, logger, cfg.MaxInstructionsPerTick, cfg.MaxTotalInstructions)

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Resolver:  resolver,
		Machine:   machine,
		Scheduler: sched,
		Mission:   vm.NewNamespace(vm.NamespaceMission),
		UI:        vm.NewNamespace(vm.NamespaceUI),
		Parsing:   vm.NewNamespace(vm.NamespaceParsing),
		Profile:   vm.NewNamespace(vm.NamespaceProfile),
	}
}

// resolveStage looks up ctx.Virtual in the resolver, stamping the resolved
// PathInfo into the context or marking it Done on failure.
type resolveStage struct {
	resolver *fileio.Resolver
}

func (s resolveStage) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	info, ok := s.resolver.GetInfoVirtual(ctx.Virtual, fileio.Root)
	if !ok {
		ctx.Diagnostics = append(ctx.Diagnostics, diagnostics.NewFileNotFound(diagnostics.Location{}, ctx.Virtual))
		ctx.Done = true
		return ctx
	}
	ctx.Resolved = info
	return ctx
}

// preprocessStage runs the macro/include/conditional expansion pass over
// the resolved root file.
type preprocessStage struct {
	pp *preprocessor.Preprocessor
}

func (s preprocessStage) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	text, _, ok := s.pp.Preprocess(ctx.Resolved)
	if !ok {
		ctx.Done = true
		return ctx
	}
	ctx.Source = text
	return ctx
}

// Preprocess resolves virtualPath and runs it through the preprocessor,
// returning the fully expanded source text ready for an external
// parser/lowerer to turn into an instruction stream.
func (rt *Runtime) Preprocess(virtualPath string) (string, error) {
	pp := preprocessor.New(rt.Resolver, rt.Logger, rt.Config.EnableClassicIncludes)
	p := pipeline.New(
		resolveStage{resolver: rt.Resolver},
		preprocessStage{pp: pp},
	)
	result := p.Run(&pipeline.PipelineContext{Virtual: virtualPath})
	if rt.Logger != nil {
		for _, d := range result.Diagnostics {
			rt.Logger.Log(d)
		}
	}
	if result.Done && result.Source == "" {
		return "", fmt.Errorf("preprocessing %s failed", virtualPath)
	}
	return result.Source, nil
}

// namespaceFor returns the Namespace a newly spawned context should read
// and write non-local names in; mission is the default when the host
// doesn't care to pick one of the other three.
func (rt *Runtime) namespaceFor(kind vm.NamespaceKind) *vm.Namespace {
	switch kind {
	case vm.NamespaceUI:
		return rt.UI
	case vm.NamespaceParsing:
		return rt.Parsing
	case vm.NamespaceProfile:
		return rt.Profile
	default:
		return rt.Mission
	}
}

// Spawn starts code running as a new ScriptContext. scheduled selects
// between the cooperative round-robin and an inline "per-frame" context a
// host must drive itself via Execute.
func (rt *Runtime) Spawn(code *vm.Code, namespace vm.NamespaceKind, this vm.Value, scheduled bool) vm.ScriptHandle {
	return rt.Scheduler.Spawn(code, rt.namespaceFor(namespace), this, scheduled)
}

// Execute runs an unscheduled context inline to completion.
func (rt *Runtime) Execute(handle vm.ScriptHandle) (vm.Value, error) {
	ctx, ok := rt.Scheduler.Get(handle)
	if !ok {
		return vm.Nil(), fmt.Errorf("unknown script handle %s", handle)
	}
	return rt.Scheduler.Execute(ctx)
}

// Tick advances the scheduler by one pass over every scheduled context,
// the method a host's own frame loop calls periodically.
func (rt *Runtime) Tick(now float64) {
	rt.Scheduler.Tick(now)
}

// Terminate cancels a running context at its next safe point.
func (rt *Runtime) Terminate(handle vm.ScriptHandle) {
	rt.Scheduler.Terminate(handle)
}
