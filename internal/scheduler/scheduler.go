// Package scheduler runs ScriptContexts cooperatively: scheduled contexts
// round-robin across ticks under an instruction budget, unscheduled
// ("per-frame") contexts run inline to completion, and sleep/waitUntil move
// a context out of the round-robin until its wake condition is met.
package scheduler

import (
	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/vm"
	"github.com/google/uuid"
)

// Scheduler owns every live ScriptContext and the single Machine they all
// execute against — one OS thread drives all contexts, matching the
// single-threaded cooperative model.
type Scheduler struct {
	Machine *vm.Machine
	Logger  diagnostics.Logger

	MaxInstructionsPerTick uint64
	MaxTotalInstructions   uint64

	contexts map[vm.ScriptHandle]*ScriptContext
	order    []vm.ScriptHandle
	now      float64
}

func New(machine *vm.Machine, logger diagnostics.Logger, maxPerTick, maxTotal uint64) *Scheduler {
	return &Scheduler{
		Machine:                machine,
		Logger:                 logger,
		MaxInstructionsPerTick: maxPerTick,
		MaxTotalInstructions:   maxTotal,
		contexts:               make(map[vm.ScriptHandle]*ScriptContext),
	}
}

func (s *Scheduler) log(d diagnostics.Diagnostic) {
	if s.Logger != nil {
		s.Logger.Log(d)
	}
}

// newHandle mints a ScriptHandle that has never been used by this
// Scheduler, backed by a random UUID so the "never reused within a runtime
// instance" guarantee holds without the scheduler tracking a counter.
func newHandle() vm.ScriptHandle {
	return vm.ScriptHandle(uuid.NewString())
}

// Spawn creates a new ScriptContext executing code, registers it, and
// returns its handle. An unscheduled context (scheduled=false) never enters
// the round-robin; Execute must be called on it directly.
func (s *Scheduler) Spawn(code *vm.Code, namespace *vm.Namespace, this vm.Value, scheduled bool) vm.ScriptHandle {
	handle := newHandle()
	frame := vm.NewFrame(code, nil, namespace)
	frame.Local.Set("_this", this)
	frame.Handle = handle

	ctx := &ScriptContext{
		Handle:    handle,
		Frame:     frame,
		Scheduled: scheduled,
		State:     StateRunning,
	}
	s.contexts[handle] = ctx
	if scheduled {
		s.order = append(s.order, handle)
	}
	return handle
}

// Get returns the context for handle, if it is still known to the
// scheduler (terminated/finished contexts are kept until the caller reaps
// them via Reap).
func (s *Scheduler) Get(handle vm.ScriptHandle) (*ScriptContext, bool) {
	ctx, ok := s.contexts[handle]
	return ctx, ok
}

// Execute runs an unscheduled context to completion within the caller's
// own invocation. Any attempt to suspend inside it is a fault: the context
// is terminated and SuspensionInUnscheduledEnvironment is logged. A context
// that reaches MaxTotalInstructions is terminated with
// MaximumInstructionCountReached, the same as in Tick.
func (s *Scheduler) Execute(ctx *ScriptContext) (vm.Value, error) {
	var budget uint64
	if s.MaxTotalInstructions != 0 {
		if ctx.TotalExecuted >= s.MaxTotalInstructions {
			s.terminateBudgetExceeded(ctx)
			return vm.Nil(), vm.ErrBudgetExceeded
		}
		budget = s.MaxTotalInstructions - ctx.TotalExecuted
	}
	result, executed, err := s.Machine.Run(ctx.Frame, budget)
	ctx.TotalExecuted += executed

	if err == nil {
		ctx.State = StateFinished
		ctx.Result = result
		return result, nil
	}

	if err == vm.ErrBudgetExceeded {
		s.terminateBudgetExceeded(ctx)
		return vm.Nil(), err
	}

	if _, isSuspend := vm.AsSuspend(err); isSuspend {
		loc := currentLoc(ctx.Frame)
		s.log(diagnostics.NewSuspensionInUnscheduledEnvironment(loc))
		ctx.State = StateTerminated
		ctx.TerminationReason = "SuspensionInUnscheduledEnvironment"
		return vm.Nil(), err
	}

	ctx.State = StateTerminated
	ctx.TerminationReason = err.Error()
	return vm.Nil(), err
}

// Tick advances the wall clock to now and gives every scheduled, runnable
// context its turn. Contexts that finish or terminate this tick are left
// in the registry with their final state; callers can Reap them.
func (s *Scheduler) Tick(now float64) {
	s.now = now
	for _, handle := range s.order {
		ctx, ok := s.contexts[handle]
		if !ok {
			continue
		}
		s.stepContext(ctx)
	}
}

func (s *Scheduler) stepContext(ctx *ScriptContext) {
	switch ctx.State {
	case StateTerminated, StateFinished:
		return
	case StateSleeping:
		if s.now < ctx.SleepUntil {
			return
		}
		ctx.State = StateRunning
	case StateWaiting:
		woke := s.pollWaitCode(ctx)
		if !woke {
			return
		}
		ctx.State = StateRunning
	}

	if ctx.State != StateRunning {
		return
	}

	if s.MaxTotalInstructions != 0 && ctx.TotalExecuted >= s.MaxTotalInstructions {
		s.terminateBudgetExceeded(ctx)
		return
	}

	budget := s.MaxInstructionsPerTick
	if s.MaxTotalInstructions != 0 {
		remaining := s.MaxTotalInstructions - ctx.TotalExecuted
		if budget == 0 || remaining < budget {
			budget = remaining
		}
	}

	result, executed, err := s.Machine.Run(ctx.Frame, budget)
	ctx.TotalExecuted += executed

	switch {
	case err == nil:
		ctx.State = StateFinished
		ctx.Result = result

	case err == vm.ErrBudgetExceeded:
		if s.MaxTotalInstructions != 0 && ctx.TotalExecuted >= s.MaxTotalInstructions {
			s.terminateBudgetExceeded(ctx)
			return
		}
		// Ran out of this tick's slice, not the context's total budget;
		// it simply resumes on the next Tick.
		ctx.State = StateRunning

	default:
		if signal, isSuspend := vm.AsSuspend(err); isSuspend {
			s.suspend(ctx, signal)
			return
		}
		loc := currentLoc(ctx.Frame)
		s.log(diagnostics.NewUnhandledException(loc, err.Error()))
		ctx.State = StateTerminated
		ctx.TerminationReason = err.Error()
	}
}

func (s *Scheduler) suspend(ctx *ScriptContext, signal vm.SuspendSignal) {
	switch signal.Reason {
	case vm.SuspendSleep:
		ctx.State = StateSleeping
		ctx.SleepUntil = s.now + signal.Duration
	case vm.SuspendWaitUntil:
		ctx.State = StateWaiting
		ctx.WaitCode = signal.WaitCode
	}
}

// pollWaitCode runs a waiting context's predicate inline (predicates are
// expected to be short, pure checks, not suspending code themselves) and
// reports whether it came back truthy.
func (s *Scheduler) pollWaitCode(ctx *ScriptContext) bool {
	if ctx.WaitCode == nil {
		return true
	}
	result, _, err := s.Machine.Call(ctx.WaitCode, ctx.Frame, ctx.Frame.Namespace, vm.Nil(), 0)
	if err != nil {
		return false
	}
	return result.Truthy()
}

func (s *Scheduler) terminateBudgetExceeded(ctx *ScriptContext) {
	loc := currentLoc(ctx.Frame)
	s.log(diagnostics.NewMaximumInstructionCountReached(loc, ctx.TotalExecuted))
	ctx.State = StateTerminated
	ctx.TerminationReason = "MaximumInstructionCountReached"
}

// Terminate marks handle's context Terminated at its next safe point. A
// context that has already finished or already terminated logs the
// matching AlreadyFinished/AlreadyTerminated diagnostic instead of acting.
func (s *Scheduler) Terminate(handle vm.ScriptHandle) {
	ctx, ok := s.contexts[handle]
	if !ok {
		return
	}
	switch ctx.State {
	case StateFinished:
		s.log(diagnostics.NewScriptHandleAlreadyFinished(diagnostics.Location{}, string(handle)))
	case StateTerminated:
		s.log(diagnostics.NewScriptHandleAlreadyTerminated(diagnostics.Location{}, string(handle)))
	default:
		ctx.State = StateTerminated
		ctx.TerminationReason = "terminated"
	}
}

// Reap removes every context whose state is Terminated or Finished from
// the registry and round-robin order.
func (s *Scheduler) Reap() {
	live := s.order[:0]
	for _, handle := range s.order {
		ctx, ok := s.contexts[handle]
		if !ok {
			continue
		}
		if ctx.State == StateTerminated || ctx.State == StateFinished {
			delete(s.contexts, handle)
			continue
		}
		live = append(live, handle)
	}
	s.order = live
	for handle, ctx := range s.contexts {
		if !ctx.Scheduled && (ctx.State == StateTerminated || ctx.State == StateFinished) {
			delete(s.contexts, handle)
		}
	}
}

func currentLoc(frame *vm.Frame) diagnostics.Location {
	if frame == nil || frame.Code == nil {
		return diagnostics.Location{}
	}
	if frame.PC < len(frame.Code.Instructions) {
		instr := frame.Code.Instructions[frame.PC]
		return diagnostics.Location{File: frame.Code.File, Line: instr.Line, Column: instr.Column}
	}
	return diagnostics.Location{File: frame.Code.File}
}
