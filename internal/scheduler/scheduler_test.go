package scheduler

import (
	"testing"

	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/vm"
)

type collectingLogger struct {
	logged []diagnostics.Diagnostic
}

func (l *collectingLogger) Log(d diagnostics.Diagnostic)      { l.logged = append(l.logged, d) }
func (l *collectingLogger) IsEnabled(diagnostics.Severity) bool { return true }

func (l *collectingLogger) hasKind(k diagnostics.Kind) bool {
	for _, d := range l.logged {
		if d.Kind == k {
			return true
		}
	}
	return false
}

func newScheduler(maxPerTick, maxTotal uint64) (*Scheduler, *collectingLogger) {
	logger := &collectingLogger{}
	machine := vm.New(vm.DefaultOperatorRegistry(), logger)
	return New(machine, logger, maxPerTick, maxTotal), logger
}

func endlessLoopCode() *vm.Code {
	// Stands in for "while(true){}": one body that pushes nil and discards
	// it. There is no jump opcode, so callers repeat this body far past the
	// budget; the scheduler's own budget enforcement is what must stop it.
	instrs := make([]vm.Instruction, 0, 2)
	instrs = append(instrs, vm.Instruction{Op: vm.CALLNULAR, Name: "nil"})
	instrs = append(instrs, vm.Instruction{Op: vm.ENDSTATEMENT})
	return &vm.Code{Instructions: instrs, File: "loop.sqf", CatchFrom: 1, CatchTo: 0}
}

func TestInstructionBudgetTerminatesContext(t *testing.T) {
	sched, logger := newScheduler(10, 1000)
	code := endlessLoopCode()
	// Repeat the body enough times that the total budget is exhausted
	// well before the context would otherwise finish.
	var instrs []vm.Instruction
	for i := 0; i < 2000; i++ {
		instrs = append(instrs, code.Instructions...)
	}
	code.Instructions = instrs

	handle := sched.Spawn(code, vm.NewNamespace(vm.NamespaceMission), vm.Nil(), true)

	for tick := 0; tick < 500; tick++ {
		sched.Tick(float64(tick))
		ctx, _ := sched.Get(handle)
		if ctx.State == StateTerminated || ctx.State == StateFinished {
			break
		}
	}

	ctx, _ := sched.Get(handle)
	if ctx.State != StateTerminated {
		t.Fatalf("got state %v, want terminated", ctx.State)
	}
	if ctx.TerminationReason != "MaximumInstructionCountReached" {
		t.Fatalf("got reason %q", ctx.TerminationReason)
	}
	if !logger.hasKind(diagnostics.KindMaximumInstructionCountReached) {
		t.Fatal("expected a MaximumInstructionCountReached diagnostic")
	}
}

func TestSuspensionInUnscheduledContextTerminates(t *testing.T) {
	sched, logger := newScheduler(1000, 0)
	code := &vm.Code{
		File: "unscheduled.sqf",
		Instructions: []vm.Instruction{
			{Op: vm.PUSH, Value: vm.Number(1)},
			{Op: vm.CALLUNARY, Name: "sleep"},
			{Op: vm.ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	ctx := sched.Spawn(code, vm.NewNamespace(vm.NamespaceMission), vm.Nil(), false)
	scriptCtx, _ := sched.Get(ctx)

	_, err := sched.Execute(scriptCtx)
	if err == nil {
		t.Fatal("expected Execute to return an error for a suspending unscheduled context")
	}
	if scriptCtx.State != StateTerminated {
		t.Fatalf("got state %v, want terminated", scriptCtx.State)
	}
	if !logger.hasKind(diagnostics.KindSuspensionInUnscheduledEnvironment) {
		t.Fatal("expected a SuspensionInUnscheduledEnvironment diagnostic")
	}
}

func TestSleepSuspendsAndResumesAfterDeadline(t *testing.T) {
	sched, _ := newScheduler(1000, 0)
	code := &vm.Code{
		File: "sleeper.sqf",
		Instructions: []vm.Instruction{
			{Op: vm.PUSH, Value: vm.Number(5)},
			{Op: vm.CALLUNARY, Name: "sleep"},
			{Op: vm.ENDSTATEMENT},
			{Op: vm.PUSH, Value: vm.String("awake")},
			{Op: vm.ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	handle := sched.Spawn(code, vm.NewNamespace(vm.NamespaceMission), vm.Nil(), true)

	sched.Tick(0)
	ctx, _ := sched.Get(handle)
	if ctx.State != StateSleeping {
		t.Fatalf("got state %v, want sleeping", ctx.State)
	}

	sched.Tick(2) // still before the 5-second deadline
	if ctx.State != StateSleeping {
		t.Fatalf("got state %v, want still sleeping", ctx.State)
	}

	sched.Tick(6)
	if ctx.State != StateFinished {
		t.Fatalf("got state %v, want finished", ctx.State)
	}
	if ctx.Result.Type != vm.TString || ctx.Result.AsString() != "awake" {
		t.Fatalf("got result %v, want awake", ctx.Result.Format())
	}
}

func TestWaitUntilResumesWhenPredicateBecomesTruthy(t *testing.T) {
	sched, _ := newScheduler(1000, 0)
	ns := vm.NewNamespace(vm.NamespaceMission)
	ns.Set("ready", vm.Bool(false))

	predicate := &vm.Code{
		File: "predicate.sqf",
		Instructions: []vm.Instruction{
			{Op: vm.GETVARIABLE, Name: "ready"},
			{Op: vm.ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	code := &vm.Code{
		File: "waiter.sqf",
		Instructions: []vm.Instruction{
			{Op: vm.PUSH, Value: vm.CodeVal(predicate)},
			{Op: vm.CALLUNARY, Name: "waituntil"},
			{Op: vm.ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	handle := sched.Spawn(code, ns, vm.Nil(), true)

	sched.Tick(0)
	ctx, _ := sched.Get(handle)
	if ctx.State != StateWaiting {
		t.Fatalf("got state %v, want waiting", ctx.State)
	}

	sched.Tick(1)
	if ctx.State != StateWaiting {
		t.Fatalf("got state %v, want still waiting", ctx.State)
	}

	ns.Set("ready", vm.Bool(true))
	sched.Tick(2)
	if ctx.State != StateFinished {
		t.Fatalf("got state %v, want finished", ctx.State)
	}
}

func TestTerminateAlreadyFinishedLogsDiagnostic(t *testing.T) {
	sched, logger := newScheduler(1000, 0)
	code := &vm.Code{
		Instructions: []vm.Instruction{
			{Op: vm.PUSH, Value: vm.Number(1)},
			{Op: vm.ENDSTATEMENT},
		},
		File:      "quick.sqf",
		CatchFrom: 1,
		CatchTo:   0,
	}
	handle := sched.Spawn(code, vm.NewNamespace(vm.NamespaceMission), vm.Nil(), true)
	sched.Tick(0)
	ctx, _ := sched.Get(handle)
	if ctx.State != StateFinished {
		t.Fatalf("got state %v, want finished", ctx.State)
	}

	sched.Terminate(handle)
	if !logger.hasKind(diagnostics.KindScriptHandleAlreadyFinished) {
		t.Fatal("expected a ScriptHandleAlreadyFinished diagnostic")
	}
}

func TestReapRemovesFinishedContexts(t *testing.T) {
	sched, _ := newScheduler(1000, 0)
	code := &vm.Code{
		Instructions: []vm.Instruction{
			{Op: vm.PUSH, Value: vm.Number(1)},
			{Op: vm.ENDSTATEMENT},
		},
		File:      "quick.sqf",
		CatchFrom: 1,
		CatchTo:   0,
	}
	handle := sched.Spawn(code, vm.NewNamespace(vm.NamespaceMission), vm.Nil(), true)
	sched.Tick(0)
	sched.Reap()
	if _, ok := sched.Get(handle); ok {
		t.Fatal("expected the finished context to be gone after Reap")
	}
}
