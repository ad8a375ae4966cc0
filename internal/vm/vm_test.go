package vm

import (
	"strings"
	"testing"

	"github.com/arclattice/sqfvm/internal/diagnostics"
)

type collectingLogger struct {
	logged []diagnostics.Diagnostic
}

func (l *collectingLogger) Log(d diagnostics.Diagnostic) { l.logged = append(l.logged, d) }
func (l *collectingLogger) IsEnabled(diagnostics.Severity) bool { return true }

func newMachine() (*Machine, *collectingLogger) {
	logger := &collectingLogger{}
	return New(DefaultOperatorRegistry(), logger), logger
}

func push(v Value) Instruction { return Instruction{Op: PUSH, Value: v} }

func runCode(t *testing.T, instrs []Instruction) (Value, *Machine, *collectingLogger) {
	t.Helper()
	machine, logger := newMachine()
	code := &Code{Instructions: instrs, File: "test.sqf", CatchFrom: 1, CatchTo: 0}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	result, _, err := machine.Run(frame, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return result, machine, logger
}

func TestArithmeticAddition(t *testing.T) {
	instrs := []Instruction{
		push(Number(2)),
		push(Number(3)),
		{Op: CALLBINARY, Name: "+"},
		{Op: ENDSTATEMENT},
	}
	result, _, _ := runCode(t, instrs)
	if result.Type != TNumber || result.AsNumber() != 5 {
		t.Fatalf("got %v, want 5", result.Format())
	}
}

func TestStringConcatenation(t *testing.T) {
	instrs := []Instruction{
		push(String("hel")),
		push(String("lo")),
		{Op: CALLBINARY, Name: "+"},
		{Op: ENDSTATEMENT},
	}
	result, _, _ := runCode(t, instrs)
	if result.Type != TString || result.AsString() != "hello" {
		t.Fatalf("got %v, want hello", result.Format())
	}
}

func TestAssignToNamespaceThenGetVariable(t *testing.T) {
	instrs := []Instruction{
		push(Number(41)),
		{Op: ASSIGNTO, Name: "answer"},
		{Op: ENDSTATEMENT},
		{Op: GETVARIABLE, Name: "answer"},
		{Op: ENDSTATEMENT},
	}
	result, _, logger := runCode(t, instrs)
	if result.Type != TNumber || result.AsNumber() != 41 {
		t.Fatalf("got %v, want 41", result.Format())
	}
	if len(logger.logged) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestAssignToLocalForcesLocalBinding(t *testing.T) {
	instrs := []Instruction{
		push(Number(1)),
		// "result" has no underscore, but ASSIGNTOLOCAL forces a local
		// binding anyway, so GETVARIABLE on the same name, which looks in
		// the namespace because it has no underscore, fails, proving
		// namespace and local storage are kept distinct.
		{Op: ASSIGNTOLOCAL, Name: "result"},
		{Op: ENDSTATEMENT},
		{Op: GETVARIABLE, Name: "result"},
		{Op: ENDSTATEMENT},
	}
	_, _, logger := runCode(t, instrs)
	if len(logger.logged) == 0 {
		t.Fatal("expected an UnassignedVariable diagnostic for the namespace lookup")
	}
	if logger.logged[0].Kind != diagnostics.KindUnassignedVariable {
		t.Fatalf("got diagnostic kind %v", logger.logged[0].Kind)
	}
}

func TestGetVariableOnMissingNameReturnsNilWithDiagnostic(t *testing.T) {
	instrs := []Instruction{
		{Op: GETVARIABLE, Name: "neverDefined"},
		{Op: ENDSTATEMENT},
	}
	result, _, logger := runCode(t, instrs)
	if !result.IsNil() {
		t.Fatalf("got %v, want nil", result.Format())
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindUnassignedVariable {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestStrictModeElevatesUnassignedVariableToError(t *testing.T) {
	machine, logger := newMachine()
	machine.StrictMode = true
	code := &Code{
		Instructions: []Instruction{
			{Op: GETVARIABLE, Name: "neverDefined"},
			{Op: ENDSTATEMENT},
		},
		File:      "strict.sqf",
		CatchFrom: 1,
		CatchTo:   0,
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	if _, _, err := machine.Run(frame, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindUnassignedVariable {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
	if logger.logged[0].Severity != diagnostics.Error {
		t.Fatalf("got severity %v, want Error under strict mode", logger.logged[0].Severity)
	}
}

func TestUnderscoreNameFallsBackToEnclosingFrame(t *testing.T) {
	outer := NewFrame(&Code{File: "outer.sqf"}, nil, NewNamespace(NamespaceMission))
	outer.Local.Set("_x", Number(10))
	inner := NewFrame(&Code{
		Instructions: []Instruction{
			{Op: GETVARIABLE, Name: "_x"},
			{Op: ENDSTATEMENT},
		},
		File: "inner.sqf",
	}, outer, NewNamespace(NamespaceMission))

	machine, logger := newMachine()
	result, _, err := machine.Run(inner, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Type != TNumber || result.AsNumber() != 10 {
		t.Fatalf("got %v, want 10 from the enclosing frame", result.Format())
	}
	if len(logger.logged) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestMakeArrayAndElementAccess(t *testing.T) {
	instrs := []Instruction{
		push(Number(1)),
		push(Number(2)),
		push(Number(3)),
		{Op: MAKEARRAY, N: 3},
		push(Number(1)),
		{Op: GETARRAYELEM},
		{Op: ENDSTATEMENT},
	}
	result, _, _ := runCode(t, instrs)
	if result.Type != TNumber || result.AsNumber() != 2 {
		t.Fatalf("got %v, want 2", result.Format())
	}
}

func TestSetArrayElemGrowsArray(t *testing.T) {
	instrs := []Instruction{
		push(Number(1)),
		push(Number(2)),
		{Op: MAKEARRAY, N: 2},
		push(Number(4)),
		push(String("grown")),
		{Op: SETARRAYELEM},
		{Op: ENDSTATEMENT},
	}
	result, _, _ := runCode(t, instrs)
	arr := result.AsArray()
	if len(arr) != 5 {
		t.Fatalf("got length %d, want 5", len(arr))
	}
	if arr[4].Type != TString || arr[4].AsString() != "grown" {
		t.Fatalf("got %v at index 4", arr[4].Format())
	}
	if !arr[2].IsNil() || !arr[3].IsNil() {
		t.Fatalf("expected the filled gap to be nil, got %v", result.Format())
	}
}

func TestTypeMismatchOnUnknownOperatorPairLogsDiagnostic(t *testing.T) {
	instrs := []Instruction{
		push(Number(1)),
		push(Bool(true)),
		{Op: CALLBINARY, Name: "+"},
		{Op: ENDSTATEMENT},
	}
	result, _, logger := runCode(t, instrs)
	if !result.IsNil() {
		t.Fatalf("got %v, want nil", result.Format())
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindTypeMismatch {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestThrowUnwindsToCatchRangeAndBindsValue(t *testing.T) {
	machine, _ := newMachine()
	registry := machine.Operators
	registry.RegisterNullar("raiseit", func(args ...Value) (Value, error) {
		return Nil(), Throw(diagnostics.Location{}, String("boom"))
	})

	code := &Code{
		File: "catch.sqf",
		Instructions: []Instruction{
			{Op: CALLNULAR, Name: "raiseit"}, // 0: throws
			{Op: ENDSTATEMENT},               // 1: never reached directly
			{Op: GETVARIABLE, Name: "_err"},  // 2: catch handler starts here
			{Op: ENDSTATEMENT},               // 3
		},
		CatchFrom: 0,
		CatchTo:   1,
		CatchVar:  "_err",
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	result, _, err := machine.Run(frame, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Type != TString || result.AsString() != "boom" {
		t.Fatalf("got %v, want the thrown value bound to _err", result.Format())
	}
}

func TestUnhandledThrowReturnsError(t *testing.T) {
	machine, _ := newMachine()
	registry := machine.Operators
	registry.RegisterNullar("raiseit", func(args ...Value) (Value, error) {
		return Nil(), Throw(diagnostics.Location{}, String("boom"))
	})
	code := &Code{
		File:      "uncaught.sqf",
		CatchFrom: 1,
		CatchTo:   0,
		Instructions: []Instruction{
			{Op: CALLNULAR, Name: "raiseit"},
			{Op: ENDSTATEMENT},
		},
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	_, _, err := machine.Run(frame, 0)
	if err == nil {
		t.Fatal("expected an unhandled-throw error")
	}
}

func TestBudgetExceededStopsExecutionMidFrame(t *testing.T) {
	machine, _ := newMachine()
	instrs := []Instruction{
		push(Number(1)),
		{Op: ENDSTATEMENT},
		push(Number(2)),
		{Op: ENDSTATEMENT},
		push(Number(3)),
		{Op: ENDSTATEMENT},
	}
	code := &Code{Instructions: instrs, File: "budget.sqf", CatchFrom: 1, CatchTo: 0}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	_, executed, err := machine.Run(frame, 2)
	if err != ErrBudgetExceeded {
		t.Fatalf("got err %v, want ErrBudgetExceeded", err)
	}
	if executed != 2 {
		t.Fatalf("got executed=%d, want 2", executed)
	}
}

func TestCallBindsThisMagicVariable(t *testing.T) {
	machine, _ := newMachine()
	code := &Code{
		File: "callee.sqf",
		Instructions: []Instruction{
			{Op: GETVARIABLE, Name: "_this"},
			{Op: ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	result, _, err := machine.Call(code, nil, NewNamespace(NamespaceMission), Number(99), 0)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if result.Type != TNumber || result.AsNumber() != 99 {
		t.Fatalf("got %v, want 99", result.Format())
	}
}

func TestScopeNameSetsFrameFieldOnce(t *testing.T) {
	machine, logger := newMachine()
	code := &Code{
		File: "scope.sqf",
		Instructions: []Instruction{
			push(String("loop")),
			{Op: CALLUNARY, Name: "scopeName"},
			{Op: ENDSTATEMENT},
			push(String("again")),
			{Op: CALLUNARY, Name: "scopeName"},
			{Op: ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	if _, _, err := machine.Run(frame, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if frame.ScopeName != "loop" {
		t.Fatalf("got ScopeName %q, want loop", frame.ScopeName)
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindScopeNameAlreadySet {
		t.Fatalf("expected one ScopeNameAlreadySet diagnostic, got %+v", logger.logged)
	}
}

func TestScriptNameSetsFrameField(t *testing.T) {
	machine, logger := newMachine()
	code := &Code{
		File: "script.sqf",
		Instructions: []Instruction{
			push(String("worker")),
			{Op: CALLUNARY, Name: "scriptName"},
			{Op: ENDSTATEMENT},
		},
		CatchFrom: 1,
		CatchTo:   0,
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	if _, _, err := machine.Run(frame, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if frame.ScriptName != "worker" {
		t.Fatalf("got ScriptName %q, want worker", frame.ScriptName)
	}
	if len(logger.logged) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestEqualOnCyclicArrayDoesNotRecurseForever(t *testing.T) {
	cyclic := make([]Value, 1)
	cyclic[0] = Array(cyclic)
	v := Array(cyclic)
	if !Equal(v, v) {
		t.Fatal("expected a cyclic array to compare equal to itself without recursing forever")
	}
}

func TestStrOnCyclicArrayEmitsArrayRecursion(t *testing.T) {
	machine, logger := newMachine()
	cyclic := make([]Value, 1)
	cyclic[0] = Array(cyclic)
	code := &Code{
		Instructions: []Instruction{
			push(Array(cyclic)),
			{Op: CALLUNARY, Name: "str"},
			{Op: ENDSTATEMENT},
		},
		File:      "strcycle.sqf",
		CatchFrom: 1,
		CatchTo:   0,
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	result, _, err := machine.Run(frame, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Type != TString || result.AsString() != "[[...]]" {
		t.Fatalf("got %v, want [[...]]", result.Format())
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindArrayRecursion {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestArrayEqualityOnCyclicArraysEmitsArrayRecursion(t *testing.T) {
	machine, logger := newMachine()
	cyclic := make([]Value, 1)
	cyclic[0] = Array(cyclic)
	v := Array(cyclic)
	code := &Code{
		Instructions: []Instruction{
			push(v),
			push(v),
			{Op: CALLBINARY, Name: "=="},
			{Op: ENDSTATEMENT},
		},
		File:      "eqcycle.sqf",
		CatchFrom: 1,
		CatchTo:   0,
	}
	frame := NewFrame(code, nil, NewNamespace(NamespaceMission))
	result, _, err := machine.Run(frame, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Truthy() {
		t.Fatalf("got %v, want true", result.Format())
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindArrayRecursion {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestCallDiagnosesMagicVariableTypeMismatchWhenSignatureDeclared(t *testing.T) {
	machine, logger := newMachine()
	code := &Code{
		Instructions: []Instruction{{Op: ENDSTATEMENT}},
		File:         "typed.sqf",
		CatchFrom:    1,
		CatchTo:      0,
		ThisType:     TNumber,
		ThisTypeSet:  true,
	}
	if _, _, err := machine.Call(code, nil, NewNamespace(NamespaceMission), String("wrong type"), 0); err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if len(logger.logged) != 1 || logger.logged[0].Kind != diagnostics.KindMagicVariableTypeMismatch {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestCallAcceptsAnyThisWhenNoSignatureDeclared(t *testing.T) {
	machine, logger := newMachine()
	code := &Code{
		Instructions: []Instruction{{Op: ENDSTATEMENT}},
		File:         "untyped.sqf",
		CatchFrom:    1,
		CatchTo:      0,
	}
	if _, _, err := machine.Call(code, nil, NewNamespace(NamespaceMission), String("anything"), 0); err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if len(logger.logged) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", logger.logged)
	}
}

func TestDisassembleProducesOneLinePerInstruction(t *testing.T) {
	code := &Code{
		Instructions: []Instruction{
			push(Number(1)),
			{Op: CALLUNARY, Name: "-", Line: 1},
			{Op: ENDSTATEMENT, Line: 1},
		},
	}
	out := Disassemble(code, "snippet")
	if out == "" {
		t.Fatal("expected non-empty disassembly")
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 1+len(code.Instructions) {
		t.Fatalf("got %d lines, want a header plus one per instruction (%d): %q", len(lines), 1+len(code.Instructions), out)
	}
}
