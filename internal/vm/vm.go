package vm

import (
	"errors"
	"fmt"

	"github.com/arclattice/sqfvm/internal/diagnostics"
)

// ErrThrowUnhandled is wrapped, together with the thrown value, in the error
// Run returns when a throw finds no catch range in its frame, so an
// enclosing Run further up the Go call stack can still catch it.
var ErrThrowUnhandled = errors.New("unhandled exception")

// ErrBudgetExceeded is returned by Run when the caller's instruction
// budget (the scheduler's per-tick or total limit) is exhausted mid-frame.
var ErrBudgetExceeded = errors.New("instruction budget exceeded")

// thrownValue carries a thrown Value up the Go call stack until Run's
// catch-frame search can bind it or give up.
type thrownValue struct {
	value Value
	loc   diagnostics.Location
}

func (thrownValue) Error() string { return "thrown value" }

func isThrow(err error) bool {
	var t thrownValue
	return errors.As(err, &t)
}

// SuspendReason distinguishes the two ways a context can ask the scheduler
// to pause it mid-frame.
type SuspendReason int

const (
	SuspendSleep SuspendReason = iota
	SuspendWaitUntil
)

// SuspendSignal is returned (wrapped in an error) by the host "sleep" and
// "waitUntil" operators. Run propagates it unchanged so the scheduler, not
// the VM, owns the sleep clock and the wait-poll loop.
type SuspendSignal struct {
	Reason   SuspendReason
	Duration float64
	WaitCode *Code
}

func (SuspendSignal) Error() string { return "suspended" }

// AsSuspend reports whether err is (or wraps) a SuspendSignal.
func AsSuspend(err error) (SuspendSignal, bool) {
	var s SuspendSignal
	ok := errors.As(err, &s)
	return s, ok
}

// Sleep builds the error a "sleep" operator returns to suspend its context
// for duration seconds.
func Sleep(duration float64) error {
	return SuspendSignal{Reason: SuspendSleep, Duration: duration}
}

// WaitForCode builds the error a "waitUntil" operator returns to suspend
// its context until code evaluates truthy.
func WaitForCode(code *Code) error {
	return SuspendSignal{Reason: SuspendWaitUntil, WaitCode: code}
}

// isControlFlow reports whether err is a signal Run must propagate as-is
// (throw or suspend) rather than convert into a logged diagnostic and a
// pushed Nil.
func isControlFlow(err error) bool {
	if _, ok := AsSuspend(err); ok {
		return true
	}
	return isThrow(err)
}

// Machine executes Frames against a shared OperatorRegistry and logs
// diagnostics for recoverable faults (missing variable, type mismatch)
// rather than aborting — only an uncaught throw, a suspend, or budget
// exhaustion stop a Run early.
type Machine struct {
	Operators *OperatorRegistry
	Logger    diagnostics.Logger

	// StrictMode elevates certain warnings (currently UnassignedVariable)
	// to errors, per the host's strict_mode configuration option.
	StrictMode bool
}

func New(operators *OperatorRegistry, logger diagnostics.Logger) *Machine {
	return &Machine{Operators: operators, Logger: logger}
}

func (m *Machine) log(d diagnostics.Diagnostic) {
	if m.Logger != nil {
		m.Logger.Log(d)
	}
}

// Run executes frame to completion or until budget instructions have been
// consumed (0 means unlimited), returning the frame's last pushed value and
// the number of instructions actually executed.
func (m *Machine) Run(frame *Frame, budget uint64) (Value, uint64, error) {
	var executed uint64
	result := Nil()

	for frame.PC < len(frame.Code.Instructions) {
		if budget != 0 && executed >= budget {
			return result, executed, ErrBudgetExceeded
		}
		instr := frame.Code.Instructions[frame.PC]
		loc := diagnostics.Location{File: frame.Code.File, Line: instr.Line, Column: instr.Column}

		v, err := m.step(frame, instr, loc)
		executed++
		if err != nil {
			var thrown thrownValue
			if errors.As(err, &thrown) {
				if handled, newPC := m.catch(frame, thrown); handled {
					frame.PC = newPC
					continue
				}
				if errors.Is(err, ErrThrowUnhandled) {
					return result, executed, err
				}
				return result, executed, fmt.Errorf("%w: %w", ErrThrowUnhandled, thrown)
			}
			if _, ok := AsSuspend(err); ok {
				// The suspending call already popped its operands and
				// stands in for its own (conventionally nil) result, so
				// resuming later continues at the instruction right
				// after it rather than re-invoking the same call.
				frame.PC++
			}
			return result, executed, err
		}
		if instr.Op == ENDSTATEMENT {
			result = v
		}
		frame.PC++
	}
	if v, ok := frame.top(); ok {
		result = v
	}
	return result, executed, nil
}

// catch finds the nearest enclosing catch range (walking this frame, since
// the frame stack itself is a Go call stack — callers further up propagate
// via the returned error when this frame has no handler) and returns the
// instruction index execution resumes at.
func (m *Machine) catch(frame *Frame, t thrownValue) (bool, int) {
	if frame.Code.CatchFrom > frame.Code.CatchTo {
		return false, 0
	}
	if frame.PC < frame.Code.CatchFrom || frame.PC > frame.Code.CatchTo {
		return false, 0
	}
	if frame.Code.CatchVar != "" {
		frame.Local.Set(frame.Code.CatchVar, t.value)
	}
	frame.Stack = frame.Stack[:0]
	return true, frame.Code.CatchTo + 1
}

func (m *Machine) step(frame *Frame, instr Instruction, loc diagnostics.Location) (Value, error) {
	switch instr.Op {
	case ENDSTATEMENT:
		v, ok := frame.pop()
		if !ok {
			v = Nil()
		}
		return v, nil

	case PUSH:
		frame.push(instr.Value)
		return Value{}, nil

	case GETVARIABLE:
		v, ok := m.lookup(frame, instr.Name)
		if !ok {
			d := diagnostics.NewUnassignedVariable(loc, instr.Name)
			if m.StrictMode {
				d.Severity = diagnostics.Error
			}
			m.log(d)
			v = Nil()
		}
		frame.push(v)
		return Value{}, nil

	case ASSIGNTO:
		v, ok := frame.pop()
		if !ok {
			v = Nil()
		}
		m.assign(frame, instr.Name, v)
		frame.push(v)
		return Value{}, nil

	case ASSIGNTOLOCAL:
		v, ok := frame.pop()
		if !ok {
			v = Nil()
		}
		frame.Local.Set(instr.Name, v)
		frame.push(v)
		return Value{}, nil

	case CALLNULAR:
		entry, ok := m.Operators.Nullar(instr.Name)
		if !ok {
			m.log(diagnostics.NewTypeMismatch(loc, instr.Name, nil))
			frame.push(Nil())
			return Value{}, nil
		}
		result, err := entry.Fn()
		if err != nil {
			if isControlFlow(err) {
				if _, ok := AsSuspend(err); ok {
					frame.push(Nil())
				}
				return Value{}, err
			}
			m.log(diagnostics.NewNumberOutOfRange(loc, err.Error()))
			frame.push(Nil())
			return Value{}, nil
		}
		frame.push(result)
		return Value{}, nil

	case CALLUNARY:
		operand, ok := frame.pop()
		if !ok {
			operand = Nil()
		}
		entry, ok := m.Operators.Unary(instr.Name, operand.Type)
		if !ok {
			m.log(diagnostics.NewTypeMismatch(loc, instr.Name, []string{operand.Type.String()}))
			frame.push(Nil())
			return Value{}, nil
		}
		result, err := entry.Fn(operand)
		if err != nil {
			if sig, ok := err.(setScopeNameSignal); ok {
				if !frame.setScopeName(sig.name) {
					m.log(diagnostics.NewScopeNameAlreadySet(loc))
				}
				frame.push(Nil())
				return Value{}, nil
			}
			if sig, ok := err.(setScriptNameSignal); ok {
				if !frame.setScriptName(sig.name) {
					m.log(diagnostics.NewScriptNameAlreadySet(loc))
				}
				frame.push(Nil())
				return Value{}, nil
			}
			if _, ok := err.(arrayRecursionSignal); ok {
				m.log(diagnostics.NewArrayRecursion(loc))
				frame.push(result)
				return Value{}, nil
			}
			if isControlFlow(err) {
				if _, ok := AsSuspend(err); ok {
					frame.push(Nil())
				}
				return Value{}, err
			}
			m.log(diagnostics.NewNumberOutOfRange(loc, err.Error()))
			frame.push(Nil())
			return Value{}, nil
		}
		frame.push(result)
		return Value{}, nil

	case CALLBINARY:
		right, ok := frame.pop()
		if !ok {
			right = Nil()
		}
		left, ok := frame.pop()
		if !ok {
			left = Nil()
		}
		entry, ok := m.Operators.Binary(instr.Name, left.Type, right.Type)
		if !ok {
			m.log(diagnostics.NewTypeMismatch(loc, instr.Name, []string{left.Type.String(), right.Type.String()}))
			frame.push(Nil())
			return Value{}, nil
		}
		result, err := entry.Fn(left, right)
		if err != nil {
			if _, ok := err.(arrayRecursionSignal); ok {
				m.log(diagnostics.NewArrayRecursion(loc))
				frame.push(result)
				return Value{}, nil
			}
			if isControlFlow(err) {
				if _, ok := AsSuspend(err); ok {
					frame.push(Nil())
				}
				return Value{}, err
			}
			m.log(diagnostics.NewNumberOutOfRange(loc, err.Error()))
			frame.push(Nil())
			return Value{}, nil
		}
		frame.push(result)
		return Value{}, nil

	case MAKEARRAY:
		n := instr.N
		if n > len(frame.Stack) {
			n = len(frame.Stack)
		}
		items := make([]Value, n)
		copy(items, frame.Stack[len(frame.Stack)-n:])
		frame.Stack = frame.Stack[:len(frame.Stack)-n]
		frame.push(Array(items))
		return Value{}, nil

	case GETARRAYELEM:
		idxVal, ok := frame.pop()
		if !ok {
			idxVal = Nil()
		}
		arrVal, ok := frame.pop()
		if !ok {
			arrVal = Nil()
		}
		if arrVal.Type != TArray || idxVal.Type != TNumber {
			m.log(diagnostics.NewTypeMismatch(loc, "select", []string{arrVal.Type.String(), idxVal.Type.String()}))
			frame.push(Nil())
			return Value{}, nil
		}
		arr := arrVal.AsArray()
		idx := int(idxVal.AsNumber())
		if idx < 0 || idx >= len(arr) {
			m.log(diagnostics.NewExpectedArraySizeMissmatchWeak(loc, idx+1, len(arr)))
			frame.push(Nil())
			return Value{}, nil
		}
		frame.push(arr[idx])
		return Value{}, nil

	case SETARRAYELEM:
		v, ok := frame.pop()
		if !ok {
			v = Nil()
		}
		idxVal, ok := frame.pop()
		if !ok {
			idxVal = Nil()
		}
		arrVal, ok := frame.pop()
		if !ok {
			arrVal = Nil()
		}
		if arrVal.Type != TArray || idxVal.Type != TNumber {
			m.log(diagnostics.NewTypeMismatch(loc, "set", []string{arrVal.Type.String(), idxVal.Type.String()}))
			frame.push(arrVal)
			return Value{}, nil
		}
		arr := arrVal.AsArray()
		idx := int(idxVal.AsNumber())
		if idx < 0 {
			frame.push(arrVal)
			return Value{}, nil
		}
		if idx >= len(arr) {
			grown := make([]Value, idx+1)
			copy(grown, arr)
			for i := len(arr); i < idx; i++ {
				grown[i] = Nil()
			}
			arr = grown
		}
		arr[idx] = v
		frame.push(Array(arr))
		return Value{}, nil
	}

	return Value{}, nil
}

// lookup implements the scope-class search order: underscore names search
// this frame then each enclosing frame's locals; everything else resolves
// against the bound namespace.
func (m *Machine) lookup(frame *Frame, name string) (Value, bool) {
	if isLocalName(name) {
		return frame.lookupLocal(name)
	}
	if frame.Namespace != nil {
		return frame.Namespace.Get(name)
	}
	return Value{}, false
}

func (m *Machine) assign(frame *Frame, name string, v Value) {
	if isLocalName(name) {
		for f := frame; f != nil; f = f.Enclosing {
			if _, ok := f.Local.Get(name); ok {
				f.Local.Set(name, v)
				return
			}
		}
		frame.Local.Set(name, v)
		return
	}
	if frame.Namespace != nil {
		frame.Namespace.Set(name, v)
	}
}

// Throw raises a value for Run's catch search to handle. Host operators
// that implement "throw" should return this from their Fn.
func Throw(loc diagnostics.Location, v Value) error {
	return thrownValue{value: v, loc: loc}
}

// Call invokes code as a fresh frame chained to caller (nil for a top-level
// call), binding args into the magic variable _this per the engine's call
// convention, and runs it to completion against the same budget semantics
// as Run.
func (m *Machine) Call(code *Code, caller *Frame, namespace *Namespace, this Value, budget uint64) (Value, uint64, error) {
	frame := NewFrame(code, caller, namespace)
	if code.ThisTypeSet && this.Type != code.ThisType {
		loc := diagnostics.Location{File: code.File}
		m.log(diagnostics.NewMagicVariableTypeMismatch(loc, this.Type.String(), code.ThisType.String()))
	}
	frame.Local.Set("_this", this)
	return m.Run(frame, budget)
}
