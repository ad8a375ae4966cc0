package vm

import "fmt"

// OperatorEntry is one registered implementation of an operator name for a
// specific pair of operand types. The full built-in operator library is an
// external concern; this registry and the handful of entries
// DefaultOperatorRegistry installs exist so CALLNULAR/CALLUNARY/CALLBINARY have something real to
// dispatch through.
type OperatorEntry struct {
	Name  string
	Left  ValueType
	Right ValueType
	Arity int
	Fn    func(args ...Value) (Value, error)
}

// anyType is used in the dispatch key for operators that accept every type on
// a given side (e.g. unary "str" on any Value).
const anyType ValueType = 255

type opKey struct {
	name  string
	left  ValueType
	right ValueType
}

// OperatorRegistry dispatches a (name, leftType, rightType) triple to the
// OperatorEntry that matches, mirroring the teacher's own dispatch-by-type
// mechanism but generalized from single to dual operand typing.
type OperatorRegistry struct {
	nullar map[string]OperatorEntry
	unary  map[opKey]OperatorEntry
	binary map[opKey]OperatorEntry
}

func NewOperatorRegistry() *OperatorRegistry {
	return &OperatorRegistry{
		nullar: make(map[string]OperatorEntry),
		unary:  make(map[opKey]OperatorEntry),
		binary: make(map[opKey]OperatorEntry),
	}
}

func (r *OperatorRegistry) RegisterNullar(name string, fn func(args ...Value) (Value, error)) {
	r.nullar[foldName(name)] = OperatorEntry{Name: name, Arity: 0, Fn: fn}
}

func (r *OperatorRegistry) RegisterUnary(name string, operand ValueType, fn func(args ...Value) (Value, error)) {
	r.unary[opKey{name: foldName(name), left: operand}] = OperatorEntry{Name: name, Left: operand, Arity: 1, Fn: fn}
}

func (r *OperatorRegistry) RegisterBinary(name string, left, right ValueType, fn func(args ...Value) (Value, error)) {
	r.binary[opKey{name: foldName(name), left: left, right: right}] = OperatorEntry{Name: name, Left: left, Right: right, Arity: 2, Fn: fn}
}

func (r *OperatorRegistry) Nullar(name string) (OperatorEntry, bool) {
	e, ok := r.nullar[foldName(name)]
	return e, ok
}

func (r *OperatorRegistry) Unary(name string, operand ValueType) (OperatorEntry, bool) {
	if e, ok := r.unary[opKey{name: foldName(name), left: operand}]; ok {
		return e, true
	}
	e, ok := r.unary[opKey{name: foldName(name), left: anyType}]
	return e, ok
}

func (r *OperatorRegistry) Binary(name string, left, right ValueType) (OperatorEntry, bool) {
	if e, ok := r.binary[opKey{name: foldName(name), left: left, right: right}]; ok {
		return e, true
	}
	if e, ok := r.binary[opKey{name: foldName(name), left: anyType, right: right}]; ok {
		return e, true
	}
	if e, ok := r.binary[opKey{name: foldName(name), left: left, right: anyType}]; ok {
		return e, true
	}
	e, ok := r.binary[opKey{name: foldName(name), left: anyType, right: anyType}]
	return e, ok
}

var errDivideByZero = fmt.Errorf("divide by zero")

// setScopeNameSignal/setScriptNameSignal carry the requested name out of
// the scopeName/scriptName operators through the ordinary Fn error return,
// the same way SuspendSignal carries sleep/waitUntil's request — the
// actual frame mutation needs Frame access an OperatorEntry.Fn doesn't
// have, so CALLUNARY's handler intercepts these and applies them directly.
type setScopeNameSignal struct{ name string }

func (setScopeNameSignal) Error() string { return "set scope name" }

type setScriptNameSignal struct{ name string }

func (setScriptNameSignal) Error() string { return "set script name" }

// arrayRecursionSignal carries a "the value just produced crossed a
// recursive array" notice out of an operator's Fn alongside its (still
// valid) result — CALLUNARY/CALLBINARY push the result as usual and log
// ArrayRecursion, rather than treating this as a failed call.
type arrayRecursionSignal struct{}

func (arrayRecursionSignal) Error() string { return "array recursion detected" }

// DefaultOperatorRegistry installs a small set of real arithmetic,
// comparison, and string operators, enough to drive CALLNULAR/CALLUNARY/
// CALLBINARY end to end without pretending to be the full built-in library.
func DefaultOperatorRegistry() *OperatorRegistry {
	r := NewOperatorRegistry()

	r.RegisterNullar("nil", func(args ...Value) (Value, error) { return Nil(), nil })

	r.RegisterUnary("sleep", TNumber, func(args ...Value) (Value, error) {
		return Nil(), Sleep(args[0].AsNumber())
	})
	r.RegisterUnary("waituntil", TCode, func(args ...Value) (Value, error) {
		return Nil(), WaitForCode(args[0].AsCode())
	})
	r.RegisterUnary("scopename", TString, func(args ...Value) (Value, error) {
		return Nil(), setScopeNameSignal{name: args[0].AsString()}
	})
	r.RegisterUnary("scriptname", TString, func(args ...Value) (Value, error) {
		return Nil(), setScriptNameSignal{name: args[0].AsString()}
	})

	r.RegisterUnary("-", TNumber, func(args ...Value) (Value, error) {
		return Number(-args[0].AsNumber()), nil
	})
	r.RegisterUnary("!", TBool, func(args ...Value) (Value, error) {
		return Bool(!args[0].AsBool()), nil
	})
	r.RegisterUnary("not", TBool, func(args ...Value) (Value, error) {
		return Bool(!args[0].AsBool()), nil
	})
	r.RegisterUnary("str", anyType, func(args ...Value) (Value, error) {
		s, cyclic := args[0].FormatChecked()
		if cyclic {
			return String(s), arrayRecursionSignal{}
		}
		return String(s), nil
	})
	r.RegisterUnary("count", TArray, func(args ...Value) (Value, error) {
		return Number(float64(len(args[0].AsArray()))), nil
	})

	r.RegisterBinary("+", TNumber, TNumber, func(args ...Value) (Value, error) {
		return Number(args[0].AsNumber() + args[1].AsNumber()), nil
	})
	r.RegisterBinary("-", TNumber, TNumber, func(args ...Value) (Value, error) {
		return Number(args[0].AsNumber() - args[1].AsNumber()), nil
	})
	r.RegisterBinary("*", TNumber, TNumber, func(args ...Value) (Value, error) {
		return Number(args[0].AsNumber() * args[1].AsNumber()), nil
	})
	r.RegisterBinary("/", TNumber, TNumber, func(args ...Value) (Value, error) {
		if args[1].AsNumber() == 0 {
			return Nil(), errDivideByZero
		}
		return Number(args[0].AsNumber() / args[1].AsNumber()), nil
	})
	r.RegisterBinary("+", TString, TString, func(args ...Value) (Value, error) {
		return String(args[0].AsString() + args[1].AsString()), nil
	})
	r.RegisterBinary("+", TArray, TArray, func(args ...Value) (Value, error) {
		left, right := args[0].AsArray(), args[1].AsArray()
		out := make([]Value, 0, len(left)+len(right))
		out = append(out, left...)
		out = append(out, right...)
		return Array(out), nil
	})
	r.RegisterBinary("==", TNumber, TNumber, func(args ...Value) (Value, error) {
		return Bool(args[0].AsNumber() == args[1].AsNumber()), nil
	})
	r.RegisterBinary("==", TString, TString, func(args ...Value) (Value, error) {
		return Bool(args[0].AsString() == args[1].AsString()), nil
	})
	r.RegisterBinary("==", TArray, TArray, func(args ...Value) (Value, error) {
		eq, cyclic := EqualChecked(args[0], args[1])
		if cyclic {
			return Bool(eq), arrayRecursionSignal{}
		}
		return Bool(eq), nil
	})
	r.RegisterBinary("<", TNumber, TNumber, func(args ...Value) (Value, error) {
		return Bool(args[0].AsNumber() < args[1].AsNumber()), nil
	})
	r.RegisterBinary(">", TNumber, TNumber, func(args ...Value) (Value, error) {
		return Bool(args[0].AsNumber() > args[1].AsNumber()), nil
	})
	r.RegisterBinary("&&", TBool, TBool, func(args ...Value) (Value, error) {
		return Bool(args[0].AsBool() && args[1].AsBool()), nil
	})
	r.RegisterBinary("||", TBool, TBool, func(args ...Value) (Value, error) {
		return Bool(args[0].AsBool() || args[1].AsBool()), nil
	})

	return r
}
