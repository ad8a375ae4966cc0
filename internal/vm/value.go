// Package vm implements the stack-oriented virtual machine: its value
// model, instruction set, call frames, scope chain, and the operator
// registry the call opcodes dispatch through.
package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType identifies which variant of the tagged union a Value holds.
type ValueType uint8

const (
	TNil ValueType = iota
	TBool
	TNumber
	TString
	TArray
	TCode
	TObjectHandle
	TConfigNode
	TScriptHandle
	TSideType
)

var typeNames = [...]string{
	TNil:          "NIL",
	TBool:         "BOOL",
	TNumber:       "SCALAR",
	TString:       "STRING",
	TArray:        "ARRAY",
	TCode:         "CODE",
	TObjectHandle: "OBJECT",
	TConfigNode:   "CONFIG",
	TScriptHandle: "SCRIPT",
	TSideType:     "SIDE",
}

func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "UNKNOWN"
}

// Value is a stack-allocated tagged union, the same shape the teacher's own
// interpreter core uses: small scalars (Bool, Number) live in Data with no
// heap allocation, everything else is boxed in Obj.
type Value struct {
	Type ValueType
	Data uint64
	Obj  any
}

// ScriptHandle names a ScriptContext across its lifetime. It is opaque and,
// per the scheduler's contract, never reused within a runtime instance.
type ScriptHandle string

// ObjectHandle is an opaque reference into the host simulation's object
// table. The simulation itself is an external collaborator; the VM only
// needs a comparable, printable token to pass around.
type ObjectHandle struct {
	ID uint64
}

// ConfigNode is an opaque reference into a host-supplied hierarchical
// configuration tree (e.g. a class/inheritance database). Like
// ObjectHandle, the tree's contents are external; the VM only carries the
// reference.
type ConfigNode struct {
	Path string
}

// SideType is a closed enumeration of simulation-side affiliations.
type SideType uint8

const (
	SideUnknown SideType = iota
	SideWest
	SideEast
	SideGuerrilla
	SideCivilian
)

var sideNames = [...]string{
	SideUnknown:   "UNKNOWN",
	SideWest:      "WEST",
	SideEast:      "EAST",
	SideGuerrilla: "GUER",
	SideCivilian:  "CIV",
}

func (s SideType) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return "UNKNOWN"
}

// Code is the instruction list a Frame executes: the lowered form of a code
// block, whether a script body, a function literal, or a catch handler.
type Code struct {
	Instructions []Instruction
	File         string
	// CatchFrom/CatchTo, when CatchFrom <= CatchTo, mark the guarded
	// instruction range: a throw raised while the PC is inside it clears
	// the stack, binds the thrown value to CatchVar (when set), and resumes
	// at CatchTo+1, where the handler starts.
	CatchFrom, CatchTo int
	CatchVar           string

	// ThisType/ThisTypeSet declare the callee's expected type for the
	// magic _this variable, for code that was compiled with a signature
	// (e.g. a typed function literal). Call diagnoses a mismatch rather
	// than silently binding; code with no declared signature (ThisTypeSet
	// false, the zero value) accepts whatever _this it is called with, as
	// it always has.
	ThisType    ValueType
	ThisTypeSet bool
}

// Constructors.

func Nil() Value { return Value{Type: TNil} }

func Bool(b bool) Value {
	var d uint64
	if b {
		d = 1
	}
	return Value{Type: TBool, Data: d}
}

func Number(n float64) Value {
	return Value{Type: TNumber, Data: math.Float64bits(n)}
}

func String(s string) Value { return Value{Type: TString, Obj: s} }

func Array(items []Value) Value { return Value{Type: TArray, Obj: items} }

func CodeVal(c *Code) Value { return Value{Type: TCode, Obj: c} }

func ObjectHandleVal(h ObjectHandle) Value { return Value{Type: TObjectHandle, Obj: h} }

func ConfigNodeVal(c ConfigNode) Value { return Value{Type: TConfigNode, Obj: c} }

func ScriptHandleVal(h ScriptHandle) Value { return Value{Type: TScriptHandle, Obj: h} }

func SideVal(s SideType) Value { return Value{Type: TSideType, Data: uint64(s)} }

// Accessors. Callers are expected to check Type first, same discipline the
// teacher's own Value type uses. The Obj-backed accessors (AsString,
// AsArray, AsCode, AsObjectHandle, AsConfigNode, AsScriptHandle) panic on
// mismatch; AsBool, AsNumber and AsSideType reinterpret Data without
// checking Type.

func (v Value) AsBool() bool { return v.Data != 0 }

func (v Value) AsNumber() float64 { return math.Float64frombits(v.Data) }

func (v Value) AsString() string { return v.Obj.(string) }

func (v Value) AsArray() []Value { return v.Obj.([]Value) }

func (v Value) AsCode() *Code { return v.Obj.(*Code) }

func (v Value) AsObjectHandle() ObjectHandle { return v.Obj.(ObjectHandle) }

func (v Value) AsConfigNode() ConfigNode { return v.Obj.(ConfigNode) }

func (v Value) AsScriptHandle() ScriptHandle { return v.Obj.(ScriptHandle) }

func (v Value) AsSideType() SideType { return SideType(v.Data) }

// IsNil reports whether v holds the Nil variant.
func (v Value) IsNil() bool { return v.Type == TNil }

// Truthy implements the engine's boolean-coercion rule for conditions:
// only an actual Bool true counts; every other value, including Nil and
// numeric zero, is false.
func (v Value) Truthy() bool {
	return v.Type == TBool && v.Data != 0
}

// Format renders v for hint/diag/string-concat purposes. Arrays guard
// against the ArrayRecursion diagnostic's condition by tracking a seen-set
// of slice identities rather than recursing unbounded. Use FormatChecked
// at call sites that need to know whether that guard actually fired.
func (v Value) Format() string {
	s, _ := v.FormatChecked()
	return s
}

// FormatChecked is Format plus a cyclic flag reporting whether a recursive
// array was detected and collapsed to "[...]" — callers with a diagnostics
// sink and a Location (e.g. the "str" operator) use the flag to emit
// ArrayRecursion.
func (v Value) FormatChecked() (string, bool) {
	var b strings.Builder
	cyclic := formatInto(&b, v, nil)
	return b.String(), cyclic
}

func formatInto(b *strings.Builder, v Value, seen []any) bool {
	switch v.Type {
	case TNil:
		b.WriteString("nil")
	case TBool:
		b.WriteString(strconv.FormatBool(v.AsBool()))
	case TNumber:
		b.WriteString(strconv.FormatFloat(v.AsNumber(), 'g', -1, 64))
	case TString:
		b.WriteString(v.AsString())
	case TArray:
		arr := v.AsArray()
		for _, s := range seen {
			if sameArray(s, v.Obj) {
				b.WriteString("[...]")
				return true
			}
		}
		seen = append(seen, v.Obj)
		b.WriteByte('[')
		cyclic := false
		for i, item := range arr {
			if i > 0 {
				b.WriteString(", ")
			}
			if formatInto(b, item, seen) {
				cyclic = true
			}
		}
		b.WriteByte(']')
		return cyclic
	case TCode:
		b.WriteString("<code>")
	case TObjectHandle:
		fmt.Fprintf(b, "<object:%d>", v.AsObjectHandle().ID)
	case TConfigNode:
		fmt.Fprintf(b, "<config:%s>", v.AsConfigNode().Path)
	case TScriptHandle:
		fmt.Fprintf(b, "<script:%s>", v.AsScriptHandle())
	case TSideType:
		b.WriteString(v.AsSideType().String())
	default:
		b.WriteString("<?>")
	}
	return false
}

func sameArray(a, b any) bool {
	as, ok := a.([]Value)
	if !ok {
		return false
	}
	bs, ok := b.([]Value)
	if !ok {
		return false
	}
	return len(as) > 0 && len(bs) > 0 && &as[0] == &bs[0]
}

// seenPair records one array-identity pair already being compared further
// up the recursion, so a cyclic array compares without recursing forever.
type seenPair struct {
	a, b any
}

// Equal implements the engine's value-equality rule: same type and same
// content; arrays compare element-wise. Guards against recursive arrays the
// same way Format does — a pair revisited down the same comparison chain is
// treated as equal rather than recursed into again. Code and ConfigNode
// values never compare equal, not even to themselves. Use EqualChecked at
// call sites that need to know whether that guard actually fired.
func Equal(a, b Value) bool {
	eq, _ := EqualChecked(a, b)
	return eq
}

// EqualChecked is Equal plus a cyclic flag reporting whether the comparison
// crossed a recursive array pair — callers with a diagnostics sink and a
// Location (e.g. the array "==" operator) use the flag to emit
// ArrayRecursion.
func EqualChecked(a, b Value) (equal, cyclic bool) {
	return equalInto(a, b, nil)
}

func equalInto(a, b Value, seen []seenPair) (equal, cyclic bool) {
	if a.Type != b.Type {
		return false, false
	}
	switch a.Type {
	case TNil:
		return true, false
	case TBool:
		return a.AsBool() == b.AsBool(), false
	case TNumber:
		return a.AsNumber() == b.AsNumber(), false
	case TString:
		return a.AsString() == b.AsString(), false
	case TArray:
		for _, p := range seen {
			if sameArray(p.a, a.Obj) && sameArray(p.b, b.Obj) {
				return true, true
			}
		}
		aa, bb := a.AsArray(), b.AsArray()
		if len(aa) != len(bb) {
			return false, false
		}
		seen = append(seen, seenPair{a.Obj, b.Obj})
		anyCyclic := false
		for i := range aa {
			eq, c := equalInto(aa[i], bb[i], seen)
			if c {
				anyCyclic = true
			}
			if !eq {
				return false, anyCyclic
			}
		}
		return true, anyCyclic
	case TObjectHandle:
		return a.AsObjectHandle().ID == b.AsObjectHandle().ID, false
	case TScriptHandle:
		return a.AsScriptHandle() == b.AsScriptHandle(), false
	case TSideType:
		return a.AsSideType() == b.AsSideType(), false
	default:
		return false, false
	}
}
