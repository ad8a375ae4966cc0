package diagnostics

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Diagnostic is a structured message carrying a Location and a closed Kind,
// plus whatever typed fields that Kind documents. Format renders the exact
// prefix existing tooling parses: "[L<line>[C<col>|<path>]\t<body>".
type Diagnostic struct {
	Severity Severity
	Loc      Location
	Kind     Kind

	// Payload fields. Only the ones relevant to Kind are populated;
	// constructors below enforce that per kind.
	Name     string
	Path     string
	Chain    []string
	Expected int
	Got      int
	Count    uint64
	Types    []string
	Message  string
}

func (d Diagnostic) body() string {
	switch d.Kind {
	case KindFileNotFound:
		return fmt.Sprintf("file not found: %s", d.Path)
	case KindIncludeFailed:
		return fmt.Sprintf("include failed: %s", d.Path)
	case KindRecursiveInclude:
		return fmt.Sprintf("recursive include detected: %s", strings.Join(d.Chain, " -> "))
	case KindMacroDefinedTwice:
		return fmt.Sprintf("macro '%s' defined twice, replacing previous definition", d.Name)
	case KindMacroUndefinedIgnored:
		return fmt.Sprintf("#undef of unknown macro '%s' ignored", d.Name)
	case KindArgCountMismatch:
		return fmt.Sprintf("macro '%s' expects %d argument(s), got %d", d.Name, d.Expected, d.Got)
	case KindMissingEndif:
		return "missing #endif at end of file"
	case KindUnexpectedEndif:
		return "#endif without matching #ifdef/#ifndef"
	case KindElseWithoutIf:
		return "#else without matching #ifdef/#ifndef"
	case KindDuplicateElse:
		return "duplicate #else for the same conditional"
	case KindUnassignedVariable:
		return fmt.Sprintf("variable '%s' used before assignment", d.Name)
	case KindMagicVariableTypeMismatch:
		return fmt.Sprintf("_this has type %s, expected %s", typeOrDash(d.Types, 0), typeOrDash(d.Types, 1))
	case KindScopeNameAlreadySet:
		return "scopeName already set for this frame"
	case KindScriptNameAlreadySet:
		return "scriptName already set for this frame"
	case KindSuspensionInUnscheduledEnvironment:
		return "attempted to suspend inside an unscheduled context"
	case KindMaximumInstructionCountReached:
		return fmt.Sprintf("maximum instruction count reached (%s)", humanize.Comma(int64(d.Count)))
	case KindScriptHandleAlreadyFinished:
		return fmt.Sprintf("script handle %s already finished", d.Name)
	case KindScriptHandleAlreadyTerminated:
		return fmt.Sprintf("script handle %s already terminated", d.Name)
	case KindNumberOutOfRange:
		return fmt.Sprintf("number out of range: %s", d.Message)
	case KindArrayRecursion:
		return "recursive array reference detected"
	case KindTypeMismatch:
		return fmt.Sprintf("no operator '%s' for operand types (%s)", d.Name, strings.Join(d.Types, ", "))
	case KindUnhandledException:
		return fmt.Sprintf("unhandled exception: %s", d.Message)
	case KindExpectedArraySizeMissmatchWeak:
		return fmt.Sprintf("expected array of size %d, got %d", d.Expected, d.Got)
	default:
		return d.Message
	}
}

func typeOrDash(types []string, idx int) string {
	if idx < len(types) {
		return types[idx]
	}
	return "?"
}

// Format renders the exact wire format existing tooling parses:
// "[L<line>[C<col>|<path>]\t<body>". The inner "[C" is literal and always
// present, even when Column is zero — matching the original engine's
// LogLocationInfo::format(), which always appends "[C" unconditionally.
func (d Diagnostic) Format() string {
	var loc strings.Builder
	loc.WriteString("[L")
	loc.WriteString(fmt.Sprintf("%d", d.Loc.Line))
	loc.WriteString("[C")
	loc.WriteString(fmt.Sprintf("%d", d.Loc.Column))
	if d.Loc.File != "" {
		loc.WriteByte('|')
		loc.WriteString(d.Loc.File)
	}
	loc.WriteByte(']')
	return loc.String() + "\t" + d.body()
}

func (d Diagnostic) Error() string { return d.Format() }

// Constructors. Each fixes the Severity the spec assigns that Kind and
// populates only the fields relevant to it.

func NewFileNotFound(loc Location, path string) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindFileNotFound, Path: path}
}

func NewIncludeFailed(loc Location, path string) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindIncludeFailed, Path: path}
}

func NewRecursiveInclude(loc Location, chain []string) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindRecursiveInclude, Chain: chain}
}

func NewMacroDefinedTwice(loc Location, name string) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindMacroDefinedTwice, Name: name}
}

func NewMacroUndefinedIgnored(loc Location, name string) Diagnostic {
	return Diagnostic{Severity: Verbose, Loc: loc, Kind: KindMacroUndefinedIgnored, Name: name}
}

func NewArgCountMismatch(loc Location, name string, expected, got int) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindArgCountMismatch, Name: name, Expected: expected, Got: got}
}

func NewMissingEndif(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindMissingEndif}
}

func NewUnexpectedEndif(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindUnexpectedEndif}
}

func NewElseWithoutIf(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindElseWithoutIf}
}

func NewDuplicateElse(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindDuplicateElse}
}

func NewUnassignedVariable(loc Location, name string) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindUnassignedVariable, Name: name}
}

func NewMagicVariableTypeMismatch(loc Location, got, expected string) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindMagicVariableTypeMismatch, Types: []string{got, expected}}
}

func NewScopeNameAlreadySet(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindScopeNameAlreadySet}
}

func NewScriptNameAlreadySet(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindScriptNameAlreadySet}
}

func NewSuspensionInUnscheduledEnvironment(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindSuspensionInUnscheduledEnvironment}
}

func NewMaximumInstructionCountReached(loc Location, count uint64) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindMaximumInstructionCountReached, Count: count}
}

func NewScriptHandleAlreadyFinished(loc Location, handle string) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindScriptHandleAlreadyFinished, Name: handle}
}

func NewScriptHandleAlreadyTerminated(loc Location, handle string) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindScriptHandleAlreadyTerminated, Name: handle}
}

func NewNumberOutOfRange(loc Location, detail string) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindNumberOutOfRange, Message: detail}
}

func NewArrayRecursion(loc Location) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindArrayRecursion}
}

func NewTypeMismatch(loc Location, operator string, types []string) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindTypeMismatch, Name: operator, Types: types}
}

func NewUnhandledException(loc Location, detail string) Diagnostic {
	return Diagnostic{Severity: Error, Loc: loc, Kind: KindUnhandledException, Message: detail}
}

func NewExpectedArraySizeMissmatchWeak(loc Location, expected, got int) Diagnostic {
	return Diagnostic{Severity: Warning, Loc: loc, Kind: KindExpectedArraySizeMissmatchWeak, Expected: expected, Got: got}
}

// DiagnosticError adapts a Diagnostic to the error interface for the
// compile-time band (preprocess/parse/lower), matching the call convention
// `NewError(kind, location, message)` used by the rest of the toolchain.
type DiagnosticError struct {
	Diagnostic
}

func NewError(kind Kind, loc Location, message string) *DiagnosticError {
	return &DiagnosticError{Diagnostic{Severity: Error, Loc: loc, Kind: kind, Message: message}}
}

func (e *DiagnosticError) Error() string { return e.Format() }
