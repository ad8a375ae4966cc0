package preprocessor

import (
	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/fileio"
)

// Callback lets a host give a macro special behavior computed from a
// function rather than stored text. self is the macro being invoked, loc is
// where it is invoked, path is the file that invocation lives in, args are
// the (unexpanded) actual arguments, and pp gives access to the running
// preprocessor for anything else the host needs.
type Callback func(self Macro, loc diagnostics.Location, path fileio.PathInfo, args []string, pp *Preprocessor) string

// Macro is either an object macro (no parameter list), a function-like
// (callable) macro requiring a parenthesized argument list matching its
// parameter count, or a callback macro whose expansion is computed by Go
// code instead of textual substitution.
type Macro struct {
	Name           string
	Parameters     []string
	Body           string
	IsCallable     bool
	Callback       Callback
	DefinitionSite diagnostics.Location
}

func NewObjectMacro(name, body string, loc diagnostics.Location) Macro {
	return Macro{Name: name, Body: body, DefinitionSite: loc}
}

func NewFunctionMacro(name string, params []string, body string, loc diagnostics.Location) Macro {
	return Macro{Name: name, Parameters: params, Body: body, IsCallable: true, DefinitionSite: loc}
}

func NewCallbackMacro(name string, params []string, cb Callback, loc diagnostics.Location) Macro {
	return Macro{Name: name, Parameters: params, IsCallable: len(params) > 0, Callback: cb, DefinitionSite: loc}
}
