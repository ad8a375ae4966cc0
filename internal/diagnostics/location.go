package diagnostics

import "github.com/arclattice/sqfvm/internal/token"

// Location is the (file, line, column) triple threaded through tokens, AST
// nodes, instructions and diagnostics.
type Location struct {
	File   string
	Line   int
	Column int
}

// FromToken builds a Location from a lexical token.
func FromToken(t token.Token) Location {
	return Location{File: t.File, Line: t.Line, Column: t.Column}
}

func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	return l.File
}
