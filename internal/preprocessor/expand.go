package preprocessor

import (
	"strings"

	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/token"
)

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isHSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// expand walks text looking for macro invocations, leaving string literals
// untouched. active names the macros currently being expanded on this
// occurrence's call chain; they are emitted literally instead of recursed
// into, which is what keeps a self-referential body from looping forever
// without needing a global guard.
func (p *Preprocessor) expand(text string, activeNames map[string]bool, loc diagnostics.Location) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case isIdentStart(c):
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			name := text[i:j]
			i = p.expandIdentifier(name, text, i, j, activeNames, loc, &out)
		case c == '"' || c == '\'':
			j := skipStringLiteral(text, i, c)
			out.WriteString(text[i:j])
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// expandIdentifier resolves one identifier token that starts at text[i:j].
// It returns the new scan position (past either the bare identifier or the
// whole macro invocation it turned out to be).
func (p *Preprocessor) expandIdentifier(name, text string, i, j int, activeNames map[string]bool, loc diagnostics.Location, out *strings.Builder) int {
	if activeNames[name] {
		out.WriteString(name)
		return j
	}
	m, ok := p.Macros[name]
	if !ok {
		out.WriteString(name)
		return j
	}

	if !m.IsCallable {
		if m.Callback != nil {
			out.WriteString(m.Callback(*m, loc, p.currentPath, nil, p))
		} else {
			out.WriteString(p.expand(m.Body, withActive(activeNames, name), loc))
		}
		return j
	}

	k := j
	for k < len(text) && isHSpace(text[k]) {
		k++
	}
	if k >= len(text) || text[k] != '(' {
		// Not actually invoked — no '(' follows, so it stays a plain identifier.
		out.WriteString(name)
		return j
	}

	args, afterParen, balanced := parseArgs(text, k)
	if !balanced {
		out.WriteString(name)
		return j
	}
	if len(m.Parameters) == 0 && len(args) == 1 && args[0] == "" {
		args = nil
	}
	if len(args) != len(m.Parameters) {
		tok := token.Token{Kind: token.IDENT, Text: name, File: loc.File, Line: loc.Line, Column: i + 1}
		p.emit(diagnostics.NewArgCountMismatch(diagnostics.FromToken(tok), name, len(m.Parameters), len(args)))
		out.WriteString(text[i:afterParen])
		return afterParen
	}

	if m.Callback != nil {
		out.WriteString(m.Callback(*m, loc, p.currentPath, args, p))
		return afterParen
	}
	// Arguments are expanded in the caller's own context before they are
	// substituted in, so a macro passed as an argument to itself (e.g.
	// ADD(1, ADD(2,3))) still expands — only literal occurrences of the
	// macro's own name written directly in its body are guarded.
	expandedArgs := make([]string, len(args))
	for idx, a := range args {
		expandedArgs[idx] = p.expand(a, activeNames, loc)
	}
	substituted := substituteParams(m.Body, m.Parameters, expandedArgs)
	out.WriteString(p.expand(substituted, withActive(activeNames, name), loc))
	return afterParen
}

func withActive(activeNames map[string]bool, name string) map[string]bool {
	next := make(map[string]bool, len(activeNames)+1)
	for k := range activeNames {
		next[k] = true
	}
	next[name] = true
	return next
}

// parseArgs splits the comma-separated, parenthesis-balanced argument list
// starting at text[open] (which must be '('). It returns the trimmed
// argument texts and the position just past the matching ')'.
func parseArgs(text string, open int) ([]string, int, bool) {
	depth := 0
	start := open + 1
	var args []string
	i := open
	for i < len(text) {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				args = append(args, strings.TrimSpace(text[start:i]))
				return args, i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		case '"', '\'':
			i = skipStringLiteral(text, i, text[i]) - 1
		}
		i++
	}
	return nil, len(text), false
}

// substituteParams textually replaces every whole-identifier occurrence of
// a parameter name in body with its corresponding argument text.
func substituteParams(body string, params []string, args []string) string {
	if len(params) == 0 {
		return body
	}
	lookup := make(map[string]string, len(params))
	for idx, p := range params {
		lookup[p] = args[idx]
	}

	var out strings.Builder
	i := 0
	for i < len(body) {
		c := body[i]
		if isIdentStart(c) {
			j := i + 1
			for j < len(body) && isIdentPart(body[j]) {
				j++
			}
			name := body[i:j]
			if repl, ok := lookup[name]; ok {
				out.WriteString(repl)
			} else {
				out.WriteString(name)
			}
			i = j
			continue
		}
		if c == '"' || c == '\'' {
			j := skipStringLiteral(body, i, c)
			out.WriteString(body[i:j])
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

// skipStringLiteral returns the position just past the string literal that
// starts at text[i] (text[i] == quote). A doubled quote escapes, matching
// the host language's own string syntax.
func skipStringLiteral(text string, i int, quote byte) int {
	j := i + 1
	for j < len(text) {
		if text[j] == quote {
			if j+1 < len(text) && text[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return j
}
