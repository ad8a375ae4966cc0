// Package preprocessor turns source text plus a starting PathInfo into a
// flat, macro-expanded string suitable for a parser, expanding #include,
// #define/#undef, and #ifdef/#ifndef/#else/#endif the way a C-family
// preprocessor does, adapted to the host language's own macro and include
// conventions.
package preprocessor

import (
	"fmt"
	"strings"

	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/fileio"
	"github.com/arclattice/sqfvm/internal/token"
)

// Preprocessor holds state that must survive across the whole run: the
// macro table (a #define in an included file stays visible to its
// includer, same as the host language's own preprocessor) and the include
// stack used for cycle detection. The conditional stack, by contrast, is
// local to each file being processed — it must balance before that file's
// own EOF.
type Preprocessor struct {
	Macros          map[string]*Macro
	resolver        *fileio.Resolver
	logger          diagnostics.Logger
	classicIncludes bool

	includeStack []string
	currentPath  fileio.PathInfo
	softErrors   bool
}

// New builds a Preprocessor bound to a resolver and a diagnostics sink.
// classicIncludes controls whether a quoted #include resolves relative to
// the including file first, the way `enable_classic_includes` does.
func New(resolver *fileio.Resolver, logger diagnostics.Logger, classicIncludes bool) *Preprocessor {
	return &Preprocessor{
		Macros:          make(map[string]*Macro),
		resolver:        resolver,
		logger:          logger,
		classicIncludes: classicIncludes,
	}
}

// Define registers a macro up front, e.g. for host-supplied callback
// macros like __FILE__ or __LINE__ that a caller wires in before running
// Preprocess.
func (p *Preprocessor) Define(m Macro) {
	p.Macros[m.Name] = &m
}

func (p *Preprocessor) emit(d diagnostics.Diagnostic) {
	if d.Severity >= diagnostics.Error {
		p.softErrors = true
	}
	if p.logger != nil {
		p.logger.Log(d)
	}
}

// Preprocess reads the file at root and returns the fully expanded text.
// ok is false only for a fatal condition — the root file itself could not
// be read. softErrors reports whether any Error-or-above diagnostic fired
// along the way, even though output was still produced.
func (p *Preprocessor) Preprocess(root fileio.PathInfo) (text string, softErrors bool, ok bool) {
	src, err := p.resolver.ReadFile(root)
	if err != nil {
		p.emit(diagnostics.NewFileNotFound(diagnostics.Location{}, root.Virtual))
		return "", true, false
	}
	p.includeStack = append(p.includeStack, root.Physical)
	out := p.preprocessFile(src, root)
	p.includeStack = p.includeStack[:len(p.includeStack)-1]
	return out, p.softErrors, true
}

// preprocessFile runs the directive/expansion loop over one file's text.
// path is the PathInfo of the file being read, used both for diagnostics
// and as the anchor for relative #include resolution.
func (p *Preprocessor) preprocessFile(src string, path fileio.PathInfo) string {
	prevPath := p.currentPath
	p.currentPath = path
	defer func() { p.currentPath = prevPath }()

	var stack []condFrame
	var out strings.Builder

	line := 1
	i := 0
	for i < len(src) {
		lineStart := i
		k := lineStart
		for k < len(src) && isHSpace(src[k]) {
			k++
		}
		isDirective := k < len(src) && src[k] == '#'

		lineEnd := strings.IndexByte(src[i:], '\n')
		var thisLine string
		var nextPos int
		hadNewline := lineEnd >= 0
		if hadNewline {
			thisLine = src[i : i+lineEnd]
			nextPos = i + lineEnd + 1
		} else {
			thisLine = src[i:]
			nextPos = len(src)
		}

		// The directive/plain-line token carries the exact column the
		// preprocessor is scanning at — HASH for a directive's leading
		// '#' (per its doc comment), OTHER for everything else — so
		// diagnostics point at where the scan actually is, not just the
		// line.
		col := k - lineStart + 1
		kind := token.OTHER
		if isDirective {
			kind = token.HASH
		}
		loc := diagnostics.FromToken(token.Token{Kind: kind, File: path.Virtual, Line: line, Column: col})

		switch {
		case isDirective:
			if spliced := p.handleDirective(strings.TrimSpace(thisLine[k-lineStart+1:]), &stack, loc, path); spliced != "" {
				out.WriteString(spliced)
				out.WriteString(fmt.Sprintf("#line %d %q\n", line+1, path.Virtual))
			}
		case active(stack):
			out.WriteString(p.expand(thisLine, map[string]bool{}, loc))
		}
		if hadNewline {
			out.WriteByte('\n')
		}

		i = nextPos
		line++
	}

	if len(stack) > 0 {
		p.emit(diagnostics.NewMissingEndif(diagnostics.Location{File: path.Virtual, Line: line}))
	}
	return out.String()
}

// handleDirective processes one directive line. Only #include produces
// text to splice into the output stream; everything else either mutates
// state or emits a diagnostic.
func (p *Preprocessor) handleDirective(body string, stack *[]condFrame, loc diagnostics.Location, path fileio.PathInfo) string {
	word, rest := splitWord(body)
	switch word {
	case "ifdef", "ifndef":
		name, _ := splitWord(rest)
		_, exists := p.Macros[name]
		taken := exists
		kind := condIfdef
		if word == "ifndef" {
			taken = !exists
			kind = condIfndef
		}
		*stack = append(*stack, condFrame{kind: kind, taken: taken})
		return ""
	case "else":
		if len(*stack) == 0 {
			p.emit(diagnostics.NewElseWithoutIf(loc))
			return ""
		}
		top := &(*stack)[len(*stack)-1]
		if top.inElse {
			p.emit(diagnostics.NewDuplicateElse(loc))
			return ""
		}
		top.taken = !top.taken
		top.inElse = true
		return ""
	case "endif":
		if len(*stack) == 0 {
			p.emit(diagnostics.NewUnexpectedEndif(loc))
			return ""
		}
		*stack = (*stack)[:len(*stack)-1]
		return ""
	}

	if !active(*stack) {
		return ""
	}

	switch word {
	case "define":
		p.handleDefine(rest, loc)
	case "undef":
		name, _ := splitWord(rest)
		if _, ok := p.Macros[name]; !ok {
			p.emit(diagnostics.NewMacroUndefinedIgnored(loc, name))
			return ""
		}
		delete(p.Macros, name)
	case "include":
		return p.handleInclude(rest, loc, path)
	}
	return ""
}

func splitWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	end := 0
	for end < len(s) && !isHSpace(s[end]) {
		end++
	}
	return s[:end], strings.TrimLeft(s[end:], " \t")
}

func (p *Preprocessor) handleDefine(rest string, loc diagnostics.Location) {
	if rest == "" {
		return
	}
	i := 0
	for i < len(rest) && isIdentPart(rest[i]) {
		i++
	}
	name := rest[:i]
	if name == "" {
		return
	}

	var params []string
	body := strings.TrimLeft(rest[i:], " \t")
	isCallable := false
	if i < len(rest) && rest[i] == '(' {
		isCallable = true
		close := strings.IndexByte(rest[i:], ')')
		if close < 0 {
			return
		}
		paramList := rest[i+1 : i+close]
		for _, part := range strings.Split(paramList, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				params = append(params, part)
			}
		}
		body = strings.TrimLeft(rest[i+close+1:], " \t")
	}

	if _, exists := p.Macros[name]; exists {
		p.emit(diagnostics.NewMacroDefinedTwice(loc, name))
	}
	m := Macro{Name: name, Parameters: params, Body: body, IsCallable: isCallable, DefinitionSite: loc}
	p.Macros[name] = &m
}

// handleInclude resolves, cycle-checks, and recursively preprocesses an
// #include target, returning the spliced text (empty on any failure —
// the caller has already logged a diagnostic in that case).
func (p *Preprocessor) handleInclude(rest string, loc diagnostics.Location, path fileio.PathInfo) string {
	quoted, raw := parseIncludeTarget(rest)
	if raw == "" {
		p.emit(diagnostics.NewIncludeFailed(loc, rest))
		return ""
	}

	var current fileio.PathInfo
	if p.classicIncludes && quoted {
		current = path
	}
	target, ok := p.resolver.GetInfoVirtual(raw, current)
	if !ok && current != (fileio.PathInfo{}) {
		target, ok = p.resolver.GetInfoVirtual(raw, fileio.PathInfo{})
	}
	if !ok {
		p.emit(diagnostics.NewIncludeFailed(loc, raw))
		return ""
	}

	for _, open := range p.includeStack {
		if open == target.Physical {
			chain := append(append([]string{}, p.includeStack...), target.Physical)
			p.emit(diagnostics.NewRecursiveInclude(loc, chain))
			return ""
		}
	}

	src, err := p.resolver.ReadFile(target)
	if err != nil {
		p.emit(diagnostics.NewIncludeFailed(loc, raw))
		return ""
	}

	p.includeStack = append(p.includeStack, target.Physical)
	included := p.preprocessFile(src, target)
	p.includeStack = p.includeStack[:len(p.includeStack)-1]
	return included
}

// parseIncludeTarget extracts the path text from `"path"` or `<path>`,
// reporting which delimiter was used since classic-include resolution
// only anchors quoted includes to the current file.
func parseIncludeTarget(rest string) (quoted bool, path string) {
	rest = strings.TrimSpace(rest)
	if len(rest) >= 2 && rest[0] == '"' {
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return true, rest[1 : end+1]
		}
	}
	if len(rest) >= 2 && rest[0] == '<' {
		if end := strings.IndexByte(rest[1:], '>'); end >= 0 {
			return false, rest[1 : end+1]
		}
	}
	return false, ""
}
