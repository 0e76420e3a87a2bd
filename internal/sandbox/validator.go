// Package sandbox implements pre-execution static validation (spec §4.F)
// and isolated execution (spec §4.G) of user-submitted code against the
// aggregated tool catalogue.
package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxCodeSizeBytes bounds a submission's UTF-8 byte length
// (spec §4.F "Size gate"; 50 * 1024 in the original).
const MaxCodeSizeBytes = 50 * 1024

// BlockedImports names import paths a submission may not reference. Every
// entry here is a package capable of touching the filesystem, network, or
// process table directly — the exact concerns the original's
// os/sys/subprocess/socket/http/urllib/requests/shutil/tempfile/
// multiprocessing deny-list targets.
var BlockedImports = map[string]bool{
	"os":           true,
	"os/exec":      true,
	"os/user":      true,
	"os/signal":    true,
	"io/ioutil":    true,
	"net":          true,
	"net/http":     true,
	"net/rpc":      true,
	"net/smtp":     true,
	"syscall":      true,
	"unsafe":       true,
	"plugin":       true,
	"runtime/debug": true,
}

// BlockedCallables names unqualified (non-selector) function identifiers a
// submission may not call directly. Unlike Python, Go's dangerous
// operations are almost all package-qualified (os.Remove, exec.Command),
// so the import deny-list above carries most of the real enforcement;
// this list exists to preserve the "direct unqualified call" mechanism
// the contract specifies and to block process-disruptive builtins.
var BlockedCallables = map[string]bool{
	"panic": true,
}

// ValidationError is returned, carrying the rejection reason, for any
// rejected submission. Callers match on it with errors.As to distinguish a
// validation rejection from an internal failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate runs the full pre-execution pipeline (spec §4.F): size gate,
// NFKC normalization, comment stripping, parse, import/callable deny-list
// checks. It returns nil only if code is safe to embed into a driver.
func Validate(code string) error {
	if len(code) > MaxCodeSizeBytes {
		return &ValidationError{Reason: fmt.Sprintf("code exceeds maximum size of %d bytes", MaxCodeSizeBytes)}
	}

	normalized := norm.NFKC.String(code)
	stripped := stripComments(normalized)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "submission.go", stripped, parser.SkipObjectResolution)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("syntax error: %v", err)}
	}

	if imp := firstBlockedImport(file); imp != "" {
		return &ValidationError{Reason: fmt.Sprintf("blocked import detected: %s", imp)}
	}
	if fn := firstBlockedCallable(file); fn != "" {
		return &ValidationError{Reason: fmt.Sprintf("blocked call detected: %s", fn)}
	}
	return nil
}

// firstBlockedImport returns the first import path in file matching
// [BlockedImports], or "" if none.
func firstBlockedImport(file *ast.File) string {
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if BlockedImports[path] {
			return path
		}
	}
	return ""
}

// firstBlockedCallable walks file's AST for a direct call to an
// unqualified identifier in [BlockedCallables]. A call through a selector
// expression (pkg.Fn(...) or value.Method(...)) is never flagged — only
// bare Fn(...) calls are in scope, matching the original's
// `isinstance(node.func, ast.Name)` check.
func firstBlockedCallable(file *ast.File) string {
	var found string
	ast.Inspect(file, func(n ast.Node) bool {
		if found != "" {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		ident, ok := call.Fun.(*ast.Ident)
		if !ok {
			return true
		}
		if BlockedCallables[ident.Name] {
			found = ident.Name
			return false
		}
		return true
	})
	return found
}

// stripComments removes line and block comments from src while leaving
// string/rune/raw-string literal contents untouched, mirroring the
// original's line-oriented, string-state-tracking comment scanner. It
// operates on raw text rather than the parsed AST so that validation
// analyzes the same surface the parser itself will (SkipObjectResolution
// still parses comments out, but this pass runs first so a comment cannot
// be crafted to hide, e.g., an import path from a naive substring scan
// elsewhere in the pipeline).
func stripComments(src string) string {
	var out strings.Builder
	const (
		none = iota
		inLineComment
		inBlockComment
		inString
		inRawString
		inRune
	)
	state := none
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch state {
		case inLineComment:
			if c == '\n' {
				state = none
				out.WriteRune(c)
			}
			continue
		case inBlockComment:
			if c == '*' && next == '/' {
				state = none
				i++
			}
			continue
		case inString:
			out.WriteRune(c)
			if c == '\\' {
				if i+1 < len(runes) {
					out.WriteRune(runes[i+1])
					i++
				}
				continue
			}
			if c == '"' {
				state = none
			}
			continue
		case inRawString:
			out.WriteRune(c)
			if c == '`' {
				state = none
			}
			continue
		case inRune:
			out.WriteRune(c)
			if c == '\\' {
				if i+1 < len(runes) {
					out.WriteRune(runes[i+1])
					i++
				}
				continue
			}
			if c == '\'' {
				state = none
			}
			continue
		}

		switch {
		case c == '/' && next == '/':
			state = inLineComment
			i++
		case c == '/' && next == '*':
			state = inBlockComment
			i++
		case c == '"':
			state = inString
			out.WriteRune(c)
		case c == '`':
			state = inRawString
			out.WriteRune(c)
		case c == '\'':
			state = inRune
			out.WriteRune(c)
		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}
