package sandbox

import (
	"strings"
	"testing"
)

func TestValidate_CleanProgram(t *testing.T) {
	code := `package main

func Run(api *API) (any, error) {
	return api.CallTool("filesystem", "read_file", map[string]any{"path": "/tmp/x"})
}
`
	if err := Validate(code); err != nil {
		t.Fatalf("Validate(clean) = %v, want nil", err)
	}
}

func TestValidate_BlockedImport(t *testing.T) {
	code := `package main

import "os"

func Run(api *API) (any, error) {
	os.Exit(1)
	return nil, nil
}
`
	err := Validate(code)
	if err == nil {
		t.Fatal("Validate(blocked import) = nil, want error")
	}
	if !strings.Contains(err.Error(), "os") {
		t.Errorf("Validate error = %q, want it to name the blocked import", err.Error())
	}
}

func TestValidate_BlockedImportInsideComment_IsAllowed(t *testing.T) {
	code := `package main

// import "os"

func Run(api *API) (any, error) {
	return nil, nil
}
`
	if err := Validate(code); err != nil {
		t.Errorf("Validate(commented-out import) = %v, want nil", err)
	}
}

func TestValidate_BlockedCallable(t *testing.T) {
	code := `package main

func Run(api *API) (any, error) {
	panic("boom")
}
`
	err := Validate(code)
	if err == nil {
		t.Fatal("Validate(blocked callable) = nil, want error")
	}
	if !strings.Contains(err.Error(), "panic") {
		t.Errorf("Validate error = %q, want it to name the blocked callable", err.Error())
	}
}

func TestValidate_QualifiedCallIsNotFlagged(t *testing.T) {
	// A selector-style call to a method named like a blocked callable must
	// not be flagged — only direct unqualified calls are in scope.
	code := `package main

type thing struct{}

func (thing) panic() {}

func Run(api *API) (any, error) {
	var t thing
	t.panic()
	return nil, nil
}
`
	if err := Validate(code); err != nil {
		t.Errorf("Validate(qualified call) = %v, want nil", err)
	}
}

func TestValidate_SizeGate(t *testing.T) {
	huge := strings.Repeat("a", MaxCodeSizeBytes+1)
	err := Validate(huge)
	if err == nil {
		t.Fatal("Validate(oversized) = nil, want error")
	}
	if !strings.Contains(err.Error(), "maximum size") {
		t.Errorf("Validate error = %q, want size-gate message", err.Error())
	}
}

func TestValidate_SyntaxError(t *testing.T) {
	err := Validate("package main\nfunc Run( {")
	if err == nil {
		t.Fatal("Validate(malformed) = nil, want error")
	}
	if !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("Validate error = %q, want syntax-error message", err.Error())
	}
}

func TestValidate_HomoglyphNormalization(t *testing.T) {
	// NFKC-normalizes a fullwidth "ｏｓ" style homoglyph import path down to
	// plain ASCII before the deny-list check, closing the bypass spec §4.F
	// calls out explicitly.
	code := "package main\n\nimport \"ｏｓ\"\n\nfunc Run(api *API) (any, error) {\n\treturn nil, nil\n}\n"
	err := Validate(code)
	if err == nil {
		t.Fatal("Validate(homoglyph import) = nil, want error after NFKC normalization")
	}
}

func TestStripComments_PreservesHashInStringsNotApplicable(t *testing.T) {
	// Go has no "#" comment syntax, but the stripper must still preserve
	// "//"-like sequences embedded inside string and rune literals.
	src := "package main\n\nconst s = \"http://example.com\" // a comment\n"
	out := stripComments(src)
	if !strings.Contains(out, `"http://example.com"`) {
		t.Errorf("stripComments mangled a string literal: %q", out)
	}
	if strings.Contains(out, "a comment") {
		t.Errorf("stripComments left a line comment in place: %q", out)
	}
}

func TestStripComments_BlockComment(t *testing.T) {
	src := "package main\n\n/* block\ncomment */\nfunc Run(api *API) (any, error) { return nil, nil }\n"
	out := stripComments(src)
	if strings.Contains(out, "block") {
		t.Errorf("stripComments left a block comment in place: %q", out)
	}
}
