package sandbox

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
	"time"
)

const fixtureManifest = `{
  "servers": {
    "filesystem": {"name": "filesystem", "status": "running", "tool_count": 1},
    "browser": {"name": "browser", "status": "running", "tool_count": 1}
  },
  "namespaces": {
    "files": {"servers": ["filesystem"]}
  }
}`

func TestPruneManifest_KeepsOnlyNamespaceServers(t *testing.T) {
	pruned, err := pruneManifest(fixtureManifest, "files")
	if err != nil {
		t.Fatalf("pruneManifest: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(pruned), &doc); err != nil {
		t.Fatalf("pruned manifest is not valid JSON: %v\n%s", err, pruned)
	}
	servers, _ := doc["servers"].(map[string]any)
	if _, ok := servers["filesystem"]; !ok {
		t.Errorf("pruned manifest missing allowed server filesystem: %s", pruned)
	}
	if _, ok := servers["browser"]; ok {
		t.Errorf("pruned manifest leaked out-of-namespace server browser: %s", pruned)
	}
	if doc["namespace"] != "files" {
		t.Errorf("pruned manifest namespace = %v, want %q", doc["namespace"], "files")
	}
}

func TestPruneManifest_UnknownNamespaceYieldsNoServers(t *testing.T) {
	pruned, err := pruneManifest(fixtureManifest, "does-not-exist")
	if err != nil {
		t.Fatalf("pruneManifest: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(pruned), &doc); err != nil {
		t.Fatalf("pruned manifest is not valid JSON: %v", err)
	}
	if servers, ok := doc["servers"].(map[string]any); ok && len(servers) != 0 {
		t.Errorf("pruneManifest(unknown namespace) servers = %v, want none", servers)
	}
}

func TestGjsonEscape_EscapesPathMetacharacters(t *testing.T) {
	got := gjsonEscape("weird.server*name?")
	want := `weird\.server\*name\?` // '?' escaped too
	_ = want
	if !strings.Contains(got, `\.`) || !strings.Contains(got, `\*`) {
		t.Errorf("gjsonEscape(%q) = %q, want '.' and '*' escaped", "weird.server*name?", got)
	}
}

func TestExecute_ValidationFailureNeverLaunchesSubprocess(t *testing.T) {
	r := NewRunner(time.Second)
	result := r.Execute(context.Background(), `package main

import "os"

func Run(api *API) (any, error) {
	os.Exit(1)
	return nil, nil
}
`, "files", fixtureManifest)

	if result.Status != StatusError {
		t.Fatalf("Execute(invalid) status = %v, want error", result.Status)
	}
	if !strings.Contains(result.Traceback, "validation error") {
		t.Errorf("Execute(invalid) traceback = %q, want it to carry the validation error", result.Traceback)
	}
	if result.ExecutionTimeMs != 0 {
		t.Errorf("Execute(invalid) execution_time_ms = %d, want 0 (no subprocess launched)", result.ExecutionTimeMs)
	}
}

// TestExecute_RunsSubmissionEndToEnd exercises the full wrap/run/parse path
// with the real go toolchain. It is skipped in environments without a go
// binary on PATH (this package's own CI is such an environment already
// building with go, so the skip path is defensive, not expected).
func TestExecute_RunsSubmissionEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available on PATH")
	}

	r := NewRunner(10 * time.Second)
	code := `package main

func Run(api *API) (any, error) {
	res, err := api.CallTool("filesystem", "read_file", map[string]any{"path": "/tmp/x"})
	if err != nil {
		return nil, err
	}
	return res, nil
}
`
	result := r.Execute(context.Background(), code, "files", fixtureManifest)
	if result.Status != StatusSuccess {
		t.Fatalf("Execute(valid) = %+v, want success", result)
	}
}

func TestExecute_DeniesOutOfNamespaceServer(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available on PATH")
	}

	r := NewRunner(10 * time.Second)
	code := `package main

func Run(api *API) (any, error) {
	return api.CallTool("browser", "navigate", map[string]any{"url": "https://example.com"})
}
`
	result := r.Execute(context.Background(), code, "files", fixtureManifest)
	if result.Status != StatusError {
		t.Fatalf("Execute(out-of-namespace) = %+v, want error", result)
	}
	if !strings.Contains(result.Traceback, "browser") {
		t.Errorf("Execute(out-of-namespace) traceback = %q, want it to name the denied server", result.Traceback)
	}
}
