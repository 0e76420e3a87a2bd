package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mcproxygw/mcgateway/internal/observe"
)

// DefaultTimeout matches spec §4.G's default execution timeout.
const DefaultTimeout = 30 * time.Second

// Status enumerates the outcome of a sandbox execution (spec §4.G
// "Result shape").
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the structured outcome returned to the caller, matching the
// original's `{status, result, traceback, execution_time_ms}` contract.
type Result struct {
	Status          Status `json:"status"`
	Result          any    `json:"result"`
	Traceback       string `json:"traceback,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ToolExecutor is the signature of a function that performs one
// server/tool invocation. Runner does not use it: Execute does not replay
// the driver's pending calls. The sandbox process itself never performs
// the call — it only records the request
// (spec §9 "dynamic proxy guidance": record, don't execute synchronously).
type ToolExecutor func(server, tool string, args map[string]any) (any, error)

// Runner validates and executes submissions in an isolated `go run`
// subprocess (spec §4.G "Sandbox Runner").
type Runner struct {
	GoPath  string // defaults to "go" if empty
	WorkDir string // defaults to os.TempDir() if empty
	Timeout time.Duration
}

// NewRunner constructs a Runner with the given default timeout (0 uses
// [DefaultTimeout]).
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{GoPath: "go", WorkDir: os.TempDir(), Timeout: timeout}
}

// Execute validates code, builds a pruned manifest scoped to namespace,
// generates a self-contained driver program, and runs it in a fresh
// subprocess with a minimal fixed environment.
func (r *Runner) Execute(ctx context.Context, code, namespace, fullManifestJSON string) Result {
	start := time.Now()
	result := r.execute(ctx, code, namespace, fullManifestJSON, start)
	observe.DefaultMetrics().RecordSandboxExecution(ctx, string(result.Status), time.Since(start).Seconds())
	return result
}

func (r *Runner) execute(ctx context.Context, code, namespace, fullManifestJSON string, start time.Time) Result {
	if err := Validate(code); err != nil {
		observe.DefaultMetrics().RecordSandboxValidationRejection(ctx)
		return Result{Status: StatusError, Traceback: fmt.Sprintf("validation error: %v", err), ExecutionTimeMs: 0}
	}

	pruned, err := pruneManifest(fullManifestJSON, namespace)
	if err != nil {
		return Result{Status: StatusError, Traceback: fmt.Sprintf("failed to prune manifest: %v", err), ExecutionTimeMs: elapsedMs(start)}
	}

	runID := uuid.NewString()
	driverSrc := renderDriver(namespace, pruned)

	goPath := r.GoPath
	if goPath == "" {
		goPath = "go"
	}
	workDir := r.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	driverFile := filepath.Join(workDir, fmt.Sprintf("mcgateway-sandbox-%s-driver.go", runID))
	if err := os.WriteFile(driverFile, []byte(driverSrc), 0o600); err != nil {
		return Result{Status: StatusError, Traceback: fmt.Sprintf("failed to stage driver: %v", err), ExecutionTimeMs: elapsedMs(start)}
	}
	defer os.Remove(driverFile)

	submissionFile := filepath.Join(workDir, fmt.Sprintf("mcgateway-sandbox-%s-submission.go", runID))
	if err := os.WriteFile(submissionFile, []byte(code), 0o600); err != nil {
		return Result{Status: StatusError, Traceback: fmt.Sprintf("failed to stage submission: %v", err), ExecutionTimeMs: elapsedMs(start)}
	}
	defer os.Remove(submissionFile)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, goPath, "run", driverFile, submissionFile)
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"GOCACHE=" + filepath.Join(workDir, "mcgateway-sandbox-gocache"),
		"SANDBOX_NAMESPACE=" + namespace,
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := elapsedMs(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Status: StatusError, Traceback: fmt.Sprintf("execution timed out after %s", timeout), ExecutionTimeMs: elapsed}
	}
	if runErr != nil {
		return Result{Status: StatusError, Traceback: firstNonEmpty(stderr.String(), runErr.Error()), ExecutionTimeMs: elapsed}
	}

	var driverOut struct {
		Result       any           `json:"result"`
		Traceback    string        `json:"traceback"`
		PendingCalls []pendingCall `json:"pending_calls"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &driverOut); err != nil {
		out := stdout.String()
		if len(out) > 1000 {
			out = out[:1000]
		}
		return Result{Status: StatusError, Traceback: fmt.Sprintf("failed to parse result: %v\noutput: %s", err, out), ExecutionTimeMs: elapsed}
	}

	if driverOut.Traceback != "" {
		return Result{Status: StatusError, Traceback: driverOut.Traceback, ExecutionTimeMs: elapsed}
	}
	return Result{Status: StatusSuccess, Result: driverOut.Result, ExecutionTimeMs: elapsed}
}

type pendingCall struct {
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
}

// pruneManifest keeps only the servers namespace can access, using gjson
// to read the full document and sjson to assemble the reduced one without
// a full struct round-trip (spec §4.D/§4.G: the sandbox only ever sees a
// namespace-scoped capability view, never the full catalogue).
func pruneManifest(fullManifestJSON, namespace string) (string, error) {
	full := gjson.Parse(fullManifestJSON)
	nsServers := full.Get(fmt.Sprintf("namespaces.%s.servers", gjsonEscape(namespace)))

	pruned := "{}"
	var err error
	pruned, err = sjson.Set(pruned, "namespace", namespace)
	if err != nil {
		return "", err
	}

	allowed := map[string]bool{}
	nsServers.ForEach(func(_, v gjson.Result) bool {
		allowed[v.String()] = true
		return true
	})

	servers := full.Get("servers")
	servers.ForEach(func(key, val gjson.Result) bool {
		name := key.String()
		if !allowed[name] {
			return true
		}
		pruned, err = sjson.SetRaw(pruned, "servers."+gjsonEscape(name), val.Raw)
		return err == nil
	})
	if err != nil {
		return "", err
	}

	nsRaw := full.Get("namespaces." + gjsonEscape(namespace))
	if nsRaw.Exists() {
		pruned, err = sjson.SetRaw(pruned, "namespaces."+gjsonEscape(namespace), nsRaw.Raw)
		if err != nil {
			return "", err
		}
	}
	return pruned, nil
}

// gjsonEscape escapes the characters gjson/sjson treat as path syntax
// (".", "*", "?") inside a path segment so that an arbitrary server or
// namespace name can be embedded as a literal key.
func gjsonEscape(s string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(s)
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
