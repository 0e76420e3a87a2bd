package sandbox

import "fmt"

// renderDriver generates the runtime support file that accompanies a
// validated submission into `go run` (spec §4.G "Wrapping"). It embeds the
// namespace-pruned manifest as a literal constant, defines the capability
// proxy injected into the submission's scope, and supplies main() plus the
// single-JSON-object output contract. The submission itself is compiled as
// a sibling file in the same ad-hoc package (spec §9 "statically-typed
// targets should emit typed stubs... and expose call_tool as the universal
// path" — here realized as the API type below).
//
// A submission is expected to define:
//
//	func Run(api *API) (any, error)
//
// which the generated main() invokes, recovering any panic into the
// traceback field rather than letting the subprocess exit non-zero
// (spec §4.G "Result assembly" treats a captured traceback and a non-zero
// exit as distinct outcomes; a panic is reported the former way so the
// caller sees a structured reason rather than a bare exit code).
func renderDriver(namespace, prunedManifestJSON string) string {
	return fmt.Sprintf(driverTemplate, backtickQuote(prunedManifestJSON), namespace)
}

// backtickQuote renders s as a Go raw string literal, escaping any
// embedded backtick (JSON never itself requires one, but this keeps the
// generator correct if a tool name or description ever smuggles one in).
func backtickQuote(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '`' {
			escaped += "` + \"`\" + `"
			continue
		}
		escaped += string(r)
	}
	return "`" + escaped + "`"
}

const driverTemplate = `package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// manifestJSON is this execution's namespace-pruned tool catalogue
// (spec §4.G: "Embeds the current manifest... pruned to fields the
// sandbox needs").
const manifestJSON = %s

// namespaceName is the caller's namespace, supplied by the gateway — never
// inferred or defaulted (spec §4.G "Contract with the gateway": a null or
// empty namespace is a caller error at the Runner boundary, not here).
const namespaceName = %q

type pendingCall struct {
	Server string         ` + "`json:\"server\"`" + `
	Tool   string         ` + "`json:\"tool\"`" + `
	Args   map[string]any ` + "`json:\"args\"`" + `
}

var pendingCalls []pendingCall

// ServerHandle is a namespace-scoped handle on one child server — the
// statically-typed stand-in for the original's dynamic
// "api.server(name).tool(**kwargs)" attribute lookup (spec §9).
type ServerHandle struct {
	name    string
	allowed bool
}

// Call records a tool invocation against this handle's server. The
// sandbox process has no socket back into the gateway: it never performs
// a synchronous round-trip, it only appends to pendingCalls, which main()
// emits as "pending_calls" in its output (spec §2). The Runner decodes that
// list but neither returns nor replays it.
func (h ServerHandle) Call(tool string, args map[string]any) (any, error) {
	if !h.allowed {
		return nil, fmt.Errorf("namespace %%q does not grant access to server %%q", namespaceName, h.name)
	}
	pendingCalls = append(pendingCalls, pendingCall{Server: h.name, Tool: tool, Args: args})
	return map[string]any{"pending": true, "server": h.name, "tool": tool}, nil
}

// API is the capability object injected into sandboxed code (spec §4.G
// "capability proxy api").
type API struct {
	manifest map[string]any
	servers  map[string]bool
}

// Server returns a handle scoped to name. It never panics or refuses
// outright — an out-of-namespace handle is still returned so that Call's
// own check can produce the structured per-call denial the spec requires.
func (a *API) Server(name string) ServerHandle {
	return ServerHandle{name: name, allowed: a.servers[name]}
}

// CallTool is the universal convenience path, equivalent to
// Server(server).Call(tool, args) (spec §9 "expose call_tool as the
// universal path").
func (a *API) CallTool(server, tool string, args map[string]any) (any, error) {
	return a.Server(server).Call(tool, args)
}

// Manifest returns the namespace-pruned manifest handed to this execution.
func (a *API) Manifest() map[string]any {
	return a.manifest
}

func newAPI() *API {
	var doc map[string]any
	if err := json.Unmarshal([]byte(manifestJSON), &doc); err != nil {
		doc = map[string]any{}
	}
	servers := map[string]bool{}
	if s, ok := doc["servers"].(map[string]any); ok {
		for name := range s {
			servers[name] = true
		}
	}
	return &API{manifest: doc, servers: servers}
}

// runSubmission invokes the submission's Run function, converting any
// panic into a traceback string rather than letting it crash the process
// (spec §7 "surface-once, never panic" applies inside the sandbox too).
func runSubmission(api *API) (result any, traceback string) {
	defer func() {
		if r := recover(); r != nil {
			traceback = fmt.Sprintf("panic: %%v", r)
		}
	}()
	res, err := Run(api)
	if err != nil {
		return nil, err.Error()
	}
	return res, ""
}

func main() {
	api := newAPI()
	result, traceback := runSubmission(api)
	out := struct {
		Result       any           ` + "`json:\"result\"`" + `
		Traceback    string        ` + "`json:\"traceback\"`" + `
		PendingCalls []pendingCall ` + "`json:\"pending_calls\"`" + `
	}{Result: result, Traceback: traceback, PendingCalls: pendingCalls}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %%v\n", err)
		os.Exit(1)
	}
}
`
