package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcproxygw/mcgateway/internal/manifest"
	"github.com/mcproxygw/mcgateway/internal/observe"
)

// heartbeatInterval matches spec §6's "periodic heartbeat events every 30
// seconds".
const heartbeatInterval = 30 * time.Second

// Handler serves the gateway's external HTTP/SSE surface over a Gateway
// (spec §6 "Wire protocol (client side)").
type Handler struct {
	gw *Gateway
}

// NewHandler wraps gw for HTTP serving.
func NewHandler(gw *Gateway) *Handler {
	return &Handler{gw: gw}
}

// Register adds the gateway's routes to mux, following the same
// mux.HandleFunc("METHOD /path") registration idiom used throughout this
// codebase's other HTTP handlers.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sse", h.handleSSE)
	mux.HandleFunc("GET /sse/{namespace}", h.handleSSE)
	mux.HandleFunc("POST /message", h.handleMessage)
	mux.HandleFunc("POST /sse", h.handleMessage)
}

// namespaceFor resolves the effective namespace for a request: the
// X-Namespace header wins over the {namespace} path segment, and an absent
// value means the implicit default endpoint (spec §6 "Namespace selection").
func namespaceFor(r *http.Request) string {
	if h := r.Header.Get("X-Namespace"); h != "" {
		return h
	}
	return r.PathValue("namespace")
}

// handleSSE opens the announcement stream: a single `endpoint` event naming
// the POST target (and namespace, if any), followed by periodic heartbeats
// until the client disconnects (spec §6). An invalid namespace is rejected
// with 404 before any SSE framing is written.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	ns := namespaceFor(r)
	if ns != "" {
		if _, err := h.gw.resolverFor().Resolve(ns); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	endpoint := struct {
		URI       string `json:"uri"`
		Namespace string `json:"namespace,omitempty"`
	}{URI: "/message", Namespace: ns}
	data, err := json.Marshal(endpoint)
	if err != nil {
		http.Error(w, "failed to announce endpoint", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", data)
	flusher.Flush()

	observe.DefaultMetrics().ActiveSSEConnections.Add(r.Context(), 1)
	defer observe.DefaultMetrics().ActiveSSEConnections.Add(r.Context(), -1)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

// handleMessage decodes one JSON-RPC request and dispatches it to
// initialize / tools/list / tools/call (spec §6).
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPC(w, errorResponse(nil, codeParseError, err.Error()))
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, errorResponse(nil, codeParseError, "invalid JSON-RPC request: "+err.Error()))
		return
	}

	ns := namespaceFor(r)
	switch req.Method {
	case "initialize":
		writeRPC(w, h.handleInitialize(req, ns))
	case "tools/list":
		writeRPC(w, resultResponse(req.ID, map[string]any{
			"tools": []toolDefinition{searchToolDefinition, executeToolDefinition},
		}))
	case "tools/call":
		writeRPC(w, h.handleToolsCall(r, req, ns))
	default:
		writeRPC(w, errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method))
	}
}

func (h *Handler) handleInitialize(req rpcRequest, ns string) rpcResponse {
	result := initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      serverInfo{Name: gatewayName, Version: gatewayVersion},
	}
	if ns != "" {
		servers, err := h.gw.resolverFor().Resolve(ns)
		if err != nil {
			return errorResponse(req.ID, codeInternalError, err.Error())
		}
		result.Servers = servers
	}
	return resultResponse(req.ID, result)
}

func (h *Handler) handleToolsCall(r *http.Request, req rpcRequest, ns string) rpcResponse {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "malformed params: "+err.Error())
		}
	}

	switch params.Name {
	case "search":
		return h.dispatchSearch(req, ns, params.Arguments)
	case "execute":
		return h.dispatchExecute(r, req, ns, params.Arguments)
	case "":
		return errorResponse(req.ID, codeInvalidParams, "missing required field 'name'")
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown tool: "+params.Name)
	}
}

func (h *Handler) dispatchSearch(req rpcRequest, ns string, rawArgs json.RawMessage) rpcResponse {
	var args searchArguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "malformed search arguments: "+err.Error())
		}
	}

	var candidates []string
	if ns != "" {
		servers, err := h.gw.resolverFor().Resolve(ns)
		if err != nil {
			return errorResponse(req.ID, codeInternalError, err.Error())
		}
		candidates = servers
	}

	results := h.gw.registry.Search(args.Query, candidates, manifest.Depth(args.Depth))
	return resultResponse(req.ID, map[string]any{"results": results, "total_matches": len(results)})
}

func (h *Handler) dispatchExecute(r *http.Request, req rpcRequest, ns string, rawArgs json.RawMessage) rpcResponse {
	if ns == "" {
		return errorResponse(req.ID, codeInvalidParams, "execute requires a namespace (path segment or X-Namespace header)")
	}

	var args executeArguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "malformed execute arguments: "+err.Error())
		}
	}
	if args.Code == "" {
		return errorResponse(req.ID, codeInvalidParams, "missing required field 'code'")
	}

	scoped, err := h.gw.buildScopedManifestJSON(ns)
	if err != nil {
		return errorResponse(req.ID, codeInternalError, err.Error())
	}

	result := h.gw.runner.Execute(r.Context(), args.Code, ns, scoped)
	return resultResponse(req.ID, result)
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("server: failed to encode JSON-RPC response", "error", err)
	}
}
