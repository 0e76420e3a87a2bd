// Package manifest builds and maintains the aggregated tool catalogue
// (spec §4.D "Manifest Registry"): a live view of every configured
// server's status, tool count, and inferred categories, plus an event-hook
// system and an on-disk cache consulted at startup.
package manifest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcproxygw/mcgateway/internal/observe"
	"github.com/mcproxygw/mcgateway/internal/supervisor"
)

// ServerStatus enumerates the lifecycle state of one server entry in the
// manifest (spec §3 "Manifest").
type ServerStatus string

const (
	StatusRunning ServerStatus = "running"
	StatusDown    ServerStatus = "down"
	StatusUnknown ServerStatus = "unknown"
)

// ServerEntry is one server's row in the aggregated manifest.
type ServerEntry struct {
	Name       string       `json:"name"`
	Status     ServerStatus `json:"status"`
	ToolCount  int          `json:"tool_count"`
	Categories []string     `json:"categories"`
	Tools      []ToolEntry  `json:"tools,omitempty"`
}

// ToolEntry is one tool's row, retaining its owning server's raw name
// (unprefixed) plus the category derived from it.
type ToolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Manifest is the aggregated, point-in-time snapshot of every server's
// tool catalogue.
type Manifest struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Servers     map[string]ServerEntry `json:"servers"`
}

// Registry owns the live manifest, rebuilding it from a supervisor.Pool on
// demand and firing lifecycle events as it does so.
type Registry struct {
	mu       sync.RWMutex
	current  Manifest
	pool     *supervisor.Pool
	hooks    *HookManager
	cacheTTL time.Duration
}

// NewRegistry constructs a Registry backed by pool. cacheTTL governs
// [Registry.WarmFromCache]'s staleness check when the caller loads the
// on-disk cache; zero means the 3600-second default (spec §4.D "Cache").
func NewRegistry(pool *supervisor.Pool, cacheTTL time.Duration) *Registry {
	return &Registry{
		pool:     pool,
		hooks:    NewHookManager(),
		cacheTTL: cacheTTL,
		current:  Manifest{Servers: map[string]ServerEntry{}},
	}
}

// Hooks returns the registry's event-hook manager.
func (r *Registry) Hooks() *HookManager { return r.hooks }

// Current returns the most recently built manifest snapshot.
func (r *Registry) Current() Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Rebuild walks every server the pool knows about (alive or not) and
// produces a fresh manifest, replacing the current snapshot and firing a
// manual event hook. Dead servers are listed with [StatusDown] and zero
// tools rather than omitted (spec §4.D "Status reporting").
func (r *Registry) Rebuild() Manifest {
	start := time.Now()
	names := r.pool.Names()
	servers := make(map[string]ServerEntry, len(names))

	for _, name := range names {
		child, ok := r.pool.Get(name)
		if !ok {
			continue
		}
		entry := ServerEntry{Name: name, Status: StatusDown}
		if child.IsAlive() {
			entry.Status = StatusRunning
			tools := child.Tools()
			entry.ToolCount = len(tools)
			entry.Tools = make([]ToolEntry, 0, len(tools))
			catSet := map[string]bool{}
			for _, t := range tools {
				cat := Categorize(t.Name)
				catSet[cat] = true
				entry.Tools = append(entry.Tools, ToolEntry{Name: t.Name, Description: t.Description, Category: cat, InputSchema: t.InputSchema})
			}
			entry.Categories = sortedKeys(catSet)
		}
		servers[name] = entry
	}

	m := Manifest{GeneratedAt: time.Now(), Servers: servers}
	r.mu.Lock()
	r.current = m
	r.mu.Unlock()

	r.hooks.Fire(EventManual, m)
	observe.DefaultMetrics().RecordManifestRebuild(context.Background(), time.Since(start).Seconds())
	return m
}

// Invalidate discards the in-memory manifest snapshot and fires the
// config_change event, matching the built-in side effect spec §4.D assigns
// to that event type. Callers rebuild afterward; Invalidate itself never
// touches the pool.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.current = Manifest{Servers: map[string]ServerEntry{}}
	m := r.current
	r.mu.Unlock()
	r.hooks.Fire(EventConfigChange, m)
}

// SetServerHealth patches server's status field in place on the live
// snapshot if present, and fires the server_health event (spec §4.D
// "server_health with {server, status} → patch that server's status field
// in place if present").
func (r *Registry) SetServerHealth(server string, status ServerStatus) {
	r.mu.Lock()
	entry, ok := r.current.Servers[server]
	if ok {
		entry.Status = status
		r.current.Servers[server] = entry
	}
	m := r.current
	r.mu.Unlock()
	r.hooks.Fire(EventServerHealth, m)
}

// Categorize derives a tool's category from the first "__"-delimited
// segment of its raw (unprefixed) name, falling back to "general" when no
// delimiter is present (spec §4.D "Category inference").
func Categorize(toolName string) string {
	if i := strings.Index(toolName, "__"); i > 0 {
		return toolName[:i]
	}
	return "general"
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
