package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/mcproxygw/mcgateway/internal/config"
	"github.com/mcproxygw/mcgateway/internal/manifest"
	"github.com/mcproxygw/mcgateway/internal/namespace"
	"github.com/mcproxygw/mcgateway/internal/sandbox"
	"github.com/mcproxygw/mcgateway/internal/supervisor"
)

// Gateway wires the four core subsystems into the surface this package
// dispatches HTTP/SSE requests against. Its resolver is swapped atomically
// on every config reload (spec §5 "namespace/group tables are replaced
// atomically on config change"); the pool and registry mutate themselves
// in place and need no swapping here.
type Gateway struct {
	pool     *supervisor.Pool
	registry *manifest.Registry
	runner   *sandbox.Runner
	reloader *supervisor.Reloader

	resolver atomic.Pointer[namespace.Resolver]
}

// NewGateway constructs a Gateway from already-wired subsystems, building
// its initial resolver from reloader's current configuration.
func NewGateway(pool *supervisor.Pool, registry *manifest.Registry, runner *sandbox.Runner, reloader *supervisor.Reloader) *Gateway {
	g := &Gateway{pool: pool, registry: registry, runner: runner, reloader: reloader}
	g.resolver.Store(namespace.New(reloader.Current()))
	return g
}

// resolverFor returns the currently active resolver. Safe for concurrent use
// with ApplyConfig.
func (g *Gateway) resolverFor() *namespace.Resolver {
	return g.resolver.Load()
}

// ApplyConfig reconciles the pool against newCfg (spec §4.E), then swaps in
// a freshly built resolver and fires the manifest registry's config_change
// and rebuild side effects — the sequence a config-file watcher or an
// administrative reload both drive through the same path.
func (g *Gateway) ApplyConfig(ctx context.Context, newCfg *config.Config) error {
	if err := namespace.Validate(newCfg); err != nil {
		return fmt.Errorf("server: rejecting reload, namespace/group validation failed: %w", err)
	}
	if err := g.reloader.ValidateAndApply(ctx, newCfg); err != nil {
		return err
	}
	g.resolver.Store(namespace.New(newCfg))
	g.registry.Invalidate()
	g.registry.Rebuild()
	return nil
}

// namespaceScopedManifest is the document shape [sandbox.Runner.Execute]
// expects in its fullManifestJSON parameter: the live catalogue plus the
// single namespace entry the runner will prune down to (spec §4.G
// "Embeds the current manifest... pruned to fields the sandbox needs").
type namespaceScopedManifest struct {
	Servers    map[string]manifest.ServerEntry `json:"servers"`
	Namespaces map[string]namespaceServers     `json:"namespaces"`
}

type namespaceServers struct {
	Servers []string `json:"servers"`
}

// buildScopedManifestJSON resolves ns against the active resolver and
// marshals a document pruneManifest can slice down to exactly that
// namespace's accessible servers.
func (g *Gateway) buildScopedManifestJSON(ns string) (string, error) {
	servers, err := g.resolverFor().Resolve(ns)
	if err != nil {
		return "", fmt.Errorf("server: resolving namespace %q: %w", ns, err)
	}
	doc := namespaceScopedManifest{
		Servers:    g.registry.Current().Servers,
		Namespaces: map[string]namespaceServers{ns: {Servers: servers}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("server: marshaling scoped manifest: %w", err)
	}
	return string(data), nil
}
