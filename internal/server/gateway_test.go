package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mcproxygw/mcgateway/internal/config"
	"github.com/mcproxygw/mcgateway/internal/manifest"
	"github.com/mcproxygw/mcgateway/internal/sandbox"
	"github.com/mcproxygw/mcgateway/internal/supervisor"
)

func testConfig() *config.Config {
	return &config.Config{
		Servers: []config.ServerSpec{{Name: "alpha", Command: "true", Enabled: true}},
		Namespaces: map[string]config.Namespace{
			"default": {Servers: []string{"alpha"}},
		},
	}
}

func newTestGateway(cfg *config.Config) *Gateway {
	pool := supervisor.NewPool()
	reloader := supervisor.NewReloader(pool, cfg)
	registry := manifest.NewRegistry(pool, time.Hour)
	runner := sandbox.NewRunner(5 * time.Second)
	return NewGateway(pool, registry, runner, reloader)
}

func TestGatewayResolverForReflectsInitialConfig(t *testing.T) {
	gw := newTestGateway(testConfig())

	servers, err := gw.resolverFor().Resolve("default")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(servers) != 1 || servers[0] != "alpha" {
		t.Fatalf("Resolve(default) = %v, want [alpha]", servers)
	}
}

func TestGatewayApplyConfigSwapsResolver(t *testing.T) {
	gw := newTestGateway(testConfig())

	newCfg := &config.Config{
		Servers: []config.ServerSpec{{Name: "alpha", Command: "true", Enabled: true}},
		Namespaces: map[string]config.Namespace{
			"default": {Servers: []string{"alpha"}},
			"beta":    {Servers: []string{"alpha"}},
		},
	}

	if err := gw.ApplyConfig(context.Background(), newCfg); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}

	if _, err := gw.resolverFor().Resolve("beta"); err != nil {
		t.Fatalf("expected namespace %q to resolve after ApplyConfig, got error: %v", "beta", err)
	}
}

func TestGatewayApplyConfigInvalidatesAndRebuildsRegistry(t *testing.T) {
	gw := newTestGateway(testConfig())

	before := gw.registry.Current().GeneratedAt
	if err := gw.ApplyConfig(context.Background(), testConfig()); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	after := gw.registry.Current().GeneratedAt

	if after.Before(before) {
		t.Fatalf("expected registry to be rebuilt with a timestamp no earlier than %v, got %v", before, after)
	}
}

func TestBuildScopedManifestJSONUnknownNamespace(t *testing.T) {
	gw := newTestGateway(testConfig())

	if _, err := gw.buildScopedManifestJSON("does-not-exist"); err == nil {
		t.Fatal("expected an error resolving an unknown namespace")
	}
}

func TestBuildScopedManifestJSONShape(t *testing.T) {
	gw := newTestGateway(testConfig())

	doc, err := gw.buildScopedManifestJSON("default")
	if err != nil {
		t.Fatalf("buildScopedManifestJSON: %v", err)
	}
	if !strings.Contains(doc, `"servers"`) || !strings.Contains(doc, `"namespaces"`) {
		t.Fatalf("expected scoped manifest to contain servers and namespaces keys, got: %s", doc)
	}
	if !strings.Contains(doc, `"alpha"`) {
		t.Fatalf("expected scoped manifest to mention the resolved server, got: %s", doc)
	}
}
