// Package namespace resolves namespace and group names to the set of child
// server names they grant access to (spec §4.C).
package namespace

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcproxygw/mcgateway/internal/config"
)

// ErrUnknownNamespace is returned when a name matches neither a namespace nor
// a group (and isn't the distinguished "default").
var ErrUnknownNamespace = errors.New("namespace: unknown namespace or group")

// Default is the distinguished name of the implicit default endpoint.
const Default = "default"

// Resolver resolves namespace/group names against a snapshot of the
// configuration's namespace and group tables.
type Resolver struct {
	namespaces map[string]config.Namespace
	groups     map[string]config.Group
}

// New builds a Resolver over the given configuration's namespace/group
// tables. The tables are captured by value at construction time — callers
// build a fresh Resolver after each config reload, matching spec §5's
// "namespace/group tables are replaced atomically on config change".
func New(cfg *config.Config) *Resolver {
	return &Resolver{namespaces: cfg.Namespaces, groups: cfg.Groups}
}

// Resolve resolves a namespace name, a group name, or the empty string /
// [Default] for the implicit default endpoint, to a sorted list of
// accessible server names.
func (r *Resolver) Resolve(name string) ([]string, error) {
	if name == "" || name == Default {
		return r.resolveDefault(), nil
	}
	if _, ok := r.namespaces[name]; ok {
		servers := r.resolveNamespace(name, make(map[string]bool))
		return sortedSet(servers), nil
	}
	if grp, ok := r.groups[name]; ok {
		return r.resolveGroup(grp)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, name)
}

// resolveNamespace performs the depth-first walk of `extends` from name,
// collecting servers into a set. The visiting set detects and silently
// breaks cycles — a cycle is a tolerated configuration quirk, not an error.
// Missing parents during this runtime resolution are skipped with a warning
// (as opposed to the hard error raised by the separate validation pass).
func (r *Resolver) resolveNamespace(name string, visiting map[string]bool) map[string]bool {
	servers := make(map[string]bool)
	if visiting[name] {
		return servers
	}
	visiting[name] = true

	ns, ok := r.namespaces[name]
	if !ok {
		slog.Warn("namespace resolver: missing namespace during resolution, skipping", "namespace", name)
		return servers
	}
	for _, s := range ns.Servers {
		servers[s] = true
	}
	for _, parent := range ns.Extends {
		for s := range r.resolveNamespace(parent, visiting) {
			servers[s] = true
		}
	}
	return servers
}

// resolveGroup unions the resolved servers of every namespace reference in
// grp. A reference prefixed with "!" force-includes an isolated namespace;
// referencing an isolated namespace without "!" is rejected wholesale.
func (r *Resolver) resolveGroup(grp config.Group) ([]string, error) {
	servers := make(map[string]bool)
	for _, ref := range grp.Namespaces {
		nsName, forced := stripForcePrefix(ref)
		ns, ok := r.namespaces[nsName]
		if !ok {
			slog.Warn("namespace resolver: group references missing namespace, skipping", "namespace", nsName)
			continue
		}
		if ns.Isolated && !forced {
			return nil, fmt.Errorf("namespace: group references isolated namespace %q without '!' prefix", nsName)
		}
		for s := range r.resolveNamespace(nsName, make(map[string]bool)) {
			servers[s] = true
		}
	}
	return sortedSet(servers), nil
}

// resolveDefault returns the union of every non-isolated namespace's
// resolved servers. Isolated namespaces require explicit addressing.
func (r *Resolver) resolveDefault() []string {
	servers := make(map[string]bool)
	for name, ns := range r.namespaces {
		if ns.Isolated {
			continue
		}
		for s := range r.resolveNamespace(name, make(map[string]bool)) {
			servers[s] = true
		}
	}
	return sortedSet(servers)
}

// Allows reports whether namespace name grants access to server. It is the
// per-call counterpart of Resolve used by the dispatch/sandbox layers
// (spec invariant 2 in §8: allowed/denied with a message naming both).
func (r *Resolver) Allows(name, server string) (bool, error) {
	servers, err := r.Resolve(name)
	if err != nil {
		return false, err
	}
	for _, s := range servers {
		if s == server {
			return true, nil
		}
	}
	return false, fmt.Errorf("namespace: %q does not grant access to server %q", name, server)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func stripForcePrefix(ref string) (name string, forced bool) {
	if len(ref) > 0 && ref[0] == '!' {
		return ref[1:], true
	}
	return ref, false
}

// Validate walks all namespaces and groups reporting structural errors
// (spec §4.C "Validation (separate pass)"). Unlike [Resolve], missing
// parent references here are hard errors, and cycles are reported only as
// warnings (they remain resolvable, just logged).
func Validate(cfg *config.Config) error {
	var errs []error

	visited := make(map[string]bool)
	var detectCycle func(name string, stack map[string]bool)
	detectCycle = func(name string, stack map[string]bool) {
		if stack[name] {
			slog.Warn("namespace resolver: cyclic extends detected", "namespace", name)
			return
		}
		if visited[name] {
			return
		}
		stack[name] = true
		ns, ok := cfg.Namespaces[name]
		if !ok {
			return
		}
		for _, parent := range ns.Extends {
			detectCycle(parent, stack)
		}
		visited[name] = true
		delete(stack, name)
	}

	for name, ns := range cfg.Namespaces {
		if name == "" {
			errs = append(errs, errors.New("namespace: empty namespace name"))
		}
		for _, parent := range ns.Extends {
			if _, ok := cfg.Namespaces[parent]; !ok {
				errs = append(errs, fmt.Errorf("namespace: %q extends unknown namespace %q", name, parent))
			}
		}
		for _, s := range ns.Servers {
			if !serverExists(cfg, s) {
				errs = append(errs, fmt.Errorf("namespace: %q references unknown server %q", name, s))
			}
		}
		detectCycle(name, make(map[string]bool))
	}

	for name, grp := range cfg.Groups {
		if len(grp.Namespaces) == 0 {
			errs = append(errs, fmt.Errorf("namespace: group %q has an empty namespaces list", name))
			continue
		}
		for _, ref := range grp.Namespaces {
			nsName, forced := stripForcePrefix(ref)
			ns, ok := cfg.Namespaces[nsName]
			if !ok {
				errs = append(errs, fmt.Errorf("namespace: group %q references unknown namespace %q", name, nsName))
				continue
			}
			if ns.Isolated && !forced {
				errs = append(errs, fmt.Errorf("namespace: group %q references isolated namespace %q without '!' prefix", name, nsName))
			}
		}
	}

	return errors.Join(errs...)
}

func serverExists(cfg *config.Config, name string) bool {
	for _, s := range cfg.Servers {
		if s.Name == name {
			return true
		}
	}
	return false
}
