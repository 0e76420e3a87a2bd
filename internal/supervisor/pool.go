package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcproxygw/mcgateway/internal/config"
	"github.com/mcproxygw/mcgateway/internal/observe"
)

// startupStagger is the delay between successive child spawns during initial
// startup, skipped for the first child (spec §4.B "Staggered startup").
const startupStagger = 500 * time.Millisecond

// ErrUnknownServer is returned when a call targets a server name the pool
// has no child for.
var ErrUnknownServer = errors.New("supervisor: unknown server")

// Pool owns the set of live children and routes calls to them (spec §4.B).
type Pool struct {
	mu       sync.RWMutex
	children map[string]*ChildProcess
}

// NewPool constructs an empty pool.
func NewPool() *Pool {
	return &Pool{children: make(map[string]*ChildProcess)}
}

// SpawnAll starts every enabled server in cfg, staggering each spawn after
// the first by [startupStagger]. Spawns run independently: one child's
// failure to start does not block or cancel the others (spec §4.B).
func (p *Pool) SpawnAll(ctx context.Context, cfg *config.Config) {
	var wg sync.WaitGroup
	launched := 0
	for _, spec := range cfg.Servers {
		if !spec.Enabled {
			continue
		}
		if launched > 0 {
			time.Sleep(startupStagger)
		}
		launched++
		child := NewChild(spec)
		p.mu.Lock()
		p.children[spec.Name] = child
		p.mu.Unlock()

		wg.Add(1)
		go func(c *ChildProcess) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				slog.Error("supervisor: child failed to start", "child", c.Name(), "error", err)
			}
		}(child)
	}
	wg.Wait()
}

// StopAll stops every child concurrently, waiting for all to finish.
func (p *Pool) StopAll(ctx context.Context) error {
	p.mu.RLock()
	children := make([]*ChildProcess, 0, len(p.children))
	for _, c := range p.children {
		children = append(children, c)
	}
	p.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range children {
		c := c
		g.Go(func() error {
			c.Stop()
			return nil
		})
	}
	return g.Wait()
}

// Get returns the child registered under name, if any.
func (p *Pool) Get(name string) (*ChildProcess, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.children[name]
	return c, ok
}

// Set registers or replaces the child under its own name. Used by the
// hot-reload controller when folding add/update into the live pool.
func (p *Pool) Set(c *ChildProcess) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[c.Name()] = c
}

// Remove drops name from the pool without stopping it — callers stop the
// child themselves before removing it.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.children, name)
}

// Names returns the sorted set of registered server names.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.children))
	for name := range p.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AllTools returns the aggregated, prefixed tool set across every live
// child. Dead children are skipped rather than failing the whole listing
// (spec §4.B "Aggregated discovery").
func (p *Pool) AllTools() []Tool {
	p.mu.RLock()
	children := make([]*ChildProcess, 0, len(p.children))
	for _, c := range p.children {
		children = append(children, c)
	}
	p.mu.RUnlock()

	var out []Tool
	for _, c := range children {
		if !c.IsAlive() {
			continue
		}
		out = append(out, c.Tools()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrefixedName() < out[j].PrefixedName() })
	return out
}

// Call routes a prefixed tool invocation to its owning child, restarting it
// first if it has crashed (spec §4.B "Call routing").
func (p *Pool) Call(ctx context.Context, prefixedTool string, args any) (any, error) {
	server, tool, ok := ParsePrefixed(prefixedTool)
	if !ok {
		return nil, fmt.Errorf("supervisor: %q is not a valid prefixed tool name", prefixedTool)
	}
	child, ok := p.Get(server)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownServer, server)
	}

	start := time.Now()
	result, err := child.Call(ctx, tool, args)
	status := "success"
	if err != nil {
		status = "error"
	}
	observe.DefaultMetrics().RecordToolCall(ctx, server, tool, status, time.Since(start).Seconds())
	return result, err
}
