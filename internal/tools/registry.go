// Package tools provides the tool registry consumed by the engine, the stub
// fallback tool, and the small set of text tools the server ships with.
package tools

import (
	"fmt"
	"sort"
	"sync"

	"blockdoc/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Tool Registry: pluggable block backends
// ─────────────────────────────────────────────────────────────

// Registry maps tool names to tools. The stub tool is always registered.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]domain.Tool
	defaultName string
}

// NewRegistry creates a registry holding only the stub tool.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]domain.Tool)}
	r.tools[domain.StubTool] = Stub{}
	return r
}

// Register adds a tool. Panics on duplicate registration or a second
// default tool, both being wiring mistakes.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool registry: duplicate registration for tool %q", name))
	}
	if t.IsDefault() {
		if r.defaultName != "" {
			panic(fmt.Sprintf("tool registry: %q and %q both claim to be the default tool", r.defaultName, name))
		}
		r.defaultName = name
	}
	r.tools[name] = t
}

// SetDefault overrides which registered tool is the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok || name == domain.StubTool {
		return fmt.Errorf("set default tool %q: %w", name, domain.ErrUnknownTool)
	}
	r.defaultName = name
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Default returns the default tool, or the stub when none is registered.
func (r *Registry) Default() domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[r.defaultName]; ok {
		return t
	}
	return r.tools[domain.StubTool]
}

// Names lists registered tools, sorted, stub excluded.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		if n != domain.StubTool {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// ForEach iterates all registered tools, stub included.
func (r *Registry) ForEach(fn func(domain.Tool)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		fn(t)
	}
}
