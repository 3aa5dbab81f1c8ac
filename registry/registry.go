// Package registry is the PluginRegistry façade: a read-through
// catalog of registered core.Tool implementations that the planner and
// executor consult to validate and invoke tools by name. It
// generalizes core/discovery.go's capability-indexed lookup and
// orchestration/catalog.go's prompt-rendering catalog.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/itsneelabh/agentcore/core"
)

// Registry holds every tool known to the process, keyed by name, and
// keeps a secondary index by category for catalog rendering.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]core.Tool
	byCategory map[string][]string
	logger     core.Logger
}

// New creates an empty Registry.
func New(logger core.Logger) *Registry {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Registry{
		tools:      make(map[string]core.Tool),
		byCategory: make(map[string][]string),
		logger:     logger,
	}
}

// Register adds a tool to the catalog. Re-registering the same name
// replaces the previous entry, matching discovery.go's idempotent
// re-register behavior (useful for hot-reloaded plugins).
func (r *Registry) Register(tool core.Tool) error {
	if tool == nil || tool.Name() == "" {
		return &core.FrameworkError{Op: "Registry.Register", Kind: "registry", Message: "tool must have a non-empty name"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; !exists {
		r.byCategory[tool.Category()] = append(r.byCategory[tool.Category()], tool.Name())
	}
	r.tools[tool.Name()] = tool
	r.logger.Info("tool registered", map[string]interface{}{"tool": tool.Name(), "category": tool.Category()})
	return nil
}

// Unregister removes a tool from the catalog.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool, ok := r.tools[name]
	if !ok {
		return
	}
	delete(r.tools, name)
	names := r.byCategory[tool.Category()]
	for i, n := range names {
		if n == name {
			r.byCategory[tool.Category()] = append(names[:i], names[i+1:]...)
			if len(r.byCategory[tool.Category()]) == 0 {
				delete(r.byCategory, tool.Category())
			}
			break
		}
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (core.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolUnavailable, name)
	}
	return tool, nil
}

// Has reports whether name is registered, without allocating an error.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns every registered tool, sorted by name for deterministic
// catalog rendering.
func (r *Registry) List() []core.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every registered tool name, sorted. Satisfies
// routing.ToolLister.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Categories returns the distinct category names currently registered.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byCategory))
	for cat := range r.byCategory {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// RenderCatalog produces the plain-text tool catalog the planner embeds
// in its prompt, one line per tool: name, description, and parameters.
// Grounded on orchestration/catalog.go's prompt-section formatting.
func (r *Registry) RenderCatalog() string {
	tools := r.List()
	out := ""
	for _, t := range tools {
		out += fmt.Sprintf("- %s: %s\n", t.Name(), t.Description())
		for _, p := range t.Parameters() {
			req := ""
			if p.Required {
				req = ", required"
			}
			out += fmt.Sprintf("    %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return out
}

// ValidateSteps checks that every step in a plan names a registered
// tool, returning the first unknown tool name encountered. The executor
// does not call it; its own pre-scheduling check is cycle detection.
func (r *Registry) ValidateSteps(steps []core.ExecutionStep) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, step := range steps {
		if _, ok := r.tools[step.ToolName]; !ok {
			return fmt.Errorf("%w: step %s references tool %q", core.ErrToolUnavailable, step.ID, step.ToolName)
		}
	}
	return nil
}
