package registry

import (
	"fmt"

	"github.com/windlant/kobold-mcp-server/internal/tools"
)

// Registry is the set of tools a server instance exposes, keyed by name.
// It is filled once at startup and only read afterwards.
type Registry struct {
	tools map[string]tools.ToolDefinition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]tools.ToolDefinition),
	}
}

// Default returns a registry holding the full catalog minus the disabled names.
// Unknown names in disabled are reported so a typo in the config does not go unnoticed.
func Default(disabled ...string) (*Registry, error) {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	r := NewRegistry()
	for _, def := range tools.All() {
		if skip[def.Name] {
			delete(skip, def.Name)
			continue
		}
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	for name := range skip {
		return nil, fmt.Errorf("cannot disable unknown tool %q", name)
	}
	return r, nil
}

func (r *Registry) Register(def tools.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

func (r *Registry) Get(name string) (tools.ToolDefinition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// ListAll returns definitions in registration order.
func (r *Registry) ListAll() []tools.ToolDefinition {
	defs := make([]tools.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}
