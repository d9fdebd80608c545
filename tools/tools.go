package tools

import (
	"context"
	"sort"

	"github.com/avidalr/reactor/errors"
)

// ParamSpec describes one parameter of a tool: its primitive JSON type
// (string, number, boolean, object, array) and whether it is required.
type ParamSpec struct {
	Type     string
	Required bool
}

// Definition is the capability descriptor the orchestrator validates against:
// a name, a human-readable description, and a parameter schema.
type Definition struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
}

// Registry is the tool collaborator consumed by the orchestrator. Execution
// failures are reported through the returned error; timeouts on individual
// executions are the registry's own responsibility.
type Registry interface {
	List() []Definition
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Func is the invocation handle behind a StaticRegistry entry.
type Func func(ctx context.Context, args map[string]interface{}) (string, error)

// StaticRegistry maps tool names to definitions and handlers. It backs tests
// and simple in-process toolsets; production tools usually arrive through the
// MCP-backed registry instead.
type StaticRegistry struct {
	defs     map[string]Definition
	handlers map[string]Func
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Func),
	}
}

// Register adds or replaces a tool.
func (r *StaticRegistry) Register(def Definition, fn Func) {
	r.defs[def.Name] = def
	r.handlers[def.Name] = fn
}

// List returns all definitions, sorted by name for stable schema lists.
func (r *StaticRegistry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool. The orchestrator only calls Execute after
// validation, so an unknown name here indicates a registry mutation race and
// is reported as an execution error.
func (r *StaticRegistry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	fn, ok := r.handlers[name]
	if !ok {
		return "", errors.New("tool '%s' is not registered", name)
	}
	return fn(ctx, args)
}
