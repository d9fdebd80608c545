package tools

import (
	"context"

	"github.com/avidalr/reactor/errors"
)

// Multi combines several registries into one. Listings concatenate in
// registry order; execution goes to the first registry that knows the tool.
type Multi struct {
	registries []Registry
}

func NewMulti(registries ...Registry) *Multi {
	return &Multi{registries: registries}
}

func (m *Multi) List() []Definition {
	var defs []Definition
	seen := make(map[string]bool)
	for _, r := range m.registries {
		for _, def := range r.List() {
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			defs = append(defs, def)
		}
	}
	return defs
}

func (m *Multi) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	for _, r := range m.registries {
		for _, def := range r.List() {
			if def.Name == name {
				return r.Execute(ctx, name, args)
			}
		}
	}
	return "", errors.New("tool '%s' not found", name)
}
