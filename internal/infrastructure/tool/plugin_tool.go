package tool

import (
	"context"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/plugin"
)

// dynamicTool wraps a plugin-exported handler as a domaintool.Tool, so
// plugins loaded at runtime appear to the kernel exactly like a built-in.
type dynamicTool struct {
	name        string
	description string
	kind        domaintool.Kind
	schema      map[string]interface{}
	handler     func(args map[string]interface{}) (string, error)
}

func (t *dynamicTool) Name() string                     { return t.name }
func (t *dynamicTool) Description() string               { return t.description }
func (t *dynamicTool) Kind() domaintool.Kind              { return t.kind }
func (t *dynamicTool) Schema() map[string]interface{}     { return t.schema }

func (t *dynamicTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	out, err := t.handler(args)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Output: out, Success: true}, nil
}

// RegistryAdapter adapts a domaintool.Registry to plugin.ToolRegistrar, so
// the plugin ExtensionRegistry can register/unregister plugin-exported tools
// directly into the kernel's tool registry.
type RegistryAdapter struct {
	registry domaintool.Registry
	kind     domaintool.Kind
}

// NewRegistryAdapter wraps reg; every dynamic tool registered through it is
// tagged with kind (execute is the conservative default, since most plugin
// tools shell out or call external services).
func NewRegistryAdapter(reg domaintool.Registry, kind domaintool.Kind) *RegistryAdapter {
	if kind == "" {
		kind = domaintool.KindExecute
	}
	return &RegistryAdapter{registry: reg, kind: kind}
}

func (a *RegistryAdapter) RegisterDynamic(name, description string, schema map[string]interface{}, handler func(args map[string]interface{}) (string, error)) error {
	return a.registry.Register(&dynamicTool{
		name:        name,
		description: description,
		kind:        a.kind,
		schema:      schema,
		handler:     handler,
	})
}

func (a *RegistryAdapter) Unregister(name string) {
	_ = a.registry.Unregister(name)
}

var _ plugin.ToolRegistrar = (*RegistryAdapter)(nil)
