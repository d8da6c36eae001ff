package workbench

import (
	"context"
	"fmt"
)

// Filter wraps a Workbench to expose only a whitelisted subset of tools to
// one agent, so a team can give different agents different capabilities
// without each holding its own Workbench instance.
type Filter struct {
	inner   Workbench
	allowed map[string]struct{}
}

// NewFilter restricts inner to the tools named in allowedNames.
func NewFilter(inner Workbench, allowedNames []string) *Filter {
	allowed := make(map[string]struct{}, len(allowedNames))
	for _, n := range allowedNames {
		allowed[n] = struct{}{}
	}
	return &Filter{inner: inner, allowed: allowed}
}

// ListTools returns only the tools in the whitelist.
func (f *Filter) ListTools(ctx context.Context) ([]ToolSpec, error) {
	all, err := f.inner.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ToolSpec, 0, len(f.allowed))
	for _, t := range all {
		if _, ok := f.allowed[t.Name]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Invoke rejects calls to tools outside the whitelist before they ever
// reach the underlying Workbench.
func (f *Filter) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	if _, ok := f.allowed[name]; !ok {
		return Result{}, fmt.Errorf("tool %q is not available to this agent", name)
	}
	return f.inner.Invoke(ctx, name, args)
}
