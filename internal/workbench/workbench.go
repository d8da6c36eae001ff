// Package workbench defines the tool-calling contract agents and the
// manager invoke through, and an in-memory reference implementation
// backed by JSON Schema argument validation.
package workbench

import "context"

// ToolSpec describes one callable tool.
type ToolSpec struct {
	Name        string
	Description string
	// Schema is the tool's argument schema, serialized as JSON Schema.
	Schema []byte
}

// Result is the outcome of invoking a tool.
type Result struct {
	Content string
	OK      bool
}

// Workbench lists and invokes tools available to agents.
type Workbench interface {
	ListTools(ctx context.Context) ([]ToolSpec, error)
	Invoke(ctx context.Context, name string, args map[string]any) (Result, error)
}
