package workbench

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes one tool call against already-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

type registeredTool struct {
	spec    ToolSpec
	schema  *jsonschema.Schema
	handler Handler
}

// Memory is an in-memory Workbench: a registry of tools, each with a
// compiled JSON Schema validated against incoming arguments before the
// handler runs.
type Memory struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewMemory returns an empty in-memory workbench.
func NewMemory() *Memory {
	return &Memory{tools: make(map[string]*registeredTool)}
}

// Register adds a tool. schema must be valid JSON Schema; compilation
// happens once at registration time so Invoke never pays that cost per
// call.
func (m *Memory) Register(spec ToolSpec, handler Handler) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(spec.Name+".json", bytes.NewReader(spec.Schema)); err != nil {
		return fmt.Errorf("adding schema resource for tool %q: %w", spec.Name, err)
	}
	schema, err := compiler.Compile(spec.Name + ".json")
	if err != nil {
		return fmt.Errorf("compiling schema for tool %q: %w", spec.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[spec.Name] = &registeredTool{spec: spec, schema: schema, handler: handler}
	return nil
}

// ListTools returns every registered tool's spec.
func (m *Memory) ListTools(_ context.Context) ([]ToolSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ToolSpec, 0, len(m.tools))
	for _, t := range m.tools {
		out = append(out, t.spec)
	}
	return out, nil
}

// Invoke validates args against the tool's schema and, if valid, runs its
// handler.
func (m *Memory) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	m.mu.RLock()
	tool, ok := m.tools[name]
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("unknown tool %q", name)
	}

	if err := tool.schema.Validate(args); err != nil {
		return Result{OK: false, Content: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	return tool.handler(ctx, args)
}
