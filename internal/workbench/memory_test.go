package workbench

import (
	"context"
	"testing"
)

func TestMemoryRegisterAndInvoke(t *testing.T) {
	m := NewMemory()
	schema := []byte(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)

	err := m.Register(ToolSpec{Name: "greet", Description: "says hi", Schema: schema},
		func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{OK: true, Content: "hi " + args["name"].(string)}, nil
		})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := m.Invoke(context.Background(), "greet", map[string]any{"name": "alice"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.OK || res.Content != "hi alice" {
		t.Fatalf("got %+v", res)
	}
}

func TestMemoryInvokeRejectsInvalidArgs(t *testing.T) {
	m := NewMemory()
	schema := []byte(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
	if err := m.Register(ToolSpec{Name: "greet", Schema: schema},
		func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{OK: true}, nil
		}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := m.Invoke(context.Background(), "greet", map[string]any{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.OK {
		t.Fatalf("expected validation failure to surface as a non-OK result")
	}
}

func TestMemoryInvokeUnknownTool(t *testing.T) {
	m := NewMemory()
	if _, err := m.Invoke(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected error invoking an unregistered tool")
	}
}

func TestFilterRestrictsToolSet(t *testing.T) {
	m := NewMemory()
	schema := []byte(`{"type": "object"}`)
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(ToolSpec{Name: name, Schema: schema},
			func(ctx context.Context, args map[string]any) (Result, error) {
				return Result{OK: true}, nil
			}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	f := NewFilter(m, []string{"a", "c"})
	tools, err := f.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}

	if _, err := f.Invoke(context.Background(), "b", nil); err == nil {
		t.Fatalf("expected Invoke(b) to be rejected by the filter")
	}
	if _, err := f.Invoke(context.Background(), "a", nil); err != nil {
		t.Fatalf("Invoke(a): %v", err)
	}
}
