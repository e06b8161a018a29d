package runtime

import (
	"context"
	"errors"
	"testing"
)

func TestNewToolRegistry(t *testing.T) {
	tr := NewToolRegistry()
	if tr == nil {
		t.Fatal("expected non-nil ToolRegistry")
	}
	if tr.tools == nil || tr.executors == nil {
		t.Fatal("expected initialised maps")
	}
}

func TestToolRegistry_Register(t *testing.T) {
	tr := NewToolRegistry()

	tool := ToolDefinition{
		Name:        "search",
		Description: "Web search",
		Parameters:  map[string]interface{}{"type": "string"},
	}
	executor := func(ctx context.Context, input string) (any, error) {
		return "executed", nil
	}

	if err := tr.Register(tool, executor); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if err := tr.Register(tool, executor); err == nil {
		t.Error("expected error when registering duplicate tool")
	}
}

func TestToolRegistry_Unregister(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "search"}, nil)

	if !tr.HasTool("search") {
		t.Error("tool should exist before unregister")
	}
	tr.Unregister("search")
	if tr.HasTool("search") {
		t.Error("tool should not exist after unregister")
	}
}

func TestToolRegistry_Get(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "search", Description: "Web search"}, nil)

	retrieved, ok := tr.Get("search")
	if !ok {
		t.Fatal("expected tool to be found")
	}
	if retrieved.Description != "Web search" {
		t.Errorf("expected description 'Web search', got %q", retrieved.Description)
	}

	if _, ok := tr.Get("nonexistent"); ok {
		t.Error("expected tool not to be found")
	}
}

func TestToolRegistry_ListIsSorted(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "tool3"}, nil)
	tr.Register(ToolDefinition{Name: "tool1"}, nil)
	tr.Register(ToolDefinition{Name: "tool2"}, nil)

	tools := tr.List()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	for i, want := range []string{"tool1", "tool2", "tool3"} {
		if tools[i].Name != want {
			t.Errorf("position %d: expected %q, got %q", i, want, tools[i].Name)
		}
	}
}

func TestToolRegistry_CallOK(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "echo"}, func(ctx context.Context, input string) (any, error) {
		return "output: " + input, nil
	})

	res := tr.Call(context.Background(), "echo", "hello")
	if !res.OK() {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Result != "output: hello" {
		t.Errorf("expected 'output: hello', got %v", res.Result)
	}
	if res.Error != "" {
		t.Errorf("expected empty error, got %q", res.Error)
	}
}

func TestToolRegistry_CallUnknownTool(t *testing.T) {
	tr := NewToolRegistry()

	res := tr.Call(context.Background(), "unknown", "")
	if res.Status != StatusError {
		t.Errorf("expected error status, got %q", res.Status)
	}
	if res.Error != "unknown tool: unknown" {
		t.Errorf("unexpected error message %q", res.Error)
	}
}

func TestToolRegistry_CallWithError(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "failing"}, func(ctx context.Context, input string) (any, error) {
		return nil, errors.New("execution failed")
	})

	res := tr.Call(context.Background(), "failing", "")
	if res.Status != StatusError || res.Error != "execution failed" {
		t.Errorf("expected error envelope, got %+v", res)
	}
	if res.Result != nil {
		t.Errorf("expected nil result, got %v", res.Result)
	}
}

func TestToolRegistry_CallRecoversPanic(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "boom"}, func(ctx context.Context, input string) (any, error) {
		panic("kaboom")
	})

	res := tr.Call(context.Background(), "boom", "")
	if res.Status != StatusError {
		t.Errorf("expected error status, got %q", res.Status)
	}
}

func TestToolRegistry_HasTool(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "exists"}, nil)

	if !tr.HasTool("exists") {
		t.Error("expected tool to exist")
	}
	if tr.HasTool("does_not_exist") {
		t.Error("expected tool not to exist")
	}
}

func TestToolRegistry_Count(t *testing.T) {
	tr := NewToolRegistry()
	if tr.Count() != 0 {
		t.Error("expected count 0")
	}

	tr.Register(ToolDefinition{Name: "tool1"}, nil)
	tr.Register(ToolDefinition{Name: "tool2"}, nil)
	if tr.Count() != 2 {
		t.Errorf("expected count 2, got %d", tr.Count())
	}
}

func TestToolRegistry_CallPassesContext(t *testing.T) {
	tr := NewToolRegistry()
	tr.Register(ToolDefinition{Name: "context_aware"}, func(ctx context.Context, input string) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return "done", nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := tr.Call(ctx, "context_aware", "")
	if res.Status != StatusError {
		t.Errorf("expected cancelled call to report error, got %+v", res)
	}
}
