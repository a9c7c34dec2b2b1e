package toolregistry

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

func TestGetCurrentTimeBuiltin(t *testing.T) {
	reg := NewBuilder().Build()

	schemas, err := reg.Schemas([]string{"get_current_time"})
	if err != nil {
		t.Fatalf("Schemas: %v", err)
	}
	if len(schemas) != 1 || schemas[0].Name != "get_current_time" {
		t.Fatalf("unexpected schemas: %+v", schemas)
	}

	result, err := reg.Execute(context.Background(), "get_current_time", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, result); err != nil {
		t.Fatalf("result %q is not RFC3339: %v", result, err)
	}
}

func TestSchemasUnknownToolErrors(t *testing.T) {
	reg := NewBuilder().Build()
	if _, err := reg.Schemas([]string{"does_not_exist"}); err == nil {
		t.Fatal("expected ErrUnknownTool")
	}
}

func TestExecuteUnknownToolErrors(t *testing.T) {
	reg := NewBuilder().Build()
	if _, err := reg.Execute(context.Background(), "does_not_exist", nil); err == nil {
		t.Fatal("expected ErrUnknownTool")
	}
}

func TestExecuteRejectsArgumentsFailingSchema(t *testing.T) {
	reg := NewBuilder().Register(contracts.ToolSchema{
		Name:        "add",
		Description: "Adds two integers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "integer"},
				"b": map[string]any{"type": "integer"},
			},
			"required": []any{"a", "b"},
		},
	}, func(ctx context.Context, args map[string]contracts.ArgValue) (string, error) {
		return "ok", nil
	}).Build()

	_, err := reg.Execute(context.Background(), "add", map[string]contracts.ArgValue{
		"a": {Kind: contracts.ArgNumber, Num: 1},
	})
	if _, ok := err.(*ErrInvalidArguments); !ok {
		t.Fatalf("err = %v, want *ErrInvalidArguments", err)
	}
}

func TestExecuteAcceptsArgumentsMatchingSchema(t *testing.T) {
	reg := NewBuilder().Register(contracts.ToolSchema{
		Name:        "add",
		Description: "Adds two integers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "integer"},
				"b": map[string]any{"type": "integer"},
			},
			"required": []any{"a", "b"},
		},
	}, func(ctx context.Context, args map[string]contracts.ArgValue) (string, error) {
		return "3", nil
	}).Build()

	result, err := reg.Execute(context.Background(), "add", map[string]contracts.ArgValue{
		"a": {Kind: contracts.ArgNumber, Num: 1},
		"b": {Kind: contracts.ArgNumber, Num: 2},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "3" {
		t.Fatalf("result = %q, want 3", result)
	}
}
