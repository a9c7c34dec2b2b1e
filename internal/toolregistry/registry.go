// Package toolregistry implements C11: a read-only, process-lifetime
// registry mapping tool names to their schema and executor.
package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// Executor runs one tool call and returns its textual result.
type Executor func(ctx context.Context, args map[string]contracts.ArgValue) (string, error)

type entry struct {
	schema   contracts.ToolSchema
	compiled *jsonschema.Schema
	executor Executor
}

// Registry is an immutable name -> (schema, executor) map, built once at
// startup and never mutated afterward.
type Registry struct {
	entries map[string]entry
}

// Builder accumulates tools before Build freezes them into a Registry.
type Builder struct {
	entries map[string]entry
	err     error
}

// NewBuilder returns a Builder pre-seeded with the built-in tools every
// deployment carries regardless of configuration.
func NewBuilder() *Builder {
	b := &Builder{entries: make(map[string]entry)}
	b.Register(getCurrentTimeSchema(), getCurrentTimeExecutor)
	return b
}

// Register adds or replaces a tool definition. The schema's Parameters
// field is compiled as a JSON Schema immediately; a malformed schema is
// recorded and surfaces from Build rather than panicking mid-registration.
func (b *Builder) Register(schema contracts.ToolSchema, executor Executor) *Builder {
	compiled, err := compileParameterSchema(schema.Name, schema.Parameters)
	if err != nil {
		b.err = fmt.Errorf("toolregistry: registering %q: %w", schema.Name, err)
		return b
	}
	b.entries[schema.Name] = entry{schema: schema, compiled: compiled, executor: executor}
	return b
}

// Build freezes the builder into a Registry. It panics if a prior Register
// call supplied a schema that does not compile as JSON Schema — this is a
// startup-time programming error, not a runtime condition.
func (b *Builder) Build() *Registry {
	if b.err != nil {
		panic(b.err)
	}
	frozen := make(map[string]entry, len(b.entries))
	for k, v := range b.entries {
		frozen[k] = v
	}
	return &Registry{entries: frozen}
}

func compileParameterSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	resourceURL := "mem://tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(resourceURL)
}

// ErrUnknownTool is returned when a name has no registered entry.
type ErrUnknownTool struct{ Name string }

func (e *ErrUnknownTool) Error() string { return fmt.Sprintf("toolregistry: unknown tool %q", e.Name) }

// ErrInvalidArguments is returned when a tool call's arguments fail the
// registered JSON Schema for that tool. The orchestrator surfaces this as
// an INVALID_ARGUMENTS tool-result error rather than aborting the request.
type ErrInvalidArguments struct {
	Name   string
	Detail string
}

func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("toolregistry: invalid arguments for %q: %s", e.Name, e.Detail)
}

// Schemas returns the ToolSchema for each requested name, in order. An
// unknown name is an ErrUnknownTool — the orchestrator treats this as a
// MALFORMED_REQUEST rather than silently dropping the tool.
func (r *Registry) Schemas(names []string) ([]contracts.ToolSchema, error) {
	out := make([]contracts.ToolSchema, 0, len(names))
	for _, name := range names {
		e, ok := r.entries[name]
		if !ok {
			return nil, &ErrUnknownTool{Name: name}
		}
		out = append(out, e.schema)
	}
	return out, nil
}

// Execute validates args against the tool's registered JSON Schema, then
// runs it.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]contracts.ArgValue) (string, error) {
	e, ok := r.entries[name]
	if !ok {
		return "", &ErrUnknownTool{Name: name}
	}
	if err := validateArgs(e, args); err != nil {
		return "", err
	}
	return e.executor(ctx, args)
}

func validateArgs(e entry, args map[string]contracts.ArgValue) error {
	if e.compiled == nil {
		return nil
	}
	asAny := make(map[string]any, len(args))
	for k, v := range args {
		asAny[k] = v.ToAny()
	}
	raw, err := json.Marshal(asAny)
	if err != nil {
		return &ErrInvalidArguments{Name: e.schema.Name, Detail: err.Error()}
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &ErrInvalidArguments{Name: e.schema.Name, Detail: err.Error()}
	}
	if err := e.compiled.Validate(decoded); err != nil {
		return &ErrInvalidArguments{Name: e.schema.Name, Detail: err.Error()}
	}
	return nil
}

func getCurrentTimeSchema() contracts.ToolSchema {
	return contracts.ToolSchema{
		Name:        "get_current_time",
		Description: "Returns the current UTC time in RFC 3339 format.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func getCurrentTimeExecutor(ctx context.Context, args map[string]contracts.ArgValue) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}
