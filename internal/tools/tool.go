package tools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool defines the interface for tools that can be called by the agent
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Schema returns the JSON Schema for the tool's parameters
	Schema() *jsonschema.Schema

	// Execute runs the tool with arguments that already passed Schema.
	// Domain failures come back as an error payload in the result; a
	// returned error means the tool itself broke.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

// InvalidArgsHandler lets a tool shape its own reply to arguments that
// fail schema validation.
type InvalidArgsHandler interface {
	InvalidArgs(details []string) ToolResult
}

// JSONResult marshals v as a successful result.
func JSONResult(v any) (ToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: string(b)}, nil
}

// ErrorResult marshals v as an error payload the model can read.
func ErrorResult(v any) ToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return ToolResult{Content: string(b), IsError: true}
}
