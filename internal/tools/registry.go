package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/google/jsonschema-go/jsonschema"
)

// InvalidParameters is the error text of a schema rejection.
const InvalidParameters = "invalid parameters"

type entry struct {
	tool       Tool
	resolved   *jsonschema.Resolved
	parameters json.RawMessage
}

// Observer is told about every execution.
type Observer func(name string, elapsed time.Duration, isError bool)

// Registry is an ordered, immutable table of tools. Build it once with
// NewRegistry and share it; there is no way to add or remove tools later.
type Registry struct {
	order    []string
	entries  map[string]entry
	observer Observer
	logger   *log.Logger
}

type RegistryOption func(*Registry)

func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = o
	}
}

// NewRegistry resolves every tool's schema up front. Duplicate names and
// schemas that fail to resolve are errors.
func NewRegistry(tools []Tool, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		order:   make([]string, 0, len(tools)),
		entries: make(map[string]entry, len(tools)),
		logger:  log.Named("tools"),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, t := range tools {
		name := t.Name()
		if _, exists := r.entries[name]; exists {
			return nil, fmt.Errorf("tool %q already registered", name)
		}
		schema := t.Schema()
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema of %q: %w", name, err)
		}
		params, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema of %q: %w", name, err)
		}
		r.order = append(r.order, name)
		r.entries[name] = entry{tool: t, resolved: resolved, parameters: params}
	}
	return r, nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := r.entries[name]
	return e.tool, ok
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	return len(r.order)
}

// Parameters returns the marshalled schema of a tool.
func (r *Registry) Parameters(name string) (json.RawMessage, bool) {
	e, ok := r.entries[name]
	return e.parameters, ok
}

// ToOpenAIFormat converts all registered tools to OpenAI tool definition format
func (r *Registry) ToOpenAIFormat() []llm.ToolDefinition {
	definitions := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		definitions = append(definitions, llm.ToolDefinition{
			Type: "function",
			Function: llm.Function{
				Name:        name,
				Description: e.tool.Description(),
				Parameters:  e.parameters,
			},
		})
	}
	return definitions
}

// Validate checks raw arguments against the tool's schema and returns the
// rejection details, if any.
func (r *Registry) Validate(name string, args json.RawMessage) ([]string, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "unknown tool: %s", name)
	}
	var instance any
	if err := json.Unmarshal(normalizeArgs(args), &instance); err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}, nil
	}
	if _, isObject := instance.(map[string]any); !isObject {
		return []string{"arguments must be a JSON object"}, nil
	}
	if err := e.resolved.Validate(instance); err != nil {
		return []string{err.Error()}, nil
	}
	return nil, nil
}

// Execute validates and runs one tool call. It never returns a Go error:
// unknown tools, schema rejections, tool failures and panics all come back
// as error payloads for the model.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) ToolResult {
	started := time.Now()
	result := r.execute(ctx, name, args)
	elapsed := time.Since(started)

	if result.IsError {
		r.logger.Warn("tool %s failed after %s: %s", name, elapsed, truncate(result.Content, 200))
	} else {
		r.logger.Debug("tool %s finished in %s", name, elapsed)
	}
	if r.observer != nil {
		r.observer(name, elapsed, result.IsError)
	}
	return result
}

func (r *Registry) execute(ctx context.Context, name string, args json.RawMessage) ToolResult {
	e, ok := r.entries[name]
	if !ok {
		return ErrorResult(map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)})
	}

	details, err := r.Validate(name, args)
	if err != nil {
		return ErrorResult(map[string]any{"error": apperr.PublicMessage(err)})
	}
	if len(details) > 0 {
		if h, ok := e.tool.(InvalidArgsHandler); ok {
			return h.InvalidArgs(details)
		}
		return ErrorResult(map[string]any{"error": InvalidParameters, "details": details})
	}

	var result ToolResult
	err = apperr.SafeExecute(func() error {
		var execErr error
		result, execErr = e.tool.Execute(ctx, normalizeArgs(args))
		return execErr
	})
	if err != nil {
		r.logger.Error("tool %s: %v", name, err)
		msg := apperr.PublicMessage(err)
		if apperr.KindOf(err) == apperr.KindUnknown {
			msg = "tool execution failed"
		}
		return ErrorResult(map[string]any{"error": msg})
	}
	return result
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(args)) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
