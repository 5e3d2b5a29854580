package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/MimeLyc/carshop-agent/internal/tools"
	"github.com/MimeLyc/carshop-agent/pkg/log"
)

// FinishStepLimit is reported when a turn ends on the step bound.
const FinishStepLimit = "step-limit"

// ChatModel is the part of the LLM client the orchestrator drives.
type ChatModel interface {
	ChatCompletionWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts *llm.ChatCompletionOptions) (*llm.ChatResponse, error)
	StreamChatCompletion(ctx context.Context, messages []llm.Message, opts *llm.ChatCompletionOptions) (<-chan llm.StreamEvent, error)
}

// ToolSet executes tool calls by name. Execute never fails; problems come
// back as error payloads.
type ToolSet interface {
	ToOpenAIFormat() []llm.ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) tools.ToolResult
}

// LLMObserver is told how long every model call took.
type LLMObserver func(elapsed time.Duration, err error)

// Orchestrator manages the agent loop for tool calling
type Orchestrator struct {
	model    ChatModel
	tools    ToolSet
	maxSteps int
	observe  LLMObserver
	logger   *log.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithMaxSteps(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

func WithLLMObserver(fn LLMObserver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.observe = fn
	}
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(model ChatModel, toolSet ToolSet, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		model:    model,
		tools:    toolSet,
		maxSteps: DefaultMaxSteps,
		logger:   log.Named("agent"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the agent loop without streaming. Each step is one model
// call; tool calls of a step run in order and their results are appended
// before the next step.
func (o *Orchestrator) Run(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	result := &AgentResult{ToolCalls: make([]ToolCallRecord, 0)}
	messages := o.initialMessages(req)
	defs := o.tools.ToOpenAIFormat()
	maxSteps := o.stepsFor(req)

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Steps++

		started := time.Now()
		resp, err := o.model.ChatCompletionWithTools(ctx, messages, defs, nil)
		o.observed(started, err)
		if err != nil {
			return nil, fmt.Errorf("LLM call failed at step %d: %w", step+1, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no choices in response at step %d", step+1)
		}

		msg := resp.Choices[0].Message
		if msg.Content != "" {
			result.Content = msg.Content
		}
		if len(msg.ToolCalls) == 0 {
			return result, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: msg.Content, ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			record := o.executeTool(ctx, call)
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, toolMessage(call, record))
		}
	}

	result.StepLimitReached = true
	o.logger.Warn("turn stopped at the %d step bound", maxSteps)
	return result, nil
}

// Stream executes the agent loop and relays every step through emit:
// text as it arrives, tool inputs before execution, tool outputs after.
// The turn ends with a finish event, or with an error event when the model
// call fails. Cancelling ctx stops the turn without further events.
func (o *Orchestrator) Stream(ctx context.Context, req AgentRequest, emit Emitter) (*AgentResult, error) {
	result := &AgentResult{ToolCalls: make([]ToolCallRecord, 0)}
	messages := o.initialMessages(req)
	opts := llm.NewChatCompletionOptions().WithTools(o.tools.ToOpenAIFormat())
	maxSteps := o.stepsFor(req)

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Steps++

		text, final, err := o.streamStep(ctx, messages, opts, emit)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			var emitErr *emitError
			if errors.As(err, &emitErr) {
				return result, emitErr.err
			}
			_ = emit(Event{Type: EventError, ErrorText: "Failed to generate response."})
			return result, fmt.Errorf("LLM stream failed at step %d: %w", step+1, err)
		}
		if text != "" {
			result.Content = text
		}

		if len(final.ToolCalls) == 0 {
			reason := final.FinishReason
			if reason == "" {
				reason = llm.FinishStop
			}
			return result, emit(Event{Type: EventFinish, FinishReason: reason})
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: text, ToolCalls: final.ToolCalls})
		for _, call := range final.ToolCalls {
			input := rawJSON(call.Function.Arguments)
			if err := emit(Event{Type: EventToolInput, ToolCallID: call.ID, ToolName: call.Function.Name, Input: input}); err != nil {
				return result, err
			}

			record := o.executeTool(ctx, call)
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, toolMessage(call, record))

			ev := Event{Type: EventToolOutput, ToolCallID: call.ID, ToolName: call.Function.Name, Output: record.Result}
			if record.IsError {
				ev = Event{Type: EventToolError, ToolCallID: call.ID, ToolName: call.Function.Name, ErrorText: errorText(record.Result)}
			}
			if err := emit(ev); err != nil {
				return result, err
			}
		}
	}

	result.StepLimitReached = true
	o.logger.Warn("streamed turn stopped at the %d step bound", maxSteps)
	return result, emit(Event{Type: EventFinish, FinishReason: FinishStepLimit})
}

// emitError marks a failure of the emitter rather than of the model.
type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }

func (o *Orchestrator) streamStep(ctx context.Context, messages []llm.Message, opts *llm.ChatCompletionOptions, emit Emitter) (string, llm.StreamEvent, error) {
	// The producer behind events must not outlive this step, whichever way
	// the step ends.
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	events, err := o.model.StreamChatCompletion(stepCtx, messages, opts)
	if err != nil {
		o.observed(started, err)
		return "", llm.StreamEvent{}, err
	}

	var text strings.Builder
	var final llm.StreamEvent
	for ev := range events {
		if ev.Err != nil {
			o.observed(started, ev.Err)
			return "", llm.StreamEvent{}, ev.Err
		}
		if ev.Done {
			final = ev
			continue
		}
		if ev.Delta == "" {
			continue
		}
		text.WriteString(ev.Delta)
		if err := emit(Event{Type: EventTextDelta, Delta: ev.Delta}); err != nil {
			return "", llm.StreamEvent{}, &emitError{err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", llm.StreamEvent{}, err
	}
	if !final.Done {
		err := errors.New("stream ended before completion")
		o.observed(started, err)
		return "", llm.StreamEvent{}, err
	}
	o.observed(started, nil)
	return text.String(), final, nil
}

func (o *Orchestrator) initialMessages(req AgentRequest) []llm.Message {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}
	return append(messages, req.Messages...)
}

func (o *Orchestrator) stepsFor(req AgentRequest) int {
	if req.MaxSteps > 0 {
		return req.MaxSteps
	}
	return o.maxSteps
}

func (o *Orchestrator) observed(started time.Time, err error) {
	if o.observe != nil {
		o.observe(time.Since(started), err)
	}
}

func (o *Orchestrator) executeTool(ctx context.Context, call llm.ToolCall) ToolCallRecord {
	res := o.tools.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	o.logger.Info("tool %s executed: error=%v", call.Function.Name, res.IsError)
	return ToolCallRecord{
		ID:        call.ID,
		ToolName:  call.Function.Name,
		Arguments: rawJSON(call.Function.Arguments),
		Result:    rawJSON(res.Content),
		IsError:   res.IsError,
	}
}

func toolMessage(call llm.ToolCall, record ToolCallRecord) llm.Message {
	return llm.Message{Role: llm.RoleTool, Content: string(record.Result), ToolCallID: call.ID}
}

// rawJSON keeps valid JSON as is and quotes anything else.
func rawJSON(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func errorText(payload json.RawMessage) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return string(payload)
}
