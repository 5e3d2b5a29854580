package agent

import (
	"encoding/json"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/llm"
)

// DefaultMaxSteps bounds the model calls of one turn.
const DefaultMaxSteps = 10

// AgentRequest is one turn of the conversation.
type AgentRequest struct {
	// SystemPrompt is the system prompt to set context
	SystemPrompt string

	// Messages is the prior history followed by the new user message
	Messages []llm.Message

	// MaxSteps overrides the orchestrator's step bound when positive
	MaxSteps int
}

// AgentResult represents the result from an agent execution
type AgentResult struct {
	// Content is the final text response from the agent
	Content string

	// ToolCalls contains a record of all tool calls made during execution
	ToolCalls []ToolCallRecord

	// Steps is the number of LLM calls made
	Steps int

	// StepLimitReached is set when the turn ended on the step bound
	// rather than on a final answer
	StepLimitReached bool
}

// ToolCallRecord records a single tool call and its result
type ToolCallRecord struct {
	ID        string          `json:"id"`
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"input"`
	Result    json.RawMessage `json:"output"`
	IsError   bool            `json:"isError,omitempty"`
}

// EventType names a stream event.
type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventToolInput  EventType = "tool-input-available"
	EventToolOutput EventType = "tool-output-available"
	EventToolError  EventType = "tool-output-error"
	EventFinish     EventType = "finish"
	EventError      EventType = "error"
)

// Event is one server-sent event of a streamed turn.
type Event struct {
	Type         EventType       `json:"type"`
	Delta        string          `json:"delta,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorText    string          `json:"errorText,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
}

// Emitter receives stream events in order. A returned error stops the turn.
type Emitter func(Event) error

// ChatRequest is the non-streaming assistant call.
type ChatRequest struct {
	UserMessage string                `json:"userMessage"`
	Preferences *identity.Preferences `json:"preferences,omitempty"`
	ChatHistory []HistoryMessage      `json:"chatHistory,omitempty"`
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Suggestion points the UI at one car the tools returned.
type Suggestion struct {
	CarID     int64  `json:"carId"`
	Name      string `json:"name"`
	Reasoning string `json:"reasoning"`
}

// Reply is the non-streaming assistant response.
type Reply struct {
	Message     string           `json:"message"`
	Suggestions []Suggestion     `json:"suggestions"`
	ToolCalls   []ToolCallRecord `json:"toolCalls"`
	Degraded    bool             `json:"degraded,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}
