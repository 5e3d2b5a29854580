package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	openai "github.com/sashabaranov/go-openai"
)

// Client is an OpenAI-compatible chat completions client.
// Safe for concurrent use.
type Client struct {
	config *Config
	api    *openai.Client
	doer   *authDoer
	logger *log.Logger
}

// NewClient creates a new LLM client with the given configuration.
//
// With AuthFormat "auto" the credential format is negotiated once here by
// calling {APIURL}/models; a network failure during that check keeps the
// bearer form and is logged.
//
// Example:
//
//	client, err := llm.NewClient(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindConfig, fmt.Sprintf("invalid LLM configuration: %v", err))
	}

	doer := newAuthDoer(&http.Client{Timeout: time.Duration(config.Timeout) * time.Second}, config)
	logger := log.Named("llm")

	format, _ := ParseAuthFormat(string(config.AuthFormat))
	switch format {
	case AuthAuto:
		chosen := doer.negotiate(ctx, config.APIURL)
		logger.Info("negotiated %s credential format with %s", chosen, config.APIURL)
	default:
		doer.format.Store(format)
	}

	oc := openai.DefaultConfig(config.APIKey)
	oc.BaseURL = strings.TrimRight(config.APIURL, "/")
	oc.HTTPClient = doer

	return &Client{
		config: config,
		api:    openai.NewClientWithConfig(oc),
		doer:   doer,
		logger: logger,
	}, nil
}

// AuthFormat reports the credential format in use.
func (c *Client) AuthFormat() AuthFormat {
	return c.doer.Format()
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// ChatCompletion creates a chat completion request without tools.
//
// Example:
//
//	messages := []llm.Message{
//		{Role: "user", Content: "Hello, how are you?"},
//	}
//	response, err := client.ChatCompletion(ctx, messages, nil)
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}
	return c.complete(ctx, c.buildRequest(messages, opts, nil))
}

// ChatCompletionWithTools offers the given tool definitions to the model.
// The response may carry tool calls with FinishReason "tool_calls".
func (c *Client) ChatCompletionWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}
	return c.complete(ctx, c.buildRequest(messages, opts, tools))
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (*ChatResponse, error) {
	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, c.wrapError(err, "chat completion failed")
	}
	c.logger.Debug("chat completion %s finished in %s (%d tokens)", resp.ID, time.Since(started), resp.Usage.TotalTokens)

	out := fromOpenAIResponse(resp)
	if len(out.Choices) == 0 {
		return out, apperr.New(apperr.KindExternal, "no choices in response")
	}
	return out, nil
}

// StreamChatCompletion streams a completion. The returned channel yields
// text deltas as they arrive and then one final event with Done set, the
// finish reason and the tool calls assembled from their fragments. The
// channel is closed after the final event, after an error event, or when
// ctx is cancelled.
func (c *Client) StreamChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (<-chan StreamEvent, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}
	req := c.buildRequest(messages, opts, opts.Tools)
	req.Stream = true

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, c.wrapError(err, "chat completion stream failed")
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		acc := newToolCallAccumulator()
		finish := ""
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(StreamEvent{Err: c.wrapError(err, "chat completion stream failed")})
				return
			}
			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					finish = string(choice.FinishReason)
				}
				acc.add(choice.Delta.ToolCalls)
				if choice.Delta.Content != "" {
					if !send(StreamEvent{Delta: choice.Delta.Content}) {
						return
					}
				}
			}
		}

		calls := acc.calls()
		if finish == "" {
			finish = FinishStop
			if len(calls) > 0 {
				finish = FinishToolCalls
			}
		}
		send(StreamEvent{Done: true, FinishReason: finish, ToolCalls: calls})
	}()

	return events, nil
}

// SimpleChat provides a simple interface for chat completion
//
// Example:
//
//	response, err := client.SimpleChat(ctx, "What is Go?", "You are a helpful assistant.")
func (c *Client) SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	messages := []Message{
		{Role: RoleUser, Content: prompt},
	}

	opts := NewChatCompletionOptions()
	if systemPrompt != "" {
		opts = opts.WithSystemPrompt(systemPrompt)
	}

	response, err := c.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return response.Choices[0].Message.Content, nil
}

// ModelInfo represents basic model information
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ListModels returns the models the provider exposes to this key.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, c.wrapError(err, "failed to list models")
	}
	out := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return out, nil
}

func (c *Client) buildRequest(messages []Message, opts *ChatCompletionOptions, tools []ToolDefinition) openai.ChatCompletionRequest {
	if opts.SystemPrompt != "" {
		messages = append([]Message{{Role: RoleSystem, Content: opts.SystemPrompt}}, messages...)
	}
	return openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.getMaxTokens(opts),
		Temperature: float32(c.getTemperature(opts)),
		Tools:       toOpenAITools(tools),
	}
}

func (c *Client) wrapError(err error, message string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	wrapped := apperr.Wrap(err, apperr.KindExternal, message)
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		wrapped.WithContext("status", apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		wrapped.WithContext("status", reqErr.HTTPStatusCode)
	}
	c.logger.Error("%v", wrapped)
	return wrapped
}

// getMaxTokens returns the max tokens to use for the request
func (c *Client) getMaxTokens(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.config.MaxTokens
}

// getTemperature returns the temperature to use for the request
func (c *Client) getTemperature(opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return c.config.Temperature
}

// toolCallAccumulator joins streamed tool call fragments keyed by index.
type toolCallAccumulator struct {
	byIndex map[int]*ToolCall
	next    int
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*ToolCall)}
}

func (a *toolCallAccumulator) add(deltas []openai.ToolCall) {
	for _, d := range deltas {
		idx := a.next
		if d.Index != nil {
			idx = *d.Index
		} else if d.ID == "" && a.next > 0 {
			// continuation of the previous call
			idx = a.next - 1
		}
		tc, ok := a.byIndex[idx]
		if !ok {
			tc = &ToolCall{Type: string(openai.ToolTypeFunction)}
			a.byIndex[idx] = tc
			if idx >= a.next {
				a.next = idx + 1
			}
		}
		if d.ID != "" {
			tc.ID = d.ID
		}
		if d.Function.Name != "" {
			tc.Function.Name += d.Function.Name
		}
		tc.Function.Arguments += d.Function.Arguments
	}
}

func (a *toolCallAccumulator) calls() []ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	keys := make([]int, 0, len(a.byIndex))
	for k := range a.byIndex {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]ToolCall, 0, len(keys))
	for _, k := range keys {
		out = append(out, *a.byIndex[k])
	}
	return out
}
