package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
	"id": "test-id",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Hello! This is a test response."},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   1000,
		Temperature: 0.7,
		Timeout:     30,
		AuthFormat:  AuthBearer,
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), &Config{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfig))
	assert.Contains(t, err.Error(), "API key is required")
}

func TestClient_ChatCompletion(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://shop.example.com", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Toyotron", r.Header.Get("X-Title"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SiteURL = "https://shop.example.com"
	cfg.AppName = "Toyotron"
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)

	resp, err := client.ChatCompletion(context.Background(),
		[]Message{{Role: RoleUser, Content: "Hello, how are you?"}},
		NewChatCompletionOptions().WithSystemPrompt("be brief"))
	require.NoError(t, err)
	assert.Equal(t, "test-id", resp.ID)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello! This is a test response.", resp.Choices[0].Message.Content)
	assert.Equal(t, FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 30, resp.Usage.TotalTokens)
}

func TestClient_ChatCompletionWithTools(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tools []struct {
				Type     string `json:"type"`
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tools"`
			Messages []struct {
				Role       string `json:"role"`
				ToolCallID string `json:"tool_call_id"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Tools, 1)
		assert.Equal(t, "function", body.Tools[0].Type)
		assert.Equal(t, "searchToyotaTrims", body.Tools[0].Function.Name)
		assert.Equal(t, "call_0", body.Messages[len(body.Messages)-1].ToolCallID)

		_, _ = w.Write([]byte(`{
			"id": "x", "model": "test-model",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "", "tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "searchToyotaTrims", "arguments": "{\"q\":\"SUV\"}"}}
				]},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	defs := []ToolDefinition{{Type: "function", Function: Function{
		Name: "searchToyotaTrims", Description: "search", Parameters: json.RawMessage(`{"type":"object"}`),
	}}}
	history := []Message{
		{Role: RoleUser, Content: "SUV"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Type: "function", Function: FunctionCall{Name: "searchToyotaTrims", Arguments: "{}"}}}},
		{Role: RoleTool, ToolCallID: "call_0", Content: `{"items":[]}`},
	}
	resp, err := client.ChatCompletionWithTools(context.Background(), history, defs, nil)
	require.NoError(t, err)
	choice := resp.Choices[0]
	assert.Equal(t, FinishToolCalls, choice.FinishReason)
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", choice.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"q":"SUV"}`, choice.Message.ToolCalls[0].Function.Arguments)
}

func TestClient_ErrorHandling(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limited", "type": "rate_limit", "code": "429"}}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternal))
	assert.Contains(t, err.Error(), "status=429")
}

func TestClient_SimpleChat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	got, err := client.SimpleChat(context.Background(), "Hello", "You are a helpful assistant")
	require.NoError(t, err)
	assert.Equal(t, "Hello! This is a test response.", got)
}

func TestClient_ListModels(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"m-1","owned_by":"a"},{"id":"m-2","owned_by":"b"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "m-2", models[1].ID)
}

func TestClient_StreamChatCompletion(t *testing.T) {
	t.Parallel()

	chunks := []string{
		`{"id":"s","object":"chat.completion.chunk","model":"test-model","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"test-model","choices":[{"index":0,"delta":{"content":"check."}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"test-model","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"searchToyotaTrims","arguments":"{\"q\":"}}]}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"test-model","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"SUV\"}"}}]}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"test-model","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"estimateFinancing","arguments":"{}"}}]}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"test-model","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	events, err := client.StreamChatCompletion(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	var text string
	var final StreamEvent
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Done {
			final = ev
			continue
		}
		text += ev.Delta
	}

	assert.Equal(t, "Let me check.", text)
	assert.Equal(t, FinishToolCalls, final.FinishReason)
	require.Len(t, final.ToolCalls, 2)
	assert.Equal(t, "call_a", final.ToolCalls[0].ID)
	assert.Equal(t, "searchToyotaTrims", final.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"SUV"}`, final.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "estimateFinancing", final.ToolCalls[1].Function.Name)
}

func TestClient_NegotiatesRawCredential(t *testing.T) {
	t.Parallel()

	var modelCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/models" {
			modelCalls.Add(1)
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AuthFormat = AuthAuto
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, AuthRaw, client.AuthFormat())

	for i := 0; i < 3; i++ {
		_, err := client.SimpleChat(context.Background(), "hi", "")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), modelCalls.Load())
}

func TestClient_NegotiationKeepsBearer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	cfg := testConfig(server.URL)
	cfg.AuthFormat = AuthAuto
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, AuthBearer, client.AuthFormat())
	server.Close()

	// unreachable provider defaults to bearer
	client, err = NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, AuthBearer, client.AuthFormat())
}

func TestClient_ConcurrentRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.SimpleChat(context.Background(), "hi", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(8), calls.Load())
}
