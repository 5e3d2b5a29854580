package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/guardrail"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/MimeLyc/carshop-agent/internal/tools"
	"github.com/MimeLyc/carshop-agent/pkg/log"
)

const (
	maxSuggestions = 5
	emptyReply     = "I apologize, but I couldn't generate a response."
)

// Agent answers one shopping-assistant turn.
type Agent interface {
	// Chat runs a turn to completion and returns the final reply
	Chat(ctx context.Context, req ChatRequest) (*Reply, error)

	// Stream runs a turn and relays its events through emit
	Stream(ctx context.Context, req ChatRequest, emit Emitter) error
}

// LLMAgent implements the Agent interface using an LLM with tool calling
type LLMAgent struct {
	orchestrator *Orchestrator
	guard        *guardrail.Sanitizer
	profiles     identity.ProfileStore
	now          func() time.Time
	logger       *log.Logger
}

type Option func(*LLMAgent)

// WithProfiles loads stored preferences for signed-in users whose request
// carries none.
func WithProfiles(store identity.ProfileStore) Option {
	return func(a *LLMAgent) {
		a.profiles = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *LLMAgent) {
		a.now = now
	}
}

// NewLLMAgent creates a new LLM-based agent
func NewLLMAgent(orchestrator *Orchestrator, guard *guardrail.Sanitizer, opts ...Option) *LLMAgent {
	a := &LLMAgent{
		orchestrator: orchestrator,
		guard:        guard,
		now:          time.Now,
		logger:       log.Named("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat runs the turn without streaming. A failing model does not fail the
// call; the reply is then a canned answer marked Degraded.
func (a *LLMAgent) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	agentReq, userMessage, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Suggestions: make([]Suggestion, 0), ToolCalls: make([]ToolCallRecord, 0)}
	result, err := a.orchestrator.Run(ctx, agentReq)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		a.logger.Warn("LLM unavailable, answering with fallback: %v", err)
		reply.Message = fallbackReply(userMessage)
		reply.Degraded = true
	default:
		reply.Message = result.Content
		reply.ToolCalls = result.ToolCalls
		reply.Suggestions = suggestionsFrom(result.ToolCalls)
	}

	if strings.TrimSpace(reply.Message) == "" {
		reply.Message = emptyReply
	}
	var substituted bool
	reply.Message, _, substituted = a.guard.FinalizeOutput(reply.Message)
	if substituted {
		a.logger.Warn("reply replaced: %v", errOutputWithheld)
	}
	reply.Timestamp = a.now().UTC()
	return reply, nil
}

// Stream runs the turn and relays text through the output guardrail a line
// at a time. When a line cannot be made safe the safe message is sent in
// its place and the turn finishes early.
func (a *LLMAgent) Stream(ctx context.Context, req ChatRequest, emit Emitter) error {
	agentReq, _, err := a.prepare(ctx, req)
	if err != nil {
		return err
	}

	guarded := newGuardedEmitter(a.guard, emit)
	_, err = a.orchestrator.Stream(ctx, agentReq, guarded.Emit)
	if errors.Is(err, errOutputWithheld) {
		a.logger.Warn("streamed reply cut short: %v", err)
		return emit(Event{Type: EventFinish, FinishReason: "content-filter"})
	}
	return err
}

// prepare redacts the conversation, resolves preferences and builds the
// system prompt.
func (a *LLMAgent) prepare(ctx context.Context, req ChatRequest) (AgentRequest, string, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return AgentRequest{}, "", apperr.New(apperr.KindValidation, "userMessage is required")
	}

	messages := make([]llm.Message, 0, len(req.ChatHistory)+1)
	for _, h := range req.ChatHistory {
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		role := llm.RoleAssistant
		if h.Role == llm.RoleUser {
			role = llm.RoleUser
			content = a.guard.SanitizeInput(content).Sanitized
		}
		messages = append(messages, llm.Message{Role: role, Content: content})
	}

	userMessage := a.guard.SanitizeInput(strings.TrimSpace(req.UserMessage)).Sanitized
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	prefs := req.Preferences
	if prefs == nil {
		prefs = a.storedPreferences(ctx)
	}

	return AgentRequest{
		SystemPrompt: BuildSystemPrompt(prefs, userMessage),
		Messages:     messages,
	}, userMessage, nil
}

func (a *LLMAgent) storedPreferences(ctx context.Context) *identity.Preferences {
	if a.profiles == nil {
		return nil
	}
	user, ok := identity.FromContext(ctx)
	if !ok {
		return nil
	}
	prefs, err := a.profiles.Preferences(ctx, user.ID)
	if err != nil {
		a.logger.Warn("failed to load preferences for %s: %v", user.ID, err)
		return nil
	}
	return prefs
}

func fallbackReply(userMessage string) string {
	return fmt.Sprintf("I understand you're looking for: %q. While I'm having trouble connecting right now, "+
		"I can help you find the perfect Toyota vehicle. Based on your preferences, I'd recommend checking out "+
		"our SUV models like the RAV4 or Highlander, or our fuel-efficient sedans like the Camry or Corolla. "+
		"Would you like to browse our inventory or tell me more about what you're looking for?", userMessage)
}

// suggestionsFrom prefers the cars the model chose to display and falls
// back to the latest search results.
func suggestionsFrom(records []ToolCallRecord) []Suggestion {
	var displayed, searched []catalog.CarCard
	for _, rec := range records {
		if rec.IsError {
			continue
		}
		var out catalog.SearchResult
		if err := json.Unmarshal(rec.Result, &out); err != nil || len(out.Items) == 0 {
			continue
		}
		switch rec.ToolName {
		case tools.DisplayRecommendationsName:
			displayed = out.Items
		case tools.SearchTrimsName:
			searched = out.Items
		}
	}

	cards := displayed
	if cards == nil {
		cards = searched
	}
	if len(cards) > maxSuggestions {
		cards = cards[:maxSuggestions]
	}

	out := make([]Suggestion, 0, len(cards))
	for _, c := range cards {
		out = append(out, Suggestion{CarID: c.TrimID, Name: c.Title(), Reasoning: reasoning(c)})
	}
	return out
}

func reasoning(c catalog.CarCard) string {
	parts := make([]string, 0, 3)
	if c.BodyType != nil && *c.BodyType != "" {
		parts = append(parts, *c.BodyType)
	}
	if c.BodySeats != nil && *c.BodySeats > 0 {
		parts = append(parts, fmt.Sprintf("%d seats", *c.BodySeats))
	}
	if price, ok := c.Price(); ok {
		parts = append(parts, FormatDollars(int64(price))+" MSRP")
	}
	if len(parts) == 0 {
		return "Matches your search"
	}
	return "Matches your preferences: " + strings.Join(parts, ", ")
}

var errOutputWithheld error = apperr.New(apperr.KindGuardrail, "assistant output withheld by guardrail")

// guardedEmitter holds text deltas until a line is complete, redacts the
// line and forwards it. Other events flush the pending text first.
type guardedEmitter struct {
	guard   *guardrail.Sanitizer
	next    Emitter
	pending strings.Builder
	stopped bool
}

const maxPendingText = 1024

func newGuardedEmitter(guard *guardrail.Sanitizer, next Emitter) *guardedEmitter {
	return &guardedEmitter{guard: guard, next: next}
}

func (g *guardedEmitter) Emit(ev Event) error {
	if g.stopped {
		return errOutputWithheld
	}
	if ev.Type != EventTextDelta {
		if err := g.flush(); err != nil {
			return err
		}
		return g.next(ev)
	}

	g.pending.WriteString(ev.Delta)
	text := g.pending.String()
	cut := strings.LastIndex(text, "\n")
	if cut < 0 && len(text) > maxPendingText {
		cut = strings.LastIndexAny(text, " \t")
	}
	if cut < 0 {
		return nil
	}

	g.pending.Reset()
	g.pending.WriteString(text[cut+1:])
	return g.send(text[:cut+1])
}

func (g *guardedEmitter) flush() error {
	if g.pending.Len() == 0 {
		return nil
	}
	text := g.pending.String()
	g.pending.Reset()
	return g.send(text)
}

func (g *guardedEmitter) send(text string) error {
	final, _, substituted := g.guard.FinalizeOutput(text)
	if substituted {
		g.stopped = true
		if err := g.next(Event{Type: EventTextDelta, Delta: guardrail.SafeFallback}); err != nil {
			return err
		}
		return errOutputWithheld
	}
	if final == "" {
		return nil
	}
	return g.next(Event{Type: EventTextDelta, Delta: final})
}
