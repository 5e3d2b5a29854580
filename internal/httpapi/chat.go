package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/MimeLyc/carshop-agent/internal/agent"
	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/identity"
)

// uiMessage is one message of the chat UI's conversation. Text comes
// either as content or as text parts.
type uiMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content,omitempty"`
	Parts   []uiPart `json:"parts,omitempty"`
}

type uiPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (m uiMessage) text() string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

type chatStreamRequest struct {
	Messages    []uiMessage           `json:"messages"`
	Preferences *identity.Preferences `json:"preferences,omitempty"`
}

// chatRequest splits the conversation into history and the new user
// message, which must be last.
func (req chatStreamRequest) chatRequest() (agent.ChatRequest, error) {
	if len(req.Messages) == 0 {
		return agent.ChatRequest{}, apperr.New(apperr.KindValidation, "messages are required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		return agent.ChatRequest{}, apperr.New(apperr.KindValidation, "the last message must come from the user")
	}

	history := make([]agent.HistoryMessage, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		text := m.text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		history = append(history, agent.HistoryMessage{Role: m.Role, Content: text})
	}
	return agent.ChatRequest{
		UserMessage: last.text(),
		Preferences: req.Preferences,
		ChatHistory: history,
	}, nil
}

// handleChatStream relays one assistant turn as server-sent events.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.check(w, s.requireLLM) {
		return
	}
	var body chatStreamRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeAppError(w, err)
		return
	}
	req, err := body.chatRequest()
	if err != nil {
		writeAppError(w, err)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithTimeout(s.optionalUser(r), s.chatTimeout)
	defer cancel()

	reported := false
	err = s.agent.Stream(ctx, req, func(ev agent.Event) error {
		if ev.Type == agent.EventError {
			reported = true
		}
		return sse.send(ev)
	})
	s.observeTurn("stream", err != nil)

	switch {
	case err == nil:
		_ = sse.done()
	case !sse.started:
		writeAppError(w, err)
	case r.Context().Err() != nil:
		s.logger.Info("chat stream abandoned by client")
	default:
		s.logger.Error("chat stream failed: %v", err)
		if !reported {
			_ = sse.send(agent.Event{Type: agent.EventError, ErrorText: "Failed to generate response."})
		}
		_ = sse.done()
	}
}

// handleAgentChat answers one turn as a single JSON document.
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	if !s.check(w, s.requireLLM) {
		return
	}
	var req agent.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(s.optionalUser(r), s.chatTimeout)
	defer cancel()

	reply, err := s.agent.Chat(ctx, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.observeTurn("chat", reply.Degraded)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) observeTurn(mode string, degraded bool) {
	if s.observe != nil {
		s.observe(mode, degraded)
	}
}
