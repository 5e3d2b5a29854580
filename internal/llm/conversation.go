package llm

import "sync"

// History is a bounded window of chat messages.
//
// Trimming never leaves a tool message at the head of the window: a tool
// result without the assistant call that requested it is rejected by
// providers.
type History struct {
	mu         sync.Mutex
	messages   []Message
	maxHistory int
}

// NewHistory creates a window holding at most maxHistory messages
// (default: 40).
func NewHistory(maxHistory int) *History {
	if maxHistory <= 0 {
		maxHistory = 40
	}
	return &History{maxHistory: maxHistory}
}

// Add appends messages, trimming the oldest beyond the window.
func (h *History) Add(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
	if len(h.messages) > h.maxHistory {
		h.messages = h.messages[len(h.messages)-h.maxHistory:]
	}
	for len(h.messages) > 0 && h.messages[0].Role == RoleTool {
		h.messages = h.messages[1:]
	}
}

// Messages returns a copy of the window.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
