package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter writes server-sent events. Headers go out with the first
// event so a handler can still answer with a plain error before that.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Vercel-AI-UI-Message-Stream", "v1")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *sseWriter) done() error {
	return s.write([]byte("[DONE]"))
}

func (s *sseWriter) write(payload []byte) error {
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
